package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/beauty-shop/internal/domain/catalog"
)

func (h *Handler) listBrands(w http.ResponseWriter, r *http.Request) {
	brands, err := h.svc.Catalog.ListBrands(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeList(w, brands, encodeBrand)
}

func (h *Handler) createBrand(w http.ResponseWriter, r *http.Request) {
	b := catalog.Brand{IsActive: true}
	err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "name":
			b.Name, err = d.Str()
		case "slug":
			b.Slug, err = d.Str()
		case "description":
			b.Description, err = d.Str()
		case "is_active":
			b.IsActive, err = d.Bool()
		default:
			err = d.Skip()
		}
		return err
	})
	if err == nil {
		err = h.svc.Catalog.CreateBrand(r.Context(), &b)
	}
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeBrand(e, b) })
}

func (h *Handler) updateBrand(w http.ResponseWriter, r *http.Request) {
	var patch catalog.BrandPatch
	err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "name":
			patch.Name, err = decodePtr(d, (*jx.Decoder).Str)
		case "slug":
			patch.Slug, err = decodePtr(d, (*jx.Decoder).Str)
		case "description":
			patch.Description, err = decodePtr(d, (*jx.Decoder).Str)
		case "is_active":
			patch.IsActive, err = decodePtr(d, (*jx.Decoder).Bool)
		default:
			err = d.Skip()
		}
		return err
	})
	var b *catalog.Brand
	if err == nil {
		b, err = h.svc.Catalog.UpdateBrand(r.Context(), r.PathValue("slug"), patch)
	}
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeBrand(e, *b) })
}

func (h *Handler) deleteBrand(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Catalog.DeleteBrand(r.Context(), r.PathValue("slug")); err != nil {
		fail(w, r, err)
		return
	}
	writeNoContent(w)
}

func (h *Handler) listCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.svc.Catalog.ListCategories(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeList(w, categories, encodeCategory)
}

func (h *Handler) createCategory(w http.ResponseWriter, r *http.Request) {
	c := catalog.Category{IsActive: true}
	err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "name":
			c.Name, err = d.Str()
		case "slug":
			c.Slug, err = d.Str()
		case "description":
			c.Description, err = d.Str()
		case "parent_id":
			c.ParentID, err = d.Str()
		case "is_active":
			c.IsActive, err = d.Bool()
		default:
			err = d.Skip()
		}
		return err
	})
	if err == nil {
		err = h.svc.Catalog.CreateCategory(r.Context(), &c)
	}
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeCategory(e, c) })
}

func (h *Handler) updateCategory(w http.ResponseWriter, r *http.Request) {
	var patch catalog.CategoryPatch
	err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "name":
			patch.Name, err = decodePtr(d, (*jx.Decoder).Str)
		case "slug":
			patch.Slug, err = decodePtr(d, (*jx.Decoder).Str)
		case "description":
			patch.Description, err = decodePtr(d, (*jx.Decoder).Str)
		case "parent_id":
			patch.ParentID, err = decodeNullableStr(d)
		case "is_active":
			patch.IsActive, err = decodePtr(d, (*jx.Decoder).Bool)
		default:
			err = d.Skip()
		}
		return err
	})
	var c *catalog.Category
	if err == nil {
		c, err = h.svc.Catalog.UpdateCategory(r.Context(), r.PathValue("slug"), patch)
	}
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeCategory(e, *c) })
}

func (h *Handler) deleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Catalog.DeleteCategory(r.Context(), r.PathValue("slug")); err != nil {
		fail(w, r, err)
		return
	}
	writeNoContent(w)
}

func (h *Handler) listAttributeTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.svc.Catalog.ListAttributeTypes(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeList(w, types, encodeAttributeType)
}

func (h *Handler) createAttributeType(w http.ResponseWriter, r *http.Request) {
	var t catalog.AttributeType
	err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "name":
			t.Name, err = d.Str()
		case "slug":
			t.Slug, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	if err == nil {
		err = h.svc.Catalog.CreateAttributeType(r.Context(), &t)
	}
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeAttributeType(e, t) })
}

// productFilter reads the listing filter from the query string.
func (h *Handler) productFilter(r *http.Request) (catalog.ProductFilter, error) {
	q := r.URL.Query()
	f := catalog.ProductFilter{
		BrandSlug:    q.Get("brand"),
		CategorySlug: q.Get("category"),
		Search:       q.Get("q"),
		Ordering:     q.Get("ordering"),
	}
	var isNew bool
	for _, err := range []error{
		queryMoney(r, "min_price", &f.MinPrice),
		queryMoney(r, "max_price", &f.MaxPrice),
		queryBool(r, "in_stock", &f.InStock),
		queryBool(r, "on_sale", &f.OnSale),
		queryBool(r, "featured", &f.Featured),
		queryBool(r, "is_new", &isNew),
		queryInt(r, "limit", &f.Limit),
		queryInt(r, "offset", &f.Offset),
	} {
		if err != nil {
			return f, err
		}
	}
	if isNew {
		since := h.svc.Catalog.NewSince()
		f.NewSince = &since
	}
	return f, nil
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	f, err := h.productFilter(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	products, err := h.svc.Catalog.ListProducts(r.Context(), f)
	if err != nil {
		fail(w, r, err)
		return
	}
	now := time.Now()
	writeList(w, products, func(e *jx.Encoder, p catalog.Product) { encodeProduct(e, p, now, false) })
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Catalog.GetProduct(r.Context(), r.PathValue("slug"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeProduct(e, *p, time.Now(), true) })
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	p := catalog.Product{IsActive: true}
	err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "name":
			p.Name, err = d.Str()
		case "slug":
			p.Slug, err = d.Str()
		case "brand":
			var slug string
			if slug, err = d.Str(); err == nil && slug != "" {
				p.Brand = &catalog.Brand{Slug: slug}
			}
		case "categories":
			var slugs []string
			slugs, err = decodeStrings(d)
			for _, s := range slugs {
				p.Categories = append(p.Categories, catalog.Category{Slug: s})
			}
		case "description":
			p.Description, err = d.Str()
		case "short_description":
			p.ShortDescription, err = d.Str()
		case "is_active":
			p.IsActive, err = d.Bool()
		case "is_featured":
			p.IsFeatured, err = d.Bool()
		case "variants":
			err = d.Arr(func(d *jx.Decoder) error {
				v, err := decodeVariant(d)
				if err != nil {
					return err
				}
				p.Variants = append(p.Variants, v)
				return nil
			})
		default:
			err = d.Skip()
		}
		return err
	})
	if err == nil {
		err = h.svc.Catalog.CreateProduct(r.Context(), &p)
	}
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeProduct(e, p, time.Now(), true) })
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	var patch catalog.ProductPatch
	err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "name":
			patch.Name, err = decodePtr(d, (*jx.Decoder).Str)
		case "slug":
			patch.Slug, err = decodePtr(d, (*jx.Decoder).Str)
		case "brand":
			patch.Brand, err = decodeNullableStr(d)
		case "categories":
			patch.Categories, err = decodeStrings(d)
			if patch.Categories == nil {
				patch.Categories = []string{}
			}
		case "description":
			patch.Description, err = decodePtr(d, (*jx.Decoder).Str)
		case "short_description":
			patch.ShortDescription, err = decodePtr(d, (*jx.Decoder).Str)
		case "is_active":
			patch.IsActive, err = decodePtr(d, (*jx.Decoder).Bool)
		case "is_featured":
			patch.IsFeatured, err = decodePtr(d, (*jx.Decoder).Bool)
		default:
			err = d.Skip()
		}
		return err
	})
	var p *catalog.Product
	if err == nil {
		p, err = h.svc.Catalog.UpdateProduct(r.Context(), r.PathValue("slug"), patch)
	}
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeProduct(e, *p, time.Now(), true) })
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Catalog.DeleteProduct(r.Context(), r.PathValue("slug")); err != nil {
		fail(w, r, err)
		return
	}
	writeNoContent(w)
}

func (h *Handler) addVariant(w http.ResponseWriter, r *http.Request) {
	v := catalog.Variant{IsActive: true}
	err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		return decodeVariantField(d, key, &v)
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	p, err := h.svc.Catalog.AddVariant(r.Context(), r.PathValue("slug"), &v)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) { encodeProduct(e, *p, time.Now(), true) })
}

func (h *Handler) checkStock(w http.ResponseWriter, r *http.Request) {
	levels, err := h.svc.Catalog.CheckStock(r.Context(), r.PathValue("slug"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeList(w, levels, func(e *jx.Encoder, l catalog.StockLevel) {
		e.Obj(func(e *jx.Encoder) {
			str(e, "variant_id", l.VariantID)
			str(e, "sku", l.SKU)
			integer(e, "available", l.Available)
			boolean(e, "is_out_of_stock", l.IsOutOfStock)
			boolean(e, "is_low_stock", l.IsLowStock)
		})
	})
}

func (h *Handler) getVariant(w http.ResponseWriter, r *http.Request) {
	v, err := h.svc.Catalog.GetVariant(r.Context(), r.PathValue("id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeVariant(e, *v) })
}

// updateVariant patches a variant. "sale_price": null removes the sale
// price; stock changes go through the inventory endpoints.
func (h *Handler) updateVariant(w http.ResponseWriter, r *http.Request) {
	var patch catalog.VariantPatch
	err := decodeObject(w, r, func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "sku":
			patch.SKU, err = decodePtr(d, (*jx.Decoder).Str)
		case "name":
			patch.Name, err = decodePtr(d, (*jx.Decoder).Str)
		case "price":
			patch.Price, err = decodePtr(d, func(d *jx.Decoder) (decimal.Decimal, error) { return decodeMoney(d, key) })
		case "sale_price":
			patch.SalePrice, err = decodeOptMoney(d, key)
			patch.ClearSalePrice = err == nil && patch.SalePrice == nil
		case "color_code":
			patch.ColorCode, err = decodeNullableStr(d)
		case "weight_grams":
			patch.WeightGrams, err = decodePtr(d, (*jx.Decoder).Int)
		case "is_active":
			patch.IsActive, err = decodePtr(d, (*jx.Decoder).Bool)
		case "attributes":
			patch.Attributes, err = decodeAttributes(d)
		case "stock", "quantity", "low_stock_threshold":
			err = badRequest("%s: use the inventory endpoints", key)
		default:
			err = d.Skip()
		}
		return err
	})
	var v *catalog.Variant
	if err == nil {
		v, err = h.svc.Catalog.UpdateVariant(r.Context(), r.PathValue("id"), patch)
	}
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodeVariant(e, *v) })
}

func (h *Handler) deleteVariant(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Catalog.DeleteVariant(r.Context(), r.PathValue("id")); err != nil {
		fail(w, r, err)
		return
	}
	writeNoContent(w)
}

// decodeAttributes reads [{"type": slug, "value": v}, ...]. An empty array
// yields an empty, non-nil slice.
func decodeAttributes(d *jx.Decoder) ([]catalog.Attribute, error) {
	attrs := []catalog.Attribute{}
	err := d.Arr(func(d *jx.Decoder) error {
		var a catalog.Attribute
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "type":
				a.Type, err = d.Str()
			case "value":
				a.Value, err = d.Str()
			default:
				err = d.Skip()
			}
			return err
		}); err != nil {
			return err
		}
		attrs = append(attrs, a)
		return nil
	})
	return attrs, err
}

func decodeVariant(d *jx.Decoder) (catalog.Variant, error) {
	v := catalog.Variant{IsActive: true}
	err := d.Obj(func(d *jx.Decoder, key string) error {
		return decodeVariantField(d, key, &v)
	})
	return v, err
}

func decodeVariantField(d *jx.Decoder, key string, v *catalog.Variant) error {
	var err error
	switch key {
	case "sku":
		v.SKU, err = d.Str()
	case "name":
		v.Name, err = d.Str()
	case "price":
		v.Price, err = decodeMoney(d, key)
	case "sale_price":
		v.SalePrice, err = decodeOptMoney(d, key)
	case "color_code":
		v.ColorCode, err = d.Str()
	case "weight_grams":
		v.WeightGrams, err = d.Int()
	case "is_active":
		v.IsActive, err = d.Bool()
	case "stock":
		v.Stock.Quantity, err = d.Int()
	case "low_stock_threshold":
		v.Stock.LowStockThreshold, err = d.Int()
	case "attributes":
		v.Attributes, err = decodeAttributes(d)
	default:
		err = d.Skip()
	}
	return err
}

func encodeBrand(e *jx.Encoder, b catalog.Brand) {
	e.Obj(func(e *jx.Encoder) {
		str(e, "id", b.ID)
		str(e, "name", b.Name)
		str(e, "slug", b.Slug)
		str(e, "description", b.Description)
		boolean(e, "is_active", b.IsActive)
	})
}

func encodeAttributeType(e *jx.Encoder, t catalog.AttributeType) {
	e.Obj(func(e *jx.Encoder) {
		str(e, "id", t.ID)
		str(e, "name", t.Name)
		str(e, "slug", t.Slug)
	})
}

func encodeCategory(e *jx.Encoder, c catalog.Category) {
	e.Obj(func(e *jx.Encoder) {
		str(e, "id", c.ID)
		str(e, "name", c.Name)
		str(e, "slug", c.Slug)
		str(e, "description", c.Description)
		if c.ParentID != "" {
			str(e, "parent_id", c.ParentID)
		}
		boolean(e, "is_active", c.IsActive)
	})
}

// encodeProduct writes a product. The listing form omits inactive variants
// and descriptions.
func encodeProduct(e *jx.Encoder, p catalog.Product, now time.Time, detail bool) {
	e.Obj(func(e *jx.Encoder) {
		str(e, "id", p.ID)
		str(e, "name", p.Name)
		str(e, "slug", p.Slug)
		if p.Brand != nil {
			e.Field("brand", func(e *jx.Encoder) { encodeBrand(e, *p.Brand) })
		}
		e.Field("categories", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, c := range p.Categories {
					encodeCategory(e, c)
				}
			})
		})
		str(e, "short_description", p.ShortDescription)
		if detail {
			str(e, "description", p.Description)
		}
		optMoney(e, "base_price", p.BasePrice())
		boolean(e, "in_stock", p.InStock())
		boolean(e, "is_featured", p.IsFeatured)
		boolean(e, "is_new", p.IsNew(now))
		timestamp(e, "created_at", p.CreatedAt)
		e.Field("variants", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, v := range p.Variants {
					if !detail && !v.IsActive {
						continue
					}
					encodeVariant(e, v)
				}
			})
		})
	})
}

func encodeVariant(e *jx.Encoder, v catalog.Variant) {
	e.Obj(func(e *jx.Encoder) {
		str(e, "id", v.ID)
		str(e, "product_id", v.ProductID)
		str(e, "sku", v.SKU)
		str(e, "name", v.Name)
		money(e, "price", v.Price)
		optMoney(e, "sale_price", v.SalePrice)
		money(e, "effective_price", v.EffectivePrice())
		boolean(e, "is_on_sale", v.IsOnSale())
		if v.ColorCode != "" {
			str(e, "color_code", v.ColorCode)
		}
		integer(e, "weight_grams", v.WeightGrams)
		boolean(e, "is_active", v.IsActive)
		integer(e, "available", v.Stock.Available())
		boolean(e, "is_low_stock", v.Stock.IsLowStock())
		e.Field("attributes", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, a := range v.Attributes {
					e.Obj(func(e *jx.Encoder) {
						str(e, "type", a.Type)
						str(e, "name", a.Name)
						str(e, "value", a.Value)
					})
				}
			})
		})
	})
}
