package catalog

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// BrandPatch is a partial brand update. Nil fields keep their value.
type BrandPatch struct {
	Name        *string
	Slug        *string
	Description *string
	IsActive    *bool
}

// CategoryPatch is a partial category update. An empty ParentID makes the
// category top level.
type CategoryPatch struct {
	Name        *string
	Slug        *string
	Description *string
	ParentID    *string
	IsActive    *bool
}

// ProductPatch is a partial product update. Brand holds a brand slug and an
// empty slug detaches the brand. Categories replaces the category set when
// non-nil.
type ProductPatch struct {
	Name             *string
	Slug             *string
	Brand            *string
	Categories       []string
	Description      *string
	ShortDescription *string
	IsActive         *bool
	IsFeatured       *bool
}

// VariantPatch is a partial variant update. ClearSalePrice removes the sale
// price; Attributes replaces every attribute value when non-nil. Stock is
// changed through the inventory ledger, never here.
type VariantPatch struct {
	SKU            *string
	Name           *string
	Price          *decimal.Decimal
	SalePrice      *decimal.Decimal
	ClearSalePrice bool
	ColorCode      *string
	WeightGrams    *int
	IsActive       *bool
	Attributes     []Attribute
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

// UpdateBrand applies patch to the brand identified by slug.
func (s *Service) UpdateBrand(ctx context.Context, slug string, patch BrandPatch) (*Brand, error) {
	b, err := s.repo.GetBrand(ctx, slug)
	if err != nil {
		return nil, err
	}
	set(&b.Name, patch.Name)
	set(&b.Slug, patch.Slug)
	set(&b.Description, patch.Description)
	set(&b.IsActive, patch.IsActive)
	if err := validateNamed(b.Name, &b.Slug); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateBrand(ctx, b); err != nil {
		return nil, errors.Wrapf(err, "update brand %s", slug)
	}
	return b, nil
}

// DeleteBrand removes a brand. Its products stay in the catalog without one.
func (s *Service) DeleteBrand(ctx context.Context, slug string) error {
	if err := s.repo.DeleteBrand(ctx, slug); err != nil {
		return errors.Wrapf(err, "delete brand %s", slug)
	}
	zctx.From(ctx).Info("Brand deleted", zap.String("slug", slug))
	return nil
}

// UpdateCategory applies patch to the category identified by slug.
func (s *Service) UpdateCategory(ctx context.Context, slug string, patch CategoryPatch) (*Category, error) {
	c, err := s.repo.GetCategory(ctx, slug)
	if err != nil {
		return nil, err
	}
	set(&c.Name, patch.Name)
	set(&c.Slug, patch.Slug)
	set(&c.Description, patch.Description)
	set(&c.ParentID, patch.ParentID)
	set(&c.IsActive, patch.IsActive)
	if err := validateNamed(c.Name, &c.Slug); err != nil {
		return nil, err
	}
	if c.ParentID == c.ID {
		return nil, &ValidationError{Field: "parent_id", Reason: "category cannot be its own parent"}
	}
	if err := s.repo.UpdateCategory(ctx, c); err != nil {
		return nil, errors.Wrapf(err, "update category %s", slug)
	}
	return c, nil
}

// DeleteCategory removes a category and its product links. Child categories
// become top level.
func (s *Service) DeleteCategory(ctx context.Context, slug string) error {
	if err := s.repo.DeleteCategory(ctx, slug); err != nil {
		return errors.Wrapf(err, "delete category %s", slug)
	}
	zctx.From(ctx).Info("Category deleted", zap.String("slug", slug))
	return nil
}

// UpdateProduct applies patch to the product identified by slug and returns
// it reloaded.
func (s *Service) UpdateProduct(ctx context.Context, slug string, patch ProductPatch) (*Product, error) {
	p, err := s.repo.GetProductBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	set(&p.Name, patch.Name)
	set(&p.Slug, patch.Slug)
	set(&p.Description, patch.Description)
	set(&p.ShortDescription, patch.ShortDescription)
	set(&p.IsActive, patch.IsActive)
	set(&p.IsFeatured, patch.IsFeatured)
	if patch.Brand != nil {
		p.Brand = nil
		if *patch.Brand != "" {
			p.Brand = &Brand{Slug: *patch.Brand}
		}
	}
	if patch.Categories != nil {
		p.Categories = make([]Category, 0, len(patch.Categories))
		for _, c := range patch.Categories {
			p.Categories = append(p.Categories, Category{Slug: c})
		}
	}
	if err := validateNamed(p.Name, &p.Slug); err != nil {
		return nil, err
	}
	p.UpdatedAt = s.now()

	if err := s.repo.UpdateProduct(ctx, p); err != nil {
		return nil, errors.Wrapf(err, "update product %s", slug)
	}
	zctx.From(ctx).Info("Product updated",
		zap.String("product_id", p.ID),
		zap.String("slug", p.Slug),
	)
	return s.repo.GetProductBySlug(ctx, p.Slug)
}

// DeleteProduct removes a product with its variants and their stock rows.
func (s *Service) DeleteProduct(ctx context.Context, slug string) error {
	if err := s.repo.DeleteProduct(ctx, slug); err != nil {
		return errors.Wrapf(err, "delete product %s", slug)
	}
	zctx.From(ctx).Info("Product deleted", zap.String("slug", slug))
	return nil
}

// GetVariant returns a variant with its stock and attributes.
func (s *Service) GetVariant(ctx context.Context, id string) (*Variant, error) {
	return s.repo.GetVariant(ctx, id)
}

// UpdateVariant applies patch to a variant and returns it reloaded. Order
// items keep the name and price they were placed with.
func (s *Service) UpdateVariant(ctx context.Context, id string, patch VariantPatch) (*Variant, error) {
	v, err := s.repo.GetVariant(ctx, id)
	if err != nil {
		return nil, err
	}
	set(&v.SKU, patch.SKU)
	set(&v.Name, patch.Name)
	set(&v.Price, patch.Price)
	set(&v.ColorCode, patch.ColorCode)
	set(&v.WeightGrams, patch.WeightGrams)
	set(&v.IsActive, patch.IsActive)
	switch {
	case patch.ClearSalePrice:
		v.SalePrice = nil
	case patch.SalePrice != nil:
		sale := *patch.SalePrice
		v.SalePrice = &sale
	}
	if patch.Attributes != nil {
		v.Attributes = patch.Attributes
	}
	if err := ValidateVariant(v); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateVariant(ctx, v); err != nil {
		return nil, errors.Wrapf(err, "update variant %s", id)
	}
	zctx.From(ctx).Info("Variant updated",
		zap.String("variant_id", id),
		zap.String("sku", v.SKU),
		zap.String("price", v.Price.StringFixed(2)),
	)
	return s.repo.GetVariant(ctx, id)
}

// DeleteVariant removes a variant and its stock row. Order items that
// reference it keep their snapshot and lose the link.
func (s *Service) DeleteVariant(ctx context.Context, id string) error {
	if err := s.repo.DeleteVariant(ctx, id); err != nil {
		return errors.Wrapf(err, "delete variant %s", id)
	}
	zctx.From(ctx).Info("Variant deleted", zap.String("variant_id", id))
	return nil
}
