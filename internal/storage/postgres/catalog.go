package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/beauty-shop/internal/domain/catalog"
)

const (
	listBrandsSQL = `SELECT id, name, slug, description, is_active, created_at
		FROM brands ORDER BY name`

	insertBrandSQL = `INSERT INTO brands (id, name, slug, description, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	brandIDBySlugSQL = `SELECT id FROM brands WHERE slug = $1`

	getBrandSQL = `SELECT id, name, slug, description, is_active, created_at
		FROM brands WHERE slug = $1`

	updateBrandSQL = `UPDATE brands SET name = $2, slug = $3, description = $4, is_active = $5
		WHERE id = $1`

	deleteBrandSQL = `DELETE FROM brands WHERE slug = $1`

	listCategoriesSQL = `SELECT id, name, slug, description, parent_id, is_active, created_at
		FROM categories ORDER BY name`

	insertCategorySQL = `INSERT INTO categories (id, name, slug, description, parent_id, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	getCategorySQL = `SELECT id, name, slug, description, parent_id, is_active, created_at
		FROM categories WHERE slug = $1`

	updateCategorySQL = `UPDATE categories SET name = $2, slug = $3, description = $4, parent_id = $5, is_active = $6
		WHERE id = $1`

	deleteCategorySQL = `DELETE FROM categories WHERE slug = $1`

	listAttributeTypesSQL = `SELECT id, name, slug, created_at FROM attribute_types ORDER BY name`

	insertAttributeTypeSQL = `INSERT INTO attribute_types (id, name, slug, created_at)
		VALUES ($1, $2, $3, $4)`

	productColumns = `p.id, p.name, p.slug, p.description, p.short_description,
		p.is_active, p.is_featured, p.created_at, p.updated_at,
		b.id, b.name, b.slug, b.description, b.is_active, b.created_at`

	// agg summarizes the active variants of p for filtering and ordering.
	productFromSQL = ` FROM products p
		LEFT JOIN brands b ON b.id = p.brand_id
		LEFT JOIN LATERAL (
			SELECT MIN(COALESCE(v.sale_price, v.price)) AS base_price,
				COALESCE(BOOL_OR(v.sale_price IS NOT NULL AND v.sale_price < v.price), FALSE) AS on_sale,
				COALESCE(BOOL_OR(s.quantity - s.reserved > 0), FALSE) AS in_stock
			FROM variants v
			LEFT JOIN stock s ON s.variant_id = v.id
			WHERE v.product_id = p.id AND v.is_active
		) agg ON TRUE`

	getProductBySlugSQL = `SELECT ` + productColumns + productFromSQL + ` WHERE p.slug = $1`

	insertProductSQL = `INSERT INTO products (id, name, slug, brand_id, description, short_description,
		is_active, is_featured, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	updateProductSQL = `UPDATE products SET name = $2, slug = $3, brand_id = $4, description = $5,
		short_description = $6, is_active = $7, is_featured = $8, updated_at = $9
		WHERE id = $1`

	deleteProductSQL = `DELETE FROM products WHERE slug = $1`

	linkCategoriesSQL = `INSERT INTO product_categories (product_id, category_id)
		SELECT $1, id FROM categories WHERE slug = ANY($2)`

	unlinkCategoriesSQL = `DELETE FROM product_categories WHERE product_id = $1`

	productCategoriesSQL = `SELECT pc.product_id, c.id, c.name, c.slug, c.description, c.parent_id, c.is_active, c.created_at
		FROM product_categories pc JOIN categories c ON c.id = pc.category_id
		WHERE pc.product_id = ANY($1)
		ORDER BY c.name`

	variantColumns = `v.id, v.product_id, p.name, v.sku, v.name, v.price, v.sale_price,
		v.color_code, v.weight_grams, v.is_active, v.created_at,
		COALESCE(s.quantity, 0), COALESCE(s.reserved, 0),
		COALESCE(s.low_stock_threshold, 5), COALESCE(s.updated_at, v.created_at)`

	variantFromSQL = ` FROM variants v
		JOIN products p ON p.id = v.product_id
		LEFT JOIN stock s ON s.variant_id = v.id`

	productVariantsSQL = `SELECT ` + variantColumns + variantFromSQL + `
		WHERE v.product_id = ANY($1)
		ORDER BY v.created_at, v.sku`

	variantsByIDSQL = `SELECT ` + variantColumns + variantFromSQL + ` WHERE v.id = ANY($1)`

	variantByIDSQL = `SELECT ` + variantColumns + variantFromSQL + ` WHERE v.id = $1`

	updateVariantSQL = `UPDATE variants SET sku = $2, name = $3, price = $4, sale_price = $5,
		color_code = $6, weight_grams = $7, is_active = $8
		WHERE id = $1`

	// Stock and attribute rows cascade; order items keep a NULL reference.
	deleteVariantSQL = `DELETE FROM variants WHERE id = $1`

	variantAttributesSQL = `SELECT va.variant_id, t.slug, t.name, va.value
		FROM variant_attributes va JOIN attribute_types t ON t.id = va.attribute_type_id
		WHERE va.variant_id = ANY($1)
		ORDER BY t.name`

	insertVariantAttributeSQL = `INSERT INTO variant_attributes (variant_id, attribute_type_id, value)
		SELECT $1, id, $3 FROM attribute_types WHERE slug = $2`

	clearVariantAttributesSQL = `DELETE FROM variant_attributes WHERE variant_id = $1`

	insertVariantSQL = `INSERT INTO variants (id, product_id, sku, name, price, sale_price,
		color_code, weight_grams, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	insertStockSQL = `INSERT INTO stock (variant_id, quantity, reserved, low_stock_threshold, updated_at)
		VALUES ($1, $2, $3, $4, $5)`
)

var productOrderings = map[string]string{
	catalog.OrderNameAsc:     "p.name ASC",
	catalog.OrderNameDesc:    "p.name DESC",
	catalog.OrderCreatedAsc:  "p.created_at ASC",
	catalog.OrderCreatedDesc: "p.created_at DESC",
	catalog.OrderPriceAsc:    "agg.base_price ASC NULLS LAST",
	catalog.OrderPriceDesc:   "agg.base_price DESC NULLS LAST",
}

var _ catalog.Repository = (*CatalogRepository)(nil)

// CatalogRepository implements catalog.Repository backed by PostgreSQL.
type CatalogRepository struct {
	pool *pgxpool.Pool
}

// NewCatalogRepository returns a CatalogRepository that uses the given pool.
func NewCatalogRepository(pool *pgxpool.Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

// ListBrands returns all brands ordered by name.
func (r *CatalogRepository) ListBrands(ctx context.Context) ([]catalog.Brand, error) {
	rows, err := r.pool.Query(ctx, listBrandsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing brands: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (catalog.Brand, error) {
		var b catalog.Brand
		err := row.Scan(&b.ID, &b.Name, &b.Slug, &b.Description, &b.IsActive, &b.CreatedAt)
		return b, err
	})
}

// CreateBrand stores a brand.
func (r *CatalogRepository) CreateBrand(ctx context.Context, b *catalog.Brand) error {
	_, err := r.pool.Exec(ctx, insertBrandSQL, b.ID, b.Name, b.Slug, b.Description, b.IsActive, b.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return catalog.ErrConflict
		}
		return fmt.Errorf("creating brand %q: %w", b.Slug, err)
	}
	return nil
}

// GetBrand returns a brand by slug.
func (r *CatalogRepository) GetBrand(ctx context.Context, slug string) (*catalog.Brand, error) {
	var b catalog.Brand
	err := r.pool.QueryRow(ctx, getBrandSQL, slug).
		Scan(&b.ID, &b.Name, &b.Slug, &b.Description, &b.IsActive, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrNotFound
		}
		return nil, fmt.Errorf("getting brand %q: %w", slug, err)
	}
	return &b, nil
}

// UpdateBrand overwrites a brand by id.
func (r *CatalogRepository) UpdateBrand(ctx context.Context, b *catalog.Brand) error {
	tag, err := r.pool.Exec(ctx, updateBrandSQL, b.ID, b.Name, b.Slug, b.Description, b.IsActive)
	if err != nil {
		if isUniqueViolation(err) {
			return catalog.ErrConflict
		}
		return fmt.Errorf("updating brand %q: %w", b.Slug, err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

// DeleteBrand removes a brand; its products keep a NULL brand.
func (r *CatalogRepository) DeleteBrand(ctx context.Context, slug string) error {
	return r.delete(ctx, deleteBrandSQL, slug, "brand")
}

// delete runs a single-row delete, mapping no match to catalog.ErrNotFound.
func (r *CatalogRepository) delete(ctx context.Context, sql, key, what string) error {
	tag, err := r.pool.Exec(ctx, sql, key)
	if err != nil {
		return fmt.Errorf("deleting %s %q: %w", what, key, err)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

// ListCategories returns all categories ordered by name.
func (r *CatalogRepository) ListCategories(ctx context.Context) ([]catalog.Category, error) {
	rows, err := r.pool.Query(ctx, listCategoriesSQL)
	if err != nil {
		return nil, fmt.Errorf("listing categories: %w", err)
	}
	return pgx.CollectRows(rows, scanCategory)
}

// CreateCategory stores a category.
func (r *CatalogRepository) CreateCategory(ctx context.Context, c *catalog.Category) error {
	_, err := r.pool.Exec(ctx, insertCategorySQL,
		c.ID, c.Name, c.Slug, c.Description, nullString(c.ParentID), c.IsActive, c.CreatedAt,
	)
	if err != nil {
		return categoryError(err, c)
	}
	return nil
}

// GetCategory returns a category by slug.
func (r *CatalogRepository) GetCategory(ctx context.Context, slug string) (*catalog.Category, error) {
	rows, err := r.pool.Query(ctx, getCategorySQL, slug)
	if err != nil {
		return nil, fmt.Errorf("getting category %q: %w", slug, err)
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCategory)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrNotFound
		}
		return nil, fmt.Errorf("getting category %q: %w", slug, err)
	}
	return &c, nil
}

// UpdateCategory overwrites a category by id.
func (r *CatalogRepository) UpdateCategory(ctx context.Context, c *catalog.Category) error {
	tag, err := r.pool.Exec(ctx, updateCategorySQL,
		c.ID, c.Name, c.Slug, c.Description, nullString(c.ParentID), c.IsActive,
	)
	if err != nil {
		return categoryError(err, c)
	}
	if tag.RowsAffected() == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

// DeleteCategory removes a category; children become top level.
func (r *CatalogRepository) DeleteCategory(ctx context.Context, slug string) error {
	return r.delete(ctx, deleteCategorySQL, slug, "category")
}

func categoryError(err error, c *catalog.Category) error {
	switch {
	case isUniqueViolation(err):
		return catalog.ErrConflict
	case isForeignKeyViolation(err):
		return &catalog.ValidationError{Field: "parent_id", Reason: "unknown category " + c.ParentID}
	}
	return fmt.Errorf("saving category %q: %w", c.Slug, err)
}

// ListAttributeTypes returns all attribute types ordered by name.
func (r *CatalogRepository) ListAttributeTypes(ctx context.Context) ([]catalog.AttributeType, error) {
	rows, err := r.pool.Query(ctx, listAttributeTypesSQL)
	if err != nil {
		return nil, fmt.Errorf("listing attribute types: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (catalog.AttributeType, error) {
		var t catalog.AttributeType
		err := row.Scan(&t.ID, &t.Name, &t.Slug, &t.CreatedAt)
		return t, err
	})
}

// CreateAttributeType stores an attribute type.
func (r *CatalogRepository) CreateAttributeType(ctx context.Context, t *catalog.AttributeType) error {
	if _, err := r.pool.Exec(ctx, insertAttributeTypeSQL, t.ID, t.Name, t.Slug, t.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return catalog.ErrConflict
		}
		return fmt.Errorf("creating attribute type %q: %w", t.Slug, err)
	}
	return nil
}

// ListProducts returns active products matching f with their variants and
// categories.
func (r *CatalogRepository) ListProducts(ctx context.Context, f catalog.ProductFilter) ([]catalog.Product, error) {
	sql, args := buildProductQuery(f)
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	if err := r.loadChildren(ctx, products); err != nil {
		return nil, err
	}
	return products, nil
}

// buildProductQuery renders the listing query for f. Values always travel as
// arguments; only fixed fragments are concatenated.
func buildProductQuery(f catalog.ProductFilter) (string, []any) {
	var (
		where = []string{"p.is_active"}
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if f.BrandSlug != "" {
		where = append(where, "b.slug = "+arg(f.BrandSlug))
	}
	if f.CategorySlug != "" {
		where = append(where, `EXISTS (SELECT 1 FROM product_categories pc
			JOIN categories c ON c.id = pc.category_id
			WHERE pc.product_id = p.id AND c.slug = `+arg(f.CategorySlug)+`)`)
	}
	if f.MinPrice != nil {
		where = append(where, "agg.base_price >= "+arg(*f.MinPrice))
	}
	if f.MaxPrice != nil {
		where = append(where, "agg.base_price <= "+arg(*f.MaxPrice))
	}
	if f.InStock {
		where = append(where, "agg.in_stock")
	}
	if f.OnSale {
		where = append(where, "agg.on_sale")
	}
	if f.NewSince != nil {
		where = append(where, "p.created_at >= "+arg(*f.NewSince))
	}
	if f.Featured {
		where = append(where, "p.is_featured")
	}
	if f.Search != "" {
		p := arg("%" + escapeLike(f.Search) + "%")
		where = append(where, "(p.name ILIKE "+p+" OR p.description ILIKE "+p+" OR b.name ILIKE "+p+")")
	}

	orderBy, ok := productOrderings[f.Ordering]
	if !ok {
		orderBy = productOrderings[catalog.OrderCreatedDesc]
	}

	var sb strings.Builder
	sb.WriteString("SELECT " + productColumns + productFromSQL)
	sb.WriteString(" WHERE " + strings.Join(where, " AND "))
	sb.WriteString(" ORDER BY " + orderBy + ", p.id")
	sb.WriteString(" LIMIT " + arg(f.Limit) + " OFFSET " + arg(f.Offset))
	return sb.String(), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// GetProductBySlug returns a product with all its variants.
func (r *CatalogRepository) GetProductBySlug(ctx context.Context, slug string) (*catalog.Product, error) {
	rows, err := r.pool.Query(ctx, getProductBySlugSQL, slug)
	if err != nil {
		return nil, fmt.Errorf("getting product %q: %w", slug, err)
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %q: %w", slug, err)
	}
	products := []catalog.Product{p}
	if err := r.loadChildren(ctx, products); err != nil {
		return nil, err
	}
	return &products[0], nil
}

func (r *CatalogRepository) loadChildren(ctx context.Context, products []catalog.Product) error {
	if len(products) == 0 {
		return nil
	}
	ids := make([]string, len(products))
	idx := make(map[string]int, len(products))
	for i, p := range products {
		ids[i] = p.ID
		idx[p.ID] = i
	}

	rows, err := r.pool.Query(ctx, productVariantsSQL, ids)
	if err != nil {
		return fmt.Errorf("getting variants: %w", err)
	}
	variants, err := pgx.CollectRows(rows, scanVariant)
	if err != nil {
		return fmt.Errorf("getting variants: %w", err)
	}
	if err := loadAttributes(ctx, r.pool, variants); err != nil {
		return err
	}
	for _, v := range variants {
		p := &products[idx[v.ProductID]]
		p.Variants = append(p.Variants, v)
	}

	rows, err = r.pool.Query(ctx, productCategoriesSQL, ids)
	if err != nil {
		return fmt.Errorf("getting product categories: %w", err)
	}
	type productCategory struct {
		productID string
		category  catalog.Category
	}
	links, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (productCategory, error) {
		var (
			pc       productCategory
			parentID *string
		)
		c := &pc.category
		err := row.Scan(&pc.productID, &c.ID, &c.Name, &c.Slug, &c.Description, &parentID, &c.IsActive, &c.CreatedAt)
		c.ParentID = fromNull(parentID)
		return pc, err
	})
	if err != nil {
		return fmt.Errorf("getting product categories: %w", err)
	}
	for _, l := range links {
		p := &products[idx[l.productID]]
		p.Categories = append(p.Categories, l.category)
	}
	return nil
}

// CreateProduct stores a product, its category links, variants and their
// stock rows in one transaction. Brand and categories are referenced by slug.
func (r *CatalogRepository) CreateProduct(ctx context.Context, p *catalog.Product) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		brandID, err := resolveBrand(ctx, tx, p)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, insertProductSQL,
			p.ID, p.Name, p.Slug, brandID, p.Description, p.ShortDescription,
			p.IsActive, p.IsFeatured, p.CreatedAt, p.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return catalog.ErrConflict
			}
			return fmt.Errorf("creating product %q: %w", p.Slug, err)
		}

		if err := linkCategories(ctx, tx, p); err != nil {
			return err
		}
		for i := range p.Variants {
			if err := insertVariant(ctx, tx, &p.Variants[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// UpdateProduct overwrites a product by id and replaces its category links.
// Variants are left alone.
func (r *CatalogRepository) UpdateProduct(ctx context.Context, p *catalog.Product) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		brandID, err := resolveBrand(ctx, tx, p)
		if err != nil {
			return err
		}

		tag, err := tx.Exec(ctx, updateProductSQL,
			p.ID, p.Name, p.Slug, brandID, p.Description, p.ShortDescription,
			p.IsActive, p.IsFeatured, p.UpdatedAt,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return catalog.ErrConflict
			}
			return fmt.Errorf("updating product %q: %w", p.Slug, err)
		}
		if tag.RowsAffected() == 0 {
			return catalog.ErrNotFound
		}

		if _, err := tx.Exec(ctx, unlinkCategoriesSQL, p.ID); err != nil {
			return fmt.Errorf("unlinking categories of product %q: %w", p.Slug, err)
		}
		return linkCategories(ctx, tx, p)
	})
}

// DeleteProduct removes a product with its variants, stock rows and
// category links.
func (r *CatalogRepository) DeleteProduct(ctx context.Context, slug string) error {
	return r.delete(ctx, deleteProductSQL, slug, "product")
}

// resolveBrand returns the id of the product's brand, or nil without one.
func resolveBrand(ctx context.Context, tx pgx.Tx, p *catalog.Product) (*string, error) {
	if p.Brand == nil || p.Brand.Slug == "" {
		return nil, nil
	}
	var id string
	if err := tx.QueryRow(ctx, brandIDBySlugSQL, p.Brand.Slug).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &catalog.ValidationError{Field: "brand", Reason: "unknown brand " + p.Brand.Slug}
		}
		return nil, fmt.Errorf("resolving brand %q: %w", p.Brand.Slug, err)
	}
	p.Brand.ID = id
	return &id, nil
}

func linkCategories(ctx context.Context, tx pgx.Tx, p *catalog.Product) error {
	if len(p.Categories) == 0 {
		return nil
	}
	slugs := make([]string, len(p.Categories))
	for i, c := range p.Categories {
		slugs[i] = c.Slug
	}
	tag, err := tx.Exec(ctx, linkCategoriesSQL, p.ID, slugs)
	if err != nil {
		return fmt.Errorf("linking categories of product %q: %w", p.Slug, err)
	}
	if int(tag.RowsAffected()) != len(slugs) {
		return &catalog.ValidationError{Field: "categories", Reason: "unknown category"}
	}
	return nil
}

// AddVariant stores a variant and its stock row.
func (r *CatalogRepository) AddVariant(ctx context.Context, v *catalog.Variant) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return insertVariant(ctx, tx, v)
	})
}

func insertVariant(ctx context.Context, tx pgx.Tx, v *catalog.Variant) error {
	_, err := tx.Exec(ctx, insertVariantSQL,
		v.ID, v.ProductID, v.SKU, v.Name, v.Price, v.SalePrice,
		v.ColorCode, v.WeightGrams, v.IsActive, v.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return catalog.ErrConflict
		}
		return fmt.Errorf("creating variant %q: %w", v.SKU, err)
	}
	s := v.Stock
	if _, err := tx.Exec(ctx, insertStockSQL, v.ID, s.Quantity, s.Reserved, s.LowStockThreshold, s.UpdatedAt); err != nil {
		return fmt.Errorf("creating stock of variant %q: %w", v.SKU, err)
	}
	return insertAttributes(ctx, tx, v)
}

// insertAttributes stores the attribute values of v, resolving types by slug.
func insertAttributes(ctx context.Context, tx pgx.Tx, v *catalog.Variant) error {
	if len(v.Attributes) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, a := range v.Attributes {
		batch.Queue(insertVariantAttributeSQL, v.ID, a.Type, a.Value)
	}
	br := tx.SendBatch(ctx, batch)
	defer func() { _ = br.Close() }()
	for _, a := range v.Attributes {
		tag, err := br.Exec()
		if err != nil {
			return fmt.Errorf("setting attribute %q of variant %q: %w", a.Type, v.SKU, err)
		}
		if tag.RowsAffected() != 1 {
			return &catalog.ValidationError{Field: "attributes", Reason: "unknown attribute type " + a.Type}
		}
	}
	return br.Close()
}

// loadAttributes fills the attributes of variants.
func loadAttributes(ctx context.Context, q querier, variants []catalog.Variant) error {
	if len(variants) == 0 {
		return nil
	}
	ids := make([]string, len(variants))
	idx := make(map[string]int, len(variants))
	for i, v := range variants {
		ids[i] = v.ID
		idx[v.ID] = i
	}

	rows, err := q.Query(ctx, variantAttributesSQL, ids)
	if err != nil {
		return fmt.Errorf("getting variant attributes: %w", err)
	}
	type variantAttribute struct {
		variantID string
		attr      catalog.Attribute
	}
	attrs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (variantAttribute, error) {
		var va variantAttribute
		err := row.Scan(&va.variantID, &va.attr.Type, &va.attr.Name, &va.attr.Value)
		return va, err
	})
	if err != nil {
		return fmt.Errorf("getting variant attributes: %w", err)
	}
	for _, a := range attrs {
		v := &variants[idx[a.variantID]]
		v.Attributes = append(v.Attributes, a.attr)
	}
	return nil
}

// GetVariant returns a variant with its stock and attributes.
func (r *CatalogRepository) GetVariant(ctx context.Context, id string) (*catalog.Variant, error) {
	rows, err := r.pool.Query(ctx, variantByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting variant %q: %w", id, err)
	}
	v, err := pgx.CollectExactlyOneRow(rows, scanVariant)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrNotFound
		}
		return nil, fmt.Errorf("getting variant %q: %w", id, err)
	}
	variants := []catalog.Variant{v}
	if err := loadAttributes(ctx, r.pool, variants); err != nil {
		return nil, err
	}
	return &variants[0], nil
}

// UpdateVariant overwrites a variant by id and replaces its attributes. The
// stock row is not touched.
func (r *CatalogRepository) UpdateVariant(ctx context.Context, v *catalog.Variant) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, updateVariantSQL,
			v.ID, v.SKU, v.Name, v.Price, v.SalePrice, v.ColorCode, v.WeightGrams, v.IsActive,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return catalog.ErrConflict
			}
			return fmt.Errorf("updating variant %q: %w", v.ID, err)
		}
		if tag.RowsAffected() == 0 {
			return catalog.ErrNotFound
		}
		if _, err := tx.Exec(ctx, clearVariantAttributesSQL, v.ID); err != nil {
			return fmt.Errorf("clearing attributes of variant %q: %w", v.ID, err)
		}
		return insertAttributes(ctx, tx, v)
	})
}

// DeleteVariant removes a variant with its stock row.
func (r *CatalogRepository) DeleteVariant(ctx context.Context, id string) error {
	return r.delete(ctx, deleteVariantSQL, id, "variant")
}

// GetVariants returns variants by id with their product names and stock.
func (r *CatalogRepository) GetVariants(ctx context.Context, ids []string) ([]catalog.Variant, error) {
	rows, err := r.pool.Query(ctx, variantsByIDSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting variants by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanVariant)
}

func scanProduct(row pgx.CollectableRow) (catalog.Product, error) {
	var (
		p     catalog.Product
		brand struct {
			id, name, slug, description *string
			active                      *bool
			createdAt                   *time.Time
		}
	)
	err := row.Scan(
		&p.ID, &p.Name, &p.Slug, &p.Description, &p.ShortDescription,
		&p.IsActive, &p.IsFeatured, &p.CreatedAt, &p.UpdatedAt,
		&brand.id, &brand.name, &brand.slug, &brand.description, &brand.active, &brand.createdAt,
	)
	if err != nil {
		return p, err
	}
	if brand.id != nil {
		p.Brand = &catalog.Brand{
			ID:          *brand.id,
			Name:        fromNull(brand.name),
			Slug:        fromNull(brand.slug),
			Description: fromNull(brand.description),
			IsActive:    brand.active != nil && *brand.active,
		}
		if brand.createdAt != nil {
			p.Brand.CreatedAt = *brand.createdAt
		}
	}
	return p, nil
}

func scanCategory(row pgx.CollectableRow) (catalog.Category, error) {
	var (
		c        catalog.Category
		parentID *string
	)
	err := row.Scan(&c.ID, &c.Name, &c.Slug, &c.Description, &parentID, &c.IsActive, &c.CreatedAt)
	c.ParentID = fromNull(parentID)
	return c, err
}

func scanVariant(row pgx.CollectableRow) (catalog.Variant, error) {
	var (
		v         catalog.Variant
		salePrice *decimal.Decimal
	)
	err := row.Scan(
		&v.ID, &v.ProductID, &v.ProductName, &v.SKU, &v.Name, &v.Price, &salePrice,
		&v.ColorCode, &v.WeightGrams, &v.IsActive, &v.CreatedAt,
		&v.Stock.Quantity, &v.Stock.Reserved, &v.Stock.LowStockThreshold, &v.Stock.UpdatedAt,
	)
	v.SalePrice = salePrice
	v.Stock.VariantID = v.ID
	v.Stock.SKU = v.SKU
	return v, err
}
