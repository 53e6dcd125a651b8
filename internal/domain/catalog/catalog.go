// Package catalog holds brands, categories, products and their variants.
package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/beauty-shop/internal/domain/inventory"
)

var (
	// ErrNotFound is returned when a requested catalog entry does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a slug or SKU is already taken.
	ErrConflict = errors.New("already exists")
)

// ValidationError describes an invalid catalog field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Brand is a product manufacturer.
type Brand struct {
	ID          string
	Name        string
	Slug        string
	Description string
	IsActive    bool
	CreatedAt   time.Time
}

// Category groups products; categories may nest through ParentID.
type Category struct {
	ID          string
	Name        string
	Slug        string
	Description string
	ParentID    string
	IsActive    bool
	CreatedAt   time.Time
}

// AttributeType names a variant property such as shade, size or finish.
type AttributeType struct {
	ID        string
	Name      string
	Slug      string
	CreatedAt time.Time
}

// Attribute is the value of one attribute type on a variant. Type is the
// attribute type slug; Name is filled on reads.
type Attribute struct {
	Type  string
	Name  string
	Value string
}

// Variant is a purchasable shade or size of a product. ProductName is filled
// on lookups made for checkout.
type Variant struct {
	ID          string
	ProductID   string
	ProductName string
	SKU         string
	Name        string
	Price       decimal.Decimal
	SalePrice   *decimal.Decimal
	ColorCode   string
	WeightGrams int
	IsActive    bool
	Attributes  []Attribute
	Stock       inventory.Stock
	CreatedAt   time.Time
}

// EffectivePrice is the sale price when set, otherwise the list price.
func (v Variant) EffectivePrice() decimal.Decimal {
	if v.SalePrice != nil {
		return *v.SalePrice
	}
	return v.Price
}

// IsOnSale reports whether the variant has a sale price below its list price.
func (v Variant) IsOnSale() bool {
	return v.SalePrice != nil && v.SalePrice.LessThan(v.Price)
}

// Product is a catalog item with its variants.
type Product struct {
	ID               string
	Name             string
	Slug             string
	Brand            *Brand
	Categories       []Category
	Description      string
	ShortDescription string
	IsActive         bool
	IsFeatured       bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
	Variants         []Variant
}

// BasePrice is the lowest effective price among active variants, or nil.
func (p Product) BasePrice() *decimal.Decimal {
	var lowest *decimal.Decimal
	for _, v := range p.Variants {
		if !v.IsActive {
			continue
		}
		price := v.EffectivePrice()
		if lowest == nil || price.LessThan(*lowest) {
			lowest = &price
		}
	}
	return lowest
}

// InStock reports whether any active variant has available units.
func (p Product) InStock() bool {
	for _, v := range p.Variants {
		if v.IsActive && !v.Stock.IsOutOfStock() {
			return true
		}
	}
	return false
}

// IsNew reports whether the product was created within NewProductWindow.
func (p Product) IsNew(now time.Time) bool {
	return now.Sub(p.CreatedAt) <= NewProductWindow
}

// NewProductWindow is how long a product counts as new.
const NewProductWindow = 30 * 24 * time.Hour

// Ordering values accepted by ProductFilter.
const (
	OrderNameAsc     = "name"
	OrderNameDesc    = "-name"
	OrderCreatedAsc  = "created_at"
	OrderCreatedDesc = "-created_at"
	OrderPriceAsc    = "price"
	OrderPriceDesc   = "-price"
)

// Listing page size bounds.
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// ProductFilter narrows product listings. Zero values disable a filter.
type ProductFilter struct {
	BrandSlug    string
	CategorySlug string
	MinPrice     *decimal.Decimal
	MaxPrice     *decimal.Decimal
	InStock      bool
	OnSale       bool
	NewSince     *time.Time
	Featured     bool
	Search       string
	Ordering     string
	Limit        int
	Offset       int
}

// StockLevel is the public availability of one variant.
type StockLevel struct {
	VariantID    string
	SKU          string
	Available    int
	IsOutOfStock bool
	IsLowStock   bool
}

// Repository persists catalog entries. CreateProduct and AddVariant create
// the stock row of every variant from Variant.Stock. Updates address rows by
// ID; lookups and deletes by slug, except for variants. Deleting a variant
// drops its stock row and detaches it from order items.
type Repository interface {
	ListBrands(ctx context.Context) ([]Brand, error)
	GetBrand(ctx context.Context, slug string) (*Brand, error)
	CreateBrand(ctx context.Context, b *Brand) error
	UpdateBrand(ctx context.Context, b *Brand) error
	DeleteBrand(ctx context.Context, slug string) error

	ListCategories(ctx context.Context) ([]Category, error)
	GetCategory(ctx context.Context, slug string) (*Category, error)
	CreateCategory(ctx context.Context, c *Category) error
	UpdateCategory(ctx context.Context, c *Category) error
	DeleteCategory(ctx context.Context, slug string) error

	ListAttributeTypes(ctx context.Context) ([]AttributeType, error)
	CreateAttributeType(ctx context.Context, t *AttributeType) error

	ListProducts(ctx context.Context, f ProductFilter) ([]Product, error)
	GetProductBySlug(ctx context.Context, slug string) (*Product, error)
	CreateProduct(ctx context.Context, p *Product) error
	UpdateProduct(ctx context.Context, p *Product) error
	DeleteProduct(ctx context.Context, slug string) error

	AddVariant(ctx context.Context, v *Variant) error
	GetVariant(ctx context.Context, id string) (*Variant, error)
	GetVariants(ctx context.Context, ids []string) ([]Variant, error)
	UpdateVariant(ctx context.Context, v *Variant) error
	DeleteVariant(ctx context.Context, id string) error
}
