package catalog

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xenking/beauty-shop/internal/domain/inventory"
)

var validOrderings = []string{
	OrderNameAsc, OrderNameDesc,
	OrderCreatedAsc, OrderCreatedDesc,
	OrderPriceAsc, OrderPriceDesc,
}

// Service implements catalog browsing and administration.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a catalog Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// ListBrands returns all brands.
func (s *Service) ListBrands(ctx context.Context) ([]Brand, error) {
	return s.repo.ListBrands(ctx)
}

// CreateBrand validates and stores a brand, deriving the slug from the name
// when empty.
func (s *Service) CreateBrand(ctx context.Context, b *Brand) error {
	if err := validateNamed(b.Name, &b.Slug); err != nil {
		return err
	}
	b.ID = uuid.NewString()
	b.CreatedAt = s.now()
	if err := s.repo.CreateBrand(ctx, b); err != nil {
		return errors.Wrap(err, "create brand")
	}
	return nil
}

// ListCategories returns all categories.
func (s *Service) ListCategories(ctx context.Context) ([]Category, error) {
	return s.repo.ListCategories(ctx)
}

// CreateCategory validates and stores a category.
func (s *Service) CreateCategory(ctx context.Context, c *Category) error {
	if err := validateNamed(c.Name, &c.Slug); err != nil {
		return err
	}
	c.ID = uuid.NewString()
	c.CreatedAt = s.now()
	if err := s.repo.CreateCategory(ctx, c); err != nil {
		return errors.Wrap(err, "create category")
	}
	return nil
}

// ListAttributeTypes returns all attribute types.
func (s *Service) ListAttributeTypes(ctx context.Context) ([]AttributeType, error) {
	return s.repo.ListAttributeTypes(ctx)
}

// CreateAttributeType validates and stores an attribute type.
func (s *Service) CreateAttributeType(ctx context.Context, t *AttributeType) error {
	if err := validateNamed(t.Name, &t.Slug); err != nil {
		return err
	}
	t.ID = uuid.NewString()
	t.CreatedAt = s.now()
	if err := s.repo.CreateAttributeType(ctx, t); err != nil {
		return errors.Wrap(err, "create attribute type")
	}
	return nil
}

// NormalizeFilter applies defaults and bounds to f.
func NormalizeFilter(f ProductFilter) (ProductFilter, error) {
	if f.Ordering == "" {
		f.Ordering = OrderCreatedDesc
	}
	if !slices.Contains(validOrderings, f.Ordering) {
		return f, &ValidationError{Field: "ordering", Reason: "unsupported value " + f.Ordering}
	}
	if f.MinPrice != nil && f.MaxPrice != nil && f.MinPrice.GreaterThan(*f.MaxPrice) {
		return f, &ValidationError{Field: "min_price", Reason: "greater than max_price"}
	}
	if f.Limit <= 0 {
		f.Limit = DefaultListLimit
	}
	f.Limit = min(f.Limit, MaxListLimit)
	f.Offset = max(f.Offset, 0)
	f.Search = strings.TrimSpace(f.Search)
	return f, nil
}

// ListProducts returns active products matching f.
func (s *Service) ListProducts(ctx context.Context, f ProductFilter) ([]Product, error) {
	f, err := NormalizeFilter(f)
	if err != nil {
		return nil, err
	}
	return s.repo.ListProducts(ctx, f)
}

// NewSince returns the cutoff for the "new products" filter.
func (s *Service) NewSince() time.Time {
	return s.now().Add(-NewProductWindow)
}

// GetProduct returns a product by slug.
func (s *Service) GetProduct(ctx context.Context, slug string) (*Product, error) {
	return s.repo.GetProductBySlug(ctx, slug)
}

// CreateProduct validates and stores a product with its variants. Every
// variant gets a stock row seeded from Variant.Stock.
func (s *Service) CreateProduct(ctx context.Context, p *Product) error {
	if err := validateNamed(p.Name, &p.Slug); err != nil {
		return err
	}

	now := s.now()
	p.ID = uuid.NewString()
	p.CreatedAt = now
	p.UpdatedAt = now

	skus := make(map[string]struct{}, len(p.Variants))
	for i := range p.Variants {
		v := &p.Variants[i]
		if err := ValidateVariant(v); err != nil {
			return err
		}
		if _, dup := skus[v.SKU]; dup {
			return &ValidationError{Field: "sku", Reason: "duplicate " + v.SKU}
		}
		skus[v.SKU] = struct{}{}
		s.prepareVariant(p.ID, v, now)
	}

	if err := s.repo.CreateProduct(ctx, p); err != nil {
		return errors.Wrap(err, "create product")
	}
	zctx.From(ctx).Info("Product created",
		zap.String("product_id", p.ID),
		zap.String("slug", p.Slug),
		zap.Int("variants", len(p.Variants)),
	)
	return nil
}

// AddVariant adds a variant to the product identified by slug.
func (s *Service) AddVariant(ctx context.Context, slug string, v *Variant) (*Product, error) {
	if err := ValidateVariant(v); err != nil {
		return nil, err
	}
	p, err := s.repo.GetProductBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	s.prepareVariant(p.ID, v, s.now())
	v.ProductName = p.Name
	if err := s.repo.AddVariant(ctx, v); err != nil {
		return nil, errors.Wrap(err, "add variant")
	}
	p.Variants = append(p.Variants, *v)
	return p, nil
}

func (s *Service) prepareVariant(productID string, v *Variant, now time.Time) {
	v.ID = uuid.NewString()
	v.ProductID = productID
	v.CreatedAt = now
	v.Stock.VariantID = v.ID
	v.Stock.SKU = v.SKU
	v.Stock.Reserved = 0
	v.Stock.UpdatedAt = now
	if v.Stock.LowStockThreshold == 0 {
		v.Stock.LowStockThreshold = inventory.DefaultLowStockThreshold
	}
}

// CheckStock returns the availability of every active variant of a product.
func (s *Service) CheckStock(ctx context.Context, slug string) ([]StockLevel, error) {
	p, err := s.repo.GetProductBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	levels := make([]StockLevel, 0, len(p.Variants))
	for _, v := range p.Variants {
		if !v.IsActive {
			continue
		}
		levels = append(levels, StockLevel{
			VariantID:    v.ID,
			SKU:          v.SKU,
			Available:    v.Stock.Available(),
			IsOutOfStock: v.Stock.IsOutOfStock(),
			IsLowStock:   v.Stock.IsLowStock(),
		})
	}
	return levels, nil
}

// GetVariants returns variants by id with their product names.
func (s *Service) GetVariants(ctx context.Context, ids []string) ([]Variant, error) {
	return s.repo.GetVariants(ctx, ids)
}
