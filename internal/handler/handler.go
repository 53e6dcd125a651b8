// Package handler exposes the shop over REST. Requests and responses are
// encoded with jx; routes are registered on a standard ServeMux.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/beauty-shop/internal/domain/auth"
	"github.com/xenking/beauty-shop/internal/domain/catalog"
	"github.com/xenking/beauty-shop/internal/domain/coupon"
	"github.com/xenking/beauty-shop/internal/domain/inventory"
	"github.com/xenking/beauty-shop/internal/domain/order"
	"github.com/xenking/beauty-shop/internal/domain/refund"
	"github.com/xenking/beauty-shop/internal/domain/shipping"
)

// CatalogService is the catalog surface used by the handlers.
type CatalogService interface {
	ListBrands(ctx context.Context) ([]catalog.Brand, error)
	CreateBrand(ctx context.Context, b *catalog.Brand) error
	UpdateBrand(ctx context.Context, slug string, patch catalog.BrandPatch) (*catalog.Brand, error)
	DeleteBrand(ctx context.Context, slug string) error
	ListCategories(ctx context.Context) ([]catalog.Category, error)
	CreateCategory(ctx context.Context, c *catalog.Category) error
	UpdateCategory(ctx context.Context, slug string, patch catalog.CategoryPatch) (*catalog.Category, error)
	DeleteCategory(ctx context.Context, slug string) error
	ListAttributeTypes(ctx context.Context) ([]catalog.AttributeType, error)
	CreateAttributeType(ctx context.Context, t *catalog.AttributeType) error
	ListProducts(ctx context.Context, f catalog.ProductFilter) ([]catalog.Product, error)
	GetProduct(ctx context.Context, slug string) (*catalog.Product, error)
	CreateProduct(ctx context.Context, p *catalog.Product) error
	UpdateProduct(ctx context.Context, slug string, patch catalog.ProductPatch) (*catalog.Product, error)
	DeleteProduct(ctx context.Context, slug string) error
	AddVariant(ctx context.Context, slug string, v *catalog.Variant) (*catalog.Product, error)
	CheckStock(ctx context.Context, slug string) ([]catalog.StockLevel, error)
	GetVariant(ctx context.Context, id string) (*catalog.Variant, error)
	UpdateVariant(ctx context.Context, id string, patch catalog.VariantPatch) (*catalog.Variant, error)
	DeleteVariant(ctx context.Context, id string) error
	NewSince() time.Time
}

// InventoryService is the stock ledger surface used by the handlers.
type InventoryService interface {
	Get(ctx context.Context, variantID string) (*inventory.Stock, error)
	List(ctx context.Context, f inventory.Filter) ([]inventory.Stock, error)
	Apply(ctx context.Context, op inventory.Op, variantID string, qty int) (*inventory.Stock, error)
	Adjust(ctx context.Context, variantID string, adj inventory.Adjustment) (*inventory.Stock, error)
}

// OrderService is the order surface used by the handlers.
type OrderService interface {
	Place(ctx context.Context, req order.PlaceOrderRequest) (*order.PlaceOrderResult, error)
	Get(ctx context.Context, id string) (*order.Order, error)
	List(ctx context.Context, f order.Filter) ([]order.Order, error)
	Cancel(ctx context.Context, id string) (*order.Order, error)
	UpdateStatus(ctx context.Context, id string, status order.Status) (*order.Order, error)
	StartPayment(ctx context.Context, id string) (*order.Order, error)
	MarkPaid(ctx context.Context, id, transactionID string) (*order.Order, error)
}

// RefundService is the refund surface used by the handlers.
type RefundService interface {
	Create(ctx context.Context, req refund.CreateRequest) (*refund.Refund, error)
	Get(ctx context.Context, id string) (*refund.Refund, error)
	ListByOrder(ctx context.Context, orderID string) ([]refund.Refund, error)
	Approve(ctx context.Context, id string) (*refund.Refund, error)
	Reject(ctx context.Context, id string) (*refund.Refund, error)
}

// CouponService is the coupon surface used by the handlers.
type CouponService interface {
	List(ctx context.Context) ([]coupon.Rule, error)
	Create(ctx context.Context, r *coupon.Rule) error
	Update(ctx context.Context, code string, patch coupon.RulePatch) (*coupon.Rule, error)
	Delete(ctx context.Context, code string) error
	Validate(ctx context.Context, code string, subtotal decimal.Decimal) (*coupon.Discount, error)
}

// ShippingService is the shipping surface used by the handlers.
type ShippingService interface {
	List(ctx context.Context) ([]shipping.Rate, error)
	Create(ctx context.Context, r *shipping.Rate) error
	Calculate(ctx context.Context, city, department string, subtotal decimal.Decimal) (*shipping.Quote, error)
}

// Authenticator resolves API keys.
type Authenticator interface {
	Authenticate(ctx context.Context, key string) (*auth.APIKeyInfo, error)
}

// Idempotency guards checkout retries. Result is the id of the order placed
// by the first request.
type Idempotency interface {
	Begin(ctx context.Context, key string) (result string, claimed bool, err error)
	Complete(ctx context.Context, key, result string) error
	Abort(ctx context.Context, key string) error
}

// Services bundles the domain services behind the API.
type Services struct {
	Catalog   CatalogService
	Inventory InventoryService
	Orders    OrderService
	Refunds   RefundService
	Coupons   CouponService
	Shipping  ShippingService
}

// Handler serves the REST API.
type Handler struct {
	svc         Services
	auth        Authenticator
	idempotency Idempotency
}

// Option configures a Handler.
type Option func(*Handler)

// WithIdempotency enables Idempotency-Key handling on checkout.
func WithIdempotency(i Idempotency) Option {
	return func(h *Handler) { h.idempotency = i }
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(svc Services, authn Authenticator, opts ...Option) *Handler {
	h := &Handler{svc: svc, auth: authn}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Register adds every API route to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	public := func(pattern string, fn http.HandlerFunc) { mux.Handle(pattern, fn) }
	orders := func(pattern string, fn http.HandlerFunc) { mux.Handle(pattern, h.require(auth.ScopeOrders, fn)) }
	admin := func(pattern string, fn http.HandlerFunc) { mux.Handle(pattern, h.require(auth.ScopeAdmin, fn)) }

	public("GET /api/brands", h.listBrands)
	admin("POST /api/brands", h.createBrand)
	admin("PATCH /api/brands/{slug}", h.updateBrand)
	admin("DELETE /api/brands/{slug}", h.deleteBrand)
	public("GET /api/categories", h.listCategories)
	admin("POST /api/categories", h.createCategory)
	admin("PATCH /api/categories/{slug}", h.updateCategory)
	admin("DELETE /api/categories/{slug}", h.deleteCategory)
	public("GET /api/attribute-types", h.listAttributeTypes)
	admin("POST /api/attribute-types", h.createAttributeType)
	public("GET /api/products", h.listProducts)
	admin("POST /api/products", h.createProduct)
	public("GET /api/products/{slug}", h.getProduct)
	admin("PATCH /api/products/{slug}", h.updateProduct)
	admin("DELETE /api/products/{slug}", h.deleteProduct)
	admin("POST /api/products/{slug}/variants", h.addVariant)
	public("GET /api/products/{slug}/stock", h.checkStock)
	public("GET /api/variants/{id}", h.getVariant)
	admin("PATCH /api/variants/{id}", h.updateVariant)
	admin("DELETE /api/variants/{id}", h.deleteVariant)

	admin("GET /api/inventory/stock", h.listStock)
	admin("GET /api/inventory/stock/{variantID}", h.getStock)
	admin("PATCH /api/inventory/stock/{variantID}", h.adjustStock)
	admin("POST /api/inventory/stock/{variantID}/{op}", h.applyStock)

	orders("POST /api/orders", h.placeOrder)
	admin("GET /api/orders", h.listOrders)
	orders("GET /api/orders/{id}", h.getOrder)
	orders("POST /api/orders/{id}/start-payment", h.startPayment)
	admin("POST /api/orders/{id}/cancel", h.cancelOrder)
	admin("POST /api/orders/{id}/status", h.updateOrderStatus)
	admin("POST /api/orders/{id}/paid", h.markPaid)
	admin("GET /api/orders/{id}/refunds", h.listOrderRefunds)

	admin("POST /api/refunds", h.createRefund)
	admin("GET /api/refunds/{id}", h.getRefund)
	admin("POST /api/refunds/{id}/approve", h.approveRefund)
	admin("POST /api/refunds/{id}/reject", h.rejectRefund)

	admin("GET /api/coupons", h.listCoupons)
	admin("POST /api/coupons", h.createCoupon)
	admin("PATCH /api/coupons/{code}", h.updateCoupon)
	admin("DELETE /api/coupons/{code}", h.deleteCoupon)
	public("POST /api/coupons/validate", h.validateCoupon)

	admin("GET /api/shipping/rates", h.listRates)
	admin("POST /api/shipping/rates", h.createRate)
	public("POST /api/shipping/calculate", h.calculateShipping)
}
