package shipping

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

var testRates = []Rate{
	{ID: "bogota", Name: "Bogota", City: "Bogotá", Department: "Cundinamarca", Price: decimal.NewFromInt(8000),
		FreeShippingFrom: dec("150000"), EstimatedDaysMin: 1, EstimatedDaysMax: 2, IsActive: true},
	{ID: "antioquia", Name: "Antioquia", Department: "Antioquia", Price: decimal.NewFromInt(12000),
		EstimatedDaysMin: 2, EstimatedDaysMax: 4, IsActive: true},
	{ID: "cali-old", Name: "Cali", City: "Cali", Price: decimal.NewFromInt(1), IsActive: false},
	{ID: "default", Name: "National", Price: decimal.NewFromInt(15000),
		EstimatedDaysMin: 3, EstimatedDaysMax: 6, IsActive: true, IsDefault: true},
}

func TestSelect(t *testing.T) {
	tests := []struct {
		name       string
		city       string
		department string
		wantID     string
	}{
		{"exact city, case and space insensitive", "  BOGOTÁ ", "", "bogota"},
		{"city wins over department", "Bogotá", "Antioquia", "bogota"},
		{"department rate", "Medellín", "antioquia", "antioquia"},
		{"inactive city rate skipped", "Cali", "Valle", "default"},
		{"default", "Pasto", "Nariño", "default"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Select(testRates, tt.city, tt.department)
			require.NotNil(t, got)
			assert.Equal(t, tt.wantID, got.ID)
		})
	}
}

func TestSelect_DepartmentRateNeedsEmptyCity(t *testing.T) {
	rates := []Rate{{ID: "x", City: "Envigado", Department: "Antioquia", IsActive: true}}
	assert.Nil(t, Select(rates, "Medellín", "Antioquia"))
}

func TestNewQuote(t *testing.T) {
	bogota := &testRates[0]

	t.Run("free shipping at threshold", func(t *testing.T) {
		q := NewQuote(bogota, decimal.NewFromInt(150000))
		assert.True(t, q.IsFree)
		assert.True(t, q.Price.IsZero())
		assert.Equal(t, "Free shipping!", q.Message)
	})

	t.Run("below threshold", func(t *testing.T) {
		q := NewQuote(bogota, decimal.NewFromInt(100000))
		assert.False(t, q.IsFree)
		assert.True(t, decimal.NewFromInt(8000).Equal(q.Price))
		assert.Equal(t, "Add $50000 more for free shipping", q.Message)
		assert.Equal(t, "1 to 2 business days", q.EstimatedDelivery())
	})

	t.Run("no threshold", func(t *testing.T) {
		q := NewQuote(&testRates[1], decimal.NewFromInt(1))
		assert.Equal(t, "Shipping to Antioquia", q.Message)
	})

	t.Run("no coverage", func(t *testing.T) {
		q := NewQuote(nil, decimal.NewFromInt(1))
		assert.Nil(t, q.Rate)
		assert.True(t, q.Price.IsZero())
		assert.False(t, q.IsFree)
		assert.Equal(t, 5, q.EstimatedDaysMin)
		assert.Equal(t, 10, q.EstimatedDaysMax)
	})
}

func TestQuote_EstimatedDeliverySingleDay(t *testing.T) {
	assert.Equal(t, "1 business day", Quote{EstimatedDaysMin: 1, EstimatedDaysMax: 1}.EstimatedDelivery())
	assert.Equal(t, "3 business days", Quote{EstimatedDaysMin: 3, EstimatedDaysMax: 3}.EstimatedDelivery())
}

type mockRateRepo struct {
	rates   []Rate
	err     error
	created *Rate
}

func (m *mockRateRepo) ListActive(context.Context) ([]Rate, error) { return m.rates, m.err }
func (m *mockRateRepo) List(context.Context) ([]Rate, error) { return m.rates, m.err }
func (m *mockRateRepo) Create(_ context.Context, r *Rate) error {
	m.created = r
	return m.err
}

func TestCalculator_Calculate(t *testing.T) {
	c := NewCalculator(&mockRateRepo{rates: testRates})

	q, err := c.Calculate(context.Background(), "Pasto", "", decimal.NewFromInt(10))
	require.NoError(t, err)
	require.NotNil(t, q.Rate)
	assert.Equal(t, "default", q.Rate.ID)
}

func TestCalculator_RepoError(t *testing.T) {
	c := NewCalculator(&mockRateRepo{err: errors.New("db down")})

	_, err := c.Calculate(context.Background(), "Pasto", "", decimal.NewFromInt(10))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list shipping rates")
}

func TestCalculator_Create(t *testing.T) {
	repo := &mockRateRepo{}
	c := NewCalculator(repo)

	err := c.Create(context.Background(), &Rate{Name: "Bad", Price: decimal.NewFromInt(-1)})
	require.ErrorIs(t, err, ErrInvalidRate)

	r := &Rate{Name: "Ok", Price: decimal.NewFromInt(1), EstimatedDaysMin: 1, EstimatedDaysMax: 3, IsActive: true}
	require.NoError(t, c.Create(context.Background(), r))
	assert.NotEmpty(t, repo.created.ID)
}
