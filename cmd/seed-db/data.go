package main

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/beauty-shop/internal/domain/catalog"
	"github.com/xenking/beauty-shop/internal/domain/coupon"
	"github.com/xenking/beauty-shop/internal/domain/inventory"
	"github.com/xenking/beauty-shop/internal/domain/shipping"
)

var brands = []catalog.Brand{
	{Name: "Lumière Labs", Description: "Clean skincare made in small batches", IsActive: true},
	{Name: "Rosa Bonita", Description: "Long-wear color cosmetics", IsActive: true},
	{Name: "Andes Botanics", Description: "Plant based body care", IsActive: true},
}

var categories = []catalog.Category{
	{Name: "Skincare", IsActive: true},
	{Name: "Makeup", IsActive: true},
	{Name: "Body", IsActive: true},
}

func price(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func optPrice(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func variant(sku, name, p string, salePrice *decimal.Decimal, color string, qty int) catalog.Variant {
	return catalog.Variant{
		SKU:       sku,
		Name:      name,
		Price:     price(p),
		SalePrice: salePrice,
		ColorCode: color,
		IsActive:  true,
		Stock:     inventory.Stock{Quantity: qty, LowStockThreshold: inventory.DefaultLowStockThreshold},
	}
}

func products() []catalog.Product {
	return []catalog.Product{
		{
			Name:             "Velvet Matte Lipstick",
			Brand:            &catalog.Brand{Slug: "rosa-bonita"},
			Categories:       []catalog.Category{{Slug: "makeup"}},
			ShortDescription: "Weightless matte color that lasts all day",
			Description:      "A creamy matte formula with shea butter. Twelve hours of wear without drying.",
			IsActive:         true,
			IsFeatured:       true,
			Variants: []catalog.Variant{
				variant("RB-LIP-RUBY", "Ruby", "19.90", nil, "#9B111E", 40),
				variant("RB-LIP-NUDE", "Nude Rose", "19.90", optPrice("15.90"), "#C08081", 25),
				variant("RB-LIP-PLUM", "Plum", "19.90", nil, "#673147", 3),
			},
		},
		{
			Name:             "Vitamin C Brightening Serum",
			Brand:            &catalog.Brand{Slug: "lumiere-labs"},
			Categories:       []catalog.Category{{Slug: "skincare"}},
			ShortDescription: "15% vitamin C with ferulic acid",
			Description:      "Evens skin tone and protects against environmental stress. Use every morning before sunscreen.",
			IsActive:         true,
			IsFeatured:       true,
			Variants: []catalog.Variant{
				variant("LL-SER-C-30", "30 ml", "48.00", optPrice("39.00"), "", 60),
				variant("LL-SER-C-50", "50 ml", "72.00", nil, "", 20),
			},
		},
		{
			Name:             "Hydrating Gel Cream",
			Brand:            &catalog.Brand{Slug: "lumiere-labs"},
			Categories:       []catalog.Category{{Slug: "skincare"}},
			ShortDescription: "Oil-free moisture for every skin type",
			IsActive:         true,
			Variants: []catalog.Variant{
				variant("LL-GEL-50", "50 ml", "32.50", nil, "", 80),
			},
		},
		{
			Name:             "Coffee Body Scrub",
			Brand:            &catalog.Brand{Slug: "andes-botanics"},
			Categories:       []catalog.Category{{Slug: "body"}},
			ShortDescription: "Exfoliating scrub with Colombian coffee",
			IsActive:         true,
			Variants: []catalog.Variant{
				variant("AB-SCRUB-200", "200 g", "24.00", nil, "", 35),
				variant("AB-SCRUB-400", "400 g", "39.00", nil, "", 0),
			},
		},
	}
}

func coupons() []coupon.Rule {
	flashEnds := time.Now().AddDate(0, 0, 7).UTC()
	return []coupon.Rule{
		{
			Code:         "WELCOME10",
			DiscountType: coupon.DiscountPercentage,
			Value:        price("10"),
			MaxDiscount:  price("30"),
			Description:  "10% off your first order, up to $30",
			Active:       true,
		},
		{
			Code:           "GLOW15",
			DiscountType:   coupon.DiscountFixed,
			Value:          price("15"),
			MinOrderAmount: price("80"),
			MaxUses:        500,
			Description:    "$15 off orders over $80",
			Active:         true,
		},
		{
			Code:         "FLASH25",
			DiscountType: coupon.DiscountPercentage,
			Value:        price("25"),
			MaxUses:      100,
			ValidUntil:   &flashEnds,
			Description:  "Flash sale: 25% off this week",
			Active:       true,
		},
	}
}

func shippingRates() []shipping.Rate {
	return []shipping.Rate{
		{
			Name: "Medellín", City: "Medellín", Department: "Antioquia",
			Price: price("8.00"), FreeShippingFrom: optPrice("150.00"),
			EstimatedDaysMin: 1, EstimatedDaysMax: 2, IsActive: true,
		},
		{
			Name: "Antioquia", Department: "Antioquia",
			Price: price("12.00"), FreeShippingFrom: optPrice("200.00"),
			EstimatedDaysMin: 2, EstimatedDaysMax: 4, IsActive: true,
		},
		{
			Name: "National", Price: price("18.00"),
			EstimatedDaysMin: 3, EstimatedDaysMax: 7, IsActive: true, IsDefault: true,
		},
	}
}
