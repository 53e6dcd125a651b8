package catalog

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	slugRe      = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)
	colorCodeRe = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)
)

// Slugify derives a URL slug from a display name: accents are stripped and
// every run of non alphanumeric characters becomes one dash.
func Slugify(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	plain, _, err := transform.String(t, name)
	if err != nil {
		plain = name
	}

	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(plain) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

func validSlug(s string) bool {
	return slugRe.MatchString(s)
}

func validateNamed(name string, slug *string) error {
	if strings.TrimSpace(name) == "" {
		return &ValidationError{Field: "name", Reason: "required"}
	}
	if *slug == "" {
		*slug = Slugify(name)
	}
	if !validSlug(*slug) {
		return &ValidationError{Field: "slug", Reason: "must contain only lowercase letters, digits and dashes"}
	}
	return nil
}

// ValidateVariant checks a variant definition before it is stored.
func ValidateVariant(v *Variant) error {
	switch {
	case strings.TrimSpace(v.SKU) == "":
		return &ValidationError{Field: "sku", Reason: "required"}
	case strings.TrimSpace(v.Name) == "":
		return &ValidationError{Field: "name", Reason: "required"}
	case v.Price.IsNegative():
		return &ValidationError{Field: "price", Reason: "cannot be negative"}
	case v.SalePrice != nil && v.SalePrice.IsNegative():
		return &ValidationError{Field: "sale_price", Reason: "cannot be negative"}
	case v.ColorCode != "" && !colorCodeRe.MatchString(v.ColorCode):
		return &ValidationError{Field: "color_code", Reason: "must be #RRGGBB"}
	case v.WeightGrams < 0:
		return &ValidationError{Field: "weight_grams", Reason: "cannot be negative"}
	case v.Stock.Quantity < 0 || v.Stock.LowStockThreshold < 0:
		return &ValidationError{Field: "stock", Reason: "cannot be negative"}
	}
	return validateAttributes(v.Attributes)
}

// validateAttributes allows one value per attribute type.
func validateAttributes(attrs []Attribute) error {
	seen := make(map[string]struct{}, len(attrs))
	for _, a := range attrs {
		if !validSlug(a.Type) {
			return &ValidationError{Field: "attributes", Reason: "invalid attribute type " + a.Type}
		}
		if strings.TrimSpace(a.Value) == "" {
			return &ValidationError{Field: "attributes", Reason: "empty value for " + a.Type}
		}
		if _, dup := seen[a.Type]; dup {
			return &ValidationError{Field: "attributes", Reason: "duplicate attribute type " + a.Type}
		}
		seen[a.Type] = struct{}{}
	}
	return nil
}
