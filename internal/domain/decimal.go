package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Fixed-precision scales used when decimals are rendered to strings.
const (
	PriceScale  int32 = 8
	MarginScale int32 = 4
	ChangeScale int32 = 2
)

// FormatPrice renders a price, amount, volume or profit with 8 fractional digits.
func FormatPrice(d decimal.Decimal) string {
	return d.StringFixed(PriceScale)
}

// FormatMargin renders a profit margin percentage with 4 fractional digits.
func FormatMargin(d decimal.Decimal) string {
	return d.StringFixed(MarginScale)
}

// Dec parses a stored decimal string. Stores only ever write well-formed
// values, so a parse failure yields zero rather than an error.
func Dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// ParseDecimal parses s as a decimal, reporting failures as a ValidationError
// against field.
func ParseDecimal(field, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, &ValidationError{Field: field, Reason: fmt.Sprintf("%q is not a decimal", s)}
	}
	return d, nil
}
