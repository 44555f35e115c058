package proposta

import (
	"math"

	goerrors "github.com/goliatone/go-errors"
)

// Quote is the wizard arithmetic for a proposal: a subtotal over the
// selected services, a percentage discount, and an optional tax applied to
// the discounted base.
type Quote struct {
	Subtotal        float64 `json:"subtotal"`
	DiscountPercent float64 `json:"discount_percent"`
	DiscountAmount  float64 `json:"discount_amount"`
	TaxPercent      float64 `json:"tax_percent"`
	TaxAmount       float64 `json:"tax_amount"`
	Total           float64 `json:"total"`
}

// BuildQuote computes proposal totals. Percentages outside [0,100] are
// rejected, everything else is plain arithmetic rounded to cents.
func BuildQuote(services []*Service, discountPercent, taxPercent float64) (Quote, error) {
	if discountPercent < 0 || discountPercent > 100 {
		return Quote{}, goerrors.New("discount must be between 0 and 100", goerrors.CategoryValidation).
			WithMetadata(map[string]any{"discount_percent": discountPercent})
	}

	if taxPercent < 0 || taxPercent > 100 {
		return Quote{}, goerrors.New("tax must be between 0 and 100", goerrors.CategoryValidation).
			WithMetadata(map[string]any{"tax_percent": taxPercent})
	}

	var subtotal float64
	for _, svc := range services {
		if svc == nil {
			continue
		}
		subtotal += svc.Price
	}

	discount := subtotal * discountPercent / 100
	base := subtotal - discount
	tax := base * taxPercent / 100

	return Quote{
		Subtotal:        roundCents(subtotal),
		DiscountPercent: discountPercent,
		DiscountAmount:  roundCents(discount),
		TaxPercent:      taxPercent,
		TaxAmount:       roundCents(tax),
		Total:           roundCents(base + tax),
	}, nil
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
