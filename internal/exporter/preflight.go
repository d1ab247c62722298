package exporter

import (
	"fmt"
	"strings"

	"ocrr/internal"
	"ocrr/internal/util"
)

// PreflightError lists every line that cannot be sent as is.
type PreflightError struct {
	Issues []string
}

func (e *PreflightError) Error() string {
	return "preflight validation failed: " + strings.Join(e.Issues, " ")
}

func (e *PreflightError) Is(target error) bool {
	return target == ErrPreflightInvalid
}

// Preflight checks the structural requirements of the sheet rows. Lines are
// numbered from 1.
func Preflight(items []internal.ResolvedItem, maxQuantity int) error {
	var issues []string
	for i, item := range items {
		line := i + 1
		if util.NonEmptyPtr(item.ReferenceOCR) == nil {
			issues = append(issues, fmt.Sprintf("line %d: missing reference_ocr.", line))
		}
		qty := strings.TrimSpace(item.QuantityRaw)
		if qty == "" {
			issues = append(issues, fmt.Sprintf("line %d: missing quantity_raw.", line))
		} else if _, ok := util.ParseQuantity(qty, maxQuantity); !ok {
			issues = append(issues, fmt.Sprintf("line %d: invalid quantity_raw (%s).", line, qty))
		}
		if util.NonEmptyPtr(item.UnitPriceRaw) == nil {
			issues = append(issues, fmt.Sprintf("line %d: missing unit_price_raw.", line))
		}
		if item.NeedsReview {
			issues = append(issues, fmt.Sprintf("line %d: suspicious fields (needs_review).", line))
		}
	}
	if len(issues) > 0 {
		return &PreflightError{Issues: issues}
	}
	return nil
}
