package service

import (
	"strings"

	"github.com/shopspring/decimal"
)

// decimalFromDB parses a numeric column scanned as text; an empty value
// (no row) reads as zero.
func decimalFromDB(raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(raw)
}
