package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cei-crawler/pkg/htmlutil"

	"github.com/shopspring/decimal"
)

// ErrInvalidValue wraps every failure to coerce a cell into a typed value.
var ErrInvalidValue = errors.New("invalid value")

// DateLayout is the portal's DD/MM/YYYY date format.
const DateLayout = "02/01/2006"

func ParseDate(value string) (time.Time, error) {
	date, err := time.Parse(DateLayout, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q: %w", ErrInvalidValue, value, err)
	}
	return date, nil
}

func FormatDate(date time.Time) string {
	return date.Format(DateLayout)
}

// ParseMoney reads a pt-BR formatted amount ("1.485,12"). Every separator is
// dropped and the last two digits always become the fractional part, however
// the groups before them were punctuated.
func ParseMoney(value string) (decimal.Decimal, error) {
	raw := strings.TrimSpace(value)
	negative := strings.HasPrefix(raw, "-")
	raw = strings.TrimPrefix(raw, "-")
	raw = strings.NewReplacer(".", "", ",", "").Replace(raw)

	if raw == "" {
		return decimal.Decimal{}, fmt.Errorf("%w: money %q", ErrInvalidValue, value)
	}
	for _, c := range raw {
		if c < '0' || c > '9' {
			return decimal.Decimal{}, fmt.Errorf("%w: money %q", ErrInvalidValue, value)
		}
	}
	for len(raw) < 3 {
		raw = "0" + raw
	}

	canonical := raw[:len(raw)-2] + "." + raw[len(raw)-2:]
	if negative {
		canonical = "-" + canonical
	}
	amount, err := decimal.NewFromString(canonical)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: money %q: %w", ErrInvalidValue, value, err)
	}
	return amount, nil
}

func parseInt(value, original, kind string) (int64, error) {
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q: %w", ErrInvalidValue, kind, original, err)
	}
	return n, nil
}

// ParseAssetQuantity reads an integer quantity with "." thousands separators.
func ParseAssetQuantity(value string) (int64, error) {
	raw := strings.ReplaceAll(strings.TrimSpace(value), ".", "")
	return parseInt(raw, value, "quantity")
}

// ParseIncomeQuantity keeps the integer part of a quantity such as "1.500,000",
// anything after the decimal comma is ignored.
func ParseIncomeQuantity(value string) (int64, error) {
	raw, _, _ := strings.Cut(strings.TrimSpace(value), ",")
	raw = strings.ReplaceAll(raw, ".", "")
	return parseInt(raw, value, "quantity")
}

func ParseQuotationFactor(value string) (int64, error) {
	return parseInt(strings.TrimSpace(value), value, "quotation factor")
}

// NormalizeSpec collapses the column padding the portal leaves inside asset
// specifications ("AZUL        PN      N2" -> "AZUL PN N2").
func NormalizeSpec(value string) string {
	return htmlutil.NormalizeSpace(value)
}
