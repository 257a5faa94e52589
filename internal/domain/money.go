package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// CurrencyPlaces is the number of decimal places money is rounded to for reporting.
const CurrencyPlaces = 2

// Normalize converts a raw numeric value read from storage into a decimal.
// Absent values (nil, empty string) become zero. Anything that does not carry a
// valid finite number fails with a *DataIntegrityError naming the field and record.
func Normalize(field, recordID string, raw any) (decimal.Decimal, error) {
	switch v := raw.(type) {
	case nil:
		return decimal.Zero, nil
	case decimal.Decimal:
		return v, nil
	case *decimal.Decimal:
		if v == nil {
			return decimal.Zero, nil
		}
		return *v, nil
	case string:
		return parseDecimalString(field, recordID, v)
	case *string:
		if v == nil {
			return decimal.Zero, nil
		}
		return parseDecimalString(field, recordID, *v)
	case json.Number:
		return parseDecimalString(field, recordID, v.String())
	case int:
		return decimal.NewFromInt(int64(v)), nil
	case int8:
		return decimal.NewFromInt(int64(v)), nil
	case int16:
		return decimal.NewFromInt(int64(v)), nil
	case int32:
		return decimal.NewFromInt32(v), nil
	case int64:
		return decimal.NewFromInt(v), nil
	case uint:
		return decimal.NewFromUint64(uint64(v)), nil
	case uint8:
		return decimal.NewFromInt(int64(v)), nil
	case uint16:
		return decimal.NewFromInt(int64(v)), nil
	case uint32:
		return decimal.NewFromInt(int64(v)), nil
	case uint64:
		return decimal.NewFromUint64(v), nil
	case float32:
		if err := checkFinite(field, recordID, float64(v)); err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromFloat32(v), nil
	case float64:
		if err := checkFinite(field, recordID, v); err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromFloat(v), nil
	case fmt.Stringer:
		// Storage decimal wrappers (e.g. BSON Decimal128) render their exact value as text.
		return parseDecimalString(field, recordID, v.String())
	default:
		return decimal.Zero, &DataIntegrityError{
			Field:    field,
			RecordID: recordID,
			Value:    fmt.Sprintf("%v", raw),
			Reason:   fmt.Sprintf("unsupported numeric type %T", raw),
		}
	}
}

// MustNormalize is Normalize for values already known to be well formed, e.g. test fixtures.
func MustNormalize(raw any) decimal.Decimal {
	d, err := Normalize("value", "", raw)
	if err != nil {
		panic(err)
	}
	return d
}

func parseDecimalString(field, recordID, s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, &DataIntegrityError{Field: field, RecordID: recordID, Value: s, Err: err}
	}
	return d, nil
}

func checkFinite(field, recordID string, f float64) error {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return &DataIntegrityError{Field: field, RecordID: recordID, Value: fmt.Sprint(f), Reason: "not a finite number"}
	}
	return nil
}

// RoundMoney rounds half away from zero to currency precision.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(CurrencyPlaces)
}

// Percentage returns part / whole * 100, or zero when whole is not positive.
func Percentage(part, whole decimal.Decimal) decimal.Decimal {
	if !whole.IsPositive() {
		return decimal.Zero
	}
	return part.Div(whole).Mul(decimal.NewFromInt(100))
}

// FormatMoney renders a decimal with exactly two places for display.
func FormatMoney(d decimal.Decimal) string {
	return d.StringFixed(CurrencyPlaces)
}
