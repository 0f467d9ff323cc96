package order

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Amount is a currency amount in minor units (cents).
type Amount int64

const (
	MinAmount Amount = 1
	MaxAmount Amount = 10_000_000
)

var hundred = decimal.NewFromInt(100)

// AmountFromDecimal converts an exact decimal into cents. It fails when the
// value carries more than two fractional digits; range is not checked here.
func AmountFromDecimal(d decimal.Decimal) (Amount, error) {
	cents := d.Mul(hundred)
	if !cents.IsInteger() {
		return 0, fmt.Errorf("amount %s has more than 2 decimal places", d.String())
	}
	return Amount(cents.IntPart()), nil
}

func ParseAmount(raw string) (Amount, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	return AmountFromDecimal(d)
}

func (a Amount) Decimal() decimal.Decimal {
	return decimal.New(int64(a), -2)
}

// String always renders exactly two decimals, e.g. 99.99 or 100.00.
func (a Amount) String() string {
	return a.Decimal().StringFixed(2)
}

func (a Amount) InRange() bool {
	return a >= MinAmount && a <= MaxAmount
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(data); err != nil {
		return err
	}
	parsed, err := AmountFromDecimal(d)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
