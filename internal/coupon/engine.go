package coupon

import (
	"strings"

	"github.com/shopspring/decimal"
)

type DiscountType string

const (
	Percentage DiscountType = "percentage"
	Fixed      DiscountType = "fixed"
)

// Rule is one named discount. Value is a percent for Percentage
// and an amount in minor units for Fixed.
type Rule struct {
	Code  string
	Type  DiscountType
	Value decimal.Decimal
}

// Applied is the shape the discount math needs from an applied coupon.
type Applied struct {
	Type  DiscountType
	Value decimal.Decimal
}

// Stacking policy: multiple coupons add up, total clamped to [0, subtotal].
// Kept as an explicit engine-level rule so tests can pin it.
const StackingAdditive = true

type Engine struct {
	rules map[string]Rule
}

func NewEngine(rules []Rule) *Engine {
	m := make(map[string]Rule, len(rules))
	for _, r := range rules {
		m[strings.ToUpper(r.Code)] = r
	}
	return &Engine{rules: m}
}

// DefaultRules is the externally-configured coupon table stand-in.
func DefaultRules() []Rule {
	return []Rule{
		{Code: "SAVE20", Type: Fixed, Value: decimal.NewFromInt(10000)},
		{Code: "NEWUSER", Type: Fixed, Value: decimal.NewFromInt(5000)},
		{Code: "FESTIVE25", Type: Percentage, Value: decimal.NewFromInt(25)},
		{Code: "WELCOME10", Type: Percentage, Value: decimal.NewFromInt(10)},
	}
}

// Validate returns the rule for a code, or false for unknown codes.
func (e *Engine) Validate(code string) (Rule, bool) {
	r, ok := e.rules[strings.ToUpper(strings.TrimSpace(code))]
	return r, ok
}

var hundred = decimal.NewFromInt(100)

// ComputeDiscount sums all applied coupons against the subtotal (minor units).
// Percentage coupons round half away from zero to whole minor units.
// Result is always within [0, subtotal].
func ComputeDiscount(subtotalMinor int64, coupons []Applied) int64 {
	if subtotalMinor <= 0 {
		return 0
	}

	total := decimal.Zero
	sub := decimal.NewFromInt(subtotalMinor)
	for _, c := range coupons {
		switch c.Type {
		case Percentage:
			total = total.Add(sub.Mul(c.Value).Div(hundred).Round(0))
		case Fixed:
			total = total.Add(c.Value)
		}
	}

	d := total.IntPart()
	if d < 0 {
		return 0
	}
	if d > subtotalMinor {
		return subtotalMinor
	}
	return d
}
