// Package rule implements the trigger conditions monitor tasks are
// evaluated against. The variant set is closed: PriceThreshold and
// PercentageChange. Rules are immutable after construction and carry no
// evaluation state; cooldown tracking lives on the task.
package rule

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/dustin/go-humanize"
)

// Kind discriminates the rule variants. It is also the rule_type value
// written at the storage boundary.
type Kind string

const (
	KindPriceThreshold   Kind = "PRICE_THRESHOLD"
	KindPercentageChange Kind = "PERCENTAGE"
)

// ErrInvalidConfig reports missing or contradictory rule parameters at
// construction time.
var ErrInvalidConfig = errors.New("invalid rule config")

// Outcome is the result of evaluating a rule against one price.
type Outcome struct {
	Triggered    bool
	Message      string
	CurrentValue float64
	Condition    string
}

// Rule evaluates a price against a trigger condition. Implementations are
// safe for concurrent use. The set of implementations is sealed; code
// switching on Kind may rely on exhaustiveness.
type Rule interface {
	Kind() Kind
	Evaluate(symbol string, price float64) Outcome
	Describe() string

	sealed()
}

const divider = "━━━━━━━━━━━━━━━━━━━━━━"

func money(v float64) string {
	return "$" + humanize.CommafWithDigits(v, 2)
}

// PriceThreshold triggers when the price reaches an upper or lower bound.
// Bounds are inclusive; at least one must be set.
type PriceThreshold struct {
	High *float64
	Low  *float64
}

// NewPriceThreshold validates the bounds and builds the rule.
func NewPriceThreshold(high, low *float64) (*PriceThreshold, error) {
	if high == nil && low == nil {
		return nil, fmt.Errorf("%w: at least one of threshold_high/threshold_low is required", ErrInvalidConfig)
	}
	return &PriceThreshold{High: high, Low: low}, nil
}

func (r *PriceThreshold) Kind() Kind { return KindPriceThreshold }

func (r *PriceThreshold) sealed() {}

// Evaluate checks the upper bound first; when both bounds would match,
// the high side wins.
func (r *PriceThreshold) Evaluate(symbol string, price float64) Outcome {
	switch {
	case r.High != nil && price >= *r.High:
		msg := fmt.Sprintf("🔴 *%s 价格预警*\n\n%s\n当前价格: `%s`\n已达到上限: `%s`\n%s\n\n📈 突破上限阈值！",
			symbol, divider, money(price), money(*r.High), divider)
		return Outcome{
			Triggered:    true,
			Message:      msg,
			CurrentValue: price,
			Condition:    fmt.Sprintf("价格 >= %s", money(*r.High)),
		}
	case r.Low != nil && price <= *r.Low:
		msg := fmt.Sprintf("🟢 *%s 价格预警*\n\n%s\n当前价格: `%s`\n已达到下限: `%s`\n%s\n\n📉 跌破下限阈值！",
			symbol, divider, money(price), money(*r.Low), divider)
		return Outcome{
			Triggered:    true,
			Message:      msg,
			CurrentValue: price,
			Condition:    fmt.Sprintf("价格 <= %s", money(*r.Low)),
		}
	}
	return Outcome{CurrentValue: price}
}

// Describe renders the bounds for task listings.
func (r *PriceThreshold) Describe() string {
	var parts []string
	if r.High != nil {
		parts = append(parts, "上限 "+money(*r.High))
	}
	if r.Low != nil {
		parts = append(parts, "下限 "+money(*r.Low))
	}
	return strings.Join(parts, " | ")
}

// PercentageChange triggers when the price moves a given percentage away
// from a fixed reference price. Thresholds are inclusive; the low-side
// threshold is negative for a drop.
type PercentageChange struct {
	ReferencePrice float64
	HighPct        *float64
	LowPct         *float64
}

// NewPercentageChange validates the reference price and thresholds.
func NewPercentageChange(referencePrice float64, highPct, lowPct *float64) (*PercentageChange, error) {
	if referencePrice <= 0 {
		return nil, fmt.Errorf("%w: reference_price must be positive", ErrInvalidConfig)
	}
	if highPct == nil && lowPct == nil {
		return nil, fmt.Errorf("%w: at least one of percentage_high/percentage_low is required", ErrInvalidConfig)
	}
	return &PercentageChange{ReferencePrice: referencePrice, HighPct: highPct, LowPct: lowPct}, nil
}

func (r *PercentageChange) Kind() Kind { return KindPercentageChange }

func (r *PercentageChange) sealed() {}

// Evaluate computes pct = (price - ref) / ref * 100 and checks the
// high side first.
func (r *PercentageChange) Evaluate(symbol string, price float64) Outcome {
	pct := (price - r.ReferencePrice) / r.ReferencePrice * 100
	switch {
	case r.HighPct != nil && pct >= *r.HighPct:
		msg := fmt.Sprintf("📈 *%s 涨幅预警*\n\n当前价格: `%s`\n参考价格: `%s`\n涨幅: `%+.2f%%`\n\n🔥 涨幅已达 %g%%！",
			symbol, money(price), money(r.ReferencePrice), pct, *r.HighPct)
		return Outcome{
			Triggered:    true,
			Message:      msg,
			CurrentValue: price,
			Condition:    fmt.Sprintf("涨幅 >= %g%%", *r.HighPct),
		}
	case r.LowPct != nil && pct <= *r.LowPct:
		msg := fmt.Sprintf("📉 *%s 跌幅预警*\n\n当前价格: `%s`\n参考价格: `%s`\n跌幅: `%+.2f%%`\n\n⚠️ 跌幅已达 %g%%！",
			symbol, money(price), money(r.ReferencePrice), pct, math.Abs(*r.LowPct))
		return Outcome{
			Triggered:    true,
			Message:      msg,
			CurrentValue: price,
			Condition:    fmt.Sprintf("跌幅 <= %g%%", *r.LowPct),
		}
	}
	return Outcome{CurrentValue: price}
}

// Describe renders the reference price and thresholds for task listings.
func (r *PercentageChange) Describe() string {
	parts := []string{"参考价 " + money(r.ReferencePrice)}
	if r.HighPct != nil {
		parts = append(parts, fmt.Sprintf("涨 %g%%", *r.HighPct))
	}
	if r.LowPct != nil {
		parts = append(parts, fmt.Sprintf("跌 %g%%", math.Abs(*r.LowPct)))
	}
	return strings.Join(parts, " | ")
}
