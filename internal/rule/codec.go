package rule

import (
	"encoding/json"
	"fmt"
)

// Config mirrors the JSON shape persisted in the rule_config column.
// Raw JSON never travels past the storage layer; tasks hold typed rules.
type Config struct {
	ThresholdHigh  *float64 `json:"threshold_high,omitempty"`
	ThresholdLow   *float64 `json:"threshold_low,omitempty"`
	ReferencePrice *float64 `json:"reference_price,omitempty"`
	PercentageHigh *float64 `json:"percentage_high,omitempty"`
	PercentageLow  *float64 `json:"percentage_low,omitempty"`
}

// Decode builds a typed rule from a stored kind tag and JSON config.
func Decode(kind Kind, raw []byte) (Rule, error) {
	var c Config
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("parse rule config: %w", err)
	}
	switch kind {
	case KindPriceThreshold:
		return NewPriceThreshold(c.ThresholdHigh, c.ThresholdLow)
	case KindPercentageChange:
		if c.ReferencePrice == nil {
			return nil, fmt.Errorf("%w: reference_price is required", ErrInvalidConfig)
		}
		return NewPercentageChange(*c.ReferencePrice, c.PercentageHigh, c.PercentageLow)
	default:
		return nil, fmt.Errorf("%w: unknown rule kind %q", ErrInvalidConfig, kind)
	}
}

// Encode serializes a rule's parameters for storage.
func Encode(r Rule) ([]byte, error) {
	var c Config
	switch v := r.(type) {
	case *PriceThreshold:
		c.ThresholdHigh = v.High
		c.ThresholdLow = v.Low
	case *PercentageChange:
		ref := v.ReferencePrice
		c.ReferencePrice = &ref
		c.PercentageHigh = v.HighPct
		c.PercentageLow = v.LowPct
	default:
		return nil, fmt.Errorf("%w: unhandled rule type %T", ErrInvalidConfig, r)
	}
	return json.Marshal(&c)
}
