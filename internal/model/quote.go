package model

import "time"

// PriceQuote is one observed price. Symbol is the canonical uppercase
// ticker regardless of the provider's own notation.
type PriceQuote struct {
	Symbol      string
	Price       float64
	Source      string
	RetrievedAt time.Time
}

// Age reports how long ago the quote was observed.
func (q *PriceQuote) Age(now time.Time) time.Duration {
	return now.Sub(q.RetrievedAt)
}
