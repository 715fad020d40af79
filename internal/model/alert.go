package model

import "time"

// AlertEvent is the immutable record of one rule trigger. Exactly one
// event is written per trigger whether or not delivery succeeded;
// SentSuccess records the outcome.
type AlertEvent struct {
	ID           int64
	TaskID       int64
	UserID       int64
	Symbol       string
	MarketType   string
	TriggerPrice float64
	TriggerValue float64
	Message      string
	TriggeredAt  time.Time
	SentSuccess  bool
}
