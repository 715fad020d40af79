package model

import (
	"time"

	"CryptoSentinel/internal/rule"
)

// TaskStatus is the lifecycle state of a monitor task.
type TaskStatus string

const (
	TaskActive  TaskStatus = "ACTIVE"
	TaskPaused  TaskStatus = "PAUSED"
	TaskDeleted TaskStatus = "DELETED"
)

// MarketSpot is the only market type currently monitored.
const MarketSpot = "SPOT"

// MonitorTask is one user-defined price condition. Deletion is logical:
// the status flips to DELETED and the row is kept so alert history stays
// referentially intact.
type MonitorTask struct {
	ID              int64
	UserID          int64
	Symbol          string
	MarketType      string
	Rule            rule.Rule
	Status          TaskStatus
	CooldownSeconds int
	LastTriggeredAt time.Time // zero until the first trigger
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
