package model

import "time"

// User is a Telegram user known to the bot. The ID is the Telegram user
// id, which doubles as the private chat id for deliveries.
type User struct {
	ID           int64
	Username     string
	FirstName    string
	RegisteredAt time.Time
	LastActiveAt time.Time
}

// ReportConfig holds one user's scheduled price-report settings.
type ReportConfig struct {
	UserID          int64
	Enabled         bool
	IntervalMinutes int
	Symbols         []string
	UpdatedAt       time.Time
}
