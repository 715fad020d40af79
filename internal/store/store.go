// Package store persists monitor tasks, alert history and user state in
// a local SQLite database.
package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Counts summarizes table sizes for the admin API.
type Counts struct {
	ActiveTasks int64 `json:"active_tasks"`
	PausedTasks int64 `json:"paused_tasks"`
	Alerts      int64 `json:"alerts"`
	Alerts24h   int64 `json:"alerts_24h"`
	Users       int64 `json:"users"`
}

// SystemEntry is one row of the system_config table.
type SystemEntry struct {
	Key         string    `json:"key"`
	Value       string    `json:"value"`
	Description string    `json:"description"`
	UpdatedAt   time.Time `json:"updated_at"`
}
