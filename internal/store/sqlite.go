package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"CryptoSentinel/internal/model"
	"CryptoSentinel/internal/rule"
)

// Store wraps the SQLite database behind typed operations.
type Store struct {
	db  *sql.DB
	mu  sync.Mutex
	log zerolog.Logger
}

// NewStore opens (or creates) the SQLite database and runs migrations.
func NewStore(path string, log zerolog.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode so the admin API can read while the monitor writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &Store{db: db, log: log}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if err := s.seedSystemDefaults(); err != nil {
		db.Close()
		return nil, fmt.Errorf("seed defaults: %w", err)
	}

	log.Info().Str("path", path).Msg("sqlite store opened")
	return s, nil
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS monitor_tasks (
			task_id           INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id           INTEGER NOT NULL,
			symbol            TEXT NOT NULL,
			market_type       TEXT NOT NULL DEFAULT 'SPOT',
			rule_type         TEXT NOT NULL,
			rule_config       TEXT NOT NULL,
			status            TEXT NOT NULL DEFAULT 'ACTIVE',
			last_triggered_at INTEGER NOT NULL DEFAULT 0,
			cooldown_seconds  INTEGER NOT NULL DEFAULT 300,
			created_at        INTEGER NOT NULL,
			updated_at        INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_status ON monitor_tasks(status)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_user ON monitor_tasks(user_id)`,

		`CREATE TABLE IF NOT EXISTS alert_history (
			alert_id      INTEGER PRIMARY KEY AUTOINCREMENT,
			task_id       INTEGER NOT NULL,
			user_id       INTEGER NOT NULL,
			symbol        TEXT NOT NULL,
			market_type   TEXT NOT NULL,
			trigger_price REAL NOT NULL,
			trigger_value REAL NOT NULL,
			message       TEXT,
			triggered_at  INTEGER NOT NULL,
			sent_success  INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_task ON alert_history(task_id)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_user_ts ON alert_history(user_id, triggered_at)`,

		`CREATE TABLE IF NOT EXISTS users (
			user_id        INTEGER PRIMARY KEY,
			username       TEXT,
			first_name     TEXT,
			registered_at  INTEGER NOT NULL,
			last_active_at INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS report_configs (
			user_id          INTEGER PRIMARY KEY,
			enabled          INTEGER NOT NULL DEFAULT 0,
			interval_minutes INTEGER NOT NULL DEFAULT 30,
			symbols          TEXT NOT NULL DEFAULT '',
			updated_at       INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS system_config (
			key         TEXT PRIMARY KEY,
			value       TEXT NOT NULL,
			description TEXT,
			updated_at  INTEGER NOT NULL
		)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}
	return nil
}

func (s *Store) seedSystemDefaults() error {
	defaults := []struct{ key, value, desc string }{
		{"max_tasks_per_user", "50", "maximum concurrent tasks per user"},
		{"default_cooldown_seconds", "300", "cooldown applied to new tasks"},
		{"price_cache_ttl_seconds", "30", "price cache freshness window"},
	}
	now := time.Now().Unix()
	for _, d := range defaults {
		_, err := s.db.Exec(
			`INSERT OR IGNORE INTO system_config (key, value, description, updated_at) VALUES (?,?,?,?)`,
			d.key, d.value, d.desc, now,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	s.log.Info().Msg("closing sqlite store")
	return s.db.Close()
}

const taskColumns = `task_id, user_id, symbol, market_type, rule_type, rule_config,
	status, last_triggered_at, cooldown_seconds, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

// scanTask reads one monitor_tasks row. The rule config comes back raw
// so callers decide whether a decode failure is fatal or skippable.
func scanTask(sc scanner) (*model.MonitorTask, rule.Kind, []byte, error) {
	var (
		t             model.MonitorTask
		kind, cfg     string
		status        string
		last, cre, up int64
	)
	err := sc.Scan(&t.ID, &t.UserID, &t.Symbol, &t.MarketType, &kind, &cfg,
		&status, &last, &t.CooldownSeconds, &cre, &up)
	if err != nil {
		return nil, "", nil, err
	}
	t.Status = model.TaskStatus(status)
	if last > 0 {
		t.LastTriggeredAt = time.Unix(last, 0)
	}
	t.CreatedAt = time.Unix(cre, 0)
	t.UpdatedAt = time.Unix(up, 0)
	return &t, rule.Kind(kind), []byte(cfg), nil
}

// CreateTask inserts a new monitor task and fills in its ID and timestamps.
func (s *Store) CreateTask(t *model.MonitorTask) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := rule.Encode(t.Rule)
	if err != nil {
		return fmt.Errorf("encode rule: %w", err)
	}
	if t.MarketType == "" {
		t.MarketType = model.MarketSpot
	}
	if t.Status == "" {
		t.Status = model.TaskActive
	}
	now := time.Now()
	t.CreatedAt = now
	t.UpdatedAt = now

	res, err := s.db.Exec(`INSERT INTO monitor_tasks
		(user_id, symbol, market_type, rule_type, rule_config, status,
		 last_triggered_at, cooldown_seconds, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		t.UserID, t.Symbol, t.MarketType, string(t.Rule.Kind()), string(cfg),
		string(t.Status), 0, t.CooldownSeconds, now.Unix(), now.Unix(),
	)
	if err != nil {
		return err
	}
	t.ID, err = res.LastInsertId()
	return err
}

// GetTask returns a task by id. Soft-deleted tasks count as missing.
func (s *Store) GetTask(id int64) (*model.MonitorTask, error) {
	row := s.db.QueryRow(`SELECT `+taskColumns+` FROM monitor_tasks
		WHERE task_id = ? AND status != ?`, id, string(model.TaskDeleted))

	t, kind, cfg, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if t.Rule, err = rule.Decode(kind, cfg); err != nil {
		return nil, fmt.Errorf("task %d: %w", id, err)
	}
	return t, nil
}

// ListTasksByUser returns a user's tasks, newest first, excluding
// soft-deleted ones. Rows with an undecodable rule are logged and skipped.
func (s *Store) ListTasksByUser(userID int64) ([]*model.MonitorTask, error) {
	rows, err := s.db.Query(`SELECT `+taskColumns+` FROM monitor_tasks
		WHERE user_id = ? AND status != ? ORDER BY task_id DESC`,
		userID, string(model.TaskDeleted))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return s.collectTasks(rows)
}

// ListTasks returns tasks for the admin API, newest first, optionally
// filtered by user and status. Zero values mean no filter; soft-deleted
// tasks stay hidden either way.
func (s *Store) ListTasks(userID int64, status model.TaskStatus) ([]*model.MonitorTask, error) {
	query := `SELECT ` + taskColumns + ` FROM monitor_tasks WHERE status != ?`
	args := []any{string(model.TaskDeleted)}
	if userID != 0 {
		query += ` AND user_id = ?`
		args = append(args, userID)
	}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY task_id DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return s.collectTasks(rows)
}

// LoadActiveTasks returns every ACTIVE task with its rule decoded.
func (s *Store) LoadActiveTasks() ([]*model.MonitorTask, error) {
	rows, err := s.db.Query(`SELECT `+taskColumns+` FROM monitor_tasks
		WHERE status = ? ORDER BY task_id`, string(model.TaskActive))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return s.collectTasks(rows)
}

func (s *Store) collectTasks(rows *sql.Rows) ([]*model.MonitorTask, error) {
	var tasks []*model.MonitorTask
	for rows.Next() {
		t, kind, cfg, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		if t.Rule, err = rule.Decode(kind, cfg); err != nil {
			s.log.Warn().Int64("task_id", t.ID).Err(err).
				Msg("skipping task with undecodable rule config")
			continue
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// CountTasksByUser counts a user's live (non-deleted) tasks.
func (s *Store) CountTasksByUser(userID int64) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM monitor_tasks
		WHERE user_id = ? AND status != ?`,
		userID, string(model.TaskDeleted)).Scan(&n)
	return n, err
}

// UpdateTaskStatus flips a live task between ACTIVE and PAUSED.
func (s *Store) UpdateTaskStatus(id int64, status model.TaskStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`UPDATE monitor_tasks SET status = ?, updated_at = ?
		WHERE task_id = ? AND status != ?`,
		string(status), time.Now().Unix(), id, string(model.TaskDeleted))
	if err != nil {
		return err
	}
	return requireRow(res)
}

// SoftDeleteTask marks a task DELETED. The row stays for alert history.
func (s *Store) SoftDeleteTask(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`UPDATE monitor_tasks SET status = ?, updated_at = ?
		WHERE task_id = ? AND status != ?`,
		string(model.TaskDeleted), time.Now().Unix(), id, string(model.TaskDeleted))
	if err != nil {
		return err
	}
	return requireRow(res)
}

// MarkTriggered stamps the task's cooldown clock.
func (s *Store) MarkTriggered(taskID int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`UPDATE monitor_tasks SET last_triggered_at = ?, updated_at = ?
		WHERE task_id = ?`, at.Unix(), time.Now().Unix(), taskID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordAlert appends an alert to the history and fills in its ID.
func (s *Store) RecordAlert(evt *model.AlertEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`INSERT INTO alert_history
		(task_id, user_id, symbol, market_type, trigger_price, trigger_value,
		 message, triggered_at, sent_success)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		evt.TaskID, evt.UserID, evt.Symbol, evt.MarketType,
		evt.TriggerPrice, evt.TriggerValue, evt.Message,
		evt.TriggeredAt.Unix(), boolToInt(evt.SentSuccess),
	)
	if err != nil {
		return err
	}
	evt.ID, err = res.LastInsertId()
	return err
}

const alertColumns = `alert_id, task_id, user_id, symbol, market_type,
	trigger_price, trigger_value, message, triggered_at, sent_success`

func scanAlert(sc scanner) (*model.AlertEvent, error) {
	var (
		evt  model.AlertEvent
		ts   int64
		sent int
	)
	err := sc.Scan(&evt.ID, &evt.TaskID, &evt.UserID, &evt.Symbol, &evt.MarketType,
		&evt.TriggerPrice, &evt.TriggerValue, &evt.Message, &ts, &sent)
	if err != nil {
		return nil, err
	}
	evt.TriggeredAt = time.Unix(ts, 0)
	evt.SentSuccess = sent != 0
	return &evt, nil
}

// RecentAlerts returns the newest alerts across all users.
func (s *Store) RecentAlerts(limit int) ([]*model.AlertEvent, error) {
	rows, err := s.db.Query(`SELECT `+alertColumns+` FROM alert_history
		ORDER BY triggered_at DESC, alert_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAlerts(rows)
}

// AlertsByUser returns the newest alerts for one user.
func (s *Store) AlertsByUser(userID int64, limit int) ([]*model.AlertEvent, error) {
	rows, err := s.db.Query(`SELECT `+alertColumns+` FROM alert_history
		WHERE user_id = ? ORDER BY triggered_at DESC, alert_id DESC LIMIT ?`,
		userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAlerts(rows)
}

func collectAlerts(rows *sql.Rows) ([]*model.AlertEvent, error) {
	var alerts []*model.AlertEvent
	for rows.Next() {
		evt, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, evt)
	}
	return alerts, rows.Err()
}

// UpsertUser registers a user on first contact and refreshes the
// username and activity stamp on every later one.
func (s *Store) UpsertUser(u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if u.RegisteredAt.IsZero() {
		u.RegisteredAt = now
	}
	u.LastActiveAt = now

	_, err := s.db.Exec(`INSERT INTO users (user_id, username, first_name, registered_at, last_active_at)
		VALUES (?,?,?,?,?)
		ON CONFLICT(user_id) DO UPDATE SET
			username = excluded.username,
			first_name = excluded.first_name,
			last_active_at = excluded.last_active_at`,
		u.ID, u.Username, u.FirstName, u.RegisteredAt.Unix(), u.LastActiveAt.Unix(),
	)
	return err
}

// GetReportConfig returns a user's periodic report settings.
func (s *Store) GetReportConfig(userID int64) (*model.ReportConfig, error) {
	var (
		rc      model.ReportConfig
		enabled int
		symbols string
		updated int64
	)
	err := s.db.QueryRow(`SELECT user_id, enabled, interval_minutes, symbols, updated_at
		FROM report_configs WHERE user_id = ?`, userID).
		Scan(&rc.UserID, &enabled, &rc.IntervalMinutes, &symbols, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	rc.Enabled = enabled != 0
	rc.Symbols = splitSymbols(symbols)
	rc.UpdatedAt = time.Unix(updated, 0)
	return &rc, nil
}

// SaveReportConfig creates or replaces a user's report settings.
func (s *Store) SaveReportConfig(rc *model.ReportConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rc.UpdatedAt = time.Now()
	_, err := s.db.Exec(`INSERT INTO report_configs (user_id, enabled, interval_minutes, symbols, updated_at)
		VALUES (?,?,?,?,?)
		ON CONFLICT(user_id) DO UPDATE SET
			enabled = excluded.enabled,
			interval_minutes = excluded.interval_minutes,
			symbols = excluded.symbols,
			updated_at = excluded.updated_at`,
		rc.UserID, boolToInt(rc.Enabled), rc.IntervalMinutes,
		strings.Join(rc.Symbols, ","), rc.UpdatedAt.Unix(),
	)
	return err
}

// ListEnabledReportConfigs returns every user with periodic reports on.
func (s *Store) ListEnabledReportConfigs() ([]*model.ReportConfig, error) {
	rows, err := s.db.Query(`SELECT user_id, enabled, interval_minutes, symbols, updated_at
		FROM report_configs WHERE enabled = 1 ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []*model.ReportConfig
	for rows.Next() {
		var (
			rc      model.ReportConfig
			enabled int
			symbols string
			updated int64
		)
		if err := rows.Scan(&rc.UserID, &enabled, &rc.IntervalMinutes, &symbols, &updated); err != nil {
			return nil, err
		}
		rc.Enabled = enabled != 0
		rc.Symbols = splitSymbols(symbols)
		rc.UpdatedAt = time.Unix(updated, 0)
		configs = append(configs, &rc)
	}
	return configs, rows.Err()
}

// SystemValue reads one system_config entry.
func (s *Store) SystemValue(key string) (string, error) {
	var v string
	err := s.db.QueryRow(`SELECT value FROM system_config WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return v, err
}

// SetSystemValue writes one system_config entry, keeping its description.
func (s *Store) SetSystemValue(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`INSERT INTO system_config (key, value, updated_at)
		VALUES (?,?,?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().Unix(),
	)
	return err
}

// SystemInt reads a numeric system_config entry, falling back on
// missing or malformed values.
func (s *Store) SystemInt(key string, fallback int) int {
	v, err := s.SystemValue(key)
	if err != nil {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return n
}

// SystemEntries returns every system_config row for the admin API.
func (s *Store) SystemEntries() ([]SystemEntry, error) {
	rows, err := s.db.Query(`SELECT key, value, COALESCE(description, ''), updated_at
		FROM system_config ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []SystemEntry
	for rows.Next() {
		var (
			e       SystemEntry
			updated int64
		)
		if err := rows.Scan(&e.Key, &e.Value, &e.Description, &updated); err != nil {
			return nil, err
		}
		e.UpdatedAt = time.Unix(updated, 0)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// TableCounts returns row counts for the admin API.
func (s *Store) TableCounts() (Counts, error) {
	var c Counts
	dayAgo := time.Now().Add(-24 * time.Hour).Unix()
	err := s.db.QueryRow(`SELECT
		(SELECT COUNT(*) FROM monitor_tasks WHERE status = ?),
		(SELECT COUNT(*) FROM monitor_tasks WHERE status = ?),
		(SELECT COUNT(*) FROM alert_history),
		(SELECT COUNT(*) FROM alert_history WHERE triggered_at >= ?),
		(SELECT COUNT(*) FROM users)`,
		string(model.TaskActive), string(model.TaskPaused), dayAgo).
		Scan(&c.ActiveTasks, &c.PausedTasks, &c.Alerts, &c.Alerts24h, &c.Users)
	return c, err
}

func splitSymbols(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
