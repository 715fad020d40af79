// Package monitor runs the periodic evaluation loop that turns active
// tasks plus live prices into alerts.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"CryptoSentinel/internal/model"
)

// ErrNotifierNotSet is returned by Start when no notifier is wired in.
var ErrNotifierNotSet = errors.New("monitor: notifier not set")

// TaskStore is the slice of persistence the engine needs.
type TaskStore interface {
	LoadActiveTasks() ([]*model.MonitorTask, error)
	MarkTriggered(taskID int64, at time.Time) error
	RecordAlert(evt *model.AlertEvent) error
}

// PriceProvider supplies current prices, normally the failover cache.
type PriceProvider interface {
	CurrentPrice(ctx context.Context, symbol string) (*model.PriceQuote, error)
}

// Notifier delivers alert messages to users.
type Notifier interface {
	SendWithRetry(ctx context.Context, chatID int64, text string) error
}

// Config tunes the evaluation loop.
type Config struct {
	CheckInterval   time.Duration
	DefaultCooldown time.Duration
}

// Stats is a snapshot of the engine's running counters.
type Stats struct {
	Running         bool      `json:"running"`
	CyclesRun       int64     `json:"cycles_run"`
	TasksChecked    int64     `json:"tasks_checked"`
	AlertsFired     int64     `json:"alerts_fired"`
	AlertsDelivered int64     `json:"alerts_delivered"`
	LastCycleAt     time.Time `json:"last_cycle_at"`
}

// Engine evaluates every active task once per interval.
type Engine struct {
	store  TaskStore
	prices PriceProvider
	cfg    Config
	log    zerolog.Logger

	mu       sync.Mutex
	notifier Notifier
	running  bool
	cancel   context.CancelFunc
	done     chan struct{}
	snapshot []*model.MonitorTask
	stats    Stats
}

// New creates an engine. The notifier is wired in separately so the
// engine and the Telegram layer can be constructed in either order.
func New(store TaskStore, prices PriceProvider, cfg Config, log zerolog.Logger) *Engine {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 5 * time.Second
	}
	if cfg.DefaultCooldown <= 0 {
		cfg.DefaultCooldown = 300 * time.Second
	}
	return &Engine{store: store, prices: prices, cfg: cfg, log: log}
}

// SetNotifier wires in the alert delivery channel.
func (e *Engine) SetNotifier(n Notifier) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.notifier = n
}

// Start spawns the evaluation loop. Starting a running engine is a
// warned no-op.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.notifier == nil {
		return ErrNotifierNotSet
	}
	if e.running {
		e.log.Warn().Msg("monitor already running")
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})
	e.running = true
	go e.loop(runCtx, e.done)
	return nil
}

// Stop cancels the loop and waits for the in-flight cycle to finish.
// Stopping a stopped engine is a no-op.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		e.log.Debug().Msg("monitor not running")
		return
	}
	cancel, done := e.cancel, e.done
	e.running = false
	e.mu.Unlock()

	cancel()
	<-done
}

func (e *Engine) loop(ctx context.Context, done chan struct{}) {
	// running resets on exit whether Stop or parent context cancellation
	// ended the loop, so a later Start is a real start.
	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
		close(done)
	}()
	e.log.Info().Dur("interval", e.cfg.CheckInterval).Msg("monitor started")

	// The interval is dead time between cycles, so cycles never overlap.
	for {
		e.runCycle(ctx)
		select {
		case <-ctx.Done():
			e.log.Info().Msg("monitor stopped")
			return
		case <-time.After(e.cfg.CheckInterval):
		}
	}
}

func (e *Engine) runCycle(ctx context.Context) {
	tasks, err := e.store.LoadActiveTasks()
	if err != nil {
		e.mu.Lock()
		tasks = e.snapshot
		e.mu.Unlock()
		e.log.Error().Err(err).Int("snapshot", len(tasks)).
			Msg("loading tasks failed, reusing previous snapshot")
	} else {
		e.mu.Lock()
		e.snapshot = tasks
		e.mu.Unlock()
	}

	// Checks fan out and join before the stats update; one symbol's slow
	// source never delays the other tasks' evaluations.
	var wg sync.WaitGroup
	for _, task := range tasks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.checkTask(ctx, task)
		}()
	}
	wg.Wait()

	e.mu.Lock()
	e.stats.CyclesRun++
	e.stats.TasksChecked += int64(len(tasks))
	e.stats.LastCycleAt = time.Now()
	e.mu.Unlock()
}

// checkTask evaluates one task. Its failures are logged and contained
// so the rest of the cycle proceeds.
func (e *Engine) checkTask(ctx context.Context, task *model.MonitorTask) {
	// Snapshot rows reused after a load failure may have been paused or
	// deleted since.
	if task.Status != model.TaskActive {
		return
	}

	// Cooldown gates before any price I/O.
	if time.Since(task.LastTriggeredAt) < e.cooldown(task) {
		return
	}

	quote, err := e.prices.CurrentPrice(ctx, task.Symbol)
	if err != nil {
		e.log.Warn().Err(err).Int64("task_id", task.ID).Str("symbol", task.Symbol).
			Msg("price fetch failed")
		return
	}

	outcome := task.Rule.Evaluate(task.Symbol, quote.Price)
	if !outcome.Triggered {
		return
	}

	now := time.Now()
	text := outcome.Message + fmt.Sprintf("\n\n💡 _数据来源: %s_", quote.Source)

	sendErr := e.notifier.SendWithRetry(ctx, task.UserID, text)
	if sendErr != nil {
		e.log.Error().Err(sendErr).Int64("task_id", task.ID).Msg("alert delivery failed")
	}

	evt := &model.AlertEvent{
		TaskID:       task.ID,
		UserID:       task.UserID,
		Symbol:       task.Symbol,
		MarketType:   task.MarketType,
		TriggerPrice: quote.Price,
		TriggerValue: outcome.CurrentValue,
		Message:      text,
		TriggeredAt:  now,
		SentSuccess:  sendErr == nil,
	}
	if err := e.store.RecordAlert(evt); err != nil {
		e.log.Error().Err(err).Int64("task_id", task.ID).Msg("recording alert failed")
	}

	// Cooldown runs from trigger time whether or not delivery worked.
	if err := e.store.MarkTriggered(task.ID, now); err != nil {
		e.log.Error().Err(err).Int64("task_id", task.ID).Msg("marking trigger failed")
	}
	task.LastTriggeredAt = now

	e.mu.Lock()
	e.stats.AlertsFired++
	if sendErr == nil {
		e.stats.AlertsDelivered++
	}
	e.mu.Unlock()

	e.log.Info().Int64("task_id", task.ID).Str("symbol", task.Symbol).
		Float64("price", quote.Price).Str("condition", outcome.Condition).
		Bool("delivered", sendErr == nil).Msg("alert fired")
}

func (e *Engine) cooldown(task *model.MonitorTask) time.Duration {
	if task.CooldownSeconds > 0 {
		return time.Duration(task.CooldownSeconds) * time.Second
	}
	return e.cfg.DefaultCooldown
}

// Stats returns a copy of the running counters.
func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.stats
	s.Running = e.running
	return s
}
