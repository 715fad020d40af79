// Package reporter schedules periodic price reports, one cron entry per
// subscribed user.
package reporter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"CryptoSentinel/internal/model"
	"CryptoSentinel/internal/notifier"
)

// PriceProvider supplies batch prices for report rendering.
type PriceProvider interface {
	MultiPrice(ctx context.Context, symbols []string) map[string]*model.PriceQuote
}

// ConfigStore lists the report configurations to schedule at startup.
type ConfigStore interface {
	ListEnabledReportConfigs() ([]*model.ReportConfig, error)
}

// Notifier delivers rendered reports.
type Notifier interface {
	SendWithRetry(ctx context.Context, chatID int64, text string) error
}

// Reporter manages the per-user report schedules.
type Reporter struct {
	cron   *cron.Cron
	prices PriceProvider
	store  ConfigStore
	notify Notifier
	log    zerolog.Logger
	ctx    context.Context

	mu      sync.Mutex
	entries map[int64]cron.EntryID
}

// New creates a reporter. Outbound sends are bound to ctx so shutdown
// cuts retries short.
func New(ctx context.Context, prices PriceProvider, store ConfigStore, notify Notifier, log zerolog.Logger) *Reporter {
	return &Reporter{
		cron:    cron.New(cron.WithSeconds()),
		prices:  prices,
		store:   store,
		notify:  notify,
		log:     log,
		ctx:     ctx,
		entries: make(map[int64]cron.EntryID),
	}
}

// Start schedules every enabled config and starts the cron.
func (r *Reporter) Start() error {
	configs, err := r.store.ListEnabledReportConfigs()
	if err != nil {
		return fmt.Errorf("load report configs: %w", err)
	}
	for _, rc := range configs {
		if err := r.Schedule(rc); err != nil {
			r.log.Error().Err(err).Int64("user_id", rc.UserID).Msg("scheduling report failed")
		}
	}
	r.cron.Start()
	r.log.Info().Int("schedules", len(configs)).Msg("reporter started")
	return nil
}

// Stop stops the cron and waits for a running report to finish.
func (r *Reporter) Stop() {
	<-r.cron.Stop().Done()
	r.log.Info().Msg("reporter stopped")
}

// Schedule registers a user's report entry, replacing any previous one.
func (r *Reporter) Schedule(rc *model.ReportConfig) error {
	if rc.IntervalMinutes <= 0 {
		return fmt.Errorf("report interval must be positive, got %d", rc.IntervalMinutes)
	}
	cfg := *rc // the job keeps its own copy across reschedules

	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.entries[rc.UserID]; ok {
		r.cron.Remove(id)
	}
	id, err := r.cron.AddFunc(fmt.Sprintf("@every %dm", rc.IntervalMinutes), func() {
		r.runReport(&cfg)
	})
	if err != nil {
		return fmt.Errorf("register report: %w", err)
	}
	r.entries[rc.UserID] = id
	r.log.Info().Int64("user_id", rc.UserID).Int("minutes", rc.IntervalMinutes).
		Strs("symbols", cfg.Symbols).Msg("report scheduled")
	return nil
}

// Cancel removes a user's report entry if present.
func (r *Reporter) Cancel(userID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.entries[userID]; ok {
		r.cron.Remove(id)
		delete(r.entries, userID)
		r.log.Info().Int64("user_id", userID).Msg("report cancelled")
	}
}

// Scheduled reports how many users currently have an entry.
func (r *Reporter) Scheduled() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *Reporter) runReport(rc *model.ReportConfig) {
	quotes := r.prices.MultiPrice(r.ctx, rc.Symbols)
	text := notifier.FormatReport(rc.Symbols, quotes, time.Now())
	if err := r.notify.SendWithRetry(r.ctx, rc.UserID, text); err != nil {
		r.log.Error().Err(err).Int64("user_id", rc.UserID).Msg("report delivery failed")
	}
}
