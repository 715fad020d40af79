package reporter

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"CryptoSentinel/internal/model"
)

type fakePrices struct {
	quotes map[string]*model.PriceQuote
}

func (f *fakePrices) MultiPrice(ctx context.Context, symbols []string) map[string]*model.PriceQuote {
	out := make(map[string]*model.PriceQuote, len(symbols))
	for _, s := range symbols {
		out[s] = f.quotes[s]
	}
	return out
}

type fakeConfigStore struct {
	configs []*model.ReportConfig
}

func (f *fakeConfigStore) ListEnabledReportConfigs() ([]*model.ReportConfig, error) {
	return f.configs, nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []string
	to   []int64
}

func (f *fakeNotifier) SendWithRetry(ctx context.Context, chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.to = append(f.to, chatID)
	f.sent = append(f.sent, text)
	return nil
}

func newTestReporter(prices *fakePrices, store *fakeConfigStore, n *fakeNotifier) *Reporter {
	return New(context.Background(), prices, store, n, zerolog.Nop())
}

func TestStart_SchedulesEnabledConfigs(t *testing.T) {
	store := &fakeConfigStore{configs: []*model.ReportConfig{
		{UserID: 1, Enabled: true, IntervalMinutes: 30, Symbols: []string{"BTC"}},
		{UserID: 2, Enabled: true, IntervalMinutes: 60, Symbols: []string{"ETH"}},
	}}
	r := newTestReporter(&fakePrices{}, store, &fakeNotifier{})

	if err := r.Start(); err != nil {
		t.Fatal(err)
	}
	defer r.Stop()

	if got := r.Scheduled(); got != 2 {
		t.Errorf("scheduled = %d, want 2", got)
	}
}

func TestSchedule_ReplacesAndCancels(t *testing.T) {
	r := newTestReporter(&fakePrices{}, &fakeConfigStore{}, &fakeNotifier{})

	rc := &model.ReportConfig{UserID: 7, Enabled: true, IntervalMinutes: 30, Symbols: []string{"BTC"}}
	if err := r.Schedule(rc); err != nil {
		t.Fatal(err)
	}
	rc.IntervalMinutes = 60
	if err := r.Schedule(rc); err != nil {
		t.Fatal(err)
	}
	if got := r.Scheduled(); got != 1 {
		t.Errorf("reschedule duplicated the entry: %d", got)
	}
	if got := len(r.cron.Entries()); got != 1 {
		t.Errorf("cron entries = %d, want 1", got)
	}

	r.Cancel(7)
	if got := r.Scheduled(); got != 0 {
		t.Errorf("cancel left %d entries", got)
	}
	r.Cancel(7) // cancelling again is harmless
}

func TestSchedule_RejectsBadInterval(t *testing.T) {
	r := newTestReporter(&fakePrices{}, &fakeConfigStore{}, &fakeNotifier{})
	err := r.Schedule(&model.ReportConfig{UserID: 1, IntervalMinutes: 0})
	if err == nil {
		t.Fatal("zero interval accepted")
	}
}

func TestRunReport_RendersAndDelivers(t *testing.T) {
	prices := &fakePrices{quotes: map[string]*model.PriceQuote{
		"BTC": {Symbol: "BTC", Price: 64000, Source: "binance", RetrievedAt: time.Now()},
	}}
	n := &fakeNotifier{}
	r := newTestReporter(prices, &fakeConfigStore{}, n)

	r.runReport(&model.ReportConfig{UserID: 9, IntervalMinutes: 30, Symbols: []string{"BTC", "FAKE"}})

	if len(n.sent) != 1 {
		t.Fatalf("sent = %d, want 1", len(n.sent))
	}
	if n.to[0] != 9 {
		t.Errorf("chatID = %d, want 9", n.to[0])
	}
	msg := n.sent[0]
	for _, want := range []string{"定时价格报告", "BTC: $64,000", "FAKE: ❌ 获取失败", "数据来源: binance"} {
		if !strings.Contains(msg, want) {
			t.Errorf("report missing %q:\n%s", want, msg)
		}
	}
}
