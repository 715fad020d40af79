package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"CryptoSentinel/internal/model"
	"CryptoSentinel/internal/rule"
)

type fakeStore struct {
	mu      sync.Mutex
	tasks   []*model.MonitorTask
	loadErr error
	marked  []int64
	alerts  []*model.AlertEvent
}

func (f *fakeStore) LoadActiveTasks() ([]*model.MonitorTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return f.tasks, nil
}

func (f *fakeStore) MarkTriggered(taskID int64, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marked = append(f.marked, taskID)
	return nil
}

func (f *fakeStore) RecordAlert(evt *model.AlertEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, evt)
	return nil
}

type fakePrices struct {
	mu     sync.Mutex
	series []float64
	bySym  map[string]float64
	errFor map[string]error
	calls  int
}

func (f *fakePrices) CurrentPrice(ctx context.Context, symbol string) (*model.PriceQuote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err := f.errFor[symbol]; err != nil {
		return nil, err
	}
	var price float64
	if len(f.series) > 0 {
		price = f.series[0]
		f.series = f.series[1:]
	} else {
		price = f.bySym[symbol]
	}
	return &model.PriceQuote{Symbol: symbol, Price: price, Source: "mock", RetrievedAt: time.Now()}, nil
}

func (f *fakePrices) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// slowPrices stalls every lookup and records how many run at once.
type slowPrices struct {
	mu       sync.Mutex
	delay    time.Duration
	inFlight int
	peak     int
	finished int
}

func (p *slowPrices) CurrentPrice(ctx context.Context, symbol string) (*model.PriceQuote, error) {
	p.mu.Lock()
	p.inFlight++
	if p.inFlight > p.peak {
		p.peak = p.inFlight
	}
	p.mu.Unlock()

	time.Sleep(p.delay)

	p.mu.Lock()
	p.inFlight--
	p.finished++
	p.mu.Unlock()
	return &model.PriceQuote{Symbol: symbol, Price: 1, Source: "mock", RetrievedAt: time.Now()}, nil
}

type sentMessage struct {
	chatID int64
	text   string
}

type fakeNotifier struct {
	mu   sync.Mutex
	err  error
	sent []sentMessage
}

func (f *fakeNotifier) SendWithRetry(ctx context.Context, chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{chatID, text})
	return f.err
}

func ptr(v float64) *float64 { return &v }

func thresholdTask(t *testing.T, id int64, symbol string, high float64, cooldownSec int) *model.MonitorTask {
	t.Helper()
	r, err := rule.NewPriceThreshold(ptr(high), nil)
	if err != nil {
		t.Fatal(err)
	}
	return &model.MonitorTask{
		ID:              id,
		UserID:          id * 100,
		Symbol:          symbol,
		MarketType:      model.MarketSpot,
		Rule:            r,
		Status:          model.TaskActive,
		CooldownSeconds: cooldownSec,
	}
}

func newTestEngine(store TaskStore, prices PriceProvider, n Notifier) *Engine {
	e := New(store, prices, Config{CheckInterval: time.Hour}, zerolog.Nop())
	if n != nil {
		e.SetNotifier(n)
	}
	return e
}

func TestStart_RequiresNotifier(t *testing.T) {
	e := New(&fakeStore{}, &fakePrices{}, Config{}, zerolog.Nop())
	if err := e.Start(context.Background()); !errors.Is(err, ErrNotifierNotSet) {
		t.Fatalf("err = %v, want ErrNotifierNotSet", err)
	}
}

func TestThresholdAlertWithCooldown(t *testing.T) {
	task := thresholdTask(t, 1, "BTC", 50000, 300)
	store := &fakeStore{tasks: []*model.MonitorTask{task}}
	prices := &fakePrices{series: []float64{49000, 51000, 51500}}
	n := &fakeNotifier{}
	e := newTestEngine(store, prices, n)

	for i := 0; i < 3; i++ {
		e.runCycle(context.Background())
	}

	// 49000 is below the bound, 51000 fires, 51500 lands in cooldown.
	if len(store.alerts) != 1 {
		t.Fatalf("alerts = %d, want 1", len(store.alerts))
	}
	if len(n.sent) != 1 {
		t.Fatalf("sent = %d, want 1", len(n.sent))
	}
	// The third cycle must skip before touching the price provider.
	if got := prices.callCount(); got != 2 {
		t.Errorf("price fetches = %d, want 2", got)
	}

	evt := store.alerts[0]
	if evt.TaskID != 1 || evt.TriggerPrice != 51000 || evt.TriggerValue != 51000 {
		t.Errorf("event = %+v", evt)
	}
	if !evt.SentSuccess {
		t.Error("SentSuccess should be true")
	}
	if len(store.marked) != 1 || store.marked[0] != 1 {
		t.Errorf("marked = %v", store.marked)
	}

	msg := n.sent[0]
	if msg.chatID != task.UserID {
		t.Errorf("chatID = %d, want %d", msg.chatID, task.UserID)
	}
	if !strings.Contains(msg.text, "BTC") || !strings.Contains(msg.text, "💡 _数据来源: mock_") {
		t.Errorf("message = %q", msg.text)
	}

	stats := e.Stats()
	if stats.CyclesRun != 3 || stats.AlertsFired != 1 || stats.AlertsDelivered != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestCooldownDefaultsWhenTaskCarriesNone(t *testing.T) {
	task := thresholdTask(t, 1, "BTC", 50000, 0)
	task.LastTriggeredAt = time.Now().Add(-10 * time.Second)
	store := &fakeStore{tasks: []*model.MonitorTask{task}}
	prices := &fakePrices{bySym: map[string]float64{"BTC": 60000}}
	e := newTestEngine(store, prices, &fakeNotifier{})

	e.runCycle(context.Background())
	if got := prices.callCount(); got != 0 {
		t.Errorf("default cooldown ignored, %d fetches", got)
	}

	// A short per-task cooldown that already elapsed lets it through.
	task.CooldownSeconds = 1
	task.LastTriggeredAt = time.Now().Add(-2 * time.Second)
	e.runCycle(context.Background())
	if got := prices.callCount(); got != 1 {
		t.Errorf("elapsed cooldown still blocking, %d fetches", got)
	}
}

func TestLoadFailureReusesSnapshot(t *testing.T) {
	task := thresholdTask(t, 1, "BTC", 50000, 300)
	store := &fakeStore{tasks: []*model.MonitorTask{task}}
	prices := &fakePrices{series: []float64{49000, 51000}}
	n := &fakeNotifier{}
	e := newTestEngine(store, prices, n)

	e.runCycle(context.Background())

	store.mu.Lock()
	store.loadErr = errors.New("database is locked")
	store.mu.Unlock()

	e.runCycle(context.Background())

	if len(store.alerts) != 1 {
		t.Fatalf("alerts = %d, want 1 from the snapshot cycle", len(store.alerts))
	}
	if store.alerts[0].TriggerPrice != 51000 {
		t.Errorf("trigger price = %v", store.alerts[0].TriggerPrice)
	}
}

func TestLoadFailureBeforeFirstSnapshot(t *testing.T) {
	store := &fakeStore{loadErr: errors.New("no such table")}
	prices := &fakePrices{}
	e := newTestEngine(store, prices, &fakeNotifier{})

	e.runCycle(context.Background())

	if got := prices.callCount(); got != 0 {
		t.Errorf("empty snapshot should check nothing, %d fetches", got)
	}
	if e.Stats().CyclesRun != 1 {
		t.Errorf("cycle not counted")
	}
}

func TestTaskFailuresAreIsolated(t *testing.T) {
	bad := thresholdTask(t, 1, "AAA", 10, 300)
	good := thresholdTask(t, 2, "BTC", 50000, 300)
	store := &fakeStore{tasks: []*model.MonitorTask{bad, good}}
	prices := &fakePrices{
		bySym:  map[string]float64{"BTC": 51000},
		errFor: map[string]error{"AAA": errors.New("all price sources failed")},
	}
	n := &fakeNotifier{}
	e := newTestEngine(store, prices, n)

	e.runCycle(context.Background())

	if len(store.alerts) != 1 || store.alerts[0].TaskID != 2 {
		t.Fatalf("alerts = %+v, want one for task 2", store.alerts)
	}
	if len(n.sent) != 1 {
		t.Errorf("sent = %d", len(n.sent))
	}
}

func TestCycleChecksTasksConcurrently(t *testing.T) {
	const (
		taskCount = 10
		delay     = 100 * time.Millisecond
	)
	tasks := make([]*model.MonitorTask, taskCount)
	for i := range tasks {
		tasks[i] = thresholdTask(t, int64(i+1), fmt.Sprintf("SYM%d", i), 1e9, 300)
	}
	store := &fakeStore{tasks: tasks}
	prices := &slowPrices{delay: delay}
	e := newTestEngine(store, prices, &fakeNotifier{})

	start := time.Now()
	e.runCycle(context.Background())
	elapsed := time.Since(start)

	prices.mu.Lock()
	peak, finished := prices.peak, prices.finished
	prices.mu.Unlock()

	// The cycle joins every check before returning.
	if finished != taskCount {
		t.Fatalf("cycle returned with %d of %d fetches finished", finished, taskCount)
	}
	if peak < 2 {
		t.Errorf("peak in-flight fetches = %d, want overlap", peak)
	}
	// Checking one task at a time would take taskCount*delay.
	if limit := 5 * delay; elapsed > limit {
		t.Errorf("cycle took %v, want under %v", elapsed, limit)
	}
	if got := e.Stats().TasksChecked; got != taskCount {
		t.Errorf("tasks checked = %d, want %d", got, taskCount)
	}
}

func TestPausedSnapshotRowSkipped(t *testing.T) {
	task := thresholdTask(t, 1, "BTC", 50000, 300)
	task.Status = model.TaskPaused
	store := &fakeStore{tasks: []*model.MonitorTask{task}}
	prices := &fakePrices{bySym: map[string]float64{"BTC": 60000}}
	e := newTestEngine(store, prices, &fakeNotifier{})

	e.runCycle(context.Background())

	if got := prices.callCount(); got != 0 {
		t.Errorf("paused task fetched a price")
	}
}

func TestDeliveryFailureStillRecordsAndCools(t *testing.T) {
	task := thresholdTask(t, 1, "BTC", 50000, 300)
	store := &fakeStore{tasks: []*model.MonitorTask{task}}
	prices := &fakePrices{bySym: map[string]float64{"BTC": 51000}}
	n := &fakeNotifier{err: errors.New("telegram: 502")}
	e := newTestEngine(store, prices, n)

	e.runCycle(context.Background())
	e.runCycle(context.Background())

	if len(store.alerts) != 1 {
		t.Fatalf("alerts = %d, want exactly 1", len(store.alerts))
	}
	if store.alerts[0].SentSuccess {
		t.Error("SentSuccess should be false on delivery failure")
	}
	if len(store.marked) != 1 {
		t.Errorf("marked = %v, cooldown must start at trigger time", store.marked)
	}
	// Second cycle sat out the cooldown, so one fetch total.
	if got := prices.callCount(); got != 1 {
		t.Errorf("fetches = %d, want 1", got)
	}

	stats := e.Stats()
	if stats.AlertsFired != 1 || stats.AlertsDelivered != 0 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestStartStopLifecycle(t *testing.T) {
	store := &fakeStore{}
	e := New(store, &fakePrices{}, Config{CheckInterval: 5 * time.Millisecond}, zerolog.Nop())
	e.SetNotifier(&fakeNotifier{})

	if err := e.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("second start should be a no-op, got %v", err)
	}
	time.Sleep(25 * time.Millisecond)
	if !e.Stats().Running {
		t.Error("engine should report running")
	}

	e.Stop()
	if e.Stats().Running {
		t.Error("engine should report stopped")
	}
	cycles := e.Stats().CyclesRun
	if cycles == 0 {
		t.Fatal("no cycles ran")
	}
	time.Sleep(15 * time.Millisecond)
	if got := e.Stats().CyclesRun; got != cycles {
		t.Errorf("cycles kept running after Stop: %d -> %d", cycles, got)
	}

	e.Stop() // second stop is a no-op

	// The engine restarts cleanly.
	if err := e.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	e.Stop()
}

func TestParentCancelResetsRunning(t *testing.T) {
	store := &fakeStore{}
	e := New(store, &fakePrices{}, Config{CheckInterval: 5 * time.Millisecond}, zerolog.Nop())
	e.SetNotifier(&fakeNotifier{})

	ctx, cancel := context.WithCancel(context.Background())
	if err := e.Start(ctx); err != nil {
		t.Fatal(err)
	}
	cancel()

	deadline := time.After(time.Second)
	for e.Stats().Running {
		select {
		case <-deadline:
			t.Fatal("engine still reports running after context cancellation")
		case <-time.After(5 * time.Millisecond):
		}
	}

	// A Start after the cancelled run is a real start, not the
	// already-running no-op.
	if err := e.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	cycles := e.Stats().CyclesRun
	time.Sleep(25 * time.Millisecond)
	if got := e.Stats().CyclesRun; got <= cycles {
		t.Errorf("restarted engine ran no cycles: %d -> %d", cycles, got)
	}
	e.Stop()
}
