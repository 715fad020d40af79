package rule

import (
	"errors"
	"strings"
	"testing"
)

func ptr(v float64) *float64 { return &v }

func TestNewPriceThreshold_Validation(t *testing.T) {
	if _, err := NewPriceThreshold(nil, nil); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
	if _, err := NewPriceThreshold(ptr(50000), nil); err != nil {
		t.Fatalf("high-only rule should build: %v", err)
	}
	if _, err := NewPriceThreshold(nil, ptr(40000)); err != nil {
		t.Fatalf("low-only rule should build: %v", err)
	}
}

func TestPriceThreshold_HighBound(t *testing.T) {
	r, err := NewPriceThreshold(ptr(50000), nil)
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		price     float64
		triggered bool
	}{
		{49000, false},
		{49999.99, false},
		{50000, true}, // boundary is inclusive
		{51000, true},
	}
	for _, tt := range tests {
		out := r.Evaluate("BTC", tt.price)
		if out.Triggered != tt.triggered {
			t.Errorf("price %.2f: triggered = %v, want %v", tt.price, out.Triggered, tt.triggered)
		}
		if out.CurrentValue != tt.price {
			t.Errorf("price %.2f: CurrentValue = %.2f", tt.price, out.CurrentValue)
		}
		if tt.triggered && !strings.Contains(out.Message, "BTC") {
			t.Errorf("price %.2f: message missing symbol: %q", tt.price, out.Message)
		}
		if !tt.triggered && out.Message != "" {
			t.Errorf("price %.2f: unexpected message %q", tt.price, out.Message)
		}
	}
}

func TestPriceThreshold_LowBound(t *testing.T) {
	r, err := NewPriceThreshold(nil, ptr(40000))
	if err != nil {
		t.Fatal(err)
	}
	if out := r.Evaluate("BTC", 40000); !out.Triggered {
		t.Error("price at low bound should trigger")
	}
	if out := r.Evaluate("BTC", 40000.01); out.Triggered {
		t.Error("price above low bound should not trigger")
	}
	out := r.Evaluate("BTC", 39000)
	if !out.Triggered {
		t.Fatal("price below low bound should trigger")
	}
	if !strings.Contains(out.Message, "跌破下限") {
		t.Errorf("low-bound message wrong: %q", out.Message)
	}
}

func TestPriceThreshold_HighCheckedFirst(t *testing.T) {
	// Misconfigured overlap: low above high. Both sides match, high wins.
	r, err := NewPriceThreshold(ptr(100), ptr(200))
	if err != nil {
		t.Fatal(err)
	}
	out := r.Evaluate("DOGE", 150)
	if !out.Triggered {
		t.Fatal("expected trigger inside overlapping bounds")
	}
	if !strings.Contains(out.Condition, ">=") {
		t.Errorf("expected high-side condition, got %q", out.Condition)
	}
}

func TestNewPercentageChange_Validation(t *testing.T) {
	tests := []struct {
		name    string
		ref     float64
		high    *float64
		low     *float64
		wantErr bool
	}{
		{"both bounds", 90000, ptr(5), ptr(-5), false},
		{"high only", 90000, ptr(5), nil, false},
		{"no bounds", 90000, nil, nil, true},
		{"zero reference", 0, ptr(5), nil, true},
		{"negative reference", -1, ptr(5), nil, true},
	}
	for _, tt := range tests {
		_, err := NewPercentageChange(tt.ref, tt.high, tt.low)
		if tt.wantErr && !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("%s: expected ErrInvalidConfig, got %v", tt.name, err)
		}
		if !tt.wantErr && err != nil {
			t.Errorf("%s: unexpected error %v", tt.name, err)
		}
	}
}

func TestPercentageChange_BoundaryInclusive(t *testing.T) {
	r, err := NewPercentageChange(90000, ptr(5), ptr(-5))
	if err != nil {
		t.Fatal(err)
	}
	// 94500 is exactly +5% of 90000.
	out := r.Evaluate("BTC", 94500)
	if !out.Triggered {
		t.Fatal("pct at high threshold should trigger")
	}
	if !strings.Contains(out.Message, "涨幅预警") {
		t.Errorf("expected rise alert, got %q", out.Message)
	}
	// 85500 is exactly -5%.
	out = r.Evaluate("BTC", 85500)
	if !out.Triggered {
		t.Fatal("pct at low threshold should trigger")
	}
	if !strings.Contains(out.Message, "跌幅预警") {
		t.Errorf("expected drop alert, got %q", out.Message)
	}
	if out := r.Evaluate("BTC", 90000); out.Triggered {
		t.Error("unchanged price should not trigger")
	}
	if out := r.Evaluate("BTC", 94000); out.Triggered {
		t.Error("+4.44% should not trigger")
	}
}

func TestPercentageChange_HighCheckedFirst(t *testing.T) {
	// Overlapping thresholds: high at -10, low at +10; pct=0 satisfies both.
	r, err := NewPercentageChange(100, ptr(-10), ptr(10))
	if err != nil {
		t.Fatal(err)
	}
	out := r.Evaluate("ETH", 100)
	if !out.Triggered {
		t.Fatal("expected trigger for overlapping thresholds")
	}
	if !strings.Contains(out.Condition, "涨幅") {
		t.Errorf("expected high-side condition, got %q", out.Condition)
	}
}

func TestDescribe(t *testing.T) {
	r1, _ := NewPriceThreshold(ptr(50000), ptr(40000))
	if d := r1.Describe(); !strings.Contains(d, "上限") || !strings.Contains(d, "下限") {
		t.Errorf("threshold describe: %q", d)
	}
	r2, _ := NewPercentageChange(90000, ptr(5), ptr(-5))
	d := r2.Describe()
	if !strings.Contains(d, "参考价") || !strings.Contains(d, "涨 5%") || !strings.Contains(d, "跌 5%") {
		t.Errorf("percentage describe: %q", d)
	}
}

func TestKind(t *testing.T) {
	r1, _ := NewPriceThreshold(ptr(1), nil)
	if r1.Kind() != KindPriceThreshold {
		t.Errorf("kind = %q", r1.Kind())
	}
	r2, _ := NewPercentageChange(1, ptr(1), nil)
	if r2.Kind() != KindPercentageChange {
		t.Errorf("kind = %q", r2.Kind())
	}
}
