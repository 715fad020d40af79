package exchange

import (
	"context"
	"fmt"
	"sync"
	"time"

	"CryptoSentinel/internal/model"
)

// MockSource returns controllable fixed quotes for development and
// testing. When Prices is set, symbols outside it are unknown; otherwise
// every symbol quotes at Price. Err, when set, fails every call.
type MockSource struct {
	SourceName string
	Price      float64
	Prices     map[string]float64
	Err        error

	mu    sync.Mutex
	calls int
}

func (m *MockSource) Name() string {
	if m.SourceName == "" {
		return "mock"
	}
	return m.SourceName
}

func (m *MockSource) CurrentPrice(_ context.Context, symbol string) (*model.PriceQuote, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if m.Err != nil {
		return nil, m.Err
	}
	sym := NormalizeSymbol(symbol)
	price := m.Price
	if m.Prices != nil {
		p, ok := m.Prices[sym]
		if !ok {
			return nil, fmt.Errorf("%s: %q: %w", m.Name(), sym, ErrUnknownSymbol)
		}
		price = p
	}
	return &model.PriceQuote{
		Symbol:      sym,
		Price:       price,
		Source:      m.Name(),
		RetrievedAt: time.Now(),
	}, nil
}

// Calls reports how many lookups the source has served.
func (m *MockSource) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
