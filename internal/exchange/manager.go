package exchange

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"CryptoSentinel/internal/model"
)

// DefaultCacheTTL bounds how long a quote may be served without a fresh
// provider round trip.
const DefaultCacheTTL = 30 * time.Second

// PriceUnavailableError reports that every configured source failed for
// one symbol. Reasons aggregates the per-source failures in probe order.
type PriceUnavailableError struct {
	Symbol  string
	Reasons error
}

func (e *PriceUnavailableError) Error() string {
	return fmt.Sprintf("all price sources failed for %s: %v", e.Symbol, e.Reasons)
}

func (e *PriceUnavailableError) Unwrap() error { return e.Reasons }

// Is matches a target against each aggregated reason, so
// errors.Is(err, ErrUnknownSymbol) holds when any source positively
// rejected the symbol.
func (e *PriceUnavailableError) Is(target error) bool {
	for _, reason := range multierr.Errors(e.Reasons) {
		if errors.Is(reason, target) {
			return true
		}
	}
	return false
}

// ManagerStatus is a point-in-time view of the failover state for
// diagnostics.
type ManagerStatus struct {
	Sources       []string `json:"sources"`
	Preferred     string   `json:"preferred"`
	CachedSymbols int      `json:"cached_symbols"`
	CacheTTL      string   `json:"cache_ttl"`
}

// Manager fans one price lookup across an ordered list of sources with a
// sticky preferred source and a short-lived quote cache. A failed
// preferred source is demoted for that call only; whichever source
// answers becomes preferred for the next call.
type Manager struct {
	sources []Source
	ttl     time.Duration
	log     zerolog.Logger

	mu        sync.Mutex
	preferred int
	cache     map[string]model.PriceQuote
}

// NewManager builds a failover manager over the given sources, in
// priority order. At least one source is required.
func NewManager(sources []Source, ttl time.Duration, log zerolog.Logger) (*Manager, error) {
	if len(sources) == 0 {
		return nil, errors.New("at least one price source is required")
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Manager{
		sources: sources,
		ttl:     ttl,
		log:     log,
		cache:   make(map[string]model.PriceQuote),
	}, nil
}

// CurrentPrice returns a quote for the symbol, serving from cache when a
// fresh entry exists and probing each source exactly once otherwise.
// When every source fails, the error is a *PriceUnavailableError and the
// cache is left untouched.
func (m *Manager) CurrentPrice(ctx context.Context, symbol string) (*model.PriceQuote, error) {
	sym := NormalizeSymbol(symbol)
	now := time.Now()

	m.mu.Lock()
	if q, ok := m.cache[sym]; ok && q.Age(now) < m.ttl {
		m.mu.Unlock()
		quote := q
		return &quote, nil
	}
	start := m.preferred
	m.mu.Unlock()

	var reasons error
	for attempt := 0; attempt < len(m.sources); attempt++ {
		idx := (start + attempt) % len(m.sources)
		src := m.sources[idx]

		quote, err := src.CurrentPrice(ctx, sym)
		if err != nil {
			reasons = multierr.Append(reasons, fmt.Errorf("%s: %w", src.Name(), err))
			m.log.Warn().Str("source", src.Name()).Str("symbol", sym).Err(err).Msg("price source failed")
			continue
		}

		m.mu.Lock()
		if m.preferred != idx {
			m.log.Info().
				Str("from", m.sources[m.preferred].Name()).
				Str("to", src.Name()).
				Msg("preferred price source switched")
			m.preferred = idx
		}
		m.cache[sym] = *quote
		m.mu.Unlock()
		return quote, nil
	}

	return nil, &PriceUnavailableError{Symbol: sym, Reasons: reasons}
}

// ValidateSymbol reports whether any source can quote the symbol right
// now. Used as an existence check before task creation.
func (m *Manager) ValidateSymbol(ctx context.Context, symbol string) bool {
	_, err := m.CurrentPrice(ctx, symbol)
	return err == nil
}

// MultiPrice looks up several symbols concurrently. The entry for a
// symbol whose lookup failed is nil; the batch itself never fails.
func (m *Manager) MultiPrice(ctx context.Context, symbols []string) map[string]*model.PriceQuote {
	results := make(map[string]*model.PriceQuote, len(symbols))
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, symbol := range symbols {
		sym := NormalizeSymbol(symbol)
		wg.Add(1)
		go func() {
			defer wg.Done()
			quote, err := m.CurrentPrice(ctx, sym)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				results[sym] = nil
				return
			}
			results[sym] = quote
		}()
	}
	wg.Wait()
	return results
}

// Status reports the current failover state.
func (m *Manager) Status() ManagerStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, len(m.sources))
	for i, s := range m.sources {
		names[i] = s.Name()
	}
	return ManagerStatus{
		Sources:       names,
		Preferred:     m.sources[m.preferred].Name(),
		CachedSymbols: len(m.cache),
		CacheTTL:      m.ttl.String(),
	}
}
