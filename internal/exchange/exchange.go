// Package exchange retrieves spot prices from public market-data
// providers and layers sticky failover plus a short-lived quote cache
// on top of them.
package exchange

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"CryptoSentinel/internal/model"
)

// ErrUnknownSymbol reports that a provider positively identified the
// symbol as nonexistent, as opposed to a transient failure.
var ErrUnknownSymbol = errors.New("unknown symbol")

// Source is one external quote provider. Implementations translate the
// canonical uppercase ticker (BTC) to their own notation internally;
// the notation never leaks to callers.
type Source interface {
	CurrentPrice(ctx context.Context, symbol string) (*model.PriceQuote, error)
	Name() string
}

// NewHTTPClient builds the client shared by the providers, with an
// optional proxy.
func NewHTTPClient(timeout time.Duration, proxyURL string) *http.Client {
	transport := &http.Transport{}
	if proxyURL != "" {
		if u, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(u)
		}
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// NormalizeSymbol upper-cases the ticker and strips a trailing USDT pair
// suffix, so btc and BTCUSDT both canonicalize to BTC.
func NormalizeSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if s != "USDT" && strings.HasSuffix(s, "USDT") {
		s = strings.TrimSuffix(s, "USDT")
	}
	return s
}
