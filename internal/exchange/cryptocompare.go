package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"CryptoSentinel/internal/model"
)

// CryptoCompareSource quotes USDT prices from the CryptoCompare API,
// pinned to Binance as the upstream exchange so readings line up with
// the direct Binance source.
type CryptoCompareSource struct {
	BaseURL  string
	Client   *http.Client
	APIKey   string
	Exchange string
}

// NewCryptoCompareSource creates a CryptoCompare price source. The api
// key is optional; without one the public quota applies.
func NewCryptoCompareSource(client *http.Client, apiKey string) *CryptoCompareSource {
	return &CryptoCompareSource{
		BaseURL:  "https://min-api.cryptocompare.com/data",
		Client:   client,
		APIKey:   apiKey,
		Exchange: "Binance",
	}
}

func (s *CryptoCompareSource) Name() string { return "cryptocompare" }

// CurrentPrice fetches the USDT conversion for the symbol.
func (s *CryptoCompareSource) CurrentPrice(ctx context.Context, symbol string) (*model.PriceQuote, error) {
	sym := NormalizeSymbol(symbol)

	q := url.Values{}
	q.Set("fsym", sym)
	q.Set("tsyms", "USDT")
	q.Set("e", s.Exchange)
	u := fmt.Sprintf("%s/price?%s", s.BaseURL, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	if s.APIKey != "" {
		req.Header.Set("Authorization", "Apikey "+s.APIKey)
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cryptocompare fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("cryptocompare read body: %w", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("cryptocompare: rate limit exceeded")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("cryptocompare: status %d, body: %s", resp.StatusCode, string(body))
	}

	// Errors come back as 200 with {"Response":"Error","Message":...};
	// a valid quote is {"USDT": 64123.45}.
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("cryptocompare decode: %w", err)
	}
	if respField, ok := raw["Response"]; ok {
		var status, msg string
		_ = json.Unmarshal(respField, &status)
		_ = json.Unmarshal(raw["Message"], &msg)
		if status == "Error" {
			return nil, fmt.Errorf("cryptocompare: api error: %s", msg)
		}
	}
	priceField, ok := raw["USDT"]
	if !ok {
		return nil, fmt.Errorf("cryptocompare: %q: %w", sym, ErrUnknownSymbol)
	}
	var price float64
	if err := json.Unmarshal(priceField, &price); err != nil {
		return nil, fmt.Errorf("cryptocompare: bad price payload: %w", err)
	}

	return &model.PriceQuote{
		Symbol:      sym,
		Price:       price,
		Source:      s.Name(),
		RetrievedAt: time.Now(),
	}, nil
}
