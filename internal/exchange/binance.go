package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"CryptoSentinel/internal/model"
)

// BinanceSource quotes spot pairs from the Binance public API.
type BinanceSource struct {
	BaseURL string
	Client  *http.Client
}

// NewBinanceSource creates a Binance price source.
func NewBinanceSource(client *http.Client) *BinanceSource {
	return &BinanceSource{
		BaseURL: "https://api.binance.com",
		Client:  client,
	}
}

func (s *BinanceSource) Name() string { return "binance" }

type binanceTicker struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

type binanceError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// CurrentPrice fetches the spot ticker for <symbol>USDT.
func (s *BinanceSource) CurrentPrice(ctx context.Context, symbol string) (*model.PriceQuote, error) {
	sym := NormalizeSymbol(symbol)
	pair := sym + "USDT"

	u := fmt.Sprintf("%s/api/v3/ticker/price?symbol=%s", s.BaseURL, url.QueryEscape(pair))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("binance fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("binance read body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr binanceError
		if json.Unmarshal(body, &apiErr) == nil && strings.Contains(apiErr.Msg, "Invalid symbol") {
			return nil, fmt.Errorf("binance: %q: %w", sym, ErrUnknownSymbol)
		}
		return nil, fmt.Errorf("binance: status %d, body: %s", resp.StatusCode, string(body))
	}

	var ticker binanceTicker
	if err := json.Unmarshal(body, &ticker); err != nil {
		return nil, fmt.Errorf("binance decode: %w", err)
	}
	price, err := strconv.ParseFloat(ticker.Price, 64)
	if err != nil {
		return nil, fmt.Errorf("binance: bad price %q: %w", ticker.Price, err)
	}

	return &model.PriceQuote{
		Symbol:      sym,
		Price:       price,
		Source:      s.Name(),
		RetrievedAt: time.Now(),
	}, nil
}
