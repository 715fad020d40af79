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

// CoinGeckoSource quotes prices in USD from the CoinGecko public API.
// CoinGecko addresses coins by slug, so the source carries a static
// ticker-to-id table; tickers outside the table are unknown symbols.
type CoinGeckoSource struct {
	BaseURL string
	Client  *http.Client
	CoinIDs map[string]string
}

// NewCoinGeckoSource creates a CoinGecko price source.
func NewCoinGeckoSource(client *http.Client) *CoinGeckoSource {
	return &CoinGeckoSource{
		BaseURL: "https://api.coingecko.com/api/v3",
		Client:  client,
		CoinIDs: map[string]string{
			"BTC":   "bitcoin",
			"ETH":   "ethereum",
			"USDT":  "tether",
			"BNB":   "binancecoin",
			"SOL":   "solana",
			"XRP":   "ripple",
			"ADA":   "cardano",
			"DOGE":  "dogecoin",
			"AVAX":  "avalanche-2",
			"DOT":   "polkadot",
			"MATIC": "matic-network",
			"LINK":  "chainlink",
			"UNI":   "uniswap",
			"LTC":   "litecoin",
			"ATOM":  "cosmos",
			"ETC":   "ethereum-classic",
			"XLM":   "stellar",
			"NEAR":  "near",
			"ALGO":  "algorand",
			"BCH":   "bitcoin-cash",
			"FIL":   "filecoin",
			"APT":   "aptos",
			"ARB":   "arbitrum",
			"OP":    "optimism",
			"IMX":   "immutable-x",
			"STX":   "blockstack",
			"HBAR":  "hedera-hashgraph",
			"VET":   "vechain",
			"GRT":   "the-graph",
			"SAND":  "the-sandbox",
			"MANA":  "decentraland",
			"AAVE":  "aave",
			"RUNE":  "thorchain",
		},
	}
}

func (s *CoinGeckoSource) Name() string { return "coingecko" }

// CurrentPrice resolves the ticker to a coin id and fetches its USD price.
func (s *CoinGeckoSource) CurrentPrice(ctx context.Context, symbol string) (*model.PriceQuote, error) {
	sym := NormalizeSymbol(symbol)
	coinID, ok := s.CoinIDs[sym]
	if !ok {
		return nil, fmt.Errorf("coingecko: %q: %w", sym, ErrUnknownSymbol)
	}

	u := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=usd", s.BaseURL, url.QueryEscape(coinID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coingecko fetch: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("coingecko read body: %w", err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("coingecko: rate limit exceeded")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coingecko: status %d, body: %s", resp.StatusCode, string(body))
	}

	// Response shape: {"bitcoin": {"usd": 64123.45}}
	var prices map[string]map[string]float64
	if err := json.Unmarshal(body, &prices); err != nil {
		return nil, fmt.Errorf("coingecko decode: %w", err)
	}
	entry, ok := prices[coinID]
	if !ok {
		return nil, fmt.Errorf("coingecko: %q: %w", sym, ErrUnknownSymbol)
	}
	price, ok := entry["usd"]
	if !ok {
		return nil, fmt.Errorf("coingecko: no usd quote for %q", coinID)
	}

	return &model.PriceQuote{
		Symbol:      sym,
		Price:       price,
		Source:      s.Name(),
		RetrievedAt: time.Now(),
	}, nil
}
