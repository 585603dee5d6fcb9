package aggregator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/defi-portfolio-tracker/internal/retry"
)

// CoinGeckoClient implements PriceClient against the CoinGecko simple price API
type CoinGeckoClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	retryCfg   *retry.Config
}

// NewCoinGeckoClient creates a CoinGecko price client
func NewCoinGeckoClient(baseURL, apiKey string, timeout time.Duration) *CoinGeckoClient {
	return &CoinGeckoClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		retryCfg: retry.DefaultConfig(),
	}
}

// symbolToID maps common token symbols to CoinGecko coin IDs. Symbols not in
// the map are passed through lowercased, which works for many long-tail coins.
var symbolToID = map[string]string{
	"eth":   "ethereum",
	"weth":  "weth",
	"btc":   "bitcoin",
	"wbtc":  "wrapped-bitcoin",
	"usdc":  "usd-coin",
	"usdt":  "tether",
	"dai":   "dai",
	"bnb":   "binancecoin",
	"matic": "matic-network",
	"avax":  "avalanche-2",
	"sol":   "solana",
	"arb":   "arbitrum",
	"op":    "optimism",
}

// GetPrices returns USD prices keyed by lowercase symbol. Unknown symbols are
// silently absent from the result.
func (c *CoinGeckoClient) GetPrices(ctx context.Context, symbols []string) (map[string]float64, error) {
	if len(symbols) == 0 {
		return map[string]float64{}, nil
	}

	ids := make([]string, 0, len(symbols))
	idToSymbol := make(map[string]string, len(symbols))
	for _, s := range symbols {
		symbol := strings.ToLower(s)
		id, ok := symbolToID[symbol]
		if !ok {
			id = symbol
		}
		ids = append(ids, id)
		idToSymbol[id] = symbol
	}

	params := url.Values{
		"ids":           {strings.Join(ids, ",")},
		"vs_currencies": {"usd"},
	}
	requestURL := c.baseURL + "/api/v3/simple/price?" + params.Encode()

	var raw map[string]map[string]float64
	err := retry.Do(ctx, c.retryCfg, func(ctx context.Context, attempt int) error {
		return c.doRequest(ctx, requestURL, &raw)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch prices: %w", err)
	}

	prices := make(map[string]float64, len(raw))
	for id, quote := range raw {
		symbol, ok := idToSymbol[id]
		if !ok {
			continue
		}
		if usd, ok := quote["usd"]; ok {
			prices[symbol] = usd
		}
	}
	return prices, nil
}

func (c *CoinGeckoClient) doRequest(ctx context.Context, requestURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-cg-pro-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("price API returned status %d", resp.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode price response: %w", err)
	}
	return nil
}
