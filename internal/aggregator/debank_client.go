package aggregator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/defi-portfolio-tracker/internal/circuitbreaker"
	"github.com/defi-portfolio-tracker/internal/logging"
	"github.com/defi-portfolio-tracker/internal/models"
	"github.com/defi-portfolio-tracker/internal/retry"
	"github.com/defi-portfolio-tracker/internal/types"
)

// DeBankClient implements Client against the DeBank Cloud API
type DeBankClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	retryCfg   *retry.Config
	breaker    *circuitbreaker.CircuitBreaker
}

// NewDeBankClient creates a DeBank API client with retry and circuit breaker
// protection
func NewDeBankClient(baseURL, apiKey string, timeout time.Duration) *DeBankClient {
	return &DeBankClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		retryCfg: retry.DefaultConfig(),
		breaker:  circuitbreaker.New(circuitbreaker.DefaultConfig("debank")),
	}
}

// debankToken is the wire shape of a token entry
type debankToken struct {
	Symbol string  `json:"symbol"`
	Chain  string  `json:"chain"`
	Amount float64 `json:"amount"`
	Price  float64 `json:"price"`
}

// debankProtocol is the wire shape of a protocol with its portfolio items
type debankProtocol struct {
	Name          string `json:"name"`
	Chain         string `json:"chain"`
	PortfolioList []struct {
		Pool *struct {
			ID string `json:"id"`
		} `json:"pool"`
		Detail struct {
			SupplyTokenList []debankToken `json:"supply_token_list"`
			RewardTokenList []debankToken `json:"reward_token_list"`
		} `json:"detail"`
		Stats struct {
			NetUSDValue float64 `json:"net_usd_value"`
		} `json:"stats"`
	} `json:"portfolio_item_list"`
}

// GetTokenList returns the wallet's directly held tokens across all chains
func (c *DeBankClient) GetTokenList(ctx context.Context, walletAddress string) ([]models.Token, error) {
	var raw []debankToken
	err := c.get(ctx, "/v1/user/all_token_list", url.Values{
		"id":       {walletAddress},
		"is_all":   {"false"},
		"chain_id": {""},
	}, &raw)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch token list for %s: %w", walletAddress, err)
	}

	tokens := make([]models.Token, 0, len(raw))
	for _, t := range raw {
		token := models.Token{
			Symbol:   t.Symbol,
			Chain:    t.Chain,
			Amount:   t.Amount,
			PriceUSD: t.Price,
		}
		token.Sanitize()
		tokens = append(tokens, token)
	}
	return tokens, nil
}

// GetProtocolList returns the wallet's DeFi protocol positions across all chains
func (c *DeBankClient) GetProtocolList(ctx context.Context, walletAddress string) ([]models.RawProtocol, error) {
	var raw []debankProtocol
	err := c.get(ctx, "/v1/user/all_complex_protocol_list", url.Values{
		"id": {walletAddress},
	}, &raw)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch protocol list for %s: %w", walletAddress, err)
	}

	protocols := make([]models.RawProtocol, 0, len(raw))
	for _, p := range raw {
		protocol := models.RawProtocol{
			Name:  p.Name,
			Chain: p.Chain,
		}
		for _, item := range p.PortfolioList {
			position := models.RawPosition{
				USDValue: item.Stats.NetUSDValue,
			}
			if item.Pool != nil {
				position.PoolID = item.Pool.ID
			}
			for _, st := range item.Detail.SupplyTokenList {
				token := models.Token{Symbol: st.Symbol, Chain: st.Chain, Amount: st.Amount, PriceUSD: st.Price}
				token.Sanitize()
				position.SupplyTokens = append(position.SupplyTokens, token)
			}
			for _, rt := range item.Detail.RewardTokenList {
				token := models.Token{Symbol: rt.Symbol, Chain: rt.Chain, Amount: rt.Amount, PriceUSD: rt.Price}
				token.Sanitize()
				position.RewardTokens = append(position.RewardTokens, token)
			}
			protocol.Positions = append(protocol.Positions, position)
			protocol.NetUSDValue += item.Stats.NetUSDValue
		}
		protocols = append(protocols, protocol)
	}
	return protocols, nil
}

// get performs a GET request with retry and circuit breaker protection,
// decoding the JSON response into out
func (c *DeBankClient) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	requestURL := c.baseURL + path
	if len(params) > 0 {
		requestURL += "?" + params.Encode()
	}

	return c.breaker.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryCfg, func(ctx context.Context, attempt int) error {
			return c.doRequest(ctx, requestURL, out)
		})
	})
}

func (c *DeBankClient) doRequest(ctx context.Context, requestURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("AccessKey", c.apiKey)
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
		logging.WithFields(map[string]interface{}{
			"status": resp.StatusCode,
			"url":    requestURL,
		}).Warn("Aggregator returned non-200 status")
		return &types.ServiceError{
			Code:    "UPSTREAM_ERROR",
			Message: fmt.Sprintf("aggregator returned status %d", resp.StatusCode),
			Details: map[string]interface{}{
				"status": resp.StatusCode,
			},
		}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode aggregator response: %w", err)
	}
	return nil
}
