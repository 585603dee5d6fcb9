package aggregator

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/defi-portfolio-tracker/internal/retry"
	"github.com/defi-portfolio-tracker/internal/types"
)

const testWallet = "0x1234567890123456789012345678901234567890"

func newTestDeBankClient(serverURL string) *DeBankClient {
	client := NewDeBankClient(serverURL, "test-key", 2*time.Second)
	client.retryCfg = &retry.Config{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
	return client
}

func TestGetTokenList(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/user/all_token_list" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("id"); got != testWallet {
			t.Errorf("id param = %q, want %q", got, testWallet)
		}
		if got := r.Header.Get("AccessKey"); got != "test-key" {
			t.Errorf("AccessKey header = %q, want test-key", got)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"symbol": "ETH", "chain": "eth", "amount": 2.5, "price": 2500.0},
			{"symbol": "USDC", "chain": "eth", "amount": 1000.0, "price": 1.0}
		]`))
	}))
	defer server.Close()

	client := newTestDeBankClient(server.URL)
	tokens, err := client.GetTokenList(context.Background(), testWallet)
	if err != nil {
		t.Fatalf("GetTokenList() error = %v", err)
	}

	if len(tokens) != 2 {
		t.Fatalf("got %d tokens, want 2", len(tokens))
	}
	if tokens[0].Symbol != "ETH" || tokens[0].USDValue != 6250.0 {
		t.Errorf("token[0] = %+v, want ETH with USDValue 6250", tokens[0])
	}
}

func TestGetProtocolList(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/user/all_complex_protocol_list" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{
				"name": "Aave V3",
				"chain": "eth",
				"portfolio_item_list": [
					{
						"pool": {"id": "0xpool1"},
						"detail": {
							"supply_token_list": [
								{"symbol": "ETH", "chain": "eth", "amount": 1.5, "price": 2500.0}
							],
							"reward_token_list": [
								{"symbol": "AAVE", "chain": "eth", "amount": 0.1, "price": 100.0}
							]
						},
						"stats": {"net_usd_value": 3760.0}
					}
				]
			}
		]`))
	}))
	defer server.Close()

	client := newTestDeBankClient(server.URL)
	protocols, err := client.GetProtocolList(context.Background(), testWallet)
	if err != nil {
		t.Fatalf("GetProtocolList() error = %v", err)
	}

	if len(protocols) != 1 {
		t.Fatalf("got %d protocols, want 1", len(protocols))
	}
	p := protocols[0]
	if p.Name != "Aave V3" {
		t.Errorf("protocol name = %q, want Aave V3", p.Name)
	}
	if p.NetUSDValue != 3760.0 {
		t.Errorf("protocol net USD value = %v, want 3760", p.NetUSDValue)
	}
	if len(p.Positions) != 1 {
		t.Fatalf("got %d positions, want 1", len(p.Positions))
	}
	pos := p.Positions[0]
	if pos.PoolID != "0xpool1" {
		t.Errorf("pool ID = %q, want 0xpool1", pos.PoolID)
	}
	if pos.USDValue != 3760.0 {
		t.Errorf("USD value = %v, want 3760", pos.USDValue)
	}
	if len(pos.SupplyTokens) != 1 || pos.SupplyTokens[0].USDValue != 3750.0 {
		t.Errorf("supply tokens = %+v, want ETH with USDValue 3750", pos.SupplyTokens)
	}
	if len(pos.RewardTokens) != 1 || pos.RewardTokens[0].Symbol != "AAVE" {
		t.Errorf("reward tokens = %+v, want AAVE", pos.RewardTokens)
	}
}

func TestGetTokenListRetriesTransientFailure(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"symbol": "ETH", "chain": "eth", "amount": 1.0, "price": 2500.0}]`))
	}))
	defer server.Close()

	client := newTestDeBankClient(server.URL)
	tokens, err := client.GetTokenList(context.Background(), testWallet)
	if err != nil {
		t.Fatalf("GetTokenList() error = %v, want success after retries", err)
	}
	if len(tokens) != 1 {
		t.Errorf("got %d tokens, want 1", len(tokens))
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("server calls = %d, want 3", got)
	}
}

func TestGetTokenListUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := newTestDeBankClient(server.URL)
	_, err := client.GetTokenList(context.Background(), testWallet)
	if err == nil {
		t.Fatal("GetTokenList() expected error for persistent 500s")
	}

	var svcErr *types.ServiceError
	if !errors.As(err, &svcErr) {
		t.Fatalf("error does not wrap ServiceError: %v", err)
	}
	if svcErr.Code != "UPSTREAM_ERROR" {
		t.Errorf("error code = %q, want UPSTREAM_ERROR", svcErr.Code)
	}
}

func TestGetPrices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/simple/price" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"ethereum": {"usd": 2500.5},
			"usd-coin": {"usd": 1.0}
		}`))
	}))
	defer server.Close()

	client := NewCoinGeckoClient(server.URL, "", 2*time.Second)
	client.retryCfg = &retry.Config{MaxAttempts: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1.0}

	prices, err := client.GetPrices(context.Background(), []string{"ETH", "USDC", "UNKNOWN"})
	if err != nil {
		t.Fatalf("GetPrices() error = %v", err)
	}

	if prices["eth"] != 2500.5 {
		t.Errorf("eth price = %v, want 2500.5", prices["eth"])
	}
	if prices["usdc"] != 1.0 {
		t.Errorf("usdc price = %v, want 1.0", prices["usdc"])
	}
	if _, ok := prices["unknown"]; ok {
		t.Error("unknown symbol should be absent, not zero")
	}
}

func TestGetPricesEmptyInput(t *testing.T) {
	client := NewCoinGeckoClient("http://unused", "", time.Second)
	prices, err := client.GetPrices(context.Background(), nil)
	if err != nil {
		t.Fatalf("GetPrices() error = %v", err)
	}
	if len(prices) != 0 {
		t.Errorf("got %d prices, want 0", len(prices))
	}
}
