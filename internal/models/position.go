package models

import "github.com/defi-portfolio-tracker/internal/types"

// Token represents a single token holding with its USD pricing
type Token struct {
	Symbol   string  `json:"symbol"`
	Chain    string  `json:"chain,omitempty"`
	Amount   float64 `json:"amount"`
	PriceUSD float64 `json:"priceUsd"`
	USDValue float64 `json:"usdValue"`
}

// Sanitize coerces all numeric fields to finite non-negative numbers
func (t *Token) Sanitize() {
	t.Amount = types.SanitizeAmount(t.Amount)
	t.PriceUSD = types.SanitizeUSD(t.PriceUSD)
	t.USDValue = types.SanitizeUSD(t.USDValue)
	if t.USDValue == 0 && t.Amount > 0 && t.PriceUSD > 0 {
		t.USDValue = t.Amount * t.PriceUSD
	}
}

// RawPosition is a single protocol position as reported by the upstream
// aggregator. Ephemeral: never persisted directly.
type RawPosition struct {
	PoolID       string  `json:"poolId,omitempty"`
	SupplyTokens []Token `json:"supplyTokens"`
	RewardTokens []Token `json:"rewardTokens"`
	USDValue     float64 `json:"usdValue"`
}

// RawProtocol is a protocol entry as reported by the upstream aggregator,
// possibly duplicated across the same fetch.
type RawProtocol struct {
	Name        string        `json:"name"`
	Chain       string        `json:"chain"`
	NetUSDValue float64       `json:"netUsdValue"`
	Positions   []RawPosition `json:"positions"`
}

// Protocol is a deduplicated protocol with a stable position list
type Protocol struct {
	Name        string        `json:"name"`
	Chain       string        `json:"chain"`
	NetUSDValue float64       `json:"netUsdValue"`
	Positions   []RawPosition `json:"positions"`
}

// PositionRecord is a persisted per-protocol position inside a daily snapshot
type PositionRecord struct {
	ProtocolID    string  `json:"protocolId"`
	ProtocolName  string  `json:"protocolName"`
	Chain         string  `json:"chain"`
	SupplyTokens  []Token `json:"supplyTokens"`
	RewardTokens  []Token `json:"rewardTokens"`
	TotalUSDValue float64 `json:"totalUsdValue"`
}

// UnclaimedRewardsValue sums the USD value of all reward tokens
func (p *PositionRecord) UnclaimedRewardsValue() float64 {
	var total float64
	for _, t := range p.RewardTokens {
		total += types.SanitizeUSD(t.USDValue)
	}
	return total
}
