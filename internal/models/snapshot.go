package models

import (
	"time"

	"github.com/defi-portfolio-tracker/internal/types"
)

// DailySnapshot represents one persisted portfolio aggregate per
// (user, wallet, calendar day). Same-day refreshes update the row in place.
type DailySnapshot struct {
	ID              string           `json:"id" db:"id"`
	UserID          string           `json:"userId" db:"user_id"`
	WalletAddress   string           `json:"walletAddress" db:"wallet_address"`
	SnapshotDate    time.Time        `json:"snapshotDate" db:"snapshot_date"`
	TotalNavUSD     float64          `json:"totalNavUsd" db:"total_nav_usd"`
	TokensNavUSD    float64          `json:"tokensNavUsd" db:"tokens_nav_usd"`
	PositionsNavUSD float64          `json:"positionsNavUsd" db:"positions_nav_usd"`
	TokenHoldings   []Token          `json:"tokenHoldings" db:"token_holdings"`
	Positions       []PositionRecord `json:"positions" db:"positions"`
	CreatedAt       time.Time        `json:"createdAt" db:"created_at"`
	UpdatedAt       time.Time        `json:"updatedAt" db:"updated_at"`
}

// Sanitize coerces all monetary fields to finite non-negative numbers so
// invalid upstream data cannot propagate as NaN into stored totals.
func (s *DailySnapshot) Sanitize() {
	s.TotalNavUSD = types.SanitizeUSD(s.TotalNavUSD)
	s.TokensNavUSD = types.SanitizeUSD(s.TokensNavUSD)
	s.PositionsNavUSD = types.SanitizeUSD(s.PositionsNavUSD)
	for i := range s.TokenHoldings {
		s.TokenHoldings[i].Sanitize()
	}
	for i := range s.Positions {
		p := &s.Positions[i]
		p.TotalUSDValue = types.SanitizeUSD(p.TotalUSDValue)
		for j := range p.SupplyTokens {
			p.SupplyTokens[j].Sanitize()
		}
		for j := range p.RewardTokens {
			p.RewardTokens[j].Sanitize()
		}
	}
}

// PositionHistory is one daily valuation point for a single position,
// keyed by (user, wallet, protocol, position, day). IsActive is set false
// when the position disappears from an upstream refresh so it drops out of
// future APY windows without being deleted.
type PositionHistory struct {
	UserID                string    `json:"userId" db:"user_id"`
	WalletAddress         string    `json:"walletAddress" db:"wallet_address"`
	ProtocolName          string    `json:"protocolName" db:"protocol_name"`
	PositionID            string    `json:"positionId" db:"position_id"`
	Date                  time.Time `json:"date" db:"date"`
	TotalValue            float64   `json:"totalValue" db:"total_value"`
	UnclaimedRewardsValue float64   `json:"unclaimedRewardsValue" db:"unclaimed_rewards_value"`
	IsActive              bool      `json:"isActive" db:"is_active"`
	UpdatedAt             time.Time `json:"updatedAt" db:"updated_at"`
}
