package aggregator

import (
	"context"

	"github.com/defi-portfolio-tracker/internal/models"
)

// Client fetches wallet holdings from an upstream portfolio aggregator
type Client interface {
	// GetTokenList returns the wallet's directly held tokens across all chains
	GetTokenList(ctx context.Context, walletAddress string) ([]models.Token, error)

	// GetProtocolList returns the wallet's DeFi protocol positions across all chains
	GetProtocolList(ctx context.Context, walletAddress string) ([]models.RawProtocol, error)
}

// PriceClient fetches current USD prices by token symbol
type PriceClient interface {
	// GetPrices returns USD prices keyed by lowercase symbol. Symbols the
	// upstream does not know are absent from the result, not errors.
	GetPrices(ctx context.Context, symbols []string) (map[string]float64, error)
}
