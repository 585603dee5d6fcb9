package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/defi-portfolio-tracker/internal/aggregator"
	"github.com/defi-portfolio-tracker/internal/identity"
	"github.com/defi-portfolio-tracker/internal/logging"
	"github.com/defi-portfolio-tracker/internal/models"
	"github.com/defi-portfolio-tracker/internal/storage"
	"github.com/defi-portfolio-tracker/internal/types"
)

// RefreshService pulls a wallet's current holdings from the upstream
// aggregator and persists the day's snapshot and position history.
type RefreshService struct {
	aggClient   aggregator.Client
	priceClient aggregator.PriceClient
	snapshots   SnapshotStore
	history     PositionHistoryStore
	cache       *storage.CacheService
	location    *time.Location
}

// NewRefreshService creates a new refresh service. cache and priceClient may
// be nil, disabling caching and price enrichment respectively.
func NewRefreshService(
	aggClient aggregator.Client,
	priceClient aggregator.PriceClient,
	snapshots SnapshotStore,
	history PositionHistoryStore,
	cache *storage.CacheService,
	location *time.Location,
) *RefreshService {
	if location == nil {
		location = time.UTC
	}
	return &RefreshService{
		aggClient:   aggClient,
		priceClient: priceClient,
		snapshots:   snapshots,
		history:     history,
		cache:       cache,
		location:    location,
	}
}

// RefreshResult is the outcome of a wallet refresh. Stale indicates the
// upstream fetch failed and the snapshot is the last persisted one.
type RefreshResult struct {
	Snapshot *models.DailySnapshot `json:"snapshot"`
	Stale    bool                  `json:"stale"`
}

// Refresh fetches the wallet's tokens and protocol positions, deduplicates
// them, and upserts today's snapshot. When the upstream is unavailable it
// degrades to the most recent persisted snapshot instead of failing.
func (s *RefreshService) Refresh(ctx context.Context, userID, walletAddress string) (*RefreshResult, error) {
	logger := logging.FromContext(ctx).WithFields(map[string]interface{}{
		"userId": userID,
		"wallet": walletAddress,
	})

	if err := storage.ValidateWalletAddress(walletAddress); err != nil {
		return nil, err
	}
	walletAddress = storage.NormalizeWalletAddress(walletAddress)

	tokens, rawProtocols, err := s.fetchHoldings(ctx, walletAddress)
	if err != nil {
		logger.WithError(err).Warn("Upstream fetch failed, falling back to last snapshot")
		return s.fallbackToLatest(ctx, userID, walletAddress, err)
	}

	s.enrichPrices(ctx, tokens)

	protocols := identity.Dedupe(rawProtocols)
	logger.WithFields(map[string]interface{}{
		"rawProtocols": len(rawProtocols),
		"dedupedCount": len(protocols),
		"tokenCount":   len(tokens),
	}).Info("Holdings fetched and deduplicated")

	snapshotDate := s.today()
	snapshot := s.buildSnapshot(userID, walletAddress, snapshotDate, tokens, protocols)

	if err := s.snapshots.Upsert(ctx, snapshot); err != nil {
		return nil, fmt.Errorf("failed to persist snapshot: %w", err)
	}

	if err := s.recordPositionHistory(ctx, userID, walletAddress, snapshotDate, protocols); err != nil {
		// Snapshot persisted; history failure degrades APY freshness only
		logger.WithError(err).Error("Failed to record position history")
	}

	if s.cache != nil {
		if err := s.cache.InvalidateWallet(ctx, userID, walletAddress); err != nil {
			logger.WithError(err).Warn("Failed to invalidate wallet cache")
		}
		key := s.cache.Key(storage.CacheKeySnapshot, userID, walletAddress)
		if err := s.cache.SetJSON(ctx, key, snapshot); err != nil {
			logger.WithError(err).Warn("Failed to cache snapshot")
		}
	}

	return &RefreshResult{Snapshot: snapshot}, nil
}

// fetchHoldings fetches tokens and protocol positions concurrently
func (s *RefreshService) fetchHoldings(ctx context.Context, walletAddress string) ([]models.Token, []models.RawProtocol, error) {
	var (
		wg        sync.WaitGroup
		tokens    []models.Token
		protocols []models.RawProtocol
		tokenErr  error
		protoErr  error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		tokens, tokenErr = s.aggClient.GetTokenList(ctx, walletAddress)
	}()
	go func() {
		defer wg.Done()
		protocols, protoErr = s.aggClient.GetProtocolList(ctx, walletAddress)
	}()
	wg.Wait()

	if tokenErr != nil {
		return nil, nil, fmt.Errorf("token fetch failed: %w", tokenErr)
	}
	if protoErr != nil {
		return nil, nil, fmt.Errorf("protocol fetch failed: %w", protoErr)
	}
	return tokens, protocols, nil
}

// fallbackToLatest serves the most recent persisted snapshot when the
// upstream is unavailable
func (s *RefreshService) fallbackToLatest(ctx context.Context, userID, walletAddress string, fetchErr error) (*RefreshResult, error) {
	latest, err := s.snapshots.GetLatest(ctx, userID, walletAddress)
	if err != nil {
		return nil, fmt.Errorf("upstream fetch failed and fallback lookup errored: %w", err)
	}
	if latest == nil {
		return nil, &types.ServiceError{
			Code:    "REFRESH_FAILED",
			Message: "upstream fetch failed and no prior snapshot exists",
			Details: map[string]interface{}{
				"cause": fetchErr.Error(),
			},
		}
	}
	return &RefreshResult{Snapshot: latest, Stale: true}, nil
}

// enrichPrices fills in zero prices from the price API where possible.
// Best-effort: pricing failures leave the affected tokens at zero value.
func (s *RefreshService) enrichPrices(ctx context.Context, tokens []models.Token) {
	if s.priceClient == nil {
		return
	}

	var missing []string
	seen := make(map[string]struct{})
	for _, t := range tokens {
		if t.PriceUSD == 0 && t.Amount > 0 {
			symbol := strings.ToLower(t.Symbol)
			if _, dup := seen[symbol]; !dup {
				seen[symbol] = struct{}{}
				missing = append(missing, symbol)
			}
		}
	}
	if len(missing) == 0 {
		return
	}

	prices, err := s.priceClient.GetPrices(ctx, missing)
	if err != nil {
		logging.FromContext(ctx).WithError(err).Warn("Price enrichment failed")
		return
	}

	for i := range tokens {
		t := &tokens[i]
		if t.PriceUSD != 0 {
			continue
		}
		if price, ok := prices[strings.ToLower(t.Symbol)]; ok {
			t.PriceUSD = price
			t.USDValue = t.Amount * price
			t.Sanitize()
		}
	}
}

// buildSnapshot assembles the day's snapshot from deduplicated holdings
func (s *RefreshService) buildSnapshot(userID, walletAddress string, snapshotDate time.Time, tokens []models.Token, protocols []models.Protocol) *models.DailySnapshot {
	var tokensNav float64
	for i := range tokens {
		tokens[i].Sanitize()
		tokensNav += tokens[i].USDValue
	}

	var positionsNav float64
	positions := make([]models.PositionRecord, 0)
	for _, protocol := range protocols {
		positionsNav += types.SanitizeUSD(protocol.NetUSDValue)
		for i := range protocol.Positions {
			pos := protocol.Positions[i]
			record := models.PositionRecord{
				ProtocolID:    identity.PositionID(protocol.Name, &pos),
				ProtocolName:  protocol.Name,
				Chain:         protocol.Chain,
				SupplyTokens:  pos.SupplyTokens,
				RewardTokens:  pos.RewardTokens,
				TotalUSDValue: types.SanitizeUSD(pos.USDValue),
			}
			positions = append(positions, record)
		}
	}

	snapshot := &models.DailySnapshot{
		UserID:          userID,
		WalletAddress:   walletAddress,
		SnapshotDate:    snapshotDate,
		TotalNavUSD:     tokensNav + positionsNav,
		TokensNavUSD:    tokensNav,
		PositionsNavUSD: positionsNav,
		TokenHoldings:   tokens,
		Positions:       positions,
	}
	snapshot.Sanitize()
	return snapshot
}

// recordPositionHistory appends today's valuation point for every current
// position and marks positions that disappeared since the last refresh as
// inactive
func (s *RefreshService) recordPositionHistory(ctx context.Context, userID, walletAddress string, snapshotDate time.Time, protocols []models.Protocol) error {
	current := make(map[string]struct{})
	var entries []models.PositionHistory

	for _, protocol := range protocols {
		for i := range protocol.Positions {
			pos := protocol.Positions[i]
			positionID := identity.PositionID(protocol.Name, &pos)
			current[positionID] = struct{}{}

			var rewards float64
			for _, t := range pos.RewardTokens {
				rewards += types.SanitizeUSD(t.USDValue)
			}

			entries = append(entries, models.PositionHistory{
				UserID:                userID,
				WalletAddress:         walletAddress,
				ProtocolName:          protocol.Name,
				PositionID:            positionID,
				Date:                  snapshotDate,
				TotalValue:            types.SanitizeUSD(pos.USDValue),
				UnclaimedRewardsValue: rewards,
				IsActive:              true,
			})
		}
	}

	if err := s.history.BatchInsert(ctx, entries); err != nil {
		return err
	}

	active, err := s.history.ListActivePositions(ctx, userID, walletAddress)
	if err != nil {
		return fmt.Errorf("failed to list active positions: %w", err)
	}

	var disappeared []models.PositionHistory
	for _, p := range active {
		if _, stillHeld := current[p.PositionID]; !stillHeld {
			disappeared = append(disappeared, p)
		}
	}
	if len(disappeared) == 0 {
		return nil
	}
	return s.history.MarkInactive(ctx, userID, walletAddress, disappeared, snapshotDate)
}

// today returns midnight of the current calendar day in the configured
// snapshot timezone
func (s *RefreshService) today() time.Time {
	now := time.Now().In(s.location)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
