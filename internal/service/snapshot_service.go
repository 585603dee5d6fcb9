package service

import (
	"context"
	"time"

	"github.com/defi-portfolio-tracker/internal/models"
	"github.com/defi-portfolio-tracker/internal/storage"
	"github.com/defi-portfolio-tracker/internal/types"
)

// SnapshotService serves persisted portfolio history
type SnapshotService struct {
	snapshots SnapshotStore
	cache     *storage.CacheService
}

// NewSnapshotService creates a new snapshot service. cache may be nil.
func NewSnapshotService(snapshots SnapshotStore, cache *storage.CacheService) *SnapshotService {
	return &SnapshotService{snapshots: snapshots, cache: cache}
}

// GetHistory returns a wallet's snapshots within [from, to], in chronological
// order. Wallet filter is optional (empty string = all wallets).
func (s *SnapshotService) GetHistory(ctx context.Context, userID, walletAddress string, from, to time.Time) ([]*models.DailySnapshot, error) {
	if walletAddress != "" {
		if err := storage.ValidateWalletAddress(walletAddress); err != nil {
			return nil, err
		}
		walletAddress = storage.NormalizeWalletAddress(walletAddress)
	}

	if to.Before(from) {
		return nil, &types.ServiceError{
			Code:    "INVALID_DATE_RANGE",
			Message: "end date must not be before start date",
			Details: map[string]interface{}{
				"from": from.Format("2006-01-02"),
				"to":   to.Format("2006-01-02"),
			},
		}
	}

	return s.snapshots.GetByDateRange(ctx, userID, walletAddress, from, to)
}

// GetLatest returns a wallet's most recent snapshot, consulting the cache
// first. Returns nil when the wallet has never been refreshed.
func (s *SnapshotService) GetLatest(ctx context.Context, userID, walletAddress string) (*models.DailySnapshot, error) {
	if err := storage.ValidateWalletAddress(walletAddress); err != nil {
		return nil, err
	}
	walletAddress = storage.NormalizeWalletAddress(walletAddress)

	if s.cache != nil {
		key := s.cache.Key(storage.CacheKeySnapshot, userID, walletAddress)
		var cached models.DailySnapshot
		if s.cache.GetJSON(ctx, key, &cached) {
			return &cached, nil
		}
	}

	snapshot, err := s.snapshots.GetLatest(ctx, userID, walletAddress)
	if err != nil || snapshot == nil {
		return snapshot, err
	}

	if s.cache != nil {
		key := s.cache.Key(storage.CacheKeySnapshot, userID, walletAddress)
		_ = s.cache.SetJSON(ctx, key, snapshot)
	}
	return snapshot, nil
}
