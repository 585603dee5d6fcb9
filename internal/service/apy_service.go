package service

import (
	"context"
	"fmt"
	"time"

	"github.com/defi-portfolio-tracker/internal/apy"
	"github.com/defi-portfolio-tracker/internal/storage"
)

// ApyService computes per-position annualized yields, caching computed
// result sets
type ApyService struct {
	engine *apy.Engine
	cache  *storage.CacheService
}

// NewApyService creates a new APY service. cache may be nil.
func NewApyService(history apy.HistorySource, cache *storage.CacheService) *ApyService {
	return &ApyService{
		engine: apy.NewEngine(history),
		cache:  cache,
	}
}

// GetPositionAPYs computes APYs for all of a user's positions as of
// targetDate over a trailing window of periodDays
func (s *ApyService) GetPositionAPYs(ctx context.Context, userID string, targetDate time.Time, periodDays int) (map[string]apy.Result, error) {
	var cacheKey string
	if s.cache != nil {
		cacheKey = s.cache.Key(storage.CacheKeyAPY, userID,
			targetDate.Format("2006-01-02"), fmt.Sprintf("%d", periodDays))

		var cached map[string]apy.Result
		if s.cache.GetJSON(ctx, cacheKey, &cached) {
			return cached, nil
		}
	}

	results, err := s.engine.CalculateAllPositionAPYs(ctx, userID, targetDate, periodDays)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		_ = s.cache.SetJSON(ctx, cacheKey, results)
	}
	return results, nil
}
