package service

import (
	"context"
	"time"

	"github.com/defi-portfolio-tracker/internal/models"
)

// SnapshotStore persists daily portfolio snapshots
type SnapshotStore interface {
	Upsert(ctx context.Context, snapshot *models.DailySnapshot) error
	GetLatest(ctx context.Context, userID, walletAddress string) (*models.DailySnapshot, error)
	GetByDateRange(ctx context.Context, userID, walletAddress string, from, to time.Time) ([]*models.DailySnapshot, error)
}

// PositionHistoryStore persists the per-position daily valuation time series
type PositionHistoryStore interface {
	BatchInsert(ctx context.Context, entries []models.PositionHistory) error
	ListUserHistory(ctx context.Context, userID string, upTo time.Time) ([]models.PositionHistory, error)
	ListActivePositions(ctx context.Context, userID, walletAddress string) ([]models.PositionHistory, error)
	MarkInactive(ctx context.Context, userID, walletAddress string, positions []models.PositionHistory, date time.Time) error
}

// NavSettingsStore persists NAV reporting periods keyed by (user, year, month)
type NavSettingsStore interface {
	Get(ctx context.Context, userID string, year, month int) (*models.NavSettings, error)
	Upsert(ctx context.Context, settings *models.NavSettings) error
	GetPrior(ctx context.Context, userID string, year, month int) (*models.NavSettings, error)
	Delete(ctx context.Context, userID string, year, month int) error
}
