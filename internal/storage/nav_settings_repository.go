package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/defi-portfolio-tracker/internal/models"
	"github.com/defi-portfolio-tracker/internal/types"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NavSettingsRepository persists NAV reporting periods keyed by
// (user, year, month)
type NavSettingsRepository struct {
	pool *pgxpool.Pool
}

// NewNavSettingsRepository creates a new NAV settings repository
func NewNavSettingsRepository(pool *pgxpool.Pool) *NavSettingsRepository {
	return &NavSettingsRepository{pool: pool}
}

// Get retrieves the settings for one (user, year, month), or nil when the
// period has never been saved
func (r *NavSettingsRepository) Get(ctx context.Context, userID string, year, month int) (*models.NavSettings, error) {
	query := `
		SELECT user_id, year, month, fee_settings, nav_calculations, created_at, updated_at
		FROM nav_settings
		WHERE user_id = $1 AND year = $2 AND month = $3
	`

	var settings models.NavSettings
	var feeJSON, calcJSON []byte

	err := r.pool.QueryRow(ctx, query, userID, year, month).Scan(
		&settings.UserID,
		&settings.Year,
		&settings.Month,
		&feeJSON,
		&calcJSON,
		&settings.CreatedAt,
		&settings.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get NAV settings for user %s period %d-%02d: %w", userID, year, month, err)
	}

	if err := json.Unmarshal(feeJSON, &settings.FeeSettings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal fee settings: %w", err)
	}
	if err := json.Unmarshal(calcJSON, &settings.NavCalculations); err != nil {
		return nil, fmt.Errorf("failed to unmarshal NAV calculations: %w", err)
	}

	return &settings, nil
}

// Upsert saves the settings for one (user, year, month), creating the period
// row when it does not exist yet
func (r *NavSettingsRepository) Upsert(ctx context.Context, settings *models.NavSettings) error {
	now := time.Now()
	if settings.CreatedAt.IsZero() {
		settings.CreatedAt = now
	}
	settings.UpdatedAt = now

	feeJSON, err := json.Marshal(settings.FeeSettings)
	if err != nil {
		return fmt.Errorf("failed to marshal fee settings: %w", err)
	}
	calcJSON, err := json.Marshal(settings.NavCalculations)
	if err != nil {
		return fmt.Errorf("failed to marshal NAV calculations: %w", err)
	}

	query := `
		INSERT INTO nav_settings (user_id, year, month, fee_settings, nav_calculations, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, year, month)
		DO UPDATE SET
			fee_settings = EXCLUDED.fee_settings,
			nav_calculations = EXCLUDED.nav_calculations,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.pool.Exec(ctx, query,
		settings.UserID,
		settings.Year,
		settings.Month,
		feeJSON,
		calcJSON,
		settings.CreatedAt,
		settings.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save NAV settings for user %s period %d-%02d: %w",
			settings.UserID, settings.Year, settings.Month, err)
	}

	return nil
}

// GetPrior retrieves the immediately preceding calendar month's settings,
// or nil when no prior period exists
func (r *NavSettingsRepository) GetPrior(ctx context.Context, userID string, year, month int) (*models.NavSettings, error) {
	prevYear, prevMonth := PreviousPeriod(year, month)
	return r.Get(ctx, userID, prevYear, prevMonth)
}

// Delete removes a period's settings. Administrative reset only; periods are
// never auto-deleted.
func (r *NavSettingsRepository) Delete(ctx context.Context, userID string, year, month int) error {
	query := `DELETE FROM nav_settings WHERE user_id = $1 AND year = $2 AND month = $3`

	result, err := r.pool.Exec(ctx, query, userID, year, month)
	if err != nil {
		return fmt.Errorf("failed to delete NAV settings for user %s period %d-%02d: %w", userID, year, month, err)
	}

	if result.RowsAffected() == 0 {
		return &types.ServiceError{
			Code:    "NAV_NOT_FOUND",
			Message: fmt.Sprintf("no NAV settings for period %d-%02d", year, month),
		}
	}

	return nil
}

// PreviousPeriod returns the calendar month immediately before (year, month)
func PreviousPeriod(year, month int) (int, int) {
	if month == 1 {
		return year - 1, 12
	}
	return year, month - 1
}
