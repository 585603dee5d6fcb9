package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/defi-portfolio-tracker/internal/models"
)

// PositionHistoryRepository handles the per-position daily valuation time
// series in ClickHouse. Rows are append-only; the ReplacingMergeTree engine
// collapses same-day rewrites to the latest version at read time.
type PositionHistoryRepository struct {
	db *ClickHouseDB
}

// NewPositionHistoryRepository creates a new position history repository
func NewPositionHistoryRepository(db *ClickHouseDB) *PositionHistoryRepository {
	return &PositionHistoryRepository{db: db}
}

// BatchInsert appends a batch of daily valuation points
func (r *PositionHistoryRepository) BatchInsert(ctx context.Context, entries []models.PositionHistory) error {
	if len(entries) == 0 {
		return nil
	}

	batch, err := r.db.Conn().PrepareBatch(ctx, `
		INSERT INTO position_history (
			user_id, wallet_address, protocol_name, position_id, date,
			total_value, unclaimed_rewards_value, is_active, updated_at
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare position history batch: %w", err)
	}

	now := time.Now()
	for _, e := range entries {
		if err := ValidateWalletAddress(e.WalletAddress); err != nil {
			return fmt.Errorf("invalid wallet %s: %w", e.WalletAddress, err)
		}

		updatedAt := e.UpdatedAt
		if updatedAt.IsZero() {
			updatedAt = now
		}

		isActive := uint8(0)
		if e.IsActive {
			isActive = 1
		}

		err := batch.Append(
			e.UserID,
			NormalizeWalletAddress(e.WalletAddress),
			e.ProtocolName,
			e.PositionID,
			e.Date,
			e.TotalValue,
			e.UnclaimedRewardsValue,
			isActive,
			updatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to append history row for position %s: %w", e.PositionID, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to insert position history batch: %w", err)
	}

	return nil
}

// ListUserHistory returns the latest version of every (position, day) point
// for a user at or before the cutoff date, ordered by date ascending.
func (r *PositionHistoryRepository) ListUserHistory(ctx context.Context, userID string, upTo time.Time) ([]models.PositionHistory, error) {
	query := `
		SELECT
			user_id,
			wallet_address,
			protocol_name,
			position_id,
			date,
			argMax(total_value, updated_at) AS total_value,
			argMax(unclaimed_rewards_value, updated_at) AS unclaimed_rewards_value,
			argMax(is_active, updated_at) AS is_active
		FROM position_history
		WHERE user_id = ? AND date <= ?
		GROUP BY user_id, wallet_address, protocol_name, position_id, date
		ORDER BY date ASC
	`

	rows, err := r.db.Conn().Query(ctx, query, userID, upTo)
	if err != nil {
		return nil, fmt.Errorf("failed to query position history for user %s: %w", userID, err)
	}
	defer rows.Close()

	var entries []models.PositionHistory
	for rows.Next() {
		var e models.PositionHistory
		var isActive uint8

		err := rows.Scan(
			&e.UserID,
			&e.WalletAddress,
			&e.ProtocolName,
			&e.PositionID,
			&e.Date,
			&e.TotalValue,
			&e.UnclaimedRewardsValue,
			&isActive,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position history row: %w", err)
		}

		e.IsActive = isActive == 1
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating position history rows: %w", err)
	}

	return entries, nil
}

// ListActivePositions returns the most recent point per position for one
// wallet, restricted to positions whose latest record is active. Used by the
// refresh pipeline to detect positions that disappeared from the upstream.
func (r *PositionHistoryRepository) ListActivePositions(ctx context.Context, userID, walletAddress string) ([]models.PositionHistory, error) {
	query := `
		SELECT
			user_id,
			wallet_address,
			protocol_name,
			position_id,
			max(date) AS latest_date,
			argMax(total_value, (date, updated_at)) AS total_value,
			argMax(unclaimed_rewards_value, (date, updated_at)) AS unclaimed_rewards_value,
			argMax(is_active, (date, updated_at)) AS is_active
		FROM position_history
		WHERE user_id = ? AND wallet_address = ?
		GROUP BY user_id, wallet_address, protocol_name, position_id
		HAVING is_active = 1
	`

	rows, err := r.db.Conn().Query(ctx, query, userID, NormalizeWalletAddress(walletAddress))
	if err != nil {
		return nil, fmt.Errorf("failed to query active positions for user %s wallet %s: %w", userID, walletAddress, err)
	}
	defer rows.Close()

	var entries []models.PositionHistory
	for rows.Next() {
		var e models.PositionHistory
		var isActive uint8

		err := rows.Scan(
			&e.UserID,
			&e.WalletAddress,
			&e.ProtocolName,
			&e.PositionID,
			&e.Date,
			&e.TotalValue,
			&e.UnclaimedRewardsValue,
			&isActive,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan active position row: %w", err)
		}

		e.IsActive = isActive == 1
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating active position rows: %w", err)
	}

	return entries, nil
}

// MarkInactive appends zero-valued inactive points for positions that have
// disappeared from an upstream refresh, so they drop out of future APY
// windows without their history being deleted.
func (r *PositionHistoryRepository) MarkInactive(ctx context.Context, userID, walletAddress string, positions []models.PositionHistory, date time.Time) error {
	if len(positions) == 0 {
		return nil
	}

	entries := make([]models.PositionHistory, 0, len(positions))
	for _, p := range positions {
		entries = append(entries, models.PositionHistory{
			UserID:                userID,
			WalletAddress:         walletAddress,
			ProtocolName:          p.ProtocolName,
			PositionID:            p.PositionID,
			Date:                  date,
			TotalValue:            0,
			UnclaimedRewardsValue: 0,
			IsActive:              false,
		})
	}

	return r.BatchInsert(ctx, entries)
}
