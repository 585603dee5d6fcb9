package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/defi-portfolio-tracker/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SnapshotRepository handles daily portfolio snapshot persistence.
// One row per (user, wallet, calendar day); same-day writes update in place.
type SnapshotRepository struct {
	pool *pgxpool.Pool
}

// NewSnapshotRepository creates a new snapshot repository
func NewSnapshotRepository(pool *pgxpool.Pool) *SnapshotRepository {
	return &SnapshotRepository{pool: pool}
}

// Upsert stores a daily snapshot. The unique index on
// (user_id, wallet_address, snapshot_date) makes the write an atomic
// find-and-upsert: concurrent same-day refreshes converge to last-write-wins
// without ever producing a second row.
func (r *SnapshotRepository) Upsert(ctx context.Context, snapshot *models.DailySnapshot) error {
	if err := ValidateWalletAddress(snapshot.WalletAddress); err != nil {
		return err
	}
	snapshot.WalletAddress = NormalizeWalletAddress(snapshot.WalletAddress)
	snapshot.Sanitize()

	if snapshot.ID == "" {
		snapshot.ID = uuid.New().String()
	}

	now := time.Now()
	if snapshot.CreatedAt.IsZero() {
		snapshot.CreatedAt = now
	}
	snapshot.UpdatedAt = now

	tokenHoldingsJSON, err := json.Marshal(snapshot.TokenHoldings)
	if err != nil {
		return fmt.Errorf("failed to marshal token holdings: %w", err)
	}
	positionsJSON, err := json.Marshal(snapshot.Positions)
	if err != nil {
		return fmt.Errorf("failed to marshal positions: %w", err)
	}

	query := `
		INSERT INTO snapshots (
			id,
			user_id,
			wallet_address,
			snapshot_date,
			total_nav_usd,
			tokens_nav_usd,
			positions_nav_usd,
			token_holdings,
			positions,
			created_at,
			updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (user_id, wallet_address, snapshot_date)
		DO UPDATE SET
			total_nav_usd = EXCLUDED.total_nav_usd,
			tokens_nav_usd = EXCLUDED.tokens_nav_usd,
			positions_nav_usd = EXCLUDED.positions_nav_usd,
			token_holdings = EXCLUDED.token_holdings,
			positions = EXCLUDED.positions,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.pool.Exec(ctx, query,
		snapshot.ID,
		snapshot.UserID,
		snapshot.WalletAddress,
		snapshot.SnapshotDate,
		snapshot.TotalNavUSD,
		snapshot.TokensNavUSD,
		snapshot.PositionsNavUSD,
		tokenHoldingsJSON,
		positionsJSON,
		snapshot.CreatedAt,
		snapshot.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to upsert snapshot for user %s wallet %s: %w",
			snapshot.UserID, snapshot.WalletAddress, err)
	}

	return nil
}

const snapshotColumns = `
	id,
	user_id,
	wallet_address,
	snapshot_date,
	total_nav_usd,
	tokens_nav_usd,
	positions_nav_usd,
	token_holdings,
	positions,
	created_at,
	updated_at
`

// GetByDateRange retrieves snapshots for a user within a date range, in
// chronological order. Wallet filter is optional (empty string = all wallets).
func (r *SnapshotRepository) GetByDateRange(ctx context.Context, userID, walletAddress string, from, to time.Time) ([]*models.DailySnapshot, error) {
	query := `
		SELECT ` + snapshotColumns + `
		FROM snapshots
		WHERE user_id = $1
			AND snapshot_date >= $2
			AND snapshot_date <= $3
	`
	args := []interface{}{userID, from, to}

	if walletAddress != "" {
		query += ` AND wallet_address = $4`
		args = append(args, NormalizeWalletAddress(walletAddress))
	}
	query += ` ORDER BY snapshot_date ASC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots for user %s: %w", userID, err)
	}
	defer rows.Close()

	var snapshots []*models.DailySnapshot
	for rows.Next() {
		snapshot, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, snapshot)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshot rows: %w", err)
	}

	return snapshots, nil
}

// GetLatest retrieves the most recent snapshot for a wallet, or nil when
// none exists. Used as the degradation fallback when an upstream refresh fails.
func (r *SnapshotRepository) GetLatest(ctx context.Context, userID, walletAddress string) (*models.DailySnapshot, error) {
	query := `
		SELECT ` + snapshotColumns + `
		FROM snapshots
		WHERE user_id = $1 AND wallet_address = $2
		ORDER BY snapshot_date DESC
		LIMIT 1
	`

	rows, err := r.pool.Query(ctx, query, userID, NormalizeWalletAddress(walletAddress))
	if err != nil {
		return nil, fmt.Errorf("failed to query latest snapshot for user %s wallet %s: %w", userID, walletAddress, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("error reading latest snapshot: %w", err)
		}
		return nil, nil // no snapshot yet
	}

	return scanSnapshot(rows)
}

// scanSnapshot reads one snapshot row including its JSON columns
func scanSnapshot(row pgx.Row) (*models.DailySnapshot, error) {
	var snapshot models.DailySnapshot
	var tokenHoldingsJSON, positionsJSON []byte

	err := row.Scan(
		&snapshot.ID,
		&snapshot.UserID,
		&snapshot.WalletAddress,
		&snapshot.SnapshotDate,
		&snapshot.TotalNavUSD,
		&snapshot.TokensNavUSD,
		&snapshot.PositionsNavUSD,
		&tokenHoldingsJSON,
		&positionsJSON,
		&snapshot.CreatedAt,
		&snapshot.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan snapshot row: %w", err)
	}

	if err := json.Unmarshal(tokenHoldingsJSON, &snapshot.TokenHoldings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token holdings: %w", err)
	}
	if err := json.Unmarshal(positionsJSON, &snapshot.Positions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal positions: %w", err)
	}

	return &snapshot, nil
}
