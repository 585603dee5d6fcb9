package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/defi-portfolio-tracker/internal/config"
)

// ClickHouseDB wraps the ClickHouse connection used for the position
// history time series
type ClickHouseDB struct {
	conn driver.Conn
}

// NewClickHouseDB creates a new ClickHouse database connection
func NewClickHouseDB(cfg *config.ClickHouseConfig) (*ClickHouseDB, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%s", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout:      10 * time.Second,
		MaxOpenConns:     10,
		MaxIdleConns:     5,
		ConnMaxLifetime:  time.Hour,
		ConnOpenStrategy: clickhouse.ConnOpenInOrder,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	return &ClickHouseDB{conn: conn}, nil
}

// Close closes the ClickHouse connection
func (db *ClickHouseDB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// Conn returns the underlying ClickHouse connection
func (db *ClickHouseDB) Conn() driver.Conn {
	return db.conn
}

// Ping checks if the database is reachable
func (db *ClickHouseDB) Ping(ctx context.Context) error {
	return db.conn.Ping(ctx)
}

// EnsureSchema creates the position history table when it does not exist.
// ReplacingMergeTree versioned by updated_at gives last-write-wins semantics
// per (user, wallet, protocol, position, day) without requiring updates.
func (db *ClickHouseDB) EnsureSchema(ctx context.Context) error {
	ddl := `
		CREATE TABLE IF NOT EXISTS position_history (
			user_id String,
			wallet_address String,
			protocol_name String,
			position_id String,
			date Date,
			total_value Float64,
			unclaimed_rewards_value Float64,
			is_active UInt8,
			updated_at DateTime64(3)
		) ENGINE = ReplacingMergeTree(updated_at)
		ORDER BY (user_id, wallet_address, protocol_name, position_id, date)
	`
	if err := db.conn.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create position_history table: %w", err)
	}
	return nil
}
