package spend

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/clearproof/mandate/pkg/evaluate"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS spend_windows (
	user_id    TEXT   NOT NULL,
	window_key TEXT   NOT NULL,
	amount     BIGINT NOT NULL DEFAULT 0,
	PRIMARY KEY (user_id, window_key)
)
`

// PostgresStore persists spending aggregates in PostgreSQL for
// multi-node deployments. Upserts keep Record atomic per window without
// advisory locks.
type PostgresStore struct {
	db *sql.DB
}

// OpenPostgres connects with a lib/pq DSN and applies the schema.
func OpenPostgres(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("spend: open postgres: %w", err)
	}
	if _, err := db.Exec(postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("spend: apply postgres schema: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// NewPostgresStore wraps an existing handle; the caller owns schema
// setup and the handle's lifecycle.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Spending(ctx context.Context, userID string, at time.Time) (evaluate.SpendingContext, error) {
	var sc evaluate.SpendingContext
	row := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(amount) FILTER (WHERE window_key = $1), 0),
			COALESCE(SUM(amount) FILTER (WHERE window_key = $2), 0)
		FROM spend_windows WHERE user_id = $3`,
		DayKey(at), WeekKey(at), userID)
	if err := row.Scan(&sc.SpentToday, &sc.SpentThisWeek); err != nil {
		return evaluate.SpendingContext{}, fmt.Errorf("spend: query postgres windows: %w", err)
	}
	return sc, nil
}

func (s *PostgresStore) Record(ctx context.Context, userID string, amount int64, at time.Time) error {
	if amount < 0 {
		return fmt.Errorf("spend: negative amount %d", amount)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("spend: begin postgres tx: %w", err)
	}
	defer tx.Rollback()
	for _, key := range []string{DayKey(at), WeekKey(at)} {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO spend_windows (user_id, window_key, amount) VALUES ($1, $2, $3)
			ON CONFLICT (user_id, window_key) DO UPDATE SET amount = spend_windows.amount + EXCLUDED.amount`,
			userID, key, amount); err != nil {
			return fmt.Errorf("spend: record postgres window %s: %w", key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("spend: commit postgres tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error { return s.db.Close() }
