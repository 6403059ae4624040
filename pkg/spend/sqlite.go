package spend

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/clearproof/mandate/pkg/evaluate"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS spend_windows (
	user_id    TEXT    NOT NULL,
	window_key TEXT    NOT NULL,
	amount     INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (user_id, window_key)
);
`

// SQLiteStore persists spending aggregates in an embedded SQLite
// database. Suitable for single-node deployments; the CGo-free driver
// keeps the binary self-contained.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and applies
// the schema. Use ":memory:" for an ephemeral store.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("spend: open sqlite %s: %w", path, err)
	}
	// modernc sqlite serializes writes itself; a single connection avoids
	// SQLITE_BUSY under concurrent recorders.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("spend: apply sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Spending(ctx context.Context, userID string, at time.Time) (evaluate.SpendingContext, error) {
	var sc evaluate.SpendingContext
	row := s.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN window_key = ? THEN amount END), 0),
			COALESCE(SUM(CASE WHEN window_key = ? THEN amount END), 0)
		FROM spend_windows WHERE user_id = ?`,
		DayKey(at), WeekKey(at), userID)
	if err := row.Scan(&sc.SpentToday, &sc.SpentThisWeek); err != nil {
		return evaluate.SpendingContext{}, fmt.Errorf("spend: query sqlite windows: %w", err)
	}
	return sc, nil
}

func (s *SQLiteStore) Record(ctx context.Context, userID string, amount int64, at time.Time) error {
	if amount < 0 {
		return fmt.Errorf("spend: negative amount %d", amount)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("spend: begin sqlite tx: %w", err)
	}
	defer tx.Rollback()
	for _, key := range []string{DayKey(at), WeekKey(at)} {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO spend_windows (user_id, window_key, amount) VALUES (?, ?, ?)
			ON CONFLICT (user_id, window_key) DO UPDATE SET amount = amount + excluded.amount`,
			userID, key, amount); err != nil {
			return fmt.Errorf("spend: record sqlite window %s: %w", key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("spend: commit sqlite tx: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }
