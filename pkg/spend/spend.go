// Package spend tracks per-user spending aggregates over the rolling
// windows the evaluator's daily and weekly limits are measured against.
// Windows are UTC calendar days and ISO 8601 weeks; the evaluator itself
// never writes here, recording happens after an approved intent is acted
// on.
package spend

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/clearproof/mandate/pkg/evaluate"
)

// Provider supplies and accumulates spending aggregates.
type Provider interface {
	// Spending returns the amounts already spent in the day and ISO week
	// containing at.
	Spending(ctx context.Context, userID string, at time.Time) (evaluate.SpendingContext, error)
	// Record adds amount to both windows containing at.
	Record(ctx context.Context, userID string, amount int64, at time.Time) error
}

// DayKey identifies the UTC calendar day containing t.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// WeekKey identifies the ISO 8601 week containing t. ISO weeks start on
// Monday and the week's year can differ from the calendar year at year
// boundaries.
func WeekKey(t time.Time) string {
	year, week := t.UTC().ISOWeek()
	return fmt.Sprintf("%04d-W%02d", year, week)
}

// MemoryStore is an in-process Provider for tests and single-node use.
type MemoryStore struct {
	mu sync.RWMutex
	// user -> window key -> amount
	totals map[string]map[string]int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{totals: make(map[string]map[string]int64)}
}

func (m *MemoryStore) Spending(_ context.Context, userID string, at time.Time) (evaluate.SpendingContext, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	windows := m.totals[userID]
	return evaluate.SpendingContext{
		SpentToday:    windows[DayKey(at)],
		SpentThisWeek: windows[WeekKey(at)],
	}, nil
}

func (m *MemoryStore) Record(_ context.Context, userID string, amount int64, at time.Time) error {
	if amount < 0 {
		return fmt.Errorf("spend: negative amount %d", amount)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	windows := m.totals[userID]
	if windows == nil {
		windows = make(map[string]int64)
		m.totals[userID] = windows
	}
	windows[DayKey(at)] += amount
	windows[WeekKey(at)] += amount
	return nil
}
