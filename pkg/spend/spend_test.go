package spend

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDayKeyIsUTC(t *testing.T) {
	// 23:30 in UTC-5 is already the next day in UTC.
	loc := time.FixedZone("EST", -5*3600)
	local := time.Date(2025, 6, 3, 23, 30, 0, 0, loc)
	assert.Equal(t, "2025-06-04", DayKey(local))
}

func TestWeekKeyCrossesYearBoundary(t *testing.T) {
	// ISO weeks start on Monday; 2025-12-29 belongs to week 1 of 2026.
	assert.Equal(t, "2026-W01", WeekKey(time.Date(2025, 12, 29, 12, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2025-W52", WeekKey(time.Date(2025, 12, 28, 12, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2025-W23", WeekKey(time.Date(2025, 6, 3, 10, 0, 0, 0, time.UTC)))
}

func TestMemoryStoreAccumulates(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	at := time.Date(2025, 6, 3, 10, 0, 0, 0, time.UTC)

	require.NoError(t, store.Record(ctx, "user-1", 10_000, at))
	require.NoError(t, store.Record(ctx, "user-1", 5_000, at))

	sc, err := store.Spending(ctx, "user-1", at)
	require.NoError(t, err)
	assert.EqualValues(t, 15_000, sc.SpentToday)
	assert.EqualValues(t, 15_000, sc.SpentThisWeek)
}

func TestMemoryStoreDayRollsOverWithinWeek(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	tuesday := time.Date(2025, 6, 3, 10, 0, 0, 0, time.UTC)
	wednesday := tuesday.Add(24 * time.Hour)

	require.NoError(t, store.Record(ctx, "user-1", 10_000, tuesday))

	sc, err := store.Spending(ctx, "user-1", wednesday)
	require.NoError(t, err)
	assert.Zero(t, sc.SpentToday, "yesterday's spend is outside today's window")
	assert.EqualValues(t, 10_000, sc.SpentThisWeek, "same ISO week still counts")
}

func TestMemoryStoreIsolatesUsers(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	at := time.Date(2025, 6, 3, 10, 0, 0, 0, time.UTC)

	require.NoError(t, store.Record(ctx, "user-1", 10_000, at))

	sc, err := store.Spending(ctx, "user-2", at)
	require.NoError(t, err)
	assert.Zero(t, sc.SpentToday)
	assert.Zero(t, sc.SpentThisWeek)
}

func TestMemoryStoreRejectsNegativeAmount(t *testing.T) {
	store := NewMemoryStore()
	err := store.Record(context.Background(), "user-1", -1, time.Now())
	require.Error(t, err)
}

func TestRedisKeyLayout(t *testing.T) {
	store := NewRedisStore(nil, "")
	at := time.Date(2025, 6, 3, 10, 0, 0, 0, time.UTC)

	assert.Equal(t, "spend:user-1:day:2025-06-03", store.dayRedisKey("user-1", at))
	assert.Equal(t, "spend:user-1:week:2025-W23", store.weekRedisKey("user-1", at))
}

func TestParseRedisAmount(t *testing.T) {
	assert.EqualValues(t, 42, parseRedisAmount("42"))
	assert.Zero(t, parseRedisAmount(nil))
	assert.Zero(t, parseRedisAmount("not-a-number"))
}
