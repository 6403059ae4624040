package spend

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/clearproof/mandate/pkg/evaluate"
)

// Window keys expire shortly after the window they cover can no longer
// be queried, so abandoned users cost nothing.
const (
	dayKeyTTL  = 48 * time.Hour
	weekKeyTTL = 9 * 24 * time.Hour
)

// recordScript increments both window counters and stamps TTLs in one
// round trip, atomically with respect to concurrent recorders.
var recordScript = redis.NewScript(`
local amount = tonumber(ARGV[1])
redis.call('INCRBY', KEYS[1], amount)
redis.call('EXPIRE', KEYS[1], tonumber(ARGV[2]))
redis.call('INCRBY', KEYS[2], amount)
redis.call('EXPIRE', KEYS[2], tonumber(ARGV[3]))
return 1
`)

// RedisStore keeps spending aggregates in Redis, shared across engine
// instances.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore wraps an existing client. prefix namespaces keys; empty
// means "spend".
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "spend"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (r *RedisStore) dayRedisKey(userID string, at time.Time) string {
	return fmt.Sprintf("%s:%s:day:%s", r.prefix, userID, DayKey(at))
}

func (r *RedisStore) weekRedisKey(userID string, at time.Time) string {
	return fmt.Sprintf("%s:%s:week:%s", r.prefix, userID, WeekKey(at))
}

func (r *RedisStore) Spending(ctx context.Context, userID string, at time.Time) (evaluate.SpendingContext, error) {
	vals, err := r.client.MGet(ctx, r.dayRedisKey(userID, at), r.weekRedisKey(userID, at)).Result()
	if err != nil {
		return evaluate.SpendingContext{}, fmt.Errorf("spend: redis mget: %w", err)
	}
	var sc evaluate.SpendingContext
	sc.SpentToday = parseRedisAmount(vals[0])
	sc.SpentThisWeek = parseRedisAmount(vals[1])
	return sc, nil
}

func (r *RedisStore) Record(ctx context.Context, userID string, amount int64, at time.Time) error {
	if amount < 0 {
		return fmt.Errorf("spend: negative amount %d", amount)
	}
	keys := []string{r.dayRedisKey(userID, at), r.weekRedisKey(userID, at)}
	args := []interface{}{amount, int(dayKeyTTL.Seconds()), int(weekKeyTTL.Seconds())}
	if err := recordScript.Run(ctx, r.client, keys, args...).Err(); err != nil {
		return fmt.Errorf("spend: redis record: %w", err)
	}
	return nil
}

func parseRedisAmount(v interface{}) int64 {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
