package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// BalanceKey is the cache key of an account balance.
func BalanceKey(accountID string) string {
	return "balance:" + accountID
}

// GenerationKey holds the invalidation counter of an account balance.
func GenerationKey(accountID string) string {
	return "balance-gen:" + accountID
}

// LRUBalanceCache keeps balances in process memory.
type LRUBalanceCache struct {
	mu   sync.Mutex
	lru  *LRUCache[decimal.Decimal]
	gens map[string]uint64
}

func NewLRUBalanceCache(maxSize int, ttl time.Duration) *LRUBalanceCache {
	return &LRUBalanceCache{
		lru:  NewLRUCache[decimal.Decimal](maxSize, ttl),
		gens: make(map[string]uint64),
	}
}

func (c *LRUBalanceCache) Get(_ context.Context, accountID string) (decimal.Decimal, uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	bal, ok := c.lru.Get(BalanceKey(accountID))
	return bal, c.gens[accountID], ok
}

// Set stores the balance unless the account was invalidated after gen
// was handed out.
func (c *LRUBalanceCache) Set(_ context.Context, accountID string, gen uint64, balance decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[accountID] != gen {
		return
	}
	c.lru.Set(BalanceKey(accountID), balance)
}

func (c *LRUBalanceCache) Invalidate(_ context.Context, accountIDs ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range accountIDs {
		c.gens[id]++
		c.lru.Delete(BalanceKey(id))
	}
}

// CleanExpired lets a Manager sweep the underlying LRU.
func (c *LRUBalanceCache) CleanExpired() int {
	return c.lru.CleanExpired()
}

// RedisClient is the subset of *redis.Client the balance cache needs.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	redis.Scripter
}

// setIfCurrent writes KEYS[1] only while the generation in KEYS[2] still
// equals ARGV[1]. ARGV[3] is the TTL in milliseconds.
var setIfCurrent = redis.NewScript(`
local gen = redis.call('GET', KEYS[2]) or '0'
if gen ~= ARGV[1] then
	return 0
end
if tonumber(ARGV[3]) > 0 then
	redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
else
	redis.call('SET', KEYS[1], ARGV[2])
end
return 1
`)

// bumpAndDelete takes balance/generation key pairs, advances each
// generation and drops the balance.
var bumpAndDelete = redis.NewScript(`
for i = 1, #KEYS, 2 do
	redis.call('INCR', KEYS[i + 1])
	redis.call('DEL', KEYS[i])
end
return #KEYS / 2
`)

// RedisBalanceCache shares balances between API instances and workers.
// Redis errors are logged and treated as misses.
type RedisBalanceCache struct {
	client RedisClient
	ttl    time.Duration
}

func NewRedisBalanceCache(client RedisClient, ttl time.Duration) *RedisBalanceCache {
	return &RedisBalanceCache{client: client, ttl: ttl}
}

func (c *RedisBalanceCache) Get(ctx context.Context, accountID string) (decimal.Decimal, uint64, bool) {
	raw, err := c.client.Get(ctx, BalanceKey(accountID)).Result()
	switch {
	case err == nil:
		bal, perr := decimal.NewFromString(raw)
		if perr == nil {
			return bal, 0, true
		}
		slog.WarnContext(ctx, "Discarding malformed cached balance", "account_id", accountID, "value", raw)
	case !errors.Is(err, redis.Nil):
		slog.WarnContext(ctx, "Redis balance lookup failed", "account_id", accountID, "error", err)
		return decimal.Zero, 0, false
	}
	return decimal.Zero, c.generation(ctx, accountID), false
}

// generation reads the account counter; a missing key is generation 0.
// On errors 0 is returned too: Set then either matches a never
// invalidated account or is skipped.
func (c *RedisBalanceCache) generation(ctx context.Context, accountID string) uint64 {
	gen, err := c.client.Get(ctx, GenerationKey(accountID)).Uint64()
	if err != nil && !errors.Is(err, redis.Nil) {
		slog.WarnContext(ctx, "Redis generation lookup failed", "account_id", accountID, "error", err)
	}
	return gen
}

func (c *RedisBalanceCache) Set(ctx context.Context, accountID string, gen uint64, balance decimal.Decimal) {
	keys := []string{BalanceKey(accountID), GenerationKey(accountID)}
	err := setIfCurrent.Run(ctx, c.client, keys, strconv.FormatUint(gen, 10), balance.String(), c.ttl.Milliseconds()).Err()
	if err != nil {
		slog.WarnContext(ctx, "Redis balance store failed", "account_id", accountID, "error", err)
	}
}

func (c *RedisBalanceCache) Invalidate(ctx context.Context, accountIDs ...string) {
	if len(accountIDs) == 0 {
		return
	}
	keys := make([]string, 0, 2*len(accountIDs))
	for _, id := range accountIDs {
		keys = append(keys, BalanceKey(id), GenerationKey(id))
	}
	if err := bumpAndDelete.Run(ctx, c.client, keys).Err(); err != nil {
		slog.WarnContext(ctx, "Redis balance invalidation failed", "accounts", accountIDs, "error", err)
	}
}

// NewRedisClient connects to redisURL, accepting either a redis:// URL or a
// bare host:port, and pings it once.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		opt = &redis.Options{Addr: redisURL}
	}
	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}
