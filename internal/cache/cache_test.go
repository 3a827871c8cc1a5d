package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

func TestLRUCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewLRUCache[int](2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	if _, ok := c.Get("a"); !ok {
		t.Fatalf("expected a")
	}
	c.Set("c", 3)
	if _, ok := c.Get("b"); ok {
		t.Fatalf("b should have been evicted")
	}
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("a = %d, %v", v, ok)
	}
	if c.Size() != 2 {
		t.Fatalf("size = %d", c.Size())
	}
}

func TestLRUCache_Expiry(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewLRUCache[string](10, time.Minute)
	c.now = func() time.Time { return now }
	c.Set("a", "x")
	c.Set("b", "y")

	now = now.Add(30 * time.Second)
	c.Set("b", "z")
	now = now.Add(45 * time.Second)

	if _, ok := c.Get("a"); ok {
		t.Fatalf("a should have expired")
	}
	m := NewManager(c)
	if n := m.Sweep(); n != 0 {
		t.Fatalf("b refreshed, nothing else to sweep, got %d", n)
	}
	now = now.Add(time.Minute)
	if n := m.Sweep(); n != 1 || c.Size() != 0 {
		t.Fatalf("sweep removed %d, size %d", n, c.Size())
	}
}

func TestLRUBalanceCache(t *testing.T) {
	ctx := context.Background()
	c := NewLRUBalanceCache(10, time.Minute)
	_, gen, ok := c.Get(ctx, "acc")
	if ok {
		t.Fatalf("expected miss on empty cache")
	}
	c.Set(ctx, "acc", gen, decimal.RequireFromString("-12.50"))
	if v, _, ok := c.Get(ctx, "acc"); !ok || v.String() != "-12.5" {
		t.Fatalf("got %s, %v", v, ok)
	}
	c.Invalidate(ctx, "acc", "other")
	if _, _, ok := c.Get(ctx, "acc"); ok {
		t.Fatalf("expected miss after invalidation")
	}
}

// A balance summed before an invalidation must not be stored after it.
func TestBalanceCache_SkipsWriteAfterInvalidation(t *testing.T) {
	ctx := context.Background()
	caches := map[string]interface {
		Get(context.Context, string) (decimal.Decimal, uint64, bool)
		Set(context.Context, string, uint64, decimal.Decimal)
		Invalidate(context.Context, ...string)
	}{
		"lru":   NewLRUBalanceCache(10, time.Minute),
		"redis": NewRedisBalanceCache(newFakeRedis(), time.Minute),
	}
	for name, c := range caches {
		t.Run(name, func(t *testing.T) {
			_, stale, ok := c.Get(ctx, "food")
			if ok {
				t.Fatal("expected miss")
			}
			c.Invalidate(ctx, "food")
			c.Set(ctx, "food", stale, decimal.Zero)
			_, fresh, ok := c.Get(ctx, "food")
			if ok {
				t.Fatal("stale balance was cached after invalidation")
			}
			if fresh == stale {
				t.Fatalf("generation did not advance: %d", fresh)
			}
			c.Set(ctx, "food", fresh, decimal.RequireFromString("10"))
			if v, _, ok := c.Get(ctx, "food"); !ok || !v.Equal(decimal.RequireFromString("10")) {
				t.Fatalf("got %s, %v", v, ok)
			}
		})
	}
}

// fakeRedis evaluates the balance scripts in Go over a plain map.
type fakeRedis struct {
	data   map[string]string
	getErr error
	ttlMs  int64
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}}
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	if f.getErr != nil {
		return redis.NewStringResult("", f.getErr)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) EvalSha(_ context.Context, sha string, keys []string, args ...interface{}) *redis.Cmd {
	switch sha {
	case setIfCurrent.Hash():
		gen, ok := f.data[keys[1]]
		if !ok {
			gen = "0"
		}
		if gen != fmt.Sprint(args[0]) {
			return redis.NewCmdResult(int64(0), nil)
		}
		f.data[keys[0]] = fmt.Sprint(args[1])
		f.ttlMs, _ = args[2].(int64)
		return redis.NewCmdResult(int64(1), nil)
	case bumpAndDelete.Hash():
		for i := 0; i+1 < len(keys); i += 2 {
			n, _ := strconv.ParseUint(f.data[keys[i+1]], 10, 64)
			f.data[keys[i+1]] = strconv.FormatUint(n+1, 10)
			delete(f.data, keys[i])
		}
		return redis.NewCmdResult(int64(len(keys)/2), nil)
	}
	return redis.NewCmdResult(nil, errors.New("NOSCRIPT unknown script"))
}

func (f *fakeRedis) Eval(context.Context, string, []string, ...interface{}) *redis.Cmd {
	return redis.NewCmdResult(nil, errors.New("eval not supported"))
}

func (f *fakeRedis) EvalRO(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	return f.Eval(ctx, script, keys, args...)
}

func (f *fakeRedis) EvalShaRO(ctx context.Context, sha string, keys []string, args ...interface{}) *redis.Cmd {
	return f.EvalSha(ctx, sha, keys, args...)
}

func (f *fakeRedis) ScriptExists(_ context.Context, hashes ...string) *redis.BoolSliceCmd {
	return redis.NewBoolSliceResult(make([]bool, len(hashes)), nil)
}

func (f *fakeRedis) ScriptLoad(context.Context, string) *redis.StringCmd {
	return redis.NewStringResult("", errors.New("script load not supported"))
}

func TestRedisBalanceCache(t *testing.T) {
	ctx := context.Background()
	fr := newFakeRedis()
	c := NewRedisBalanceCache(fr, 5*time.Minute)

	_, gen, ok := c.Get(ctx, "acc")
	if ok || gen != 0 {
		t.Fatalf("expected miss at generation 0, got %d, %v", gen, ok)
	}
	c.Set(ctx, "acc", gen, decimal.RequireFromString("100.25"))
	if fr.data["balance:acc"] != "100.25" || fr.ttlMs != (5*time.Minute).Milliseconds() {
		t.Fatalf("unexpected stored value %v ttl %dms", fr.data, fr.ttlMs)
	}
	if v, _, ok := c.Get(ctx, "acc"); !ok || !v.Equal(decimal.RequireFromString("100.25")) {
		t.Fatalf("got %s, %v", v, ok)
	}
	c.Invalidate(ctx, "acc")
	if _, ok := fr.data["balance:acc"]; ok {
		t.Fatalf("key survived invalidation")
	}
	if fr.data["balance-gen:acc"] != "1" {
		t.Fatalf("generation = %q", fr.data["balance-gen:acc"])
	}
	if _, gen, _ := c.Get(ctx, "acc"); gen != 1 {
		t.Fatalf("miss should report generation 1, got %d", gen)
	}

	fr.data["balance:bad"] = "not-a-number"
	if _, _, ok := c.Get(ctx, "bad"); ok {
		t.Fatalf("malformed value should be a miss")
	}
	fr.getErr = errors.New("connection refused")
	if _, _, ok := c.Get(ctx, "acc"); ok {
		t.Fatalf("redis error should be a miss")
	}
}
