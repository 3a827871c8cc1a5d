package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Sonrial/family-budget/internal/core"
	"github.com/Sonrial/family-budget/internal/storage"
	"github.com/Sonrial/family-budget/internal/storage/memory"
)

const (
	ana core.UserID = "u-ana"
	leo core.UserID = "u-leo"
)

var fixedNow = time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)

type recordingPublisher struct {
	mu     sync.Mutex
	events []core.LedgerEvent
	err    error
}

func (p *recordingPublisher) PublishLedgerEvent(_ context.Context, ev core.LedgerEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) last() core.LedgerEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.events[len(p.events)-1]
}

type mapCache struct {
	mu          sync.Mutex
	values      map[string]decimal.Decimal
	gens        map[string]uint64
	hits        int
	invalidated []string
}

func newMapCache() *mapCache {
	return &mapCache{values: map[string]decimal.Decimal{}, gens: map[string]uint64{}}
}

func (c *mapCache) Get(_ context.Context, id string) (decimal.Decimal, uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[id]
	if ok {
		c.hits++
	}
	return v, c.gens[id], ok
}

func (c *mapCache) Set(_ context.Context, id string, gen uint64, v decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[id] != gen {
		return
	}
	c.values[id] = v
}

func (c *mapCache) Invalidate(_ context.Context, ids ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		c.gens[id]++
		delete(c.values, id)
		c.invalidated = append(c.invalidated, id)
	}
}

// faultyStore injects write failures into the in-memory store.
type faultyStore struct {
	*memory.Store
	failLines  error
	failDelete error
	failHeader error
}

func (s *faultyStore) InsertLines(ctx context.Context, lines []core.Line) error {
	if s.failLines != nil {
		return s.failLines
	}
	return s.Store.InsertLines(ctx, lines)
}

func (s *faultyStore) DeleteTransaction(ctx context.Context, id string) error {
	if s.failDelete != nil {
		return s.failDelete
	}
	return s.Store.DeleteTransaction(ctx, id)
}

func (s *faultyStore) UpdateTransactionHeader(ctx context.Context, t core.Transaction) error {
	if s.failHeader != nil {
		return s.failHeader
	}
	return s.Store.UpdateTransactionHeader(ctx, t)
}

// txStore pretends to be transactional and counts the units of work.
type txStore struct {
	*memory.Store
	calls int
}

func (s *txStore) WithinTx(_ context.Context, fn func(storage.Store) error) error {
	s.calls++
	return fn(s.Store)
}

type fixture struct {
	store    storage.Store
	mem      *memory.Store
	engine   *Engine
	registry *Registry
	bills    *Bills
	events   *recordingPublisher
	cache    *mapCache
	acc      map[string]core.Account
}

func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("id-%03d", n)
	}
}

// newFixture builds the services over wrap(mem) and seeds two members
// with a small chart of accounts.
func newFixture(t *testing.T, wrap func(*memory.Store) storage.Store) *fixture {
	t.Helper()
	mem := memory.New()
	var store storage.Store = mem
	if wrap != nil {
		store = wrap(mem)
	}
	f := &fixture{
		store:  store,
		mem:    mem,
		events: &recordingPublisher{},
		cache:  newMapCache(),
		acc:    map[string]core.Account{},
	}
	opts := []Option{
		WithEvents(f.events),
		WithBalanceCache(f.cache),
		WithClock(func() time.Time { return fixedNow }),
		WithIDGenerator(sequentialIDs()),
	}
	f.engine = NewEngine(store, opts...)
	f.registry = NewRegistry(store, opts...)
	f.bills = NewBills(store, opts...)

	ctx := context.Background()
	_ = mem.UpsertProfile(ctx, core.Profile{ID: ana, DisplayName: "Ana"})
	_ = mem.UpsertProfile(ctx, core.Profile{ID: leo, Email: "leo@example.com"})

	seed := []struct {
		key   string
		actor core.UserID
		name  string
		kind  core.AccountKind
		scope core.Scope
	}{
		{"cash", ana, "Cash", core.AccountAsset, core.ScopePersonal},
		{"savings", ana, "Savings", core.AccountAsset, core.ScopePersonal},
		{"food", ana, "Food", core.AccountExpense, core.ScopePersonal},
		{"salary", ana, "Salary", core.AccountIncome, core.ScopePersonal},
		{"card", ana, "Card", core.AccountLiability, core.ScopePersonal},
		{"pool", ana, "Family pool", core.AccountAsset, core.ScopeShared},
		{"groceries", leo, "Groceries", core.AccountExpense, core.ScopeShared},
		{"wallet", leo, "Wallet", core.AccountAsset, core.ScopePersonal},
		{"ghost", "u-ghost", "Ghost wallet", core.AccountAsset, core.ScopePersonal},
	}
	for _, s := range seed {
		a, err := f.registry.CreateAccount(ctx, s.actor, core.NewAccount{Name: s.name, Kind: s.kind, Scope: s.scope})
		if err != nil {
			t.Fatalf("seed %s: %v", s.key, err)
		}
		f.acc[s.key] = a
	}
	return f
}

func (f *fixture) id(key string) string { return f.acc[key].ID }

func (f *fixture) balance(t *testing.T, key string) decimal.Decimal {
	t.Helper()
	bal, err := f.mem.SumLines(context.Background(), f.id(key))
	if err != nil {
		t.Fatalf("sum %s: %v", key, err)
	}
	return bal
}

func (f *fixture) txCount(t *testing.T) int {
	t.Helper()
	n := 0
	for _, scope := range []core.Scope{core.ScopePersonal, core.ScopeShared} {
		txs, err := f.mem.ListTransactions(context.Background(), core.TransactionFilter{Scope: scope})
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		n += len(txs)
	}
	return n
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func expense(f *fixture, amount string) core.PostingRequest {
	return core.PostingRequest{
		Kind:          core.TxExpense,
		Scope:         core.ScopePersonal,
		OriginID:      f.id("cash"),
		DestinationID: f.id("food"),
		Amount:        amount,
		Date:          core.NewDate(2025, 3, 9),
	}
}
