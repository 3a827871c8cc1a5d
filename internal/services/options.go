package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Sonrial/family-budget/internal/core"
)

// deps holds the collaborators shared by the ledger services. Nil
// publisher or cache disable the feature.
type deps struct {
	events EventPublisher
	cache  BalanceCache
	now    func() time.Time
	newID  func() string
}

type Option func(*deps)

func WithEvents(p EventPublisher) Option {
	return func(d *deps) { d.events = p }
}

func WithBalanceCache(c BalanceCache) Option {
	return func(d *deps) { d.cache = c }
}

// WithClock overrides time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(d *deps) { d.now = now }
}

// WithIDGenerator overrides the UUID generator, mostly for tests.
func WithIDGenerator(fn func() string) Option {
	return func(d *deps) { d.newID = fn }
}

func newDeps(opts []Option) deps {
	d := deps{now: time.Now, newID: uuid.NewString}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

func (d deps) today() core.Date {
	return core.DateOf(d.now())
}

// afterCommit drops stale balances and announces the change. Neither step
// can fail the operation that already committed.
func (d deps) afterCommit(ctx context.Context, typ core.LedgerEventType, detail core.TransactionDetail, actor core.UserID) {
	if d.cache != nil {
		d.cache.Invalidate(ctx, detail.AccountIDs()...)
	}
	if d.events == nil {
		slog.DebugContext(ctx, "Event publisher not configured, skipping ledger event",
			"type", typ, "transaction_id", detail.Transaction.ID)
		return
	}
	ev := core.NewLedgerEvent(typ, detail, actor, d.now())
	if err := d.events.PublishLedgerEvent(ctx, ev); err != nil {
		slog.ErrorContext(ctx, "Failed to publish ledger event",
			"type", typ,
			"transaction_id", detail.Transaction.ID,
			"error", err)
	}
}
