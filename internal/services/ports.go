package services

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/Sonrial/family-budget/internal/core"
)

// EventPublisher delivers committed ledger changes to downstream consumers.
type EventPublisher interface {
	PublishLedgerEvent(ctx context.Context, ev core.LedgerEvent) error
}

// BalanceCache memoises derived account balances. Misses and cache
// failures fall through to the ledger sum.
//
// Every account carries a generation that Invalidate advances. Get
// returns it on a miss and Set only stores the balance while the
// generation is unchanged, so a sum read before a commit is never cached
// after that commit's invalidation.
type BalanceCache interface {
	Get(ctx context.Context, accountID string) (balance decimal.Decimal, gen uint64, ok bool)
	Set(ctx context.Context, accountID string, gen uint64, balance decimal.Decimal)
	Invalidate(ctx context.Context, accountIDs ...string)
}
