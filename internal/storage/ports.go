package storage

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Sonrial/family-budget/internal/core"
)

// Ports implemented by the SQL repository and the in-memory store.
// Lookups of missing rows return core.ErrNotFound; deletes blocked by
// references return core.ErrReferentialIntegrity.
type (
	AccountStore interface {
		CreateAccount(ctx context.Context, a core.Account) error
		GetAccount(ctx context.Context, id string) (core.Account, error)
		ListAccounts(ctx context.Context, f core.AccountFilter) ([]core.Account, error)
		DeleteAccount(ctx context.Context, id string) error
	}

	LedgerStore interface {
		InsertTransaction(ctx context.Context, t core.Transaction) error
		InsertLines(ctx context.Context, lines []core.Line) error
		GetTransaction(ctx context.Context, id string) (core.Transaction, error)
		ListLines(ctx context.Context, transactionID string) ([]core.Line, error)
		ListTransactions(ctx context.Context, f core.TransactionFilter) ([]core.Transaction, error)
		// UpdateTransactionHeader rewrites date and notes only.
		UpdateTransactionHeader(ctx context.Context, t core.Transaction) error
		// UpdateLineAmounts rewrites the amount of each line by id.
		UpdateLineAmounts(ctx context.Context, lines []core.Line) error
		// DeleteTransaction removes the header and, by cascade, its lines.
		DeleteTransaction(ctx context.Context, id string) error
		SumLines(ctx context.Context, accountID string) (decimal.Decimal, error)
		// ListOrphanTransactions returns headers without lines created
		// before the given instant.
		ListOrphanTransactions(ctx context.Context, before time.Time) ([]core.Transaction, error)
	}

	BillStore interface {
		CreateBill(ctx context.Context, b core.RecurringBill) error
		GetBill(ctx context.Context, id string) (core.RecurringBill, error)
		ListBills(ctx context.Context, scope core.Scope, createdBy core.UserID) ([]core.RecurringBill, error)
		DeleteBill(ctx context.Context, id string) error
	}

	ProfileStore interface {
		UpsertProfile(ctx context.Context, p core.Profile) error
		GetProfile(ctx context.Context, id core.UserID) (core.Profile, error)
	}

	Store interface {
		AccountStore
		LedgerStore
		BillStore
		ProfileStore
	}

	// Transactor is implemented by stores able to run several writes as
	// one atomic unit.
	Transactor interface {
		WithinTx(ctx context.Context, fn func(Store) error) error
	}
)
