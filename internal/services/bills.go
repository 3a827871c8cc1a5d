package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Sonrial/family-budget/internal/core"
	"github.com/Sonrial/family-budget/internal/storage"
)

// Bills manages recurring bill templates and turns them into posting
// drafts. Nothing here writes to the ledger.
type Bills struct {
	store   storage.Store
	checker DuenessChecker
	deps
}

func NewBills(store storage.Store, opts ...Option) *Bills {
	return &Bills{store: store, checker: MonthlyChecker{}, deps: newDeps(opts)}
}

func (b *Bills) CreateBill(ctx context.Context, actor core.UserID, in core.NewBill) (core.RecurringBill, error) {
	if actor == "" {
		return core.RecurringBill{}, core.NewValidationError("actor", "acting user is required")
	}
	amount, err := core.ParseAmount(in.Amount)
	if err != nil {
		return core.RecurringBill{}, err
	}
	bill := core.RecurringBill{
		ID:         b.newID(),
		Title:      strings.TrimSpace(in.Title),
		Amount:     amount,
		PayDay:     in.PayDay,
		CategoryID: strings.TrimSpace(in.CategoryID),
		Scope:      in.Scope,
		CreatedBy:  actor,
		CreatedAt:  b.now().UTC(),
	}
	if err := bill.Validate(); err != nil {
		return core.RecurringBill{}, err
	}
	category, err := lookupAccount(ctx, b.store, "category", bill.CategoryID)
	if err != nil {
		return core.RecurringBill{}, err
	}
	if err := checkRole(category, "category", actor, bill.Scope, core.AccountExpense, core.AccountLiability); err != nil {
		return core.RecurringBill{}, err
	}
	if err := b.store.CreateBill(ctx, bill); err != nil {
		return core.RecurringBill{}, fmt.Errorf("create bill: %w", err)
	}
	slog.InfoContext(ctx, "Recurring bill created",
		"bill_id", bill.ID,
		"pay_day", bill.PayDay,
		"scope", bill.Scope,
		"actor", actor)
	return bill, nil
}

// ListBills returns the bills of a scope; PERSONAL only the actor's.
func (b *Bills) ListBills(ctx context.Context, actor core.UserID, scope core.Scope) ([]core.RecurringBill, error) {
	if !scope.IsValid() {
		return nil, core.NewValidationError("scope", fmt.Sprintf("unknown scope %q", scope))
	}
	var createdBy core.UserID
	if scope == core.ScopePersonal {
		createdBy = actor
	}
	bills, err := b.store.ListBills(ctx, scope, createdBy)
	if err != nil {
		return nil, fmt.Errorf("list bills: %w", err)
	}
	return bills, nil
}

func (b *Bills) getBill(ctx context.Context, actor core.UserID, id string) (core.RecurringBill, error) {
	bill, err := b.store.GetBill(ctx, id)
	if err != nil {
		return core.RecurringBill{}, err
	}
	if bill.Scope == core.ScopePersonal && bill.CreatedBy != actor {
		return core.RecurringBill{}, fmt.Errorf("bill %s: %w", id, core.ErrNotFound)
	}
	return bill, nil
}

func (b *Bills) DeleteBill(ctx context.Context, actor core.UserID, id string) error {
	if _, err := b.getBill(ctx, actor, id); err != nil {
		return err
	}
	if err := b.store.DeleteBill(ctx, id); err != nil {
		return fmt.Errorf("delete bill: %w", err)
	}
	slog.InfoContext(ctx, "Recurring bill deleted", "bill_id", id, "actor", actor)
	return nil
}

// DueBills lists the scope's bills with their pay date in the given
// month, ordered by date.
func (b *Bills) DueBills(ctx context.Context, actor core.UserID, scope core.Scope, year int, month time.Month) ([]core.DueBill, error) {
	if month < time.January || month > time.December {
		return nil, core.NewValidationError("month", "month must be between 1 and 12")
	}
	bills, err := b.ListBills(ctx, actor, scope)
	if err != nil {
		return nil, err
	}
	out := dueBills(bills, year, month, b.today(), b.checker)
	sort.SliceStable(out, func(i, j int) bool { return out[i].DueDate.Before(out[j].DueDate.Time) })
	return out, nil
}

// DraftFromBill pre-fills an expense posting for this month's
// occurrence of the bill.
func (b *Bills) DraftFromBill(ctx context.Context, actor core.UserID, id string) (core.PostingDraft, error) {
	bill, err := b.getBill(ctx, actor, id)
	if err != nil {
		return core.PostingDraft{}, err
	}
	today := b.today()
	return core.PostingDraft{
		Kind:          core.TxExpense,
		Scope:         bill.Scope,
		DestinationID: bill.CategoryID,
		Amount:        bill.Amount,
		Date:          bill.DueDate(today.Year(), today.Month()),
		Description:   bill.Title,
	}, nil
}

// DraftDebtPayment pre-fills a payment against a liability for the
// amount still owed.
func (b *Bills) DraftDebtPayment(ctx context.Context, actor core.UserID, liabilityID string) (core.PostingDraft, error) {
	acc, err := lookupAccount(ctx, b.store, "destination", liabilityID)
	if err != nil {
		return core.PostingDraft{}, err
	}
	if err := checkRole(acc, "destination", actor, acc.Scope, core.AccountLiability); err != nil {
		return core.PostingDraft{}, err
	}
	bal, err := accountBalance(ctx, b.store, b.cache, acc.ID)
	if err != nil {
		return core.PostingDraft{}, err
	}
	owed := decimal.Zero
	if bal.IsNegative() {
		owed = bal.Neg()
	}
	return core.PostingDraft{
		Kind:          core.TxExpense,
		Scope:         acc.Scope,
		DestinationID: acc.ID,
		Amount:        owed,
		Date:          b.today(),
		Description:   "Payment: " + acc.Name,
	}, nil
}
