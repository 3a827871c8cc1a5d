package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Sonrial/family-budget/internal/core"
	"github.com/Sonrial/family-budget/internal/storage"
)

const (
	DefaultListLimit = 20
	MaxListLimit     = 500
)

// Engine turns posting requests into balanced two-line transactions.
// It keeps no state between calls; every operation takes the acting user
// explicitly.
type Engine struct {
	store storage.Store
	deps
}

func NewEngine(store storage.Store, opts ...Option) *Engine {
	return &Engine{store: store, deps: newDeps(opts)}
}

// Post validates the request and writes the header and both lines as a
// single unit.
func (e *Engine) Post(ctx context.Context, actor core.UserID, req core.PostingRequest) (core.TransactionDetail, error) {
	detail, err := e.preparePosting(ctx, actor, req)
	if err != nil {
		return core.TransactionDetail{}, err
	}
	if err := e.commitPosting(ctx, e.store, detail); err != nil {
		return core.TransactionDetail{}, err
	}

	slog.InfoContext(ctx, "Transaction posted",
		"transaction_id", detail.Transaction.ID,
		"kind", detail.Transaction.Kind,
		"scope", detail.Transaction.Scope,
		"amount", core.FormatAmount(detail.Amount),
		"actor", actor)
	e.afterCommit(ctx, core.EventPosted, detail, actor)
	return detail, nil
}

func (e *Engine) preparePosting(ctx context.Context, actor core.UserID, req core.PostingRequest) (core.TransactionDetail, error) {
	if actor == "" {
		return core.TransactionDetail{}, core.NewValidationError("actor", "acting user is required")
	}
	if !req.Kind.IsValid() {
		return core.TransactionDetail{}, core.NewValidationError("type", fmt.Sprintf("unknown transaction type %q", req.Kind))
	}
	if req.Kind != core.TxTransfer && !req.Scope.IsValid() {
		return core.TransactionDetail{}, core.NewValidationError("scope", fmt.Sprintf("unknown scope %q", req.Scope))
	}
	amount, err := core.ParseAmount(req.Amount)
	if err != nil {
		return core.TransactionDetail{}, err
	}
	if err := req.Date.Validate(); err != nil {
		return core.TransactionDetail{}, err
	}

	origin, err := lookupAccount(ctx, e.store, "origin", req.OriginID)
	if err != nil {
		return core.TransactionDetail{}, err
	}
	dest, err := lookupAccount(ctx, e.store, "destination", req.DestinationID)
	if err != nil {
		return core.TransactionDetail{}, err
	}
	if origin.ID == dest.ID {
		return core.TransactionDetail{}, core.NewValidationError("destination", "origin and destination must differ")
	}

	var (
		scope       core.Scope
		description = strings.TrimSpace(req.Description)
		credit      core.Account // receives +amount
		debit       core.Account // receives -amount
	)
	switch req.Kind {
	case core.TxExpense:
		if err := checkRole(origin, "origin", actor, req.Scope, core.AccountAsset); err != nil {
			return core.TransactionDetail{}, err
		}
		if err := checkRole(dest, "destination", actor, req.Scope, core.AccountExpense, core.AccountLiability); err != nil {
			return core.TransactionDetail{}, err
		}
		scope, credit, debit = req.Scope, dest, origin
		if description == "" {
			description = "Expense: " + dest.Name
		}
	case core.TxIncome:
		if err := checkRole(origin, "origin", actor, req.Scope, core.AccountAsset); err != nil {
			return core.TransactionDetail{}, err
		}
		if err := checkRole(dest, "destination", actor, req.Scope, core.AccountIncome); err != nil {
			return core.TransactionDetail{}, err
		}
		scope, credit, debit = req.Scope, origin, dest
		if description == "" {
			description = "Income: " + dest.Name
		}
	case core.TxTransfer:
		scope, err = e.checkTransfer(ctx, actor, origin, dest)
		if err != nil {
			return core.TransactionDetail{}, err
		}
		credit, debit = dest, origin
		if description == "" {
			description = e.transferDescription(ctx, actor, dest)
		}
	}

	tx := core.Transaction{
		ID:          e.newID(),
		Description: description,
		Notes:       strings.TrimSpace(req.Notes),
		Kind:        req.Kind,
		Scope:       scope,
		Date:        req.Date,
		CreatedBy:   actor,
		CreatedAt:   e.now().UTC(),
	}
	return core.TransactionDetail{
		Transaction: tx,
		Lines: []core.Line{
			{ID: e.newID(), TransactionID: tx.ID, AccountID: credit.ID, Amount: amount},
			{ID: e.newID(), TransactionID: tx.ID, AccountID: debit.ID, Amount: amount.Neg()},
		},
		Amount: amount,
	}, nil
}

// checkTransfer applies the APORTE rules and returns the scope the
// transfer is recorded under.
func (e *Engine) checkTransfer(ctx context.Context, actor core.UserID, origin, dest core.Account) (core.Scope, error) {
	if origin.Kind != core.AccountAsset || origin.Scope != core.ScopePersonal || origin.OwnerID != actor {
		return "", &core.ReferenceError{Role: "origin", AccountID: origin.ID, Reason: "must be one of your personal asset accounts"}
	}
	if dest.Kind != core.AccountAsset {
		return "", &core.ReferenceError{Role: "destination", AccountID: dest.ID, Reason: "transfers can only reach asset accounts"}
	}
	if dest.Scope == core.ScopeShared {
		return core.ScopeShared, nil
	}
	if dest.OwnerID == "" || dest.OwnerID == actor {
		return "", &core.ReferenceError{Role: "destination", AccountID: dest.ID, Reason: "must be a shared account or another member's account"}
	}
	if _, err := e.store.GetProfile(ctx, dest.OwnerID); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return "", &core.ReferenceError{Role: "destination", AccountID: dest.ID, Reason: "owner is not a household member"}
		}
		return "", fmt.Errorf("check destination owner: %w", err)
	}
	return core.ScopePersonal, nil
}

func (e *Engine) transferDescription(ctx context.Context, actor core.UserID, dest core.Account) string {
	receiver := "shared pool"
	if dest.Scope == core.ScopePersonal {
		receiver = e.profileName(ctx, dest.OwnerID)
	}
	return "Transfer: " + e.profileName(ctx, actor) + " → " + receiver
}

func (e *Engine) profileName(ctx context.Context, id core.UserID) string {
	p, err := e.store.GetProfile(ctx, id)
	if err != nil {
		return string(id)
	}
	return p.Name()
}

// commitPosting writes header then lines. Without a transactional store a
// failed line insert is compensated by deleting the header.
func (e *Engine) commitPosting(ctx context.Context, store storage.Store, d core.TransactionDetail) error {
	if txr, ok := store.(storage.Transactor); ok {
		return txr.WithinTx(ctx, func(s storage.Store) error {
			return writePosting(ctx, s, d)
		})
	}

	if err := store.InsertTransaction(ctx, d.Transaction); err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	if err := store.InsertLines(ctx, d.Lines); err != nil {
		slog.WarnContext(ctx, "Line insert failed, removing transaction header",
			"transaction_id", d.Transaction.ID, "error", err)
		if delErr := store.DeleteTransaction(context.WithoutCancel(ctx), d.Transaction.ID); delErr != nil {
			slog.ErrorContext(ctx, "Compensating delete failed, transaction left without lines",
				"transaction_id", d.Transaction.ID, "error", delErr)
			return &core.PartialPostingError{TransactionID: d.Transaction.ID, Cause: err, Compensation: delErr}
		}
		return fmt.Errorf("insert lines: %w", err)
	}
	return nil
}

func writePosting(ctx context.Context, s storage.Store, d core.TransactionDetail) error {
	if err := s.InsertTransaction(ctx, d.Transaction); err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	if err := s.InsertLines(ctx, d.Lines); err != nil {
		return fmt.Errorf("insert lines: %w", err)
	}
	return nil
}

// GetBalance returns the sum of every line posted to the account.
func (e *Engine) GetBalance(ctx context.Context, actor core.UserID, accountID string) (decimal.Decimal, error) {
	acc, err := lookupAccount(ctx, e.store, "account", accountID)
	if err != nil {
		return decimal.Zero, err
	}
	if !acc.VisibleTo(actor) {
		return decimal.Zero, &core.ReferenceError{Role: "account", AccountID: accountID, Reason: "not visible to this user"}
	}
	return accountBalance(ctx, e.store, e.cache, accountID)
}

func accountBalance(ctx context.Context, store storage.LedgerStore, cache BalanceCache, accountID string) (decimal.Decimal, error) {
	var gen uint64
	if cache != nil {
		bal, g, ok := cache.Get(ctx, accountID)
		if ok {
			return bal, nil
		}
		gen = g
	}
	bal, err := store.SumLines(ctx, accountID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("balance of %s: %w", accountID, err)
	}
	if cache != nil {
		cache.Set(ctx, accountID, gen, bal)
	}
	return bal, nil
}

// GetTransaction returns the header, its lines and the posted amount.
func (e *Engine) GetTransaction(ctx context.Context, actor core.UserID, id string) (core.TransactionDetail, error) {
	tx, err := e.store.GetTransaction(ctx, id)
	if err != nil {
		return core.TransactionDetail{}, err
	}
	if !canSee(tx, actor) {
		return core.TransactionDetail{}, fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
	}
	lines, err := e.store.ListLines(ctx, id)
	if err != nil {
		return core.TransactionDetail{}, fmt.Errorf("load lines: %w", err)
	}
	d := core.TransactionDetail{Transaction: tx, Lines: lines}
	for _, l := range lines {
		if l.Amount.IsPositive() {
			d.Amount = l.Amount
			break
		}
	}
	return d, nil
}

// PERSONAL transactions belong to their creator; SHARED ones to everyone.
func canSee(tx core.Transaction, actor core.UserID) bool {
	return tx.Scope == core.ScopeShared || tx.CreatedBy == actor
}

// ListTransactions returns the newest transactions of a scope. PERSONAL
// lists only what the actor created.
func (e *Engine) ListTransactions(ctx context.Context, actor core.UserID, scope core.Scope, limit int) ([]core.Transaction, error) {
	if !scope.IsValid() {
		return nil, core.NewValidationError("scope", fmt.Sprintf("unknown scope %q", scope))
	}
	switch {
	case limit <= 0:
		limit = DefaultListLimit
	case limit > MaxListLimit:
		limit = MaxListLimit
	}
	f := core.TransactionFilter{Scope: scope, Limit: limit}
	if scope == core.ScopePersonal {
		f.CreatedBy = actor
	}
	txs, err := e.store.ListTransactions(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txs, nil
}

// UpdateTransaction corrects amount, date or notes. A new amount replaces
// the magnitude of both lines while each keeps its sign.
func (e *Engine) UpdateTransaction(ctx context.Context, actor core.UserID, id string, upd core.TransactionUpdate) (core.TransactionDetail, error) {
	if upd.Empty() {
		return core.TransactionDetail{}, core.NewValidationError("", "nothing to update")
	}
	var amount decimal.Decimal
	if upd.Amount != nil {
		a, err := core.ParseAmount(*upd.Amount)
		if err != nil {
			return core.TransactionDetail{}, err
		}
		amount = a
	}
	if upd.Date != nil {
		if err := upd.Date.Validate(); err != nil {
			return core.TransactionDetail{}, err
		}
	}

	cur, err := e.GetTransaction(ctx, actor, id)
	if err != nil {
		return core.TransactionDetail{}, err
	}

	next := cur
	next.Lines = append([]core.Line(nil), cur.Lines...)
	if upd.Amount != nil {
		if len(cur.Lines) == 0 {
			return core.TransactionDetail{}, core.NewValidationError("amount", "transaction has no lines to correct")
		}
		for i, l := range next.Lines {
			if l.Amount.IsNegative() {
				next.Lines[i].Amount = amount.Neg()
			} else {
				next.Lines[i].Amount = amount
			}
		}
		next.Amount = amount
	}
	if upd.Date != nil {
		next.Transaction.Date = *upd.Date
	}
	if upd.Notes != nil {
		next.Transaction.Notes = strings.TrimSpace(*upd.Notes)
	}

	if err := e.commitUpdate(ctx, cur, next, upd.Amount != nil); err != nil {
		return core.TransactionDetail{}, err
	}

	slog.InfoContext(ctx, "Transaction updated",
		"transaction_id", id,
		"amount_changed", upd.Amount != nil,
		"date_changed", upd.Date != nil,
		"notes_changed", upd.Notes != nil,
		"actor", actor)
	e.afterCommit(ctx, core.EventUpdated, next, actor)
	return next, nil
}

func (e *Engine) commitUpdate(ctx context.Context, cur, next core.TransactionDetail, amountChanged bool) error {
	write := func(s storage.Store) error {
		if amountChanged {
			if err := s.UpdateLineAmounts(ctx, next.Lines); err != nil {
				return fmt.Errorf("update lines: %w", err)
			}
		}
		if err := s.UpdateTransactionHeader(ctx, next.Transaction); err != nil {
			return fmt.Errorf("update header: %w", err)
		}
		return nil
	}
	if txr, ok := e.store.(storage.Transactor); ok {
		return txr.WithinTx(ctx, write)
	}

	err := write(e.store)
	if err == nil || !amountChanged {
		return err
	}
	// Lines may already carry the new amount; put the old ones back.
	if rbErr := e.store.UpdateLineAmounts(context.WithoutCancel(ctx), cur.Lines); rbErr != nil {
		slog.ErrorContext(ctx, "Failed to restore line amounts after update failure",
			"transaction_id", cur.Transaction.ID, "error", rbErr)
		return errors.Join(err, fmt.Errorf("restore line amounts: %w", rbErr))
	}
	return err
}

// DeleteTransaction removes a transaction and its lines.
func (e *Engine) DeleteTransaction(ctx context.Context, actor core.UserID, id string) error {
	cur, err := e.GetTransaction(ctx, actor, id)
	if err != nil {
		return err
	}
	if err := e.store.DeleteTransaction(ctx, id); err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	slog.InfoContext(ctx, "Transaction deleted", "transaction_id", id, "actor", actor)
	e.afterCommit(ctx, core.EventDeleted, cur, actor)
	return nil
}

// OpenLiability registers a debt account. A positive opening debt is
// posted against the counter account so the ledger stays balanced: the
// liability gets -X and the counter account +X. A blank or zero debt
// opens the account alone.
func (e *Engine) OpenLiability(ctx context.Context, actor core.UserID, req core.LiabilityRequest) (core.Account, *core.TransactionDetail, error) {
	acc, err := newAccount(actor, core.NewAccount{Name: req.Name, Label: req.Label, Kind: core.AccountLiability, Scope: req.Scope}, e.deps)
	if err != nil {
		return core.Account{}, nil, err
	}

	var opening *core.TransactionDetail
	amount, err := core.ParseOptionalAmount(req.OpeningDebt)
	if err != nil {
		return core.Account{}, nil, err
	}
	if amount.IsPositive() {
		counter, err := lookupAccount(ctx, e.store, "counter", req.CounterAccountID)
		if err != nil {
			return core.Account{}, nil, err
		}
		if err := checkRole(counter, "counter", actor, acc.Scope, core.AccountAsset, core.AccountExpense); err != nil {
			return core.Account{}, nil, err
		}
		kind := core.TxExpense
		if counter.Kind == core.AccountAsset {
			kind = core.TxIncome
		}
		tx := core.Transaction{
			ID:          e.newID(),
			Description: "Opening balance: " + acc.Name,
			Kind:        kind,
			Scope:       acc.Scope,
			Date:        e.today(),
			CreatedBy:   actor,
			CreatedAt:   e.now().UTC(),
		}
		opening = &core.TransactionDetail{
			Transaction: tx,
			Lines: []core.Line{
				{ID: e.newID(), TransactionID: tx.ID, AccountID: counter.ID, Amount: amount},
				{ID: e.newID(), TransactionID: tx.ID, AccountID: acc.ID, Amount: amount.Neg()},
			},
			Amount: amount,
		}
	}

	if txr, ok := e.store.(storage.Transactor); ok {
		err = txr.WithinTx(ctx, func(s storage.Store) error {
			if err := s.CreateAccount(ctx, acc); err != nil {
				return fmt.Errorf("create account: %w", err)
			}
			if opening != nil {
				return writePosting(ctx, s, *opening)
			}
			return nil
		})
	} else {
		err = e.openWithoutTx(ctx, acc, opening)
	}
	if err != nil {
		return core.Account{}, nil, err
	}

	slog.InfoContext(ctx, "Liability opened",
		"account_id", acc.ID,
		"scope", acc.Scope,
		"with_opening_debt", opening != nil,
		"actor", actor)
	if opening != nil {
		e.afterCommit(ctx, core.EventPosted, *opening, actor)
	}
	return acc, opening, nil
}

func (e *Engine) openWithoutTx(ctx context.Context, acc core.Account, opening *core.TransactionDetail) error {
	if err := e.store.CreateAccount(ctx, acc); err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	if opening == nil {
		return nil
	}
	err := e.commitPosting(ctx, e.store, *opening)
	if err == nil {
		return nil
	}
	var partial *core.PartialPostingError
	if errors.As(err, &partial) {
		return err
	}
	if delErr := e.store.DeleteAccount(context.WithoutCancel(ctx), acc.ID); delErr != nil {
		slog.ErrorContext(ctx, "Failed to remove liability after opening posting failed",
			"account_id", acc.ID, "error", delErr)
	}
	return err
}

// lookupAccount loads an account for a posting role, reporting a missing
// id as a reference error.
func lookupAccount(ctx context.Context, store storage.AccountStore, role, id string) (core.Account, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return core.Account{}, core.NewValidationError(role, role+" account is required")
	}
	acc, err := store.GetAccount(ctx, id)
	if errors.Is(err, core.ErrNotFound) {
		return core.Account{}, &core.ReferenceError{Role: role, AccountID: id, Reason: "does not exist"}
	}
	if err != nil {
		return core.Account{}, fmt.Errorf("load %s account: %w", role, err)
	}
	return acc, nil
}

// checkRole verifies visibility, scope and kind of an account used in a
// posting.
func checkRole(acc core.Account, role string, actor core.UserID, scope core.Scope, kinds ...core.AccountKind) error {
	if !acc.VisibleTo(actor) {
		return &core.ReferenceError{Role: role, AccountID: acc.ID, Reason: "not visible to this user"}
	}
	if acc.Scope != scope {
		return &core.ReferenceError{Role: role, AccountID: acc.ID, Reason: fmt.Sprintf("belongs to scope %s, not %s", acc.Scope, scope)}
	}
	for _, k := range kinds {
		if acc.Kind == k {
			return nil
		}
	}
	return &core.ReferenceError{Role: role, AccountID: acc.ID, Reason: fmt.Sprintf("kind %s not allowed here", acc.Kind)}
}
