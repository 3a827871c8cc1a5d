package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/Sonrial/family-budget/internal/core"
	"github.com/Sonrial/family-budget/internal/storage"
)

// balanceWorkers bounds concurrent balance sums in Balances.
const balanceWorkers = 8

// Registry manages the chart of accounts.
type Registry struct {
	store storage.Store
	deps
}

func NewRegistry(store storage.Store, opts ...Option) *Registry {
	return &Registry{store: store, deps: newDeps(opts)}
}

// newAccount validates input and fills the server-side fields. PERSONAL
// accounts always belong to the actor.
func newAccount(actor core.UserID, in core.NewAccount, d deps) (core.Account, error) {
	if actor == "" {
		return core.Account{}, core.NewValidationError("actor", "acting user is required")
	}
	a := core.Account{
		ID:        d.newID(),
		Name:      strings.TrimSpace(in.Name),
		Label:     strings.TrimSpace(in.Label),
		Kind:      in.Kind,
		Scope:     in.Scope,
		CreatedAt: d.now().UTC(),
	}
	if a.Label == "" {
		a.Label = core.DefaultLabel(a.Name)
	}
	if a.Scope == core.ScopePersonal {
		a.OwnerID = actor
	}
	if err := a.Validate(); err != nil {
		return core.Account{}, err
	}
	return a, nil
}

func (r *Registry) CreateAccount(ctx context.Context, actor core.UserID, in core.NewAccount) (core.Account, error) {
	a, err := newAccount(actor, in, r.deps)
	if err != nil {
		return core.Account{}, err
	}
	if err := r.store.CreateAccount(ctx, a); err != nil {
		return core.Account{}, fmt.Errorf("create account: %w", err)
	}
	slog.InfoContext(ctx, "Account created",
		"account_id", a.ID,
		"kind", a.Kind,
		"scope", a.Scope,
		"actor", actor)
	return a, nil
}

// ListAccounts returns the accounts of a scope visible to the actor,
// optionally restricted to one kind.
func (r *Registry) ListAccounts(ctx context.Context, actor core.UserID, scope core.Scope, kind core.AccountKind) ([]core.Account, error) {
	f, err := accountFilter(actor, scope, kind)
	if err != nil {
		return nil, err
	}
	accounts, err := r.store.ListAccounts(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return accounts, nil
}

func accountFilter(actor core.UserID, scope core.Scope, kind core.AccountKind) (core.AccountFilter, error) {
	if !scope.IsValid() {
		return core.AccountFilter{}, core.NewValidationError("scope", fmt.Sprintf("unknown scope %q", scope))
	}
	if kind != "" && !kind.IsValid() {
		return core.AccountFilter{}, core.NewValidationError("kind", fmt.Sprintf("unknown account kind %q", kind))
	}
	f := core.AccountFilter{Scope: scope, Kind: kind}
	if scope == core.ScopePersonal {
		if actor == "" {
			return core.AccountFilter{}, core.NewValidationError("actor", "acting user is required")
		}
		f.OwnerID = actor
	}
	return f, nil
}

// DeleteAccount removes an account nothing references.
func (r *Registry) DeleteAccount(ctx context.Context, actor core.UserID, id string) error {
	acc, err := lookupAccount(ctx, r.store, "account", id)
	if err != nil {
		return err
	}
	if !acc.VisibleTo(actor) {
		return &core.ReferenceError{Role: "account", AccountID: id, Reason: "not visible to this user"}
	}
	if err := r.store.DeleteAccount(ctx, acc.ID); err != nil {
		if errors.Is(err, core.ErrReferentialIntegrity) {
			slog.InfoContext(ctx, "Account delete refused, still referenced", "account_id", id)
		}
		return fmt.Errorf("delete account: %w", err)
	}
	if r.cache != nil {
		r.cache.Invalidate(ctx, acc.ID)
	}
	slog.InfoContext(ctx, "Account deleted", "account_id", id, "actor", actor)
	return nil
}

// Balances returns every visible account of the scope with its derived
// balance. Sums run concurrently.
func (r *Registry) Balances(ctx context.Context, actor core.UserID, scope core.Scope, kind core.AccountKind) ([]core.AccountBalance, error) {
	accounts, err := r.ListAccounts(ctx, actor, scope, kind)
	if err != nil {
		return nil, err
	}
	out := make([]core.AccountBalance, len(accounts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(balanceWorkers)
	for i, a := range accounts {
		g.Go(func() error {
			bal, err := accountBalance(gctx, r.store, r.cache, a.ID)
			if err != nil {
				return err
			}
			out[i] = core.AccountBalance{Account: a, Balance: bal}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Bootstrap creates the template accounts the actor does not have yet.
// An existing account with the same name and kind in the scope counts as
// present.
func (r *Registry) Bootstrap(ctx context.Context, actor core.UserID, templates []core.AccountTemplate) ([]core.Account, error) {
	existing := map[core.Scope]map[string]struct{}{}
	for _, scope := range []core.Scope{core.ScopePersonal, core.ScopeShared} {
		accounts, err := r.ListAccounts(ctx, actor, scope, "")
		if err != nil {
			return nil, err
		}
		names := map[string]struct{}{}
		for _, a := range accounts {
			names[templateKey(a.Name, a.Kind)] = struct{}{}
		}
		existing[scope] = names
	}

	var created []core.Account
	for _, t := range templates {
		names, ok := existing[t.Scope]
		if !ok {
			return created, core.NewValidationError("scope", fmt.Sprintf("template %q has unknown scope %q", t.Name, t.Scope))
		}
		key := templateKey(t.Name, t.Kind)
		if _, ok := names[key]; ok {
			continue
		}
		a, err := r.CreateAccount(ctx, actor, core.NewAccount{Name: t.Name, Label: t.Label, Kind: t.Kind, Scope: t.Scope})
		if err != nil {
			return created, fmt.Errorf("bootstrap %q: %w", t.Name, err)
		}
		names[key] = struct{}{}
		created = append(created, a)
	}
	slog.InfoContext(ctx, "Chart of accounts bootstrapped",
		"created", len(created),
		"templates", len(templates),
		"actor", actor)
	return created, nil
}

func templateKey(name string, kind core.AccountKind) string {
	return string(kind) + "|" + strings.ToLower(strings.TrimSpace(name))
}
