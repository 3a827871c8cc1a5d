package services

import (
	"context"
	"errors"
	"testing"

	"github.com/Sonrial/family-budget/internal/core"
)

func TestRegistry_CreateAccount(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	a, err := f.registry.CreateAccount(ctx, ana, core.NewAccount{Name: "  électricité ", Kind: core.AccountExpense, Scope: core.ScopePersonal})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if a.Name != "électricité" || a.Label != "É" || a.OwnerID != ana {
		t.Errorf("unexpected account %+v", a)
	}

	shared, err := f.registry.CreateAccount(ctx, ana, core.NewAccount{Name: "Rent", Label: "RENT", Kind: core.AccountExpense, Scope: core.ScopeShared})
	if err != nil {
		t.Fatalf("create shared: %v", err)
	}
	if shared.OwnerID != "" {
		t.Errorf("shared account got an owner: %q", shared.OwnerID)
	}

	bads := []core.NewAccount{
		{Name: "", Kind: core.AccountAsset, Scope: core.ScopePersonal},
		{Name: "Cash", Label: "CASH!", Kind: core.AccountAsset, Scope: core.ScopePersonal},
		{Name: "Cash", Kind: "EQUITY", Scope: core.ScopePersonal},
		{Name: "Cash", Kind: core.AccountAsset, Scope: "FAMILY"},
	}
	for i, in := range bads {
		if _, err := f.registry.CreateAccount(ctx, ana, in); !errors.Is(err, core.ErrValidation) {
			t.Errorf("case %d: expected validation error, got %v", i, err)
		}
	}
}

func TestRegistry_ListAccounts(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	mine, err := f.registry.ListAccounts(ctx, ana, core.ScopePersonal, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, a := range mine {
		if a.OwnerID != ana {
			t.Fatalf("personal list leaked %+v", a)
		}
	}
	if len(mine) != 5 {
		t.Fatalf("expected 5 personal accounts, got %d", len(mine))
	}

	assets, _ := f.registry.ListAccounts(ctx, leo, core.ScopeShared, core.AccountAsset)
	if len(assets) != 1 || assets[0].ID != f.id("pool") {
		t.Fatalf("unexpected shared assets %+v", assets)
	}

	if _, err := f.registry.ListAccounts(ctx, ana, "BOTH", ""); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := f.registry.ListAccounts(ctx, ana, core.ScopeShared, "EQUITY"); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRegistry_DeleteAccount(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	if _, err := f.engine.Post(ctx, ana, expense(f, "5")); err != nil {
		t.Fatalf("post: %v", err)
	}

	if err := f.registry.DeleteAccount(ctx, ana, f.id("food")); !errors.Is(err, core.ErrReferentialIntegrity) {
		t.Fatalf("expected referential integrity error, got %v", err)
	}
	if err := f.registry.DeleteAccount(ctx, ana, "missing"); !errors.Is(err, core.ErrInvalidReference) {
		t.Fatalf("expected invalid reference, got %v", err)
	}
	if err := f.registry.DeleteAccount(ctx, leo, f.id("savings")); !errors.Is(err, core.ErrInvalidReference) {
		t.Fatalf("leo deleted ana's account: %v", err)
	}
	if err := f.registry.DeleteAccount(ctx, ana, f.id("savings")); err != nil {
		t.Fatalf("delete unused: %v", err)
	}
	if _, err := f.mem.GetAccount(ctx, f.id("savings")); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("account still present: %v", err)
	}
}

func TestRegistry_Balances(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	for _, amt := range []string{"10", "2.5"} {
		if _, err := f.engine.Post(ctx, ana, expense(f, amt)); err != nil {
			t.Fatalf("post: %v", err)
		}
	}
	balances, err := f.registry.Balances(ctx, ana, core.ScopePersonal, "")
	if err != nil {
		t.Fatalf("balances: %v", err)
	}
	got := map[string]string{}
	for _, b := range balances {
		got[b.Account.ID] = core.FormatAmount(b.Balance)
	}
	if got[f.id("food")] != "12.50" || got[f.id("cash")] != "-12.50" || got[f.id("salary")] != "0.00" {
		t.Fatalf("unexpected balances %v", got)
	}
}

func TestRegistry_Bootstrap(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	templates := []core.AccountTemplate{
		{Name: "cash", Kind: core.AccountAsset, Scope: core.ScopePersonal},
		{Name: "Transport", Label: "T", Kind: core.AccountExpense, Scope: core.ScopePersonal},
		{Name: "Family pool", Kind: core.AccountAsset, Scope: core.ScopeShared},
		{Name: "Utilities", Kind: core.AccountExpense, Scope: core.ScopeShared},
	}

	created, err := f.registry.Bootstrap(ctx, ana, templates)
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if len(created) != 2 || created[0].Name != "Transport" || created[1].Name != "Utilities" {
		t.Fatalf("unexpected created accounts %+v", created)
	}
	again, err := f.registry.Bootstrap(ctx, ana, templates)
	if err != nil || len(again) != 0 {
		t.Fatalf("second bootstrap created %d accounts, err = %v", len(again), err)
	}
	fresh, err := f.registry.Bootstrap(ctx, leo, templates[:2])
	if err != nil || len(fresh) != 2 {
		t.Fatalf("leo bootstrap created %d, err = %v", len(fresh), err)
	}
	if _, err := f.registry.Bootstrap(ctx, ana, []core.AccountTemplate{{Name: "X", Kind: core.AccountAsset, Scope: "NONE"}}); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("expected validation error for bad scope, got %v", err)
	}
}
