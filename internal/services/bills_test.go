package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Sonrial/family-budget/internal/core"
	"github.com/Sonrial/family-budget/internal/storage"
	"github.com/Sonrial/family-budget/internal/storage/memory"
)

func TestBills_CreateAndList(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	bill, err := f.bills.CreateBill(ctx, ana, core.NewBill{Title: "Gym", Amount: "29,90", PayDay: 3, CategoryID: f.id("food"), Scope: core.ScopePersonal})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if core.FormatAmount(bill.Amount) != "29.90" {
		t.Errorf("amount = %s", bill.Amount)
	}
	if _, err := f.bills.CreateBill(ctx, leo, core.NewBill{Title: "Water", Amount: "40", PayDay: 31, CategoryID: f.id("groceries"), Scope: core.ScopeShared}); err != nil {
		t.Fatalf("create shared: %v", err)
	}

	tests := []struct {
		name string
		in   core.NewBill
		want error
	}{
		{"bad amount", core.NewBill{Title: "X", Amount: "0", PayDay: 1, CategoryID: f.id("food"), Scope: core.ScopePersonal}, core.ErrInvalidAmount},
		{"bad pay day", core.NewBill{Title: "X", Amount: "1", PayDay: 0, CategoryID: f.id("food"), Scope: core.ScopePersonal}, core.ErrValidation},
		{"asset category", core.NewBill{Title: "X", Amount: "1", PayDay: 1, CategoryID: f.id("cash"), Scope: core.ScopePersonal}, core.ErrInvalidReference},
		{"missing category", core.NewBill{Title: "X", Amount: "1", PayDay: 1, CategoryID: "nope", Scope: core.ScopePersonal}, core.ErrInvalidReference},
		{"scope mismatch", core.NewBill{Title: "X", Amount: "1", PayDay: 1, CategoryID: f.id("food"), Scope: core.ScopeShared}, core.ErrInvalidReference},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.bills.CreateBill(ctx, ana, tt.in); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}

	if mine, _ := f.bills.ListBills(ctx, ana, core.ScopePersonal); len(mine) != 1 {
		t.Fatalf("expected 1 personal bill, got %d", len(mine))
	}
	if theirs, _ := f.bills.ListBills(ctx, leo, core.ScopePersonal); len(theirs) != 0 {
		t.Fatalf("leo sees ana's personal bills")
	}
	if shared, _ := f.bills.ListBills(ctx, ana, core.ScopeShared); len(shared) != 1 {
		t.Fatalf("expected 1 shared bill, got %d", len(shared))
	}

	if err := f.bills.DeleteBill(ctx, leo, bill.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("leo deleted ana's bill: %v", err)
	}
	if err := f.bills.DeleteBill(ctx, ana, bill.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
}

func TestBills_DueAndDrafts(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	for _, in := range []core.NewBill{
		{Title: "Rent", Amount: "800", PayDay: 31, CategoryID: f.id("groceries"), Scope: core.ScopeShared},
		{Title: "Internet", Amount: "35", PayDay: 10, CategoryID: f.id("groceries"), Scope: core.ScopeShared},
		{Title: "Phone", Amount: "12", PayDay: 2, CategoryID: f.id("groceries"), Scope: core.ScopeShared},
	} {
		if _, err := f.bills.CreateBill(ctx, ana, in); err != nil {
			t.Fatalf("create %s: %v", in.Title, err)
		}
	}

	due, err := f.bills.DueBills(ctx, ana, core.ScopeShared, 2025, time.March)
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	want := []struct {
		title  string
		date   string
		status core.DueStatus
	}{
		{"Phone", "2025-03-02", core.DuePast},
		{"Internet", "2025-03-10", core.DueToday},
		{"Rent", "2025-03-31", core.DueUpcoming},
	}
	if len(due) != len(want) {
		t.Fatalf("expected %d due bills, got %d", len(want), len(due))
	}
	for i, w := range want {
		if due[i].Bill.Title != w.title || due[i].DueDate.String() != w.date || due[i].Status != w.status {
			t.Errorf("due[%d] = %s %s %s, want %+v", i, due[i].Bill.Title, due[i].DueDate, due[i].Status, w)
		}
	}
	if _, err := f.bills.DueBills(ctx, ana, core.ScopeShared, 2025, 13); !errors.Is(err, core.ErrValidation) {
		t.Fatalf("expected validation error for month 13, got %v", err)
	}

	draft, err := f.bills.DraftFromBill(ctx, leo, due[2].Bill.ID)
	if err != nil {
		t.Fatalf("draft: %v", err)
	}
	if draft.Kind != core.TxExpense || draft.DestinationID != f.id("groceries") || draft.Date.String() != "2025-03-31" || draft.Description != "Rent" {
		t.Fatalf("unexpected draft %+v", draft)
	}
	req := draft.Request(f.id("pool"))
	if req.Amount != "800.00" || req.OriginID != f.id("pool") {
		t.Fatalf("unexpected request %+v", req)
	}
	if _, err := f.engine.Post(ctx, leo, req); err != nil {
		t.Fatalf("posting the draft failed: %v", err)
	}
}

func TestBills_DraftDebtPayment(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	loan, _, err := f.engine.OpenLiability(ctx, ana, core.LiabilityRequest{Name: "Car loan", Scope: core.ScopePersonal, OpeningDebt: "1200", CounterAccountID: f.id("food")})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	pay := core.PostingRequest{Kind: core.TxExpense, Scope: core.ScopePersonal, OriginID: f.id("cash"), DestinationID: loan.ID, Amount: "200", Date: core.NewDate(2025, 3, 5)}
	if _, err := f.engine.Post(ctx, ana, pay); err != nil {
		t.Fatalf("pay: %v", err)
	}

	draft, err := f.bills.DraftDebtPayment(ctx, ana, loan.ID)
	if err != nil {
		t.Fatalf("draft: %v", err)
	}
	if draft.Description != "Payment: Car loan" || !draft.Amount.Equal(dec("1000")) || draft.Date.String() != "2025-03-10" {
		t.Fatalf("unexpected draft %+v", draft)
	}
	if _, err := f.bills.DraftDebtPayment(ctx, ana, f.id("food")); !errors.Is(err, core.ErrInvalidReference) {
		t.Fatalf("expected reference error for non liability, got %v", err)
	}
}

func TestReconciler_RemovesOrphans(t *testing.T) {
	var fs *faultyStore
	f := newFixture(t, func(m *memory.Store) storage.Store {
		fs = &faultyStore{Store: m}
		return fs
	})
	ctx := context.Background()
	fs.failLines = errors.New("lines down")
	fs.failDelete = errors.New("delete down")
	_, err := f.engine.Post(ctx, ana, expense(f, "10"))
	if !errors.Is(err, core.ErrPartialPosting) {
		t.Fatalf("expected partial posting, got %v", err)
	}
	fs.failLines, fs.failDelete = nil, nil
	if _, err := f.engine.Post(ctx, ana, expense(f, "4")); err != nil {
		t.Fatalf("post: %v", err)
	}

	early := NewReconciler(f.store, time.Hour, WithClock(func() time.Time { return fixedNow.Add(30 * time.Minute) }))
	if n, err := early.Run(ctx); err != nil || n != 0 {
		t.Fatalf("orphan inside grace period removed: n=%d err=%v", n, err)
	}

	events := &recordingPublisher{}
	late := NewReconciler(f.store, time.Hour, WithClock(func() time.Time { return fixedNow.Add(2 * time.Hour) }), WithEvents(events))
	n, err := late.Run(ctx)
	if err != nil || n != 1 {
		t.Fatalf("expected one orphan removed, n=%d err=%v", n, err)
	}
	if f.txCount(t) != 1 {
		t.Fatalf("complete transaction should survive reconciliation")
	}
	if len(events.events) != 1 || events.events[0].Type != core.EventDeleted {
		t.Fatalf("expected a delete event, got %+v", events.events)
	}
}
