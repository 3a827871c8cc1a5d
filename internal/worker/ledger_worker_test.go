package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Sonrial/family-budget/internal/amqp"
	"github.com/Sonrial/family-budget/internal/core"
	"github.com/Sonrial/family-budget/internal/log"
	"github.com/Sonrial/family-budget/internal/services"
	"github.com/Sonrial/family-budget/internal/sheets"
	sheetsmem "github.com/Sonrial/family-budget/internal/sheets/memory"
	"github.com/Sonrial/family-budget/internal/storage/memory"
)

var quiet = log.New(log.Config{Output: io.Discard})

type recordingCache struct {
	mu          sync.Mutex
	invalidated []string
}

func (c *recordingCache) Get(context.Context, string) (decimal.Decimal, uint64, bool) {
	return decimal.Zero, 0, false
}
func (c *recordingCache) Set(context.Context, string, uint64, decimal.Decimal) {}
func (c *recordingCache) Invalidate(_ context.Context, ids ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, ids...)
}

type failingExporter struct{}

func (failingExporter) ExportEvent(context.Context, core.LedgerEvent) (string, error) {
	return "", errors.New("quota exceeded")
}

type countingReconciler struct {
	runs atomic.Int32
	err  error
}

func (r *countingReconciler) Run(context.Context) (int, error) {
	r.runs.Add(1)
	return 0, r.err
}

func sampleEvent() core.LedgerEvent {
	return core.LedgerEvent{
		Type:          core.EventPosted,
		TransactionID: "tx-1",
		Kind:          core.TxExpense,
		Scope:         core.ScopePersonal,
		Date:          "2025-03-09",
		Amount:        "12.50",
		AccountIDs:    []string{"cash", "food"},
		Actor:         "u-ana",
		OccurredAt:    time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC),
	}
}

func TestHandleLedgerEvent(t *testing.T) {
	cache := &recordingCache{}
	exporter := sheetsmem.New()
	w := NewLedgerWorker(cache, exporter, nil, time.Minute, quiet)

	if err := w.HandleLedgerEvent(context.Background(), sampleEvent()); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(cache.invalidated) != 2 || cache.invalidated[0] != "cash" {
		t.Errorf("invalidated = %v", cache.invalidated)
	}
	if rows := exporter.Rows(2025); len(rows) != 1 {
		t.Errorf("expected one exported row, got %d", len(rows))
	}
}

func TestHandleLedgerEvent_WithoutCollaborators(t *testing.T) {
	w := NewLedgerWorker(nil, nil, nil, time.Minute, quiet)
	if err := w.HandleLedgerEvent(context.Background(), sampleEvent()); err != nil {
		t.Fatalf("handle: %v", err)
	}
}

func TestHandleLedgerEvent_ExportFailureIsReturned(t *testing.T) {
	cache := &recordingCache{}
	w := NewLedgerWorker(cache, failingExporter{}, nil, time.Minute, quiet)
	if err := w.HandleLedgerEvent(context.Background(), sampleEvent()); err == nil {
		t.Fatal("expected export error so the message is redelivered")
	}
	if len(cache.invalidated) != 2 {
		t.Error("cache should be invalidated before exporting")
	}
}

type rejectingExporter struct{}

func (rejectingExporter) ExportEvent(context.Context, core.LedgerEvent) (string, error) {
	return "", fmt.Errorf("%w: 403 forbidden", sheets.ErrRejected)
}

func TestHandleLedgerEvent_RejectedExportIsDiscarded(t *testing.T) {
	w := NewLedgerWorker(nil, rejectingExporter{}, nil, time.Minute, quiet)
	if err := w.HandleLedgerEvent(context.Background(), sampleEvent()); !errors.Is(err, amqp.ErrDiscard) {
		t.Fatalf("expected a discard error, got %v", err)
	}

	w = NewLedgerWorker(nil, failingExporter{}, nil, time.Minute, quiet)
	if err := w.HandleLedgerEvent(context.Background(), sampleEvent()); errors.Is(err, amqp.ErrDiscard) {
		t.Fatalf("transient failures must be redelivered, got %v", err)
	}
}

func TestRunReconciler(t *testing.T) {
	rec := &countingReconciler{err: errors.New("db busy")}
	w := NewLedgerWorker(nil, nil, rec, 5*time.Millisecond, quiet)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	if err := w.RunReconciler(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}
	if n := rec.runs.Load(); n < 2 {
		t.Errorf("expected a startup pass and periodic passes, got %d", n)
	}
}

func TestRunReconciler_Misconfigured(t *testing.T) {
	if err := NewLedgerWorker(nil, nil, nil, time.Minute, quiet).RunReconciler(context.Background()); err == nil {
		t.Error("expected error without reconciler")
	}
	if err := NewLedgerWorker(nil, nil, &countingReconciler{}, 0, quiet).RunReconciler(context.Background()); err == nil {
		t.Error("expected error for zero interval")
	}
}

func TestRunReconciler_RemovesOrphans(t *testing.T) {
	store := memory.New()
	old := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	if err := store.InsertTransaction(context.Background(), core.Transaction{
		ID: "orphan", Kind: core.TxExpense, Scope: core.ScopePersonal,
		Date: core.NewDate(2025, 3, 10), CreatedBy: "u-ana", CreatedAt: old,
	}); err != nil {
		t.Fatal(err)
	}
	now := func() time.Time { return old.Add(time.Hour) }
	rec := services.NewReconciler(store, 15*time.Minute, services.WithClock(now))
	w := NewLedgerWorker(nil, nil, rec, time.Hour, quiet)

	w.reconcile(context.Background())

	if _, err := store.GetTransaction(context.Background(), "orphan"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("orphan should be gone, got %v", err)
	}
}
