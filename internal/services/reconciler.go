package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Sonrial/family-budget/internal/core"
	"github.com/Sonrial/family-budget/internal/storage"
)

// Reconciler removes transaction headers left without lines by an
// interrupted posting. Headers younger than the grace period are skipped
// so postings still in flight are not touched.
type Reconciler struct {
	store storage.LedgerStore
	grace time.Duration
	deps
}

func NewReconciler(store storage.LedgerStore, grace time.Duration, opts ...Option) *Reconciler {
	return &Reconciler{store: store, grace: grace, deps: newDeps(opts)}
}

// Run deletes the orphans found now and returns how many were removed.
func (r *Reconciler) Run(ctx context.Context) (int, error) {
	if r.store == nil {
		return 0, fmt.Errorf("reconciler not properly initialized")
	}
	cutoff := r.now().Add(-r.grace)
	orphans, err := r.store.ListOrphanTransactions(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list orphan transactions: %w", err)
	}
	if len(orphans) == 0 {
		slog.DebugContext(ctx, "No orphan transactions found", "cutoff", cutoff)
		return 0, nil
	}

	removed := 0
	for _, tx := range orphans {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if err := r.store.DeleteTransaction(ctx, tx.ID); err != nil {
			if errors.Is(err, core.ErrNotFound) {
				continue
			}
			slog.ErrorContext(ctx, "Failed to delete orphan transaction",
				"transaction_id", tx.ID,
				"error", err)
			continue
		}
		removed++
		slog.WarnContext(ctx, "Removed orphan transaction header",
			"transaction_id", tx.ID,
			"description", tx.Description,
			"created_at", tx.CreatedAt)
		if r.events != nil {
			ev := core.NewLedgerEvent(core.EventDeleted, core.TransactionDetail{Transaction: tx}, tx.CreatedBy, r.now())
			if err := r.events.PublishLedgerEvent(ctx, ev); err != nil {
				slog.ErrorContext(ctx, "Failed to publish ledger event", "transaction_id", tx.ID, "error", err)
			}
		}
	}

	slog.InfoContext(ctx, "Orphan reconciliation complete",
		"removed", removed,
		"found", len(orphans))
	return removed, nil
}
