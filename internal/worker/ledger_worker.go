package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sonrial/family-budget/internal/amqp"
	"github.com/Sonrial/family-budget/internal/core"
	"github.com/Sonrial/family-budget/internal/log"
	"github.com/Sonrial/family-budget/internal/services"
	"github.com/Sonrial/family-budget/internal/sheets"
)

// OrphanReconciler removes headers left behind by interrupted postings.
type OrphanReconciler interface {
	Run(ctx context.Context) (int, error)
}

// LedgerWorker reacts to committed ledger changes and periodically
// cleans up interrupted postings.
type LedgerWorker struct {
	cache      services.BalanceCache
	exporter   sheets.LedgerExporter
	reconciler OrphanReconciler
	interval   time.Duration
	logger     *log.Logger
}

// NewLedgerWorker builds a worker. cache and exporter may be nil.
func NewLedgerWorker(cache services.BalanceCache, exporter sheets.LedgerExporter, reconciler OrphanReconciler, interval time.Duration, logger *log.Logger) *LedgerWorker {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &LedgerWorker{
		cache:      cache,
		exporter:   exporter,
		reconciler: reconciler,
		interval:   interval,
		logger:     logger.WithComponent(log.ComponentWorker),
	}
}

// HandleLedgerEvent drops the cached balances of the touched accounts and
// appends the event to the spreadsheet. An export failure is returned so
// the message is redelivered, unless the spreadsheet rejected the row.
func (w *LedgerWorker) HandleLedgerEvent(ctx context.Context, ev core.LedgerEvent) error {
	logger := w.logger.With(
		log.FieldEventType, string(ev.Type),
		log.FieldTransactionID, ev.TransactionID)
	logger.InfoContext(ctx, "Processing ledger event", "accounts", len(ev.AccountIDs))

	if w.cache != nil && len(ev.AccountIDs) > 0 {
		w.cache.Invalidate(ctx, ev.AccountIDs...)
	}

	if w.exporter == nil {
		logger.DebugContext(ctx, "No exporter configured, skipping spreadsheet export")
		return nil
	}
	ref, err := w.exporter.ExportEvent(ctx, ev)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to export ledger event",
			log.FieldOperation, log.OpExport,
			log.FieldError, err.Error())
		if errors.Is(err, sheets.ErrRejected) {
			return fmt.Errorf("%w: export ledger event: %w", amqp.ErrDiscard, err)
		}
		return fmt.Errorf("export ledger event: %w", err)
	}
	logger.InfoContext(ctx, "Ledger event exported", log.FieldSheetsRef, ref)
	return nil
}

// RunReconciler reconciles once at startup and then on every interval
// until ctx ends.
func (w *LedgerWorker) RunReconciler(ctx context.Context) error {
	if w.reconciler == nil {
		return fmt.Errorf("worker has no reconciler")
	}
	if w.interval <= 0 {
		return fmt.Errorf("invalid reconcile interval %v", w.interval)
	}

	w.reconcile(ctx)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			w.reconcile(ctx)
		case <-ctx.Done():
			w.logger.InfoContext(ctx, "Reconciler stopped")
			return nil
		}
	}
}

func (w *LedgerWorker) reconcile(ctx context.Context) {
	start := time.Now()
	removed, err := w.reconciler.Run(ctx)
	if err != nil && ctx.Err() == nil {
		w.logger.ErrorContext(ctx, "Reconciliation failed",
			log.FieldOperation, log.OpReconcile,
			log.FieldError, err.Error())
		return
	}
	w.logger.DebugContext(ctx, "Reconciliation pass finished",
		log.FieldOperation, log.OpReconcile,
		"removed", removed,
		log.FieldDuration, time.Since(start).Milliseconds())
}
