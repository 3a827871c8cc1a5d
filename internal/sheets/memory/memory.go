package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/Sonrial/family-budget/internal/core"
	"github.com/Sonrial/family-budget/internal/sheets"
)

// Exporter keeps exported rows in memory. Used when no spreadsheet is
// configured and in tests.
type Exporter struct {
	mu   sync.Mutex
	rows map[int][][]any
}

var _ sheets.LedgerExporter = (*Exporter)(nil)

func New() *Exporter {
	return &Exporter{rows: map[int][][]any{}}
}

// ExportEvent stores the row and returns a synthetic row reference.
func (e *Exporter) ExportEvent(_ context.Context, ev core.LedgerEvent) (string, error) {
	if ev.TransactionID == "" {
		return "", core.NewValidationError("transaction_id", "event without transaction")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	year := sheets.Year(ev)
	e.rows[year] = append(e.rows[year], sheets.Row(ev))
	return fmt.Sprintf("mem:%d:%d", year, len(e.rows[year])), nil
}

// Rows returns a copy of the rows exported for year.
func (e *Exporter) Rows(year int) [][]any {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([][]any(nil), e.rows[year]...)
}
