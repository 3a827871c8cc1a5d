package sheets

import (
	"context"
	"errors"
	"strings"

	"github.com/Sonrial/family-budget/internal/core"
)

// LedgerExporter appends ledger events to an external journal, one row per
// event. It is write-only; the ledger database stays authoritative.
type LedgerExporter interface {
	ExportEvent(ctx context.Context, ev core.LedgerEvent) (rowRef string, err error)
}

// ErrRejected wraps export failures that retrying cannot fix, such as a
// missing tab or revoked access.
var ErrRejected = errors.New("export rejected")

// Header names the exported columns, in Row order.
var Header = []string{
	"Recorded at", "Date", "Event", "Transaction", "Kind",
	"Scope", "Description", "Amount", "Actor", "Accounts",
}

// Row flattens an event into the exported columns.
func Row(ev core.LedgerEvent) []any {
	return []any{
		ev.OccurredAt.UTC().Format("2006-01-02 15:04:05"),
		ev.Date,
		string(ev.Type),
		ev.TransactionID,
		string(ev.Kind),
		string(ev.Scope),
		ev.Description,
		ev.Amount,
		string(ev.Actor),
		strings.Join(ev.AccountIDs, " "),
	}
}

// Year picks the yearly tab an event belongs to: the transaction date when
// known, the recording time otherwise.
func Year(ev core.LedgerEvent) int {
	if d, err := core.ParseDate(ev.Date); err == nil {
		return d.Year()
	}
	return ev.OccurredAt.Year()
}
