package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Sonrial/family-budget/internal/core"
	"github.com/Sonrial/family-budget/internal/storage"
)

// Store keeps the ledger in process memory. It enforces the same
// referential rules as the SQL schema but has no multi-statement
// transactions, so callers fall back to compensation.
type Store struct {
	mu       sync.Mutex
	profiles map[core.UserID]core.Profile
	accounts map[string]core.Account
	txs      map[string]core.Transaction
	lines    map[string]core.Line
	bills    map[string]core.RecurringBill
}

func New() *Store {
	return &Store{
		profiles: map[core.UserID]core.Profile{},
		accounts: map[string]core.Account{},
		txs:      map[string]core.Transaction{},
		lines:    map[string]core.Line{},
		bills:    map[string]core.RecurringBill{},
	}
}

func (s *Store) UpsertProfile(_ context.Context, p core.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.ID] = p
	return nil
}

func (s *Store) GetProfile(_ context.Context, id core.UserID) (core.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		return core.Profile{}, fmt.Errorf("profile %s: %w", id, core.ErrNotFound)
	}
	return p, nil
}

func (s *Store) CreateAccount(_ context.Context, a core.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[a.ID]; ok {
		return core.NewValidationError("id", "duplicate account id")
	}
	s.accounts[a.ID] = a
	return nil
}

func (s *Store) GetAccount(_ context.Context, id string) (core.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	if !ok {
		return core.Account{}, fmt.Errorf("account %s: %w", id, core.ErrNotFound)
	}
	return a, nil
}

func (s *Store) ListAccounts(_ context.Context, f core.AccountFilter) ([]core.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Account
	for _, a := range s.accounts {
		if f.Scope != "" && a.Scope != f.Scope {
			continue
		}
		if f.OwnerID != "" && a.OwnerID != f.OwnerID {
			continue
		}
		if f.Kind != "" && a.Kind != f.Kind {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) DeleteAccount(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[id]; !ok {
		return fmt.Errorf("account %s: %w", id, core.ErrNotFound)
	}
	for _, l := range s.lines {
		if l.AccountID == id {
			return fmt.Errorf("account %s referenced by ledger lines: %w", id, core.ErrReferentialIntegrity)
		}
	}
	for _, b := range s.bills {
		if b.CategoryID == id {
			return fmt.Errorf("account %s referenced by bill %s: %w", id, b.ID, core.ErrReferentialIntegrity)
		}
	}
	delete(s.accounts, id)
	return nil
}

func (s *Store) InsertTransaction(_ context.Context, t core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.txs[t.ID]; ok {
		return core.NewValidationError("id", "duplicate transaction id")
	}
	s.txs[t.ID] = t
	return nil
}

// InsertLines stores every line or none of them.
func (s *Store) InsertLines(_ context.Context, lines []core.Line) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range lines {
		if _, ok := s.txs[l.TransactionID]; !ok {
			return fmt.Errorf("line %s: transaction %s: %w", l.ID, l.TransactionID, core.ErrReferentialIntegrity)
		}
		if _, ok := s.accounts[l.AccountID]; !ok {
			return fmt.Errorf("line %s: account %s: %w", l.ID, l.AccountID, core.ErrReferentialIntegrity)
		}
		if _, ok := s.lines[l.ID]; ok {
			return core.NewValidationError("id", "duplicate line id")
		}
	}
	for _, l := range lines {
		s.lines[l.ID] = l
	}
	return nil
}

func (s *Store) GetTransaction(_ context.Context, id string) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.txs[id]
	if !ok {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
	}
	return t, nil
}

func (s *Store) ListLines(_ context.Context, transactionID string) ([]core.Line, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.linesOf(transactionID), nil
}

func (s *Store) linesOf(transactionID string) []core.Line {
	var out []core.Line
	for _, l := range s.lines {
		if l.TransactionID == transactionID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) ListTransactions(_ context.Context, f core.TransactionFilter) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Transaction
	for _, t := range s.txs {
		if f.Scope != "" && t.Scope != f.Scope {
			continue
		}
		if f.CreatedBy != "" && t.CreatedBy != f.CreatedBy {
			continue
		}
		out = append(out, t)
	}
	sortNewestFirst(out)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func sortNewestFirst(txs []core.Transaction) {
	sort.Slice(txs, func(i, j int) bool {
		a, b := txs[i], txs[j]
		if !a.Date.Equal(b.Date.Time) {
			return a.Date.After(b.Date.Time)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

func (s *Store) UpdateTransactionHeader(_ context.Context, t core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.txs[t.ID]
	if !ok {
		return fmt.Errorf("transaction %s: %w", t.ID, core.ErrNotFound)
	}
	cur.Date = t.Date
	cur.Notes = t.Notes
	s.txs[t.ID] = cur
	return nil
}

func (s *Store) UpdateLineAmounts(_ context.Context, lines []core.Line) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range lines {
		if _, ok := s.lines[l.ID]; !ok {
			return fmt.Errorf("line %s: %w", l.ID, core.ErrNotFound)
		}
	}
	for _, l := range lines {
		cur := s.lines[l.ID]
		cur.Amount = l.Amount
		s.lines[l.ID] = cur
	}
	return nil
}

func (s *Store) DeleteTransaction(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.txs[id]; !ok {
		return fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
	}
	for lid, l := range s.lines {
		if l.TransactionID == id {
			delete(s.lines, lid)
		}
	}
	delete(s.txs, id)
	return nil
}

func (s *Store) SumLines(_ context.Context, accountID string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := decimal.Zero
	for _, l := range s.lines {
		if l.AccountID == accountID {
			total = total.Add(l.Amount)
		}
	}
	return total, nil
}

func (s *Store) ListOrphanTransactions(_ context.Context, before time.Time) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	withLines := map[string]struct{}{}
	for _, l := range s.lines {
		withLines[l.TransactionID] = struct{}{}
	}
	var out []core.Transaction
	for _, t := range s.txs {
		if _, ok := withLines[t.ID]; ok {
			continue
		}
		if t.CreatedAt.Before(before) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) CreateBill(_ context.Context, b core.RecurringBill) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[b.CategoryID]; !ok {
		return fmt.Errorf("bill category %s: %w", b.CategoryID, core.ErrReferentialIntegrity)
	}
	s.bills[b.ID] = b
	return nil
}

func (s *Store) GetBill(_ context.Context, id string) (core.RecurringBill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bills[id]
	if !ok {
		return core.RecurringBill{}, fmt.Errorf("bill %s: %w", id, core.ErrNotFound)
	}
	return b, nil
}

func (s *Store) ListBills(_ context.Context, scope core.Scope, createdBy core.UserID) ([]core.RecurringBill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.RecurringBill
	for _, b := range s.bills {
		if b.Scope != scope {
			continue
		}
		if createdBy != "" && b.CreatedBy != createdBy {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PayDay != out[j].PayDay {
			return out[i].PayDay < out[j].PayDay
		}
		return out[i].Title < out[j].Title
	})
	return out, nil
}

func (s *Store) DeleteBill(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bills[id]; !ok {
		return fmt.Errorf("bill %s: %w", id, core.ErrNotFound)
	}
	delete(s.bills, id)
	return nil
}

var _ storage.Store = (*Store)(nil)
