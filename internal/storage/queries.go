package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Sonrial/family-budget/internal/core"
)

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

// Queries runs the ledger statements against a connection or a
// transaction. It implements Store.
type Queries struct {
	db      DBTX
	dialect Dialect
}

func New(db DBTX, dialect Dialect) *Queries {
	return &Queries{db: db, dialect: dialect}
}

func (q *Queries) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	res, err := q.db.ExecContext(ctx, q.dialect.rebind(query), args...)
	return res, q.dialect.translate(err)
}

func (q *Queries) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return q.db.QueryContext(ctx, q.dialect.rebind(query), args...)
}

func (q *Queries) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return q.db.QueryRowContext(ctx, q.dialect.rebind(query), args...)
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

const createProfile = `INSERT INTO profiles (id, email, display_name) VALUES (?, ?, ?)
ON CONFLICT (id) DO UPDATE SET email = excluded.email, display_name = excluded.display_name`

func (q *Queries) UpsertProfile(ctx context.Context, p core.Profile) error {
	if _, err := q.exec(ctx, createProfile, string(p.ID), p.Email, p.DisplayName); err != nil {
		return fmt.Errorf("upsert profile %s: %w", p.ID, err)
	}
	return nil
}

const getProfile = `SELECT id, email, display_name FROM profiles WHERE id = ?`

func (q *Queries) GetProfile(ctx context.Context, id core.UserID) (core.Profile, error) {
	var p core.Profile
	var pid string
	err := q.queryRow(ctx, getProfile, string(id)).Scan(&pid, &p.Email, &p.DisplayName)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Profile{}, fmt.Errorf("profile %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Profile{}, fmt.Errorf("get profile %s: %w", id, err)
	}
	p.ID = core.UserID(pid)
	return p, nil
}

const createAccount = `INSERT INTO accounts (id, name, label, kind, scope, owner_id, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) CreateAccount(ctx context.Context, a core.Account) error {
	_, err := q.exec(ctx, createAccount,
		a.ID, a.Name, a.Label, string(a.Kind), string(a.Scope),
		nullable(string(a.OwnerID)), q.dialect.timeArg(a.CreatedAt))
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

const accountColumns = `id, name, label, kind, scope, owner_id, created_at`

func scanAccount(sc interface{ Scan(...any) error }) (core.Account, error) {
	var (
		a       core.Account
		kind    string
		scope   string
		owner   sql.NullString
		created timeColumn
	)
	if err := sc.Scan(&a.ID, &a.Name, &a.Label, &kind, &scope, &owner, &created); err != nil {
		return core.Account{}, err
	}
	a.Kind = core.AccountKind(kind)
	a.Scope = core.Scope(scope)
	a.OwnerID = core.UserID(owner.String)
	a.CreatedAt = created.t
	return a, nil
}

func (q *Queries) GetAccount(ctx context.Context, id string) (core.Account, error) {
	a, err := scanAccount(q.queryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Account{}, fmt.Errorf("account %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Account{}, fmt.Errorf("get account %s: %w", id, err)
	}
	return a, nil
}

func (q *Queries) ListAccounts(ctx context.Context, f core.AccountFilter) ([]core.Account, error) {
	var (
		where []string
		args  []any
	)
	if f.Scope != "" {
		where = append(where, "scope = ?")
		args = append(args, string(f.Scope))
	}
	if f.OwnerID != "" {
		where = append(where, "owner_id = ?")
		args = append(args, string(f.OwnerID))
	}
	if f.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(f.Kind))
	}
	stmt := `SELECT ` + accountColumns + ` FROM accounts`
	if len(where) > 0 {
		stmt += ` WHERE ` + strings.Join(where, " AND ")
	}
	stmt += ` ORDER BY kind, name, id`

	rows, err := q.query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()
	var out []core.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (q *Queries) DeleteAccount(ctx context.Context, id string) error {
	res, err := q.exec(ctx, `DELETE FROM accounts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete account %s: %w", id, err)
	}
	if err := requireAffected(res); err != nil {
		return fmt.Errorf("delete account %s: %w", id, err)
	}
	return nil
}

const insertTransaction = `INSERT INTO transactions (id, description, notes, kind, scope, date, created_by, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) InsertTransaction(ctx context.Context, t core.Transaction) error {
	_, err := q.exec(ctx, insertTransaction,
		t.ID, t.Description, t.Notes, string(t.Kind), string(t.Scope),
		q.dialect.dateArg(t.Date), string(t.CreatedBy), q.dialect.timeArg(t.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

const insertLine = `INSERT INTO transaction_lines (id, transaction_id, account_id, amount) VALUES (?, ?, ?, ?)`

func (q *Queries) InsertLines(ctx context.Context, lines []core.Line) error {
	for _, l := range lines {
		if _, err := q.exec(ctx, insertLine, l.ID, l.TransactionID, l.AccountID, core.FormatAmount(l.Amount)); err != nil {
			return fmt.Errorf("insert line for account %s: %w", l.AccountID, err)
		}
	}
	return nil
}

const transactionColumns = `id, description, notes, kind, scope, date, created_by, created_at`

func scanTransaction(sc interface{ Scan(...any) error }) (core.Transaction, error) {
	var (
		t         core.Transaction
		kind      string
		scope     string
		createdBy string
		date      timeColumn
		created   timeColumn
	)
	if err := sc.Scan(&t.ID, &t.Description, &t.Notes, &kind, &scope, &date, &createdBy, &created); err != nil {
		return core.Transaction{}, err
	}
	t.Kind = core.TransactionKind(kind)
	t.Scope = core.Scope(scope)
	t.Date = date.date()
	t.CreatedBy = core.UserID(createdBy)
	t.CreatedAt = created.t
	return t, nil
}

func (q *Queries) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	t, err := scanTransaction(q.queryRow(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction %s: %w", id, err)
	}
	return t, nil
}

func (q *Queries) ListLines(ctx context.Context, transactionID string) ([]core.Line, error) {
	rows, err := q.query(ctx,
		`SELECT id, transaction_id, account_id, amount FROM transaction_lines WHERE transaction_id = ? ORDER BY id`,
		transactionID)
	if err != nil {
		return nil, fmt.Errorf("list lines: %w", err)
	}
	defer rows.Close()
	var out []core.Line
	for rows.Next() {
		var l core.Line
		if err := rows.Scan(&l.ID, &l.TransactionID, &l.AccountID, &l.Amount); err != nil {
			return nil, fmt.Errorf("scan line: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (q *Queries) ListTransactions(ctx context.Context, f core.TransactionFilter) ([]core.Transaction, error) {
	var (
		where []string
		args  []any
	)
	if f.Scope != "" {
		where = append(where, "scope = ?")
		args = append(args, string(f.Scope))
	}
	if f.CreatedBy != "" {
		where = append(where, "created_by = ?")
		args = append(args, string(f.CreatedBy))
	}
	stmt := `SELECT ` + transactionColumns + ` FROM transactions`
	if len(where) > 0 {
		stmt += ` WHERE ` + strings.Join(where, " AND ")
	}
	stmt += ` ORDER BY date DESC, created_at DESC, id`
	if f.Limit > 0 {
		stmt += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	return q.listTransactions(ctx, stmt, args...)
}

func (q *Queries) listTransactions(ctx context.Context, stmt string, args ...any) ([]core.Transaction, error) {
	rows, err := q.query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()
	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (q *Queries) UpdateTransactionHeader(ctx context.Context, t core.Transaction) error {
	res, err := q.exec(ctx, `UPDATE transactions SET date = ?, notes = ? WHERE id = ?`,
		q.dialect.dateArg(t.Date), t.Notes, t.ID)
	if err != nil {
		return fmt.Errorf("update transaction %s: %w", t.ID, err)
	}
	if err := requireAffected(res); err != nil {
		return fmt.Errorf("update transaction %s: %w", t.ID, err)
	}
	return nil
}

func (q *Queries) UpdateLineAmounts(ctx context.Context, lines []core.Line) error {
	for _, l := range lines {
		res, err := q.exec(ctx, `UPDATE transaction_lines SET amount = ? WHERE id = ?`,
			core.FormatAmount(l.Amount), l.ID)
		if err != nil {
			return fmt.Errorf("update line %s: %w", l.ID, err)
		}
		if err := requireAffected(res); err != nil {
			return fmt.Errorf("update line %s: %w", l.ID, err)
		}
	}
	return nil
}

func (q *Queries) DeleteTransaction(ctx context.Context, id string) error {
	res, err := q.exec(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete transaction %s: %w", id, err)
	}
	if err := requireAffected(res); err != nil {
		return fmt.Errorf("delete transaction %s: %w", id, err)
	}
	return nil
}

// SumLines adds the line amounts in Go so both dialects keep exact
// decimal arithmetic regardless of the column type.
func (q *Queries) SumLines(ctx context.Context, accountID string) (decimal.Decimal, error) {
	rows, err := q.query(ctx, `SELECT amount FROM transaction_lines WHERE account_id = ?`, accountID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum lines for %s: %w", accountID, err)
	}
	defer rows.Close()
	total := decimal.Zero
	for rows.Next() {
		var amount decimal.Decimal
		if err := rows.Scan(&amount); err != nil {
			return decimal.Zero, fmt.Errorf("scan line amount: %w", err)
		}
		total = total.Add(amount)
	}
	if err := rows.Err(); err != nil {
		return decimal.Zero, fmt.Errorf("sum lines for %s: %w", accountID, err)
	}
	return total, nil
}

func (q *Queries) ListOrphanTransactions(ctx context.Context, before time.Time) ([]core.Transaction, error) {
	stmt := `SELECT ` + transactionColumns + ` FROM transactions t
WHERE t.created_at < ? AND NOT EXISTS (SELECT 1 FROM transaction_lines l WHERE l.transaction_id = t.id)
ORDER BY t.created_at`
	return q.listTransactions(ctx, stmt, q.dialect.timeArg(before))
}

const createBill = `INSERT INTO recurring_bills (id, title, amount, pay_day, category_id, scope, created_by, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

func (q *Queries) CreateBill(ctx context.Context, b core.RecurringBill) error {
	_, err := q.exec(ctx, createBill,
		b.ID, b.Title, core.FormatAmount(b.Amount), b.PayDay, b.CategoryID,
		string(b.Scope), string(b.CreatedBy), q.dialect.timeArg(b.CreatedAt))
	if err != nil {
		return fmt.Errorf("create bill: %w", err)
	}
	return nil
}

const billColumns = `id, title, amount, pay_day, category_id, scope, created_by, created_at`

func scanBill(sc interface{ Scan(...any) error }) (core.RecurringBill, error) {
	var (
		b         core.RecurringBill
		scope     string
		createdBy string
		created   timeColumn
	)
	if err := sc.Scan(&b.ID, &b.Title, &b.Amount, &b.PayDay, &b.CategoryID, &scope, &createdBy, &created); err != nil {
		return core.RecurringBill{}, err
	}
	b.Scope = core.Scope(scope)
	b.CreatedBy = core.UserID(createdBy)
	b.CreatedAt = created.t
	return b, nil
}

func (q *Queries) GetBill(ctx context.Context, id string) (core.RecurringBill, error) {
	b, err := scanBill(q.queryRow(ctx, `SELECT `+billColumns+` FROM recurring_bills WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.RecurringBill{}, fmt.Errorf("bill %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.RecurringBill{}, fmt.Errorf("get bill %s: %w", id, err)
	}
	return b, nil
}

func (q *Queries) ListBills(ctx context.Context, scope core.Scope, createdBy core.UserID) ([]core.RecurringBill, error) {
	stmt := `SELECT ` + billColumns + ` FROM recurring_bills WHERE scope = ?`
	args := []any{string(scope)}
	if createdBy != "" {
		stmt += ` AND created_by = ?`
		args = append(args, string(createdBy))
	}
	stmt += ` ORDER BY pay_day, title`

	rows, err := q.query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list bills: %w", err)
	}
	defer rows.Close()
	var out []core.RecurringBill
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bill: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (q *Queries) DeleteBill(ctx context.Context, id string) error {
	res, err := q.exec(ctx, `DELETE FROM recurring_bills WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete bill %s: %w", id, err)
	}
	if err := requireAffected(res); err != nil {
		return fmt.Errorf("delete bill %s: %w", id, err)
	}
	return nil
}

var _ Store = (*Queries)(nil)
