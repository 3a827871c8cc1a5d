package core

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

const (
	AccountAsset     AccountKind = "ASSET"
	AccountExpense   AccountKind = "EXPENSE"
	AccountIncome    AccountKind = "INCOME"
	AccountLiability AccountKind = "LIABILITY"
)

const (
	ScopePersonal Scope = "PERSONAL"
	ScopeShared   Scope = "SHARED"
)

const (
	TxExpense  TransactionKind = "GASTO"
	TxIncome   TransactionKind = "INGRESO"
	TxTransfer TransactionKind = "APORTE"
)

// MaxLabelLength is the longest label, in runes, an account may carry.
const MaxLabelLength = 4

type (
	AccountKind     string
	Scope           string
	TransactionKind string

	// UserID identifies an authenticated household member.
	UserID string

	Date struct {
		time.Time
	}

	Account struct {
		ID        string
		Name      string
		Label     string // short tag shown next to the name
		Kind      AccountKind
		Scope     Scope
		OwnerID   UserID // empty for shared accounts
		CreatedAt time.Time
	}

	Transaction struct {
		ID          string
		Description string
		Notes       string
		Kind        TransactionKind
		Scope       Scope
		Date        Date
		CreatedBy   UserID
		CreatedAt   time.Time
	}

	Line struct {
		ID            string
		TransactionID string
		AccountID     string
		Amount        decimal.Decimal
	}

	RecurringBill struct {
		ID         string
		Title      string
		Amount     decimal.Decimal
		PayDay     int
		CategoryID string
		Scope      Scope
		CreatedBy  UserID
		CreatedAt  time.Time
	}

	Profile struct {
		ID          UserID
		Email       string
		DisplayName string
	}
)

// IsValid reports whether k is one of the known account kinds.
func (k AccountKind) IsValid() bool {
	switch k {
	case AccountAsset, AccountExpense, AccountIncome, AccountLiability:
		return true
	}
	return false
}

// DebitNormal reports whether the natural balance of the kind is positive.
func (k AccountKind) DebitNormal() bool {
	return k == AccountAsset || k == AccountExpense
}

func (s Scope) IsValid() bool {
	return s == ScopePersonal || s == ScopeShared
}

func (k TransactionKind) IsValid() bool {
	switch k {
	case TxExpense, TxIncome, TxTransfer:
		return true
	}
	return false
}

// ParseAccountKind accepts the wire value in any letter case.
func ParseAccountKind(s string) (AccountKind, error) {
	k := AccountKind(strings.ToUpper(strings.TrimSpace(s)))
	if !k.IsValid() {
		return "", NewValidationError("kind", "unknown account kind "+quote(s))
	}
	return k, nil
}

func ParseScope(s string) (Scope, error) {
	sc := Scope(strings.ToUpper(strings.TrimSpace(s)))
	if !sc.IsValid() {
		return "", NewValidationError("scope", "unknown scope "+quote(s))
	}
	return sc, nil
}

func ParseTransactionKind(s string) (TransactionKind, error) {
	k := TransactionKind(strings.ToUpper(strings.TrimSpace(s)))
	if !k.IsValid() {
		return "", NewValidationError("type", "unknown transaction type "+quote(s))
	}
	return k, nil
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, NewValidationError("date", "expected YYYY-MM-DD")
	}
	return Date{Time: t}, nil
}

const DateLayout = "2006-01-02"

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

func (d Date) Validate() error {
	if d.IsZero() {
		return NewValidationError("date", "date is required")
	}
	return nil
}

// VisibleTo reports whether the actor may see and reference the account.
func (a Account) VisibleTo(actor UserID) bool {
	if a.Scope == ScopeShared {
		return true
	}
	return a.OwnerID != "" && a.OwnerID == actor
}

// DefaultLabel is the label used when none is given: the first rune of
// the name, upper-cased.
func DefaultLabel(name string) string {
	name = strings.TrimSpace(name)
	r, _ := utf8.DecodeRuneInString(name)
	if r == utf8.RuneError {
		return ""
	}
	return string(unicode.ToUpper(r))
}

func (a Account) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return NewValidationError("name", "name is required")
	}
	if utf8.RuneCountInString(a.Name) > 100 {
		return NewValidationError("name", "name too long (max 100 characters)")
	}
	if utf8.RuneCountInString(a.Label) > MaxLabelLength {
		return NewValidationError("label", "label too long (max 4 characters)")
	}
	if !a.Kind.IsValid() {
		return NewValidationError("kind", "unknown account kind "+quote(string(a.Kind)))
	}
	if !a.Scope.IsValid() {
		return NewValidationError("scope", "unknown scope "+quote(string(a.Scope)))
	}
	if a.Scope == ScopePersonal && a.OwnerID == "" {
		return NewValidationError("owner", "personal accounts need an owner")
	}
	return nil
}

func (b RecurringBill) Validate() error {
	if strings.TrimSpace(b.Title) == "" {
		return NewValidationError("title", "title is required")
	}
	if len(b.Title) > 200 {
		return NewValidationError("title", "title too long (max 200 characters)")
	}
	if err := ValidateAmount(b.Amount); err != nil {
		return err
	}
	if b.PayDay < 1 || b.PayDay > 31 {
		return NewValidationError("pay_day", "pay day must be between 1 and 31")
	}
	if strings.TrimSpace(b.CategoryID) == "" {
		return NewValidationError("category_id", "category is required")
	}
	if !b.Scope.IsValid() {
		return NewValidationError("scope", "unknown scope "+quote(string(b.Scope)))
	}
	return nil
}

// DueDate returns the bill's pay date in the given month, clamped to the
// last day of short months.
func (b RecurringBill) DueDate(year int, month time.Month) Date {
	lastDay := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
	day := b.PayDay
	if day > lastDay {
		day = lastDay
	}
	return NewDate(year, int(month), day)
}

// Name returns the best human-readable name for the profile.
func (p Profile) Name() string {
	if n := strings.TrimSpace(p.DisplayName); n != "" {
		return n
	}
	if e := strings.TrimSpace(p.Email); e != "" {
		if i := strings.IndexByte(e, '@'); i > 0 {
			return e[:i]
		}
		return e
	}
	return string(p.ID)
}

func quote(s string) string {
	return "\"" + s + "\""
}
