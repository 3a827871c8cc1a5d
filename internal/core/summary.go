package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountBalance is an account with its derived balance.
type AccountBalance struct {
	Account Account
	Balance decimal.Decimal
}

// TransactionDetail is a transaction header with its lines.
type TransactionDetail struct {
	Transaction Transaction
	Lines       []Line
	// Amount is the magnitude of the posting, read from the positive line.
	Amount decimal.Decimal
}

// AccountIDs returns the accounts touched by the transaction lines.
func (d TransactionDetail) AccountIDs() []string {
	ids := make([]string, 0, len(d.Lines))
	for _, l := range d.Lines {
		ids = append(ids, l.AccountID)
	}
	return ids
}

// PostingRequest carries user input for a new transaction. Amount is kept
// as the raw string so parsing happens inside the engine.
type PostingRequest struct {
	Kind          TransactionKind
	Scope         Scope
	OriginID      string
	DestinationID string
	Amount        string
	Date          Date
	Description   string
	Notes         string
}

// PostingDraft is a pre-filled posting form produced from a bill or a
// debt. Nothing is written until the draft is submitted as a request.
type PostingDraft struct {
	Kind          TransactionKind
	Scope         Scope
	DestinationID string
	Amount        decimal.Decimal
	Date          Date
	Description   string
}

// Request converts the draft into a posting request paid from origin.
func (d PostingDraft) Request(originID string) PostingRequest {
	r := PostingRequest{
		Kind:          d.Kind,
		Scope:         d.Scope,
		OriginID:      originID,
		DestinationID: d.DestinationID,
		Date:          d.Date,
		Description:   d.Description,
	}
	if !d.Amount.IsZero() {
		r.Amount = FormatAmount(d.Amount)
	}
	return r
}

// TransactionUpdate lists the correctable fields of a transaction. Nil
// fields are left untouched.
type TransactionUpdate struct {
	Amount *string
	Date   *Date
	Notes  *string
}

func (u TransactionUpdate) Empty() bool {
	return u.Amount == nil && u.Date == nil && u.Notes == nil
}

// TransactionFilter selects transactions for listing.
type TransactionFilter struct {
	Scope     Scope
	CreatedBy UserID // required for PERSONAL
	Limit     int
}

// AccountFilter selects accounts for listing.
type AccountFilter struct {
	Scope   Scope
	OwnerID UserID // required for PERSONAL
	Kind    AccountKind
}

type LedgerEventType string

const (
	EventPosted  LedgerEventType = "transaction.posted"
	EventUpdated LedgerEventType = "transaction.updated"
	EventDeleted LedgerEventType = "transaction.deleted"
)

// LedgerEvent is emitted after a committed ledger change.
type LedgerEvent struct {
	Type          LedgerEventType `json:"type"`
	TransactionID string          `json:"transaction_id"`
	Kind          TransactionKind `json:"kind,omitempty"`
	Scope         Scope           `json:"scope,omitempty"`
	Description   string          `json:"description,omitempty"`
	Date          string          `json:"date,omitempty"`
	Amount        string          `json:"amount,omitempty"`
	AccountIDs    []string        `json:"account_ids"`
	Actor         UserID          `json:"actor"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// NewLedgerEvent builds an event from a transaction detail.
func NewLedgerEvent(typ LedgerEventType, d TransactionDetail, actor UserID, at time.Time) LedgerEvent {
	ev := LedgerEvent{
		Type:          typ,
		TransactionID: d.Transaction.ID,
		Kind:          d.Transaction.Kind,
		Scope:         d.Transaction.Scope,
		Description:   d.Transaction.Description,
		Date:          d.Transaction.Date.String(),
		AccountIDs:    d.AccountIDs(),
		Actor:         actor,
		OccurredAt:    at.UTC(),
	}
	if !d.Amount.IsZero() {
		ev.Amount = FormatAmount(d.Amount)
	}
	return ev
}

// NewAccount is the user input for registering an account.
type NewAccount struct {
	Name  string
	Label string
	Kind  AccountKind
	Scope Scope
}

// AccountTemplate is one entry of a chart-of-accounts seed.
type AccountTemplate struct {
	Name  string      `yaml:"name"`
	Label string      `yaml:"label"`
	Kind  AccountKind `yaml:"kind"`
	Scope Scope       `yaml:"scope"`
}

// LiabilityRequest opens a debt account, optionally with the amount
// already owed booked against a counter account.
type LiabilityRequest struct {
	Name             string
	Label            string
	Scope            Scope
	OpeningDebt      string
	CounterAccountID string
}

// NewBill is the user input for a recurring bill.
type NewBill struct {
	Title      string
	Amount     string
	PayDay     int
	CategoryID string
	Scope      Scope
}

// DueBill is a recurring bill with its pay date in a given month.
type DueBill struct {
	Bill    RecurringBill
	DueDate Date
	Status  DueStatus
}

type DueStatus string

const (
	DueUpcoming DueStatus = "upcoming"
	DueToday    DueStatus = "due"
	DuePast     DueStatus = "past"
)
