// This file maps domain values to their JSON shape and domain errors to
// HTTP statuses.

package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Sonrial/family-budget/internal/core"
	"github.com/Sonrial/family-budget/internal/log"
)

type accountView struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Label     string    `json:"label"`
	Kind      string    `json:"kind"`
	Scope     string    `json:"scope"`
	OwnerID   string    `json:"owner_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func newAccountView(a core.Account) accountView {
	return accountView{
		ID:        a.ID,
		Name:      a.Name,
		Label:     a.Label,
		Kind:      string(a.Kind),
		Scope:     string(a.Scope),
		OwnerID:   string(a.OwnerID),
		CreatedAt: a.CreatedAt,
	}
}

func newAccountViews(accs []core.Account) []accountView {
	out := make([]accountView, 0, len(accs))
	for _, a := range accs {
		out = append(out, newAccountView(a))
	}
	return out
}

type balanceView struct {
	accountView
	Balance string `json:"balance"`
}

func newBalanceViews(bs []core.AccountBalance) []balanceView {
	out := make([]balanceView, 0, len(bs))
	for _, b := range bs {
		out = append(out, balanceView{accountView: newAccountView(b.Account), Balance: core.FormatAmount(b.Balance)})
	}
	return out
}

type lineView struct {
	ID        string `json:"id"`
	AccountID string `json:"account_id"`
	Amount    string `json:"amount"`
}

type transactionView struct {
	ID          string     `json:"id"`
	Kind        string     `json:"kind"`
	Scope       string     `json:"scope"`
	Date        string     `json:"date"`
	Description string     `json:"description"`
	Notes       string     `json:"notes,omitempty"`
	CreatedBy   string     `json:"created_by"`
	CreatedAt   time.Time  `json:"created_at"`
	Amount      string     `json:"amount,omitempty"`
	Lines       []lineView `json:"lines,omitempty"`
}

func newTransactionView(tx core.Transaction) transactionView {
	return transactionView{
		ID:          tx.ID,
		Kind:        string(tx.Kind),
		Scope:       string(tx.Scope),
		Date:        tx.Date.String(),
		Description: tx.Description,
		Notes:       tx.Notes,
		CreatedBy:   string(tx.CreatedBy),
		CreatedAt:   tx.CreatedAt,
	}
}

func newDetailView(d core.TransactionDetail) transactionView {
	v := newTransactionView(d.Transaction)
	v.Amount = core.FormatAmount(d.Amount)
	v.Lines = make([]lineView, 0, len(d.Lines))
	for _, l := range d.Lines {
		v.Lines = append(v.Lines, lineView{ID: l.ID, AccountID: l.AccountID, Amount: core.FormatAmount(l.Amount)})
	}
	return v
}

type billView struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Amount     string    `json:"amount"`
	PayDay     int       `json:"pay_day"`
	CategoryID string    `json:"category_id"`
	Scope      string    `json:"scope"`
	CreatedBy  string    `json:"created_by"`
	CreatedAt  time.Time `json:"created_at"`
}

func newBillView(b core.RecurringBill) billView {
	return billView{
		ID:         b.ID,
		Title:      b.Title,
		Amount:     core.FormatAmount(b.Amount),
		PayDay:     b.PayDay,
		CategoryID: b.CategoryID,
		Scope:      string(b.Scope),
		CreatedBy:  string(b.CreatedBy),
		CreatedAt:  b.CreatedAt,
	}
}

type dueBillView struct {
	billView
	DueDate string `json:"due_date"`
	Status  string `json:"status"`
}

type draftView struct {
	Kind          string `json:"kind"`
	Scope         string `json:"scope"`
	DestinationID string `json:"destination_id"`
	Amount        string `json:"amount,omitempty"`
	Date          string `json:"date"`
	Description   string `json:"description"`
}

func newDraftView(d core.PostingDraft) draftView {
	v := draftView{
		Kind:          string(d.Kind),
		Scope:         string(d.Scope),
		DestinationID: d.DestinationID,
		Date:          d.Date.String(),
		Description:   d.Description,
	}
	if !d.Amount.IsZero() {
		v.Amount = core.FormatAmount(d.Amount)
	}
	return v
}

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// statusFor maps a service error to its HTTP status and log error type.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, core.ErrPartialPosting):
		return http.StatusInternalServerError, log.ErrorTypeInternal
	case errors.Is(err, core.ErrValidation), errors.Is(err, core.ErrInvalidAmount):
		return http.StatusUnprocessableEntity, log.ErrorTypeValidation
	case errors.Is(err, core.ErrInvalidReference):
		return http.StatusUnprocessableEntity, log.ErrorTypeReference
	case errors.Is(err, core.ErrReferentialIntegrity):
		return http.StatusConflict, log.ErrorTypeConflict
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, log.ErrorTypeNotFound
	default:
		return http.StatusInternalServerError, log.ErrorTypeInternal
	}
}

// writeError logs the failure and writes the JSON error. Internal errors
// are not echoed to the client.
func writeError(c *gin.Context, op string, err error) {
	status, errType := statusFor(err)
	ctx := c.Request.Context()

	body := errorBody{Error: err.Error()}
	var verr *core.ValidationError
	if errors.As(err, &verr) {
		body.Field = verr.Field
	}

	if status >= http.StatusInternalServerError {
		log.LogError(ctx, "Request failed", err, op, errType, nil)
		body = errorBody{Error: "internal error"}
	} else {
		log.FromContext(ctx).DebugContext(ctx, "Request rejected",
			log.FieldOperation, op, log.FieldErrorType, errType, log.FieldError, err.Error())
	}
	c.AbortWithStatusJSON(status, body)
}

// writeBadRequest answers a body that is not valid JSON.
func writeBadRequest(c *gin.Context, err error) {
	log.FromContext(c.Request.Context()).DebugContext(c.Request.Context(), "Malformed request body", log.FieldError, err.Error())
	c.AbortWithStatusJSON(http.StatusBadRequest, errorBody{Error: "malformed JSON body"})
}
