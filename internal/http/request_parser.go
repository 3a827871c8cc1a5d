// Package http exposes the ledger as a JSON API.
//
// This file holds the request bodies and the helpers that turn query
// strings and bodies into service inputs.

package http

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Sonrial/family-budget/internal/core"
)

type createAccountRequest struct {
	Name  string `json:"name"`
	Label string `json:"label"`
	Kind  string `json:"kind"`
	Scope string `json:"scope"`
}

func (r createAccountRequest) toCore() (core.NewAccount, error) {
	kind, err := core.ParseAccountKind(r.Kind)
	if err != nil {
		return core.NewAccount{}, err
	}
	scope, err := core.ParseScope(r.Scope)
	if err != nil {
		return core.NewAccount{}, err
	}
	return core.NewAccount{
		Name:  sanitizeInput(r.Name),
		Label: sanitizeInput(r.Label),
		Kind:  kind,
		Scope: scope,
	}, nil
}

type liabilityRequest struct {
	Name             string `json:"name"`
	Label            string `json:"label"`
	Scope            string `json:"scope"`
	OpeningDebt      string `json:"opening_debt"`
	CounterAccountID string `json:"counter_account_id"`
}

func (r liabilityRequest) toCore() (core.LiabilityRequest, error) {
	scope, err := core.ParseScope(r.Scope)
	if err != nil {
		return core.LiabilityRequest{}, err
	}
	return core.LiabilityRequest{
		Name:             sanitizeInput(r.Name),
		Label:            sanitizeInput(r.Label),
		Scope:            scope,
		OpeningDebt:      strings.TrimSpace(r.OpeningDebt),
		CounterAccountID: strings.TrimSpace(r.CounterAccountID),
	}, nil
}

type bootstrapRequest struct {
	Templates []templateRequest `json:"templates"`
}

type templateRequest struct {
	Name  string `json:"name"`
	Label string `json:"label"`
	Kind  string `json:"kind"`
	Scope string `json:"scope"`
}

func (r bootstrapRequest) toCore() ([]core.AccountTemplate, error) {
	out := make([]core.AccountTemplate, 0, len(r.Templates))
	for _, t := range r.Templates {
		acc, err := createAccountRequest(t).toCore()
		if err != nil {
			return nil, err
		}
		out = append(out, core.AccountTemplate{Name: acc.Name, Label: acc.Label, Kind: acc.Kind, Scope: acc.Scope})
	}
	return out, nil
}

type postingRequest struct {
	Kind          string `json:"kind"`
	Scope         string `json:"scope"`
	OriginID      string `json:"origin_id"`
	DestinationID string `json:"destination_id"`
	Amount        string `json:"amount"`
	Date          string `json:"date"`
	Description   string `json:"description"`
	Notes         string `json:"notes"`
}

// toCore checks the enumerations and the date shape. The scope of a
// transfer is derived by the engine, so it may be omitted there.
func (r postingRequest) toCore() (core.PostingRequest, error) {
	kind, err := core.ParseTransactionKind(r.Kind)
	if err != nil {
		return core.PostingRequest{}, err
	}
	var scope core.Scope
	if strings.TrimSpace(r.Scope) != "" || kind != core.TxTransfer {
		if scope, err = core.ParseScope(r.Scope); err != nil {
			return core.PostingRequest{}, err
		}
	}
	date, err := parseOptionalDate(r.Date)
	if err != nil {
		return core.PostingRequest{}, err
	}
	return core.PostingRequest{
		Kind:          kind,
		Scope:         scope,
		OriginID:      strings.TrimSpace(r.OriginID),
		DestinationID: strings.TrimSpace(r.DestinationID),
		Amount:        strings.TrimSpace(r.Amount),
		Date:          date,
		Description:   sanitizeInput(r.Description),
		Notes:         sanitizeInput(r.Notes),
	}, nil
}

type updateTransactionRequest struct {
	Amount *string `json:"amount"`
	Date   *string `json:"date"`
	Notes  *string `json:"notes"`
}

func (r updateTransactionRequest) toCore() (core.TransactionUpdate, error) {
	var upd core.TransactionUpdate
	if r.Amount != nil {
		a := strings.TrimSpace(*r.Amount)
		upd.Amount = &a
	}
	if r.Date != nil {
		d, err := core.ParseDate(*r.Date)
		if err != nil {
			return upd, err
		}
		upd.Date = &d
	}
	if r.Notes != nil {
		n := sanitizeInput(*r.Notes)
		upd.Notes = &n
	}
	return upd, nil
}

type createBillRequest struct {
	Title      string `json:"title"`
	Amount     string `json:"amount"`
	PayDay     int    `json:"pay_day"`
	CategoryID string `json:"category_id"`
	Scope      string `json:"scope"`
}

func (r createBillRequest) toCore() (core.NewBill, error) {
	scope, err := core.ParseScope(r.Scope)
	if err != nil {
		return core.NewBill{}, err
	}
	return core.NewBill{
		Title:      sanitizeInput(r.Title),
		Amount:     strings.TrimSpace(r.Amount),
		PayDay:     r.PayDay,
		CategoryID: strings.TrimSpace(r.CategoryID),
		Scope:      scope,
	}, nil
}

// parseOptionalDate leaves a blank date zero; the engine rejects it.
func parseOptionalDate(s string) (core.Date, error) {
	if strings.TrimSpace(s) == "" {
		return core.Date{}, nil
	}
	return core.ParseDate(s)
}

// queryScope reads the mandatory scope query parameter.
func queryScope(c *gin.Context) (core.Scope, error) {
	return core.ParseScope(c.Query("scope"))
}

// queryKind reads the optional account kind filter.
func queryKind(c *gin.Context) (core.AccountKind, error) {
	v := strings.TrimSpace(c.Query("kind"))
	if v == "" {
		return "", nil
	}
	return core.ParseAccountKind(v)
}

// queryLimit reads limit; zero lets the engine apply its default.
func queryLimit(c *gin.Context) (int, error) {
	v := strings.TrimSpace(c.Query("limit"))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, core.NewValidationError("limit", "expected a non-negative integer")
	}
	return n, nil
}

// queryYearMonth reads year and month, defaulting to the month of now.
func queryYearMonth(c *gin.Context, now time.Time) (int, time.Month, error) {
	year, month := now.Year(), now.Month()
	if v := strings.TrimSpace(c.Query("year")); v != "" {
		y, err := strconv.Atoi(v)
		if err != nil {
			return 0, 0, core.NewValidationError("year", "expected a number")
		}
		year = y
	}
	if v := strings.TrimSpace(c.Query("month")); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil {
			return 0, 0, core.NewValidationError("month", "expected a number")
		}
		month = time.Month(m)
	}
	return year, month, nil
}
