package services

import (
	"time"

	"github.com/Sonrial/family-budget/internal/core"
)

// DuenessChecker decides where a bill stands relative to a reference day.
type DuenessChecker interface {
	Status(due, today core.Date) core.DueStatus
}

// MonthlyChecker classifies bills paid once a month.
type MonthlyChecker struct{}

func (MonthlyChecker) Status(due, today core.Date) core.DueStatus {
	switch {
	case due.Equal(today.Time):
		return core.DueToday
	case due.Before(today.Time):
		return core.DuePast
	default:
		return core.DueUpcoming
	}
}

// dueBills lays out each bill's pay date in the given month, in pay-day
// order, classified against today.
func dueBills(bills []core.RecurringBill, year int, month time.Month, today core.Date, checker DuenessChecker) []core.DueBill {
	out := make([]core.DueBill, 0, len(bills))
	for _, b := range bills {
		due := b.DueDate(year, month)
		out = append(out, core.DueBill{Bill: b, DueDate: due, Status: checker.Status(due, today)})
	}
	return out
}
