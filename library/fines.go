package library

import (
	"math"
	"time"
)

// DefaultLoanDays is the loan period used when none is configured.
const DefaultLoanDays = 14

// FinePolicy prices overdue returns. PerDay is in minor currency units.
type FinePolicy struct {
	PerDay    int64
	GraceDays int
}

// DefaultFinePolicy charges 10 units per day with no grace period.
var DefaultFinePolicy = FinePolicy{PerDay: 10}

// Assess returns the chargeable overdue days and the fine for a loan due at
// due and settled at now.
func (p FinePolicy) Assess(due, now time.Time) (days int, amount int64) {
	days = OverdueDays(due, now, p.GraceDays)
	return days, ComputeFine(due, now, p.PerDay, p.GraceDays)
}

// OverdueDays is the number of whole days past due, less the grace period,
// floored at zero.
func OverdueDays(due, now time.Time, graceDays int) int {
	if graceDays < 0 {
		graceDays = 0
	}
	late := int(math.Floor(now.Sub(due).Hours() / 24))
	if days := late - graceDays; days > 0 {
		return days
	}
	return 0
}

// ComputeFine is overdue days times finePerDay, or zero when the loan is not
// past its grace period.
func ComputeFine(due, now time.Time, finePerDay int64, graceDays int) int64 {
	days := OverdueDays(due, now, graceDays)
	if days <= 0 || finePerDay <= 0 {
		return 0
	}
	return int64(days) * finePerDay
}

// IsOverdue reports whether a loan due at due is late at now.
func IsOverdue(due, now time.Time) bool { return now.After(due) }
