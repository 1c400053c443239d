// Package report derives due/collected figures from already-rolled-over
// student snapshots and the payment log. Everything here is pure; nothing
// mutates the ledger.
package report

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"classtracker/internal/billing"
)

// Range is a closed [Start, End] interval over payment timestamps. A zero
// Start or End leaves that side unbounded, so the zero Range means all time.
type Range struct {
	Start time.Time
	End   time.Time
}

// AllTime matches every payment.
func AllTime() Range { return Range{} }

// CurrentMonth covers the calendar month containing now.
func CurrentMonth(now time.Time) Range {
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	return Range{Start: start, End: start.AddDate(0, 1, 0).Add(-time.Nanosecond)}
}

// PreviousMonth covers the calendar month before the one containing now.
func PreviousMonth(now time.Time) Range {
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).AddDate(0, -1, 0)
	return Range{Start: start, End: start.AddDate(0, 1, 0).Add(-time.Nanosecond)}
}

// Contains reports whether t falls inside the range, inclusive both ends.
func (r Range) Contains(t time.Time) bool {
	if !r.Start.IsZero() && t.Before(r.Start) {
		return false
	}
	if !r.End.IsZero() && t.After(r.End) {
		return false
	}
	return true
}

// DueEntry pairs a student with their derived due amount.
type DueEntry struct {
	Student *billing.Student
	Due     decimal.Decimal
}

// TotalDue sums the derived due amount over all students.
func TotalDue(students []*billing.Student) decimal.Decimal {
	total := decimal.Zero
	for _, st := range students {
		total = total.Add(st.Due())
	}
	return total
}

// StudentsWithDue returns the students owing anything, largest debt first.
func StudentsWithDue(students []*billing.Student) []DueEntry {
	var entries []DueEntry
	for _, st := range students {
		if due := st.Due(); due.IsPositive() {
			entries = append(entries, DueEntry{Student: st, Due: due})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Due.GreaterThan(entries[j].Due)
	})
	return entries
}

// FilterPayments returns the payments inside r, newest first.
func FilterPayments(payments []*billing.PaymentRecord, r Range) []*billing.PaymentRecord {
	var filtered []*billing.PaymentRecord
	for _, p := range payments {
		if r.Contains(p.PaidAt) {
			filtered = append(filtered, p)
		}
	}
	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].PaidAt.After(filtered[j].PaidAt)
	})
	return filtered
}

// CollectedInRange sums payment amounts inside r.
func CollectedInRange(payments []*billing.PaymentRecord, r Range) decimal.Decimal {
	total := decimal.Zero
	for _, p := range payments {
		if r.Contains(p.PaidAt) {
			total = total.Add(p.Amount)
		}
	}
	return total
}

// LifetimeCollected sums the denormalized per-student running totals. It
// must agree with summing the payment log; the reconciliation worker
// watches for drift between the two.
func LifetimeCollected(students []*billing.Student) decimal.Decimal {
	total := decimal.Zero
	for _, st := range students {
		total = total.Add(st.TotalCollected)
	}
	return total
}
