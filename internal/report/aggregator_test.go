package report_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"classtracker/internal/billing"
	"classtracker/internal/report"
)

func d(n int64) decimal.Decimal { return decimal.NewFromInt(n) }

func payment(id, studentID string, amount int64, at time.Time) *billing.PaymentRecord {
	return &billing.PaymentRecord{ID: id, StudentID: studentID, Amount: d(amount), PaidAt: at}
}

func TestCollectedInRangePresets(t *testing.T) {
	payments := []*billing.PaymentRecord{
		payment("p1", "s1", 50, time.Date(2024, time.January, 5, 10, 0, 0, 0, time.UTC)),
		payment("p2", "s2", 70, time.Date(2024, time.February, 10, 16, 30, 0, 0, time.UTC)),
	}

	january := time.Date(2024, time.January, 20, 12, 0, 0, 0, time.UTC)
	february := time.Date(2024, time.February, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		rng  report.Range
		want int64
	}{
		{name: "current month january", rng: report.CurrentMonth(january), want: 50},
		{name: "current month february", rng: report.CurrentMonth(february), want: 70},
		{name: "previous month seen from february", rng: report.PreviousMonth(february), want: 50},
		{name: "all time", rng: report.AllTime(), want: 120},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := report.CollectedInRange(payments, tt.rng)
			require.True(t, got.Equal(d(tt.want)), "got %s, want %d", got, tt.want)
		})
	}
}

func TestCollectedInRangeInclusiveBounds(t *testing.T) {
	at := time.Date(2024, time.January, 5, 0, 0, 0, 0, time.UTC)
	payments := []*billing.PaymentRecord{payment("p1", "s1", 50, at)}

	// Start and end exactly on the payment instant both count.
	rng := report.Range{Start: at, End: at}
	require.True(t, report.CollectedInRange(payments, rng).Equal(d(50)))

	rng = report.Range{Start: at.Add(time.Nanosecond)}
	require.True(t, report.CollectedInRange(payments, rng).IsZero())

	rng = report.Range{End: at.Add(-time.Nanosecond)}
	require.True(t, report.CollectedInRange(payments, rng).IsZero())
}

func TestFilterPaymentsNewestFirst(t *testing.T) {
	early := payment("p1", "s1", 10, time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC))
	late := payment("p2", "s1", 20, time.Date(2024, time.March, 2, 0, 0, 0, 0, time.UTC))

	filtered := report.FilterPayments([]*billing.PaymentRecord{early, late}, report.AllTime())
	require.Len(t, filtered, 2)
	require.Equal(t, "p2", filtered[0].ID)
}

func newStudent(id, name string, rate int64, attended []time.Weekday, paid, outstanding, collected int64) *billing.Student {
	st := &billing.Student{
		ID:                 id,
		Name:               name,
		HourlyRate:         d(rate),
		PaidAmount:         d(paid),
		OutstandingBalance: d(outstanding),
		TotalCollected:     d(collected),
	}
	for _, day := range attended {
		st.Attendance[day] = true
	}
	return st
}

func TestStudentsWithDueSortedDescending(t *testing.T) {
	students := []*billing.Student{
		// 2×150 attended, nothing paid → due 300
		newStudent("s1", "Alice", 150, []time.Weekday{time.Monday, time.Wednesday}, 0, 0, 0),
		// settled
		newStudent("s2", "Bob", 100, nil, 0, 0, 400),
		// 100 attended + 50 carried → due 150
		newStudent("s3", "Carol", 100, []time.Weekday{time.Tuesday}, 0, 50, 0),
		// big credit swallows the cycle → due 0
		newStudent("s4", "Dave", 100, []time.Weekday{time.Friday}, 0, -1000, 0),
	}

	entries := report.StudentsWithDue(students)
	require.Len(t, entries, 2)
	require.Equal(t, "s1", entries[0].Student.ID)
	require.True(t, entries[0].Due.Equal(d(300)))
	require.Equal(t, "s3", entries[1].Student.ID)
	require.True(t, entries[1].Due.Equal(d(150)))

	require.True(t, report.TotalDue(students).Equal(d(450)))
}

func TestLifetimeCollected(t *testing.T) {
	students := []*billing.Student{
		newStudent("s1", "Alice", 150, nil, 0, 0, 1200),
		newStudent("s2", "Bob", 100, nil, 0, 0, 300),
	}
	require.True(t, report.LifetimeCollected(students).Equal(d(1500)))
}
