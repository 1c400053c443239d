package billing

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreRolloverGuard(t *testing.T) {
	// Two readers race to roll the same stale student over; the guard on
	// week_start must let exactly one write through.
	ctx := context.Background()
	store := NewMemoryStore()

	week1 := time.Date(2024, time.January, 6, 0, 0, 0, 0, time.UTC)
	week2 := week1.AddDate(0, 0, 7)

	st := &Student{
		ID:                 "s1",
		Name:               "Alice",
		HourlyRate:         decimal.NewFromInt(150),
		OutstandingBalance: decimal.Zero,
		PaidAmount:         decimal.Zero,
		TotalCollected:     decimal.Zero,
		WeekStart:          week1,
	}
	require.NoError(t, store.CreateStudent(ctx, st))

	rolled := st.clone()
	rolled.OutstandingBalance = decimal.NewFromInt(150)
	rolled.WeekStart = week2

	applied, err := store.ApplyRollover(ctx, rolled, week1)
	require.NoError(t, err)
	require.True(t, applied)

	// The loser presents the stale anchor and must be refused.
	applied, err = store.ApplyRollover(ctx, rolled, week1)
	require.NoError(t, err)
	require.False(t, applied)

	cur, err := store.GetStudent(ctx, "s1")
	require.NoError(t, err)
	require.True(t, cur.OutstandingBalance.Equal(decimal.NewFromInt(150)))
	require.True(t, cur.WeekStart.Equal(week2))
}

func TestMemoryStorePaymentGuard(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	week1 := time.Date(2024, time.January, 6, 0, 0, 0, 0, time.UTC)
	st := &Student{ID: "s1", Name: "Alice", WeekStart: week1}
	require.NoError(t, store.CreateStudent(ctx, st))

	stale := st.clone()
	stale.WeekStart = week1.AddDate(0, 0, -7)
	rec := &PaymentRecord{ID: "p1", StudentID: "s1", Amount: decimal.NewFromInt(50), PaidAt: time.Now()}

	applied, err := store.ApplyPayment(ctx, stale, rec)
	require.NoError(t, err)
	require.False(t, applied, "payment against a moved anchor must not apply")

	payments, err := store.ListPayments(ctx)
	require.NoError(t, err)
	require.Empty(t, payments, "refused payment must not reach the log")
}

func TestMemoryStorePaymentsNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	week := time.Date(2024, time.January, 6, 0, 0, 0, 0, time.UTC)
	st := &Student{ID: "s1", Name: "Alice", WeekStart: week}
	require.NoError(t, store.CreateStudent(ctx, st))

	base := time.Date(2024, time.January, 8, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"p1", "p2", "p3"} {
		rec := &PaymentRecord{ID: id, StudentID: "s1", Amount: decimal.NewFromInt(10), PaidAt: base.Add(time.Duration(i) * time.Hour)}
		applied, err := store.ApplyPayment(ctx, st, rec)
		require.NoError(t, err)
		require.True(t, applied)
	}

	payments, err := store.ListPaymentsForStudent(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, payments, 3)
	require.Equal(t, "p3", payments[0].ID)
	require.Equal(t, "p1", payments[2].ID)
}
