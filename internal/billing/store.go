package billing

import (
	"context"
	"time"
)

// Store persists students and the append-only payment log. Implementations
// must make ApplyRollover and ApplyPayment conditional on the student's
// week_start so that two concurrent readers of a stale record can never
// both fold the same cycle into the outstanding balance.
type Store interface {
	CreateStudent(ctx context.Context, st *Student) error
	GetStudent(ctx context.Context, id string) (*Student, error)
	ListStudents(ctx context.Context) ([]*Student, error)
	UpdateProfile(ctx context.Context, st *Student) error
	SetAttendance(ctx context.Context, id string, day time.Weekday, attended bool) error
	DeleteStudent(ctx context.Context, id string) error

	// ApplyRollover writes st's rolled-over financial state, guarded by the
	// anchor the cycle had before the rollover. Returns false without
	// writing when another writer already moved the anchor.
	ApplyRollover(ctx context.Context, st *Student, prevWeekStart time.Time) (bool, error)

	// ApplyPayment writes st's post-payment balances and appends rec in a
	// single transaction, guarded by st.WeekStart. Returns false without
	// writing when the anchor moved underneath the caller.
	ApplyPayment(ctx context.Context, st *Student, rec *PaymentRecord) (bool, error)

	ListPayments(ctx context.Context) ([]*PaymentRecord, error)
	ListPaymentsForStudent(ctx context.Context, studentID string) ([]*PaymentRecord, error)
}
