package billing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"classtracker/internal/metrics"
)

// rolloverAttempts bounds the compare-and-swap retry loop when concurrent
// readers race to roll the same student over.
const rolloverAttempts = 3

// Service is the billing cycle engine. Every read passes through a
// staleness check: when the stored week anchor is older than the current
// one, the open cycle's net unpaid cost is folded into the outstanding
// balance before the record is returned. There is no background sweep;
// rollover is a pure function of wall-clock time versus the stored anchor.
type Service struct {
	store Store
	log   *zap.Logger
	now   func() time.Time
}

// NewService creates the engine on top of a Store.
func NewService(store Store, log *zap.Logger) *Service {
	return &Service{store: store, log: log, now: time.Now}
}

// GetStudent returns the student with a current cycle anchor, performing a
// rollover first if the stored one is stale. A rollover failure fails the
// read; returning financially stale data would be worse.
func (s *Service) GetStudent(ctx context.Context, id string) (*Student, error) {
	st, err := s.store.GetStudent(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.ensureCurrent(ctx, st)
}

// ListStudents returns all students, each rollover-checked.
func (s *Service) ListStudents(ctx context.Context) ([]*Student, error) {
	students, err := s.store.ListStudents(ctx)
	if err != nil {
		return nil, err
	}
	for i, st := range students {
		fresh, err := s.ensureCurrent(ctx, st)
		if err != nil {
			return nil, err
		}
		students[i] = fresh
	}
	return students, nil
}

// CreateStudent validates the payload and creates a student with zeroed
// financials and the current week as the open cycle anchor.
func (s *Service) CreateStudent(ctx context.Context, dto CreateStudentDTO) (*Student, error) {
	name := strings.TrimSpace(dto.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if dto.HourlyRate.IsNegative() {
		return nil, fmt.Errorf("%w: hourly rate must not be negative", ErrInvalidInput)
	}
	now := s.now()
	st := &Student{
		ID:                 uuid.NewString(),
		Name:               name,
		ImageURL:           dto.ImageURL,
		HourlyRate:         dto.HourlyRate,
		ScheduledDays:      dto.ScheduledDays,
		StartTime:          dto.StartTime,
		EndTime:            dto.EndTime,
		PaidAmount:         decimal.Zero,
		OutstandingBalance: decimal.Zero,
		TotalCollected:     decimal.Zero,
		WeekStart:          WeekAnchor(now),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.store.CreateStudent(ctx, st); err != nil {
		return nil, err
	}
	s.log.Info("student created", zap.String("student_id", st.ID), zap.String("name", st.Name))
	return st, nil
}

// UpdateProfile edits non-financial fields only. Balances, attendance and
// the cycle anchor are untouched even if the schedule shrinks; flags on
// removed days keep counting toward cycle cost.
func (s *Service) UpdateProfile(ctx context.Context, id string, dto UpdateProfileDTO) (*Student, error) {
	name := strings.TrimSpace(dto.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if dto.HourlyRate.IsNegative() {
		return nil, fmt.Errorf("%w: hourly rate must not be negative", ErrInvalidInput)
	}
	st, err := s.GetStudent(ctx, id)
	if err != nil {
		return nil, err
	}
	st.Name = name
	st.HourlyRate = dto.HourlyRate
	st.ScheduledDays = dto.ScheduledDays
	st.StartTime = dto.StartTime
	st.EndTime = dto.EndTime
	st.ImageURL = dto.ImageURL
	st.UpdatedAt = s.now()
	if err := s.store.UpdateProfile(ctx, st); err != nil {
		return nil, err
	}
	return st, nil
}

// DeleteStudent removes the student. Payment records stay in the log; the
// reporting side labels orphans as unknown.
func (s *Service) DeleteStudent(ctx context.Context, id string) error {
	if err := s.store.DeleteStudent(ctx, id); err != nil {
		return err
	}
	s.log.Info("student deleted", zap.String("student_id", id))
	return nil
}

// SetAttendance sets one attendance flag on the current cycle. Cost is
// never stored; due amounts are always derived at read time.
func (s *Service) SetAttendance(ctx context.Context, id string, day time.Weekday, attended bool) error {
	st, err := s.store.GetStudent(ctx, id)
	if err != nil {
		return err
	}
	if _, err := s.ensureCurrent(ctx, st); err != nil {
		return err
	}
	return s.store.SetAttendance(ctx, id, day, attended)
}

// ApplyPayment applies a payment outstanding-balance-first: carried debt is
// cleared before anything counts toward the open cycle. A negative balance
// (credit) is never consumed here; it only matters at the next rollover.
// The full amount is always added to TotalCollected and logged as a
// PaymentRecord.
func (s *Service) ApplyPayment(ctx context.Context, id string, amount decimal.Decimal) (*PaymentRecord, error) {
	if amount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	for attempt := 0; attempt < rolloverAttempts; attempt++ {
		st, err := s.GetStudent(ctx, id)
		if err != nil {
			return nil, err
		}

		deductible := st.OutstandingBalance
		if deductible.IsNegative() {
			deductible = decimal.Zero
		}
		deduct := decimal.Min(deductible, amount)

		st.OutstandingBalance = st.OutstandingBalance.Sub(deduct)
		st.PaidAmount = st.PaidAmount.Add(amount.Sub(deduct))
		st.TotalCollected = st.TotalCollected.Add(amount)
		st.UpdatedAt = s.now()

		rec := &PaymentRecord{
			ID:        uuid.NewString(),
			StudentID: id,
			Amount:    amount,
			PaidAt:    s.now(),
		}
		applied, err := s.store.ApplyPayment(ctx, st, rec)
		if err != nil {
			return nil, err
		}
		if !applied {
			// Anchor moved between the read and the write; redo the
			// rollover-checked read and recompute.
			continue
		}
		metrics.PaymentsTotal.Inc()
		amountF, _ := amount.Float64()
		metrics.PaymentAmountTotal.Add(amountF)
		s.log.Info("payment applied",
			zap.String("student_id", id),
			zap.String("amount", amount.String()),
			zap.String("deducted_from_outstanding", deduct.String()))
		return rec, nil
	}
	return nil, fmt.Errorf("apply payment: too much contention for student %s", id)
}

// ListPayments returns the full payment log, newest first.
func (s *Service) ListPayments(ctx context.Context) ([]*PaymentRecord, error) {
	return s.store.ListPayments(ctx)
}

// ListPaymentsForStudent returns one student's payments, newest first.
func (s *Service) ListPaymentsForStudent(ctx context.Context, id string) ([]*PaymentRecord, error) {
	return s.store.ListPaymentsForStudent(ctx, id)
}

// ensureCurrent rolls st over if its anchor is stale, retrying the
// conditional write when a concurrent reader got there first. Multi-week
// gaps consolidate into a single step: only the open cycle's flags are
// billed, so weeks never viewed contribute zero cost.
func (s *Service) ensureCurrent(ctx context.Context, st *Student) (*Student, error) {
	for attempt := 0; attempt < rolloverAttempts; attempt++ {
		anchor := WeekAnchor(s.now())
		if !st.WeekStart.Before(anchor) {
			return st, nil
		}

		prev := st.WeekStart
		netChange := st.CycleCost().Sub(st.PaidAmount)
		st.OutstandingBalance = st.OutstandingBalance.Add(netChange)
		st.PaidAmount = decimal.Zero
		st.Attendance = [7]bool{}
		st.WeekStart = anchor
		st.UpdatedAt = s.now()

		applied, err := s.store.ApplyRollover(ctx, st, prev)
		if err != nil {
			return nil, fmt.Errorf("rollover student %s: %w", st.ID, err)
		}
		if applied {
			metrics.RolloversTotal.Inc()
			s.log.Info("cycle rolled over",
				zap.String("student_id", st.ID),
				zap.Time("from", prev),
				zap.Time("to", anchor),
				zap.String("net_change", netChange.String()))
			return st, nil
		}

		// Lost the race: someone else already rolled this student over.
		st, err = s.store.GetStudent(ctx, st.ID)
		if err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("rollover: too much contention for student %s", st.ID)
}
