package billing

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Student is the billing subject. Financial fields always describe exactly
// one open weekly cycle, anchored at WeekStart; everything older has been
// folded into OutstandingBalance by a rollover.
type Student struct {
	ID            string
	Name          string
	ImageURL      string
	HourlyRate    decimal.Decimal
	ScheduledDays []time.Weekday
	StartTime     string // "HH:MM", display only
	EndTime       string // "HH:MM", display only

	// Attendance for the current open cycle, indexed by time.Weekday
	// (Sunday = 0). Flags outside ScheduledDays still count toward cost;
	// that matches the behavior billing has always had.
	Attendance [7]bool

	PaidAmount         decimal.Decimal // paid toward the open cycle, reset on rollover
	OutstandingBalance decimal.Decimal // carried debt from closed cycles, negative = credit
	TotalCollected     decimal.Decimal // lifetime payments, never decreases
	WeekStart          time.Time       // anchor of the open cycle

	CreatedAt time.Time
	UpdatedAt time.Time
}

// PaymentRecord is an immutable payment event.
type PaymentRecord struct {
	ID        string
	StudentID string
	Amount    decimal.Decimal
	PaidAt    time.Time
}

// CreateStudentDTO carries the fields a caller may set on creation.
type CreateStudentDTO struct {
	Name          string
	HourlyRate    decimal.Decimal
	ScheduledDays []time.Weekday
	StartTime     string
	EndTime       string
	ImageURL      string
}

// UpdateProfileDTO carries the non-financial fields a caller may edit.
type UpdateProfileDTO struct {
	Name          string
	HourlyRate    decimal.Decimal
	ScheduledDays []time.Weekday
	StartTime     string
	EndTime       string
	ImageURL      string
}

// CycleCost is the cost accrued by the open cycle: hourly rate times the
// number of attendance flags set, over all seven days.
func (s *Student) CycleCost() decimal.Decimal {
	attended := 0
	for _, ok := range s.Attendance {
		if ok {
			attended++
		}
	}
	return s.HourlyRate.Mul(decimal.NewFromInt(int64(attended)))
}

// Due is the derived amount the student owes right now: the open cycle's
// shortfall plus outstanding balance, floored at zero. A credit can offset
// cycle cost but the visible due never goes negative.
func (s *Student) Due() decimal.Decimal {
	due := s.CycleCost().Sub(s.PaidAmount).Add(s.OutstandingBalance)
	if due.IsNegative() {
		return decimal.Zero
	}
	return due
}

// IsScheduled reports whether day is part of the student's weekly schedule.
func (s *Student) IsScheduled(day time.Weekday) bool {
	for _, d := range s.ScheduledDays {
		if d == day {
			return true
		}
	}
	return false
}

func (s *Student) clone() *Student {
	cp := *s
	cp.ScheduledDays = append([]time.Weekday(nil), s.ScheduledDays...)
	return &cp
}

// ParseDay maps a full weekday name ("Monday") to its time.Weekday.
func ParseDay(name string) (time.Weekday, error) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(name, d.String()) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown weekday %q", ErrInvalidInput, name)
}

// ParseDays maps a list of weekday names, rejecting duplicates.
func ParseDays(names []string) ([]time.Weekday, error) {
	var days []time.Weekday
	seen := [7]bool{}
	for _, name := range names {
		d, err := ParseDay(name)
		if err != nil {
			return nil, err
		}
		if seen[d] {
			return nil, fmt.Errorf("%w: duplicate weekday %q", ErrInvalidInput, name)
		}
		seen[d] = true
		days = append(days, d)
	}
	return days, nil
}

// DayNames renders weekdays back to their full names.
func DayNames(days []time.Weekday) []string {
	names := make([]string, len(days))
	for i, d := range days {
		names[i] = d.String()
	}
	return names
}
