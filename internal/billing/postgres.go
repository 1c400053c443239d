package billing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// PostgresStore persists students and payments in Postgres.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a store on an existing connection.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const studentColumns = `id, name, image_url, hourly_rate, scheduled_days, start_time, end_time,
	sunday_attended, monday_attended, tuesday_attended, wednesday_attended,
	thursday_attended, friday_attended, saturday_attended,
	paid_amount, outstanding_balance, total_collected, week_start, created_at, updated_at`

// attendanceColumn maps a weekday to its flag column. Indexed by
// time.Weekday, never by caller-supplied strings.
var attendanceColumn = [7]string{
	"sunday_attended", "monday_attended", "tuesday_attended",
	"wednesday_attended", "thursday_attended", "friday_attended", "saturday_attended",
}

func (r *PostgresStore) CreateStudent(ctx context.Context, st *Student) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO students (id, name, image_url, hourly_rate, scheduled_days, start_time, end_time,
			paid_amount, outstanding_balance, total_collected, week_start, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, st.ID, st.Name, st.ImageURL, st.HourlyRate, joinDays(st.ScheduledDays), st.StartTime, st.EndTime,
		st.PaidAmount, st.OutstandingBalance, st.TotalCollected, st.WeekStart, st.CreatedAt, st.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	return nil
}

func (r *PostgresStore) GetStudent(ctx context.Context, id string) (*Student, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+studentColumns+` FROM students WHERE id = $1`, id)
	st, err := scanStudent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get student: %w", err)
	}
	return st, nil
}

func (r *PostgresStore) ListStudents(ctx context.Context) ([]*Student, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+studentColumns+` FROM students ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list students: %w", err)
	}
	defer rows.Close()

	var students []*Student
	for rows.Next() {
		st, err := scanStudent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan student: %w", err)
		}
		students = append(students, st)
	}
	return students, rows.Err()
}

func (r *PostgresStore) UpdateProfile(ctx context.Context, st *Student) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE students
		SET name = $2, image_url = $3, hourly_rate = $4, scheduled_days = $5,
			start_time = $6, end_time = $7, updated_at = $8
		WHERE id = $1
	`, st.ID, st.Name, st.ImageURL, st.HourlyRate, joinDays(st.ScheduledDays),
		st.StartTime, st.EndTime, st.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return checkFound(res)
}

func (r *PostgresStore) SetAttendance(ctx context.Context, id string, day time.Weekday, attended bool) error {
	col := attendanceColumn[day]
	res, err := r.db.ExecContext(ctx,
		`UPDATE students SET `+col+` = $2, updated_at = NOW() WHERE id = $1`, id, attended)
	if err != nil {
		return fmt.Errorf("set attendance: %w", err)
	}
	return checkFound(res)
}

func (r *PostgresStore) DeleteStudent(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM students WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete student: %w", err)
	}
	return checkFound(res)
}

func (r *PostgresStore) ApplyRollover(ctx context.Context, st *Student, prevWeekStart time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE students
		SET outstanding_balance = $2, paid_amount = 0,
			sunday_attended = FALSE, monday_attended = FALSE, tuesday_attended = FALSE,
			wednesday_attended = FALSE, thursday_attended = FALSE, friday_attended = FALSE,
			saturday_attended = FALSE,
			week_start = $3, updated_at = $4
		WHERE id = $1 AND week_start = $5
	`, st.ID, st.OutstandingBalance, st.WeekStart, st.UpdatedAt, prevWeekStart)
	if err != nil {
		return false, fmt.Errorf("apply rollover: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *PostgresStore) ApplyPayment(ctx context.Context, st *Student, rec *PaymentRecord) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("apply payment: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE students
		SET outstanding_balance = $2, paid_amount = $3, total_collected = $4, updated_at = $5
		WHERE id = $1 AND week_start = $6
	`, st.ID, st.OutstandingBalance, st.PaidAmount, st.TotalCollected, st.UpdatedAt, st.WeekStart)
	if err != nil {
		return false, fmt.Errorf("apply payment: update: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		return false, nil
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO payments (id, student_id, amount, paid_at)
		VALUES ($1,$2,$3,$4)
	`, rec.ID, rec.StudentID, rec.Amount, rec.PaidAt)
	if err != nil {
		return false, fmt.Errorf("apply payment: insert record: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("apply payment: commit: %w", err)
	}
	return true, nil
}

func (r *PostgresStore) ListPayments(ctx context.Context) ([]*PaymentRecord, error) {
	return r.queryPayments(ctx, `SELECT id, student_id, amount, paid_at FROM payments ORDER BY paid_at DESC`)
}

func (r *PostgresStore) ListPaymentsForStudent(ctx context.Context, studentID string) ([]*PaymentRecord, error) {
	return r.queryPayments(ctx,
		`SELECT id, student_id, amount, paid_at FROM payments WHERE student_id = $1 ORDER BY paid_at DESC`,
		studentID)
}

func (r *PostgresStore) queryPayments(ctx context.Context, query string, args ...any) ([]*PaymentRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()

	var payments []*PaymentRecord
	for rows.Next() {
		var p PaymentRecord
		if err := rows.Scan(&p.ID, &p.StudentID, &p.Amount, &p.PaidAt); err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		payments = append(payments, &p)
	}
	return payments, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStudent(row rowScanner) (*Student, error) {
	var st Student
	var days string
	err := row.Scan(
		&st.ID, &st.Name, &st.ImageURL, &st.HourlyRate, &days, &st.StartTime, &st.EndTime,
		&st.Attendance[time.Sunday], &st.Attendance[time.Monday], &st.Attendance[time.Tuesday],
		&st.Attendance[time.Wednesday], &st.Attendance[time.Thursday], &st.Attendance[time.Friday],
		&st.Attendance[time.Saturday],
		&st.PaidAmount, &st.OutstandingBalance, &st.TotalCollected,
		&st.WeekStart, &st.CreatedAt, &st.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	st.ScheduledDays, err = splitDays(days)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func checkFound(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// scheduled_days is stored as comma-joined weekday names ("Monday,Wednesday").
func joinDays(days []time.Weekday) string {
	return strings.Join(DayNames(days), ",")
}

func splitDays(s string) ([]time.Weekday, error) {
	if s == "" {
		return nil, nil
	}
	return ParseDays(strings.Split(s, ","))
}
