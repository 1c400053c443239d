package billing

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for tests and STORE_BACKEND=memory
// dev runs. It is injected like any other backend; nothing in the engine
// reaches for process-global state.
type MemoryStore struct {
	mu       sync.Mutex
	students map[string]*Student
	payments []*PaymentRecord
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{students: make(map[string]*Student)}
}

func (m *MemoryStore) CreateStudent(ctx context.Context, st *Student) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.students[st.ID] = st.clone()
	return nil
}

func (m *MemoryStore) GetStudent(ctx context.Context, id string) (*Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.students[id]
	if !ok {
		return nil, ErrNotFound
	}
	return st.clone(), nil
}

func (m *MemoryStore) ListStudents(ctx context.Context) ([]*Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Student, 0, len(m.students))
	for _, st := range m.students {
		out = append(out, st.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryStore) UpdateProfile(ctx context.Context, st *Student) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.students[st.ID]
	if !ok {
		return ErrNotFound
	}
	cur.Name = st.Name
	cur.HourlyRate = st.HourlyRate
	cur.ScheduledDays = append([]time.Weekday(nil), st.ScheduledDays...)
	cur.StartTime = st.StartTime
	cur.EndTime = st.EndTime
	cur.ImageURL = st.ImageURL
	cur.UpdatedAt = st.UpdatedAt
	return nil
}

func (m *MemoryStore) SetAttendance(ctx context.Context, id string, day time.Weekday, attended bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.students[id]
	if !ok {
		return ErrNotFound
	}
	st.Attendance[day] = attended
	return nil
}

func (m *MemoryStore) DeleteStudent(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.students[id]; !ok {
		return ErrNotFound
	}
	delete(m.students, id)
	return nil
}

func (m *MemoryStore) ApplyRollover(ctx context.Context, st *Student, prevWeekStart time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.students[st.ID]
	if !ok {
		return false, ErrNotFound
	}
	if !cur.WeekStart.Equal(prevWeekStart) {
		return false, nil
	}
	cur.OutstandingBalance = st.OutstandingBalance
	cur.PaidAmount = st.PaidAmount
	cur.Attendance = st.Attendance
	cur.WeekStart = st.WeekStart
	cur.UpdatedAt = st.UpdatedAt
	return true, nil
}

func (m *MemoryStore) ApplyPayment(ctx context.Context, st *Student, rec *PaymentRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.students[st.ID]
	if !ok {
		return false, ErrNotFound
	}
	if !cur.WeekStart.Equal(st.WeekStart) {
		return false, nil
	}
	cur.OutstandingBalance = st.OutstandingBalance
	cur.PaidAmount = st.PaidAmount
	cur.TotalCollected = st.TotalCollected
	cur.UpdatedAt = st.UpdatedAt
	cp := *rec
	m.payments = append(m.payments, &cp)
	return true, nil
}

func (m *MemoryStore) ListPayments(ctx context.Context) ([]*PaymentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return sortedPayments(m.payments), nil
}

func (m *MemoryStore) ListPaymentsForStudent(ctx context.Context, studentID string) ([]*PaymentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var filtered []*PaymentRecord
	for _, p := range m.payments {
		if p.StudentID == studentID {
			filtered = append(filtered, p)
		}
	}
	return sortedPayments(filtered), nil
}

func sortedPayments(in []*PaymentRecord) []*PaymentRecord {
	out := make([]*PaymentRecord, len(in))
	for i, p := range in {
		cp := *p
		out[i] = &cp
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PaidAt.After(out[j].PaidAt) })
	return out
}
