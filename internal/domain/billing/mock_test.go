package billing

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/domain/patient"
	"github.com/hms/hms/internal/domain/scheduling"
	"github.com/hms/hms/internal/platform/apperr"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/db"
	"github.com/hms/hms/internal/platform/events"
)

// -- Mock Payment Repository --

type mockRepo struct {
	mu       sync.Mutex
	payments map[uuid.UUID]*Payment
	receipts map[string]uuid.UUID
	// collisions forces the next N creates to fail on ReceiptConstraint.
	collisions int
	creates    int
}

func newMockRepo() *mockRepo {
	return &mockRepo{payments: make(map[uuid.UUID]*Payment), receipts: make(map[string]uuid.UUID)}
}

func (m *mockRepo) Create(_ context.Context, p *Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates++
	if m.collisions > 0 {
		m.collisions--
		return db.UniqueViolation(ReceiptConstraint)
	}
	if _, dup := m.receipts[p.ReceiptNumber]; dup {
		return db.UniqueViolation(ReceiptConstraint)
	}
	p.ID = uuid.New()
	p.CreatedAt = time.Now().UTC()
	p.UpdatedAt = p.CreatedAt
	cp := *p
	m.payments[p.ID] = &cp
	m.receipts[p.ReceiptNumber] = p.ID
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[id]
	if !ok {
		return nil, apperr.NotFound("payment")
	}
	cp := *p
	return &cp, nil
}

func (m *mockRepo) GetByReceipt(ctx context.Context, receipt string) (*Payment, error) {
	m.mu.Lock()
	id, ok := m.receipts[receipt]
	m.mu.Unlock()
	if !ok {
		return nil, apperr.NotFound("payment")
	}
	return m.GetByID(ctx, id)
}

func (m *mockRepo) Transition(_ context.Context, p *Payment, from string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.payments[p.ID]
	if !ok || stored.Status != from {
		return false, nil
	}
	p.UpdatedAt = time.Now().UTC()
	cp := *p
	m.payments[p.ID] = &cp
	return true, nil
}

func (m *mockRepo) List(_ context.Context, f Filter) ([]*Payment, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Payment
	for _, p := range m.payments {
		switch {
		case f.PatientID != nil && p.PatientID != *f.PatientID,
			f.Status != "" && p.Status != f.Status,
			f.Method != "" && p.Method != f.Method,
			!f.CreatedFrom.IsZero() && p.CreatedAt.Before(f.CreatedFrom),
			!f.CreatedBefore.IsZero() && !p.CreatedAt.Before(f.CreatedBefore):
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	total := len(out)
	if f.Offset >= len(out) {
		return nil, total, nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, total, nil
}

func (m *mockRepo) Summary(_ context.Context, from, to time.Time, currency string) ([]SummaryRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	groups := map[[2]string]*SummaryRow{}
	for _, p := range m.payments {
		if p.Currency != currency || p.CreatedAt.Before(from) || !p.CreatedAt.Before(to) {
			continue
		}
		key := [2]string{p.Method, p.Status}
		if groups[key] == nil {
			groups[key] = &SummaryRow{Method: p.Method, Status: p.Status}
		}
		groups[key].Count++
		groups[key].Amount += p.Amount
	}
	var rows []SummaryRow
	for _, r := range groups {
		rows = append(rows, *r)
	}
	return rows, nil
}

// -- Fake lookups --

type fakePatients map[uuid.UUID]*patient.Patient

func (f fakePatients) Get(_ context.Context, id uuid.UUID) (*patient.Patient, error) {
	if p, ok := f[id]; ok {
		return p, nil
	}
	return nil, apperr.NotFound("patient")
}

type fakeAppointments map[uuid.UUID]*scheduling.Appointment

func (f fakeAppointments) GetAppointment(_ context.Context, id uuid.UUID) (*scheduling.Appointment, error) {
	if a, ok := f[id]; ok {
		return a, nil
	}
	return nil, apperr.NotFound("appointment")
}

// -- Fixtures --

type fixture struct {
	svc         *Service
	repo        *mockRepo
	events      *events.Recorder
	patient     *patient.Patient
	appointment *scheduling.Appointment
}

func newFixture() *fixture {
	f := &fixture{repo: newMockRepo(), events: &events.Recorder{}}
	f.patient = &patient.Patient{ID: uuid.New(), PatientCode: "PAT-20250301-ABCDEF", FirstName: "Ana", LastName: "Silva", IsActive: true}
	f.appointment = &scheduling.Appointment{ID: uuid.New(), PatientID: f.patient.ID, DoctorID: uuid.New(), Status: scheduling.StatusCompleted}

	f.svc = NewService(f.repo,
		fakePatients{f.patient.ID: f.patient},
		fakeAppointments{f.appointment.ID: f.appointment},
		"", time.UTC, events.NewEmitter(f.events, zerolog.Nop()), zerolog.Nop())
	return f
}

func (f *fixture) input(amount float64, method string) CreateInput {
	return CreateInput{PatientID: f.patient.ID.String(), Amount: &amount, Method: method}
}

func accountantCtx() context.Context {
	return auth.WithIdentity(context.Background(), uuid.NewString(), auth.RoleAccountant)
}

func ptr[T any](v T) *T { return &v }
