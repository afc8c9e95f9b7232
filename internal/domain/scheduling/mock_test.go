package scheduling

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/config"
	"github.com/hms/hms/internal/domain/patient"
	"github.com/hms/hms/internal/domain/staff"
	"github.com/hms/hms/internal/platform/apperr"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/db"
	"github.com/hms/hms/internal/platform/events"
)

// -- Mock Appointment Repository --

type mockRepo struct {
	mu    sync.Mutex
	txMu  sync.Mutex
	appts map[uuid.UUID]*Appointment
	// tokenRaces makes the next N creates lose a race: a competing booking
	// takes the token first and the insert fails on TokenConstraint.
	tokenRaces int
	creates    int
}

func newMockRepo() *mockRepo {
	return &mockRepo{appts: make(map[uuid.UUID]*Appointment)}
}

func (m *mockRepo) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	return fn(ctx)
}

func (m *mockRepo) Create(_ context.Context, a *Appointment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates++
	if m.tokenRaces > 0 {
		m.tokenRaces--
		winner := &Appointment{
			ID: uuid.New(), PatientID: uuid.New(), DoctorID: a.DoctorID,
			ScheduledAt: a.ScheduledAt.Add(time.Hour), AppointmentDate: a.AppointmentDate,
			Status: StatusScheduled, TokenNumber: a.TokenNumber,
		}
		m.appts[winner.ID] = winner
		return db.UniqueViolation(TokenConstraint)
	}
	for _, e := range m.appts {
		if e.DoctorID == a.DoctorID && e.AppointmentDate == a.AppointmentDate && e.TokenNumber == a.TokenNumber {
			return db.UniqueViolation(TokenConstraint)
		}
	}
	a.ID = uuid.New()
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	cp := *a
	m.appts[a.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appts[id]
	if !ok {
		return nil, apperr.NotFound("appointment")
	}
	cp := *a
	return &cp, nil
}

func (m *mockRepo) Update(_ context.Context, a *Appointment, from string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.appts[a.ID]
	if !ok || stored.Status != from {
		return false, nil
	}
	a.UpdatedAt = time.Now()
	cp := *a
	m.appts[a.ID] = &cp
	return true, nil
}

func (m *mockRepo) LockDoctorDay(context.Context, uuid.UUID, string) error { return nil }

func (m *mockRepo) MaxToken(_ context.Context, doctorID uuid.UUID, day string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	last := 0
	for _, a := range m.appts {
		if a.DoctorID == doctorID && a.AppointmentDate == day && a.TokenNumber > last {
			last = a.TokenNumber
		}
	}
	return last, nil
}

func (m *mockRepo) CountActiveAt(_ context.Context, doctorID uuid.UUID, at time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, a := range m.appts {
		if a.DoctorID == doctorID && a.ScheduledAt.Equal(at) && a.Status != StatusCancelled {
			n++
		}
	}
	return n, nil
}

func (m *mockRepo) ListByDoctorDay(_ context.Context, doctorID uuid.UUID, day string) ([]*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Appointment
	for _, a := range m.appts {
		if a.DoctorID == doctorID && a.AppointmentDate == day {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TokenNumber < out[j].TokenNumber })
	return out, nil
}

func (m *mockRepo) Search(_ context.Context, f Filter) ([]*Appointment, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Appointment
	for _, a := range m.appts {
		switch {
		case f.PatientID != nil && a.PatientID != *f.PatientID,
			f.DoctorID != nil && a.DoctorID != *f.DoctorID,
			f.Status != "" && a.Status != f.Status,
			f.From != "" && a.AppointmentDate < f.From,
			f.To != "" && a.AppointmentDate > f.To:
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.After(out[j].ScheduledAt) })
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

// -- Fake patient and doctor directories --

type fakePatients map[uuid.UUID]*patient.Patient

func (f fakePatients) Get(_ context.Context, id uuid.UUID) (*patient.Patient, error) {
	p, ok := f[id]
	if !ok {
		return nil, apperr.NotFound("patient")
	}
	return p, nil
}

// fakeDoctors works 09:00-12:00 in 30 minute slots on weekdays, except on
// the days listed in leave.
type fakeDoctors struct {
	users map[uuid.UUID]*staff.User
	leave map[string]bool
	loc   *time.Location
}

func (f *fakeDoctors) GetUser(_ context.Context, id uuid.UUID) (*staff.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, apperr.NotFound("user")
	}
	return u, nil
}

func (f *fakeDoctors) GetDoctor(_ context.Context, id uuid.UUID) (*staff.User, error) {
	u, ok := f.users[id]
	if !ok || !u.IsDoctor() || !u.IsActive {
		return nil, apperr.NotFound("doctor")
	}
	return u, nil
}

func (f *fakeDoctors) DayWindows(_ context.Context, _ uuid.UUID, day time.Time) ([]staff.Window, error) {
	if f.leave[day.Format(time.DateOnly)] {
		return nil, apperr.DoctorUnavailable("doctor is on leave")
	}
	if wd := day.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return nil, apperr.DoctorUnavailable("doctor does not work on " + wd.String())
	}
	return []staff.Window{{Start: 9 * 60, End: 12 * 60, SlotMinutes: 30}}, nil
}

func (f *fakeDoctors) CheckAvailability(ctx context.Context, doctorID uuid.UUID, at time.Time) error {
	local := at.In(f.loc)
	windows, err := f.DayWindows(ctx, doctorID, local)
	if err != nil {
		return err
	}
	minute := local.Hour()*60 + local.Minute()
	for _, w := range windows {
		if w.Contains(minute) {
			return nil
		}
	}
	return apperr.DoctorUnavailable("outside working hours")
}

// -- Fixtures --

// monday09 is the fixed "now" of every test: Monday 2025-03-10 09:00 UTC.
var monday09 = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

type fixture struct {
	svc      *Service
	repo     *mockRepo
	patients fakePatients
	doctors  *fakeDoctors
	events   *events.Recorder
	patient  *patient.Patient
	doctor   *staff.User
}

func newFixture() *fixture {
	f := &fixture{
		repo:     newMockRepo(),
		patients: fakePatients{},
		doctors:  &fakeDoctors{users: map[uuid.UUID]*staff.User{}, leave: map[string]bool{}, loc: time.UTC},
		events:   &events.Recorder{},
	}
	f.patient = f.addPatient(true)
	f.doctor = f.addUser(auth.RoleDoctor, true)

	sched := config.Scheduling{Location: time.UTC, SlotCapacity: 1}
	f.svc = NewService(f.repo, f.patients, f.doctors, sched, events.NewEmitter(f.events, zerolog.Nop()), zerolog.Nop())
	f.svc.SetClock(func() time.Time { return monday09 })
	return f
}

func (f *fixture) addPatient(active bool) *patient.Patient {
	p := &patient.Patient{ID: uuid.New(), PatientCode: "PAT-20250301-ABCDEF", FirstName: "Ana", LastName: "Silva", IsActive: active}
	f.patients[p.ID] = p
	return p
}

func (f *fixture) addUser(role string, active bool) *staff.User {
	u := &staff.User{ID: uuid.New(), Email: uuid.NewString() + "@hms.test", Role: role, FirstName: "Gregory", LastName: "House", IsActive: active}
	f.doctors.users[u.ID] = u
	return u
}

func (f *fixture) request(date, clock string) BookingRequest {
	return BookingRequest{
		PatientID: f.patient.ID.String(),
		DoctorID:  f.doctor.ID.String(),
		Date:      date,
		Time:      clock,
	}
}

func (f *fixture) book(date, clock string) (*Appointment, error) {
	return f.svc.Book(receptionistCtx(), f.request(date, clock))
}

func receptionistCtx() context.Context {
	return auth.WithIdentity(context.Background(), uuid.NewString(), auth.RoleReceptionist)
}

func ptr[T any](v T) *T { return &v }
