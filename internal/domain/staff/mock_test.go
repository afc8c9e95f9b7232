package staff

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/hms/hms/internal/config"
	"github.com/hms/hms/internal/platform/apperr"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/db"
	"github.com/hms/hms/internal/platform/events"
)

// -- Mock User Repository --

type mockUserRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]*User
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[uuid.UUID]*User)}
}

func (m *mockUserRepo) Create(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return db.UniqueViolation("staff_user_email_key")
		}
	}
	u.ID = uuid.New()
	u.CreatedAt = time.Now()
	u.UpdatedAt = u.CreatedAt
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id uuid.UUID) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, apperr.NotFound("user")
	}
	cp := *u
	return &cp, nil
}

func (m *mockUserRepo) GetByEmail(_ context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("user")
}

func (m *mockUserRepo) Update(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ID]; !ok {
		return apperr.NotFound("user")
	}
	u.UpdatedAt = time.Now()
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *mockUserRepo) List(_ context.Context, f UserFilter) ([]*User, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*User
	for _, u := range m.users {
		if f.Role != "" && u.Role != f.Role {
			continue
		}
		if f.ActiveOnly && !u.IsActive {
			continue
		}
		if f.Query != "" && !strings.Contains(strings.ToLower(u.FullName()), strings.ToLower(f.Query)) {
			continue
		}
		cp := *u
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastName < out[j].LastName })
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

// -- Mock Schedule Repository --

type mockScheduleRepo struct {
	mu     sync.Mutex
	hours  map[uuid.UUID][]*WorkingHours
	leaves map[uuid.UUID]*Leave
}

func newMockScheduleRepo() *mockScheduleRepo {
	return &mockScheduleRepo{
		hours:  make(map[uuid.UUID][]*WorkingHours),
		leaves: make(map[uuid.UUID]*Leave),
	}
}

func (m *mockScheduleRepo) ReplaceWorkingHours(_ context.Context, doctorID uuid.UUID, hours []*WorkingHours) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, h := range hours {
		h.ID = uuid.New()
		h.DoctorID = doctorID
		h.CreatedAt = time.Now()
	}
	m.hours[doctorID] = hours
	return nil
}

func (m *mockScheduleRepo) ListWorkingHours(_ context.Context, doctorID uuid.UUID) ([]*WorkingHours, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hours[doctorID], nil
}

func (m *mockScheduleRepo) CreateLeave(_ context.Context, l *Leave) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l.ID = uuid.New()
	l.CreatedAt = time.Now()
	m.leaves[l.ID] = l
	return nil
}

func (m *mockScheduleRepo) ListLeaves(_ context.Context, doctorID uuid.UUID, from string) ([]*Leave, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Leave
	for _, l := range m.leaves {
		if l.DoctorID == doctorID && (from == "" || l.EndDate >= from) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate < out[j].StartDate })
	return out, nil
}

func (m *mockScheduleRepo) DeleteLeave(_ context.Context, doctorID, leaveID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leaves[leaveID]
	if !ok || l.DoctorID != doctorID {
		return apperr.NotFound("leave")
	}
	delete(m.leaves, leaveID)
	return nil
}

func (m *mockScheduleRepo) LeaveOn(_ context.Context, doctorID uuid.UUID, day string) (*Leave, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.leaves {
		if l.DoctorID == doctorID && l.Covers(day) {
			return l, nil
		}
	}
	return nil, nil
}

// -- Fixtures --

type fixture struct {
	svc       *Service
	users     *mockUserRepo
	schedules *mockScheduleRepo
	tokens    *auth.TokenIssuer
	events    *events.Recorder
}

func testScheduling() config.Scheduling {
	return config.Scheduling{
		Location:     time.UTC,
		Shifts:       []config.Shift{{Start: 9 * 60, End: 13 * 60}, {Start: 14 * 60, End: 18 * 60}},
		WorkingDays:  []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
		SlotCapacity: 1,
	}
}

func newFixture() *fixture {
	f := &fixture{
		users:     newMockUserRepo(),
		schedules: newMockScheduleRepo(),
		tokens:    auth.NewTokenIssuer([]byte("test-signing-key-0123456789abcdef"), "hms-test", time.Hour),
		events:    &events.Recorder{},
	}
	f.svc = NewService(f.users, f.schedules, f.tokens, testScheduling(), events.NewEmitter(f.events, zerolog.Nop()))
	f.svc.hashCost = bcrypt.MinCost
	return f
}

func adminCtx() context.Context {
	return auth.WithIdentity(context.Background(), uuid.NewString(), auth.RoleAdmin)
}

func (f *fixture) createUser(t *testing.T, role, email string) *User {
	t.Helper()
	u, err := f.svc.CreateUser(adminCtx(), CreateUserInput{
		Email:     email,
		Password:  "correct-horse",
		Role:      role,
		FirstName: "Test",
		LastName:  strings.Split(email, "@")[0],
	})
	if err != nil {
		t.Fatalf("create %s: %v", role, err)
	}
	return u
}

func ptr[T any](v T) *T { return &v }
