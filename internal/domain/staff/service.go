package staff

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"golang.org/x/crypto/bcrypt"

	"github.com/hms/hms/internal/config"
	"github.com/hms/hms/internal/platform/apperr"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/db"
	"github.com/hms/hms/internal/platform/events"
	"github.com/hms/hms/internal/platform/validation"
)

// dummyHash is compared against when the email is unknown so that a failed
// login costs the same whether or not the account exists.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), bcrypt.DefaultCost)

type Service struct {
	users     UserRepository
	schedules ScheduleRepository
	tokens    *auth.TokenIssuer
	sched     config.Scheduling
	events    *events.Emitter
	hashCost  int
	now       func() time.Time
}

func NewService(users UserRepository, schedules ScheduleRepository, tokens *auth.TokenIssuer, sched config.Scheduling, emitter *events.Emitter) *Service {
	if sched.Location == nil {
		sched.Location = time.UTC
	}
	return &Service{
		users:     users,
		schedules: schedules,
		tokens:    tokens,
		sched:     sched,
		events:    emitter,
		hashCost:  bcrypt.DefaultCost,
		now:       time.Now,
	}
}

// -- Users --

func (s *Service) CreateUser(ctx context.Context, in CreateUserInput) (*User, error) {
	in.Email = normalizeEmail(in.Email)
	if err := validation.Struct(&in); err != nil {
		return nil, err
	}
	if in.Role == auth.RoleSuperAdmin && auth.RoleFromContext(ctx) != auth.RoleSuperAdmin {
		return nil, apperr.Forbidden("only a super admin can create a super admin")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.hashCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &User{
		Email:           in.Email,
		PasswordHash:    string(hash),
		Role:            in.Role,
		FirstName:       strings.TrimSpace(in.FirstName),
		LastName:        strings.TrimSpace(in.LastName),
		Phone:           in.Phone,
		Specialization:  in.Specialization,
		Department:      in.Department,
		LicenseNumber:   in.LicenseNumber,
		ConsultationFee: in.ConsultationFee,
		IsActive:        *in.IsActive,
	}
	if err := s.users.Create(ctx, u); err != nil {
		if _, ok := db.IsUniqueViolation(err); ok {
			return nil, apperr.Conflict("a user with this email already exists")
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.events.Emit(ctx, events.New(events.StaffCreated, events.TopicStaff, "user", u.ID.String(),
		map[string]any{"role": u.Role, "email": u.Email}))
	return u, nil
}

func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.users.GetByID(ctx, id)
}

// GetDoctor returns the user only when it is an active doctor.
func (s *Service) GetDoctor(ctx context.Context, id uuid.UUID) (*User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, apperr.NotFound("doctor")
		}
		return nil, err
	}
	if !u.IsDoctor() || !u.IsActive {
		return nil, apperr.NotFound("doctor")
	}
	return u, nil
}

func (s *Service) ListUsers(ctx context.Context, f UserFilter) ([]*User, int, error) {
	if f.Role != "" && !lo.Contains(auth.AllRoles, f.Role) {
		return nil, 0, apperr.Validation(apperr.FieldError{Field: "role", Message: "must be one of: " + strings.Join(auth.AllRoles, ", ")})
	}
	return s.users.List(ctx, f)
}

func (s *Service) UpdateUser(ctx context.Context, id uuid.UUID, in UpdateUserInput) (*User, error) {
	if err := validation.Struct(&in); err != nil {
		return nil, err
	}
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.FirstName != nil {
		u.FirstName = strings.TrimSpace(*in.FirstName)
	}
	if in.LastName != nil {
		u.LastName = strings.TrimSpace(*in.LastName)
	}
	if in.Phone != nil {
		u.Phone = in.Phone
	}
	if in.Specialization != nil {
		u.Specialization = in.Specialization
	}
	if in.Department != nil {
		u.Department = in.Department
	}
	if in.LicenseNumber != nil {
		u.LicenseNumber = in.LicenseNumber
	}
	if in.ConsultationFee != nil {
		u.ConsultationFee = in.ConsultationFee
	}
	if err := s.users.Update(ctx, u); err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	return u, nil
}

func (s *Service) DeactivateUser(ctx context.Context, id uuid.UUID) (*User, error) {
	if auth.UserIDFromContext(ctx) == id.String() {
		return nil, apperr.InvalidRequest("you cannot deactivate your own account")
	}
	return s.setActive(ctx, id, false)
}

func (s *Service) ActivateUser(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.setActive(ctx, id, true)
}

func (s *Service) setActive(ctx context.Context, id uuid.UUID, active bool) (*User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u.IsActive == active {
		return u, nil
	}
	u.IsActive = active
	if err := s.users.Update(ctx, u); err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	return u, nil
}

// -- Authentication --

// Login checks credentials and issues a bearer token. Unknown emails,
// inactive accounts and wrong passwords all yield the same error.
func (s *Service) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	in.Email = normalizeEmail(in.Email)
	if err := validation.Struct(&in); err != nil {
		return nil, err
	}
	invalid := apperr.Unauthorized("invalid email or password")

	u, err := s.users.GetByEmail(ctx, in.Email)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(in.Password))
			return nil, invalid
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(in.Password)); err != nil {
		return nil, invalid
	}
	if !u.IsActive {
		return nil, invalid
	}

	token, expiresAt, err := s.tokens.Issue(u.ID.String(), u.Email, u.Role)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	now := s.now().UTC()
	u.LastLoginAt = &now
	if err := s.users.Update(ctx, u); err != nil {
		return nil, fmt.Errorf("record login: %w", err)
	}
	return &LoginResult{Token: token, TokenType: "Bearer", ExpiresAt: expiresAt, User: u}, nil
}

// Me returns the authenticated caller.
func (s *Service) Me(ctx context.Context) (*User, error) {
	id, err := uuid.Parse(auth.UserIDFromContext(ctx))
	if err != nil {
		return nil, apperr.Unauthorized("authentication required")
	}
	return s.users.GetByID(ctx, id)
}

func (s *Service) ChangePassword(ctx context.Context, in ChangePasswordInput) error {
	if err := validation.Struct(&in); err != nil {
		return err
	}
	u, err := s.Me(ctx)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(in.CurrentPassword)); err != nil {
		return apperr.Validation(apperr.FieldError{Field: "currentPassword", Message: "is incorrect"})
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.NewPassword), s.hashCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	u.PasswordHash = string(hash)
	return s.users.Update(ctx, u)
}

// -- Working hours and leaves --

func (s *Service) SetWorkingHours(ctx context.Context, doctorID uuid.UUID, in WorkingHoursInput) ([]*WorkingHours, error) {
	if err := validation.Struct(&in); err != nil {
		return nil, err
	}
	if _, err := s.GetDoctor(ctx, doctorID); err != nil {
		return nil, err
	}

	hours := make([]*WorkingHours, 0, len(in.Shifts))
	for _, sh := range in.Shifts {
		hours = append(hours, &WorkingHours{
			DoctorID:    doctorID,
			DayOfWeek:   *sh.DayOfWeek,
			StartTime:   sh.StartTime,
			EndTime:     sh.EndTime,
			SlotMinutes: sh.SlotMinutes,
		})
	}
	if fe := overlapping(hours); fe != nil {
		return nil, apperr.Validation(*fe)
	}
	if err := s.schedules.ReplaceWorkingHours(ctx, doctorID, hours); err != nil {
		return nil, fmt.Errorf("replace working hours: %w", err)
	}

	s.events.Emit(ctx, events.New(events.DoctorAvailabilityChanged, events.TopicStaff, "doctor", doctorID.String(),
		map[string]any{"shifts": len(hours)}, "doctor:"+doctorID.String()))
	return hours, nil
}

// overlapping reports the first shift that overlaps an earlier one on the
// same weekday.
func overlapping(hours []*WorkingHours) *apperr.FieldError {
	type indexed struct {
		i int
		h *WorkingHours
	}
	byDay := map[int][]indexed{}
	for i, h := range hours {
		byDay[h.DayOfWeek] = append(byDay[h.DayOfWeek], indexed{i, h})
	}
	for _, list := range byDay {
		sort.Slice(list, func(a, b int) bool { return list[a].h.StartTime < list[b].h.StartTime })
		for k := 1; k < len(list); k++ {
			if list[k].h.StartTime < list[k-1].h.EndTime {
				return &apperr.FieldError{
					Field:   shiftField(list[k].i, "startTime"),
					Message: "overlaps another shift on the same day",
				}
			}
		}
	}
	return nil
}

func shiftField(i int, name string) string {
	return fmt.Sprintf("shifts[%d].%s", i, name)
}

func (s *Service) GetWorkingHours(ctx context.Context, doctorID uuid.UUID) ([]*WorkingHours, error) {
	if _, err := s.GetDoctor(ctx, doctorID); err != nil {
		return nil, err
	}
	return s.schedules.ListWorkingHours(ctx, doctorID)
}

func (s *Service) AddLeave(ctx context.Context, doctorID uuid.UUID, in LeaveInput) (*Leave, error) {
	if err := validation.Struct(&in); err != nil {
		return nil, err
	}
	if _, err := s.GetDoctor(ctx, doctorID); err != nil {
		return nil, err
	}
	l := &Leave{
		DoctorID:  doctorID,
		StartDate: in.StartDate,
		EndDate:   in.EndDate,
		Reason:    in.Reason,
		CreatedBy: callerID(ctx),
	}
	if err := s.schedules.CreateLeave(ctx, l); err != nil {
		return nil, fmt.Errorf("create leave: %w", err)
	}
	s.events.Emit(ctx, events.New(events.DoctorAvailabilityChanged, events.TopicStaff, "doctor", doctorID.String(),
		map[string]any{"leaveFrom": l.StartDate, "leaveTo": l.EndDate}, "doctor:"+doctorID.String()))
	return l, nil
}

// ListLeaves returns leaves ending on or after from; an empty from lists all.
func (s *Service) ListLeaves(ctx context.Context, doctorID uuid.UUID, from string) ([]*Leave, error) {
	if from != "" {
		if _, err := time.Parse(time.DateOnly, from); err != nil {
			return nil, apperr.Validation(apperr.FieldError{Field: "from", Message: "must be a date in YYYY-MM-DD format"})
		}
	}
	if _, err := s.GetDoctor(ctx, doctorID); err != nil {
		return nil, err
	}
	return s.schedules.ListLeaves(ctx, doctorID, from)
}

func (s *Service) DeleteLeave(ctx context.Context, doctorID, leaveID uuid.UUID) error {
	return s.schedules.DeleteLeave(ctx, doctorID, leaveID)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func callerID(ctx context.Context) *uuid.UUID {
	id, err := uuid.Parse(auth.UserIDFromContext(ctx))
	if err != nil || id == uuid.Nil {
		return nil
	}
	return &id
}
