package patient

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/platform/apperr"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/db"
	"github.com/hms/hms/internal/platform/events"
	"github.com/hms/hms/internal/platform/validation"
	"github.com/hms/hms/pkg/codegen"
)

const (
	codeLength   = 6
	codeAttempts = 5
)

type Service struct {
	repo   Repository
	codes  codegen.Generator
	loc    *time.Location
	events *events.Emitter
	logger zerolog.Logger
	now    func() time.Time
}

// NewService builds the patient service. Codes look like
// <prefix>-<YYYYMMDD>-<6 random chars>, dated in loc.
func NewService(repo Repository, codePrefix string, loc *time.Location, emitter *events.Emitter, logger zerolog.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	s := &Service{repo: repo, loc: loc, events: emitter, logger: logger, now: time.Now}
	s.codes = codegen.Generator{Prefix: codePrefix, Length: codeLength, Location: loc, Now: func() time.Time { return s.now() }}
	return s
}

func (s *Service) today() string {
	return s.now().In(s.loc).Format(time.DateOnly)
}

// Register validates the input and stores a new patient under a freshly
// generated code, regenerating the code on collision.
func (s *Service) Register(ctx context.Context, in CreatePatientInput) (*Patient, error) {
	in.today = s.today()
	if err := validation.Struct(&in); err != nil {
		return nil, err
	}

	p := &Patient{
		FirstName:             strings.TrimSpace(in.FirstName),
		LastName:              strings.TrimSpace(in.LastName),
		DateOfBirth:           in.DateOfBirth,
		Gender:                in.Gender,
		Phone:                 in.Phone,
		Email:                 in.Email,
		Address:               in.Address,
		BloodType:             in.BloodType,
		EmergencyContactName:  in.EmergencyContactName,
		EmergencyContactPhone: in.EmergencyContactPhone,
		Allergies:             in.Allergies,
		MedicalHistory:        in.MedicalHistory,
		IsActive:              *in.IsActive,
		CreatedBy:             callerID(ctx),
	}

	for attempt := 1; ; attempt++ {
		code, err := s.codes.Next()
		if err != nil {
			return nil, apperr.Internal(err)
		}
		p.PatientCode = code
		err = s.repo.Create(ctx, p)
		if err == nil {
			break
		}
		if constraint, ok := db.IsUniqueViolation(err); !ok || constraint != CodeConstraint {
			return nil, fmt.Errorf("create patient: %w", err)
		}
		if attempt == codeAttempts {
			return nil, apperr.Conflict("could not allocate a unique patient code, please retry")
		}
		s.logger.Warn().Str("patient_code", code).Int("attempt", attempt).Msg("patient code collision, regenerating")
	}

	s.events.Emit(ctx, events.New(events.PatientRegistered, events.TopicPatients, "patient", p.ID.String(),
		map[string]any{"patientCode": p.PatientCode}, "patient:"+p.ID.String()))
	return p, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetByCode(ctx context.Context, code string) (*Patient, error) {
	return s.repo.GetByCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
}

// Lookup resolves either a UUID or a patient code.
func (s *Service) Lookup(ctx context.Context, idOrCode string) (*Patient, error) {
	if id, err := uuid.Parse(idOrCode); err == nil {
		return s.Get(ctx, id)
	}
	return s.GetByCode(ctx, idOrCode)
}

func (s *Service) List(ctx context.Context, f Filter) ([]*Patient, int, error) {
	return s.repo.List(ctx, f)
}

// Update applies a partial update. The patient code is never touched.
func (s *Service) Update(ctx context.Context, id uuid.UUID, in UpdatePatientInput) (*Patient, error) {
	in.today = s.today()
	if err := validation.Struct(&in); err != nil {
		return nil, err
	}
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.FirstName != nil {
		p.FirstName = strings.TrimSpace(*in.FirstName)
	}
	if in.LastName != nil {
		p.LastName = strings.TrimSpace(*in.LastName)
	}
	if in.DateOfBirth != nil {
		p.DateOfBirth = *in.DateOfBirth
	}
	if in.Gender != nil {
		p.Gender = *in.Gender
	}
	if in.Phone != nil {
		p.Phone = *in.Phone
	}
	if in.Email != nil {
		p.Email = in.Email
	}
	if in.Address != nil {
		p.Address = in.Address
	}
	if in.BloodType != nil {
		p.BloodType = in.BloodType
	}
	if in.EmergencyContactName != nil {
		p.EmergencyContactName = in.EmergencyContactName
	}
	if in.EmergencyContactPhone != nil {
		p.EmergencyContactPhone = in.EmergencyContactPhone
	}
	if in.Allergies != nil {
		p.Allergies = in.Allergies
	}
	if in.MedicalHistory != nil {
		p.MedicalHistory = in.MedicalHistory
	}

	if err := s.repo.Update(ctx, p); err != nil {
		return nil, fmt.Errorf("update patient: %w", err)
	}
	s.events.Emit(ctx, events.New(events.PatientUpdated, events.TopicPatients, "patient", p.ID.String(), nil,
		"patient:"+p.ID.String()))
	return p, nil
}

func (s *Service) Deactivate(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.setActive(ctx, id, false, events.PatientDeactivated)
}

func (s *Service) Reactivate(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.setActive(ctx, id, true, events.PatientReactivated)
}

func (s *Service) setActive(ctx context.Context, id uuid.UUID, active bool, eventType string) (*Patient, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.IsActive == active {
		return p, nil
	}
	if err := s.repo.SetActive(ctx, id, active); err != nil {
		return nil, fmt.Errorf("set patient active: %w", err)
	}
	p.IsActive = active
	p.UpdatedAt = s.now().UTC()
	s.events.Emit(ctx, events.New(eventType, events.TopicPatients, "patient", p.ID.String(), nil,
		"patient:"+p.ID.String()))
	return p, nil
}

func callerID(ctx context.Context) *uuid.UUID {
	id, err := uuid.Parse(auth.UserIDFromContext(ctx))
	if err != nil || id == uuid.Nil {
		return nil
	}
	return &id
}
