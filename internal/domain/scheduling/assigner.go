package scheduling

import (
	"context"
	"fmt"
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
	"github.com/hms/hms/internal/platform/validation"
)

// PatientLookup resolves patients by id.
type PatientLookup interface {
	Get(ctx context.Context, id uuid.UUID) (*patient.Patient, error)
}

// DoctorLookup resolves doctors. GetDoctor returns NotFound unless the user
// is an active doctor; GetUser returns any staff record, for display.
type DoctorLookup interface {
	GetDoctor(ctx context.Context, id uuid.UUID) (*staff.User, error)
	GetUser(ctx context.Context, id uuid.UUID) (*staff.User, error)
}

// AvailabilityChecker decides whether a doctor works at an instant.
type AvailabilityChecker interface {
	CheckAvailability(ctx context.Context, doctorID uuid.UUID, at time.Time) error
}

// tokenAttempts bounds how often a token is recomputed after losing a race
// on the (doctor, day, token) unique index.
const tokenAttempts = 2

// Assigner books appointments: it validates the request, checks the
// patient, doctor, availability and slot, then issues the next token for
// the doctor-day.
type Assigner struct {
	repo         Repository
	patients     PatientLookup
	doctors      DoctorLookup
	availability AvailabilityChecker
	loc          *time.Location
	slotCapacity int
	events       *events.Emitter
	logger       zerolog.Logger
	now          func() time.Time
}

func NewAssigner(repo Repository, patients PatientLookup, doctors DoctorLookup, availability AvailabilityChecker,
	sched config.Scheduling, emitter *events.Emitter, logger zerolog.Logger) *Assigner {
	loc := sched.Location
	if loc == nil {
		loc = time.UTC
	}
	capacity := sched.SlotCapacity
	if capacity < 1 {
		capacity = 1
	}
	return &Assigner{
		repo:         repo,
		patients:     patients,
		doctors:      doctors,
		availability: availability,
		loc:          loc,
		slotCapacity: capacity,
		events:       emitter,
		logger:       logger,
		now:          time.Now,
	}
}

// Assign books the requested slot. Failures are reported as Validation,
// InvalidRequest, NotFound, DoctorUnavailable or SlotConflict errors.
func (a *Assigner) Assign(ctx context.Context, req BookingRequest) (*Appointment, error) {
	if err := validation.Struct(&req); err != nil {
		return nil, err
	}
	patientID := uuid.MustParse(req.PatientID)
	doctorID := uuid.MustParse(req.DoctorID)

	day, at, err := a.resolve(req.Date, req.Time)
	if err != nil {
		return nil, err
	}

	p, err := a.patients.Get(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if !p.IsActive {
		return nil, apperr.NotFound("patient")
	}
	if _, err := a.doctors.GetDoctor(ctx, doctorID); err != nil {
		return nil, err
	}
	if err := a.availability.CheckAvailability(ctx, doctorID, at); err != nil {
		return nil, err
	}

	appt := &Appointment{
		PatientID:       patientID,
		DoctorID:        doctorID,
		ScheduledAt:     at.UTC(),
		AppointmentDate: day,
		AppointmentTime: at.Format("15:04"),
		Type:            req.Type,
		Status:          StatusScheduled,
		Reason:          req.Reason,
		Notes:           req.Notes,
		CreatedBy:       callerID(ctx),
	}

	for attempt := 1; ; attempt++ {
		err = a.repo.InTx(ctx, func(ctx context.Context) error {
			return a.insertWithToken(ctx, appt)
		})
		if err == nil {
			break
		}
		if apperr.Is(err, apperr.KindSlotConflict) {
			return nil, err
		}
		constraint, ok := db.IsUniqueViolation(err)
		if !ok {
			return nil, fmt.Errorf("book appointment: %w", err)
		}
		if constraint != TokenConstraint {
			return nil, apperr.SlotConflict("slot already booked").WithCause(err)
		}
		if attempt == tokenAttempts {
			return nil, apperr.SlotConflict("could not assign a token for this day, please retry").WithCause(err)
		}
		a.logger.Warn().
			Str("doctor_id", doctorID.String()).
			Str("day", day).
			Int("token", appt.TokenNumber).
			Msg("token collision, recomputing")
	}

	a.events.Emit(ctx, events.New(events.AppointmentBooked, events.TopicAppointments, "appointment", appt.ID.String(),
		map[string]any{
			"doctorId":    appt.DoctorID,
			"patientId":   appt.PatientID,
			"scheduledAt": appt.ScheduledAt,
			"tokenNumber": appt.TokenNumber,
		},
		"doctor:"+doctorID.String(), "patient:"+patientID.String()))
	return appt, nil
}

// insertWithToken runs inside the booking transaction.
func (a *Assigner) insertWithToken(ctx context.Context, appt *Appointment) error {
	if err := a.repo.LockDoctorDay(ctx, appt.DoctorID, appt.AppointmentDate); err != nil {
		return err
	}
	booked, err := a.repo.CountActiveAt(ctx, appt.DoctorID, appt.ScheduledAt)
	if err != nil {
		return err
	}
	if booked >= a.slotCapacity {
		return apperr.SlotConflict("slot already booked")
	}
	last, err := a.repo.MaxToken(ctx, appt.DoctorID, appt.AppointmentDate)
	if err != nil {
		return err
	}
	appt.TokenNumber = last + 1
	return a.repo.Create(ctx, appt)
}

// resolve turns a local date and HH:MM into the day key and the instant.
func (a *Assigner) resolve(date, clock string) (string, time.Time, error) {
	start, err := time.ParseInLocation(time.DateOnly, date, a.loc)
	if err != nil {
		return "", time.Time{}, apperr.InvalidRequest("invalid appointment date %q", date)
	}
	minutes, err := config.ParseClock(clock)
	if err != nil {
		return "", time.Time{}, apperr.InvalidRequest("invalid appointment time %q", clock)
	}
	end := start.AddDate(0, 0, 1)
	at := time.Date(start.Year(), start.Month(), start.Day(), minutes/60, minutes%60, 0, 0, a.loc)
	if at.Before(start) || !at.Before(end) {
		return "", time.Time{}, apperr.InvalidRequest("appointment time %s falls outside %s", clock, date)
	}

	now := a.now()
	if date < now.In(a.loc).Format(time.DateOnly) {
		return "", time.Time{}, apperr.InvalidRequest("appointment date %s is in the past", date)
	}
	if at.Before(now) {
		return "", time.Time{}, apperr.InvalidRequest("appointment time %s on %s has already passed", clock, date)
	}
	return date, at, nil
}

func callerID(ctx context.Context) *uuid.UUID {
	id, err := uuid.Parse(auth.UserIDFromContext(ctx))
	if err != nil || id == uuid.Nil {
		return nil
	}
	return &id
}
