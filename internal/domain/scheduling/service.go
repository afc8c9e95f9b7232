package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/hms/hms/internal/config"
	"github.com/hms/hms/internal/domain/staff"
	"github.com/hms/hms/internal/platform/apperr"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/events"
	"github.com/hms/hms/internal/platform/validation"
)

// DoctorDirectory is everything scheduling needs to know about doctors.
type DoctorDirectory interface {
	DoctorLookup
	AvailabilityChecker
	DayWindows(ctx context.Context, doctorID uuid.UUID, day time.Time) ([]staff.Window, error)
}

// Expand options for Get.
const (
	ExpandPatient = "patient"
	ExpandDoctor  = "doctor"
)

type Service struct {
	repo         Repository
	assigner     *Assigner
	patients     PatientLookup
	doctors      DoctorDirectory
	loc          *time.Location
	slotCapacity int
	events       *events.Emitter
	now          func() time.Time
}

func NewService(repo Repository, patients PatientLookup, doctors DoctorDirectory, sched config.Scheduling,
	emitter *events.Emitter, logger zerolog.Logger) *Service {
	assigner := NewAssigner(repo, patients, doctors, doctors, sched, emitter, logger)
	return &Service{
		repo:         repo,
		assigner:     assigner,
		patients:     patients,
		doctors:      doctors,
		loc:          assigner.loc,
		slotCapacity: assigner.slotCapacity,
		events:       emitter,
		now:          time.Now,
	}
}

// SetClock replaces the time source of the service and its assigner.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
	s.assigner.now = now
}

func (s *Service) Book(ctx context.Context, req BookingRequest) (*Appointment, error) {
	return s.assigner.Assign(ctx, req)
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetByID(ctx, id)
}

// Get returns the appointment with the requested relations attached.
func (s *Service) Get(ctx context.Context, id uuid.UUID, expand []string) (*AppointmentView, error) {
	if err := validation.Expand(expand, ExpandPatient, ExpandDoctor); err != nil {
		return nil, err
	}
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	view := &AppointmentView{Appointment: a}
	if lo.Contains(expand, ExpandPatient) {
		if view.Patient, err = s.patients.Get(ctx, a.PatientID); err != nil {
			return nil, fmt.Errorf("expand patient: %w", err)
		}
	}
	if lo.Contains(expand, ExpandDoctor) {
		if view.Doctor, err = s.doctors.GetUser(ctx, a.DoctorID); err != nil {
			return nil, fmt.Errorf("expand doctor: %w", err)
		}
	}
	return view, nil
}

func (s *Service) List(ctx context.Context, f Filter) ([]*Appointment, int, error) {
	var fields []apperr.FieldError
	for name, v := range map[string]string{"from": f.From, "to": f.To} {
		if v == "" {
			continue
		}
		if _, err := time.Parse(time.DateOnly, v); err != nil {
			fields = append(fields, apperr.FieldError{Field: name, Message: "must be a date in YYYY-MM-DD format"})
		}
	}
	if f.Status != "" && allowedTransitions[f.Status] == nil {
		fields = append(fields, apperr.FieldError{Field: "status", Message: "must be one of: scheduled, confirmed, completed, cancelled"})
	}
	if len(fields) > 0 {
		return nil, 0, apperr.Validation(fields...)
	}
	return s.repo.Search(ctx, f)
}

// UpdateAppointment applies a status change and/or free-text edits. A
// status change must pass CheckTransition; text edits are only accepted
// while the appointment is not completed or cancelled. The write only lands
// if the status is still the one the checks ran against.
func (s *Service) UpdateAppointment(ctx context.Context, id uuid.UUID, in UpdateAppointmentInput) (*Appointment, error) {
	if err := validation.Struct(&in); err != nil {
		return nil, err
	}
	if in.Status == nil && in.Notes == nil && in.Reason == nil && in.CancellationReason == nil {
		return nil, apperr.InvalidRequest("nothing to update")
	}

	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if auth.RoleFromContext(ctx) == auth.RoleDoctor && auth.UserIDFromContext(ctx) != a.DoctorID.String() {
		return nil, apperr.Forbidden("doctors may only update their own appointments")
	}

	previous := a.Status
	if in.Status != nil {
		if err := CheckTransition(a.Status, *in.Status); err != nil {
			return nil, err
		}
	} else if IsTerminal(a.Status) {
		return nil, apperr.InvalidTransition(a.Status, a.Status)
	}

	if in.Notes != nil {
		a.Notes = in.Notes
	}
	if in.Reason != nil {
		a.Reason = in.Reason
	}
	if in.CancellationReason != nil {
		a.CancellationReason = in.CancellationReason
	}
	if in.Status != nil {
		s.applyStatus(a, *in.Status)
	}

	ok, err := s.repo.Update(ctx, a, previous)
	if err != nil {
		return nil, fmt.Errorf("update appointment: %w", err)
	}
	if !ok {
		// The status moved between our read and write.
		current, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, apperr.InvalidTransition(current.Status, a.Status)
	}

	if a.Status != previous {
		s.events.Emit(ctx, events.New(events.AppointmentStatusChanged, events.TopicAppointments, "appointment", a.ID.String(),
			map[string]any{"from": previous, "to": a.Status, "tokenNumber": a.TokenNumber},
			"doctor:"+a.DoctorID.String(), "patient:"+a.PatientID.String()))
	}
	return a, nil
}

func (s *Service) applyStatus(a *Appointment, status string) {
	now := s.now().UTC()
	a.Status = status
	switch status {
	case StatusConfirmed:
		a.ConfirmedAt = &now
	case StatusCompleted:
		a.CompletedAt = &now
	case StatusCancelled:
		a.CancelledAt = &now
	}
}

func (s *Service) Confirm(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.UpdateAppointment(ctx, id, UpdateAppointmentInput{Status: lo.ToPtr(StatusConfirmed)})
}

func (s *Service) Complete(ctx context.Context, id uuid.UUID, notes *string) (*Appointment, error) {
	return s.UpdateAppointment(ctx, id, UpdateAppointmentInput{Status: lo.ToPtr(StatusCompleted), Notes: notes})
}

func (s *Service) Cancel(ctx context.Context, id uuid.UUID, in CancelInput) (*Appointment, error) {
	if err := validation.Struct(&in); err != nil {
		return nil, err
	}
	return s.UpdateAppointment(ctx, id, UpdateAppointmentInput{
		Status:             lo.ToPtr(StatusCancelled),
		CancellationReason: &in.Reason,
	})
}

// resolveDay parses a local date, defaulting to today.
func (s *Service) resolveDay(date string) (time.Time, error) {
	if date == "" {
		return s.now().In(s.loc), nil
	}
	day, err := time.ParseInLocation(time.DateOnly, date, s.loc)
	if err != nil {
		return time.Time{}, apperr.Validation(apperr.FieldError{Field: "date", Message: "must be a date in YYYY-MM-DD format"})
	}
	return day, nil
}

// Queue returns a doctor's appointments for a day in token order.
func (s *Service) Queue(ctx context.Context, doctorID uuid.UUID, date string) ([]*Appointment, error) {
	day, err := s.resolveDay(date)
	if err != nil {
		return nil, err
	}
	if _, err := s.doctors.GetDoctor(ctx, doctorID); err != nil {
		return nil, err
	}
	return s.repo.ListByDoctorDay(ctx, doctorID, day.Format(time.DateOnly))
}

// Slots lists the start times of a doctor's day with their occupancy.
func (s *Service) Slots(ctx context.Context, doctorID uuid.UUID, date string) ([]Slot, error) {
	day, err := s.resolveDay(date)
	if err != nil {
		return nil, err
	}
	if _, err := s.doctors.GetDoctor(ctx, doctorID); err != nil {
		return nil, err
	}
	windows, err := s.doctors.DayWindows(ctx, doctorID, day)
	if err != nil {
		return nil, err
	}
	booked, err := s.repo.ListByDoctorDay(ctx, doctorID, day.Format(time.DateOnly))
	if err != nil {
		return nil, err
	}
	taken := map[string]int{}
	for _, a := range booked {
		if a.Status != StatusCancelled {
			taken[a.AppointmentTime]++
		}
	}

	now := s.now()
	var slots []Slot
	for _, w := range windows {
		for m := w.Start; m+w.SlotMinutes <= w.End; m += w.SlotMinutes {
			clock := fmt.Sprintf("%02d:%02d", m/60, m%60)
			at := time.Date(day.Year(), day.Month(), day.Day(), m/60, m%60, 0, 0, s.loc)
			slots = append(slots, Slot{
				Time:      clock,
				Booked:    taken[clock],
				Available: taken[clock] < s.slotCapacity && !at.Before(now),
			})
		}
	}
	return slots, nil
}
