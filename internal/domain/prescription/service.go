package prescription

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/hms/hms/internal/domain/scheduling"
	"github.com/hms/hms/internal/platform/apperr"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/events"
	"github.com/hms/hms/internal/platform/validation"
)

// AppointmentLookup resolves appointments by id.
type AppointmentLookup interface {
	GetAppointment(ctx context.Context, id uuid.UUID) (*scheduling.Appointment, error)
}

// Expand options for Get.
const (
	ExpandPatient     = "patient"
	ExpandDoctor      = "doctor"
	ExpandAppointment = "appointment"
)

type Service struct {
	repo         Repository
	patients     scheduling.PatientLookup
	doctors      scheduling.DoctorLookup
	appointments AppointmentLookup
	loc          *time.Location
	events       *events.Emitter
	now          func() time.Time
}

func NewService(repo Repository, patients scheduling.PatientLookup, doctors scheduling.DoctorLookup,
	appointments AppointmentLookup, loc *time.Location, emitter *events.Emitter) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		repo:         repo,
		patients:     patients,
		doctors:      doctors,
		appointments: appointments,
		loc:          loc,
		events:       emitter,
		now:          time.Now,
	}
}

func (s *Service) Create(ctx context.Context, in CreateInput) (*Prescription, error) {
	callerRole := auth.RoleFromContext(ctx)
	caller := auth.UserIDFromContext(ctx)
	if in.DoctorID == "" && callerRole == auth.RoleDoctor {
		in.DoctorID = caller
	}
	if err := validation.Struct(&in); err != nil {
		return nil, err
	}
	if in.DoctorID == "" {
		return nil, apperr.Validation(apperr.FieldError{Field: "doctorId", Message: "is required"})
	}
	if in.FollowUpDate != nil && *in.FollowUpDate < s.now().In(s.loc).Format(time.DateOnly) {
		return nil, apperr.Validation(apperr.FieldError{Field: "followUpDate", Message: "must not be in the past"})
	}
	if callerRole == auth.RoleDoctor && in.DoctorID != caller {
		return nil, apperr.Forbidden("doctors may only prescribe as themselves")
	}

	patientID := uuid.MustParse(in.PatientID)
	doctorID := uuid.MustParse(in.DoctorID)
	if _, err := s.patients.Get(ctx, patientID); err != nil {
		return nil, err
	}
	if _, err := s.doctors.GetDoctor(ctx, doctorID); err != nil {
		return nil, err
	}

	rx := &Prescription{
		PatientID:    patientID,
		DoctorID:     doctorID,
		Diagnosis:    in.Diagnosis,
		Medications:  in.Medications,
		Instructions: in.Instructions,
		Notes:        in.Notes,
		FollowUpDate: in.FollowUpDate,
	}
	if id, err := uuid.Parse(caller); err == nil {
		rx.CreatedBy = &id
	}

	if in.AppointmentID != nil {
		apptID := uuid.MustParse(*in.AppointmentID)
		if err := s.checkAppointment(ctx, apptID, patientID, doctorID); err != nil {
			return nil, err
		}
		rx.AppointmentID = &apptID
	}

	if err := s.repo.Create(ctx, rx); err != nil {
		return nil, fmt.Errorf("create prescription: %w", err)
	}

	s.events.Emit(ctx, events.New(events.PrescriptionCreated, events.TopicPrescriptions, "prescription", rx.ID.String(),
		map[string]any{"patientId": rx.PatientID, "doctorId": rx.DoctorID, "medications": len(rx.Medications)},
		"patient:"+rx.PatientID.String(), "doctor:"+rx.DoctorID.String(), "role:"+auth.RolePharmacist))
	return rx, nil
}

func (s *Service) checkAppointment(ctx context.Context, id, patientID, doctorID uuid.UUID) error {
	a, err := s.appointments.GetAppointment(ctx, id)
	if apperr.Is(err, apperr.KindNotFound) {
		return apperr.InvalidRequest("appointment %s does not exist", id)
	}
	if err != nil {
		return err
	}
	if a.PatientID != patientID || a.DoctorID != doctorID {
		return apperr.InvalidRequest("appointment %s belongs to a different patient or doctor", id)
	}
	if a.Status == scheduling.StatusCancelled {
		return apperr.InvalidRequest("appointment %s is cancelled", id)
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID, expand []string) (*View, error) {
	if err := validation.Expand(expand, ExpandPatient, ExpandDoctor, ExpandAppointment); err != nil {
		return nil, err
	}
	rx, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	view := &View{Prescription: rx}
	if lo.Contains(expand, ExpandPatient) {
		if view.Patient, err = s.patients.Get(ctx, rx.PatientID); err != nil {
			return nil, fmt.Errorf("expand patient: %w", err)
		}
	}
	if lo.Contains(expand, ExpandDoctor) {
		if view.Doctor, err = s.doctors.GetUser(ctx, rx.DoctorID); err != nil {
			return nil, fmt.Errorf("expand doctor: %w", err)
		}
	}
	if lo.Contains(expand, ExpandAppointment) && rx.AppointmentID != nil {
		if view.Appointment, err = s.appointments.GetAppointment(ctx, *rx.AppointmentID); err != nil {
			return nil, fmt.Errorf("expand appointment: %w", err)
		}
	}
	return view, nil
}

func (s *Service) List(ctx context.Context, f Filter) ([]*Prescription, int, error) {
	return s.repo.List(ctx, f)
}
