package scheduling

import (
	"time"

	"github.com/google/uuid"

	"github.com/hms/hms/internal/domain/patient"
	"github.com/hms/hms/internal/domain/staff"
)

// Appointment statuses.
const (
	StatusScheduled = "scheduled"
	StatusConfirmed = "confirmed"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// Appointment types.
const (
	TypeConsultation   = "consultation"
	TypeFollowUp       = "follow_up"
	TypeEmergency      = "emergency"
	TypeRoutineCheckup = "routine_checkup"
)

// TokenConstraint is the unique index over (doctor, day, token).
const TokenConstraint = "appointment_doctor_day_token_key"

// Appointment is a booking of a patient with a doctor. TokenNumber is the
// patient's place in the doctor's queue for AppointmentDate; it is unique
// per doctor-day and never reused, not even after a cancellation.
type Appointment struct {
	ID                 uuid.UUID  `db:"id" json:"id"`
	PatientID          uuid.UUID  `db:"patient_id" json:"patientId"`
	DoctorID           uuid.UUID  `db:"doctor_id" json:"doctorId"`
	ScheduledAt        time.Time  `db:"scheduled_at" json:"scheduledAt"`
	AppointmentDate    string     `db:"appointment_day" json:"appointmentDate"`
	AppointmentTime    string     `db:"appointment_time" json:"appointmentTime"`
	Type               string     `db:"type" json:"type"`
	Status             string     `db:"status" json:"status"`
	TokenNumber        int        `db:"token_number" json:"tokenNumber"`
	Reason             *string    `db:"reason" json:"reason,omitempty"`
	Notes              *string    `db:"notes" json:"notes,omitempty"`
	CancellationReason *string    `db:"cancellation_reason" json:"cancellationReason,omitempty"`
	CreatedBy          *uuid.UUID `db:"created_by" json:"createdBy,omitempty"`
	ConfirmedAt        *time.Time `db:"confirmed_at" json:"confirmedAt,omitempty"`
	CompletedAt        *time.Time `db:"completed_at" json:"completedAt,omitempty"`
	CancelledAt        *time.Time `db:"cancelled_at" json:"cancelledAt,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updatedAt"`
}

// AppointmentView is an appointment with related records attached at read
// time.
type AppointmentView struct {
	*Appointment
	Patient *patient.Patient `json:"patient,omitempty"`
	Doctor  *staff.User      `json:"doctor,omitempty"`
}

// BookingRequest asks for an appointment at a local date and time in the
// hospital's time zone.
type BookingRequest struct {
	PatientID string  `json:"patientId" validate:"required,uuid"`
	DoctorID  string  `json:"doctorId" validate:"required,uuid"`
	Date      string  `json:"appointmentDate" validate:"required,isodate"`
	Time      string  `json:"appointmentTime" validate:"required,hhmm"`
	Type      string  `json:"type" validate:"omitempty,oneof=consultation follow_up emergency routine_checkup"`
	Reason    *string `json:"reason" validate:"omitempty,max=500"`
	Notes     *string `json:"notes" validate:"omitempty,max=2000"`
}

func (r *BookingRequest) ApplyDefaults() {
	if r.Type == "" {
		r.Type = TypeConsultation
	}
}

// UpdateAppointmentInput changes status and/or free-text fields.
type UpdateAppointmentInput struct {
	Status             *string `json:"status" validate:"omitempty,oneof=scheduled confirmed completed cancelled"`
	Notes              *string `json:"notes" validate:"omitempty,max=2000"`
	Reason             *string `json:"reason" validate:"omitempty,max=500"`
	CancellationReason *string `json:"cancellationReason" validate:"omitempty,max=500"`
}

type CancelInput struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// Filter narrows Search. From and To are inclusive local dates.
type Filter struct {
	PatientID *uuid.UUID
	DoctorID  *uuid.UUID
	Status    string
	From      string
	To        string
	Limit     int
	Offset    int
}

// Slot is a bookable start time within a doctor's day.
type Slot struct {
	Time      string `json:"time"`
	Available bool   `json:"available"`
	Booked    int    `json:"booked"`
}
