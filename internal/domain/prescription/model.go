package prescription

import (
	"time"

	"github.com/google/uuid"

	"github.com/hms/hms/internal/domain/patient"
	"github.com/hms/hms/internal/domain/scheduling"
	"github.com/hms/hms/internal/domain/staff"
)

// Medication is one line of a prescription.
type Medication struct {
	Name         string  `json:"name" validate:"required,max=200"`
	Dosage       string  `json:"dosage" validate:"required,max=100"`
	Frequency    string  `json:"frequency" validate:"required,max=100"`
	Duration     *string `json:"duration,omitempty" validate:"omitempty,max=100"`
	Quantity     *int    `json:"quantity,omitempty" validate:"omitempty,gte=1,lte=10000"`
	Route        *string `json:"route,omitempty" validate:"omitempty,max=50"`
	Instructions *string `json:"instructions,omitempty" validate:"omitempty,max=500"`
}

// Prescription is written once by a doctor and never edited. Medications
// keep the order in which they were prescribed.
type Prescription struct {
	ID            uuid.UUID    `db:"id" json:"id"`
	PatientID     uuid.UUID    `db:"patient_id" json:"patientId"`
	DoctorID      uuid.UUID    `db:"doctor_id" json:"doctorId"`
	AppointmentID *uuid.UUID   `db:"appointment_id" json:"appointmentId,omitempty"`
	Diagnosis     string       `db:"diagnosis" json:"diagnosis"`
	Medications   []Medication `db:"medications" json:"medications"`
	Instructions  *string      `db:"instructions" json:"instructions,omitempty"`
	Notes         *string      `db:"notes" json:"notes,omitempty"`
	FollowUpDate  *string      `db:"follow_up_date" json:"followUpDate,omitempty"`
	CreatedBy     *uuid.UUID   `db:"created_by" json:"createdBy,omitempty"`
	CreatedAt     time.Time    `db:"created_at" json:"createdAt"`
}

// View is a prescription with its references resolved at read time.
type View struct {
	*Prescription
	Patient     *patient.Patient        `json:"patient,omitempty"`
	Doctor      *staff.User             `json:"doctor,omitempty"`
	Appointment *scheduling.Appointment `json:"appointment,omitempty"`
}

// CreateInput is the body of POST /prescriptions. DoctorID may be omitted
// when the caller is the prescribing doctor.
type CreateInput struct {
	PatientID     string       `json:"patientId" validate:"required,uuid"`
	DoctorID      string       `json:"doctorId" validate:"omitempty,uuid"`
	AppointmentID *string      `json:"appointmentId" validate:"omitempty,uuid"`
	Diagnosis     string       `json:"diagnosis" validate:"required,max=1000"`
	Medications   []Medication `json:"medications" validate:"required,min=1,max=50,dive"`
	Instructions  *string      `json:"instructions" validate:"omitempty,max=2000"`
	Notes         *string      `json:"notes" validate:"omitempty,max=2000"`
	FollowUpDate  *string      `json:"followUpDate" validate:"omitempty,isodate"`
}

type Filter struct {
	PatientID     *uuid.UUID
	DoctorID      *uuid.UUID
	AppointmentID *uuid.UUID
	Limit         int
	Offset        int
}
