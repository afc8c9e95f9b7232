package patient

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hms/hms/internal/platform/apperr"
)

// Patient is a registered patient. PatientCode is assigned once on
// registration and never changes; patients are deactivated, never deleted.
type Patient struct {
	ID                    uuid.UUID  `db:"id" json:"id"`
	PatientCode           string     `db:"patient_code" json:"patientCode"`
	FirstName             string     `db:"first_name" json:"firstName"`
	LastName              string     `db:"last_name" json:"lastName"`
	DateOfBirth           string     `db:"date_of_birth" json:"dateOfBirth"`
	Gender                string     `db:"gender" json:"gender"`
	Phone                 string     `db:"phone" json:"phone"`
	Email                 *string    `db:"email" json:"email,omitempty"`
	Address               *string    `db:"address" json:"address,omitempty"`
	BloodType             *string    `db:"blood_type" json:"bloodType,omitempty"`
	EmergencyContactName  *string    `db:"emergency_contact_name" json:"emergencyContactName,omitempty"`
	EmergencyContactPhone *string    `db:"emergency_contact_phone" json:"emergencyContactPhone,omitempty"`
	Allergies             *string    `db:"allergies" json:"allergies,omitempty"`
	MedicalHistory        *string    `db:"medical_history" json:"medicalHistory,omitempty"`
	IsActive              bool       `db:"is_active" json:"isActive"`
	CreatedBy             *uuid.UUID `db:"created_by" json:"createdBy,omitempty"`
	CreatedAt             time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt             time.Time  `db:"updated_at" json:"updatedAt"`
}

func (p *Patient) FullName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

type CreatePatientInput struct {
	FirstName             string  `json:"firstName" validate:"required,max=100"`
	LastName              string  `json:"lastName" validate:"required,max=100"`
	DateOfBirth           string  `json:"dateOfBirth" validate:"required,isodate"`
	Gender                string  `json:"gender" validate:"required,oneof=male female other"`
	Phone                 string  `json:"phone" validate:"required,phone"`
	Email                 *string `json:"email" validate:"omitempty,email,max=254"`
	Address               *string `json:"address" validate:"omitempty,max=500"`
	BloodType             *string `json:"bloodType" validate:"omitempty,oneof=A+ A- B+ B- AB+ AB- O+ O-"`
	EmergencyContactName  *string `json:"emergencyContactName" validate:"omitempty,max=200"`
	EmergencyContactPhone *string `json:"emergencyContactPhone" validate:"omitempty,phone"`
	Allergies             *string `json:"allergies" validate:"omitempty,max=2000"`
	MedicalHistory        *string `json:"medicalHistory" validate:"omitempty,max=10000"`
	IsActive              *bool   `json:"isActive"`

	// today is the local date used to reject future birth dates.
	today string
}

func (in *CreatePatientInput) ApplyDefaults() {
	if in.IsActive == nil {
		active := true
		in.IsActive = &active
	}
}

func (in *CreatePatientInput) CrossValidate() []apperr.FieldError {
	return birthDateRule(in.DateOfBirth, in.today)
}

// UpdatePatientInput is a partial update. It has no patientCode field, so
// strict decoding rejects any attempt to change the code.
type UpdatePatientInput struct {
	FirstName             *string `json:"firstName" validate:"omitempty,min=1,max=100"`
	LastName              *string `json:"lastName" validate:"omitempty,min=1,max=100"`
	DateOfBirth           *string `json:"dateOfBirth" validate:"omitempty,isodate"`
	Gender                *string `json:"gender" validate:"omitempty,oneof=male female other"`
	Phone                 *string `json:"phone" validate:"omitempty,phone"`
	Email                 *string `json:"email" validate:"omitempty,email,max=254"`
	Address               *string `json:"address" validate:"omitempty,max=500"`
	BloodType             *string `json:"bloodType" validate:"omitempty,oneof=A+ A- B+ B- AB+ AB- O+ O-"`
	EmergencyContactName  *string `json:"emergencyContactName" validate:"omitempty,max=200"`
	EmergencyContactPhone *string `json:"emergencyContactPhone" validate:"omitempty,phone"`
	Allergies             *string `json:"allergies" validate:"omitempty,max=2000"`
	MedicalHistory        *string `json:"medicalHistory" validate:"omitempty,max=10000"`

	today string
}

func (in *UpdatePatientInput) CrossValidate() []apperr.FieldError {
	if in.DateOfBirth == nil {
		return nil
	}
	return birthDateRule(*in.DateOfBirth, in.today)
}

func birthDateRule(dob, today string) []apperr.FieldError {
	if dob == "" || today == "" {
		return nil
	}
	if _, err := time.Parse(time.DateOnly, dob); err != nil {
		return nil
	}
	if dob > today {
		return []apperr.FieldError{{Field: "dateOfBirth", Message: "must not be in the future"}}
	}
	return nil
}

// Filter narrows List. Query matches name, phone or patient code.
type Filter struct {
	Query      string
	ActiveOnly bool
	Limit      int
	Offset     int
}
