package staff

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hms/hms/internal/platform/apperr"
	"github.com/hms/hms/internal/platform/auth"
)

// User is a staff member who can sign in. Doctors are users with role
// "doctor"; their working hours and leaves hang off the user id.
type User struct {
	ID              uuid.UUID  `db:"id" json:"id"`
	Email           string     `db:"email" json:"email"`
	PasswordHash    string     `db:"password_hash" json:"-"`
	Role            string     `db:"role" json:"role"`
	FirstName       string     `db:"first_name" json:"firstName"`
	LastName        string     `db:"last_name" json:"lastName"`
	Phone           *string    `db:"phone" json:"phone,omitempty"`
	Specialization  *string    `db:"specialization" json:"specialization,omitempty"`
	Department      *string    `db:"department" json:"department,omitempty"`
	LicenseNumber   *string    `db:"license_number" json:"licenseNumber,omitempty"`
	ConsultationFee *float64   `db:"consultation_fee" json:"consultationFee,omitempty"`
	IsActive        bool       `db:"is_active" json:"isActive"`
	LastLoginAt     *time.Time `db:"last_login_at" json:"lastLoginAt,omitempty"`
	CreatedAt       time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time  `db:"updated_at" json:"updatedAt"`
}

func (u *User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

func (u *User) IsDoctor() bool { return u.Role == auth.RoleDoctor }

func (u *User) IsAdmin() bool { return auth.IsAdminRole(u.Role) }

// WorkingHours is one shift of a doctor's weekly schedule.
type WorkingHours struct {
	ID          uuid.UUID `db:"id" json:"id"`
	DoctorID    uuid.UUID `db:"doctor_id" json:"doctorId"`
	DayOfWeek   int       `db:"day_of_week" json:"dayOfWeek"`
	StartTime   string    `db:"start_time" json:"startTime"`
	EndTime     string    `db:"end_time" json:"endTime"`
	SlotMinutes int       `db:"slot_minutes" json:"slotMinutes"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}

// Leave blocks a doctor for whole days, StartDate..EndDate inclusive.
type Leave struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	DoctorID  uuid.UUID  `db:"doctor_id" json:"doctorId"`
	StartDate string     `db:"start_date" json:"startDate"`
	EndDate   string     `db:"end_date" json:"endDate"`
	Reason    *string    `db:"reason" json:"reason,omitempty"`
	CreatedBy *uuid.UUID `db:"created_by" json:"createdBy,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"createdAt"`
}

// Covers reports whether day (YYYY-MM-DD) falls inside the leave.
func (l *Leave) Covers(day string) bool {
	return l.StartDate <= day && day <= l.EndDate
}

// Window is a bookable range [Start, End) in minutes after local midnight.
type Window struct {
	Start       int `json:"start"`
	End         int `json:"end"`
	SlotMinutes int `json:"slotMinutes"`
}

func (w Window) Contains(minute int) bool {
	return minute >= w.Start && minute < w.End
}

const DefaultSlotMinutes = 15

type CreateUserInput struct {
	Email           string   `json:"email" validate:"required,email,max=254"`
	Password        string   `json:"password" validate:"required,min=8,max=72"`
	Role            string   `json:"role" validate:"required,oneof=doctor receptionist nurse pharmacist accountant admin super_admin"`
	FirstName       string   `json:"firstName" validate:"required,max=100"`
	LastName        string   `json:"lastName" validate:"required,max=100"`
	Phone           *string  `json:"phone" validate:"omitempty,phone"`
	Specialization  *string  `json:"specialization" validate:"omitempty,max=100"`
	Department      *string  `json:"department" validate:"omitempty,max=100"`
	LicenseNumber   *string  `json:"licenseNumber" validate:"omitempty,max=50"`
	ConsultationFee *float64 `json:"consultationFee" validate:"omitempty,gte=0"`
	IsActive        *bool    `json:"isActive"`
}

func (in *CreateUserInput) ApplyDefaults() {
	if in.IsActive == nil {
		active := true
		in.IsActive = &active
	}
}

// UpdateUserInput carries profile fields only. Role and email are fixed
// at creation.
type UpdateUserInput struct {
	FirstName       *string  `json:"firstName" validate:"omitempty,min=1,max=100"`
	LastName        *string  `json:"lastName" validate:"omitempty,min=1,max=100"`
	Phone           *string  `json:"phone" validate:"omitempty,phone"`
	Specialization  *string  `json:"specialization" validate:"omitempty,max=100"`
	Department      *string  `json:"department" validate:"omitempty,max=100"`
	LicenseNumber   *string  `json:"licenseNumber" validate:"omitempty,max=50"`
	ConsultationFee *float64 `json:"consultationFee" validate:"omitempty,gte=0"`
}

type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type LoginResult struct {
	Token     string    `json:"token"`
	TokenType string    `json:"tokenType"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      *User     `json:"user"`
}

type ChangePasswordInput struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=8,max=72"`
}

type ShiftInput struct {
	DayOfWeek   *int   `json:"dayOfWeek" validate:"required,gte=0,lte=6"`
	StartTime   string `json:"startTime" validate:"required,hhmm"`
	EndTime     string `json:"endTime" validate:"required,hhmm"`
	SlotMinutes int    `json:"slotMinutes" validate:"omitempty,gte=5,lte=240"`
}

// WorkingHoursInput replaces a doctor's whole week. An empty list clears
// it, after which the configured defaults apply.
type WorkingHoursInput struct {
	Shifts []ShiftInput `json:"shifts" validate:"max=50,dive"`
}

func (in *WorkingHoursInput) ApplyDefaults() {
	for i := range in.Shifts {
		if in.Shifts[i].SlotMinutes == 0 {
			in.Shifts[i].SlotMinutes = DefaultSlotMinutes
		}
	}
}

func (in *WorkingHoursInput) CrossValidate() []apperr.FieldError {
	var out []apperr.FieldError
	for i, s := range in.Shifts {
		if s.StartTime != "" && s.EndTime != "" && s.EndTime <= s.StartTime {
			out = append(out, apperr.FieldError{
				Field:   shiftField(i, "endTime"),
				Message: "must be after startTime",
			})
		}
	}
	return out
}

type LeaveInput struct {
	StartDate string  `json:"startDate" validate:"required,isodate"`
	EndDate   string  `json:"endDate" validate:"required,isodate"`
	Reason    *string `json:"reason" validate:"omitempty,max=500"`
}

func (in *LeaveInput) CrossValidate() []apperr.FieldError {
	if in.StartDate != "" && in.EndDate != "" && in.EndDate < in.StartDate {
		return []apperr.FieldError{{Field: "endDate", Message: "must not be before startDate"}}
	}
	return nil
}

// UserFilter narrows ListUsers.
type UserFilter struct {
	Role       string
	ActiveOnly bool
	Query      string
	Limit      int
	Offset     int
}
