package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository persists appointments. Missing appointments are reported as
// apperr NotFound; unique violations are returned untouched.
type Repository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// Update writes status, free-text fields and status timestamps when the
	// stored status still equals from. It reports false when another writer
	// changed the status first.
	Update(ctx context.Context, a *Appointment, from string) (bool, error)

	// LockDoctorDay serializes bookings for one doctor-day until the
	// enclosing transaction ends.
	LockDoctorDay(ctx context.Context, doctorID uuid.UUID, day string) error
	// MaxToken is the highest token issued for the doctor-day, cancelled
	// appointments included, or 0.
	MaxToken(ctx context.Context, doctorID uuid.UUID, day string) (int, error)
	// CountActiveAt counts non-cancelled appointments starting exactly at.
	CountActiveAt(ctx context.Context, doctorID uuid.UUID, at time.Time) (int, error)
	// ListByDoctorDay returns the doctor-day's appointments ordered by token.
	ListByDoctorDay(ctx context.Context, doctorID uuid.UUID, day string) ([]*Appointment, error)
	Search(ctx context.Context, f Filter) ([]*Appointment, int, error)

	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}
