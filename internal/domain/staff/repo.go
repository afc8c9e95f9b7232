package staff

import (
	"context"

	"github.com/google/uuid"
)

// UserRepository persists staff accounts. Lookups of a missing user return
// an apperr NotFound error.
type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	Update(ctx context.Context, u *User) error
	List(ctx context.Context, f UserFilter) ([]*User, int, error)
}

// ScheduleRepository persists doctors' weekly hours and leaves.
type ScheduleRepository interface {
	ReplaceWorkingHours(ctx context.Context, doctorID uuid.UUID, hours []*WorkingHours) error
	ListWorkingHours(ctx context.Context, doctorID uuid.UUID) ([]*WorkingHours, error)
	CreateLeave(ctx context.Context, l *Leave) error
	ListLeaves(ctx context.Context, doctorID uuid.UUID, from string) ([]*Leave, error)
	DeleteLeave(ctx context.Context, doctorID, leaveID uuid.UUID) error
	// LeaveOn returns the leave covering day, or nil.
	LeaveOn(ctx context.Context, doctorID uuid.UUID, day string) (*Leave, error)
}
