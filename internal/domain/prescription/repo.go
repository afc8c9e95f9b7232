package prescription

import (
	"context"

	"github.com/google/uuid"
)

// Repository has no update or delete: prescriptions are immutable.
type Repository interface {
	Create(ctx context.Context, p *Prescription) error
	GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error)
	List(ctx context.Context, f Filter) ([]*Prescription, int, error)
}
