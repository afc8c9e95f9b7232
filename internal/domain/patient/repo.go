package patient

import (
	"context"

	"github.com/google/uuid"
)

// CodeConstraint is the unique constraint guarding patient codes.
const CodeConstraint = "patient_patient_code_key"

// Repository persists patients. Create returns the driver's unique
// violation untouched so the caller can retry with a fresh code; lookups
// of a missing patient return an apperr NotFound error.
type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetByCode(ctx context.Context, code string) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	SetActive(ctx context.Context, id uuid.UUID, active bool) error
	List(ctx context.Context, f Filter) ([]*Patient, int, error)
}
