package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository persists payments. A duplicate receipt number is returned as
// the raw unique violation on ReceiptConstraint.
type Repository interface {
	Create(ctx context.Context, p *Payment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Payment, error)
	GetByReceipt(ctx context.Context, receipt string) (*Payment, error)
	// Transition writes p's status fields only if the stored status is
	// still from. It reports false when another writer got there first.
	Transition(ctx context.Context, p *Payment, from string) (bool, error)
	List(ctx context.Context, f Filter) ([]*Payment, int, error)
	// Summary groups payments created in [from, to) by method and status.
	Summary(ctx context.Context, from, to time.Time, currency string) ([]SummaryRow, error)
}
