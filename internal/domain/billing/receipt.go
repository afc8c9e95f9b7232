package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/hms/hms/internal/platform/apperr"
	"github.com/hms/hms/internal/platform/db"
	"github.com/hms/hms/pkg/codegen"
)

const (
	DefaultReceiptPrefix = "RCP"
	receiptLength        = 10
	receiptAttempts      = 5
)

// newReceiptGenerator issues RCP-YYYYMMDD-XXXXXXXXXX numbers. Ten characters
// from a 32-letter alphabet give 2^50 numbers per day.
func newReceiptGenerator(prefix string, loc *time.Location, now func() time.Time) codegen.Generator {
	if prefix == "" {
		prefix = DefaultReceiptPrefix
	}
	return codegen.Generator{Prefix: prefix, Length: receiptLength, Location: loc, Now: now}
}

// issue assigns a fresh receipt number and inserts p, drawing a new number
// whenever the insert collides with an existing receipt.
func (s *Service) issue(ctx context.Context, p *Payment) error {
	for attempt := 1; attempt <= receiptAttempts; attempt++ {
		receipt, err := s.receipts.Next()
		if err != nil {
			return fmt.Errorf("generate receipt number: %w", err)
		}
		p.ReceiptNumber = receipt

		err = s.repo.Create(ctx, p)
		if err == nil {
			return nil
		}
		if constraint, ok := db.IsUniqueViolation(err); !ok || constraint != ReceiptConstraint {
			return fmt.Errorf("create payment: %w", err)
		}
		s.logger.Warn().Str("receipt", receipt).Int("attempt", attempt).Msg("receipt number collision")
	}
	return apperr.Conflict("could not issue a unique receipt number, please retry")
}
