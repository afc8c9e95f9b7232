package billing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hms/hms/internal/domain/scheduling"
	"github.com/hms/hms/internal/platform/apperr"
	"github.com/hms/hms/internal/platform/auth"
	"github.com/hms/hms/internal/platform/events"
	"github.com/hms/hms/internal/platform/validation"
	"github.com/hms/hms/pkg/codegen"
)

// AppointmentLookup resolves appointments by id.
type AppointmentLookup interface {
	GetAppointment(ctx context.Context, id uuid.UUID) (*scheduling.Appointment, error)
}

// transitions lists the statuses reachable from each payment status.
var transitions = map[string]map[string]bool{
	StatusPending:   {StatusCompleted: true},
	StatusCompleted: {StatusRefunded: true},
	StatusRefunded:  {},
}

var validMethods = map[string]bool{MethodCash: true, MethodCard: true, MethodInsurance: true}

type Service struct {
	repo         Repository
	patients     scheduling.PatientLookup
	appointments AppointmentLookup
	receipts     codegen.Generator
	loc          *time.Location
	events       *events.Emitter
	logger       zerolog.Logger
	now          func() time.Time
}

func NewService(repo Repository, patients scheduling.PatientLookup, appointments AppointmentLookup,
	receiptPrefix string, loc *time.Location, emitter *events.Emitter, logger zerolog.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	s := &Service{
		repo:         repo,
		patients:     patients,
		appointments: appointments,
		loc:          loc,
		events:       emitter,
		logger:       logger,
		now:          time.Now,
	}
	s.receipts = newReceiptGenerator(receiptPrefix, loc, func() time.Time { return s.now() })
	return s
}

// Create records a payment and issues its receipt number. Completed
// payments get PaidAt set to now.
func (s *Service) Create(ctx context.Context, in CreateInput) (*Payment, error) {
	if err := validation.Struct(&in); err != nil {
		return nil, err
	}
	patientID := uuid.MustParse(in.PatientID)
	if _, err := s.patients.Get(ctx, patientID); err != nil {
		return nil, err
	}

	p := &Payment{
		PatientID:             patientID,
		Amount:                *in.Amount,
		Currency:              in.Currency,
		Method:                in.Method,
		Status:                in.Status,
		Description:           in.Description,
		InsuranceProvider:     in.InsuranceProvider,
		InsurancePolicyNumber: in.InsurancePolicyNumber,
	}
	if in.AppointmentID != nil {
		apptID := uuid.MustParse(*in.AppointmentID)
		a, err := s.appointments.GetAppointment(ctx, apptID)
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, apperr.InvalidRequest("appointment %s does not exist", apptID)
		}
		if err != nil {
			return nil, err
		}
		if a.PatientID != patientID {
			return nil, apperr.InvalidRequest("appointment %s belongs to a different patient", apptID)
		}
		p.AppointmentID = &apptID
	}
	if id, err := uuid.Parse(auth.UserIDFromContext(ctx)); err == nil {
		p.CreatedBy = &id
	}
	if p.Status == StatusCompleted {
		paid := s.now().UTC()
		p.PaidAt = &paid
	}

	if err := s.issue(ctx, p); err != nil {
		return nil, err
	}

	if p.Status == StatusCompleted {
		s.emit(ctx, events.PaymentCompleted, p)
	}
	return p, nil
}

func (s *Service) emit(ctx context.Context, eventType string, p *Payment) {
	s.events.Emit(ctx, events.New(eventType, events.TopicPayments, "payment", p.ID.String(),
		map[string]any{
			"receiptNumber": p.ReceiptNumber,
			"patientId":     p.PatientID,
			"amount":        p.Amount,
			"currency":      p.Currency,
			"method":        p.Method,
		},
		"patient:"+p.PatientID.String(), "role:"+auth.RoleAccountant))
}

func (s *Service) view(ctx context.Context, p *Payment) (*View, error) {
	v := &View{Payment: p}
	var err error
	if v.Patient, err = s.patients.Get(ctx, p.PatientID); err != nil {
		return nil, fmt.Errorf("load patient: %w", err)
	}
	if p.AppointmentID != nil {
		if v.Appointment, err = s.appointments.GetAppointment(ctx, *p.AppointmentID); err != nil {
			return nil, fmt.Errorf("load appointment: %w", err)
		}
	}
	return v, nil
}

// Get returns the payment with its patient and appointment attached.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*View, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, p)
}

func (s *Service) GetByReceipt(ctx context.Context, receipt string) (*View, error) {
	p, err := s.repo.GetByReceipt(ctx, strings.ToUpper(strings.TrimSpace(receipt)))
	if err != nil {
		return nil, err
	}
	return s.view(ctx, p)
}

func (s *Service) List(ctx context.Context, f Filter) ([]*Payment, int, error) {
	var fields []apperr.FieldError
	if f.Status != "" && transitions[f.Status] == nil {
		fields = append(fields, apperr.FieldError{Field: "status", Message: "must be one of: pending, completed, refunded"})
	}
	if f.Method != "" && !validMethods[f.Method] {
		fields = append(fields, apperr.FieldError{Field: "method", Message: "must be one of: cash, card, insurance"})
	}
	from, to, rangeErrs := s.dateRange(f.From, f.To, false)
	fields = append(fields, rangeErrs...)
	if len(fields) > 0 {
		return nil, 0, apperr.Validation(fields...)
	}
	f.CreatedFrom, f.CreatedBefore = from, to
	return s.repo.List(ctx, f)
}

// Complete settles a pending payment.
func (s *Service) Complete(ctx context.Context, id uuid.UUID) (*Payment, error) {
	p, err := s.transition(ctx, id, StatusCompleted, func(p *Payment, now time.Time) {
		p.PaidAt = &now
	})
	if err != nil {
		return nil, err
	}
	s.emit(ctx, events.PaymentCompleted, p)
	return p, nil
}

// Refund reverses a completed payment. Refunded payments are final.
func (s *Service) Refund(ctx context.Context, id uuid.UUID, in RefundInput) (*Payment, error) {
	if err := validation.Struct(&in); err != nil {
		return nil, err
	}
	p, err := s.transition(ctx, id, StatusRefunded, func(p *Payment, now time.Time) {
		p.RefundedAt = &now
		p.RefundReason = &in.Reason
	})
	if err != nil {
		return nil, err
	}
	s.emit(ctx, events.PaymentRefunded, p)
	return p, nil
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, to string, apply func(*Payment, time.Time)) (*Payment, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	from := p.Status
	if !transitions[from][to] {
		return nil, apperr.InvalidTransition(from, to)
	}
	p.Status = to
	apply(p, s.now().UTC())

	ok, err := s.repo.Transition(ctx, p, from)
	if err != nil {
		return nil, fmt.Errorf("update payment: %w", err)
	}
	if !ok {
		// Someone else moved the payment between our read and write.
		current, err := s.repo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, apperr.InvalidTransition(current.Status, to)
	}
	return p, nil
}

// Summary totals the payments created between two local dates, inclusive,
// in one currency. Both dates default to today.
func (s *Service) Summary(ctx context.Context, fromDate, toDate, currency string) (*Summary, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = DefaultCurrency
	}
	from, to, fields := s.dateRange(fromDate, toDate, true)
	if len(currency) != 3 {
		fields = append(fields, apperr.FieldError{Field: "currency", Message: "must be a 3-letter currency code"})
	}
	if len(fields) > 0 {
		return nil, apperr.Validation(fields...)
	}

	rows, err := s.repo.Summary(ctx, from, to, currency)
	if err != nil {
		return nil, fmt.Errorf("summarize payments: %w", err)
	}

	sum := &Summary{
		From:     from.Format(time.DateOnly),
		To:       to.AddDate(0, 0, -1).Format(time.DateOnly),
		Currency: currency,
		ByMethod: map[string]Totals{},
		ByStatus: map[string]Totals{},
	}
	for _, r := range rows {
		sum.ByMethod[r.Method] = addTotals(sum.ByMethod[r.Method], r)
		sum.ByStatus[r.Status] = addTotals(sum.ByStatus[r.Status], r)
		switch r.Status {
		case StatusCompleted:
			sum.Collected = addTotals(sum.Collected, r)
		case StatusRefunded:
			sum.Refunded = addTotals(sum.Refunded, r)
		case StatusPending:
			sum.Pending = addTotals(sum.Pending, r)
		}
	}
	return sum, nil
}

func addTotals(t Totals, r SummaryRow) Totals {
	return Totals{Count: t.Count + r.Count, Amount: t.Amount + r.Amount}
}

// dateRange turns inclusive local dates into [from, to) instants. Empty
// bounds stay zero unless defaultToday is set.
func (s *Service) dateRange(fromDate, toDate string, defaultToday bool) (time.Time, time.Time, []apperr.FieldError) {
	var fields []apperr.FieldError
	parse := func(field, v string) time.Time {
		if v == "" {
			if !defaultToday {
				return time.Time{}
			}
			v = s.now().In(s.loc).Format(time.DateOnly)
		}
		t, err := time.ParseInLocation(time.DateOnly, v, s.loc)
		if err != nil {
			fields = append(fields, apperr.FieldError{Field: field, Message: "must be a date in YYYY-MM-DD format"})
		}
		return t
	}
	from := parse("from", fromDate)
	to := parse("to", toDate)
	if !to.IsZero() {
		to = to.AddDate(0, 0, 1)
	}
	if len(fields) == 0 && !from.IsZero() && !to.IsZero() && !from.Before(to) {
		fields = append(fields, apperr.FieldError{Field: "to", Message: "must not be before from"})
	}
	return from, to, fields
}
