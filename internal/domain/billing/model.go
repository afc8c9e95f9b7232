package billing

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hms/hms/internal/domain/patient"
	"github.com/hms/hms/internal/domain/scheduling"
	"github.com/hms/hms/internal/platform/apperr"
)

// Payment methods.
const (
	MethodCash      = "cash"
	MethodCard      = "card"
	MethodInsurance = "insurance"
)

// Payment statuses.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusRefunded  = "refunded"
)

// ReceiptConstraint is the unique index over receipt numbers.
const ReceiptConstraint = "payment_receipt_number_key"

const DefaultCurrency = "USD"

// Payment is money received from a patient, optionally for an appointment.
// ReceiptNumber is issued by the system and unique across all payments.
type Payment struct {
	ID                    uuid.UUID  `db:"id" json:"id"`
	ReceiptNumber         string     `db:"receipt_number" json:"receiptNumber"`
	PatientID             uuid.UUID  `db:"patient_id" json:"patientId"`
	AppointmentID         *uuid.UUID `db:"appointment_id" json:"appointmentId,omitempty"`
	Amount                float64    `db:"amount" json:"amount"`
	Currency              string     `db:"currency" json:"currency"`
	Method                string     `db:"method" json:"method"`
	Status                string     `db:"status" json:"status"`
	Description           *string    `db:"description" json:"description,omitempty"`
	InsuranceProvider     *string    `db:"insurance_provider" json:"insuranceProvider,omitempty"`
	InsurancePolicyNumber *string    `db:"insurance_policy_number" json:"insurancePolicyNumber,omitempty"`
	PaidAt                *time.Time `db:"paid_at" json:"paidAt,omitempty"`
	RefundedAt            *time.Time `db:"refunded_at" json:"refundedAt,omitempty"`
	RefundReason          *string    `db:"refund_reason" json:"refundReason,omitempty"`
	CreatedBy             *uuid.UUID `db:"created_by" json:"createdBy,omitempty"`
	CreatedAt             time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt             time.Time  `db:"updated_at" json:"updatedAt"`
}

// View is what a receipt is printed from: the payment with its patient and
// appointment resolved at read time.
type View struct {
	*Payment
	Patient     *patient.Patient        `json:"patient,omitempty"`
	Appointment *scheduling.Appointment `json:"appointment,omitempty"`
}

type CreateInput struct {
	PatientID             string   `json:"patientId" validate:"required,uuid"`
	AppointmentID         *string  `json:"appointmentId" validate:"omitempty,uuid"`
	Amount                *float64 `json:"amount" validate:"required,gte=0,lte=100000000"`
	Currency              string   `json:"currency" validate:"len=3,alpha"`
	Method                string   `json:"method" validate:"required,oneof=cash card insurance"`
	Status                string   `json:"status" validate:"oneof=pending completed"`
	Description           *string  `json:"description" validate:"omitempty,max=500"`
	InsuranceProvider     *string  `json:"insuranceProvider" validate:"omitempty,max=200"`
	InsurancePolicyNumber *string  `json:"insurancePolicyNumber" validate:"omitempty,max=100"`
}

func (in *CreateInput) ApplyDefaults() {
	in.Currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	if in.Currency == "" {
		in.Currency = DefaultCurrency
	}
	if in.Status == "" {
		in.Status = StatusCompleted
	}
}

// CrossValidate requires the insurance details for insurance payments.
func (in *CreateInput) CrossValidate() []apperr.FieldError {
	if in.Method != MethodInsurance {
		return nil
	}
	var fields []apperr.FieldError
	if in.InsuranceProvider == nil || strings.TrimSpace(*in.InsuranceProvider) == "" {
		fields = append(fields, apperr.FieldError{Field: "insuranceProvider", Message: "is required for insurance payments"})
	}
	if in.InsurancePolicyNumber == nil || strings.TrimSpace(*in.InsurancePolicyNumber) == "" {
		fields = append(fields, apperr.FieldError{Field: "insurancePolicyNumber", Message: "is required for insurance payments"})
	}
	return fields
}

type RefundInput struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// Filter narrows List. From and To are inclusive local dates; Service.List
// turns them into the CreatedFrom/CreatedBefore instants the repository
// filters on.
type Filter struct {
	PatientID     *uuid.UUID
	AppointmentID *uuid.UUID
	Status        string
	Method        string
	From          string
	To            string
	CreatedFrom   time.Time
	CreatedBefore time.Time
	Limit         int
	Offset        int
}

// SummaryRow is one (method, status) group of a summary query.
type SummaryRow struct {
	Method string  `db:"method"`
	Status string  `db:"status"`
	Count  int     `db:"count"`
	Amount float64 `db:"amount"`
}

type Totals struct {
	Count  int     `json:"count"`
	Amount float64 `json:"amount"`
}

// Summary aggregates payments in one currency over a date range.
type Summary struct {
	From      string            `json:"from"`
	To        string            `json:"to"`
	Currency  string            `json:"currency"`
	Collected Totals            `json:"collected"`
	Refunded  Totals            `json:"refunded"`
	Pending   Totals            `json:"pending"`
	ByMethod  map[string]Totals `json:"byMethod"`
	ByStatus  map[string]Totals `json:"byStatus"`
}
