package billing

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/hms/hms/internal/domain/scheduling"
	"github.com/hms/hms/internal/platform/apperr"
	"github.com/hms/hms/internal/platform/events"
)

func fieldErrors(t *testing.T, err error) map[string]bool {
	t.Helper()
	ae, ok := apperr.As(err)
	if !ok || ae.Kind != apperr.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	out := map[string]bool{}
	for _, fe := range ae.FieldErrors {
		out[fe.Field] = true
	}
	return out
}

func TestCreate_Defaults(t *testing.T) {
	f := newFixture()
	p, err := f.svc.Create(accountantCtx(), f.input(125.5, MethodCash))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if p.Status != StatusCompleted || p.Currency != "USD" {
		t.Errorf("unexpected defaults: status=%s currency=%s", p.Status, p.Currency)
	}
	if p.PaidAt == nil || p.CreatedBy == nil {
		t.Errorf("expected paidAt and createdBy, got %+v", p)
	}
	if got := f.events.Types(); len(got) != 1 || got[0] != events.PaymentCompleted {
		t.Errorf("expected payment.completed, got %v", got)
	}
}

func TestCreate_NegativeAmount(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Create(accountantCtx(), f.input(-5, MethodCash))
	if fields := fieldErrors(t, err); !fields["amount"] {
		t.Errorf("expected field error on amount, got %v", fields)
	}
	if f.repo.creates != 0 {
		t.Error("nothing should be persisted")
	}
}

func TestCreate_ZeroAmountAllowed(t *testing.T) {
	f := newFixture()
	if _, err := f.svc.Create(accountantCtx(), f.input(0, MethodCash)); err != nil {
		t.Errorf("zero amount should be accepted: %v", err)
	}
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture()

	_, err := f.svc.Create(accountantCtx(), CreateInput{PatientID: "x", Method: "bitcoin", Currency: "DOLLARS", Status: "refunded"})
	fields := fieldErrors(t, err)
	for _, name := range []string{"patientId", "amount", "method", "currency", "status"} {
		if !fields[name] {
			t.Errorf("expected field error on %s, got %v", name, fields)
		}
	}

	_, err = f.svc.Create(accountantCtx(), f.input(300, MethodInsurance))
	fields = fieldErrors(t, err)
	if !fields["insuranceProvider"] || !fields["insurancePolicyNumber"] {
		t.Errorf("expected insurance field errors, got %v", fields)
	}

	in := f.input(300, MethodInsurance)
	in.InsuranceProvider = ptr("Acme Health")
	in.InsurancePolicyNumber = ptr("AH-99812")
	in.Currency = "eur"
	p, err := f.svc.Create(accountantCtx(), in)
	if err != nil {
		t.Fatalf("insurance payment: %v", err)
	}
	if p.Currency != "EUR" {
		t.Errorf("expected currency upper-cased, got %s", p.Currency)
	}
}

func TestCreate_References(t *testing.T) {
	f := newFixture()

	in := f.input(50, MethodCash)
	in.PatientID = uuid.NewString()
	if _, err := f.svc.Create(accountantCtx(), in); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("unknown patient: expected not found, got %v", err)
	}

	in = f.input(50, MethodCash)
	in.AppointmentID = ptr(uuid.NewString())
	if _, err := f.svc.Create(accountantCtx(), in); !apperr.Is(err, apperr.KindInvalidRequest) {
		t.Errorf("unknown appointment: expected invalid request, got %v", err)
	}

	in.AppointmentID = ptr(f.appointment.ID.String())
	p, err := f.svc.Create(accountantCtx(), in)
	if err != nil {
		t.Fatalf("with appointment: %v", err)
	}

	view, err := f.svc.Get(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if view.Patient == nil || view.Patient.ID != f.patient.ID {
		t.Errorf("expected patient attached, got %+v", view.Patient)
	}
	if view.Appointment == nil || view.Appointment.ID != f.appointment.ID {
		t.Errorf("expected appointment attached, got %+v", view.Appointment)
	}
}

func TestCreate_AppointmentOfAnotherPatient(t *testing.T) {
	f := newFixture()
	foreign := &scheduling.Appointment{ID: uuid.New(), PatientID: uuid.New()}
	f.svc.appointments = fakeAppointments{foreign.ID: foreign}

	in := f.input(50, MethodCash)
	in.AppointmentID = ptr(foreign.ID.String())
	if _, err := f.svc.Create(accountantCtx(), in); !apperr.Is(err, apperr.KindInvalidRequest) {
		t.Errorf("expected invalid request, got %v", err)
	}
}

func TestGetByReceipt(t *testing.T) {
	f := newFixture()
	p, _ := f.svc.Create(accountantCtx(), f.input(80, MethodCard))

	view, err := f.svc.GetByReceipt(context.Background(), " "+p.ReceiptNumber+" ")
	if err != nil {
		t.Fatalf("get by receipt: %v", err)
	}
	if view.ID != p.ID {
		t.Errorf("expected payment %s, got %s", p.ID, view.ID)
	}
	if _, err := f.svc.GetByReceipt(context.Background(), "RCP-20250101-NOPE"); !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestTransitions(t *testing.T) {
	f := newFixture()
	ctx := accountantCtx()

	in := f.input(60, MethodCard)
	in.Status = StatusPending
	p, err := f.svc.Create(ctx, in)
	if err != nil {
		t.Fatalf("create pending: %v", err)
	}
	if p.PaidAt != nil || len(f.events.Events()) != 0 {
		t.Error("pending payment must not be marked paid")
	}

	if _, err := f.svc.Refund(ctx, p.ID, RefundInput{Reason: "duplicate"}); !apperr.Is(err, apperr.KindInvalidTransition) {
		t.Errorf("refund pending: expected invalid transition, got %v", err)
	}

	completed, err := f.svc.Complete(ctx, p.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if completed.PaidAt == nil {
		t.Error("expected paidAt after completion")
	}
	if _, err := f.svc.Complete(ctx, p.ID); !apperr.Is(err, apperr.KindInvalidTransition) {
		t.Errorf("complete twice: expected invalid transition, got %v", err)
	}

	if _, err := f.svc.Refund(ctx, p.ID, RefundInput{}); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("refund without reason: expected validation error, got %v", err)
	}
	refunded, err := f.svc.Refund(ctx, p.ID, RefundInput{Reason: "service not rendered"})
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if refunded.RefundedAt == nil || *refunded.RefundReason != "service not rendered" {
		t.Errorf("unexpected refunded payment %+v", refunded)
	}

	for _, call := range []func() error{
		func() error { _, err := f.svc.Refund(ctx, p.ID, RefundInput{Reason: "again"}); return err },
		func() error { _, err := f.svc.Complete(ctx, p.ID); return err },
	} {
		if err := call(); !apperr.Is(err, apperr.KindInvalidTransition) {
			t.Errorf("refunded payment: expected invalid transition, got %v", err)
		}
	}

	want := []string{events.PaymentCompleted, events.PaymentRefunded}
	got := f.events.Types()
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("expected events %v, got %v", want, got)
	}
}

func TestList_Filters(t *testing.T) {
	f := newFixture()
	ctx := accountantCtx()
	f.svc.Create(ctx, f.input(10, MethodCash))
	f.svc.Create(ctx, f.input(20, MethodCard))
	pending := f.input(30, MethodCard)
	pending.Status = StatusPending
	f.svc.Create(ctx, pending)

	_, total, err := f.svc.List(ctx, Filter{Method: MethodCard, Limit: 10})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 2 {
		t.Errorf("expected 2 card payments, got %d", total)
	}

	_, total, _ = f.svc.List(ctx, Filter{Status: StatusPending, Limit: 10})
	if total != 1 {
		t.Errorf("expected 1 pending payment, got %d", total)
	}

	_, _, err = f.svc.List(ctx, Filter{Status: "lost", Method: "cheque", From: "yesterday"})
	fields := fieldErrors(t, err)
	if !fields["status"] || !fields["method"] || !fields["from"] {
		t.Errorf("unexpected field errors %v", fields)
	}

	_, _, err = f.svc.List(ctx, Filter{From: "2025-03-10", To: "2025-03-01"})
	if fields := fieldErrors(t, err); !fields["to"] {
		t.Errorf("expected inverted range error, got %v", fields)
	}
}

func TestSummary(t *testing.T) {
	f := newFixture()
	ctx := accountantCtx()
	cash, _ := f.svc.Create(ctx, f.input(100, MethodCash))
	f.svc.Create(ctx, f.input(50, MethodCash))
	f.svc.Create(ctx, f.input(70, MethodCard))
	pending := f.input(30, MethodCard)
	pending.Status = StatusPending
	f.svc.Create(ctx, pending)
	euro := f.input(999, MethodCash)
	euro.Currency = "EUR"
	f.svc.Create(ctx, euro)
	if _, err := f.svc.Refund(ctx, cash.ID, RefundInput{Reason: "overcharged"}); err != nil {
		t.Fatalf("refund: %v", err)
	}

	today := time.Now().UTC().Format(time.DateOnly)
	sum, err := f.svc.Summary(ctx, today, today, "")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if sum.Currency != "USD" || sum.From != today || sum.To != today {
		t.Errorf("unexpected header %+v", sum)
	}
	if sum.Collected != (Totals{Count: 2, Amount: 120}) {
		t.Errorf("unexpected collected %+v", sum.Collected)
	}
	if sum.Refunded != (Totals{Count: 1, Amount: 100}) {
		t.Errorf("unexpected refunded %+v", sum.Refunded)
	}
	if sum.Pending != (Totals{Count: 1, Amount: 30}) {
		t.Errorf("unexpected pending %+v", sum.Pending)
	}
	if sum.ByMethod[MethodCash] != (Totals{Count: 2, Amount: 150}) {
		t.Errorf("unexpected cash totals %+v", sum.ByMethod[MethodCash])
	}

	if _, err := f.svc.Summary(ctx, "2025-03-10", "2025-03-01", "USD"); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("expected validation error for inverted range, got %v", err)
	}
}
