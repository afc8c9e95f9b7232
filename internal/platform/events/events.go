// Package events carries domain notifications (appointment booked, payment
// refunded, ...) from services to subscribers. Publishing is best effort:
// a failed publish is logged and never fails the operation that caused it.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Event types.
const (
	PatientRegistered         = "patient.registered"
	PatientUpdated            = "patient.updated"
	PatientDeactivated        = "patient.deactivated"
	PatientReactivated        = "patient.reactivated"
	AppointmentBooked         = "appointment.booked"
	AppointmentStatusChanged  = "appointment.status_changed"
	PrescriptionCreated       = "prescription.created"
	PaymentCompleted          = "payment.completed"
	PaymentRefunded           = "payment.refunded"
	StaffCreated              = "staff.created"
	DoctorAvailabilityChanged = "doctor.availability_changed"
)

// Topics clients may subscribe to.
const (
	TopicPatients      = "patients"
	TopicAppointments  = "appointments"
	TopicPrescriptions = "prescriptions"
	TopicPayments      = "payments"
	TopicStaff         = "staff"
)

// Event is a single notification. Scopes are extra topics the event is
// also delivered to, such as "doctor:<id>" or "patient:<id>".
type Event struct {
	ID           string          `json:"id"`
	Type         string          `json:"type"`
	Topic        string          `json:"topic"`
	ResourceType string          `json:"resourceType"`
	ResourceID   string          `json:"resourceId,omitempty"`
	Scopes       []string        `json:"scopes,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
	Data         json.RawMessage `json:"data,omitempty"`
}

// New builds an event with a JSON payload. A payload that cannot be
// marshalled is dropped rather than failing the caller.
func New(eventType, topic, resourceType, resourceID string, payload any, scopes ...string) Event {
	var data json.RawMessage
	if payload != nil {
		if b, err := json.Marshal(payload); err == nil {
			data = b
		}
	}
	return Event{
		ID:           uuid.NewString(),
		Type:         eventType,
		Topic:        topic,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Scopes:       scopes,
		Timestamp:    time.Now().UTC(),
		Data:         data,
	}
}

// Publisher delivers events to subscribers.
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, evt Event) error

func (f PublisherFunc) Publish(ctx context.Context, evt Event) error { return f(ctx, evt) }

// Nop discards events.
var Nop Publisher = PublisherFunc(func(context.Context, Event) error { return nil })

type multi []Publisher

// Multi fans out to every publisher and joins their errors.
func Multi(pubs ...Publisher) Publisher {
	out := make(multi, 0, len(pubs))
	for _, p := range pubs {
		if p != nil {
			out = append(out, p)
		}
	}
	return out
}

func (m multi) Publish(ctx context.Context, evt Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, evt); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Emitter is what services hold: it publishes and logs failures.
type Emitter struct {
	pub    Publisher
	logger zerolog.Logger
}

func NewEmitter(pub Publisher, logger zerolog.Logger) *Emitter {
	if pub == nil {
		pub = Nop
	}
	return &Emitter{pub: pub, logger: logger}
}

// Emit publishes evt. Errors are logged at warn level and swallowed.
func (e *Emitter) Emit(ctx context.Context, evt Event) {
	if e == nil {
		return
	}
	if err := e.pub.Publish(context.WithoutCancel(ctx), evt); err != nil {
		e.logger.Warn().Err(err).
			Str("event_type", evt.Type).
			Str("resource_id", evt.ResourceID).
			Msg("event publish failed")
	}
}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, evt Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Types returns the recorded event types in order.
func (r *Recorder) Types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}
