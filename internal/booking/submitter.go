// Package booking turns a completed scheduling selection into an appointment
// on the backend.
package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/osu-healthapp/portal-gateway/internal/healthapi"
	"github.com/osu-healthapp/portal-gateway/internal/observability/metrics"
	"github.com/osu-healthapp/portal-gateway/pkg/logging"
)

var bookingTracer = otel.Tracer("healthapp.internal.booking")

var (
	// ErrSubmitInFlight means a submission is already running for this view.
	ErrSubmitInFlight = errors.New("booking: submission already in flight")
	// ErrDuplicate means an identical submission was made moments ago.
	ErrDuplicate = errors.New("booking: duplicate submission")
)

// Selection is the booking view's input. All four user-facing fields must be
// present simultaneously before submission is enabled.
type Selection struct {
	ProviderID int64
	Date       string // YYYY-MM-DD
	Slot       string // HH:MM
	Reason     string

	// PatientID is set only when staff book on a patient's behalf.
	PatientID *int64
}

// CanSubmit reports whether every required field is set. It must be
// re-evaluated on every change to any of the four.
func (s Selection) CanSubmit() bool {
	return s.ProviderID != 0 && s.Date != "" && s.Slot != "" && strings.TrimSpace(s.Reason) != ""
}

// API is the slice of the backend client the submitter needs.
type API interface {
	CreateAppointment(ctx context.Context, req healthapi.CreateAppointmentRequest) (healthapi.Appointment, error)
}

// Guard deduplicates identical submissions, e.g. across gateway replicas.
// Acquire returns false when the key was claimed recently. Release drops a
// claim early so a submission the backend rejected can be retried at once.
type Guard interface {
	Acquire(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// Submitter books appointments of a fixed, configured length.
type Submitter struct {
	api      API
	logger   *logging.Logger
	metrics  *metrics.PortalMetrics
	guard    Guard
	duration time.Duration
	loc      *time.Location

	submitting atomic.Bool
}

// SubmitterOption configures a Submitter.
type SubmitterOption func(*Submitter)

// WithGuard enables cross-process duplicate detection.
func WithGuard(g Guard) SubmitterOption {
	return func(s *Submitter) { s.guard = g }
}

// WithMetrics records submission outcomes.
func WithMetrics(m *metrics.PortalMetrics) SubmitterOption {
	return func(s *Submitter) { s.metrics = m }
}

// NewSubmitter creates a submitter. duration is the appointment length the
// backend expects; loc is the clinic-local zone slots are expressed in.
func NewSubmitter(api API, duration time.Duration, loc *time.Location, logger *logging.Logger, opts ...SubmitterOption) *Submitter {
	if api == nil {
		panic("booking: api required")
	}
	if duration <= 0 {
		duration = 60 * time.Minute
	}
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Submitter{api: api, logger: logger, duration: duration, loc: loc}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit books the selection. Submission is rejected before any network call
// when the selection is incomplete, when another submission is in flight for
// this view, or when the guard reports a duplicate.
func (s *Submitter) Submit(ctx context.Context, sel Selection) (healthapi.Appointment, error) {
	if !sel.CanSubmit() {
		return healthapi.Appointment{}, &healthapi.ValidationError{
			Field:   "selection",
			Message: "provider, date, time, and a reason are all required",
		}
	}
	if !s.submitting.CompareAndSwap(false, true) {
		return healthapi.Appointment{}, ErrSubmitInFlight
	}
	defer s.submitting.Store(false)

	start, end, err := Interval(sel.Date, sel.Slot, s.duration, s.loc)
	if err != nil {
		return healthapi.Appointment{}, err
	}

	var claimed string
	if s.guard != nil {
		key := s.guardKey(sel, start)
		ok, guardErr := s.guard.Acquire(ctx, key)
		if guardErr != nil {
			// A broken guard must not block booking.
			s.logger.Warn("idempotency guard unavailable, continuing", "error", guardErr)
		} else if !ok {
			s.metrics.ObserveBooking("duplicate")
			return healthapi.Appointment{}, ErrDuplicate
		} else {
			claimed = key
		}
	}

	ctx, span := bookingTracer.Start(ctx, "booking.submit")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("healthapp.doctor_id", sel.ProviderID),
		attribute.String("healthapp.start", start.Format(time.RFC3339)),
	)

	appt, err := s.api.CreateAppointment(ctx, healthapi.CreateAppointmentRequest{
		DoctorID:  sel.ProviderID,
		PatientID: sel.PatientID,
		Start:     start,
		End:       end,
		Reason:    strings.TrimSpace(sel.Reason),
	})
	if err != nil {
		span.RecordError(err)
		s.metrics.ObserveBooking("failed")
		s.releaseClaim(ctx, claimed)
		return healthapi.Appointment{}, err
	}

	s.metrics.ObserveBooking("created")
	s.logger.Info("appointment booked",
		"doctor_id", sel.ProviderID,
		"start", start.Format(time.RFC3339),
		"appointment_id", appt.ID,
	)
	return appt, nil
}

// releaseClaim drops the idempotency key after a rejected submission so an
// immediate retry is not mistaken for a duplicate.
func (s *Submitter) releaseClaim(ctx context.Context, key string) {
	if s.guard == nil || key == "" {
		return
	}
	if err := s.guard.Release(ctx, key); err != nil {
		s.logger.Warn("failed to release idempotency key", "key", key, "error", err)
	}
}

// Duration returns the configured appointment length.
func (s *Submitter) Duration() time.Duration {
	return s.duration
}

func (s *Submitter) guardKey(sel Selection, start time.Time) string {
	if sel.PatientID != nil {
		return fmt.Sprintf("booking:%d:%d:%s", *sel.PatientID, sel.ProviderID, start.UTC().Format(time.RFC3339))
	}
	return fmt.Sprintf("booking:%d:%s", sel.ProviderID, start.UTC().Format(time.RFC3339))
}
