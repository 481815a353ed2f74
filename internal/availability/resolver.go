// Package availability resolves open time slots for a (provider, date) pair.
//
// The resolver is driven by user selection events: every change to either
// input supersedes any fetch still in flight. Supersession is tracked with a
// monotonically increasing sequence number: only the result tagged with the
// latest sequence may ever reach visible state.
package availability

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/osu-healthapp/portal-gateway/internal/healthapi"
	"github.com/osu-healthapp/portal-gateway/internal/observability/metrics"
	"github.com/osu-healthapp/portal-gateway/pkg/logging"
)

var tracer = otel.Tracer("healthapp.internal.availability")

// State is the per-view fetch state.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateLoaded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

var (
	// ErrNotLoaded is returned when selecting a slot before slots are shown.
	ErrNotLoaded = errors.New("availability: slots not loaded")
	// ErrUnknownSlot is returned for a slot outside the current loaded set.
	ErrUnknownSlot = errors.New("availability: slot not in current set")
)

// Snapshot is what a view renders. Slots are ephemeral: they belong to
// exactly the (ProviderID, Date) pair shown and are never carried across a
// pair change.
type Snapshot struct {
	State      State
	ProviderID int64
	Date       string
	Slots      []string
	Selected   string
	Err        string
}

// API is the slice of the backend client the resolver needs.
type API interface {
	DoctorAvailability(ctx context.Context, doctorID int64, date string) ([]string, error)
}

// Resolver owns one scheduling view's slot state.
type Resolver struct {
	api     API
	logger  *logging.Logger
	metrics *metrics.PortalMetrics
	timeout time.Duration
	notify  func(Snapshot)

	mu   sync.Mutex
	seq  uint64
	snap Snapshot
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithTimeout bounds each availability fetch so a hung backend call cannot
// pin the view in Loading forever.
func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) { r.timeout = d }
}

// WithMetrics records fetch outcomes and stale discards.
func WithMetrics(m *metrics.PortalMetrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

// WithNotify registers a callback invoked with a snapshot copy after every
// visible state change. Discarded stale results do not notify.
func WithNotify(fn func(Snapshot)) Option {
	return func(r *Resolver) { r.notify = fn }
}

// NewResolver creates a resolver in the Idle state.
func NewResolver(api API, logger *logging.Logger, opts ...Option) *Resolver {
	if api == nil {
		panic("availability: api required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	r := &Resolver{api: api, logger: logger}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetSelection changes the (provider, date) pair. Any previously displayed
// slots and the selected slot are cleared immediately, before the new fetch
// resolves, so a slot can never silently apply to the wrong pair. An
// incomplete pair resets the view to Idle without fetching.
func (r *Resolver) SetSelection(providerID int64, date string) {
	r.mu.Lock()
	if providerID == r.snap.ProviderID && date == r.snap.Date && r.snap.State != StateIdle {
		r.mu.Unlock()
		return
	}
	r.seq++
	seq := r.seq

	r.snap = Snapshot{ProviderID: providerID, Date: date}
	if providerID == 0 || date == "" {
		r.snap.State = StateIdle
		snap := r.snapshotLocked()
		r.mu.Unlock()
		r.emit(snap)
		return
	}
	r.snap.State = StateLoading
	snap := r.snapshotLocked()
	r.mu.Unlock()

	r.emit(snap)
	go r.fetch(seq, providerID, date)
}

// Reload re-fetches the current pair, e.g. to retry after a failure. The
// running sequence still applies, so an in-flight older fetch is superseded.
func (r *Resolver) Reload() {
	r.mu.Lock()
	providerID, date := r.snap.ProviderID, r.snap.Date
	if providerID == 0 || date == "" {
		r.mu.Unlock()
		return
	}
	r.seq++
	seq := r.seq
	r.snap = Snapshot{ProviderID: providerID, Date: date, State: StateLoading}
	snap := r.snapshotLocked()
	r.mu.Unlock()

	r.emit(snap)
	go r.fetch(seq, providerID, date)
}

func (r *Resolver) fetch(seq uint64, providerID int64, date string) {
	ctx := context.Background()
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	ctx, span := tracer.Start(ctx, "availability.resolve")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("healthapp.doctor_id", providerID),
		attribute.String("healthapp.date", date),
	)

	slots, err := r.api.DoctorAvailability(ctx, providerID, date)

	r.mu.Lock()
	if seq != r.seq {
		r.mu.Unlock()
		r.metrics.ObserveStaleDiscard()
		r.logger.Debug("discarding stale availability result",
			"doctor_id", providerID, "date", date, "seq", seq)
		return
	}
	if err != nil {
		span.RecordError(err)
		r.snap.State = StateFailed
		r.snap.Err = errorMessage(err)
		r.metrics.ObserveAvailability("failed")
	} else {
		r.snap.State = StateLoaded
		r.snap.Slots = slots
		r.snap.Err = ""
		r.metrics.ObserveAvailability("ok")
	}
	snap := r.snapshotLocked()
	r.mu.Unlock()

	r.emit(snap)
}

// SelectSlot marks a slot chosen. The slot must belong to the currently
// loaded set.
func (r *Resolver) SelectSlot(slot string) error {
	r.mu.Lock()
	if r.snap.State != StateLoaded {
		r.mu.Unlock()
		return ErrNotLoaded
	}
	if !slices.Contains(r.snap.Slots, slot) {
		r.mu.Unlock()
		return ErrUnknownSlot
	}
	r.snap.Selected = slot
	snap := r.snapshotLocked()
	r.mu.Unlock()

	r.emit(snap)
	return nil
}

// ClearSlot drops the slot selection, keeping the pair and loaded slots.
func (r *Resolver) ClearSlot() {
	r.mu.Lock()
	r.snap.Selected = ""
	snap := r.snapshotLocked()
	r.mu.Unlock()
	r.emit(snap)
}

// Snapshot returns a copy of the current view state.
func (r *Resolver) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Resolver) snapshotLocked() Snapshot {
	snap := r.snap
	snap.Slots = slices.Clone(r.snap.Slots)
	return snap
}

func (r *Resolver) emit(snap Snapshot) {
	if r.notify != nil {
		r.notify(snap)
	}
}

func errorMessage(err error) string {
	if msg := healthapi.ServerMessage(err); msg != "" {
		return msg
	}
	return err.Error()
}
