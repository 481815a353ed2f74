// Package appointments loads the signed-in user's appointment list.
package appointments

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/osu-healthapp/portal-gateway/internal/healthapi"
	"github.com/osu-healthapp/portal-gateway/internal/observability/metrics"
	"github.com/osu-healthapp/portal-gateway/pkg/logging"
)

// IdentityKind selects which appointment endpoint a user reads from.
type IdentityKind int

const (
	// KindPatient reads the appointments the user is the patient of.
	KindPatient IdentityKind = iota
	// KindDoctor reads the appointments the user is the provider of.
	KindDoctor
)

// State describes the list's load status.
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
	default:
		return "unknown"
	}
}

// ErrNoIdentity is returned when Reload is called before SetIdentity.
var ErrNoIdentity = errors.New("appointments: no identity set")

// Snapshot is an immutable copy of the reader's state.
type Snapshot struct {
	State        State
	UserID       int64
	Kind         IdentityKind
	Appointments []healthapi.Appointment
	Err          string
}

// API is the slice of the backend client the reader needs.
type API interface {
	AppointmentsForPatient(ctx context.Context, patientID int64) ([]healthapi.Appointment, error)
	AppointmentsForDoctor(ctx context.Context, doctorID int64) ([]healthapi.Appointment, error)
}

// Reader owns one my-appointments view. Identity changes invalidate any fetch
// still in flight, so a list loaded for one account can never render under
// another.
type Reader struct {
	api     API
	logger  *logging.Logger
	metrics *metrics.PortalMetrics
	timeout time.Duration
	notify  func(Snapshot)

	mu   sync.Mutex
	seq  uint64
	snap Snapshot
}

// Option configures a Reader.
type Option func(*Reader)

// WithTimeout bounds each list fetch.
func WithTimeout(d time.Duration) Option {
	return func(r *Reader) { r.timeout = d }
}

// WithMetrics records stale discards.
func WithMetrics(m *metrics.PortalMetrics) Option {
	return func(r *Reader) { r.metrics = m }
}

// WithNotify registers a callback invoked with a snapshot copy after every
// visible state change.
func WithNotify(fn func(Snapshot)) Option {
	return func(r *Reader) { r.notify = fn }
}

// NewReader creates a reader in the Idle state.
func NewReader(api API, logger *logging.Logger, opts ...Option) *Reader {
	if api == nil {
		panic("appointments: api required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	r := &Reader{api: api, logger: logger}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetIdentity switches the view to a user and starts loading. The previous
// list is cleared immediately. A zero userID clears the view back to Idle,
// which also invalidates any fetch still running for the signed-out user.
func (r *Reader) SetIdentity(userID int64, kind IdentityKind) {
	r.mu.Lock()
	r.seq++
	seq := r.seq
	r.snap = Snapshot{UserID: userID, Kind: kind}
	if userID == 0 {
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
	go r.fetch(seq, userID, kind)
}

// Reload refetches the current user's list, e.g. after a booking succeeds.
func (r *Reader) Reload() error {
	r.mu.Lock()
	if r.snap.UserID == 0 {
		r.mu.Unlock()
		return ErrNoIdentity
	}
	r.seq++
	seq := r.seq
	userID, kind := r.snap.UserID, r.snap.Kind
	r.snap.State = StateLoading
	r.snap.Err = ""
	snap := r.snapshotLocked()
	r.mu.Unlock()
	r.emit(snap)
	go r.fetch(seq, userID, kind)
	return nil
}

func (r *Reader) fetch(seq uint64, userID int64, kind IdentityKind) {
	ctx := context.Background()
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	var (
		appts []healthapi.Appointment
		err   error
	)
	switch kind {
	case KindDoctor:
		appts, err = r.api.AppointmentsForDoctor(ctx, userID)
	default:
		appts, err = r.api.AppointmentsForPatient(ctx, userID)
	}

	r.mu.Lock()
	if seq != r.seq {
		r.mu.Unlock()
		r.metrics.ObserveStaleDiscard()
		r.logger.Debug("discarded stale appointment list", "user_id", userID)
		return
	}
	if err != nil {
		r.snap.State = StateFailed
		r.snap.Err = errorMessage(err)
		r.logger.Warn("appointment list fetch failed", "user_id", userID, "error", err)
	} else {
		r.snap.State = StateLoaded
		r.snap.Appointments = appts
		r.snap.Err = ""
	}
	snap := r.snapshotLocked()
	r.mu.Unlock()
	r.emit(snap)
}

// Snapshot returns a copy of the current state.
func (r *Reader) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

func (r *Reader) snapshotLocked() Snapshot {
	snap := r.snap
	snap.Appointments = slices.Clone(snap.Appointments)
	return snap
}

func (r *Reader) emit(snap Snapshot) {
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
