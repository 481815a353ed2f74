// Package session holds the current authenticated identity for a portal
// process. Views read it; only the store's own operations write it.
package session

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/osu-healthapp/portal-gateway/internal/healthapi"
	"github.com/osu-healthapp/portal-gateway/pkg/logging"
)

// API is the slice of the backend client the store needs.
type API interface {
	Me(ctx context.Context) (healthapi.Identity, error)
	LoginPatient(ctx context.Context, email, password string) ([]*http.Cookie, error)
	LoginStaff(ctx context.Context, email, password string) ([]*http.Cookie, error)
	Logout(ctx context.Context) ([]*http.Cookie, error)
}

// Store owns the process-wide identity. Constructor-injected into views, not
// an ambient singleton.
type Store struct {
	api    API
	logger *logging.Logger

	mu       sync.Mutex
	identity *healthapi.Identity
	loading  bool
	subs     map[int]func(healthapi.Identity, bool)
	nextSub  int
}

// NewStore creates a session store.
func NewStore(api API, logger *logging.Logger) *Store {
	if api == nil {
		panic("session: api required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{api: api, logger: logger, subs: make(map[int]func(healthapi.Identity, bool))}
}

// Refresh re-queries the who-am-I endpoint. Success sets the identity; any
// failure clears it. Refresh never surfaces the network error to callers;
// an absent identity is the only failure signal.
func (s *Store) Refresh(ctx context.Context) {
	s.mu.Lock()
	s.loading = true
	s.mu.Unlock()

	id, err := s.api.Me(ctx)

	s.mu.Lock()
	if err != nil {
		s.logger.Debug("identity refresh failed", "error", err)
		s.identity = nil
	} else {
		s.identity = &id
	}
	s.loading = false
	s.mu.Unlock()

	s.notify()
}

// Login authenticates against the role-specific endpoint ("patient" uses the
// patient endpoint, anything else the staff one) and refreshes the identity.
// A requested role the granted identity does not hold fails with an
// AuthError, and the half-open session is discarded.
func (s *Store) Login(ctx context.Context, email, password, role string) error {
	var err error
	if role == "patient" || role == "" {
		_, err = s.api.LoginPatient(ctx, email, password)
	} else {
		_, err = s.api.LoginStaff(ctx, email, password)
	}
	if err != nil {
		return err
	}

	s.Refresh(ctx)

	id, ok := s.Identity()
	if !ok {
		return &healthapi.AuthError{Message: "login succeeded but session could not be established"}
	}
	if role != "" && len(id.Roles) > 0 && !id.HasRole(role) {
		s.Logout(ctx)
		return &healthapi.AuthError{Message: "account does not hold the " + role + " role"}
	}
	return nil
}

// Logout ends the backend session best-effort and clears the local identity
// unconditionally, so a failed network call can never leave a stuck session.
func (s *Store) Logout(ctx context.Context) {
	if _, err := s.api.Logout(ctx); err != nil {
		s.logger.Warn("logout request failed, clearing local session anyway", "error", err)
	}

	s.mu.Lock()
	s.identity = nil
	s.mu.Unlock()

	s.notify()
}

// Wake re-validates the session, the analogue of a browser tab regaining
// foreground visibility. Stale sessions self-heal without user action.
func (s *Store) Wake(ctx context.Context) {
	s.Refresh(ctx)
}

// AutoRefresh re-validates the session on an interval until ctx is done.
func (s *Store) AutoRefresh(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Refresh(ctx)
			}
		}
	}()
}

// Identity returns the current identity, if any.
func (s *Store) Identity() (healthapi.Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identity == nil {
		return healthapi.Identity{}, false
	}
	return *s.identity, true
}

// Loading reports whether a refresh is in flight.
func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Subscribe registers fn to run after every identity change. The returned
// cancel func removes the subscription.
func (s *Store) Subscribe(fn func(id healthapi.Identity, ok bool)) func() {
	s.mu.Lock()
	key := s.nextSub
	s.nextSub++
	s.subs[key] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, key)
		s.mu.Unlock()
	}
}

func (s *Store) notify() {
	s.mu.Lock()
	var id healthapi.Identity
	ok := s.identity != nil
	if ok {
		id = *s.identity
	}
	fns := make([]func(healthapi.Identity, bool), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(id, ok)
	}
}
