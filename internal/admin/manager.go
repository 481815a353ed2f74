// Package admin manages accounts and role grants for the admin view.
//
// Role mutations are never applied speculatively. Each mutation sends the
// request and then replaces the displayed role set with the set the server
// confirms in its response, so the view cannot drift from backend state when
// the server normalizes, dedupes, or rejects part of a change.
package admin

import (
	"context"
	"sort"
	"sync"

	"github.com/osu-healthapp/portal-gateway/internal/healthapi"
	"github.com/osu-healthapp/portal-gateway/pkg/logging"
)

// API is the slice of the backend client the manager needs.
type API interface {
	AdminUsers(ctx context.Context) (map[string][]string, error)
	AddRoles(ctx context.Context, email string, roles []string) (healthapi.RoleGrant, error)
	RemoveRoles(ctx context.Context, email string, roles []string) (healthapi.RoleGrant, error)
	ActivateUser(ctx context.Context, email string) error
	DeactivateUser(ctx context.Context, email string) error
}

// Manager holds the admin view's account table.
type Manager struct {
	api    API
	logger *logging.Logger
	notify func()

	mu    sync.Mutex
	users map[string][]string
}

// Option configures a Manager.
type Option func(*Manager)

// WithNotify registers a callback invoked after every state change.
func WithNotify(fn func()) Option {
	return func(m *Manager) { m.notify = fn }
}

func NewManager(api API, logger *logging.Logger, opts ...Option) *Manager {
	if api == nil {
		panic("admin: api required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	m := &Manager{api: api, logger: logger, users: map[string][]string{}}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Load replaces the account table with the backend's current state.
func (m *Manager) Load(ctx context.Context) error {
	users, err := m.api.AdminUsers(ctx)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.users = map[string][]string{}
	for email, roles := range users {
		m.users[email] = append([]string(nil), roles...)
	}
	m.mu.Unlock()
	m.changed()
	return nil
}

// Users returns a copy of the account table.
func (m *Manager) Users() map[string][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string][]string, len(m.users))
	for email, roles := range m.users {
		out[email] = append([]string(nil), roles...)
	}
	return out
}

// Roles returns the known role set for one account.
func (m *Manager) Roles(email string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.users[email]...)
}

// Emails returns the known account emails in sorted order.
func (m *Manager) Emails() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.users))
	for email := range m.users {
		out = append(out, email)
	}
	sort.Strings(out)
	return out
}

// AddRole grants a role and reconciles the account's displayed roles from
// the server's confirmed response.
func (m *Manager) AddRole(ctx context.Context, email, role string) error {
	grant, err := m.api.AddRoles(ctx, email, []string{role})
	if err != nil {
		return err
	}
	m.apply(grant)
	return nil
}

// RemoveRole revokes a role and reconciles from the confirmed response.
func (m *Manager) RemoveRole(ctx context.Context, email, role string) error {
	grant, err := m.api.RemoveRoles(ctx, email, []string{role})
	if err != nil {
		return err
	}
	m.apply(grant)
	return nil
}

// Activate re-enables an account.
func (m *Manager) Activate(ctx context.Context, email string) error {
	return m.api.ActivateUser(ctx, email)
}

// Deactivate disables an account. The backend revokes its sessions too.
func (m *Manager) Deactivate(ctx context.Context, email string) error {
	return m.api.DeactivateUser(ctx, email)
}

func (m *Manager) apply(grant healthapi.RoleGrant) {
	if grant.Email == "" {
		return
	}
	m.mu.Lock()
	m.users[grant.Email] = append([]string(nil), grant.Roles...)
	m.mu.Unlock()
	m.logger.Info("role set reconciled", "email", grant.Email, "roles", grant.Roles)
	m.changed()
}

func (m *Manager) changed() {
	if m.notify != nil {
		m.notify()
	}
}
