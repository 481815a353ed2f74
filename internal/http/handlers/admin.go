package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/osu-healthapp/portal-gateway/internal/healthapi"
	"github.com/osu-healthapp/portal-gateway/pkg/logging"
)

// AdminHandler proxies account administration. Role checks stay with the
// backend; the gateway forwards the admin's session and relays 401/403
// verbatim. Role mutation responses carry the server-confirmed role set so
// clients render confirmed state, never a speculative local edit.
type AdminHandler struct {
	client *healthapi.Client
	logger *logging.Logger
}

func NewAdminHandler(client *healthapi.Client, logger *logging.Logger) *AdminHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminHandler{client: client, logger: logger}
}

// Users lists every account with its granted roles.
// GET /admin/users
func (h *AdminHandler) Users(w http.ResponseWriter, r *http.Request) {
	users, err := h.client.Forwarding(r.Header.Get("Cookie")).AdminUsers(r.Context())
	if err != nil {
		relayError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

type accountRequest struct {
	Email string `json:"email"`
}

type roleChangeRequest struct {
	Email string   `json:"email"`
	Roles []string `json:"roles"`
}

// Activate re-enables an account.
// POST /admin/users/activate
func (h *AdminHandler) Activate(w http.ResponseWriter, r *http.Request) {
	h.accountAction(w, r, (*healthapi.Client).ActivateUser, "account activated")
}

// Deactivate disables an account and revokes its sessions.
// POST /admin/users/deactivate
func (h *AdminHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	h.accountAction(w, r, (*healthapi.Client).DeactivateUser, "account deactivated")
}

// AddRoles grants roles and returns the server-confirmed set.
// POST /admin/users/roles/add
func (h *AdminHandler) AddRoles(w http.ResponseWriter, r *http.Request) {
	h.roleChange(w, r, (*healthapi.Client).AddRoles)
}

// RemoveRoles revokes roles and returns the server-confirmed set.
// POST /admin/users/roles/remove
func (h *AdminHandler) RemoveRoles(w http.ResponseWriter, r *http.Request) {
	h.roleChange(w, r, (*healthapi.Client).RemoveRoles)
}

func (h *AdminHandler) accountAction(w http.ResponseWriter, r *http.Request, call func(*healthapi.Client, context.Context, string) error, logMsg string) {
	var req accountRequest
	if !decodeBody(w, r, &req) {
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		jsonError(w, "email is required", http.StatusBadRequest)
		return
	}
	if err := call(h.client.Forwarding(r.Header.Get("Cookie")), r.Context(), email); err != nil {
		relayError(w, err)
		return
	}
	h.logger.Info(logMsg, "email", email)
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHandler) roleChange(w http.ResponseWriter, r *http.Request, call func(*healthapi.Client, context.Context, string, []string) (healthapi.RoleGrant, error)) {
	var req roleChangeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || len(req.Roles) == 0 {
		jsonError(w, "email and at least one role are required", http.StatusBadRequest)
		return
	}
	grant, err := call(h.client.Forwarding(r.Header.Get("Cookie")), r.Context(), email, req.Roles)
	if err != nil {
		relayError(w, err)
		return
	}
	h.logger.Info("role set changed", "email", grant.Email, "roles", grant.Roles)
	writeJSON(w, http.StatusOK, grant)
}
