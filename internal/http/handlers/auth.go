package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/osu-healthapp/portal-gateway/internal/cache"
	"github.com/osu-healthapp/portal-gateway/internal/healthapi"
	"github.com/osu-healthapp/portal-gateway/pkg/logging"
)

// AuthHandler proxies sign-in, sign-out, and registration to the backend and
// relays its session cookies to the browser.
type AuthHandler struct {
	client     *healthapi.Client
	identities *cache.IdentityCache
	logger     *logging.Logger
}

// NewAuthHandler creates an auth handler. identities may be nil, in which
// case every /me hits the backend.
func NewAuthHandler(client *healthapi.Client, identities *cache.IdentityCache, logger *logging.Logger) *AuthHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AuthHandler{client: client, identities: identities, logger: logger}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginPatient signs a patient in.
// POST /auth/login/patient
func (h *AuthHandler) LoginPatient(w http.ResponseWriter, r *http.Request) {
	h.login(w, r, h.client.LoginPatient)
}

// LoginStaff signs a doctor or clerk in.
// POST /auth/login/staff
func (h *AuthHandler) LoginStaff(w http.ResponseWriter, r *http.Request) {
	h.login(w, r, h.client.LoginStaff)
}

func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request, call func(ctx context.Context, email, password string) ([]*http.Cookie, error)) {
	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		jsonError(w, "email and password are required", http.StatusBadRequest)
		return
	}

	cookies, err := call(r.Context(), req.Email, req.Password)
	if err != nil {
		relayError(w, err)
		return
	}
	relayCookies(w, cookies)

	// Return the signed-in identity so the client needs no second round trip.
	id, err := h.client.Forwarding(cookieHeader(cookies)).Me(r.Context())
	if err != nil {
		h.logger.Warn("identity fetch after login failed", "error", err)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, id)
}

// Logout signs the session out on the backend and drops the cached identity.
// Local cleanup happens even when the backend call fails.
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	cookie := r.Header.Get("Cookie")
	if h.identities != nil && cookie != "" {
		if err := h.identities.Purge(r.Context(), cookie); err != nil {
			h.logger.Warn("identity cache purge failed", "error", err)
		}
	}

	cookies, err := h.client.Forwarding(cookie).Logout(r.Context())
	if err != nil {
		h.logger.Warn("backend logout failed", "error", err)
		expireSessionCookies(w, r)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	relayCookies(w, cookies)
	w.WriteHeader(http.StatusNoContent)
}

// expireSessionCookies overwrites every cookie the browser sent with an
// expired value, so sign-out completes client-side even when the backend
// cannot be reached.
func expireSessionCookies(w http.ResponseWriter, r *http.Request) {
	for _, c := range r.Cookies() {
		http.SetCookie(w, &http.Cookie{Name: c.Name, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
	}
}

// Register creates a patient account. It does not sign the user in.
// POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req healthapi.RegisterRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		jsonError(w, "email and password are required", http.StatusBadRequest)
		return
	}
	if err := h.client.Register(r.Context(), req); err != nil {
		relayError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// Me returns the signed-in identity, serving from the short-lived cache when
// possible.
// GET /me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	cookie := r.Header.Get("Cookie")
	if cookie == "" {
		jsonError(w, "not signed in", http.StatusUnauthorized)
		return
	}

	if h.identities != nil {
		if id, ok := h.identities.Get(r.Context(), cookie); ok {
			writeJSON(w, http.StatusOK, id)
			return
		}
	}

	id, err := h.client.Forwarding(cookie).Me(r.Context())
	if err != nil {
		relayError(w, err)
		return
	}
	if h.identities != nil {
		if err := h.identities.Put(r.Context(), cookie, id); err != nil {
			h.logger.Warn("identity cache store failed", "error", err)
		}
	}
	writeJSON(w, http.StatusOK, id)
}

func cookieHeader(cookies []*http.Cookie) string {
	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}
