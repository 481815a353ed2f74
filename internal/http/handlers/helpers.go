// Package handlers implements the portal gateway's HTTP surface. Every
// handler fronts the clinical backend; the gateway holds no appointment or
// user state of its own.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/osu-healthapp/portal-gateway/internal/healthapi"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func jsonError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// relayError translates a backend client error into a gateway response. The
// backend's own message passes through verbatim so the browser shows the same
// text it would have seen talking to the backend directly.
func relayError(w http.ResponseWriter, err error) {
	var authErr *healthapi.AuthError
	if errors.As(err, &authErr) {
		jsonError(w, authErr.Message, http.StatusUnauthorized)
		return
	}
	var valErr *healthapi.ValidationError
	if errors.As(err, &valErr) {
		jsonError(w, valErr.Message, http.StatusBadRequest)
		return
	}
	var apiErr *healthapi.APIError
	if errors.As(err, &apiErr) {
		jsonError(w, apiErr.Message, apiErr.Status)
		return
	}
	jsonError(w, "backend unavailable", http.StatusBadGateway)
}

// relayCookies forwards the backend's Set-Cookie headers to the browser.
func relayCookies(w http.ResponseWriter, cookies []*http.Cookie) {
	for _, c := range cookies {
		http.SetCookie(w, c)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		jsonError(w, "invalid JSON", http.StatusBadRequest)
		return false
	}
	return true
}
