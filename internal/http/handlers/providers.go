package handlers

import (
	"net/http"

	"github.com/osu-healthapp/portal-gateway/internal/healthapi"
	"github.com/osu-healthapp/portal-gateway/pkg/logging"
)

// ProvidersHandler serves the bookable provider list.
type ProvidersHandler struct {
	client *healthapi.Client
	logger *logging.Logger
}

// NewProvidersHandler creates the handler.
func NewProvidersHandler(client *healthapi.Client, logger *logging.Logger) *ProvidersHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &ProvidersHandler{client: client, logger: logger}
}

// List returns every provider. A backend failure degrades to an empty list
// with 200 so the scheduling page still renders; the browser retries by
// reloading.
// GET /providers
func (h *ProvidersHandler) List(w http.ResponseWriter, r *http.Request) {
	providers, err := h.client.Forwarding(r.Header.Get("Cookie")).ListDoctors(r.Context())
	if err != nil {
		h.logger.Warn("provider list fetch failed", "error", err)
		writeJSON(w, http.StatusOK, []healthapi.Provider{})
		return
	}
	if providers == nil {
		providers = []healthapi.Provider{}
	}
	writeJSON(w, http.StatusOK, providers)
}
