package handlers

import (
	"net/http"

	"github.com/osu-healthapp/portal-gateway/internal/cache"
	"github.com/osu-healthapp/portal-gateway/pkg/logging"
)

// OpsHandler serves operator-only endpoints. These sit behind the ops JWT,
// not behind the backend's patient or staff sessions.
type OpsHandler struct {
	identities *cache.IdentityCache
	logger     *logging.Logger
}

// NewOpsHandler creates the handler.
func NewOpsHandler(identities *cache.IdentityCache, logger *logging.Logger) *OpsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &OpsHandler{identities: identities, logger: logger}
}

type purgeRequest struct {
	Cookie string `json:"cookie"`
}

// PurgeIdentity drops one session's cached identity ahead of its TTL, e.g.
// after an operator disables an account on the backend.
// POST /ops/identity-cache/purge
func (h *OpsHandler) PurgeIdentity(w http.ResponseWriter, r *http.Request) {
	if h.identities == nil {
		jsonError(w, "identity cache disabled", http.StatusServiceUnavailable)
		return
	}
	var req purgeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Cookie == "" {
		jsonError(w, "cookie is required", http.StatusBadRequest)
		return
	}
	if err := h.identities.Purge(r.Context(), req.Cookie); err != nil {
		h.logger.Error("identity cache purge failed", "error", err)
		jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
