package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/osu-healthapp/portal-gateway/internal/healthapi"
	"github.com/osu-healthapp/portal-gateway/internal/healthmetrics"
	"github.com/osu-healthapp/portal-gateway/pkg/logging"
)

// HealthMetricsHandler records and lists weight/height observations. The
// gateway accepts free-form entries ("68 kg", 5'10") and normalizes them to
// the pounds/meters pair the backend stores, so browsers never convert units
// themselves.
type HealthMetricsHandler struct {
	client *healthapi.Client
	logger *logging.Logger
}

func NewHealthMetricsHandler(client *healthapi.Client, logger *logging.Logger) *HealthMetricsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &HealthMetricsHandler{client: client, logger: logger}
}

// measure accepts either a JSON string ("68 kg") or a bare number (150).
type measure string

func (m *measure) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*m = measure(s)
		return nil
	}
	var n float64
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*m = measure(strconv.FormatFloat(n, 'f', -1, 64))
	return nil
}

type healthMetricRequest struct {
	Weight measure `json:"weight"`
	Height measure `json:"height"`
}

// Create records a metric for a user.
// POST /users/{userID}/health-metrics
func (h *HealthMetricsHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	var req healthMetricRequest
	if !decodeBody(w, r, &req) {
		return
	}

	rec := healthmetrics.NewRecorder(h.client.Forwarding(r.Header.Get("Cookie")), h.logger)
	metric, err := rec.Record(r.Context(), userID, string(req.Weight), string(req.Height))
	if err != nil {
		relayError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, metric)
}

// List returns a user's recorded metrics.
// GET /users/{userID}/health-metrics
func (h *HealthMetricsHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r, "userID")
	if !ok {
		return
	}
	metrics, err := h.client.Forwarding(r.Header.Get("Cookie")).HealthMetrics(r.Context(), userID)
	if err != nil {
		relayError(w, err)
		return
	}
	if metrics == nil {
		metrics = []healthapi.HealthMetric{}
	}
	writeJSON(w, http.StatusOK, metrics)
}
