package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/osu-healthapp/portal-gateway/internal/booking"
	"github.com/osu-healthapp/portal-gateway/internal/healthapi"
	"github.com/osu-healthapp/portal-gateway/internal/observability/metrics"
	"github.com/osu-healthapp/portal-gateway/pkg/logging"
)

// AppointmentsHandler proxies availability, listing, and booking. The
// gateway accepts date plus slot from the browser and converts the pair to
// the interval the backend expects, so clients never compute clinic-local
// timestamps themselves.
type AppointmentsHandler struct {
	client   *healthapi.Client
	guard    booking.Guard
	metrics  *metrics.PortalMetrics
	logger   *logging.Logger
	duration time.Duration
	loc      *time.Location
}

// NewAppointmentsHandler creates the handler. guard and m may be nil.
func NewAppointmentsHandler(client *healthapi.Client, guard booking.Guard, m *metrics.PortalMetrics, logger *logging.Logger, duration time.Duration, loc *time.Location) *AppointmentsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	if duration <= 0 {
		duration = 60 * time.Minute
	}
	if loc == nil {
		loc = time.Local
	}
	return &AppointmentsHandler{
		client:   client,
		guard:    guard,
		metrics:  m,
		logger:   logger,
		duration: duration,
		loc:      loc,
	}
}

// Availability returns a provider's open slots for one date.
// GET /providers/{providerID}/availability?date=YYYY-MM-DD
func (h *AppointmentsHandler) Availability(w http.ResponseWriter, r *http.Request) {
	providerID, ok := pathID(w, r, "providerID")
	if !ok {
		return
	}
	date := r.URL.Query().Get("date")

	slots, err := h.client.Forwarding(r.Header.Get("Cookie")).DoctorAvailability(r.Context(), providerID, date)
	if err != nil {
		h.metrics.ObserveAvailability("failed")
		relayError(w, err)
		return
	}
	h.metrics.ObserveAvailability("ok")
	writeJSON(w, http.StatusOK, map[string]any{
		"providerId": providerID,
		"date":       date,
		"slots":      slots,
	})
}

// Mine lists the signed-in user's appointments, routed by role.
// GET /appointments/mine
func (h *AppointmentsHandler) Mine(w http.ResponseWriter, r *http.Request) {
	client := h.client.Forwarding(r.Header.Get("Cookie"))
	id, err := client.Me(r.Context())
	if err != nil {
		relayError(w, err)
		return
	}

	var appts []healthapi.Appointment
	if id.HasRole("doctor") {
		appts, err = client.AppointmentsForDoctor(r.Context(), id.ID)
	} else {
		appts, err = client.AppointmentsForPatient(r.Context(), id.ID)
	}
	if err != nil {
		relayError(w, err)
		return
	}
	if appts == nil {
		appts = []healthapi.Appointment{}
	}
	writeJSON(w, http.StatusOK, appts)
}

type createAppointmentRequest struct {
	ProviderID int64  `json:"providerId"`
	PatientID  *int64 `json:"patientId,omitempty"`
	Date       string `json:"date"`
	Slot       string `json:"slot"`
	Reason     string `json:"reason"`
}

// Create books a slot.
// POST /appointments
func (h *AppointmentsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createAppointmentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ProviderID == 0 || req.Date == "" || req.Slot == "" || strings.TrimSpace(req.Reason) == "" {
		h.metrics.ObserveBooking("rejected")
		jsonError(w, "provider, date, time, and a reason are all required", http.StatusBadRequest)
		return
	}

	start, end, err := booking.Interval(req.Date, req.Slot, h.duration, h.loc)
	if err != nil {
		h.metrics.ObserveBooking("rejected")
		relayError(w, err)
		return
	}

	var claimed string
	if h.guard != nil {
		key := guardKey(req, start)
		ok, guardErr := h.guard.Acquire(r.Context(), key)
		if guardErr != nil {
			h.logger.Warn("idempotency guard unavailable, continuing", "error", guardErr)
		} else if !ok {
			h.metrics.ObserveBooking("duplicate")
			jsonError(w, "an identical booking was just submitted", http.StatusConflict)
			return
		} else {
			claimed = key
		}
	}

	appt, err := h.client.Forwarding(r.Header.Get("Cookie")).CreateAppointment(r.Context(), healthapi.CreateAppointmentRequest{
		DoctorID:  req.ProviderID,
		PatientID: req.PatientID,
		Start:     start,
		End:       end,
		Reason:    strings.TrimSpace(req.Reason),
	})
	if err != nil {
		h.metrics.ObserveBooking("failed")
		if claimed != "" {
			// Rejected bookings must be retryable right away.
			if relErr := h.guard.Release(r.Context(), claimed); relErr != nil {
				h.logger.Warn("failed to release idempotency key", "key", claimed, "error", relErr)
			}
		}
		relayError(w, err)
		return
	}
	h.metrics.ObserveBooking("created")
	h.logger.Info("appointment booked",
		"doctor_id", req.ProviderID,
		"start", start.Format(time.RFC3339),
		"appointment_id", appt.ID,
	)
	writeJSON(w, http.StatusCreated, appt)
}

// Cancel deletes an appointment.
// DELETE /appointments/{appointmentID}
func (h *AppointmentsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	appointmentID, ok := pathID(w, r, "appointmentID")
	if !ok {
		return
	}
	if err := h.client.Forwarding(r.Header.Get("Cookie")).DeleteAppointment(r.Context(), appointmentID); err != nil {
		relayError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func guardKey(req createAppointmentRequest, start time.Time) string {
	key := "booking:" + strconv.FormatInt(req.ProviderID, 10) + ":" + start.UTC().Format(time.RFC3339)
	if req.PatientID != nil {
		key += ":" + strconv.FormatInt(*req.PatientID, 10)
	}
	return key
}

func pathID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		jsonError(w, "invalid "+param, http.StatusBadRequest)
		return 0, false
	}
	return id, true
}
