package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/osu-healthapp/portal-gateway/internal/healthapi"
	"github.com/osu-healthapp/portal-gateway/pkg/logging"
)

// NotesHandler proxies visit notes and test results. The backend enforces
// who may write; the gateway only validates shape.
type NotesHandler struct {
	client *healthapi.Client
	logger *logging.Logger
}

// NewNotesHandler creates the handler.
func NewNotesHandler(client *healthapi.Client, logger *logging.Logger) *NotesHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &NotesHandler{client: client, logger: logger}
}

type noteRequest struct {
	Contents string `json:"contents"`
}

// SubmitNote attaches a visit note to an appointment.
// POST /appointments/{appointmentID}/note
func (h *NotesHandler) SubmitNote(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, (*healthapi.Client).SubmitNote)
}

// SubmitResult attaches a test result to an appointment.
// POST /appointments/{appointmentID}/result
func (h *NotesHandler) SubmitResult(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, (*healthapi.Client).SubmitResult)
}

func (h *NotesHandler) submit(w http.ResponseWriter, r *http.Request, call func(c *healthapi.Client, ctx context.Context, req healthapi.NoteRequest) error) {
	appointmentID, ok := pathID(w, r, "appointmentID")
	if !ok {
		return
	}
	var req noteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Contents) == "" {
		jsonError(w, "contents must not be empty", http.StatusBadRequest)
		return
	}

	client := h.client.Forwarding(r.Header.Get("Cookie"))
	err := call(client, r.Context(), healthapi.NoteRequest{
		AppointmentID: appointmentID,
		Contents:      req.Contents,
	})
	if err != nil {
		relayError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetNote returns the visit note for an appointment as plain text.
// GET /appointments/{appointmentID}/note
func (h *NotesHandler) GetNote(w http.ResponseWriter, r *http.Request) {
	h.get(w, r, (*healthapi.Client).AppointmentNote)
}

// GetResult returns the test result for an appointment as plain text.
// GET /appointments/{appointmentID}/result
func (h *NotesHandler) GetResult(w http.ResponseWriter, r *http.Request) {
	h.get(w, r, (*healthapi.Client).AppointmentResult)
}

func (h *NotesHandler) get(w http.ResponseWriter, r *http.Request, call func(c *healthapi.Client, ctx context.Context, appointmentID int64) (string, error)) {
	appointmentID, ok := pathID(w, r, "appointmentID")
	if !ok {
		return
	}
	client := h.client.Forwarding(r.Header.Get("Cookie"))
	text, err := call(client, r.Context(), appointmentID)
	if err != nil {
		relayError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(text))
}
