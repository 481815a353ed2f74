// Package healthapi is the credentialed REST client for the HealthApp
// backend, which owns all persistence. Every response is normalized into the
// package's model types at this boundary.
package healthapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/osu-healthapp/portal-gateway/internal/observability/metrics"
	"github.com/osu-healthapp/portal-gateway/pkg/logging"
)

const defaultTimeout = 15 * time.Second

// Client calls the HealthApp backend. The zero value is not usable; construct
// with New.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
	metrics    *metrics.PortalMetrics

	// cookie, when set, is forwarded verbatim on every request. Used by the
	// gateway to pass a browser session through instead of holding a jar.
	cookie string
}

// Config holds client construction options.
type Config struct {
	BaseURL string
	Timeout time.Duration

	// UseCookieJar keeps session cookies in-process across calls (CLI mode).
	// The gateway leaves this off and forwards per-request cookies instead.
	UseCookieJar bool

	// Metrics, when set, records a latency observation per backend call.
	Metrics *metrics.PortalMetrics
}

// New creates a backend client.
func New(cfg Config, logger *logging.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("healthapi: BaseURL is required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = logging.Default()
	}

	httpClient := &http.Client{Timeout: timeout}
	if cfg.UseCookieJar {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("healthapi: create cookie jar: %w", err)
		}
		httpClient.Jar = jar
	}

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
		metrics:    cfg.Metrics,
	}, nil
}

// Forwarding returns a copy of the client that sends the given Cookie header
// on every request. The underlying transport is shared.
func (c *Client) Forwarding(cookie string) *Client {
	fc := *c
	fc.cookie = cookie
	return &fc
}

// Me returns the current authenticated identity.
func (c *Client) Me(ctx context.Context) (Identity, error) {
	var dto identityDTO
	if err := c.do(ctx, http.MethodGet, "/api/me", nil, nil, &dto); err != nil {
		return Identity{}, err
	}
	return identityFromDTO(dto), nil
}

// MyProfile returns the full profile of the current identity.
func (c *Client) MyProfile(ctx context.Context) (Profile, error) {
	var p Profile
	if err := c.do(ctx, http.MethodGet, "/api/users/me", nil, nil, &p); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// UpdateProfile replaces the current identity's profile and returns the
// server's confirmed copy.
func (c *Client) UpdateProfile(ctx context.Context, p Profile) (Profile, error) {
	var out Profile
	if err := c.do(ctx, http.MethodPut, "/api/users/me/profile", nil, p, &out); err != nil {
		return Profile{}, err
	}
	return out, nil
}

// GetUser returns another user's profile by id.
func (c *Client) GetUser(ctx context.Context, userID int64) (Profile, error) {
	var p Profile
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/users/%d", userID), nil, nil, &p); err != nil {
		return Profile{}, err
	}
	return p, nil
}

// GetUserEmail returns just a user's email address.
func (c *Client) GetUserEmail(ctx context.Context, userID int64) (string, error) {
	var email string
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/users/%d/email", userID), nil, nil, &email); err != nil {
		return "", err
	}
	return email, nil
}

// ListDoctors returns all bookable providers.
func (c *Client) ListDoctors(ctx context.Context) ([]Provider, error) {
	var dtos []providerDTO
	if err := c.do(ctx, http.MethodGet, "/api/doctor/doctors", nil, nil, &dtos); err != nil {
		return nil, err
	}
	providers := make([]Provider, 0, len(dtos))
	for _, d := range dtos {
		providers = append(providers, providerFromDTO(d))
	}
	return providers, nil
}

// DoctorAvailability returns the open slot tokens for a doctor on a date.
// date must be formatted YYYY-MM-DD.
func (c *Client) DoctorAvailability(ctx context.Context, doctorID int64, date string) ([]string, error) {
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return nil, &ValidationError{Field: "date", Message: "must be formatted YYYY-MM-DD"}
	}
	query := url.Values{}
	query.Set("date", date)

	var dto availabilityDTO
	path := fmt.Sprintf("/api/appointments/doctor/%d/availability", doctorID)
	if err := c.do(ctx, http.MethodGet, path, query, nil, &dto); err != nil {
		return nil, err
	}
	if dto.Slots == nil {
		return []string{}, nil
	}
	return dto.Slots, nil
}

// AppointmentsForPatient lists a patient's appointments in server order.
func (c *Client) AppointmentsForPatient(ctx context.Context, patientID int64) ([]Appointment, error) {
	return c.listAppointments(ctx, fmt.Sprintf("/api/appointments/patient/%d", patientID))
}

// AppointmentsForDoctor lists a doctor's appointments in server order.
func (c *Client) AppointmentsForDoctor(ctx context.Context, doctorID int64) ([]Appointment, error) {
	return c.listAppointments(ctx, fmt.Sprintf("/api/appointments/doctor/%d", doctorID))
}

// AllAppointments lists every appointment. Staff only.
func (c *Client) AllAppointments(ctx context.Context) ([]Appointment, error) {
	return c.listAppointments(ctx, "/api/appointments")
}

func (c *Client) listAppointments(ctx context.Context, path string) ([]Appointment, error) {
	var dtos []appointmentDTO
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &dtos); err != nil {
		return nil, err
	}
	appts := make([]Appointment, 0, len(dtos))
	for _, d := range dtos {
		appts = append(appts, appointmentFromDTO(d))
	}
	return appts, nil
}

// CreateAppointment books an appointment and returns the server's record.
func (c *Client) CreateAppointment(ctx context.Context, req CreateAppointmentRequest) (Appointment, error) {
	body := createAppointmentDTO{
		DoctorID:  req.DoctorID,
		PatientID: req.PatientID,
		StartTime: req.Start.Format(time.RFC3339),
		EndTime:   req.End.Format(time.RFC3339),
		Reason:    req.Reason,
	}
	var dto appointmentDTO
	if err := c.do(ctx, http.MethodPost, "/api/appointments", nil, body, &dto); err != nil {
		return Appointment{}, err
	}
	return appointmentFromDTO(dto), nil
}

// UpdateAppointment reschedules an existing appointment.
func (c *Client) UpdateAppointment(ctx context.Context, appointmentID int64, req CreateAppointmentRequest) (Appointment, error) {
	body := createAppointmentDTO{
		DoctorID:  req.DoctorID,
		PatientID: req.PatientID,
		StartTime: req.Start.Format(time.RFC3339),
		EndTime:   req.End.Format(time.RFC3339),
		Reason:    req.Reason,
	}
	var dto appointmentDTO
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/api/appointments/%d", appointmentID), nil, body, &dto); err != nil {
		return Appointment{}, err
	}
	return appointmentFromDTO(dto), nil
}

// DeleteAppointment cancels an appointment.
func (c *Client) DeleteAppointment(ctx context.Context, appointmentID int64) error {
	return c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/appointments/%d", appointmentID), nil, nil, nil)
}

// SubmitNote attaches a nurse note to an appointment.
func (c *Client) SubmitNote(ctx context.Context, req NoteRequest) error {
	return c.do(ctx, http.MethodPost, "/api/appointments/submitNote", nil, req, nil)
}

// SubmitResult attaches a doctor result to an appointment.
func (c *Client) SubmitResult(ctx context.Context, req NoteRequest) error {
	return c.do(ctx, http.MethodPost, "/api/appointments/submitResult", nil, req, nil)
}

// AppointmentNote returns an appointment's nurse note as plain text.
func (c *Client) AppointmentNote(ctx context.Context, appointmentID int64) (string, error) {
	_, data, err := c.doRaw(ctx, http.MethodGet, fmt.Sprintf("/api/appointments/%d/note", appointmentID), nil, nil)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// AppointmentResult returns an appointment's doctor result as plain text.
func (c *Client) AppointmentResult(ctx context.Context, appointmentID int64) (string, error) {
	_, data, err := c.doRaw(ctx, http.MethodGet, fmt.Sprintf("/api/appointments/%d/result", appointmentID), nil, nil)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// LoginPatient authenticates against the patient endpoint. The returned
// cookies carry the new session; a jar-backed client stores them as well.
func (c *Client) LoginPatient(ctx context.Context, email, password string) ([]*http.Cookie, error) {
	return c.login(ctx, "/api/auth/loginpatient", email, password)
}

// LoginStaff authenticates against the staff endpoint.
func (c *Client) LoginStaff(ctx context.Context, email, password string) ([]*http.Cookie, error) {
	return c.login(ctx, "/api/auth/loginstaff", email, password)
}

func (c *Client) login(ctx context.Context, path, email, password string) ([]*http.Cookie, error) {
	resp, _, err := c.doRaw(ctx, http.MethodPost, path, nil, loginDTO{Email: email, Password: password})
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return nil, &AuthError{Message: apiErr.Message}
		}
		return nil, err
	}
	return resp.Cookies(), nil
}

// Logout ends the backend session. A 401 means the session was already gone
// and is treated as success.
func (c *Client) Logout(ctx context.Context) ([]*http.Cookie, error) {
	resp, _, err := c.doRaw(ctx, http.MethodPost, "/api/auth/logout", nil, nil)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
			return resp.Cookies(), nil
		}
		return nil, err
	}
	return resp.Cookies(), nil
}

// AdminUsers lists every account's email with its granted roles. Requires an
// admin session; the backend enforces the role check.
func (c *Client) AdminUsers(ctx context.Context) (map[string][]string, error) {
	users := map[string][]string{}
	if err := c.do(ctx, http.MethodGet, "/api/admin/getusers", nil, nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// ActivateUser re-enables a disabled account.
func (c *Client) ActivateUser(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodPost, "/api/admin/activate", nil, accountEmailDTO{Email: email}, nil)
}

// DeactivateUser disables an account. The backend also revokes the account's
// live sessions.
func (c *Client) DeactivateUser(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodPost, "/api/admin/deactivate", nil, accountEmailDTO{Email: email}, nil)
}

// AddRoles grants roles to an account and returns the server-confirmed set.
func (c *Client) AddRoles(ctx context.Context, email string, roles []string) (RoleGrant, error) {
	return c.changeRoles(ctx, "/api/admin/addroles", email, roles)
}

// RemoveRoles revokes roles from an account and returns the server-confirmed
// set.
func (c *Client) RemoveRoles(ctx context.Context, email string, roles []string) (RoleGrant, error) {
	return c.changeRoles(ctx, "/api/admin/removeroles", email, roles)
}

func (c *Client) changeRoles(ctx context.Context, path, email string, roles []string) (RoleGrant, error) {
	var grant RoleGrant
	if err := c.do(ctx, http.MethodPost, path, nil, roleChangeDTO{Email: email, Roles: roles}, &grant); err != nil {
		return RoleGrant{}, err
	}
	return grant, nil
}

// AddHealthMetric records a weight/height pair for a user. The backend
// computes and stores BMI alongside.
func (c *Client) AddHealthMetric(ctx context.Context, userID int64, req HealthMetricRequest) (HealthMetric, error) {
	var m HealthMetric
	path := fmt.Sprintf("/api/users/%d/health-metrics", userID)
	if err := c.do(ctx, http.MethodPost, path, nil, req, &m); err != nil {
		return HealthMetric{}, err
	}
	return m, nil
}

// HealthMetrics lists a user's recorded metrics.
func (c *Client) HealthMetrics(ctx context.Context, userID int64) ([]HealthMetric, error) {
	var ms []HealthMetric
	path := fmt.Sprintf("/api/users/%d/health-metrics", userID)
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &ms); err != nil {
		return nil, err
	}
	return ms, nil
}

// Register creates a new patient account.
func (c *Client) Register(ctx context.Context, req RegisterRequest) error {
	return c.do(ctx, http.MethodPost, "/api/auth/register", nil, req, nil)
}

// operationLabel folds numeric path segments into a placeholder so the
// latency histogram's label set stays bounded.
func operationLabel(method, path string) string {
	segs := strings.Split(path, "/")
	for i, s := range segs {
		if s == "" {
			continue
		}
		if _, err := strconv.ParseInt(s, 10, 64); err == nil {
			segs[i] = "{id}"
		}
	}
	return method + " " + strings.Join(segs, "/")
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	_, data, err := c.doRaw(ctx, method, path, query, body)
	if err != nil {
		return err
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("healthapi: unmarshal %s %s response: %w", method, path, err)
	}
	return nil
}

// doRaw performs the request and returns the response and its body. A non-2xx
// status yields an *APIError whose message is the body text when present.
func (c *Client) doRaw(ctx context.Context, method, path string, query url.Values, body any) (*http.Response, []byte, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, nil, fmt.Errorf("healthapi: marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, nil, fmt.Errorf("healthapi: create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.cookie != "" {
		req.Header.Set("Cookie", c.cookie)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("healthapi: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	c.metrics.ObserveBackendLatency(operationLabel(method, path), time.Since(start).Seconds())

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp, nil, fmt.Errorf("healthapi: read response: %w", err)
	}

	c.logger.Debug("backend request", "method", method, "path", path, "status", resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(data))
		if msg == "" {
			msg = fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
		}
		return resp, data, &APIError{Status: resp.StatusCode, Message: msg}
	}
	return resp, data, nil
}
