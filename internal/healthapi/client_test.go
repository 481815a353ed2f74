package healthapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/osu-healthapp/portal-gateway/internal/observability/metrics"
)

func newTestClient(t *testing.T, ts *httptest.Server, jar bool) *Client {
	t.Helper()
	c, err := New(Config{BaseURL: ts.URL, UseCookieJar: jar}, nil)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	return c
}

func TestLoginThenMeUsesSessionCookie(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/loginpatient":
			var creds map[string]string
			_ = json.NewDecoder(r.Body).Decode(&creds)
			if creds["email"] != "pat@example.com" {
				http.Error(w, "Invalid credentials", http.StatusUnauthorized)
				return
			}
			http.SetCookie(w, &http.Cookie{Name: "session", Value: "tok-1", Path: "/"})
			w.WriteHeader(http.StatusOK)
		case "/api/me":
			if c, err := r.Cookie("session"); err != nil || c.Value != "tok-1" {
				http.Error(w, "", http.StatusUnauthorized)
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]any{
				"id": 42, "email": "pat@example.com", "authorities": []string{"CONTEXT_PATIENT"},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()

	c := newTestClient(t, ts, true)
	cookies, err := c.LoginPatient(context.Background(), "pat@example.com", "pw")
	if err != nil {
		t.Fatalf("LoginPatient error: %v", err)
	}
	if len(cookies) != 1 || cookies[0].Name != "session" {
		t.Fatalf("unexpected cookies: %+v", cookies)
	}

	id, err := c.Me(context.Background())
	if err != nil {
		t.Fatalf("Me error: %v", err)
	}
	if id.ID != 42 || !id.HasRole("patient") {
		t.Fatalf("unexpected identity: %+v", id)
	}
}

func TestLoginRejectionIsAuthError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
	}))
	defer ts.Close()

	c := newTestClient(t, ts, false)
	_, err := c.LoginStaff(context.Background(), "doc@example.com", "bad")
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError, got %v", err)
	}
	if authErr.Message != "Invalid credentials" {
		t.Fatalf("expected server message verbatim, got %q", authErr.Message)
	}
}

func TestAPIErrorCarriesServerBody(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Doctor not available: Slot conflicts with another appointment's buffer", http.StatusConflict)
	}))
	defer ts.Close()

	c := newTestClient(t, ts, false)
	_, err := c.CreateAppointment(context.Background(), CreateAppointmentRequest{
		DoctorID: 7,
		Start:    time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
		End:      time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC),
		Reason:   "checkup",
	})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusConflict {
		t.Fatalf("expected 409, got %d", apiErr.Status)
	}
	if got := ServerMessage(err); got != "Doctor not available: Slot conflicts with another appointment's buffer" {
		t.Fatalf("unexpected server message: %q", got)
	}
}

func TestAPIErrorComposedWhenBodyEmpty(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	c := newTestClient(t, ts, false)
	_, err := c.ListDoctors(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Message != "500 Internal Server Error" {
		t.Fatalf("expected composed message, got %q", apiErr.Message)
	}
}

func TestLogoutTolerates401(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no session", http.StatusUnauthorized)
	}))
	defer ts.Close()

	c := newTestClient(t, ts, false)
	if _, err := c.Logout(context.Background()); err != nil {
		t.Fatalf("Logout should tolerate 401, got %v", err)
	}
}

func TestDoctorAvailability(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/appointments/doctor/7/availability" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("date"); got != "2025-03-10" {
			t.Errorf("unexpected date param %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"doctorId": 7, "date": "2025-03-10", "slots": []string{"09:00", "09:15"},
		})
	}))
	defer ts.Close()

	c := newTestClient(t, ts, false)
	slots, err := c.DoctorAvailability(context.Background(), 7, "2025-03-10")
	if err != nil {
		t.Fatalf("DoctorAvailability error: %v", err)
	}
	if len(slots) != 2 || slots[0] != "09:00" {
		t.Fatalf("unexpected slots: %v", slots)
	}
}

func TestDoctorAvailabilityRejectsBadDate(t *testing.T) {
	c, err := New(Config{BaseURL: "http://unused"}, nil)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	_, err = c.DoctorAvailability(context.Background(), 7, "03/10/2025")
	var vErr *ValidationError
	if !errors.As(err, &vErr) || vErr.Field != "date" {
		t.Fatalf("expected date ValidationError, got %v", err)
	}
}

func TestDoctorAvailabilityMissingSlotsIsEmpty(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"doctorId": 7, "date": "2025-03-10"})
	}))
	defer ts.Close()

	c := newTestClient(t, ts, false)
	slots, err := c.DoctorAvailability(context.Background(), 7, "2025-03-10")
	if err != nil {
		t.Fatalf("DoctorAvailability error: %v", err)
	}
	if slots == nil || len(slots) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", slots)
	}
}

func TestCreateAppointmentWireFormat(t *testing.T) {
	var got map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": 1, "doctorId": 7, "patientId": 42,
			"startTime": "2025-03-10T09:00:00Z",
			"endTime":   "2025-03-10T10:00:00Z",
			"reason":    "checkup",
		})
	}))
	defer ts.Close()

	c := newTestClient(t, ts, false)
	appt, err := c.CreateAppointment(context.Background(), CreateAppointmentRequest{
		DoctorID: 7,
		Start:    time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
		End:      time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC),
		Reason:   "checkup",
	})
	if err != nil {
		t.Fatalf("CreateAppointment error: %v", err)
	}

	if got["doctorId"] != float64(7) {
		t.Fatalf("unexpected doctorId: %v", got["doctorId"])
	}
	if _, present := got["patientId"]; present {
		t.Fatal("patientId should be omitted when not set")
	}
	if got["startTime"] != "2025-03-10T09:00:00Z" || got["endTime"] != "2025-03-10T10:00:00Z" {
		t.Fatalf("unexpected interval: %v to %v", got["startTime"], got["endTime"])
	}
	if !appt.End.Equal(appt.Start.Add(time.Hour)) {
		t.Fatalf("unexpected parsed interval: %v to %v", appt.Start, appt.End)
	}
}

func TestForwardingSendsCookieHeader(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Cookie") != "session=abc" {
			http.Error(w, "", http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"id": 1, "email": "x@example.com"})
	}))
	defer ts.Close()

	c := newTestClient(t, ts, false)
	if _, err := c.Me(context.Background()); err == nil {
		t.Fatal("expected unauthenticated error without cookie")
	}
	if _, err := c.Forwarding("session=abc").Me(context.Background()); err != nil {
		t.Fatalf("forwarded Me error: %v", err)
	}
}

func TestAddRolesReturnsServerConfirmedSet(t *testing.T) {
	var gotBody map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/admin/addroles" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"email": "pat@example.com",
			"roles": []string{"ROLE_NURSE", "ROLE_PATIENT"},
		})
	}))
	defer ts.Close()

	c := newTestClient(t, ts, false)
	grant, err := c.AddRoles(context.Background(), "pat@example.com", []string{"ROLE_NURSE"})
	if err != nil {
		t.Fatalf("AddRoles error: %v", err)
	}
	if gotBody["email"] != "pat@example.com" {
		t.Fatalf("unexpected request body: %+v", gotBody)
	}
	if len(grant.Roles) != 2 || grant.Roles[0] != "ROLE_NURSE" {
		t.Fatalf("expected the confirmed role set, got %+v", grant.Roles)
	}
}

func TestAdminUsersParsesRoleMap(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string][]string{
			"pat@example.com": {"ROLE_PATIENT"},
			"dr@example.com":  {"ROLE_DOCTOR", "ROLE_PATIENT"},
		})
	}))
	defer ts.Close()

	c := newTestClient(t, ts, false)
	users, err := c.AdminUsers(context.Background())
	if err != nil {
		t.Fatalf("AdminUsers error: %v", err)
	}
	if len(users) != 2 || len(users["dr@example.com"]) != 2 {
		t.Fatalf("unexpected users: %+v", users)
	}
}

func TestAddHealthMetricWireFormat(t *testing.T) {
	var gotPath string
	var gotBody map[string]float64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": 9, "weight": 150.0, "height": 1.75, "bmi": 48.98,
			"recordedAt": "2025-03-10T14:00:00Z",
		})
	}))
	defer ts.Close()

	c := newTestClient(t, ts, false)
	m, err := c.AddHealthMetric(context.Background(), 12, HealthMetricRequest{Weight: 150, Height: 1.75})
	if err != nil {
		t.Fatalf("AddHealthMetric error: %v", err)
	}
	if gotPath != "/api/users/12/health-metrics" {
		t.Fatalf("unexpected path: %s", gotPath)
	}
	if gotBody["weight"] != 150 || gotBody["height"] != 1.75 {
		t.Fatalf("unexpected body: %+v", gotBody)
	}
	if m.BMI != 48.98 || m.RecordedAt.IsZero() {
		t.Fatalf("unexpected metric: %+v", m)
	}
}

func TestOperationLabelFoldsIDs(t *testing.T) {
	cases := map[string]string{
		"/api/users/12/health-metrics":            "GET /api/users/{id}/health-metrics",
		"/api/appointments/doctor/7/availability": "GET /api/appointments/doctor/{id}/availability",
		"/api/me": "GET /api/me",
	}
	for path, want := range cases {
		if got := operationLabel(http.MethodGet, path); got != want {
			t.Fatalf("operationLabel(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestBackendLatencyObservedPerCall(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"id": 1, "email": "x@example.com"})
	}))
	defer ts.Close()

	reg := prometheus.NewRegistry()
	c, err := New(Config{BaseURL: ts.URL, Metrics: metrics.NewPortalMetrics(reg)}, nil)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if _, err := c.Me(context.Background()); err != nil {
		t.Fatalf("Me error: %v", err)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather error: %v", err)
	}
	for _, fam := range families {
		if fam.GetName() != "healthapp_portal_backend_latency_seconds" {
			continue
		}
		for _, m := range fam.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "operation" && l.GetValue() == "GET /api/me" {
					if m.GetHistogram().GetSampleCount() != 1 {
						t.Fatalf("expected one observation, got %d", m.GetHistogram().GetSampleCount())
					}
					return
				}
			}
		}
	}
	t.Fatal("no latency observation recorded for GET /api/me")
}
