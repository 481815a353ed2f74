package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osu-healthapp/portal-gateway/internal/booking"
	"github.com/osu-healthapp/portal-gateway/internal/cache"
	"github.com/osu-healthapp/portal-gateway/internal/healthapi"
	"github.com/osu-healthapp/portal-gateway/pkg/logging"
)

// fakeBackend imitates the clinical backend's REST surface closely enough
// for the gateway handlers.
type fakeBackend struct {
	mu          sync.Mutex
	sessions    map[string]int64 // session token -> user id
	creates     []map[string]any
	metricPosts []map[string]float64
	failNext    int    // status code to fail the next request with
	failBody    string // body for the forced failure
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{sessions: map[string]int64{"valid-session": 12}}
}

func (b *fakeBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/loginpatient", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["password"] != "correct" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte("Invalid email or password"))
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "JSESSIONID", Value: "valid-session", Path: "/"})
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /api/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		if code, body := b.takeFailure(); code != 0 {
			w.WriteHeader(code)
			_, _ = w.Write([]byte(body))
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "JSESSIONID", Value: "", MaxAge: -1})
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /api/me", func(w http.ResponseWriter, r *http.Request) {
		if !b.authed(r) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":          12,
			"email":       "pat@example.com",
			"name":        "Pat",
			"authorities": []string{"ROLE_PATIENT"},
		})
	})
	mux.HandleFunc("GET /api/doctor/doctors", func(w http.ResponseWriter, r *http.Request) {
		if code, body := b.takeFailure(); code != 0 {
			w.WriteHeader(code)
			_, _ = w.Write([]byte(body))
			return
		}
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"id": 7, "email": "dr@example.com", "name": "Dr. Wu"},
		})
	})
	mux.HandleFunc("GET /api/appointments/doctor/{id}/availability", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"doctorId": 7,
			"date":     r.URL.Query().Get("date"),
			"slots":    []string{"09:00", "09:15"},
		})
	})
	mux.HandleFunc("GET /api/appointments/patient/12", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"id": 1, "doctorId": 7, "patientId": 12, "startTime": "2025-03-10T14:00:00Z", "endTime": "2025-03-10T15:00:00Z", "reason": "Checkup"},
		})
	})
	mux.HandleFunc("POST /api/appointments", func(w http.ResponseWriter, r *http.Request) {
		if code, body := b.takeFailure(); code != 0 {
			w.WriteHeader(code)
			_, _ = w.Write([]byte(body))
			return
		}
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		b.mu.Lock()
		b.creates = append(b.creates, req)
		b.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": 55, "doctorId": req["doctorId"],
			"startTime": req["startTime"], "endTime": req["endTime"],
			"reason": req["reason"],
		})
	})
	mux.HandleFunc("POST /api/appointments/submitNote", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /api/admin/getusers", func(w http.ResponseWriter, r *http.Request) {
		if code, body := b.takeFailure(); code != 0 {
			w.WriteHeader(code)
			_, _ = w.Write([]byte(body))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string][]string{
			"pat@example.com": {"ROLE_PATIENT"},
		})
	})
	mux.HandleFunc("POST /api/admin/addroles", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		// The canonical set comes back normalized, not the naive append.
		_ = json.NewEncoder(w).Encode(map[string]any{
			"email": req["email"],
			"roles": []string{"ROLE_NURSE", "ROLE_PATIENT"},
		})
	})
	mux.HandleFunc("POST /api/admin/activate", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /api/users/12/health-metrics", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]float64
		_ = json.NewDecoder(r.Body).Decode(&req)
		b.mu.Lock()
		b.metricPosts = append(b.metricPosts, req)
		b.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": 3, "weight": req["weight"], "height": req["height"], "bmi": 48.98,
			"recordedAt": "2025-03-10T14:00:00Z",
		})
	})
	mux.HandleFunc("GET /api/users/12/health-metrics", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"id": 3, "weight": 150.0, "height": 1.75, "bmi": 48.98, "recordedAt": "2025-03-10T14:00:00Z"},
		})
	})
	mux.HandleFunc("GET /api/appointments/1/note", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("BP 120/80, no concerns"))
	})
	return mux
}

func (b *fakeBackend) authed(r *http.Request) bool {
	c, err := r.Cookie("JSESSIONID")
	if err != nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.sessions[c.Value]
	return ok
}

func (b *fakeBackend) failOnce(code int, body string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failNext = code
	b.failBody = body
}

func (b *fakeBackend) takeFailure() (int, string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	code, body := b.failNext, b.failBody
	b.failNext, b.failBody = 0, ""
	return code, body
}

func (b *fakeBackend) lastCreate() map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.creates) == 0 {
		return nil
	}
	return b.creates[len(b.creates)-1]
}

type testGateway struct {
	backend *fakeBackend
	router  http.Handler
}

func newTestGateway(t *testing.T) *testGateway {
	return newGuardedTestGateway(t, nil)
}

func newGuardedTestGateway(t *testing.T, guard booking.Guard) *testGateway {
	t.Helper()
	backend := newFakeBackend()
	srv := httptest.NewServer(backend.handler())
	t.Cleanup(srv.Close)

	logger := logging.New("error")
	client, err := healthapi.New(healthapi.Config{BaseURL: srv.URL, Timeout: 5 * time.Second}, logger)
	require.NoError(t, err)
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	r := chi.NewRouter()
	auth := NewAuthHandler(client, nil, logger)
	providers := NewProvidersHandler(client, logger)
	appts := NewAppointmentsHandler(client, guard, nil, logger, 60*time.Minute, loc)
	notes := NewNotesHandler(client, logger)
	admin := NewAdminHandler(client, logger)
	hm := NewHealthMetricsHandler(client, logger)

	r.Post("/api/auth/login/patient", auth.LoginPatient)
	r.Post("/api/auth/logout", auth.Logout)
	r.Get("/api/me", auth.Me)
	r.Get("/api/providers", providers.List)
	r.Get("/api/providers/{providerID}/availability", appts.Availability)
	r.Get("/api/appointments/mine", appts.Mine)
	r.Post("/api/appointments", appts.Create)
	r.Post("/api/appointments/{appointmentID}/note", notes.SubmitNote)
	r.Get("/api/appointments/{appointmentID}/note", notes.GetNote)
	r.Get("/api/admin/users", admin.Users)
	r.Post("/api/admin/users/activate", admin.Activate)
	r.Post("/api/admin/users/roles/add", admin.AddRoles)
	r.Get("/api/users/{userID}/health-metrics", hm.List)
	r.Post("/api/users/{userID}/health-metrics", hm.Create)

	return &testGateway{backend: backend, router: r}
}

func (g *testGateway) do(method, path string, body any, cookie string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if cookie != "" {
		req.Header.Set("Cookie", cookie)
	}
	rec := httptest.NewRecorder()
	g.router.ServeHTTP(rec, req)
	return rec
}

func TestLoginRelaysSessionCookieAndIdentity(t *testing.T) {
	g := newTestGateway(t)

	rec := g.do(http.MethodPost, "/api/auth/login/patient",
		map[string]string{"email": "pat@example.com", "password": "correct"}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)
	assert.Equal(t, "JSESSIONID", cookies[0].Name)
	assert.Equal(t, "valid-session", cookies[0].Value)

	var id map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &id))
	assert.Equal(t, "pat@example.com", id["email"])
}

func TestLoginRelaysBackendErrorVerbatim(t *testing.T) {
	g := newTestGateway(t)

	rec := g.do(http.MethodPost, "/api/auth/login/patient",
		map[string]string{"email": "pat@example.com", "password": "wrong"}, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Invalid email or password", body["error"])
}

func TestMeRequiresSession(t *testing.T) {
	g := newTestGateway(t)

	rec := g.do(http.MethodGet, "/api/me", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = g.do(http.MethodGet, "/api/me", nil, "JSESSIONID=valid-session")
	require.Equal(t, http.StatusOK, rec.Code)
	var id map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &id))
	assert.Equal(t, float64(12), id["id"])
}

func TestProvidersListDegradesToEmpty(t *testing.T) {
	g := newTestGateway(t)

	rec := g.do(http.MethodGet, "/api/providers", nil, "JSESSIONID=valid-session")
	require.Equal(t, http.StatusOK, rec.Code)
	var providers []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &providers))
	require.Len(t, providers, 1)
	assert.Equal(t, "Dr. Wu", providers[0]["name"])

	// Backend failure still yields 200 with an empty list.
	g.backend.failOnce(http.StatusInternalServerError, "boom")
	rec = g.do(http.MethodGet, "/api/providers", nil, "JSESSIONID=valid-session")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &providers))
	assert.Empty(t, providers)
}

func TestAvailabilityValidatesDate(t *testing.T) {
	g := newTestGateway(t)

	rec := g.do(http.MethodGet, "/api/providers/7/availability?date=2025-03-10", nil, "JSESSIONID=valid-session")
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, []any{"09:00", "09:15"}, body["slots"])

	rec = g.do(http.MethodGet, "/api/providers/7/availability?date=03-10-2025", nil, "JSESSIONID=valid-session")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateAppointmentConvertsSlotToInterval(t *testing.T) {
	g := newTestGateway(t)

	rec := g.do(http.MethodPost, "/api/appointments", map[string]any{
		"providerId": 7,
		"date":       "2025-03-10",
		"slot":       "09:00",
		"reason":     "Annual checkup",
	}, "JSESSIONID=valid-session")
	require.Equal(t, http.StatusCreated, rec.Code)

	created := g.backend.lastCreate()
	require.NotNil(t, created)
	// 09:00 clinic time on 2025-03-10 is 13:00 UTC (EDT).
	start, err := time.Parse(time.RFC3339, created["startTime"].(string))
	require.NoError(t, err)
	end, err := time.Parse(time.RFC3339, created["endTime"].(string))
	require.NoError(t, err)
	assert.Equal(t, time.Hour, end.Sub(start))
	assert.Equal(t, "2025-03-10T13:00:00Z", start.UTC().Format(time.RFC3339))
	_, hasPatient := created["patientId"]
	assert.False(t, hasPatient)
}

func TestCreateAppointmentRejectsIncompleteBody(t *testing.T) {
	g := newTestGateway(t)

	for _, body := range []map[string]any{
		{"providerId": 7, "date": "2025-03-10", "slot": "09:00"},
		{"providerId": 7, "date": "2025-03-10", "slot": "09:00", "reason": "  "},
		{"providerId": 7, "date": "2025-03-10", "reason": "Checkup"},
		{"date": "2025-03-10", "slot": "09:00", "reason": "Checkup"},
		{"providerId": 7, "date": "2025-03-10", "slot": "9:00", "reason": "Checkup"},
	} {
		rec := g.do(http.MethodPost, "/api/appointments", body, "JSESSIONID=valid-session")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	}
	assert.Nil(t, g.backend.lastCreate())
}

func TestCreateAppointmentRelaysConflictVerbatim(t *testing.T) {
	g := newTestGateway(t)

	msg := "Doctor not available: Slot conflicts with another appointment's buffer"
	g.backend.failOnce(http.StatusConflict, msg)

	rec := g.do(http.MethodPost, "/api/appointments", map[string]any{
		"providerId": 7, "date": "2025-03-10", "slot": "09:00", "reason": "Checkup",
	}, "JSESSIONID=valid-session")
	require.Equal(t, http.StatusConflict, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, msg, body["error"])
}

func TestCreateAppointmentRetryableAfterBackendRejection(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	g := newGuardedTestGateway(t, cache.NewIdempotencyGuard(rdb, time.Minute))

	body := map[string]any{
		"providerId": 7, "date": "2025-03-10", "slot": "09:00", "reason": "Checkup",
	}

	g.backend.failOnce(http.StatusConflict, "Doctor is not available at that time")
	rec := g.do(http.MethodPost, "/api/appointments", body, "JSESSIONID=valid-session")
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "Doctor is not available at that time")

	// The rejection released the idempotency key, so the identical retry
	// reaches the backend instead of bouncing off the duplicate claim.
	rec = g.do(http.MethodPost, "/api/appointments", body, "JSESSIONID=valid-session")
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotNil(t, g.backend.lastCreate())
}

func TestCreateAppointmentDuplicateClaimHeldAfterSuccess(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	g := newGuardedTestGateway(t, cache.NewIdempotencyGuard(rdb, time.Minute))

	body := map[string]any{
		"providerId": 7, "date": "2025-03-10", "slot": "09:00", "reason": "Checkup",
	}

	rec := g.do(http.MethodPost, "/api/appointments", body, "JSESSIONID=valid-session")
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = g.do(http.MethodPost, "/api/appointments", body, "JSESSIONID=valid-session")
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "an identical booking was just submitted")
}

func TestMineRoutesPatientList(t *testing.T) {
	g := newTestGateway(t)

	rec := g.do(http.MethodGet, "/api/appointments/mine", nil, "JSESSIONID=valid-session")
	require.Equal(t, http.StatusOK, rec.Code)
	var appts []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &appts))
	require.Len(t, appts, 1)
	assert.Equal(t, "Checkup", appts[0]["reason"])
}

func TestNoteRoundTrip(t *testing.T) {
	g := newTestGateway(t)

	rec := g.do(http.MethodPost, "/api/appointments/1/note",
		map[string]string{"contents": "BP 120/80, no concerns"}, "JSESSIONID=valid-session")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = g.do(http.MethodPost, "/api/appointments/1/note",
		map[string]string{"contents": "   "}, "JSESSIONID=valid-session")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = g.do(http.MethodGet, "/api/appointments/1/note", nil, "JSESSIONID=valid-session")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "BP 120/80, no concerns", rec.Body.String())
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain"))
}

func TestLogoutExpiresCookieWhenBackendFails(t *testing.T) {
	g := newTestGateway(t)
	g.backend.failOnce(http.StatusInternalServerError, "boom")

	rec := g.do(http.MethodPost, "/api/auth/logout", nil, "JSESSIONID=valid-session")
	require.Equal(t, http.StatusNoContent, rec.Code)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "JSESSIONID", cookies[0].Name)
	assert.Empty(t, cookies[0].Value)
	assert.Negative(t, cookies[0].MaxAge)
}

func TestAdminRoleChangeReturnsServerConfirmedSet(t *testing.T) {
	g := newTestGateway(t)

	rec := g.do(http.MethodPost, "/api/admin/users/roles/add",
		map[string]any{"email": "pat@example.com", "roles": []string{"ROLE_NURSE"}}, "JSESSIONID=valid-session")
	require.Equal(t, http.StatusOK, rec.Code)

	var grant struct {
		Email string   `json:"email"`
		Roles []string `json:"roles"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &grant))
	assert.Equal(t, "pat@example.com", grant.Email)
	assert.Equal(t, []string{"ROLE_NURSE", "ROLE_PATIENT"}, grant.Roles)
}

func TestAdminAccountActionRequiresEmail(t *testing.T) {
	g := newTestGateway(t)

	rec := g.do(http.MethodPost, "/api/admin/users/activate",
		map[string]any{"email": "  "}, "JSESSIONID=valid-session")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminUsersRelaysBackendDenial(t *testing.T) {
	g := newTestGateway(t)
	g.backend.failOnce(http.StatusForbidden, "Access Denied")

	rec := g.do(http.MethodGet, "/api/admin/users", nil, "JSESSIONID=valid-session")
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "Access Denied")
}

func TestHealthMetricCreateNormalizesUnits(t *testing.T) {
	g := newTestGateway(t)

	rec := g.do(http.MethodPost, "/api/users/12/health-metrics",
		map[string]any{"weight": "68 kg", "height": `5'10"`}, "JSESSIONID=valid-session")
	require.Equal(t, http.StatusCreated, rec.Code)

	require.Len(t, g.backend.metricPosts, 1)
	assert.InDelta(t, 149.91, g.backend.metricPosts[0]["weight"], 0.01)
	assert.InDelta(t, 1.78, g.backend.metricPosts[0]["height"], 0.01)

	// Bare numbers pass through unchanged.
	rec = g.do(http.MethodPost, "/api/users/12/health-metrics",
		map[string]any{"weight": 150, "height": 1.75}, "JSESSIONID=valid-session")
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, g.backend.metricPosts, 2)
	assert.InDelta(t, 150, g.backend.metricPosts[1]["weight"], 0.001)
	assert.InDelta(t, 1.75, g.backend.metricPosts[1]["height"], 0.001)
}

func TestHealthMetricCreateRejectsBadInput(t *testing.T) {
	g := newTestGateway(t)

	rec := g.do(http.MethodPost, "/api/users/12/health-metrics",
		map[string]any{"weight": "150", "height": "way up there"}, "JSESSIONID=valid-session")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, g.backend.metricPosts)
}

func TestHealthMetricList(t *testing.T) {
	g := newTestGateway(t)

	rec := g.do(http.MethodGet, "/api/users/12/health-metrics", nil, "JSESSIONID=valid-session")
	require.Equal(t, http.StatusOK, rec.Code)
	var metrics []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &metrics))
	require.Len(t, metrics, 1)
	assert.Equal(t, 48.98, metrics[0]["bmi"])
}

func TestJSONError(t *testing.T) {
	rec := httptest.NewRecorder()
	jsonError(rec, "oops", http.StatusTeapot)

	require.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "oops", body["error"])
}
