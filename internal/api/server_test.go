package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/classroom-core/internal/appliance"
	"github.com/nerrad567/classroom-core/internal/audit"
	"github.com/nerrad567/classroom-core/internal/automation"
	"github.com/nerrad567/classroom-core/internal/control"
	"github.com/nerrad567/classroom-core/internal/device"
	"github.com/nerrad567/classroom-core/internal/history"
	"github.com/nerrad567/classroom-core/internal/infrastructure/config"
	"github.com/nerrad567/classroom-core/internal/infrastructure/database"
	"github.com/nerrad567/classroom-core/internal/infrastructure/logging"
	_ "github.com/nerrad567/classroom-core/migrations"
)

const testSecret = "test-secret-key-at-least-32-characters-long"

// mockPublisher records published control payloads.
type mockPublisher struct {
	mu       sync.Mutex
	payloads [][]byte
	err      error
}

func (m *mockPublisher) Publish(_ string, payload []byte, _ byte, _ bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.payloads = append(m.payloads, payload)
	return nil
}

func (m *mockPublisher) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.payloads)
}

type stubHealth struct{ err error }

func (s stubHealth) HealthCheck(context.Context) error { return s.err }

type stubScheduler struct {
	firings []automation.Firing
}

func (s stubScheduler) LatestObserved() (time.Time, bool) {
	return time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC), true
}
func (s stubScheduler) LastChecked() (time.Time, bool) {
	return time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC), true
}
func (s stubScheduler) RecentFirings() []automation.Firing { return s.firings }

type fixture struct {
	srv     *Server
	handler http.Handler
	store   *device.Store
	pub     *mockPublisher
	rules   *automation.Registry
	history *history.Service
}

func testLogger() *logging.Logger {
	return logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
}

// newFixture builds a server over a migrated in-memory database. mutate may
// adjust the dependencies before the server is created.
func newFixture(t *testing.T, mutate func(*Deps)) *fixture {
	t.Helper()

	db, err := database.Open(database.Config{Path: database.MemoryPath, BusyTimeout: 1})
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrating: %v", err)
	}

	store := device.NewStore()
	pub := &mockPublisher{}
	ctrl := control.NewService(pub, store, nil, control.Options{})
	rules := automation.NewRegistry(automation.NewSQLiteRepository(db.DB))
	hist := history.NewService(device.NewSQLiteTelemetryRepository(db.DB))
	trail := audit.NewSQLiteRepository(db.DB)
	ctrl.SetAudit(trail)

	deps := Deps{
		Config: config.APIConfig{Host: "127.0.0.1", Port: 0},
		WS:     config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10},
		Security: config.SecurityConfig{
			JWT: config.JWTConfig{Secret: testSecret, AccessTokenTTL: 15},
		},
		Logger:     testLogger(),
		Store:      store,
		Control:    ctrl,
		Rules:      rules,
		Scheduler:  stubScheduler{},
		History:    hist,
		Audit:      trail,
		Components: map[string]HealthChecker{"database": db},
		Stats:      db,
		Version:    "test",
	}
	if mutate != nil {
		mutate(&deps)
	}

	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	ctrl.SetHub(srv.Hub())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go srv.hub.Run(ctx)

	return &fixture{
		srv:     srv,
		handler: srv.Handler(),
		store:   store,
		pub:     pub,
		rules:   rules,
		history: hist,
	}
}

func (f *fixture) do(t *testing.T, method, path, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
	return v
}

func wantStatus(t *testing.T, w *httptest.ResponseRecorder, status int) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("status = %d, want %d (body %s)", w.Code, status, w.Body.String())
	}
}

// ─── Construction ──────────────────────────────────────────────────

func TestNew_RequiredDeps(t *testing.T) {
	base := func() Deps {
		return Deps{
			Logger:  testLogger(),
			Store:   device.NewStore(),
			Rules:   automation.NewRegistry(nil),
			History: history.NewService(nil),
		}
	}
	tests := []struct {
		name   string
		mutate func(*Deps)
	}{
		{"no logger", func(d *Deps) { d.Logger = nil }},
		{"no store", func(d *Deps) { d.Store = nil }},
		{"no rules", func(d *Deps) { d.Rules = nil }},
		{"no history", func(d *Deps) { d.History = nil }},
		{"auth without operators", func(d *Deps) { d.Security.AuthEnabled = true }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := base()
			tt.mutate(&d)
			if _, err := New(d); err == nil {
				t.Error("New() should fail")
			}
		})
	}
	if _, err := New(base()); err != nil {
		t.Errorf("New() with required deps: %v", err)
	}
}

// ─── Health and middleware ─────────────────────────────────────────

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(t, http.MethodGet, "/api/v1/health", "")
	wantStatus(t, w, http.StatusOK)
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	resp := decode[map[string]any](t, w)
	if resp["status"] != "ok" || resp["version"] != "test" {
		t.Errorf("health = %v", resp)
	}
}

func TestHealth_Degraded(t *testing.T) {
	f := newFixture(t, func(d *Deps) {
		d.Components["mqtt"] = stubHealth{err: errors.New("not connected")}
	})

	w := f.do(t, http.MethodGet, "/api/v1/health", "")
	wantStatus(t, w, http.StatusServiceUnavailable)
	resp := decode[struct {
		Status     string            `json:"status"`
		Components map[string]string `json:"components"`
	}](t, w)
	if resp.Status != "degraded" {
		t.Errorf("status = %q, want degraded", resp.Status)
	}
	if resp.Components["mqtt"] != "not connected" || resp.Components["database"] != "ok" {
		t.Errorf("components = %v", resp.Components)
	}
}

func TestRequestID(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(t, http.MethodGet, "/api/v1/health", "")
	if len(w.Header().Get("X-Request-ID")) != 36 {
		t.Errorf("generated X-Request-ID = %q", w.Header().Get("X-Request-ID"))
	}

	w = f.do(t, http.MethodGet, "/api/v1/health", "", "X-Request-ID", "client-42")
	if got := w.Header().Get("X-Request-ID"); got != "client-42" {
		t.Errorf("X-Request-ID = %q, want client-42", got)
	}
}

func TestCORS_Preflight(t *testing.T) {
	f := newFixture(t, func(d *Deps) {
		d.Config.CORS.AllowedOrigins = []string{"http://dashboard.local"}
	})

	w := f.do(t, http.MethodOptions, "/api/v1/latest", "", "Origin", "http://dashboard.local")
	wantStatus(t, w, http.StatusNoContent)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://dashboard.local" {
		t.Errorf("Allow-Origin = %q", got)
	}

	w = f.do(t, http.MethodOptions, "/api/v1/latest", "", "Origin", "http://evil.example")
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("disallowed origin got Allow-Origin = %q", got)
	}
}

func TestBodySizeLimit(t *testing.T) {
	f := newFixture(t, nil)
	big := `{"name":"` + strings.Repeat("x", maxRequestBodySize) + `"}`

	w := f.do(t, http.MethodPost, "/api/v1/rules", big)
	wantStatus(t, w, http.StatusRequestEntityTooLarge)
}

func TestRecovery(t *testing.T) {
	f := newFixture(t, nil)
	h := f.srv.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	wantStatus(t, w, http.StatusInternalServerError)
	if resp := decode[Error](t, w); resp.Code != ErrCodeInternal {
		t.Errorf("code = %q", resp.Code)
	}
}

// ─── Latest and control ────────────────────────────────────────────

func TestLatest(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(t, http.MethodGet, "/api/v1/latest", "")
	wantStatus(t, w, http.StatusOK)
	if strings.TrimSpace(w.Body.String()) != "{}" {
		t.Errorf("empty latest = %s, want {}", w.Body.String())
	}

	state := appliance.DefaultState()
	state.LEDs[0] = true
	f.store.Write(device.Snapshot{
		DeviceID:   "classroom-001",
		ObservedAt: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC),
		State:      state,
		Power:      appliance.ComputePower(state),
	})

	w = f.do(t, http.MethodGet, "/api/v1/latest", "")
	wantStatus(t, w, http.StatusOK)
	resp := decode[map[string]any](t, w)
	if resp["timestamp"] != "2026-03-02T08:00:00" || resp["power"] != 100.0 {
		t.Errorf("latest = %v", resp)
	}
}

func TestControl(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(t, http.MethodPost, "/api/v1/control",
		`{"state":{"led":{"led1":1},"air_conditioner":{"state":"on","mode":"heat","level":3},"multimedia":"standby"}}`)
	wantStatus(t, w, http.StatusOK)

	msg := decode[struct {
		State  appliance.DeviceState `json:"state"`
		Source string                `json:"source"`
	}](t, w)
	if msg.Source != control.SourceAPI {
		t.Errorf("source = %q", msg.Source)
	}
	if !msg.State.LEDs[0] || msg.State.LEDs[1] || msg.State.AC.Level != 3 || msg.State.Multimedia != appliance.MultimediaStandby {
		t.Errorf("state = %s", msg.State)
	}
	if f.pub.count() != 1 {
		t.Errorf("published %d messages, want 1", f.pub.count())
	}
}

func TestControl_Errors(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		body     string
		pubErr   error
		status   int
		wantCode string
	}{
		{"invalid json", "/api/v1/control", `{`, nil, http.StatusBadRequest, ErrCodeBadRequest},
		{"empty body", "/api/v1/control", ``, nil, http.StatusBadRequest, ErrCodeBadRequest},
		{"missing state", "/api/v1/control", `{}`, nil, http.StatusBadRequest, ErrCodeBadRequest},
		{"publish failure", "/api/v1/control", `{"state":{}}`, errors.New("broker down"), http.StatusServiceUnavailable, ErrCodeUnavailable},
		{"bad intent value", "/api/v1/control/intent", `{"air_conditioner":{"level":9}}`, nil, http.StatusBadRequest, ErrCodeValidation},
		{"unknown intent field", "/api/v1/control/intent", `{"fan":1}`, nil, http.StatusBadRequest, ErrCodeValidation},
		{"unknown device", "/api/v1/control/command", `{"device_type":"fan","action":"on"}`, nil, http.StatusBadRequest, ErrCodeValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			f.pub.err = tt.pubErr

			w := f.do(t, http.MethodPost, tt.path, tt.body)
			wantStatus(t, w, tt.status)
			if resp := decode[Error](t, w); resp.Code != tt.wantCode {
				t.Errorf("code = %q, want %q (%s)", resp.Code, tt.wantCode, resp.Message)
			}
		})
	}
}

func TestControl_NotConfigured(t *testing.T) {
	f := newFixture(t, func(d *Deps) { d.Control = nil })

	for _, path := range []string{"/api/v1/control", "/api/v1/control/intent", "/api/v1/control/command"} {
		w := f.do(t, http.MethodPost, path, `{}`)
		wantStatus(t, w, http.StatusServiceUnavailable)
	}
}

func TestControlIntent_MergesCurrentState(t *testing.T) {
	f := newFixture(t, nil)
	current := appliance.DefaultState()
	current.LEDs[3] = true
	f.store.Write(device.Snapshot{State: current})

	w := f.do(t, http.MethodPost, "/api/v1/control/intent", `{"led":{"led1":1},"multimedia":"on"}`)
	wantStatus(t, w, http.StatusOK)

	msg := decode[struct {
		State appliance.DeviceState `json:"state"`
	}](t, w)
	if !msg.State.LEDs[0] || !msg.State.LEDs[3] || msg.State.Multimedia != appliance.MultimediaOn {
		t.Errorf("state = %s", msg.State)
	}
}

func TestControlCommand(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(t, http.MethodPost, "/api/v1/control/command", `{"device_type":"led","action":"on","led_numbers":[2]}`)
	wantStatus(t, w, http.StatusOK)

	res := decode[control.Result](t, w)
	if res.Description == "" {
		t.Error("description is empty")
	}
	if !res.State.LEDs[1] || res.State.LEDs[0] {
		t.Errorf("state = %s", res.State)
	}
}

// ─── Rules ─────────────────────────────────────────────────────────

func TestRules_CRUD(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(t, http.MethodPost, "/api/v1/rules",
		`{"name":"Lights on","schedule":{"type":"weekly","time":"08:00","days":[5,1]},"actions":{"led":{"led1":1,"led2":1}}}`)
	wantStatus(t, w, http.StatusCreated)
	created := decode[automation.Rule](t, w)
	if created.ID == "" || !created.Enabled {
		t.Fatalf("created = %+v", created)
	}
	if len(created.Schedule.Days) != 2 || created.Schedule.Days[0] != 1 {
		t.Errorf("days = %v, want [1 5]", created.Schedule.Days)
	}

	w = f.do(t, http.MethodGet, "/api/v1/rules/"+created.ID, "")
	wantStatus(t, w, http.StatusOK)

	w = f.do(t, http.MethodPut, "/api/v1/rules/"+created.ID,
		`{"name":"Lights on","enabled":false,"schedule":{"type":"daily","time":"07:45"},"actions":{"multimedia":"on"}}`)
	wantStatus(t, w, http.StatusOK)
	updated := decode[automation.Rule](t, w)
	if updated.Enabled || updated.Schedule.Time != "07:45" || updated.Schedule.Days != nil {
		t.Errorf("updated = %+v", updated)
	}

	w = f.do(t, http.MethodPatch, "/api/v1/rules/"+created.ID+"/enabled", `{"enabled":true}`)
	wantStatus(t, w, http.StatusOK)
	if !decode[automation.Rule](t, w).Enabled {
		t.Error("rule not re-enabled")
	}

	w = f.do(t, http.MethodGet, "/api/v1/rules", "")
	wantStatus(t, w, http.StatusOK)
	list := decode[struct {
		Rules []automation.Rule `json:"rules"`
		Count int               `json:"count"`
	}](t, w)
	if list.Count != 1 || len(list.Rules) != 1 {
		t.Errorf("list = %+v", list)
	}

	w = f.do(t, http.MethodDelete, "/api/v1/rules/"+created.ID, "")
	wantStatus(t, w, http.StatusNoContent)

	w = f.do(t, http.MethodGet, "/api/v1/rules/"+created.ID, "")
	wantStatus(t, w, http.StatusNotFound)
}

func TestRules_Errors(t *testing.T) {
	f := newFixture(t, nil)
	valid := `{"name":"Morning","schedule":{"type":"daily","time":"08:00"},"actions":{"multimedia":"on"}}`
	wantStatus(t, f.do(t, http.MethodPost, "/api/v1/rules", valid), http.StatusCreated)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"duplicate name", http.MethodPost, "/api/v1/rules", valid, http.StatusConflict},
		{"bad time", http.MethodPost, "/api/v1/rules",
			`{"name":"X","schedule":{"type":"daily","time":"25:00"},"actions":{"multimedia":"on"}}`, http.StatusBadRequest},
		{"no actions", http.MethodPost, "/api/v1/rules",
			`{"name":"X","schedule":{"type":"daily","time":"08:00"},"actions":{}}`, http.StatusBadRequest},
		{"bad action value", http.MethodPost, "/api/v1/rules",
			`{"name":"X","schedule":{"type":"daily","time":"08:00"},"actions":{"multimedia":"loud"}}`, http.StatusBadRequest},
		{"update unknown", http.MethodPut, "/api/v1/rules/nope", valid, http.StatusNotFound},
		{"enable unknown", http.MethodPatch, "/api/v1/rules/nope/enabled", `{"enabled":true}`, http.StatusNotFound},
		{"enable missing field", http.MethodPatch, "/api/v1/rules/nope/enabled", `{}`, http.StatusBadRequest},
		{"delete unknown", http.MethodDelete, "/api/v1/rules/nope", "", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wantStatus(t, f.do(t, tt.method, tt.path, tt.body), tt.status)
		})
	}
}

// ─── History, firings and metrics ──────────────────────────────────

func TestHistoryRoutes(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(t, http.MethodGet, "/api/v1/available-dates", "")
	wantStatus(t, w, http.StatusOK)
	if strings.TrimSpace(w.Body.String()) != `{"dates":[]}` {
		t.Errorf("available-dates = %s", w.Body.String())
	}

	w = f.do(t, http.MethodPost, "/api/v1/query-history",
		`{"start_date":"2026-03-02","end_date":"2026-03-03","data_type":"power"}`)
	wantStatus(t, w, http.StatusOK)
	res := decode[history.Result](t, w)
	if res.Unit != history.Hour || res.Data == nil {
		t.Errorf("query = %+v", res)
	}

	w = f.do(t, http.MethodPost, "/api/v1/query-history",
		`{"start_date":"2026-03-05","end_date":"2026-03-01","data_type":"power","unit":"day"}`)
	wantStatus(t, w, http.StatusBadRequest)

	w = f.do(t, http.MethodGet, "/api/v1/energy-report?start=2026-03-02", "")
	wantStatus(t, w, http.StatusBadRequest)

	w = f.do(t, http.MethodGet, "/api/v1/energy-report?start=2026-03-02&end=2026-03-04", "")
	wantStatus(t, w, http.StatusOK)
}

func TestFirings(t *testing.T) {
	fired := automation.Firing{RuleID: "r1", RuleName: "Morning", Dispatched: true}
	f := newFixture(t, func(d *Deps) {
		d.Scheduler = stubScheduler{firings: []automation.Firing{fired}}
	})

	w := f.do(t, http.MethodGet, "/api/v1/scheduler/firings", "")
	wantStatus(t, w, http.StatusOK)
	resp := decode[struct {
		Firings []automation.Firing `json:"firings"`
		Count   int                 `json:"count"`
	}](t, w)
	if resp.Count != 1 || resp.Firings[0].RuleID != "r1" {
		t.Errorf("firings = %+v", resp)
	}

	none := newFixture(t, func(d *Deps) { d.Scheduler = nil })
	w = none.do(t, http.MethodGet, "/api/v1/scheduler/firings", "")
	if !bytes.Contains(w.Body.Bytes(), []byte(`"firings":[]`)) {
		t.Errorf("no scheduler firings = %s", w.Body.String())
	}
}

func TestMetrics(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(t, http.MethodGet, "/api/v1/metrics", "")
	wantStatus(t, w, http.StatusOK)
	m := decode[SystemMetrics](t, w)
	if m.Version != "test" || m.Runtime.Goroutines == 0 {
		t.Errorf("metrics = %+v", m)
	}
	if !m.Components["database"] {
		t.Error("database component not reported healthy")
	}
	if m.Scheduler.LatestObserved != "2026-03-02T08:00:00" {
		t.Errorf("latest observed = %q", m.Scheduler.LatestObserved)
	}
	if m.Database == nil || m.Database.OpenConnections < 0 {
		t.Errorf("database metrics = %+v", m.Database)
	}
}

func TestNotFound(t *testing.T) {
	f := newFixture(t, nil)
	wantStatus(t, f.do(t, http.MethodGet, "/api/v1/nonexistent", ""), http.StatusNotFound)
}

func TestPanelMount(t *testing.T) {
	panel := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("panel")) //nolint:errcheck // test handler
	})
	f := newFixture(t, func(d *Deps) { d.Panel = panel })

	w := f.do(t, http.MethodGet, "/lights", "")
	wantStatus(t, w, http.StatusOK)
	if w.Body.String() != "panel" {
		t.Errorf("GET /lights body = %q, want panel", w.Body.String())
	}
	wantStatus(t, f.do(t, http.MethodGet, "/api/v1/nonexistent", ""), http.StatusNotFound)
	wantStatus(t, f.do(t, http.MethodGet, "/api/v1/health", ""), http.StatusOK)
}

// ─── Server lifecycle ──────────────────────────────────────────────

func TestServer_StartAndClose(t *testing.T) {
	f := newFixture(t, nil)
	if err := f.srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck before Start should fail")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := f.srv.Start(ctx); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	resp, err := http.Get("http://" + f.srv.Addr() + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if err := f.srv.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck after Start: %v", err)
	}

	if err := f.srv.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
}
