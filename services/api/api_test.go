package api

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"activityaudit/pkg/app"
	"activityaudit/pkg/config"
	"activityaudit/services/audit"
)

const adminToken = "test-admin-token"

type testServer struct {
	handler http.Handler
	clock   *clockwork.FakeClock
	deps    *app.Deps
}

func newTestServer(t *testing.T, mutate ...func(*config.Config, *Config)) *testServer {
	t.Helper()

	cfg := config.Config{
		StoreDriver:   config.DriverMemory,
		RetentionDays: 90,
		SweepInterval: 24 * time.Hour,
		AdminToken:    adminToken,
		LogFormat:     "json",
	}
	apiCfg := Config{}
	for _, m := range mutate {
		m(&cfg, &apiCfg)
	}

	clock := clockwork.NewFakeClockAt(time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC))
	deps, err := app.Build(t.Context(), cfg, zerolog.Nop(), app.WithClock(clock))
	require.NoError(t, err)
	t.Cleanup(func() { _ = deps.Close() })

	a, err := New(Services{
		Activities: deps.Activities,
		Query:      deps.Query,
		Sweeper:    deps.Sweeper,
		Gate:       deps.Gate,
		Ready:      deps.Ready,
		Gatherer:   deps.Registry,
	}, apiCfg, zerolog.Nop())
	require.NoError(t, err)

	h, err := a.Routes()
	require.NoError(t, err)
	return &testServer{handler: h, clock: clock, deps: deps}
}

func (s *testServer) do(t *testing.T, method, target string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	req.RemoteAddr = "10.0.0.9:51234"
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) admin(t *testing.T, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	return s.do(t, method, target, map[string]string{"Authorization": "Bearer " + adminToken})
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealthAndReady(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", rec.Body.String())
}

func TestActivitiesFlow(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/activities", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	all := decode[map[string]struct {
		MaxParticipants int      `json:"max_participants"`
		Participants    []string `json:"participants"`
	}](t, rec)
	assert.Len(t, all, 9)
	assert.Equal(t, 12, all["Chess Club"].MaxParticipants)

	rec = s.do(t, http.MethodPost, "/activities/Chess%20Club/signup?email=new@mergington.edu", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Signed up new@mergington.edu for Chess Club", decode[map[string]string](t, rec)["message"])

	rec = s.do(t, http.MethodPost, "/activities/Chess%20Club/signup?email=new@mergington.edu", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/activities/Knitting/signup?email=new@mergington.edu", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPost, "/activities/Chess%20Club/signup", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodDelete, "/activities/Chess%20Club/unregister?email=new@mergington.edu", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Unregistered new@mergington.edu from Chess Club", decode[map[string]string](t, rec)["message"])

	rec = s.do(t, http.MethodDelete, "/activities/Chess%20Club/unregister?email=new@mergington.edu", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminRoutesRequireCredential(t *testing.T) {
	s := newTestServer(t)

	paths := []struct{ method, path string }{
		{http.MethodGet, "/admin/audit-logs"},
		{http.MethodGet, "/admin/audit-logs/export"},
		{http.MethodGet, "/admin/audit-logs/stats"},
		{http.MethodPost, "/admin/audit-logs/purge"},
	}
	creds := []map[string]string{
		nil,
		{"Authorization": "Bearer wrong"},
		{"Authorization": "Basic " + adminToken},
		{"X-Admin-Token": "wrong"},
	}

	for _, p := range paths {
		for _, h := range creds {
			rec := s.do(t, p.method, p.path, h)
			assert.Equal(t, http.StatusForbidden, rec.Code, "%s %s %v", p.method, p.path, h)
		}
	}

	rec := s.do(t, http.MethodGet, "/admin/audit-logs/stats", map[string]string{"X-Admin-Token": adminToken})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminRoutesRefuseWithoutConfiguredSecret(t *testing.T) {
	s := newTestServer(t, func(c *config.Config, _ *Config) { c.AdminToken = "" })

	rec := s.do(t, http.MethodGet, "/admin/audit-logs", map[string]string{"Authorization": "Bearer "})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAdminJWT(t *testing.T) {
	s := newTestServer(t, func(c *config.Config, _ *Config) { c.AdminJWTSecret = "jwt-secret" })

	token, err := audit.IssueAdminToken("jwt-secret", "ops@mergington.edu", time.Hour, s.clock.Now())
	require.NoError(t, err)

	rec := s.do(t, http.MethodGet, "/admin/audit-logs", map[string]string{"Authorization": "Bearer " + token})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSignupIsAuditedAndListed(t *testing.T) {
	s := newTestServer(t)

	for _, email := range []string{"a@mergington.edu", "b@mergington.edu", "c@mergington.edu"} {
		rec := s.do(t, http.MethodPost, "/activities/Art%20Club/signup?email="+email,
			map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"})
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := s.do(t, http.MethodDelete, "/activities/Art%20Club/unregister?email=a@mergington.edu", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.admin(t, http.MethodGet, "/admin/audit-logs?limit=2&offset=1")
	require.Equal(t, http.StatusOK, rec.Code)
	page := decode[audit.Page](t, rec)
	assert.Equal(t, int64(4), page.Total)
	require.Len(t, page.Logs, 2)
	assert.Equal(t, int64(3), page.Logs[0].ID)
	assert.Equal(t, audit.ActionSignup, page.Logs[0].Action)
	assert.Equal(t, "203.0.113.7", *page.Logs[0].IPAddress)
	assert.Equal(t, "Art Club", *page.Logs[0].ActivityName)

	rec = s.admin(t, http.MethodGet, "/admin/audit-logs/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[audit.Stats](t, rec)
	assert.Equal(t, int64(4), stats.TotalLogs)
	assert.Equal(t, map[audit.Action]int64{audit.ActionSignup: 3, audit.ActionUnregister: 1}, stats.ActionCounts)
	assert.Equal(t, 90, stats.RetentionDays)

	for _, q := range []string{"limit=abc", "limit=-1", "offset=-5"} {
		rec = s.admin(t, http.MethodGet, "/admin/audit-logs?"+q)
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestExport(t *testing.T) {
	s := newTestServer(t)

	rec := s.admin(t, http.MethodGet, "/admin/audit-logs/export")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment;")
	assert.Equal(t, strings.Join(audit.ExportHeader, ",")+"\n", rec.Body.String())

	rec = s.do(t, http.MethodPost, "/activities/Gym%20Class/signup?email=x@mergington.edu", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.admin(t, http.MethodGet, "/admin/audit-logs/export")
	require.Equal(t, http.StatusOK, rec.Code)
	rows, err := csv.NewReader(rec.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"1", "2026-03-01T09:00:00Z", "signup", "x@mergington.edu", "Gym Class",
		"Signed up x@mergington.edu for Gym Class", "10.0.0.9"}, rows[1])
}

func TestPurge(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/activities/Gym%20Class/signup?email=old@mergington.edu", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	s.clock.Advance(91 * 24 * time.Hour)
	rec = s.do(t, http.MethodPost, "/activities/Gym%20Class/signup?email=new@mergington.edu", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.admin(t, http.MethodPost, "/admin/audit-logs/purge")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1), decode[audit.SweepResult](t, rec).Deleted)

	rec = s.admin(t, http.MethodPost, "/admin/audit-logs/purge")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, decode[audit.SweepResult](t, rec).Deleted)

	rec = s.admin(t, http.MethodGet, "/admin/audit-logs")
	assert.Equal(t, int64(1), decode[audit.Page](t, rec).Total)
}

func TestPurgeWithRetentionDisabled(t *testing.T) {
	s := newTestServer(t, func(c *config.Config, _ *Config) { c.RetentionDays = 0 })

	rec := s.admin(t, http.MethodPost, "/admin/audit-logs/purge")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.admin(t, http.MethodGet, "/admin/audit-logs/stats")
	assert.Equal(t, 0, decode[audit.Stats](t, rec).RetentionDays)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/activities/Gym%20Class/signup?email=m@mergington.edu", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `audit_records_written_total{action="signup"} 1`)
}

func TestStaticRedirect(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>Mergington</h1>"), 0o600))
	s := newTestServer(t, func(_ *config.Config, c *Config) { c.StaticDir = dir })

	rec := s.do(t, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.Equal(t, "/static/index.html", rec.Header().Get("Location"))

	rec = s.do(t, http.MethodGet, "/static/index.html", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "Mergington")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.js"), []byte("console.log(1)"), 0o600))
	rec = s.do(t, http.MethodGet, "/static/app.js", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "console.log(1)", rec.Body.String())
}

func TestStaticIndexMissing(t *testing.T) {
	s := newTestServer(t, func(_ *config.Config, c *Config) { c.StaticDir = t.TempDir() })

	rec := s.do(t, http.MethodGet, "/static/index.html", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

type unreachableStore struct {
	audit.Store
}

func (unreachableStore) Stream(context.Context, func(audit.Record) error) error {
	return errors.New("dial tcp 127.0.0.1:5432: connect: connection refused")
}

func TestExportStorageFailureIsReportedAsError(t *testing.T) {
	s := newTestServer(t)
	failing := unreachableStore{Store: s.deps.Store}
	query, err := audit.NewQueryService(failing, 90, zerolog.Nop())
	require.NoError(t, err)

	a, err := New(Services{
		Activities: s.deps.Activities,
		Query:      query,
		Sweeper:    s.deps.Sweeper,
		Gate:       s.deps.Gate,
		Gatherer:   s.deps.Registry,
	}, Config{}, zerolog.Nop())
	require.NoError(t, err)
	h, err := a.Routes()
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/admin/audit-logs/export", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	rec := httptest.NewRecorder()
	require.NotPanics(t, func() { h.ServeHTTP(rec, req) })

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Empty(t, rec.Header().Get("Content-Disposition"))
	assert.JSONEq(t, `{"error":"internal error"}`, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), strings.Join(audit.ExportHeader, ","))
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{name: "forwarded list", headers: map[string]string{"X-Forwarded-For": "198.51.100.1, 10.0.0.1"}, remote: "10.0.0.2:1", want: "198.51.100.1"},
		{name: "real ip", headers: map[string]string{"X-Real-IP": "198.51.100.2"}, remote: "10.0.0.2:1", want: "198.51.100.2"},
		{name: "remote with port", remote: "192.0.2.5:8080", want: "192.0.2.5"},
		{name: "ipv6 remote", remote: "[2001:db8::1]:443", want: "2001:db8::1"},
		{name: "remote without port", remote: "192.0.2.6", want: "192.0.2.6"},
		{name: "blank forwarded", headers: map[string]string{"X-Forwarded-For": " , 10.0.0.1"}, remote: "192.0.2.7:1", want: "192.0.2.7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIP(req))
		})
	}
}
