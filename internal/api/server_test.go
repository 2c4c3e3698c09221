package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/labelwatch/cola-sync/internal/cola"
	"github.com/labelwatch/cola-sync/internal/config"
	"github.com/labelwatch/cola-sync/internal/publisher"
)

// fakeRunner records triggered strategies and optionally blocks until
// released so tests can observe the in-progress state.
type fakeRunner struct {
	mu    sync.Mutex
	calls []string
	block chan struct{}
	event publisher.Event
	err   error
}

func (f *fakeRunner) Run(_ context.Context, strategy string) (publisher.Event, error) {
	f.mu.Lock()
	f.calls = append(f.calls, strategy)
	f.mu.Unlock()
	if f.block != nil {
		<-f.block
	}
	ev := f.event
	if ev.Strategy == "" {
		ev.Strategy = strategy
	}
	return ev, f.err
}

func (f *fakeRunner) strategies() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func testServerConfig() config.Config {
	cfg := config.Config{}
	cfg.Sync.Strategy = "incremental"
	return cfg
}

func newTestServer(t *testing.T, runner *fakeRunner, cfg config.Config) *Server {
	t.Helper()
	server, err := NewServer(runner, cfg, zap.NewNop())
	require.NoError(t, err)
	return server
}

func waitForIdle(t *testing.T, server *Server) {
	t.Helper()
	require.Eventually(t, func() bool {
		server.mu.Lock()
		defer server.mu.Unlock()
		return !server.running
	}, 2*time.Second, 5*time.Millisecond)
}

func TestServer_Healthz(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, &fakeRunner{}, testServerConfig())
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "ok")
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestServer_Metrics(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, &fakeRunner{}, testServerConfig())
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_RequestMetricsUseRoutePattern(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, &fakeRunner{}, testServerConfig())
	for _, path := range []string{"/healthz", "/no/such/page"} {
		rec := httptest.NewRecorder()
		server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	}

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `route="/healthz"`)
	require.Contains(t, rec.Body.String(), `route="unmatched"`)
	require.NotContains(t, rec.Body.String(), `route="/no/such/page"`)
}

func TestServer_TriggerSync_DefaultStrategy(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{event: publisher.Event{
		RunID: "run-1",
		Stats: cola.SyncStats{Total: 3, Created: 2, Skipped: 1},
	}}
	server := newTestServer(t, runner, testServerConfig())

	req := httptest.NewRequest(http.MethodPost, "/api/sync", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Contains(t, rec.Body.String(), "incremental")

	waitForIdle(t, server)
	require.Equal(t, []string{"incremental"}, runner.strategies())

	statusReq := httptest.NewRequest(http.MethodGet, "/api/sync/status", nil)
	statusRec := httptest.NewRecorder()
	server.Handler().ServeHTTP(statusRec, statusReq)

	require.Equal(t, http.StatusOK, statusRec.Code)
	require.Contains(t, statusRec.Body.String(), `"running":false`)
	require.Contains(t, statusRec.Body.String(), "run-1")
}

func TestServer_TriggerSync_GetTriggersToo(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	server := newTestServer(t, runner, testServerConfig())

	req := httptest.NewRequest(http.MethodGet, "/api/sync", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	waitForIdle(t, server)
	require.Equal(t, []string{"incremental"}, runner.strategies())
}

func TestServer_TriggerSync_ExplicitStrategy(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	server := newTestServer(t, runner, testServerConfig())

	body := bytes.NewBufferString(`{"strategy":"full"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/sync", body)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	waitForIdle(t, server)
	require.Equal(t, []string{"full"}, runner.strategies())
}

func TestServer_TriggerSync_UnknownStrategy(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, &fakeRunner{}, testServerConfig())

	body := bytes.NewBufferString(`{"strategy":"nuke"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/sync", body)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "unknown strategy")
}

func TestServer_TriggerSync_InvalidJSON(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, &fakeRunner{}, testServerConfig())

	req := httptest.NewRequest(http.MethodPost, "/api/sync", bytes.NewBufferString("{invalid"))
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_TriggerSync_ReplaceRequiresConfirmation(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	server := newTestServer(t, runner, testServerConfig())

	body := bytes.NewBufferString(`{"strategy":"replace"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/sync", body)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Empty(t, runner.strategies())
}

func TestServer_TriggerSync_ReplaceConfirmed(t *testing.T) {
	t.Parallel()

	cfg := testServerConfig()
	cfg.Sync.ConfirmReplace = true
	runner := &fakeRunner{}
	server := newTestServer(t, runner, cfg)

	body := bytes.NewBufferString(`{"strategy":"replace"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/sync", body)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	waitForIdle(t, server)
	require.Equal(t, []string{"replace"}, runner.strategies())
}

func TestServer_TriggerSync_SingleFlight(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	runner := &fakeRunner{block: release}
	server := newTestServer(t, runner, testServerConfig())

	first := httptest.NewRecorder()
	server.Handler().ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/api/sync", nil))
	require.Equal(t, http.StatusAccepted, first.Code)

	second := httptest.NewRecorder()
	server.Handler().ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/api/sync", nil))
	require.Equal(t, http.StatusConflict, second.Code)

	close(release)
	waitForIdle(t, server)

	third := httptest.NewRecorder()
	server.Handler().ServeHTTP(third, httptest.NewRequest(http.MethodPost, "/api/sync", nil))
	require.Equal(t, http.StatusAccepted, third.Code)
	waitForIdle(t, server)
}

func TestServer_SyncStatus_BeforeAnyRun(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, &fakeRunner{}, testServerConfig())

	req := httptest.NewRequest(http.MethodGet, "/api/sync/status", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"running":false`)
	require.NotContains(t, rec.Body.String(), "last_run")
}

func TestServer_SyncStatus_ReportsRunFailure(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{err: errors.New("search endpoint returned 503")}
	server := newTestServer(t, runner, testServerConfig())

	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/sync", nil))
	require.Equal(t, http.StatusAccepted, rec.Code)
	waitForIdle(t, server)

	statusRec := httptest.NewRecorder()
	server.Handler().ServeHTTP(statusRec, httptest.NewRequest(http.MethodGet, "/api/sync/status", nil))
	require.Contains(t, statusRec.Body.String(), "503")
}

func TestNewServer_RequiresRunner(t *testing.T) {
	t.Parallel()

	_, err := NewServer(nil, testServerConfig(), zap.NewNop())
	require.Error(t, err)
}

func TestServer_SchedulerTriggersRun(t *testing.T) {
	runner := &fakeRunner{}
	server := newTestServer(t, runner, testServerConfig())

	stop, err := server.StartScheduler("@every 100ms")
	require.NoError(t, err)
	defer stop()

	require.Eventually(t, func() bool {
		return len(runner.strategies()) >= 1
	}, 3*time.Second, 20*time.Millisecond)
	require.Equal(t, "incremental", runner.strategies()[0])
}

func TestServer_SchedulerRejectsBadSpec(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, &fakeRunner{}, testServerConfig())

	_, err := server.StartScheduler("not a schedule")
	require.Error(t, err)
}
