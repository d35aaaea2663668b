package panel

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/keshon/ptero-bot/internal/fault"
	"github.com/keshon/ptero-bot/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	method string
	path   string
	header http.Header
	body   string
}

type panelLog struct {
	mu    sync.Mutex
	calls []recorded
}

func (l *panelLog) all() []recorded {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]recorded(nil), l.calls...)
}

func (l *panelLog) first(t *testing.T) recorded {
	t.Helper()
	calls := l.all()
	require.NotEmpty(t, calls)
	return calls[0]
}

// fakePanel answers every request with status and body and records it.
func fakePanel(t *testing.T, status int, body string) (*httptest.Server, *panelLog) {
	t.Helper()
	log := &panelLog{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		log.mu.Lock()
		log.calls = append(log.calls, recorded{method: r.Method, path: r.URL.EscapedPath(), header: r.Header.Clone(), body: string(raw)})
		log.mu.Unlock()
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, log
}

func creds(url string) Credentials {
	return Credentials{URL: url, APIKey: "ptlc_test_key"}
}

func TestGetResources(t *testing.T) {
	body := `{"attributes":{"current_state":"running","resources":{"memory_bytes":104857600,"cpu_absolute":12.5,"disk_bytes":209715200,"network":{"rx_bytes":1048576,"tx_bytes":2097152}},"limits":{"memory":0,"disk":4096,"cpu":200}}}`
	srv, calls := fakePanel(t, http.StatusOK, body)

	stats, err := New(Options{}).GetResources(context.Background(), creds(srv.URL), "abc-123")
	require.NoError(t, err)

	require.Len(t, calls.all(), 1)
	call := calls.first(t)
	assert.Equal(t, http.MethodGet, call.method)
	assert.Equal(t, "/api/client/servers/abc-123/resources", call.path)
	assert.Equal(t, "Bearer ptlc_test_key", call.header.Get("Authorization"))
	assert.Equal(t, "application/json", call.header.Get("Accept"))
	assert.Equal(t, "application/json", call.header.Get("Content-Type"))

	assert.Equal(t, ResourceStats{
		State:          "running",
		MemoryBytes:    104857600,
		CPUAbsolute:    12.5,
		DiskBytes:      209715200,
		NetworkRxBytes: 1048576,
		NetworkTxBytes: 2097152,
		Limits:         Limits{MemoryMB: 0, DiskMB: 4096, CPUPercent: 200},
	}, stats)
}

func TestGetResourcesToleratesOddBody(t *testing.T) {
	for name, body := range map[string]string{
		"not json":      "<html>oops</html>",
		"wrong shape":   `{"attributes":"nope"}`,
		"empty":         "",
		"missing state": `{"attributes":{}}`,
	} {
		t.Run(name, func(t *testing.T) {
			srv, _ := fakePanel(t, http.StatusOK, body)
			stats, err := New(Options{}).GetResources(context.Background(), creds(srv.URL), "abc")
			require.NoError(t, err)
			assert.Equal(t, "unknown", stats.State)
			assert.Zero(t, stats.MemoryBytes)
		})
	}
}

func TestGetServerKeepsFieldsAroundWrongType(t *testing.T) {
	srv, _ := fakePanel(t, http.StatusOK, `{"attributes":{"name":"Survival","is_queued":true,"position":"3","queue_length":5}}`)

	s, err := New(Options{}).GetServer(context.Background(), creds(srv.URL), "abc-123")
	require.NoError(t, err)
	assert.Equal(t, "Survival", s.Name)
	assert.True(t, s.IsQueued)
	assert.Nil(t, s.Position, "unreadable position falls back to absent")
	assert.Equal(t, 5, s.QueueLength)
}

func TestGetResourcesKeepsFieldsAroundWrongType(t *testing.T) {
	srv, _ := fakePanel(t, http.StatusOK, `{"attributes":{"current_state":"running","resources":{"memory_bytes":"lots","disk_bytes":2048}}}`)

	stats, err := New(Options{}).GetResources(context.Background(), creds(srv.URL), "abc")
	require.NoError(t, err)
	assert.Equal(t, "running", stats.State)
	assert.Zero(t, stats.MemoryBytes)
	assert.Equal(t, float64(2048), stats.DiskBytes)
}

func TestGetServerQueueFields(t *testing.T) {
	srv, calls := fakePanel(t, http.StatusOK, `{"attributes":{"name":"Survival","is_queued":true,"position":3,"estimated_time_seconds":125}}`)

	s, err := New(Options{}).GetServer(context.Background(), creds(srv.URL), "abc-123")
	require.NoError(t, err)

	assert.Equal(t, "/api/client/servers/abc-123", calls.first(t).path)
	assert.Equal(t, "Survival", s.Name)
	assert.True(t, s.IsQueued)
	require.NotNil(t, s.Position)
	assert.Equal(t, 3, *s.Position)
	require.NotNil(t, s.EstimatedTimeSeconds)
	assert.Equal(t, 125, *s.EstimatedTimeSeconds)
	assert.Equal(t, 0, s.QueueLength, "missing queue_length defaults to 0")
}

func TestSendPower(t *testing.T) {
	srv, calls := fakePanel(t, http.StatusNoContent, "")

	err := New(Options{}).SendPower(context.Background(), creds(srv.URL), "abc-123", SignalRestart)
	require.NoError(t, err)

	call := calls.first(t)
	assert.Equal(t, http.MethodPost, call.method)
	assert.Equal(t, "/api/client/servers/abc-123/power", call.path)
	assert.JSONEq(t, `{"signal":"restart"}`, call.body)
}

func TestSendCommand(t *testing.T) {
	srv, calls := fakePanel(t, http.StatusNoContent, "")

	err := New(Options{}).SendCommand(context.Background(), creds(srv.URL), "abc-123", "say hello")
	require.NoError(t, err)

	call := calls.first(t)
	assert.Equal(t, "/api/client/servers/abc-123/command", call.path)
	assert.JSONEq(t, `{"command":"say hello"}`, call.body)
}

func TestJoinQueue(t *testing.T) {
	t.Run("with body", func(t *testing.T) {
		srv, calls := fakePanel(t, http.StatusOK, `{"attributes":{"message":"Queued.","position":2}}`)
		res, err := New(Options{}).JoinQueue(context.Background(), creds(srv.URL), "abc-123")
		require.NoError(t, err)
		assert.Equal(t, "/api/client/servers/abc-123/join-queue", calls.first(t).path)
		assert.Equal(t, "Queued.", res.Message)
		require.NotNil(t, res.Position)
		assert.Equal(t, 2, *res.Position)
	})
	t.Run("no body", func(t *testing.T) {
		srv, _ := fakePanel(t, http.StatusNoContent, "")
		res, err := New(Options{}).JoinQueue(context.Background(), creds(srv.URL), "abc-123")
		require.NoError(t, err)
		assert.Equal(t, QueueJoin{}, res)
	})
}

func TestListServers(t *testing.T) {
	srv, calls := fakePanel(t, http.StatusOK, `{"data":[
		{"attributes":{"name":"Survival","uuid":"uuid-1","identifier":"abc"}},
		{"attributes":{"uuid":"uuid-2"}},
		{"attributes":{}}
	]}`)

	list, err := New(Options{}).ListServers(context.Background(), creds(srv.URL))
	require.NoError(t, err)

	assert.Equal(t, "/api/client", calls.first(t).path)
	assert.Equal(t, []ServerSummary{
		{Name: "Survival", UUID: "uuid-1", Identifier: "abc"},
		{Name: "No Name", UUID: "uuid-2", Identifier: "uuid-2"},
		{Name: "No Name", UUID: "No UUID", Identifier: "No UUID"},
	}, list)
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantKind   fault.Kind
		wantDetail string
	}{
		{"not found", 404, `{"errors":[{"detail":"missing"}]}`, fault.NotFound, "missing"},
		{"forbidden", 403, "", fault.Forbidden, ""},
		{"conflict", 409, `{"errors":[{"detail":"already running"}]}`, fault.Conflict, "already running"},
		{"conflict no detail", 409, "", fault.Conflict, ""},
		{"bad gateway", 502, "", fault.BadGateway, ""},
		{"server error raw body", 500, "internal explosion", fault.RemoteError, "internal explosion"},
		{"server error detail", 500, `{"errors":[{"detail":"db down"}]}`, fault.RemoteError, "db down"},
		{"rate limited", 429, "slow down", fault.RemoteError, "slow down"},
		{"redirect", 304, "", fault.RemoteError, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv, _ := fakePanel(t, tc.status, tc.body)
			err := New(Options{}).SendPower(context.Background(), creds(srv.URL), "abc-123", SignalStart)

			var fe *fault.Error
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, tc.wantKind, fe.Kind)
			assert.Equal(t, tc.status, fe.Status)
			assert.Equal(t, tc.wantDetail, fe.Detail)
			assert.Equal(t, "abc-123", fe.Target)
			assert.Equal(t, "power", fe.Op)
		})
	}
}

func TestRemoteErrorBodyIsTruncated(t *testing.T) {
	srv, _ := fakePanel(t, 500, strings.Repeat("x", 2000))
	_, err := New(Options{}).GetResources(context.Background(), creds(srv.URL), "abc")

	var fe *fault.Error
	require.ErrorAs(t, err, &fe)
	assert.Len(t, fe.Detail, fault.MaxDetail)
}

func TestNotConfiguredSkipsNetwork(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	c := New(Options{})
	_, err := c.GetResources(context.Background(), Credentials{URL: srv.URL}, "abc")
	assert.True(t, fault.Is(err, fault.NotConfigured))
	_, err = c.ListServers(context.Background(), Credentials{APIKey: "key"})
	assert.True(t, fault.Is(err, fault.NotConfigured))
	assert.Equal(t, int32(0), hits.Load())
}

func TestUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := New(Options{}).SendPower(context.Background(), creds(url), "abc", SignalStop)
	assert.True(t, fault.Is(err, fault.Unreachable))
}

func TestTimeoutIsUnreachable(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := New(Options{ReadTimeout: 50 * time.Millisecond})
	_, err := c.GetServer(context.Background(), creds(srv.URL), "abc")

	var fe *fault.Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, fault.Unreachable, fe.Kind)
	assert.Contains(t, fe.Detail, "timed out")
}

func TestServerIDIsEscaped(t *testing.T) {
	srv, calls := fakePanel(t, http.StatusOK, "{}")
	_, err := New(Options{}).GetServer(context.Background(), creds(srv.URL), "../admin")
	require.NoError(t, err)
	assert.Equal(t, "/api/client/servers/..%2Fadmin", calls.first(t).path)
}

func TestMetricsRecorded(t *testing.T) {
	srv, _ := fakePanel(t, http.StatusConflict, `{"errors":[{"detail":"busy"}]}`)
	m := metrics.New()

	_ = New(Options{Metrics: m}).SendPower(context.Background(), creds(srv.URL), "abc", SignalStart)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PanelRequests.WithLabelValues("power", "conflict")))
	assert.Greater(t, testutil.ToFloat64(m.PanelRate.WithLabelValues(srv.URL)), 0.0)
}

func TestRequestBodyEncoding(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	require.NoError(t, New(Options{}).SendCommand(context.Background(), creds(srv.URL), "abc", `say "hi"`))
	assert.Equal(t, map[string]string{"command": `say "hi"`}, got)
}

func TestSignalValid(t *testing.T) {
	for _, s := range []Signal{SignalStart, SignalStop, SignalRestart, SignalKill} {
		assert.True(t, s.Valid(), s)
	}
	assert.False(t, Signal("explode").Valid())
}
