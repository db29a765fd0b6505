package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskflow/cmd/internal/auth/session"
	"taskflow/cmd/internal/realtime"
)

type testServer struct {
	t      *testing.T
	app    *App
	srv    *httptest.Server
	client *http.Client
}

func newTestServer(t *testing.T, cfg Config) *testServer {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	a, err := New(context.Background(), cfg, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	srv := httptest.NewServer(a.Handler())
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &testServer{t: t, app: a, srv: srv, client: &http.Client{Jar: jar}}
}

func (s *testServer) do(method, path, body string) (*http.Response, string) {
	s.t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, s.srv.URL+path, rd)
	require.NoError(s.t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.client.Do(req)
	require.NoError(s.t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(s.t, err)
	return resp, string(b)
}

func (s *testServer) cookie(name string) string {
	u, _ := url.Parse(s.srv.URL)
	for _, c := range s.client.Jar.Cookies(u) {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

func TestApp_OperationalRoutes(t *testing.T) {
	s := newTestServer(t, testConfig())

	resp, body := s.do(http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, banner, body)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	assert.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))

	resp, _ = s.do(http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = s.do(http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = s.do(http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body = s.do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "taskflow_http_requests_total")
}

func TestApp_ReadinessRequiresDB(t *testing.T) {
	cfg := testConfig()
	cfg.ReadinessRequireDB = true
	s := newTestServer(t, cfg)

	resp, _ := s.do(http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestApp_SessionTasksAndFeed(t *testing.T) {
	s := newTestServer(t, testConfig())

	resp, _ := s.do(http.MethodGet, "/api/tasks", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, session.CodeCredentialMissing, resp.Header.Get(session.HeaderAuthError))

	resp, body := s.do(http.MethodPost, "/api/auth/register",
		`{"email":"ada@example.com","password":"correct horse","userName":"ada"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	access := s.cookie("accessToken")
	require.NotEmpty(t, access)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	wsURL := "ws" + strings.TrimPrefix(s.srv.URL, "http") + "/ws/tasks"
	header := http.Header{}
	header.Set("Cookie", "accessToken="+access)
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: header})
	require.NoError(t, err)
	defer conn.CloseNow()

	var ev realtime.Event
	require.NoError(t, wsjson.Read(ctx, conn, &ev))
	assert.Equal(t, realtime.TypeSubscribed, ev.Type)

	resp, body = s.do(http.MethodGet, "/api/tasks", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	assert.JSONEq(t, `{"tasks":[]}`, body)

	resp, body = s.do(http.MethodPost, "/api/tasks", `{"title":"Write docs","priority":"High"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)

	require.NoError(t, wsjson.Read(ctx, conn, &ev))
	assert.Equal(t, realtime.TypeTasksInvalidated, ev.Type)

	resp, body = s.do(http.MethodGet, "/api/tasks", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list struct {
		Tasks []struct {
			Title    string `json:"title"`
			Priority string `json:"priority"`
			Status   string `json:"status"`
		} `json:"tasks"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &list))
	require.Len(t, list.Tasks, 1)
	assert.Equal(t, "Write docs", list.Tasks[0].Title)
	assert.Equal(t, "High", list.Tasks[0].Priority)
	assert.Equal(t, "To Do", list.Tasks[0].Status)

	refresh := s.cookie("refreshToken")
	resp, _ = s.do(http.MethodPost, "/api/auth/refresh-token", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEqual(t, refresh, s.cookie("refreshToken"))

	resp, _ = s.do(http.MethodPost, "/api/auth/logout", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = s.do(http.MethodGet, "/api/tasks", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestApp_BoltAndRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := testConfig()
	cfg.StoreDriver = StoreBolt
	cfg.BoltPath = filepath.Join(t.TempDir(), "taskflow.db")
	cfg.CacheDriver = CacheRedis
	cfg.RedisURL = "redis://" + mr.Addr()
	require.NoError(t, cfg.Validate())

	s := newTestServer(t, cfg)

	resp, body := s.do(http.MethodPost, "/api/auth/register",
		`{"email":"ada@example.com","password":"correct horse","userName":"ada"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)

	resp, body = s.do(http.MethodPost, "/api/tasks", `{"title":"Persist me"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)

	resp, body = s.do(http.MethodGet, "/api/tasks", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Persist me")
	assert.NotEmpty(t, mr.Keys(), "list is cached in redis")

	resp, _ = s.do(http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	mr.Close()
	resp, _ = s.do(http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestNew_RejectsMissingHMACKey(t *testing.T) {
	cfg := testConfig()
	cfg.RequireTokenHMAC = true
	_, err := New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, err)
}
