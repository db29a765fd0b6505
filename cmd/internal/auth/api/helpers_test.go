package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	paseto "aidanwoods.dev/go-paseto"
	"github.com/stretchr/testify/require"

	"taskflow/cmd/identity"
	"taskflow/cmd/internal/auth/federated"
	"taskflow/cmd/internal/auth/session"
	"taskflow/cmd/security/password"
	"taskflow/cmd/security/token"
)

var t0 = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	t       *testing.T
	store   *identity.MemoryStore
	handler *Handler
	mux     *http.ServeMux
	clock   *testClock
}

func cheapPasswords() password.Config {
	cfg := password.DefaultConfig()
	cfg.Params.MemoryKiB = 8 * 1024
	cfg.Params.Iterations = 1
	cfg.Params.Parallelism = 1
	cfg.Policy.RejectVeryWeak = true
	return cfg
}

func newTestEnv(t *testing.T, mutate func(*Config), opts ...HandlerOption) *testEnv {
	t.Helper()

	scfg := session.DefaultConfig()
	scfg.PasetoV4SecretKeyHex = paseto.NewV4AsymmetricSecretKey().ExportHex()
	scfg.RefreshSecret = strings.Repeat("r", session.MinRefreshSecretBytes)

	store := identity.NewMemoryStore()
	sessions, err := session.NewService(scfg, store, token.Hasher{})
	require.NoError(t, err)

	cfg := DefaultConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	clock := &testClock{now: t0}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts = append([]HandlerOption{WithClock(clock.Now)}, opts...)
	h, err := NewHandler(log, cfg, store, sessions, cheapPasswords(), opts...)
	require.NoError(t, err)

	mux := http.NewServeMux()
	h.Register(mux)
	return &testEnv{t: t, store: store, handler: h, mux: mux, clock: clock}
}

func (e *testEnv) do(method, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	e.t.Helper()
	var rd io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(e.t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) register(email, pw, name string) (*http.Cookie, *http.Cookie) {
	e.t.Helper()
	rec := e.do(http.MethodPost, "/api/auth/register", map[string]string{
		"email": email, "password": pw, "userName": name,
	})
	require.Equal(e.t, http.StatusCreated, rec.Code, rec.Body.String())
	return sessionCookies(e.t, rec)
}

func responseCookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func sessionCookies(t *testing.T, rec *httptest.ResponseRecorder) (access, refresh *http.Cookie) {
	t.Helper()
	access = responseCookie(rec, "accessToken")
	refresh = responseCookie(rec, "refreshToken")
	require.NotNil(t, access)
	require.NotNil(t, refresh)
	return access, refresh
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body.Error.Code
}

type fakeExchanger struct {
	mu       sync.Mutex
	identity federated.Identity
	err      error
	codes    []string
}

func (f *fakeExchanger) AuthCodeURL(flow federated.Flow) string {
	return "https://idp.example/authorize?state=" + flow.State
}

func (f *fakeExchanger) Exchange(_ context.Context, code string, _ federated.Flow) (federated.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.codes = append(f.codes, code)
	return f.identity, f.err
}
