package client

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	paseto "aidanwoods.dev/go-paseto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskflow/cmd/internal/app"
	"taskflow/cmd/internal/auth/session"
)

type testServer struct {
	srv       *httptest.Server
	cfg       app.Config
	refreshes atomic.Int32
	// refreshDown makes the refresh endpoint answer 503 store_unavailable.
	refreshDown atomic.Bool
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := app.DefaultConfig()
	cfg.Session.PasetoV4SecretKeyHex = paseto.NewV4AsymmetricSecretKey().ExportHex()
	cfg.Session.RefreshSecret = strings.Repeat("s", session.MinRefreshSecretBytes)
	cfg.Auth.CookieSecure = false
	cfg.Auth.CookieSameSite = "lax"
	cfg.Passwords.Params.MemoryKiB = 8 * 1024
	cfg.Passwords.Params.Iterations = 1
	cfg.Passwords.Params.Parallelism = 1

	a, err := app.New(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	ts := &testServer{cfg: cfg}
	h := a.Handler()
	ts.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == refreshPath {
			ts.refreshes.Add(1)
			if ts.refreshDown.Load() {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = io.WriteString(w, `{"error":{"code":"store_unavailable","message":"try again"}}`)
				return
			}
		}
		h.ServeHTTP(w, r)
	}))
	t.Cleanup(ts.srv.Close)
	return ts
}

// loggedIn registers a user and returns a client holding its session.
func (ts *testServer) loggedIn(t *testing.T, opts ...Option) *Client {
	t.Helper()
	c, err := New(ts.srv.URL, opts...)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, c.SendJSON(ctx, http.MethodPost, "/api/auth/register", map[string]string{
		"email": "ada@example.com", "password": "correct horse", "userName": "ada",
	}, nil))
	u, err := c.Login(ctx, "ada@example.com", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", u.Email)
	return c
}

func (ts *testServer) cookie(c *Client, name string) string {
	u, _ := url.Parse(ts.srv.URL)
	for _, ck := range c.http.Jar.Cookies(u) {
		if ck.Name == name {
			return ck.Value
		}
	}
	return ""
}

func (ts *testServer) setCookie(c *Client, name, value string) {
	u, _ := url.Parse(ts.srv.URL)
	ck := &http.Cookie{Name: name, Value: value, Path: "/"}
	if value == "" {
		ck.MaxAge = -1
	}
	c.http.Jar.SetCookies(u, []*http.Cookie{ck})
}

type taskList struct {
	Tasks []struct {
		Title string `json:"title"`
	} `json:"tasks"`
}

func TestClient_RenewsMissingAccessCredential(t *testing.T) {
	ts := newTestServer(t)
	c := ts.loggedIn(t)
	ctx := context.Background()

	r1 := ts.cookie(c, "refreshToken")
	require.NotEmpty(t, r1)
	ts.setCookie(c, "accessToken", "")
	require.Empty(t, ts.cookie(c, "accessToken"))

	var list taskList
	require.NoError(t, c.GetJSON(ctx, "/api/tasks", &list))
	assert.Empty(t, list.Tasks)
	assert.Equal(t, int32(1), ts.refreshes.Load())
	assert.False(t, c.SessionEnded())

	r2 := ts.cookie(c, "refreshToken")
	assert.NotEmpty(t, ts.cookie(c, "accessToken"))
	assert.NotEqual(t, r1, r2)

	// The rotated-away credential is now stale.
	req, err := http.NewRequest(http.MethodPost, ts.srv.URL+refreshPath, http.NoBody)
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: "refreshToken", Value: r1})
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, session.CodeRefreshSuperseded, resp.Header.Get(session.HeaderAuthError))
}

func TestClient_ReplaysRequestBody(t *testing.T) {
	ts := newTestServer(t)
	c := ts.loggedIn(t)
	ts.setCookie(c, "accessToken", "")

	var out struct {
		Task struct {
			Title string `json:"title"`
		} `json:"task"`
	}
	require.NoError(t, c.SendJSON(context.Background(), http.MethodPost, "/api/tasks",
		map[string]string{"title": "Replay me"}, &out))
	assert.Equal(t, "Replay me", out.Task.Title)
	assert.Equal(t, int32(1), ts.refreshes.Load())
}

func TestClient_ConcurrentCallersAllRecover(t *testing.T) {
	ts := newTestServer(t)
	c := ts.loggedIn(t)
	ts.setCookie(c, "accessToken", "")

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var list taskList
			errs[i] = c.GetJSON(context.Background(), "/api/tasks", &list)
		}()
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.False(t, c.SessionEnded())
	assert.GreaterOrEqual(t, ts.refreshes.Load(), int32(1))
	assert.LessOrEqual(t, ts.refreshes.Load(), int32(callers))
}

func TestClient_FailedRotationEndsSession(t *testing.T) {
	ts := newTestServer(t)

	var mu sync.Mutex
	var causes []error
	c := ts.loggedIn(t, OnSessionEnded(func(err error) {
		mu.Lock()
		causes = append(causes, err)
		mu.Unlock()
	}))
	ts.setCookie(c, "accessToken", "")
	ts.setCookie(c, "refreshToken", "not-a-jwt")

	err := c.GetJSON(context.Background(), "/api/tasks", &taskList{})
	require.Error(t, err)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, session.CodeCredentialMissing, apiErr.Code, "the original 401 is surfaced")

	assert.Equal(t, int32(1), ts.refreshes.Load(), "at most one rotation per request")
	assert.True(t, c.SessionEnded())
	mu.Lock()
	require.Len(t, causes, 1)
	assert.Equal(t, session.CodeRefreshInvalid, CodeOf(causes[0]))
	mu.Unlock()

	// Logging in again revives the client.
	_, err = c.Login(context.Background(), "ada@example.com", "correct horse")
	require.NoError(t, err)
	assert.False(t, c.SessionEnded())
	require.NoError(t, c.GetJSON(context.Background(), "/api/tasks", &taskList{}))
}

func TestClient_ExpiredRefreshEndsSession(t *testing.T) {
	ts := newTestServer(t)

	var causes []error
	c := ts.loggedIn(t, OnSessionEnded(func(err error) { causes = append(causes, err) }))
	var me struct {
		User User `json:"user"`
	}
	require.NoError(t, c.GetJSON(context.Background(), "/api/auth/me", &me))
	u := me.User

	// A correctly signed refresh credential whose exp has passed.
	iss, err := session.NewIssuer(ts.cfg.Session)
	require.NoError(t, err)
	old, err := iss.Issue(session.Identity{PrincipalID: u.ID, Email: u.Email},
		time.Now().Add(-ts.cfg.Session.RefreshTokenTTL-time.Hour))
	require.NoError(t, err)
	require.True(t, old.RefreshExp.Before(time.Now()))

	ts.setCookie(c, "accessToken", "")
	ts.setCookie(c, "refreshToken", old.RefreshToken)

	err = c.GetJSON(context.Background(), "/api/tasks", &taskList{})
	assert.Equal(t, session.CodeCredentialMissing, CodeOf(err))
	assert.Equal(t, int32(1), ts.refreshes.Load())
	assert.True(t, c.SessionEnded())
	require.Len(t, causes, 1)
	assert.Equal(t, session.CodeRefreshExpired, CodeOf(causes[0]))
}

func TestClient_TransientRefreshFailureKeepsSession(t *testing.T) {
	ts := newTestServer(t)

	ended := 0
	c := ts.loggedIn(t, OnSessionEnded(func(error) { ended++ }))
	ts.setCookie(c, "accessToken", "")
	ts.refreshDown.Store(true)

	err := c.GetJSON(context.Background(), "/api/tasks", &taskList{})
	assert.Equal(t, session.CodeCredentialMissing, CodeOf(err), "the original 401 is surfaced")
	assert.Equal(t, int32(1), ts.refreshes.Load())
	assert.False(t, c.SessionEnded())
	assert.Zero(t, ended)

	// The refresh slot was never touched, so the next request recovers.
	ts.refreshDown.Store(false)
	require.NoError(t, c.GetJSON(context.Background(), "/api/tasks", &taskList{}))
	assert.Equal(t, int32(2), ts.refreshes.Load())
}

func TestClient_OtherAuthErrorsAreNotRenewed(t *testing.T) {
	ts := newTestServer(t)
	c := ts.loggedIn(t)
	ts.setCookie(c, "accessToken", "v4.public.garbage")

	err := c.GetJSON(context.Background(), "/api/tasks", &taskList{})
	assert.Equal(t, session.CodeCredentialInvalid, CodeOf(err))
	assert.Zero(t, ts.refreshes.Load())
	assert.False(t, c.SessionEnded())
}

func TestClient_BearerTracking(t *testing.T) {
	ts := newTestServer(t)
	c := ts.loggedIn(t, WithBearer())
	ts.setCookie(c, "accessToken", "")

	require.NoError(t, c.GetJSON(context.Background(), "/api/tasks", &taskList{}))
	assert.Zero(t, ts.refreshes.Load(), "the bearer stands in for the missing cookie")

	require.NoError(t, c.Logout(context.Background()))
	err := c.GetJSON(context.Background(), "/api/tasks", &taskList{})
	assert.Equal(t, session.CodeCredentialMissing, CodeOf(err))
}

func TestNew_RejectsRelativeURL(t *testing.T) {
	_, err := New("/api")
	assert.Error(t, err)

	c, err := New("http://localhost:8080/")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080/api/tasks", c.URL("/api/tasks"))
	assert.NotNil(t, c.http.Jar)
}

func TestReplay_MarksRetriedAndRewindsBody(t *testing.T) {
	req, err := http.NewRequest(http.MethodPost, "http://x/api/tasks", strings.NewReader(`{"title":"a"}`))
	require.NoError(t, err)
	_, _ = io.ReadAll(req.Body)

	retry, err := replay(req)
	require.NoError(t, err)
	assert.True(t, isRetried(retry.Context()))
	assert.False(t, isRetried(req.Context()))
	b, err := io.ReadAll(retry.Body)
	require.NoError(t, err)
	assert.Equal(t, `{"title":"a"}`, string(b))
}

func TestClient_FeedRenewsAndReportsInvalidations(t *testing.T) {
	ts := newTestServer(t)
	c := ts.loggedIn(t)
	ts.setCookie(c, "accessToken", "")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	feed, err := c.DialFeed(ctx)
	require.NoError(t, err)
	defer feed.Close()
	assert.Equal(t, int32(1), ts.refreshes.Load())

	ev, err := feed.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tasks.subscribed", ev.Type)

	require.NoError(t, c.SendJSON(ctx, http.MethodPost, "/api/tasks", map[string]string{"title": "Ship"}, nil))
	ev, err = feed.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tasks.invalidated", ev.Type)
}

func TestClient_FeedRefusedWithoutSession(t *testing.T) {
	ts := newTestServer(t)
	c, err := New(ts.srv.URL)
	require.NoError(t, err)

	_, err = c.DialFeed(context.Background())
	assert.Equal(t, session.CodeCredentialMissing, CodeOf(err))
	assert.True(t, c.SessionEnded())
}
