package federated

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testClientID = "taskflow-test"

// fakeProvider is a minimal OIDC issuer: discovery, JWKS and token endpoint.
type fakeProvider struct {
	srv *httptest.Server
	key *rsa.PrivateKey

	mu          sync.Mutex
	claims      jwt.MapClaims
	gotVerifier string
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	p := &fakeProvider{key: key}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /.well-known/openid-configuration", p.discovery)
	mux.HandleFunc("GET /keys", p.jwks)
	mux.HandleFunc("POST /token", p.token)
	p.srv = httptest.NewServer(mux)
	t.Cleanup(p.srv.Close)
	return p
}

func (p *fakeProvider) setClaims(c jwt.MapClaims) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.claims = c
}

func (p *fakeProvider) verifier() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gotVerifier
}

func (p *fakeProvider) baseClaims(nonce string) jwt.MapClaims {
	now := time.Now()
	return jwt.MapClaims{
		"iss":            p.srv.URL,
		"aud":            testClientID,
		"sub":            "google-123",
		"iat":            now.Unix(),
		"exp":            now.Add(time.Hour).Unix(),
		"nonce":          nonce,
		"email":          "Ada@Example.com",
		"email_verified": true,
		"name":           "Ada Lovelace",
	}
}

func (p *fakeProvider) discovery(w http.ResponseWriter, _ *http.Request) {
	_ = json.NewEncoder(w).Encode(map[string]any{
		"issuer":                                p.srv.URL,
		"authorization_endpoint":                p.srv.URL + "/authorize",
		"token_endpoint":                        p.srv.URL + "/token",
		"jwks_uri":                              p.srv.URL + "/keys",
		"id_token_signing_alg_values_supported": []string{"RS256"},
	})
}

func (p *fakeProvider) jwks(w http.ResponseWriter, _ *http.Request) {
	pub := p.key.PublicKey
	_ = json.NewEncoder(w).Encode(map[string]any{
		"keys": []map[string]string{{
			"kty": "RSA",
			"alg": "RS256",
			"use": "sig",
			"kid": "k1",
			"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		}},
	})
}

func (p *fakeProvider) token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.gotVerifier = r.PostForm.Get("code_verifier")

	if r.PostForm.Get("code") != "good-code" {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
		return
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, p.claims)
	tok.Header["kid"] = "k1"
	signed, err := tok.SignedString(p.key)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"access_token": "at",
		"token_type":   "Bearer",
		"expires_in":   3600,
		"id_token":     signed,
	})
}

func newTestExchanger(t *testing.T, p *fakeProvider) *OIDCExchanger {
	t.Helper()
	ex, err := NewOIDC(context.Background(), Config{
		Issuer:       p.srv.URL,
		ClientID:     testClientID,
		ClientSecret: "secret",
		RedirectURL:  "http://localhost:8080/api/auth/google/callback",
	})
	require.NoError(t, err)
	return ex
}

func TestNewOIDC_Disabled(t *testing.T) {
	_, err := NewOIDC(context.Background(), Config{})
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestAuthCodeURL_CarriesStateNonceAndChallenge(t *testing.T) {
	p := newFakeProvider(t)
	ex := newTestExchanger(t, p)
	f, err := NewFlow()
	require.NoError(t, err)

	u, err := url.Parse(ex.AuthCodeURL(f))
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, p.srv.URL+"/authorize", u.Scheme+"://"+u.Host+u.Path)
	assert.Equal(t, f.State, q.Get("state"))
	assert.Equal(t, f.Nonce, q.Get("nonce"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.NotEmpty(t, q.Get("code_challenge"))
	assert.Equal(t, testClientID, q.Get("client_id"))
}

func TestExchange_Success(t *testing.T) {
	p := newFakeProvider(t)
	ex := newTestExchanger(t, p)
	f, err := NewFlow()
	require.NoError(t, err)
	p.setClaims(p.baseClaims(f.Nonce))

	id, err := ex.Exchange(context.Background(), "good-code", f)
	require.NoError(t, err)
	assert.Equal(t, Identity{ExternalID: "google-123", Email: "Ada@Example.com", DisplayName: "Ada Lovelace"}, id)
	assert.Equal(t, f.Verifier, p.verifier())
}

func TestExchange_Failures(t *testing.T) {
	cases := []struct {
		name   string
		code   string
		mutate func(c jwt.MapClaims)
	}{
		{name: "bad code", code: "bad-code"},
		{name: "nonce mismatch", code: "good-code", mutate: func(c jwt.MapClaims) { c["nonce"] = "other" }},
		{name: "wrong audience", code: "good-code", mutate: func(c jwt.MapClaims) { c["aud"] = "someone-else" }},
		{name: "expired", code: "good-code", mutate: func(c jwt.MapClaims) { c["exp"] = time.Now().Add(-time.Hour).Unix() }},
		{name: "no email", code: "good-code", mutate: func(c jwt.MapClaims) { delete(c, "email") }},
		{name: "unverified email", code: "good-code", mutate: func(c jwt.MapClaims) { c["email_verified"] = false }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := newFakeProvider(t)
			ex := newTestExchanger(t, p)
			f, err := NewFlow()
			require.NoError(t, err)
			c := p.baseClaims(f.Nonce)
			if tc.mutate != nil {
				tc.mutate(c)
			}
			p.setClaims(c)

			_, err = ex.Exchange(context.Background(), tc.code, f)
			assert.ErrorIs(t, err, ErrExchange)
		})
	}
}

func TestExchange_NameFallsBackToEmailLocalPart(t *testing.T) {
	p := newFakeProvider(t)
	ex := newTestExchanger(t, p)
	f, err := NewFlow()
	require.NoError(t, err)
	c := p.baseClaims(f.Nonce)
	delete(c, "name")
	p.setClaims(c)

	id, err := ex.Exchange(context.Background(), "good-code", f)
	require.NoError(t, err)
	assert.Equal(t, "Ada", id.DisplayName)
}

func TestFlowEncoding(t *testing.T) {
	f, err := NewFlow()
	require.NoError(t, err)

	got, ok := DecodeFlow(f.Encode())
	require.True(t, ok)
	assert.Equal(t, f, got)

	for _, raw := range []string{"", "a.b", "a..c", "a.b.c.d"} {
		_, ok := DecodeFlow(raw)
		assert.False(t, ok, raw)
	}
}
