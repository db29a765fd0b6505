// Package federated signs principals in through an external OpenID Connect
// provider (Google by default).
package federated

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

const GoogleIssuer = "https://accounts.google.com"

var (
	// ErrDisabled means no client id is configured.
	ErrDisabled = errors.New("federated login disabled")
	// ErrExchange covers every failure between the callback and a verified identity.
	ErrExchange = errors.New("federated exchange failed")
)

// Config holds the OIDC client registration. Fields load from TASKFLOW_GOOGLE_*.
type Config struct {
	Issuer       string `env:"GOOGLE_ISSUER" envDefault:"https://accounts.google.com"`
	ClientID     string `env:"GOOGLE_CLIENT_ID"`
	ClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	RedirectURL  string `env:"GOOGLE_REDIRECT_URL" envDefault:"http://localhost:8080/api/auth/google/callback"`
}

func (c Config) Enabled() bool { return strings.TrimSpace(c.ClientID) != "" }

// Identity is what the provider vouches for.
type Identity struct {
	ExternalID  string
	Email       string
	DisplayName string
}

// Flow is the per-login secret state kept by the browser between redirect
// and callback.
type Flow struct {
	State    string
	Nonce    string
	Verifier string
}

// NewFlow draws fresh state, nonce and PKCE verifier values.
func NewFlow() (Flow, error) {
	state, err := randomToken()
	if err != nil {
		return Flow{}, err
	}
	nonce, err := randomToken()
	if err != nil {
		return Flow{}, err
	}
	return Flow{State: state, Nonce: nonce, Verifier: oauth2.GenerateVerifier()}, nil
}

// Encode packs f into a cookie-safe value.
func (f Flow) Encode() string {
	return f.State + "." + f.Nonce + "." + f.Verifier
}

// DecodeFlow reverses Encode.
func DecodeFlow(raw string) (Flow, bool) {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 {
		return Flow{}, false
	}
	for _, p := range parts {
		if p == "" {
			return Flow{}, false
		}
	}
	return Flow{State: parts[0], Nonce: parts[1], Verifier: parts[2]}, true
}

// Exchanger is the external identity collaborator.
type Exchanger interface {
	AuthCodeURL(f Flow) string
	Exchange(ctx context.Context, code string, f Flow) (Identity, error)
}

// OIDCExchanger implements Exchanger with go-oidc and x/oauth2.
type OIDCExchanger struct {
	oauth    oauth2.Config
	verifier *oidc.IDTokenVerifier
}

// NewOIDC runs provider discovery against cfg.Issuer.
func NewOIDC(ctx context.Context, cfg Config) (*OIDCExchanger, error) {
	if !cfg.Enabled() {
		return nil, ErrDisabled
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		issuer = GoogleIssuer
	}
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("federated: discovering %s: %w", issuer, err)
	}
	return &OIDCExchanger{
		oauth: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		},
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
	}, nil
}

func (e *OIDCExchanger) AuthCodeURL(f Flow) string {
	return e.oauth.AuthCodeURL(f.State,
		oidc.Nonce(f.Nonce),
		oauth2.S256ChallengeOption(f.Verifier),
	)
}

// Exchange redeems code and verifies the returned ID token, including its
// nonce. The email must be present and, when the provider says so, verified.
func (e *OIDCExchanger) Exchange(ctx context.Context, code string, f Flow) (Identity, error) {
	tok, err := e.oauth.Exchange(ctx, code, oauth2.VerifierOption(f.Verifier))
	if err != nil {
		return Identity{}, fmt.Errorf("%w: token exchange: %w", ErrExchange, err)
	}
	rawID, ok := tok.Extra("id_token").(string)
	if !ok || rawID == "" {
		return Identity{}, fmt.Errorf("%w: no id_token in response", ErrExchange)
	}
	idt, err := e.verifier.Verify(ctx, rawID)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: id token: %w", ErrExchange, err)
	}
	if idt.Nonce != f.Nonce {
		return Identity{}, fmt.Errorf("%w: nonce mismatch", ErrExchange)
	}

	var claims struct {
		Email         string `json:"email"`
		EmailVerified *bool  `json:"email_verified"`
		Name          string `json:"name"`
	}
	if err := idt.Claims(&claims); err != nil {
		return Identity{}, fmt.Errorf("%w: claims: %w", ErrExchange, err)
	}
	if strings.TrimSpace(claims.Email) == "" {
		return Identity{}, fmt.Errorf("%w: no email claim", ErrExchange)
	}
	if claims.EmailVerified != nil && !*claims.EmailVerified {
		return Identity{}, fmt.Errorf("%w: email not verified", ErrExchange)
	}

	name := strings.TrimSpace(claims.Name)
	if name == "" {
		name, _, _ = strings.Cut(claims.Email, "@")
	}
	return Identity{
		ExternalID:  idt.Subject,
		Email:       strings.TrimSpace(claims.Email),
		DisplayName: name,
	}, nil
}

func randomToken() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
