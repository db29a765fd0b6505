package api

import (
	"errors"
	"net/http"
	"strings"

	"taskflow/cmd/identity"
	"taskflow/cmd/internal/auth/session"
	"taskflow/cmd/internal/httpx"
	"taskflow/cmd/security/password"
)

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := httpx.DecodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	email := strings.TrimSpace(req.Email)
	name := strings.TrimSpace(req.UserName)
	if email == "" || name == "" || req.Password == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "email, password and userName are required")
		return
	}

	hash, err := h.passwords.Hash(req.Password)
	if err != nil {
		switch {
		case errors.Is(err, password.ErrPasswordTooShort):
			httpx.WriteError(w, http.StatusBadRequest, "weak_password", "password is too short")
		case errors.Is(err, password.ErrPasswordTooLong):
			httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "password is too long")
		case errors.Is(err, password.ErrWeakPassword):
			httpx.WriteError(w, http.StatusBadRequest, "weak_password", "password is too common")
		default:
			h.log.Error("auth.register.hash.fail", "err", err)
			httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
		}
		return
	}

	ctx := r.Context()
	now := h.now().UTC()
	p, err := h.principals.CreatePrincipal(ctx, identity.CreatePrincipalInput{
		Email:        email,
		DisplayName:  name,
		PasswordHash: &hash,
		Now:          now,
	})
	if err != nil {
		h.writeIdentityError(w, "auth.register.fail", err)
		return
	}

	pair, err := h.sessions.Login(ctx, now, p)
	if err != nil {
		h.writeAuthError(w, err)
		return
	}
	h.audit(r, "auth.register", p.ID)
	h.setSessionCookies(w, pair, now)
	httpx.WriteJSON(w, http.StatusCreated, loginResponse{
		User:    toUserResponse(p),
		Session: toSessionResponse(pair),
	})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	email := strings.TrimSpace(req.Email)
	if email == "" || req.Password == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "email and password are required")
		return
	}

	ctx := r.Context()
	p, err := h.principals.GetPrincipalByEmail(ctx, email)
	if err != nil && !identity.IsNotFound(err) {
		h.log.Error("auth.login.lookup.fail", "err", err)
		httpx.WriteError(w, http.StatusServiceUnavailable, session.CodeStoreUnavailable, "please retry later")
		return
	}

	stored := h.dummyHash
	if err == nil && p.PasswordHash != nil {
		stored = *p.PasswordHash
	}
	ok, verr := h.passwords.Verify(stored, req.Password)
	if err != nil || p.PasswordHash == nil || verr != nil || !ok {
		if verr != nil {
			h.log.Warn("auth.login.verify.fail", "err", verr)
		}
		h.audit(r, "auth.login.failed", p.ID)
		httpx.WriteError(w, http.StatusUnauthorized, "invalid_credentials", "invalid email or password")
		return
	}

	now := h.now().UTC()
	pair, err := h.sessions.Login(ctx, now, p)
	if err != nil {
		h.writeAuthError(w, err)
		return
	}
	h.audit(r, "auth.login.success", p.ID)
	h.setSessionCookies(w, pair, now)
	httpx.WriteJSON(w, http.StatusOK, loginResponse{
		User:    toUserResponse(p),
		Session: toSessionResponse(pair),
	})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	id, _ := session.IdentityFromContext(r.Context())
	p, err := h.principals.GetPrincipal(r.Context(), id.PrincipalID)
	if err != nil {
		h.writeIdentityError(w, "auth.me.fail", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, meResponse{User: toUserResponse(p)})
}

func (h *Handler) handleProfile(w http.ResponseWriter, r *http.Request) {
	id, _ := session.IdentityFromContext(r.Context())
	var req profileRequest
	if err := httpx.DecodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_json", "invalid request body")
		return
	}
	if req.Email == nil && req.UserName == nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", "nothing to update")
		return
	}

	p, err := h.principals.UpdateProfile(r.Context(), identity.UpdateProfileInput{
		PrincipalID: id.PrincipalID,
		Email:       req.Email,
		DisplayName: req.UserName,
		Now:         h.now().UTC(),
	})
	if err != nil {
		h.writeIdentityError(w, "auth.profile.fail", err)
		return
	}
	h.audit(r, "auth.profile.updated", p.ID)
	httpx.WriteJSON(w, http.StatusOK, meResponse{User: toUserResponse(p)})
}

func (h *Handler) writeIdentityError(w http.ResponseWriter, event string, err error) {
	switch {
	case identity.IsConflict(err):
		if identity.ConflictField(err) == "email" {
			httpx.WriteError(w, http.StatusConflict, "email_taken", "email is already registered")
			return
		}
		httpx.WriteError(w, http.StatusConflict, "conflict", "account already exists")
	case identity.IsInvalidInput(err):
		msg := "invalid input"
		var opErr identity.OpError
		if errors.As(err, &opErr) && opErr.Msg != "" {
			msg = opErr.Msg
		}
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", msg)
	case identity.IsNotFound(err):
		w.Header().Set(session.HeaderAuthError, session.CodePrincipalNotFound)
		httpx.WriteError(w, http.StatusUnauthorized, session.CodePrincipalNotFound, "account not found")
	default:
		h.log.Error(event, "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}
