package api

import (
	"time"

	"taskflow/cmd/identity"
	"taskflow/cmd/internal/auth/session"
)

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	UserName string `json:"userName"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type profileRequest struct {
	Email    *string `json:"email"`
	UserName *string `json:"userName"`
}

type userResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	UserName  string    `json:"userName"`
	Federated bool      `json:"federated"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// sessionResponse never carries the refresh credential; it travels only in
// its HttpOnly cookie.
type sessionResponse struct {
	AccessToken      string    `json:"access_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

type loginResponse struct {
	User    userResponse    `json:"user"`
	Session sessionResponse `json:"session"`
}

type refreshResponse struct {
	Session sessionResponse `json:"session"`
}

type meResponse struct {
	User userResponse `json:"user"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func toUserResponse(p identity.Principal) userResponse {
	return userResponse{
		ID:        p.ID,
		Email:     p.Email,
		UserName:  p.DisplayName,
		Federated: p.ExternalID != nil,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

func toSessionResponse(p session.Pair) sessionResponse {
	return sessionResponse{
		AccessToken:      p.AccessToken,
		AccessExpiresAt:  p.AccessExp,
		RefreshExpiresAt: p.RefreshExp,
	}
}
