package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"taskflow/cmd/internal/auth/session"
)

// ErrSessionEnded is returned by rotation once the server has refused the
// refresh credential; the user must log in again.
var ErrSessionEnded = errors.New("session ended")

// APIError is a non-2xx response decoded from the error envelope.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("taskflow: HTTP %d", e.Status)
	}
	return fmt.Sprintf("taskflow: HTTP %d: %s: %s", e.Status, e.Code, e.Message)
}

// CodeOf returns the API error code carried by err, or "".
func CodeOf(err error) string {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

const maxErrorBody = 64 << 10

func decodeAPIError(resp *http.Response) error {
	var env struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, maxErrorBody)).Decode(&env)
	if env.Error.Code == "" {
		env.Error.Code = resp.Header.Get(session.HeaderAuthError)
	}
	return &APIError{Status: resp.StatusCode, Code: env.Error.Code, Message: env.Error.Message}
}
