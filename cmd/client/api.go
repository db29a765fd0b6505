package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// User is the principal as the API reports it.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	UserName  string    `json:"userName"`
	Federated bool      `json:"federated"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Login exchanges a password for a session. The credentials land in the
// cookie jar and a previously ended session is revived.
func (c *Client) Login(ctx context.Context, email, password string) (User, error) {
	var out struct {
		User    User        `json:"user"`
		Session sessionBody `json:"session"`
	}
	in := map[string]string{"email": email, "password": password}
	if err := c.SendJSON(ctx, http.MethodPost, loginPath, in, &out); err != nil {
		return User{}, err
	}

	c.mu.Lock()
	c.ended = false
	c.mu.Unlock()
	c.setBearer(out.Session)
	return out.User, nil
}

// Logout revokes the refresh slot server-side and forgets the bearer.
func (c *Client) Logout(ctx context.Context) error {
	err := c.SendJSON(ctx, http.MethodPost, logoutPath, nil, nil)
	c.mu.Lock()
	c.bearer = nil
	c.mu.Unlock()
	return err
}

// GetJSON decodes the body of GET path into out.
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	return c.SendJSON(ctx, http.MethodGet, path, nil, out)
}

// SendJSON sends in as the JSON body (nil sends none) and decodes a 2xx
// response into out when out is non-nil. Other statuses become *APIError.
func (c *Client) SendJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("client: encoding request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.URL(path), body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer drain(resp)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	if out == nil {
		return nil
	}
	return decodeJSON(resp.Body, out)
}

func decodeJSON(r io.Reader, out any) error {
	if err := json.NewDecoder(r).Decode(out); err != nil {
		return fmt.Errorf("client: decoding response: %w", err)
	}
	return nil
}

// Refresh rotates the session without waiting for a 401. It shares any
// rotation already in flight.
func (c *Client) Refresh(ctx context.Context) error {
	return c.rotate(ctx)
}
