package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"taskflow/cmd/internal/auth/session"
)

const feedPath = "/ws/tasks"

// FeedEvent is one frame of the task invalidation feed.
type FeedEvent struct {
	Type    string    `json:"type"`
	TS      time.Time `json:"ts"`
	Code    string    `json:"code,omitempty"`
	Message string    `json:"message,omitempty"`
}

// Feed is an open subscription to the invalidation feed.
type Feed struct {
	conn *websocket.Conn
}

// DialFeed subscribes to task invalidations. A handshake refused with
// credential_missing is renewed once, like Do.
func (c *Client) DialFeed(ctx context.Context) (*Feed, error) {
	conn, err := c.dialFeed(ctx)
	if err == nil {
		return &Feed{conn: conn}, nil
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized || apiErr.Code != session.CodeCredentialMissing {
		return nil, err
	}
	if rerr := c.rotate(ctx); rerr != nil {
		c.log.Info("client.session.ended", "path", feedPath, "err", rerr)
		return nil, err
	}
	conn, err = c.dialFeed(ctx)
	if err != nil {
		return nil, err
	}
	return &Feed{conn: conn}, nil
}

func (c *Client) dialFeed(ctx context.Context) (*websocket.Conn, error) {
	// The handshake is bounded by ctx; the websocket library rejects a
	// client-level timeout.
	hc := *c.http
	hc.Timeout = 0
	opts := &websocket.DialOptions{HTTPClient: &hc}

	if c.trackBearer {
		c.mu.Lock()
		tok := c.bearer
		c.mu.Unlock()
		if tok.Valid() {
			opts.HTTPHeader = http.Header{"Authorization": {tok.Type() + " " + tok.AccessToken}}
		}
	}

	conn, resp, err := websocket.Dial(ctx, c.URL(feedPath), opts)
	if err != nil {
		if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols && resp.Body != nil {
			return nil, decodeAPIError(resp)
		}
		return nil, fmt.Errorf("client: dialing feed: %w", err)
	}
	return conn, nil
}

// Next blocks for the next event.
func (f *Feed) Next(ctx context.Context) (FeedEvent, error) {
	var ev FeedEvent
	if err := wsjson.Read(ctx, f.conn, &ev); err != nil {
		return FeedEvent{}, err
	}
	return ev, nil
}

// Ping asks the server for a pong event.
func (f *Feed) Ping(ctx context.Context) error {
	return wsjson.Write(ctx, f.conn, map[string]string{"type": "ping"})
}

func (f *Feed) Close() error {
	return f.conn.Close(websocket.StatusNormalClosure, "bye")
}
