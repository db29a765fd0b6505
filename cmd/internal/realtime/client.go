package realtime

import "sync"

// Client is one connected feed subscriber.
//
// Send is never closed by the server, so a concurrent broadcaster cannot
// panic on a closed channel. done signals the connection goroutines to stop.
type Client struct {
	ID          string
	PrincipalID string
	Send        chan Event

	done      chan struct{}
	closeOnce sync.Once
}

func NewClient(id, principalID string, sendQueueSize int) *Client {
	if sendQueueSize <= 0 {
		sendQueueSize = 16
	}
	return &Client{
		ID:          id,
		PrincipalID: principalID,
		Send:        make(chan Event, sendQueueSize),
		done:        make(chan struct{}),
	}
}

// Done is closed once the client shuts down.
func (c *Client) Done() <-chan struct{} {
	if c == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return c.done
}

// Close is idempotent. It does not close Send.
func (c *Client) Close() {
	if c == nil {
		return
	}
	c.closeOnce.Do(func() { close(c.done) })
}

// offer queues ev without blocking. A full queue already holds an
// invalidation the client has yet to read, so dropping loses nothing.
func (c *Client) offer(ev Event) bool {
	select {
	case <-c.done:
		return false
	case c.Send <- ev:
		return true
	default:
		return false
	}
}
