package realtime

import (
	"log/slog"
	"sync"
	"time"
)

// Hub fans task-list invalidations out to the connected clients of each
// principal. It implements tasks.Notifier.
type Hub struct {
	log *slog.Logger
	now func() time.Time

	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
}

func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		log:     log,
		now:     time.Now,
		clients: make(map[string]map[*Client]struct{}),
	}
}

func (h *Hub) Subscribe(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set := h.clients[c.PrincipalID]
	if set == nil {
		set = make(map[*Client]struct{})
		h.clients[c.PrincipalID] = set
	}
	set[c] = struct{}{}
}

func (h *Hub) Unsubscribe(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set := h.clients[c.PrincipalID]
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.PrincipalID)
	}
}

// TasksChanged tells every client of principalID to refetch. It never blocks
// the writer that triggered it.
func (h *Hub) TasksChanged(principalID string) {
	ev := Event{Type: TypeTasksInvalidated, TS: h.now().UTC()}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients[principalID] {
		if !c.offer(ev) {
			h.log.Debug("ws.event.dropped", "client_id", c.ID, "principal_id", principalID)
		}
	}
}

// Subscribers reports how many clients principalID has connected.
func (h *Hub) Subscribers(principalID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[principalID])
}
