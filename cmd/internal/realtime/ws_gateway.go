package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/time/rate"

	"taskflow/cmd/identity/ids"
	"taskflow/cmd/internal/auth/session"
	"taskflow/cmd/internal/httpx"
)

const (
	wsMinSendQueueSize = 4
	wsCloseGrace       = time.Second
	wsMaxPingFailures  = 3
)

// GatewayConfig tunes the invalidation feed. Fields load from TASKFLOW_WS_*.
type GatewayConfig struct {
	// AllowedOrigins lists browser origins; "*" allows any. Requests without
	// an Origin header pass unless OriginRequired is set.
	AllowedOrigins []string `env:"WS_ALLOWED_ORIGINS" envSeparator:","`
	OriginRequired bool     `env:"WS_ORIGIN_REQUIRED" envDefault:"false"`

	WriteTimeout      time.Duration `env:"WS_WRITE_TIMEOUT" envDefault:"5s"`
	SendQueueSize     int           `env:"WS_SEND_QUEUE" envDefault:"16"`
	HeartbeatInterval time.Duration `env:"WS_HEARTBEAT_INTERVAL" envDefault:"25s"`
	HeartbeatTimeout  time.Duration `env:"WS_HEARTBEAT_TIMEOUT" envDefault:"5s"`
}

func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		AllowedOrigins:    []string{"http://localhost:5173"},
		WriteTimeout:      5 * time.Second,
		SendQueueSize:     16,
		HeartbeatInterval: heartbeatInterval,
		HeartbeatTimeout:  heartbeatTimeout,
	}
}

// WSGateway serves GET /ws/tasks. It must sit behind the access-credential
// middleware: the principal comes from the request context.
type WSGateway struct {
	log *slog.Logger
	hub *Hub
	cfg GatewayConfig

	originPatterns []string
}

func NewWSGateway(log *slog.Logger, hub *Hub, cfg GatewayConfig) *WSGateway {
	if log == nil {
		log = slog.Default()
	}
	if hub == nil {
		hub = NewHub(log)
	}
	def := DefaultGatewayConfig()
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.SendQueueSize < wsMinSendQueueSize {
		cfg.SendQueueSize = wsMinSendQueueSize
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = def.HeartbeatInterval
	}
	if cfg.HeartbeatTimeout <= 0 {
		cfg.HeartbeatTimeout = def.HeartbeatTimeout
	}
	return &WSGateway{
		log:            log,
		hub:            hub,
		cfg:            cfg,
		originPatterns: originPatterns(cfg.AllowedOrigins),
	}
}

func (g *WSGateway) Hub() *Hub { return g.hub }

func (g *WSGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.HandleWS(w, r)
}

// HandleWS upgrades the request and streams invalidation events until either
// side goes away.
func (g *WSGateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	who, ok := session.IdentityFromContext(r.Context())
	if !ok {
		w.Header().Set(session.HeaderAuthError, session.CodeCredentialMissing)
		httpx.WriteError(w, http.StatusUnauthorized, session.CodeCredentialMissing, "authentication required")
		return
	}
	if err := g.enforceOrigin(r); err != nil {
		g.log.Info("ws.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		httpx.WriteError(w, http.StatusForbidden, "origin_forbidden", "origin not allowed")
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:     g.originPatterns,
		InsecureSkipVerify: slices.Contains(g.cfg.AllowedOrigins, "*"),
	})
	if err != nil {
		g.log.Error("ws.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()
	conn.SetReadLimit(maxFrameBytes)

	clientID, err := ids.NewULID(time.Now())
	if err != nil {
		_ = conn.Close(websocket.StatusInternalError, "server error")
		return
	}
	client := NewClient(clientID, who.PrincipalID, g.cfg.SendQueueSize)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var closeOnce sync.Once
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			g.hub.Unsubscribe(client)
			client.Close()
			_ = conn.Close(code, reason)
			cancel()
		})
	}

	g.hub.Subscribe(client)
	g.log.Debug("ws.subscribed", "client_id", clientID, "principal_id", who.PrincipalID)
	client.offer(Event{Type: TypeSubscribed, TS: time.Now().UTC()})

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case ev := <-client.Send:
				if err := writeEvent(ctx, conn, ev, g.cfg.WriteTimeout); err != nil {
					g.log.Info("ws.write.fail", "client_id", clientID, "close_status", websocket.CloseStatus(err), "err", err)
					shutdown(websocket.StatusAbnormalClosure, "write failed")
					return
				}
			}
		}
	}()

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)
		t := time.NewTicker(g.cfg.HeartbeatInterval)
		defer t.Stop()

		failures := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case <-t.C:
				hbCtx, hbCancel := context.WithTimeout(ctx, g.cfg.HeartbeatTimeout)
				err := conn.Ping(hbCtx)
				hbCancel()
				if err == nil {
					failures = 0
					continue
				}
				failures++
				g.log.Info("ws.ping.fail", "client_id", clientID, "failures", failures, "err", err)
				if failures >= wsMaxPingFailures {
					shutdown(websocket.StatusGoingAway, "heartbeat failed")
					return
				}
			}
		}
	}()

	limiter := rate.NewLimiter(rateLimitPerSecond, rateLimitBurst)
	for {
		msg, err := readInbound(ctx, conn)
		if err != nil {
			var syntaxErr *json.SyntaxError
			if errors.As(err, &syntaxErr) {
				client.offer(errorEvent("bad_json", "invalid JSON"))
				continue
			}
			code, reason := classifyReadErr(err)
			if code == websocket.StatusAbnormalClosure {
				g.log.Info("ws.read.fail", "client_id", clientID, "err", err)
			}
			shutdown(code, reason)
			break
		}
		if !limiter.Allow() {
			client.offer(errorEvent("rate_limited", "too many messages"))
			shutdown(websocket.StatusPolicyViolation, "rate limited")
			break
		}
		switch msg.Type {
		case "ping":
			client.offer(Event{Type: TypePong, TS: time.Now().UTC()})
		default:
			client.offer(errorEvent("unsupported", fmt.Sprintf("unsupported type: %q", msg.Type)))
		}
	}

	<-writerDone
	select {
	case <-heartbeatDone:
	case <-time.After(wsCloseGrace):
	}
}

func errorEvent(code, msg string) Event {
	return Event{Type: TypeError, TS: time.Now().UTC(), Code: code, Message: msg}
}

func readInbound(ctx context.Context, conn *websocket.Conn) (inbound, error) {
	mt, data, err := conn.Read(ctx)
	if err != nil {
		return inbound{}, err
	}
	if mt != websocket.MessageText {
		return inbound{}, fmt.Errorf("unsupported message type: %v", mt)
	}
	var msg inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		return inbound{}, err
	}
	return msg, nil
}

func writeEvent(parent context.Context, conn *websocket.Conn, ev Event, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

// classifyReadErr picks the close frame to answer a failed read with.
func classifyReadErr(err error) (websocket.StatusCode, string) {
	switch {
	case websocket.CloseStatus(err) != -1:
		return websocket.StatusNormalClosure, "peer closed"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return websocket.StatusNormalClosure, "context done"
	case errors.Is(err, net.ErrClosed), errors.Is(err, io.EOF):
		return websocket.StatusNormalClosure, "conn closed"
	default:
		return websocket.StatusAbnormalClosure, "read failed"
	}
}

// ---- origin policy ----

func (g *WSGateway) enforceOrigin(r *http.Request) error {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		if g.cfg.OriginRequired {
			return errors.New("missing origin")
		}
		return nil
	}

	host := originHost(origin)
	for _, a := range g.cfg.AllowedOrigins {
		a = strings.TrimSpace(a)
		switch {
		case a == "":
		case a == "*", a == origin:
			return nil
		case host != "" && host == originHost(a):
			return nil
		}
	}
	return fmt.Errorf("origin not allowed: %s", origin)
}

// originHost returns the lower-cased host of a URL or host[:port] string.
func originHost(s string) string {
	s = strings.TrimSpace(s)
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		s = u.Host
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		s = host
	}
	return strings.ToLower(s)
}

// originPatterns turns the allowlist into websocket.Accept host patterns so
// both origin checks agree.
func originPatterns(allowed []string) []string {
	out := make([]string, 0, len(allowed))
	for _, a := range allowed {
		if h := originHost(a); h != "" && h != "*" {
			out = append(out, h)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
