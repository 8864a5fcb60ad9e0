package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/dmitrymomot/clinicnotify/pkg/broadcast"
	"github.com/dmitrymomot/clinicnotify/pkg/logger"
	"github.com/dmitrymomot/clinicnotify/pkg/notifications"
	"github.com/dmitrymomot/clinicnotify/pkg/registry"
)

const (
	defaultWriteWait    = 10 * time.Second
	defaultPongWait     = 60 * time.Second
	defaultPingInterval = (defaultPongWait * 9) / 10
	maxInboundMessage   = 4096
)

// Frame is a single server-to-client websocket message. Channel names the
// logical destination the envelope was published to.
type Frame struct {
	Channel string                 `json:"channel"`
	Payload notifications.Envelope `json:"payload"`
}

// Pong answers a client {"type":"ping"} message.
type Pong struct {
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
}

type inbound struct {
	Type string `json:"type"`
}

// Server upgrades HTTP requests to websocket connections and streams the
// caller's notification channels over them.
type Server struct {
	hub      *Hub
	registry *registry.Registry
	auth     Authenticator
	upgrader websocket.Upgrader
	logger   *slog.Logger

	writeWait    time.Duration
	pongWait     time.Duration
	pingInterval time.Duration

	mu     sync.Mutex
	conns  map[string]*websocket.Conn
	closed bool
	wg     sync.WaitGroup
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithAuthenticator replaces TrustedIdentity.
func WithAuthenticator(a Authenticator) ServerOption {
	return func(s *Server) {
		if a != nil {
			s.auth = a
		}
	}
}

// WithServerLogger sets the logger.
func WithServerLogger(l *slog.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithKeepalive sets how often pings are sent and how long the server waits
// for any inbound frame before dropping the connection.
func WithKeepalive(pingInterval, pongWait time.Duration) ServerOption {
	return func(s *Server) {
		if pingInterval > 0 && pongWait > pingInterval {
			s.pingInterval = pingInterval
			s.pongWait = pongWait
		}
	}
}

// WithWriteTimeout bounds every write to a connection.
func WithWriteTimeout(d time.Duration) ServerOption {
	return func(s *Server) {
		if d > 0 {
			s.writeWait = d
		}
	}
}

// WithAllowedOrigins restricts cross-origin handshakes. An empty list or "*"
// accepts any origin.
func WithAllowedOrigins(origins ...string) ServerOption {
	return func(s *Server) {
		if len(origins) == 0 || slices.Contains(origins, "*") {
			s.upgrader.CheckOrigin = func(*http.Request) bool { return true }
			return
		}
		allowed := slices.Clone(origins)
		s.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || slices.Contains(allowed, origin)
		}
	}
}

// NewServer creates a websocket server over hub. Connections are tracked in reg.
func NewServer(hub *Hub, reg *registry.Registry, opts ...ServerOption) *Server {
	s := &Server{
		hub:      hub,
		registry: reg,
		auth:     TrustedIdentity(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger:       slog.Default(),
		writeWait:    defaultWriteWait,
		pongWait:     defaultPongWait,
		pingInterval: defaultPingInterval,
		conns:        make(map[string]*websocket.Conn),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(logger.Component("realtime"))
	return s
}

// ServeHTTP authenticates and upgrades the request, then blocks until the
// connection ends.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, err := s.auth.Authenticate(r)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the error response.
		s.logger.WarnContext(r.Context(), "websocket upgrade failed", logger.UserID(userID), logger.Error(err))
		return
	}

	connID := uuid.NewString()
	if !s.track(connID, conn) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, ErrServerClosed.Error()),
			time.Now().Add(s.writeWait))
		_ = conn.Close()
		return
	}
	defer s.untrack(connID)

	s.registry.OnConnect(connID, userID)
	defer s.registry.OnDisconnect(connID)

	// The hijacked request context is not tied to the socket lifetime.
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	c := &client{
		id:      connID,
		userID:  userID,
		conn:    conn,
		server:  s,
		replies: make(chan any, 4),
		subs: []subscription{
			{notifications.PrimaryChannel(userID), s.hub.Subscribe(ctx, notifications.PrimaryChannel(userID))},
			{notifications.BackupChannel(userID), s.hub.Subscribe(ctx, notifications.BackupChannel(userID))},
			{notifications.BroadcastChannel, s.hub.Subscribe(ctx, notifications.BroadcastChannel)},
		},
	}

	log := s.logger.With(logger.ConnectionID(connID), logger.UserID(userID))
	log.DebugContext(ctx, "websocket connected")

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.writePump(ctx, cancel, log)
	}()

	c.readPump(ctx, log)
	cancel()
	<-done
	_ = conn.Close()
	log.DebugContext(ctx, "websocket disconnected")
}

// Close sends a going-away close frame to every connection and waits for
// their handlers to return or ctx to end.
func (s *Server) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	conns := make([]*websocket.Conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	deadline := time.Now().Add(s.writeWait)
	for _, c := range conns {
		_ = c.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"), deadline)
		_ = c.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) track(id string, conn *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[id] = conn
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(id string) {
	s.mu.Lock()
	delete(s.conns, id)
	s.mu.Unlock()
	s.wg.Done()
}

type subscription struct {
	channel string
	sub     broadcast.Subscriber[notifications.Envelope]
}

type client struct {
	id      string
	userID  int64
	conn    *websocket.Conn
	server  *Server
	subs    []subscription
	replies chan any
}

// readPump owns all reads. It returns when the peer goes away or stops
// answering pings.
func (c *client) readPump(ctx context.Context, log *slog.Logger) {
	c.conn.SetReadLimit(maxInboundMessage)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.server.pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.server.pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				log.DebugContext(ctx, "websocket read failed", logger.Error(err))
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(c.server.pongWait))

		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Type == "ping" {
			select {
			case c.replies <- Pong{Event: "PONG", Timestamp: time.Now().UTC()}:
			case <-ctx.Done():
				return
			default:
			}
		}
	}
}

// writePump owns all writes. A closed subscription means the hub dropped this
// connection as too slow or shut down, so the socket is closed and the client
// is expected to reconnect.
func (c *client) writePump(ctx context.Context, cancel context.CancelFunc, log *slog.Logger) {
	ticker := time.NewTicker(c.server.pingInterval)
	defer ticker.Stop()
	defer cancel()

	primary := c.subs[0].sub.Receive(ctx)
	backup := c.subs[1].sub.Receive(ctx)
	everyone := c.subs[2].sub.Receive(ctx)

	for {
		var (
			frame any
			ok    bool
			msg   broadcast.Message[notifications.Envelope]
			ch    string
		)
		select {
		case <-ctx.Done():
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.server.writeWait))
			return
		case msg, ok = <-primary:
			ch = c.subs[0].channel
		case msg, ok = <-backup:
			ch = c.subs[1].channel
		case msg, ok = <-everyone:
			ch = c.subs[2].channel
		case frame = <-c.replies:
			ok = true
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.server.writeWait)); err != nil {
				_ = c.conn.Close()
				return
			}
			continue
		}

		if !ok {
			log.InfoContext(ctx, "subscription closed, dropping connection")
			_ = c.conn.Close()
			return
		}
		if frame == nil {
			frame = Frame{Channel: ch, Payload: msg.Data}
		}

		_ = c.conn.SetWriteDeadline(time.Now().Add(c.server.writeWait))
		if err := c.conn.WriteJSON(frame); err != nil {
			log.DebugContext(ctx, "websocket write failed", logger.Error(err))
			_ = c.conn.Close()
			return
		}
	}
}
