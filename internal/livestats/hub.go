package livestats

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/net/websocket"

	"github.com/wolfman30/medspa-pipeline/internal/http/middleware"
	"github.com/wolfman30/medspa-pipeline/pkg/logging"
)

// Hub is the server side of the push channel. Each socket must open with a
// subscribe frame carrying a staff token; the hub then relays the token's
// org channel as stats events.
type Hub struct {
	secret           string
	redis            *redis.Client
	logger           *logging.Logger
	handshakeTimeout time.Duration

	mu       sync.RWMutex
	sessions map[string]*session
}

type session struct {
	orgID string
	conn  *websocket.Conn
}

func NewHub(secret string, client *redis.Client, logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Default()
	}
	return &Hub{
		secret:           secret,
		redis:            client,
		logger:           logger.Component("stats_hub"),
		handshakeTimeout: 10 * time.Second,
		sessions:         make(map[string]*session),
	}
}

// HandleWebSocket upgrades the request and serves one subscriber.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.Server{Handler: h.serveWS}.ServeHTTP(w, r)
}

// Sessions returns the number of subscribed sockets, optionally for one org.
func (h *Hub) Sessions(orgID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if orgID == "" {
		return len(h.sessions)
	}
	n := 0
	for _, s := range h.sessions {
		if s.orgID == orgID {
			n++
		}
	}
	return n
}

func (h *Hub) serveWS(conn *websocket.Conn) {
	defer conn.Close()
	ctx, cancel := context.WithCancel(conn.Request().Context())
	defer cancel()

	_ = conn.SetReadDeadline(time.Now().Add(h.handshakeTimeout))
	var hello Envelope
	if err := websocket.JSON.Receive(conn, &hello); err != nil {
		h.logger.Debug("stats socket closed before subscribe", "error", err)
		return
	}
	if hello.Type != EventSubscribe {
		_ = websocket.JSON.Send(conn, Envelope{Type: EventError, Error: "expected subscribe"})
		return
	}
	claims, err := middleware.ParseToken(h.secret, hello.Token)
	if err != nil {
		h.logger.Warn("stats subscribe rejected", "error", err)
		_ = websocket.JSON.Send(conn, Envelope{Type: EventError, Error: "unauthorized"})
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	orgID := claims.OrgID
	sub := h.redis.Subscribe(ctx, Channel(orgID))
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		h.logger.Error("stats subscribe failed", "org_id", orgID, "error", err)
		_ = websocket.JSON.Send(conn, Envelope{Type: EventError, Error: "stats unavailable"})
		return
	}

	id := uuid.NewString()
	h.mu.Lock()
	h.sessions[id] = &session{orgID: orgID, conn: conn}
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.sessions, id)
		h.mu.Unlock()
	}()

	if err := websocket.JSON.Send(conn, Envelope{Type: EventSubscribed, OrgID: orgID}); err != nil {
		return
	}
	h.logger.Info("stats socket subscribed", "org_id", orgID, "staff", claims.Subject)

	go h.relay(ctx, conn, sub.Channel(), orgID)

	for {
		var env Envelope
		if err := websocket.JSON.Receive(conn, &env); err != nil {
			h.logger.Debug("stats socket closed", "org_id", orgID, "error", err)
			return
		}
		if env.Type == EventPing {
			_ = websocket.JSON.Send(conn, Envelope{Type: EventPong})
		}
	}
}

func (h *Hub) relay(ctx context.Context, conn *websocket.Conn, ch <-chan *redis.Message, orgID string) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if !json.Valid([]byte(msg.Payload)) {
				h.logger.Warn("skipping malformed stats payload", "org_id", orgID)
				continue
			}
			if err := websocket.JSON.Send(conn, Envelope{Type: EventStats, Data: json.RawMessage(msg.Payload)}); err != nil {
				h.logger.Debug("stats relay stopped", "org_id", orgID, "error", err)
				return
			}
		}
	}
}
