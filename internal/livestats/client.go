package livestats

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wolfman30/medspa-pipeline/pkg/logging"
)

// ErrSubscribeRejected is returned when the hub refuses the handshake.
var ErrSubscribeRejected = errors.New("livestats: subscribe rejected")

// WSClient is the board side of the push channel. It sends one subscribe
// frame carrying the staff token, then feeds stats events into the Merger.
type WSClient struct {
	url    string
	token  string
	merger *Merger
	dialer *websocket.Dialer
	header http.Header
	logger *logging.Logger
}

func NewWSClient(url, token string, merger *Merger, logger *logging.Logger) *WSClient {
	if logger == nil {
		logger = logging.Default()
	}
	return &WSClient{
		url:    url,
		token:  token,
		merger: merger,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		header: http.Header{},
		logger: logger.Component("stats_client"),
	}
}

// WithOrigin sets the Origin header sent on dial.
func (c *WSClient) WithOrigin(origin string) *WSClient {
	c.header.Set("Origin", origin)
	return c
}

// Run connects and blocks until ctx ends or the connection drops. The
// caller decides whether to call Run again.
func (c *WSClient) Run(ctx context.Context) error {
	conn, _, err := c.dialer.DialContext(ctx, c.url, c.header)
	if err != nil {
		return fmt.Errorf("livestats: dial: %w", err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	c.merger.HandleConnect()
	defer c.merger.HandleDisconnect()

	if err := conn.WriteJSON(Envelope{Type: EventSubscribe, Token: c.token}); err != nil {
		return fmt.Errorf("livestats: subscribe: %w", err)
	}

	for {
		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("livestats: read: %w", err)
		}
		switch env.Type {
		case EventSubscribed:
			c.logger.Info("subscribed to live stats", "org_id", env.OrgID)
		case EventStats:
			msg, err := DecodeStats(env.Data)
			if err != nil {
				c.merger.metrics.ObserveLiveMessage("invalid")
				c.logger.Warn("dropping malformed stats event", "error", err)
				continue
			}
			c.merger.Apply(msg)
		case EventPing:
			if err := conn.WriteJSON(Envelope{Type: EventPong}); err != nil {
				return fmt.Errorf("livestats: pong: %w", err)
			}
		case EventError:
			return fmt.Errorf("%w: %s", ErrSubscribeRejected, env.Error)
		}
	}
}
