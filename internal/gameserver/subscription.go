// Package gameserver exposes towns over HTTP: a websocket subscription per
// player session and a JSON REST surface for town administration.
package gameserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cory-johannsen/town/internal/game/session"
	"github.com/cory-johannsen/town/internal/game/town"
	"github.com/cory-johannsen/town/internal/game/world"
)

// Keepalive and size limits for subscription connections.
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// SubscriptionHandler upgrades authenticated requests to websocket
// subscriptions on a town's event stream.
type SubscriptionHandler struct {
	towns     *town.Directory
	upgrader  websocket.Upgrader
	queueSize int
	logger    *zap.Logger
}

// NewSubscriptionHandler creates a handler that accepts websocket Origins in
// allowedOrigins; "*" accepts any origin.
//
// Precondition: towns and logger must be non-nil.
func NewSubscriptionHandler(towns *town.Directory, allowedOrigins []string, queueSize int, logger *zap.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{
		towns:     towns,
		queueSize: queueSize,
		logger:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return set[u.Scheme+"://"+u.Host]
	}
}

// ServeHTTP authenticates ?townID=&token= and, on success, serves the
// subscription until the connection closes. Requests for unknown towns or
// with invalid tokens are rejected before the upgrade.
func (h *SubscriptionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	townID, token := q.Get("townID"), q.Get("token")

	t, ok := h.towns.Get(townID)
	if !ok {
		http.Error(w, "unknown town", http.StatusNotFound)
		return
	}
	sess, ok := t.LookupSession(token)
	if !ok {
		http.Error(w, "invalid session token", http.StatusUnauthorized)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed",
			zap.String("town_id", townID),
			zap.Error(err),
		)
		return
	}

	c := &connection{
		ws:     ws,
		town:   t,
		sess:   sess,
		out:    newOutbox(sess.Player.ID, h.queueSize),
		logger: h.logger.With(zap.String("town_id", townID), zap.String("player_id", sess.Player.ID)),
	}
	t.AddListener(c)
	// The session may have ended between authentication and subscribing.
	if cur, ok := t.LookupSession(token); !ok || cur != sess {
		t.RemoveListener(c)
		c.out.Close()
	}

	c.logger.Info("subscription opened")
	go c.writePump()
	c.readPump()
}

// connection is the town listener for one websocket client.
type connection struct {
	ws     *websocket.Conn
	town   *town.Town
	sess   *session.Session
	out    *outbox
	logger *zap.Logger
}

func (c *connection) OnPlayerJoined(p world.Player) error {
	return c.send(ServerMessage{Type: MsgNewPlayer, Player: &p})
}

func (c *connection) OnPlayerMoved(p world.Player) error {
	return c.send(ServerMessage{Type: MsgPlayerMoved, Player: &p})
}

func (c *connection) OnPlayerDisconnected(p world.Player) error {
	return c.send(ServerMessage{Type: MsgPlayerDisconnect, Player: &p})
}

func (c *connection) OnConversationAreaUpdated(a world.ConversationArea) error {
	return c.send(ServerMessage{Type: MsgConversationUpdated, ConversationArea: &a})
}

func (c *connection) OnConversationAreaDestroyed(a world.ConversationArea) error {
	return c.send(ServerMessage{Type: MsgConversationDestroyed, ConversationArea: &a})
}

// OnTownDestroyed queues the closing notice and then ends the subscription.
func (c *connection) OnTownDestroyed() error {
	err := c.send(ServerMessage{Type: MsgTownClosing})
	c.out.Close()
	return err
}

// send encodes msg onto the outbox. A client that cannot keep up is
// disconnected rather than silently missing events.
func (c *connection) send(msg ServerMessage) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", msg.Type, err)
	}
	if err := c.out.Push(b); err != nil {
		if errors.Is(err, ErrOutboxFull) {
			c.out.Close()
		}
		return err
	}
	return nil
}

// writePump drains the outbox to the socket and keeps the connection alive
// with pings. It closes the socket when the outbox is closed.
func (c *connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case msg, ok := <-c.out.Messages():
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.logger.Debug("websocket write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump applies inbound movement until the socket closes, then tears the
// subscription down. It is the only path by which a client leaves a town.
func (c *connection) readPump() {
	defer c.closeSubscription()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Info("websocket closed unexpectedly", zap.Error(err))
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			c.logger.Debug("ignoring malformed message", zap.Error(err))
			continue
		}
		if msg.Type != MsgPlayerMovement || msg.Location == nil {
			c.logger.Debug("ignoring message", zap.String("type", msg.Type))
			continue
		}
		if msg.Location.Rotation == "" {
			msg.Location.Rotation = world.Front
		}
		if !msg.Location.Rotation.IsStandard() {
			c.logger.Info("ignoring movement with unknown rotation", zap.String("rotation", string(msg.Location.Rotation)))
			continue
		}
		if err := c.town.UpdatePlayerLocation(c.sess, *msg.Location); err != nil {
			c.logger.Info("movement rejected, closing subscription", zap.Error(err))
			return
		}
	}
}

func (c *connection) closeSubscription() {
	c.town.RemoveListener(c)
	c.out.Close()
	err := c.town.DestroySession(c.sess)
	switch {
	case err == nil:
		c.logger.Info("subscription closed")
	case errors.Is(err, town.ErrTownClosed), errors.Is(err, session.ErrSessionNotFound):
		c.logger.Debug("subscription closed after session ended", zap.Error(err))
	default:
		c.logger.Error("destroying session", zap.Error(err))
	}
}
