// Package notify pushes exchange and credit events to connected clients over
// WebSocket. The hub owns all client state and mutates it from a single
// goroutine; callers only ever touch the channels, so no locking is needed.
package notify

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/skillforge-network/skillforge/internal/domain"
)

// Event is the wire envelope sent to clients. Exactly one payload field is
// set, matching Type.
type Event struct {
	Type     string           `json:"type"`
	Exchange *domain.Exchange `json:"exchange,omitempty"`
	Previous string           `json:"previous,omitempty"`
	Credit   *CreditEvent     `json:"credit,omitempty"`
}

// CreditEvent describes a balance change for one user.
type CreditEvent struct {
	UserID int64  `json:"user_id"`
	Amount int64  `json:"amount"`
	Reason string `json:"reason"`
}

const (
	eventExchangeRequested = "exchange_requested"
	eventExchangeUpdated   = "exchange_updated"
	eventCreditTransferred = "credit_transferred"
)

type client struct {
	userID int64
	connID string
	conn   *websocket.Conn
}

type delivery struct {
	userIDs []int64
	event   Event
}

// Hub fans events out to each user's open connections. It implements
// domain.NotificationDispatcher; the dispatch methods only enqueue, so a
// slow or absent consumer never blocks the transaction core.
type Hub struct {
	clients    map[int64]map[*client]bool
	broadcast  chan delivery
	register   chan *client
	unregister chan *client
	presence   domain.PresenceTracker
	logger     zerolog.Logger
}

// NewHub creates a hub. presence may be nil when connection tracking is not
// wanted (tests).
func NewHub(presence domain.PresenceTracker, logger zerolog.Logger) *Hub {
	return &Hub{
		clients:    make(map[int64]map[*client]bool),
		broadcast:  make(chan delivery, 100),
		register:   make(chan *client, 100),
		unregister: make(chan *client, 100),
		presence:   presence,
		logger:     logger.With().Str("component", "notify").Logger(),
	}
}

// Run owns the client map until ctx is cancelled. Call it in its own
// goroutine before serving WebSocket upgrades.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return

		case c := <-h.register:
			if h.clients[c.userID] == nil {
				h.clients[c.userID] = make(map[*client]bool)
			}
			h.clients[c.userID][c] = true
			if h.presence != nil {
				h.presence.Connected(c.userID, c.connID)
			}
			h.logger.Info().
				Int64("user_id", c.userID).
				Str("conn_id", c.connID).
				Int("connection_count", len(h.clients[c.userID])).
				Msg("WebSocket client registered")

		case c := <-h.unregister:
			h.dropClient(c)

		case d := <-h.broadcast:
			for _, userID := range d.userIDs {
				h.deliverTo(userID, d.event)
			}
		}
	}
}

func (h *Hub) dropClient(c *client) {
	conns, ok := h.clients[c.userID]
	if !ok || !conns[c] {
		return
	}
	delete(conns, c)
	if len(conns) == 0 {
		delete(h.clients, c.userID)
	}
	if h.presence != nil {
		h.presence.Disconnected(c.connID)
	}
	c.conn.Close()
	h.logger.Info().
		Int64("user_id", c.userID).
		Str("conn_id", c.connID).
		Msg("WebSocket client unregistered")
}

func (h *Hub) deliverTo(userID int64, ev Event) {
	conns, ok := h.clients[userID]
	if !ok {
		return
	}
	for c := range conns {
		c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := c.conn.WriteJSON(ev); err != nil {
			h.logger.Warn().Err(err).
				Int64("user_id", userID).
				Str("conn_id", c.connID).
				Str("type", ev.Type).
				Msg("Failed to send WebSocket event, dropping client")
			h.dropClient(c)
		}
	}
}

func (h *Hub) closeAll() {
	for _, conns := range h.clients {
		for c := range conns {
			c.conn.Close()
		}
	}
	h.clients = make(map[int64]map[*client]bool)
}

// enqueue drops the event when the buffer is full rather than blocking the
// caller.
func (h *Hub) enqueue(d delivery) {
	select {
	case h.broadcast <- d:
	default:
		h.logger.Warn().Str("type", d.event.Type).Msg("Notification buffer full, dropping event")
	}
}

// ─── domain.NotificationDispatcher ──────────────────────────────────────────

// ExchangeRequested tells the offerer a new exchange is waiting for review.
func (h *Hub) ExchangeRequested(ex *domain.Exchange) {
	h.enqueue(delivery{
		userIDs: []int64{ex.OffererID},
		event:   Event{Type: eventExchangeRequested, Exchange: ex},
	})
}

// ExchangeStatusChanged tells both parties the exchange moved to a new state.
func (h *Hub) ExchangeStatusChanged(ex *domain.Exchange, previous domain.ExchangeStatus) {
	h.enqueue(delivery{
		userIDs: []int64{ex.OffererID, ex.LearnerID},
		event:   Event{Type: eventExchangeUpdated, Exchange: ex, Previous: string(previous)},
	})
}

// CreditTransferred tells one user their balance changed.
func (h *Hub) CreditTransferred(userID, amount int64, reason string) {
	h.enqueue(delivery{
		userIDs: []int64{userID},
		event: Event{Type: eventCreditTransferred, Credit: &CreditEvent{
			UserID: userID,
			Amount: amount,
			Reason: reason,
		}},
	})
}

// ─── HTTP upgrade ───────────────────────────────────────────────────────────

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// HandleWS upgrades the request and registers the connection for userID. The
// read loop only drains control frames; clients receive events, they do not
// send commands.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request, userID int64) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Int64("user_id", userID).Msg("WebSocket upgrade failed")
		return
	}

	c := &client{
		userID: userID,
		connID: uuid.New().String(),
		conn:   conn,
	}
	h.register <- c

	go h.readLoop(c)
}

func (h *Hub) readLoop(c *client) {
	defer func() { h.unregister <- c }()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Debug().Err(err).Str("conn_id", c.connID).Msg("Unexpected WebSocket close")
			}
			return
		}
	}
}
