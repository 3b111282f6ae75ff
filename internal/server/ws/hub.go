// Package ws pushes dashboard snapshots and bus events to WebSocket clients.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/arbbot/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 64

	// DefaultUpdateInterval is how often the update snapshot is pushed.
	DefaultUpdateInterval = 3 * time.Second

	// snapshotTrades is how many recent trades a snapshot carries.
	snapshotTrades = 10
)

// Message types besides the relayed bus channel names.
const (
	TypeInitial = "initial"
	TypeUpdate  = "update"
)

// relayChannels are the bus channels forwarded to clients.
var relayChannels = []string{
	domain.ChannelPrices,
	domain.ChannelOpportunities,
	domain.ChannelTrades,
	domain.ChannelBotStatus,
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin checks are left to the CORS and auth middleware.
	CheckOrigin: func(*http.Request) bool { return true },
}

// MarketReader supplies the market part of a snapshot.
type MarketReader interface {
	LatestPrices(ctx context.Context) ([]domain.PriceQuoteDetail, error)
	ActiveOpportunities(ctx context.Context) ([]domain.OpportunityDetail, error)
	RecentTrades(ctx context.Context, limit int) ([]domain.TradeDetail, error)
}

// StatusReader supplies the bot status part of a snapshot.
type StatusReader interface {
	Status(ctx context.Context) (domain.BotStatusReport, error)
}

// Snapshot is the dashboard state sent on connect and on every update.
type Snapshot struct {
	Prices        []domain.PriceQuoteDetail  `json:"prices"`
	Opportunities []domain.OpportunityDetail `json:"opportunities"`
	Trades        []domain.TradeDetail       `json:"trades"`
	BotStatus     domain.BotStatusReport     `json:"botStatus"`
}

// Envelope is the frame every message is wrapped in.
type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Hub tracks connected clients. It pushes an initial snapshot on connect,
// an update snapshot on every interval, and relays bus events as they
// arrive.
type Hub struct {
	markets  MarketReader
	bot      StatusReader
	bus      domain.SignalBus
	interval time.Duration
	logger   *slog.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
}

// NewHub creates a Hub. bus may be nil, which disables relaying.
func NewHub(markets MarketReader, bot StatusReader, bus domain.SignalBus, interval time.Duration, logger *slog.Logger) *Hub {
	if interval <= 0 {
		interval = DefaultUpdateInterval
	}
	return &Hub{
		markets:  markets,
		bot:      bot,
		bus:      bus,
		interval: interval,
		logger:   logger.With(slog.String("component", "ws_hub")),
		clients:  make(map[*client]struct{}),
	}
}

// Run pushes updates and relays bus events until ctx is cancelled, then
// disconnects every client.
func (h *Hub) Run(ctx context.Context) error {
	if h.bus != nil {
		for _, ch := range relayChannels {
			msgs, err := h.bus.Subscribe(ctx, ch)
			if err != nil {
				return fmt.Errorf("ws: subscribe %s: %w", ch, err)
			}
			go h.relay(ctx, ch, msgs)
		}
	}

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return ctx.Err()
		case <-ticker.C:
			if h.ClientCount() == 0 {
				continue
			}
			frame, err := h.snapshotFrame(ctx, TypeUpdate)
			if err != nil {
				h.logger.WarnContext(ctx, "snapshot failed", slog.String("error", err.Error()))
				continue
			}
			h.broadcast("", frame)
		}
	}
}

func (h *Hub) relay(ctx context.Context, channel string, msgs <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-msgs:
			if !ok {
				return
			}
			frame, err := json.Marshal(Envelope{Type: channel, Data: json.RawMessage(data)})
			if err != nil {
				h.logger.WarnContext(ctx, "relay encode failed", slog.String("channel", channel), slog.String("error", err.Error()))
				continue
			}
			h.broadcast(channel, frame)
		}
	}
}

// broadcast queues frame on every client subscribed to channel. An empty
// channel reaches every client. Slow clients drop frames.
func (h *Hub) broadcast(channel string, frame []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if channel != "" && !c.subscribed(channel) {
			continue
		}
		select {
		case c.send <- frame:
		default:
			h.logger.Warn("dropping frame for slow client", slog.String("channel", channel))
		}
	}
}

// Snapshot reads the current dashboard state.
func (h *Hub) Snapshot(ctx context.Context) (Snapshot, error) {
	var s Snapshot
	var err error
	if s.Prices, err = h.markets.LatestPrices(ctx); err != nil {
		return s, fmt.Errorf("ws: prices: %w", err)
	}
	if s.Opportunities, err = h.markets.ActiveOpportunities(ctx); err != nil {
		return s, fmt.Errorf("ws: opportunities: %w", err)
	}
	if s.Trades, err = h.markets.RecentTrades(ctx, snapshotTrades); err != nil {
		return s, fmt.Errorf("ws: trades: %w", err)
	}
	if s.BotStatus, err = h.bot.Status(ctx); err != nil {
		return s, fmt.Errorf("ws: bot status: %w", err)
	}
	return s, nil
}

func (h *Hub) snapshotFrame(ctx context.Context, typ string) ([]byte, error) {
	s, err := h.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: typ, Data: s})
}

// HandleWS upgrades the request and sends the initial snapshot.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{hub: h, conn: conn, send: make(chan []byte, sendBufferSize), subs: make(map[string]bool)}
	for _, ch := range relayChannels {
		c.subs[ch] = true
	}

	if frame, err := h.snapshotFrame(r.Context(), TypeInitial); err != nil {
		h.logger.WarnContext(r.Context(), "initial snapshot failed", slog.String("error", err.Error()))
	} else {
		c.send <- frame
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("client connected", slog.Int("total_clients", n))

	go c.writePump()
	go c.readPump()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Info("client disconnected", slog.Int("total_clients", n))
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu   sync.RWMutex
	subs map[string]bool
}

// subscribeMsg lets a client narrow or widen the relayed channels, e.g.
// {"action":"unsubscribe","channels":["prices"]}.
type subscribeMsg struct {
	Action   string   `json:"action"`
	Channels []string `json:"channels"`
}

func (c *client) subscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subs[channel]
}

func (c *client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("unexpected close", slog.String("error", err.Error()))
			}
			return
		}
		var msg subscribeMsg
		if json.Unmarshal(message, &msg) != nil {
			continue
		}
		c.mu.Lock()
		for _, ch := range msg.Channels {
			switch msg.Action {
			case "subscribe":
				c.subs[ch] = true
			case "unsubscribe":
				delete(c.subs, ch)
			}
		}
		c.mu.Unlock()
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
