package trendengine

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	clientSendBuffer = 256
	replayPerChannel = 200
	pingInterval     = 30 * time.Second
	readTimeout      = 60 * time.Second
	writeTimeout     = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub fans trend reports out to websocket clients. Every envelope carries a
// global seq and a per-channel seq; clients detect gaps with the latter and
// backfill them from the replay buffers.
type Hub struct {
	mu          sync.RWMutex
	clients     map[*wsClient]bool
	latest      map[string][]byte // channel -> last envelope
	channelSeqs map[string]int64
	replay      map[string]*ReplayBuffer
	seq         int64

	// Optional hooks for metrics.
	OnClients func(n int)
	OnDrop    func()
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		clients:     make(map[*wsClient]bool),
		latest:      make(map[string][]byte),
		channelSeqs: make(map[string]int64),
		replay:      make(map[string]*ReplayBuffer),
	}
}

// envelope builds {"channel":..,"data":..,"ts":..,"seq":..,"channel_seq":..}
// by hand; data is already JSON.
func envelope(channel string, data []byte, now time.Time, seq, channelSeq int64) []byte {
	buf := make([]byte, 0, len(channel)+len(data)+160)
	buf = append(buf, `{"channel":`...)
	buf = strconv.AppendQuote(buf, channel)
	buf = append(buf, `,"data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = now.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, `,"channel_seq":`...)
	buf = strconv.AppendInt(buf, channelSeq, 10)
	buf = append(buf, '}')
	return buf
}

// Broadcast sends data on channel to every client subscribed to it. Sequence
// numbers are assigned and enqueued under one lock, so concurrent callers
// still deliver in seq order.
func (h *Hub) Broadcast(channel string, data []byte) {
	now := time.Now().UTC()

	h.mu.Lock()
	defer h.mu.Unlock()
	h.seq++
	h.channelSeqs[channel]++
	env := envelope(channel, data, now, h.seq, h.channelSeqs[channel])
	h.latest[channel] = env
	rb, ok := h.replay[channel]
	if !ok {
		rb = NewReplayBuffer(replayPerChannel)
		h.replay[channel] = rb
	}
	rb.Push(h.channelSeqs[channel], env)

	for c := range h.clients {
		if !c.matches(channel) {
			continue
		}
		select {
		case c.send <- env:
		default:
			if h.OnDrop != nil {
				h.OnDrop()
			}
		}
	}
}

// Replay returns buffered envelopes of channel with per-channel seq in [from, to].
func (h *Hub) Replay(channel string, from, to int64) [][]byte {
	h.mu.RLock()
	rb, ok := h.replay[channel]
	h.mu.RUnlock()
	if !ok {
		return nil
	}
	entries := rb.Range(from, to)
	out := make([][]byte, len(entries))
	for i, e := range entries {
		out[i] = e.Data
	}
	return out
}

// ChannelSeq returns the last per-channel seq sent.
func (h *Hub) ChannelSeq(channel string) int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.channelSeqs[channel]
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and registers a client. Repeated "channel"
// query parameters pre-subscribe it; none means every channel.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &wsClient{
		conn: conn,
		send: make(chan []byte, clientSendBuffer),
		hub:  h,
		subs: make(map[string]bool),
	}
	for _, ch := range r.URL.Query()["channel"] {
		if ch = strings.TrimSpace(ch); ch != "" {
			c.subs[ch] = true
		}
	}

	h.mu.Lock()
	h.clients[c] = true
	n := len(h.clients)
	for channel, env := range h.latest {
		if c.matches(channel) {
			select {
			case c.send <- env:
			default:
			}
		}
	}
	h.mu.Unlock()
	if h.OnClients != nil {
		h.OnClients(n)
	}
	slog.Info("ws client connected", slog.Int("clients", n))

	go c.writePump()
	go c.readPump()
}

func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)
	n := len(h.clients)
	h.mu.Unlock()
	if h.OnClients != nil {
		h.OnClients(n)
	}
	slog.Info("ws client disconnected", slog.Int("clients", n))
}

// wsClient is one websocket peer.
type wsClient struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	subMu sync.RWMutex
	subs  map[string]bool
}

// clientMessage is what a client may send: SUBSCRIBE / UNSUBSCRIBE with a
// channel list, or a ping carrying its own timestamp.
type clientMessage struct {
	Type     string   `json:"type"`
	Channels []string `json:"channels"`
	Ping     int64    `json:"ping"`
}

func (c *wsClient) matches(channel string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	return len(c.subs) == 0 || c.subs[channel]
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsClient) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg clientMessage
		if json.Unmarshal(raw, &msg) != nil {
			continue
		}
		switch msg.Type {
		case "SUBSCRIBE":
			c.subMu.Lock()
			for _, ch := range msg.Channels {
				c.subs[ch] = true
			}
			c.subMu.Unlock()
		case "UNSUBSCRIBE":
			c.subMu.Lock()
			for _, ch := range msg.Channels {
				delete(c.subs, ch)
			}
			c.subMu.Unlock()
		default:
			if msg.Ping > 0 {
				pong, _ := json.Marshal(map[string]int64{"ping": msg.Ping, "server_ts": time.Now().UnixMilli()})
				c.hub.mu.RLock()
				select {
				case c.send <- pong:
				default:
				}
				c.hub.mu.RUnlock()
			}
		}
	}
}
