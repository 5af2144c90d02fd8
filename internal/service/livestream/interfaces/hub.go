package interfaces

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"storefront/internal/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 2048
	sendBuffer     = 64
)

const (
	MessageViewers = "viewers"
	MessageChat    = "chat"
	MessageProduct = "product"
	MessageEnded   = "ended"
)

// Message 是服务端推给观众的帧
type Message struct {
	Type       string    `json:"type"`
	Count      int64     `json:"count,omitempty"`
	CustomerID string    `json:"customer_id,omitempty"`
	Text       string    `json:"text,omitempty"`
	ProductID  string    `json:"product_id,omitempty"`
	SentAt     time.Time `json:"sent_at"`
}

// Hub 按直播间维护所有活跃的连接，并负责广播
type Hub struct {
	rooms      map[string]map[*Client]struct{}
	unregister chan *Client
	done       chan struct{}
	closed     bool
	lock       sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]struct{}),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run 处理注销，ctx 结束时关闭所有连接
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.unregister:
			h.lock.Lock()
			h.remove(client)
			h.lock.Unlock()
		case <-ctx.Done():
			h.lock.Lock()
			h.closed = true
			for _, room := range h.rooms {
				for c := range room {
					h.remove(c)
				}
			}
			h.lock.Unlock()
			return
		}
	}
}

// join 注册后立即可以收到广播，Hub 已停止时返回 false
func (h *Hub) join(c *Client) bool {
	h.lock.Lock()
	defer h.lock.Unlock()
	if h.closed {
		return false
	}
	room, ok := h.rooms[c.streamID]
	if !ok {
		room = make(map[*Client]struct{})
		h.rooms[c.streamID] = room
	}
	room[c] = struct{}{}
	return true
}

// remove 调用方持有写锁
func (h *Hub) remove(c *Client) {
	room, ok := h.rooms[c.streamID]
	if !ok {
		return
	}
	if _, ok := room[c]; !ok {
		return
	}
	delete(room, c)
	close(c.send)
	if len(room) == 0 {
		delete(h.rooms, c.streamID)
	}
}

// Broadcast 发送缓冲已满的连接直接断开
func (h *Hub) Broadcast(streamID string, msg Message) {
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now().UTC()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		logger.L().Error().Err(err).Msg("failed to encode stream message")
		return
	}
	h.lock.Lock()
	defer h.lock.Unlock()
	for c := range h.rooms[streamID] {
		select {
		case c.send <- data:
		default:
			h.remove(c)
		}
	}
}

// CloseRoom 直播结束后断开该直播间的所有连接
func (h *Hub) CloseRoom(streamID string) {
	h.lock.Lock()
	defer h.lock.Unlock()
	for c := range h.rooms[streamID] {
		h.remove(c)
	}
}

// Size 当前节点上某个直播间的连接数
func (h *Hub) Size(streamID string) int {
	h.lock.RLock()
	defer h.lock.RUnlock()
	return len(h.rooms[streamID])
}

// Client 是一个 WebSocket 连接的代表
type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	streamID   string
	customerID string
}

func newClient(hub *Hub, conn *websocket.Conn, streamID, customerID string) *Client {
	return &Client{hub: hub, conn: conn, send: make(chan []byte, sendBuffer), streamID: streamID, customerID: customerID}
}

// writePump 把 send 中的消息写入连接，并定时发送 ping
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump 读取观众发来的帧直到连接断开，每一帧交给 onMessage
func (c *Client) readPump(onMessage func(data []byte)) {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.L().Debug().Err(err).Str("stream_id", c.streamID).Msg("viewer connection closed")
			}
			return
		}
		onMessage(data)
	}
}
