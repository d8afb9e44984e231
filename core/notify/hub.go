// Package notify pushes account events to connected browsers and keeps a
// short backlog for clients that were offline.
package notify

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"trackmarket/logger"
	"trackmarket/model"

	"github.com/gorilla/websocket"
)

// MessageType 消息类型
type MessageType string

const (
	MsgTypeNotification MessageType = "notification"
	MsgTypePing         MessageType = "ping" // 心跳
	MsgTypePong         MessageType = "pong" // 心跳响应
)

const (
	sendBuffer   = 256
	writeTimeout = 10 * time.Second
	pongTimeout  = 60 * time.Second
	pingInterval = 30 * time.Second
	readLimit    = 4096
)

// WSMessage WebSocket 消息结构
type WSMessage struct {
	Type      MessageType         `json:"type"`
	Data      *model.Notification `json:"data,omitempty"`
	Timestamp int64               `json:"timestamp"`
}

// Inbox stores notifications for later reading.
type Inbox interface {
	Push(ctx context.Context, userID int64, n model.Notification) error
	Recent(ctx context.Context, userID int64, limit int64) ([]model.Notification, error)
}

// Client WebSocket 客户端
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	UserID int64
}

type delivery struct {
	userID  int64
	message []byte
}

// Hub routes notifications to every open connection of a user. A user may
// have several tabs open.
type Hub struct {
	clients map[int64]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	deliver    chan delivery

	inbox Inbox
	mu    sync.RWMutex
	done  chan struct{}
	now   func() time.Time
}

// NewHub 创建通知 Hub. inbox may be nil.
func NewHub(inbox Inbox) *Hub {
	return &Hub{
		clients:    make(map[int64]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		deliver:    make(chan delivery, sendBuffer),
		inbox:      inbox,
		done:       make(chan struct{}),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Run 启动 Hub 主循环, until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.mu.Lock()
			h.removeClient(client)
			h.mu.Unlock()

		case d := <-h.deliver:
			h.deliverToUser(d)

		case <-ctx.Done():
			h.cleanup()
			return nil
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[client.UserID] == nil {
		h.clients[client.UserID] = make(map[*Client]bool)
	}
	h.clients[client.UserID][client] = true

	logger.Info("notification client registered",
		logger.Int64("user", client.UserID),
		logger.Int("connections", len(h.clients[client.UserID])))
}

// removeClient 移除客户端（需要持有锁）
func (h *Hub) removeClient(client *Client) {
	conns, ok := h.clients[client.UserID]
	if !ok || !conns[client] {
		return
	}
	delete(conns, client)
	close(client.send)
	if len(conns) == 0 {
		delete(h.clients, client.UserID)
	}
	logger.Info("notification client unregistered", logger.Int64("user", client.UserID))
}

func (h *Hub) deliverToUser(d delivery) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients[d.userID] {
		select {
		case client.send <- d.message:
		default:
			// 发送缓冲区满，移除客户端
			h.removeClient(client)
		}
	}
}

func (h *Hub) cleanup() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, conns := range h.clients {
		for client := range conns {
			close(client.send)
		}
	}
	h.clients = make(map[int64]map[*Client]bool)
}

// Notify stores n in the inbox and pushes it to the user's open connections.
// Delivery is best effort and never blocks the caller.
func (h *Hub) Notify(ctx context.Context, userID int64, n model.Notification) {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = h.now()
	}

	if h.inbox != nil {
		if err := h.inbox.Push(ctx, userID, n); err != nil {
			logger.Warn("failed to store notification",
				logger.Int64("user", userID),
				logger.String("kind", string(n.Kind)),
				logger.ErrorField(err))
		}
	}

	// 离线用户只写 inbox
	if h.ClientCount(userID) == 0 {
		logger.Debug("user offline, notification kept in inbox",
			logger.Int64("user", userID), logger.String("kind", string(n.Kind)))
		return
	}

	data, err := json.Marshal(&WSMessage{Type: MsgTypeNotification, Data: &n, Timestamp: h.now().UnixMilli()})
	if err != nil {
		logger.Error("failed to marshal notification", logger.ErrorField(err))
		return
	}

	select {
	case h.deliver <- delivery{userID: userID, message: data}:
	default:
		logger.Warn("notification dropped, hub is busy", logger.Int64("user", userID))
	}
}

// Recent returns the stored backlog, newest first.
func (h *Hub) Recent(ctx context.Context, userID int64, limit int64) ([]model.Notification, error) {
	if h.inbox == nil {
		return []model.Notification{}, nil
	}
	return h.inbox.Recent(ctx, userID, limit)
}

// ClientCount 在线连接数
func (h *Hub) ClientCount(userID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// Serve attaches an upgraded connection to the hub and blocks until it closes.
func (h *Hub) Serve(conn *websocket.Conn, userID int64) {
	client := &Client{
		hub:    h,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		UserID: userID,
	}

	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	client.readPump()
}

func (h *Hub) unregisterClient(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// readPump only handles heartbeats; clients never send anything else.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregisterClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(readLimit)
	c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("websocket read error",
					logger.ErrorField(err),
					logger.Int64("user", c.UserID))
			}
			return
		}

		var msg WSMessage
		if err := json.Unmarshal(message, &msg); err != nil || msg.Type != MsgTypePing {
			continue
		}
		c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
		if data, err := json.Marshal(&WSMessage{Type: MsgTypePong, Timestamp: time.Now().UnixMilli()}); err == nil {
			c.trySend(data)
		}
	}
}

// trySend tolerates the hub closing send concurrently.
func (c *Client) trySend(data []byte) {
	defer func() { _ = recover() }()
	select {
	case c.send <- data:
	default:
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				// Hub 关闭了通道
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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
