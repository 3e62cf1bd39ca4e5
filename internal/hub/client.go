package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"collaborative-editor/internal/domain"
	"collaborative-editor/internal/dto"
	"collaborative-editor/internal/service"
)

// Client 代表一个 WebSocket 连接，同时是协作引擎的下行 Sink。
type Client struct {
	hub         *Hub
	conn        *websocket.Conn
	sessionID   string
	userID      string // 未认证时为空
	displayName string
	send        chan []byte
	limiter     *rate.Limiter // nil 表示不限速

	mu     sync.Mutex // 保护 closed 和 send 的关闭
	closed bool
}

// NewClient 创建一个新的 Client 实例
func NewClient(hub *Hub, conn *websocket.Conn, sessionID, userID, displayName string) *Client {
	c := &Client{
		hub:         hub,
		conn:        conn,
		sessionID:   sessionID,
		userID:      userID,
		displayName: displayName,
		send:        make(chan []byte, sendBufferSize),
	}
	if hub.opts.MessagesPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(hub.opts.MessagesPerSecond), hub.opts.Burst)
	}
	return c
}

// Run 启动客户端的读写 goroutine。Hub 已停止时直接关闭连接。
func (c *Client) Run() {
	if !c.hub.trackPump() {
		c.hub.unregisterClient(c)
		c.conn.Close()
		return
	}
	go c.WritePump()
	go func() {
		defer c.hub.pumps.Done()
		c.ReadPump()
	}()
}

// Deliver 序列化事件并放入发送队列，队列满或连接已关闭时返回 false。不会阻塞。
func (c *Client) Deliver(event domain.Event) bool {
	data, err := json.Marshal(event)
	if err != nil {
		logrus.WithField("session_id", c.sessionID).WithError(err).Error("Failed to marshal event")
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// ReadPump 读取客户端消息并按序交给 Hub 处理。
func (c *Client) ReadPump() {
	logCtx := logrus.WithFields(logrus.Fields{"session_id": c.sessionID, "user_id": c.userID})
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
		logCtx.Info("readPump exited, unregistered client")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	violations := 0
	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logCtx.WithError(err).Warn("WebSocket read error (unexpected close)")
			} else {
				logCtx.Debug("WebSocket connection closed normally or read error")
			}
			return
		}
		if messageType != websocket.TextMessage {
			logCtx.Debugf("Received non-text message type: %d", messageType)
			continue
		}

		if c.limiter != nil && !c.limiter.Allow() {
			violations++
			if violations >= maxRateViolations {
				logCtx.Warn("Client exceeded message rate repeatedly, closing connection")
				return
			}
			logCtx.Debug("Client message rate limited, dropping message")
			c.Deliver(dto.ErrorEvent("", service.KindRateLimited, "too many messages"))
			continue
		}
		violations = 0

		c.hub.handleMessage(c, message)
	}
}

// WritePump 把发送队列中的消息写入连接，并定期发送 Ping。
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	logCtx := logrus.WithField("session_id", c.sessionID)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		logCtx.Debug("writePump exited")
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// 发送队列已关闭，通知对端关闭
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logCtx.WithError(err).Warn("Failed to write message to websocket")
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logCtx.WithError(err).Warn("Failed to send ping message")
				return
			}
		}
	}
}

func (c *Client) SessionID() string   { return c.sessionID }
func (c *Client) UserID() string      { return c.userID }
func (c *Client) DisplayName() string { return c.displayName }
func (c *Client) CloseConn()          { c.conn.Close() }
