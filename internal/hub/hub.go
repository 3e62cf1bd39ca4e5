package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"collaborative-editor/internal/domain"
	"collaborative-editor/internal/dto"
	"collaborative-editor/internal/service"
)

// 包级别的 WebSocket 常量，供 hub 和 client 共用
const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// 整篇文档保存时 content 可能较大
	maxMessageSize = 1 << 20

	sendBufferSize = 256

	// 连续超限这么多次后断开连接
	maxRateViolations = 50

	// Stop 等待读循环退出的最长时间
	drainTimeout = 5 * time.Second
)

// HubMessage 是 Hub 内部通道传递的消息
type HubMessage struct {
	Type   string // "register", "unregister"
	Client *Client
}

// Collaboration 是 Hub 依赖的协作引擎接口，由 service.CollaborationService 实现。
type Collaboration interface {
	Join(ctx context.Context, sessionID, roomID, displayName string, sink service.Sink) (*service.RoomSnapshot, error)
	Edit(sessionID string, op domain.Operation) (service.EditResult, error)
	Cursor(sessionID string, cursor domain.Cursor) error
	Save(ctx context.Context, sessionID string, content *string, baseRevision *uint64) error
	Leave(sessionID string)
	RoomOf(sessionID string) (string, error)
}

// RoomAuthorizer 检查用户能否加入房间，userID 为空表示匿名连接。
type RoomAuthorizer interface {
	AuthorizeRoom(ctx context.Context, userID, roomID string) error
}

// Options 是 Hub 的可调参数。
type Options struct {
	MessagesPerSecond float64        // 每个连接的消息速率，<= 0 时不限制
	Burst             int            // 令牌桶容量
	RequestTimeout    time.Duration  // join / save 的超时
	Authorizer        RoomAuthorizer // nil 时不做访问控制
}

// Hub 维护所有已连接的客户端，并把客户端消息分派给协作引擎。
// 房间成员关系由协作引擎维护，Hub 只关心连接本身。
type Hub struct {
	messageChan chan HubMessage

	clients   map[string]*Client // sessionID -> client
	clientsMu sync.RWMutex

	collab Collaboration
	opts   Options

	done     chan struct{}
	stopOnce sync.Once

	// 跟踪仍在处理消息的读循环，stopping 之后不再接受新的读循环
	pumps    sync.WaitGroup
	pumpsMu  sync.Mutex
	stopping bool
}

// NewHub 创建并返回一个新的 Hub 实例
func NewHub(collab Collaboration, opts Options) *Hub {
	if collab == nil {
		panic("Collaboration cannot be nil for Hub")
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}
	if opts.Burst <= 0 {
		opts.Burst = int(opts.MessagesPerSecond) * 2
	}
	return &Hub{
		messageChan: make(chan HubMessage, 512),
		clients:     make(map[string]*Client),
		collab:      collab,
		opts:        opts,
		done:        make(chan struct{}),
	}
}

// Run 启动 Hub 的主事件循环，应在单独的 goroutine 中运行。
func (h *Hub) Run() {
	log := logrus.WithField("component", "hub")
	log.Info("Hub is running...")

	for {
		select {
		case msg := <-h.messageChan:
			switch msg.Type {
			case "register":
				h.registerClient(msg.Client)
			case "unregister":
				h.unregisterClient(msg.Client)
			default:
				log.Warnf("Hub: Received unknown message type: %s", msg.Type)
			}
		case <-h.done:
			log.Info("Hub is shutting down...")
			return
		}
	}
}

// Stop 停止事件循环，关闭所有连接，并等待读循环退出。
// 返回后不会再有客户端消息进入协作引擎，可以安全地做最后一次刷写。
// 等待超过 drainTimeout 时返回 false。
func (h *Hub) Stop() bool {
	h.stopOnce.Do(func() { close(h.done) })

	h.pumpsMu.Lock()
	h.stopping = true
	h.pumpsMu.Unlock()

	h.clientsMu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.clientsMu.RUnlock()

	for _, c := range clients {
		c.CloseConn()
	}

	drained := make(chan struct{})
	go func() {
		h.pumps.Wait()
		close(drained)
	}()
	select {
	case <-drained:
		logrus.WithField("clients", len(clients)).Info("Hub stopped, connections closed")
		return true
	case <-time.After(drainTimeout):
		logrus.WithField("clients", len(clients)).Warn("Hub stopped, some read loops are still running")
		return false
	}
}

// trackPump 登记一个读循环，Hub 已停止时返回 false。
func (h *Hub) trackPump() bool {
	h.pumpsMu.Lock()
	defer h.pumpsMu.Unlock()
	if h.stopping {
		return false
	}
	h.pumps.Add(1)
	return true
}

// QueueMessage 将消息放入 Hub 的处理队列 (非阻塞)。
// 返回 false 表示队列已满或 Hub 已停止。
func (h *Hub) QueueMessage(msg HubMessage) bool {
	select {
	case <-h.done:
		return false
	default:
	}
	select {
	case h.messageChan <- msg:
		return true
	default:
		logrus.WithField("message_type", msg.Type).Warn("Hub message channel full, dropping message")
		return false
	}
}

// ClientCount 返回当前连接数。
func (h *Hub) ClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

func (h *Hub) registerClient(client *Client) {
	if client == nil {
		logrus.Error("Hub: Attempted to register a nil client")
		return
	}
	h.clientsMu.Lock()
	h.clients[client.SessionID()] = client
	total := len(h.clients)
	h.clientsMu.Unlock()

	logrus.WithFields(logrus.Fields{
		"session_id": client.SessionID(),
		"user_id":    client.UserID(),
		"clients":    total,
	}).Info("Client registered to Hub")
}

// unregisterClient 可以重复调用，也可以在 Hub 停止后直接调用。
func (h *Hub) unregisterClient(client *Client) {
	if client == nil {
		logrus.Error("Hub: Attempted to unregister a nil client")
		return
	}
	h.clientsMu.Lock()
	if h.clients[client.SessionID()] == client {
		delete(h.clients, client.SessionID())
	}
	h.clientsMu.Unlock()

	// 断线等同于离开房间
	h.collab.Leave(client.SessionID())
	client.closeSend()
	logrus.WithField("session_id", client.SessionID()).Info("Client unregistered from Hub")
}

// unregister 由读循环退出时调用。Hub 不可用时直接在当前 goroutine 清理。
func (h *Hub) unregister(client *Client) {
	select {
	case <-h.done:
		// 事件循环已退出，通道里的消息不会再被处理
		h.unregisterClient(client)
		return
	default:
	}
	msg := HubMessage{Type: "unregister", Client: client}
	select {
	case h.messageChan <- msg:
		return
	case <-h.done:
	case <-time.After(time.Second):
		logrus.WithField("session_id", client.SessionID()).Warn("Timeout sending unregister message to Hub channel")
	}
	h.unregisterClient(client)
}

// handleMessage 在客户端的读循环中同步执行，保证同一连接的消息按序处理。
func (h *Hub) handleMessage(c *Client, raw []byte) {
	logCtx := logrus.WithField("session_id", c.SessionID())

	var msg dto.IncomingMessage
	if err := json.Unmarshal(raw, &msg); err != nil || msg.Type == "" {
		logCtx.WithError(err).Debug("Malformed client message")
		c.Deliver(dto.ErrorEvent("", service.KindInvalidMessage, "malformed message"))
		return
	}
	logCtx = logCtx.WithField("type", msg.Type)

	switch msg.Type {
	case dto.MessageJoin:
		ctx, cancel := context.WithTimeout(context.Background(), h.opts.RequestTimeout)
		defer cancel()
		name := msg.Name
		if name == "" {
			name = c.DisplayName()
		}
		if h.opts.Authorizer != nil {
			if err := h.opts.Authorizer.AuthorizeRoom(ctx, c.UserID(), msg.RoomID); err != nil {
				h.replyError(c, msg.RoomID, err)
				return
			}
		}
		// init 事件由引擎直接投递
		if _, err := h.collab.Join(ctx, c.SessionID(), msg.RoomID, name, c); err != nil {
			h.replyError(c, msg.RoomID, err)
		}

	case dto.MessageEdit:
		if msg.Operation == nil {
			c.Deliver(dto.ErrorEvent(msg.RoomID, service.KindInvalidMessage, "edit requires an operation"))
			return
		}
		if err := h.checkRoom(c, msg.RoomID); err != nil {
			h.replyError(c, msg.RoomID, err)
			return
		}
		if _, err := h.collab.Edit(c.SessionID(), *msg.Operation); err != nil {
			h.replyError(c, msg.RoomID, err)
		}

	case dto.MessageCursor:
		if msg.Cursor == nil {
			c.Deliver(dto.ErrorEvent(msg.RoomID, service.KindInvalidMessage, "cursor requires a position"))
			return
		}
		if err := h.checkRoom(c, msg.RoomID); err != nil {
			h.replyError(c, msg.RoomID, err)
			return
		}
		if err := h.collab.Cursor(c.SessionID(), *msg.Cursor); err != nil {
			h.replyError(c, msg.RoomID, err)
		}

	case dto.MessageSave:
		if err := h.checkRoom(c, msg.RoomID); err != nil {
			h.replyError(c, msg.RoomID, err)
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), h.opts.RequestTimeout)
		defer cancel()
		if err := h.collab.Save(ctx, c.SessionID(), msg.Content, msg.BaseRevision); err != nil {
			h.replyError(c, msg.RoomID, err)
		}

	case dto.MessageLeave:
		h.collab.Leave(c.SessionID())

	default:
		logCtx.Debug("Unknown client message type")
		c.Deliver(dto.ErrorEvent(msg.RoomID, service.KindInvalidMessage, fmt.Sprintf("unknown message type %q", msg.Type)))
	}
}

// checkRoom 校验消息里的 roomId 与会话所在房间一致，roomId 为空时不校验。
func (h *Hub) checkRoom(c *Client, roomID string) error {
	current, err := h.collab.RoomOf(c.SessionID())
	if err != nil {
		return service.ErrUnknownRoom
	}
	if roomID != "" && roomID != current {
		return fmt.Errorf("%w: session is in room %s", service.ErrUnknownRoom, current)
	}
	return nil
}

func (h *Hub) replyError(c *Client, roomID string, err error) {
	kind := service.ErrorKind(err)
	message := err.Error()
	logCtx := logrus.WithFields(logrus.Fields{"session_id": c.SessionID(), "room_id": roomID, "kind": kind})
	if kind == service.KindInternal {
		logCtx.WithError(err).Warn("Request failed")
		message = "internal error"
	} else {
		logCtx.WithError(err).Debug("Request rejected")
	}
	c.Deliver(dto.ErrorEvent(roomID, kind, message))
}
