package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"collaborative-editor/internal/domain"
	"collaborative-editor/internal/repository"
)

const defaultLoadTimeout = 10 * time.Second

var roomIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]+$`)

// Sink 是会话的下行通道。Deliver 必须是非阻塞的：调用方持有房间锁。
type Sink interface {
	Deliver(event domain.Event) bool
}

// DocumentLoader 从持久化存储读取文档，未找到时返回 repository.ErrNotFound。
type DocumentLoader interface {
	LoadDocument(ctx context.Context, roomID string) (*domain.DocumentSnapshot, error)
}

// Session 是一个已加入房间的连接。
type Session struct {
	ID       string
	RoomID   string
	Identity domain.Identity
	Cursor   *domain.Cursor
	sink     Sink
}

// Room 是一个活跃的协作会话：权威文档 + 成员 + 持久化状态。
// mu 保护除 flushMu / ready 之外的所有字段。
type Room struct {
	id string

	mu             sync.Mutex
	doc            *domain.Document
	sessions       map[string]*Session
	dirty          bool
	pendingFlushes int
	evicted        bool

	// 同一房间的写入串行化
	flushMu sync.Mutex

	ready   chan struct{}
	loadErr error
}

func newRoom(id string) *Room {
	return &Room{
		id:       id,
		sessions: make(map[string]*Session),
		ready:    make(chan struct{}),
	}
}

// broadcast 调用方必须持有 r.mu。except 为空时发送给所有成员。
func (r *Room) broadcast(event domain.Event, except string) int {
	delivered := 0
	for id, s := range r.sessions {
		if id == except {
			continue
		}
		if s.sink.Deliver(event) {
			delivered++
		} else {
			logrus.WithFields(logrus.Fields{"room_id": r.id, "session_id": id, "event": event.Type}).
				Warn("Session send buffer full, dropping event")
		}
	}
	return delivered
}

// presenceLocked 调用方必须持有 r.mu。
func (r *Room) presenceLocked(except string) []domain.PresenceEntry {
	entries := make([]domain.PresenceEntry, 0, len(r.sessions))
	for id, s := range r.sessions {
		if id == except {
			continue
		}
		entry := domain.PresenceEntry{SessionID: id, Identity: s.Identity}
		if s.Cursor != nil {
			c := *s.Cursor
			entry.Cursor = &c
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].SessionID < entries[j].SessionID })
	return entries
}

// snapshotLocked 构造加入者的初始状态，调用方持有 r.mu。
func (r *Room) snapshotLocked(sess *Session) *RoomSnapshot {
	return &RoomSnapshot{
		RoomID:    r.id,
		SessionID: sess.ID,
		Identity:  sess.Identity,
		Content:   r.doc.Content(),
		Revision:  r.doc.Revision(),
		Atoms:     r.doc.Sequence().Atoms(),
		Presence:  r.presenceLocked(sess.ID),
	}
}

func (r *Room) idleLocked() bool {
	return len(r.sessions) == 0 && !r.dirty && r.pendingFlushes == 0
}

// RoomSnapshot 是会话加入时拿到的初始状态。
type RoomSnapshot struct {
	RoomID    string
	SessionID string
	Identity  domain.Identity
	Content   string
	Revision  uint64
	Atoms     []domain.Atom
	Presence  []domain.PresenceEntry
}

// InitEvent 构造发给加入者的 init 事件。
func (s *RoomSnapshot) InitEvent() domain.Event {
	identity := s.Identity
	return domain.Event{
		Type:      domain.EventInit,
		RoomID:    s.RoomID,
		SessionID: s.SessionID,
		Identity:  &identity,
		Document:  &domain.DocumentState{Content: s.Content, Revision: s.Revision, Atoms: s.Atoms},
		Presence:  s.Presence,
	}
}

// RoomInfo 用于统计接口。
type RoomInfo struct {
	ID       string `json:"id"`
	Sessions int    `json:"sessions"`
	Revision uint64 `json:"revision"`
	Dirty    bool   `json:"dirty"`
}

// RoomRegistry 维护房间 ID 到活跃房间的映射以及会话所属关系。
// 锁顺序：可以在持有 Room.mu 时获取 RoomRegistry.mu，反之不行。
type RoomRegistry struct {
	mu       sync.RWMutex
	rooms    map[string]*Room
	sessions map[string]string // sessionID -> roomID

	loader      DocumentLoader
	loadTimeout time.Duration
}

// NewRoomRegistry 创建 RoomRegistry 实例。
func NewRoomRegistry(loader DocumentLoader) *RoomRegistry {
	if loader == nil {
		panic("DocumentLoader cannot be nil for RoomRegistry")
	}
	return &RoomRegistry{
		rooms:       make(map[string]*Room),
		sessions:    make(map[string]string),
		loader:      loader,
		loadTimeout: defaultLoadTimeout,
	}
}

// ValidateRoomID 检查房间 ID 格式。
func ValidateRoomID(roomID string) error {
	if roomID == "" {
		return fmt.Errorf("%w: empty", ErrInvalidRoomID)
	}
	if len(roomID) > domain.MaxRoomIDLength || !roomIDPattern.MatchString(roomID) {
		return fmt.Errorf("%w: %q", ErrInvalidRoomID, roomID)
	}
	return nil
}

// Join 将会话加入房间，必要时创建房间并加载文档。
// init 事件在房间锁内投递给 sink，保证它先于任何后续广播到达。
// 已经在其他房间的会话会先离开原房间；重复加入同一房间直接返回当前状态。
func (g *RoomRegistry) Join(ctx context.Context, sessionID, roomID string, identity domain.Identity, sink Sink) (*RoomSnapshot, error) {
	if err := ValidateRoomID(roomID); err != nil {
		return nil, err
	}
	if sessionID == "" || sink == nil {
		return nil, fmt.Errorf("%w: join requires a session id and a sink", ErrSessionNotFound)
	}
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "session_id": sessionID})

	if prev, err := g.RoomOf(sessionID); err == nil {
		if prev == roomID {
			if snap, ok := g.rejoin(sessionID, roomID); ok {
				return snap, nil
			}
		}
		_ = g.Leave(sessionID)
	}

	for {
		room, created := g.getOrCreate(roomID)
		if created {
			g.load(room)
		}
		select {
		case <-room.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if room.loadErr != nil {
			return nil, fmt.Errorf("%w: room %s: %v", ErrDocumentLoad, roomID, room.loadErr)
		}

		room.mu.Lock()
		if room.evicted {
			// 拿到的是刚被回收的实例，摘掉后重试
			room.mu.Unlock()
			g.removeRoom(room)
			continue
		}
		sess := &Session{ID: sessionID, RoomID: roomID, Identity: identity, sink: sink}
		room.sessions[sessionID] = sess
		g.mu.Lock()
		g.sessions[sessionID] = roomID
		g.mu.Unlock()

		snap := room.snapshotLocked(sess)
		sink.Deliver(snap.InitEvent())
		onJoin(room, sess)
		members := len(room.sessions)
		room.mu.Unlock()

		logCtx.WithFields(logrus.Fields{"members": members, "revision": snap.Revision}).Info("Session joined room")
		return snap, nil
	}
}

func (g *RoomRegistry) rejoin(sessionID, roomID string) (*RoomSnapshot, bool) {
	room := g.lookup(roomID)
	if room == nil {
		return nil, false
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	sess, ok := room.sessions[sessionID]
	if !ok || room.evicted {
		return nil, false
	}
	snap := room.snapshotLocked(sess)
	sess.sink.Deliver(snap.InitEvent())
	return snap, true
}

// getOrCreate 返回房间实例，created 表示调用方负责加载。
func (g *RoomRegistry) getOrCreate(roomID string) (*Room, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if room, ok := g.rooms[roomID]; ok {
		return room, false
	}
	room := newRoom(roomID)
	g.rooms[roomID] = room
	return room, true
}

// load 在任何锁之外读取持久化内容，完成后关闭 ready。
func (g *RoomRegistry) load(room *Room) {
	logCtx := logrus.WithField("room_id", room.id)
	ctx, cancel := context.WithTimeout(context.Background(), g.loadTimeout)
	defer cancel()

	site := "srv-" + uuid.NewString()
	var doc *domain.Document
	snap, err := g.loader.LoadDocument(ctx, room.id)
	switch {
	case err == nil:
		doc = domain.NewDocument(site, snap.Content, snap.Revision)
		logCtx.WithField("revision", snap.Revision).Info("Room created from stored document")
	case errors.Is(err, repository.ErrNotFound):
		doc = domain.NewDocument(site, "", 0)
		logCtx.Info("Room created with empty document")
	default:
		logCtx.WithError(err).Error("Failed to load document for new room")
		room.loadErr = err
		g.removeRoom(room)
	}
	room.mu.Lock()
	room.doc = doc
	room.mu.Unlock()
	close(room.ready)
}

// Leave 将会话移出房间，房间空闲时立即回收。
func (g *RoomRegistry) Leave(sessionID string) error {
	g.mu.Lock()
	roomID, ok := g.sessions[sessionID]
	delete(g.sessions, sessionID)
	room := g.rooms[roomID]
	g.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	if room == nil {
		return nil
	}

	room.mu.Lock()
	if sess, ok := room.sessions[sessionID]; ok {
		delete(room.sessions, sessionID)
		onLeave(room, sess)
	}
	members := len(room.sessions)
	evict := room.idleLocked() && !room.evicted
	if evict {
		room.evicted = true
	}
	dirty := room.dirty
	room.mu.Unlock()

	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "session_id": sessionID, "members": members})
	logCtx.Info("Session left room")
	if evict {
		g.removeRoom(room)
		logCtx.Info("Room evicted")
	} else if members == 0 && dirty {
		logCtx.Debug("Room empty but has unflushed changes, eviction deferred")
	}
	return nil
}

// evictIfIdle 在一次成功的刷写后调用，回收没有成员且没有待写内容的房间。
func (g *RoomRegistry) evictIfIdle(room *Room) {
	room.mu.Lock()
	evict := room.idleLocked() && !room.evicted
	if evict {
		room.evicted = true
	}
	room.mu.Unlock()
	if evict {
		g.removeRoom(room)
		logrus.WithField("room_id", room.id).Info("Room evicted after flush")
	}
}

// removeRoom 只删除仍指向同一实例的映射。
func (g *RoomRegistry) removeRoom(room *Room) {
	g.mu.Lock()
	if g.rooms[room.id] == room {
		delete(g.rooms, room.id)
	}
	g.mu.Unlock()
}

// RoomOf 返回会话当前所在的房间 ID。
func (g *RoomRegistry) RoomOf(sessionID string) (string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	roomID, ok := g.sessions[sessionID]
	if !ok {
		return "", ErrSessionNotFound
	}
	return roomID, nil
}

// lookup 返回活跃房间，可能尚未加载完成。
func (g *RoomRegistry) lookup(roomID string) *Room {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.rooms[roomID]
}

// withSession 在持有房间锁的情况下执行 fn。
// 会话未加入、房间已回收都视为 ErrUnknownRoom。
func (g *RoomRegistry) withSession(sessionID string, fn func(room *Room, sess *Session) error) error {
	g.mu.RLock()
	roomID, ok := g.sessions[sessionID]
	room := g.rooms[roomID]
	g.mu.RUnlock()
	if !ok || room == nil {
		return ErrUnknownRoom
	}

	room.mu.Lock()
	defer room.mu.Unlock()
	if room.evicted {
		return ErrUnknownRoom
	}
	sess, ok := room.sessions[sessionID]
	if !ok {
		return ErrUnknownRoom
	}
	return fn(room, sess)
}

// Broadcast 向房间内除 except 外的所有会话发送事件。
func (g *RoomRegistry) Broadcast(roomID string, event domain.Event, except string) error {
	room := g.lookup(roomID)
	if room == nil {
		return ErrUnknownRoom
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	if room.evicted {
		return ErrUnknownRoom
	}
	room.broadcast(event, except)
	return nil
}

// LiveDocument 返回活跃房间当前的文档内容。
func (g *RoomRegistry) LiveDocument(roomID string) (*domain.DocumentSnapshot, bool) {
	room := g.lookup(roomID)
	if room == nil {
		return nil, false
	}
	select {
	case <-room.ready:
	default:
		return nil, false
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	if room.evicted || room.doc == nil {
		return nil, false
	}
	return &domain.DocumentSnapshot{RoomID: roomID, Content: room.doc.Content(), Revision: room.doc.Revision()}, true
}

// Rooms 返回所有已加载房间的概况。
func (g *RoomRegistry) Rooms() []RoomInfo {
	g.mu.RLock()
	rooms := make([]*Room, 0, len(g.rooms))
	for _, r := range g.rooms {
		rooms = append(rooms, r)
	}
	g.mu.RUnlock()

	infos := make([]RoomInfo, 0, len(rooms))
	for _, r := range rooms {
		r.mu.Lock()
		if r.doc != nil && !r.evicted {
			infos = append(infos, RoomInfo{ID: r.id, Sessions: len(r.sessions), Revision: r.doc.Revision(), Dirty: r.dirty})
		}
		r.mu.Unlock()
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// SessionCount 返回已加入房间的会话数。
func (g *RoomRegistry) SessionCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.sessions)
}
