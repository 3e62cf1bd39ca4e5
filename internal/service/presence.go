package service

import (
	"fmt"
	"hash/fnv"
	"strings"

	"collaborative-editor/internal/domain"
)

// 会话颜色调色板
var presencePalette = []string{
	"#e6194b", "#3cb44b", "#4363d8", "#f58231",
	"#911eb4", "#42d4f4", "#f032e6", "#9a6324",
}

// PresenceTracker 维护每个房间的光标和身份信息，只存在于内存中。
type PresenceTracker struct {
	registry *RoomRegistry
}

// NewPresenceTracker 创建 PresenceTracker 实例。
func NewPresenceTracker(registry *RoomRegistry) *PresenceTracker {
	if registry == nil {
		panic("RoomRegistry cannot be nil for PresenceTracker")
	}
	return &PresenceTracker{registry: registry}
}

// AssignIdentity 为会话分配展示身份。颜色由会话 ID 决定，同一会话总是同一颜色。
func (p *PresenceTracker) AssignIdentity(sessionID, displayName string) domain.Identity {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sessionID))
	color := presencePalette[h.Sum32()%uint32(len(presencePalette))]

	name := strings.TrimSpace(displayName)
	if name == "" {
		short := strings.ReplaceAll(sessionID, "-", "")
		if len(short) > 4 {
			short = short[:4]
		}
		name = fmt.Sprintf("Guest-%s", short)
	}
	return domain.Identity{Name: name, Color: color}
}

// UpdateCursor 更新会话自己的光标并通知房间内其他会话。
// 光标更新不影响修订号，也不会标记房间为脏。
func (p *PresenceTracker) UpdateCursor(sessionID string, cursor domain.Cursor) error {
	return p.registry.withSession(sessionID, func(room *Room, sess *Session) error {
		c := cursor
		sess.Cursor = &c
		event := domain.Event{
			Type:      domain.EventPresenceCursor,
			RoomID:    room.id,
			SessionID: sess.ID,
			Cursor:    &c,
		}
		room.broadcast(event, sess.ID)
		return nil
	})
}

// Snapshot 返回房间当前的在线列表，按会话 ID 排序。
func (p *PresenceTracker) Snapshot(roomID string) ([]domain.PresenceEntry, error) {
	room := p.registry.lookup(roomID)
	if room == nil {
		return nil, ErrUnknownRoom
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	if room.evicted {
		return nil, ErrUnknownRoom
	}
	return room.presenceLocked(""), nil
}

// onJoin 调用方持有 room.mu。
func onJoin(room *Room, sess *Session) {
	identity := sess.Identity
	room.broadcast(domain.Event{
		Type:      domain.EventPresenceJoined,
		RoomID:    room.id,
		SessionID: sess.ID,
		Identity:  &identity,
	}, sess.ID)
}

// onLeave 调用方持有 room.mu，且 sess 已从房间移除。
func onLeave(room *Room, sess *Session) {
	identity := sess.Identity
	room.broadcast(domain.Event{
		Type:      domain.EventPresenceLeft,
		RoomID:    room.id,
		SessionID: sess.ID,
		Identity:  &identity,
	}, sess.ID)
}
