package service

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"collaborative-editor/internal/domain"
)

// DirtyMarker 接收“房间有未持久化修改”的通知，必须是非阻塞的。
type DirtyMarker interface {
	MarkDirty(roomID string)
}

// EditResult 是 ApplyEdit 的结果。Broadcast 为 nil 表示重复投递，没有任何效果。
type EditResult struct {
	Accepted  bool
	Broadcast *domain.Operation
	Revision  uint64
}

// DocumentSynchronizer 把会话提交的编辑合入房间文档并广播给其他会话。
type DocumentSynchronizer struct {
	registry *RoomRegistry
	marker   DirtyMarker
}

// NewDocumentSynchronizer 创建 DocumentSynchronizer 实例。
func NewDocumentSynchronizer(registry *RoomRegistry, marker DirtyMarker) *DocumentSynchronizer {
	if registry == nil || marker == nil {
		panic("RoomRegistry and DirtyMarker must be non-nil for DocumentSynchronizer")
	}
	return &DocumentSynchronizer{registry: registry, marker: marker}
}

// ApplyEdit 在房间锁内应用操作。
// 生效的操作使修订号加一、标记房间为脏，并广播给除发送者外的所有会话。
func (s *DocumentSynchronizer) ApplyEdit(sessionID string, op domain.Operation) (EditResult, error) {
	var result EditResult
	err := s.registry.withSession(sessionID, func(room *Room, sess *Session) error {
		logCtx := logrus.WithFields(logrus.Fields{"room_id": room.id, "session_id": sessionID, "kind": op.Kind})

		effective, err := room.doc.Apply(op)
		if err != nil {
			logCtx.WithError(err).Debug("Edit rejected")
			return fmt.Errorf("apply %s: %w", op.Kind, err)
		}
		result.Accepted = true
		result.Revision = room.doc.Revision()
		if effective == nil {
			logCtx.Debug("Duplicate edit ignored")
			return nil
		}

		room.dirty = true
		s.marker.MarkDirty(room.id)

		result.Broadcast = effective
		room.broadcast(domain.Event{
			Type:      domain.EventEdit,
			RoomID:    room.id,
			SessionID: sess.ID,
			Operation: effective,
			Revision:  result.Revision,
		}, sess.ID)
		logCtx.WithField("revision", result.Revision).Debug("Edit applied")
		return nil
	})
	return result, err
}
