package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"collaborative-editor/internal/domain"
)

// VersionRecorder 在显式保存成功后记录一个历史版本（通常是异步任务）。
type VersionRecorder interface {
	RecordVersion(ctx context.Context, snapshot *domain.DocumentSnapshot, createdBy string) error
}

// Stats 是协作引擎的运行概况。
type Stats struct {
	Rooms     []RoomInfo     `json:"rooms"`
	Sessions  int            `json:"sessions"`
	Scheduler SchedulerStats `json:"scheduler"`
}

// CollaborationService 是传输层调用的入口，把事件分派给各组件。
type CollaborationService struct {
	registry  *RoomRegistry
	sync      *DocumentSynchronizer
	presence  *PresenceTracker
	scheduler *PersistenceScheduler
	versions  VersionRecorder // 可以为 nil
}

// NewCollaborationService 组装协作引擎。versions 为 nil 时不记录历史版本。
func NewCollaborationService(
	registry *RoomRegistry,
	sync *DocumentSynchronizer,
	presence *PresenceTracker,
	scheduler *PersistenceScheduler,
	versions VersionRecorder,
) *CollaborationService {
	if registry == nil || sync == nil || presence == nil || scheduler == nil {
		panic("All components must be non-nil for CollaborationService")
	}
	return &CollaborationService{
		registry:  registry,
		sync:      sync,
		presence:  presence,
		scheduler: scheduler,
		versions:  versions,
	}
}

// DocumentPersistence 是同时支持读写的持久化协作者。
type DocumentPersistence interface {
	DocumentLoader
	DocumentWriter
}

// NewEngine 用同一个存储构建全部核心组件。
func NewEngine(store DocumentPersistence, flushInterval time.Duration, versions VersionRecorder) (*CollaborationService, *PersistenceScheduler) {
	registry := NewRoomRegistry(store)
	scheduler := NewPersistenceScheduler(registry, store, flushInterval)
	synchronizer := NewDocumentSynchronizer(registry, scheduler)
	presence := NewPresenceTracker(registry)
	return NewCollaborationService(registry, synchronizer, presence, scheduler, versions), scheduler
}

// Join 分配身份并加入房间。
func (s *CollaborationService) Join(ctx context.Context, sessionID, roomID, displayName string, sink Sink) (*RoomSnapshot, error) {
	identity := s.presence.AssignIdentity(sessionID, displayName)
	return s.registry.Join(ctx, sessionID, roomID, identity, sink)
}

// Edit 应用一次编辑。
func (s *CollaborationService) Edit(sessionID string, op domain.Operation) (EditResult, error) {
	return s.sync.ApplyEdit(sessionID, op)
}

// Cursor 更新光标。
func (s *CollaborationService) Cursor(sessionID string, cursor domain.Cursor) error {
	return s.presence.UpdateCursor(sessionID, cursor)
}

// Save 处理显式保存：可选的全量替换，随后立即持久化并通知房间。
// content 非 nil 时必须带上 baseRevision，过期则返回 ErrStaleRevision 且不写入。
func (s *CollaborationService) Save(ctx context.Context, sessionID string, content *string, baseRevision *uint64) error {
	roomID, err := s.registry.RoomOf(sessionID)
	if err != nil {
		return ErrUnknownRoom
	}
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "session_id": sessionID})

	if content != nil {
		if baseRevision == nil {
			return fmt.Errorf("%w: save with content requires baseRevision", ErrInvalidOperation)
		}
		if _, err := s.sync.ApplyEdit(sessionID, domain.ReplaceOp(*content, *baseRevision)); err != nil {
			logCtx.WithError(err).Info("Save rejected")
			return err
		}
	}

	snap, err := s.scheduler.FlushNow(ctx, roomID)
	if err != nil {
		// 房间保持为脏，由周期刷写重试
		logCtx.WithError(err).Warn("Explicit save could not be persisted")
		return err
	}

	_ = s.registry.Broadcast(roomID, domain.Event{
		Type:     domain.EventSaved,
		RoomID:   roomID,
		By:       sessionID,
		Revision: snap.Revision,
	}, "")
	logCtx.WithField("revision", snap.Revision).Info("Document saved")

	if s.versions != nil {
		if err := s.versions.RecordVersion(ctx, snap, sessionID); err != nil {
			logCtx.WithError(err).Warn("Failed to record document version")
		}
	}
	return nil
}

// Leave 处理离开和断线。未加入任何房间的会话直接忽略。
func (s *CollaborationService) Leave(sessionID string) {
	if err := s.registry.Leave(sessionID); err != nil && !errors.Is(err, ErrSessionNotFound) {
		logrus.WithField("session_id", sessionID).WithError(err).Warn("Failed to leave room")
	}
}

// RoomOf 返回会话所在房间。
func (s *CollaborationService) RoomOf(sessionID string) (string, error) {
	return s.registry.RoomOf(sessionID)
}

// Stats 汇总运行状态。
func (s *CollaborationService) Stats() Stats {
	return Stats{
		Rooms:     s.registry.Rooms(),
		Sessions:  s.registry.SessionCount(),
		Scheduler: s.scheduler.Stats(),
	}
}

// LiveDocument 返回活跃房间当前的内容，房间不在内存中时 ok 为 false。
func (s *CollaborationService) LiveDocument(roomID string) (*domain.DocumentSnapshot, bool) {
	return s.registry.LiveDocument(roomID)
}
