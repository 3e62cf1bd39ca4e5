package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"collaborative-editor/internal/domain"
)

// DefaultFlushInterval 自动保存周期
const DefaultFlushInterval = 5 * time.Second

// DocumentWriter 把文档写入持久化存储。
type DocumentWriter interface {
	StoreDocument(ctx context.Context, snapshot *domain.DocumentSnapshot) error
}

// FlushStats 是一次刷写周期的结果。
type FlushStats struct {
	Attempted int
	Written   int
	Failed    int
}

// SchedulerStats 是调度器的累计计数。
type SchedulerStats struct {
	Pending     int       `json:"pending"`
	Writes      uint64    `json:"writes"`
	Failures    uint64    `json:"failures"`
	LastFlushAt time.Time `json:"lastFlushAt"`
}

// PersistenceScheduler 周期性地把脏房间写入存储。
// 脏集合由调度器独占，写入过程不持有房间锁，不会阻塞编辑。
type PersistenceScheduler struct {
	registry *RoomRegistry
	store    DocumentWriter
	interval time.Duration

	mu    sync.Mutex
	dirty map[string]struct{}

	writes    atomic.Uint64
	failures  atomic.Uint64
	lastFlush atomic.Int64

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewPersistenceScheduler 创建调度器，interval <= 0 时使用 DefaultFlushInterval。
func NewPersistenceScheduler(registry *RoomRegistry, store DocumentWriter, interval time.Duration) *PersistenceScheduler {
	if registry == nil || store == nil {
		panic("RoomRegistry and DocumentWriter must be non-nil for PersistenceScheduler")
	}
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	return &PersistenceScheduler{
		registry: registry,
		store:    store,
		interval: interval,
		dirty:    make(map[string]struct{}),
		stop:     make(chan struct{}),
	}
}

// MarkDirty 把房间加入脏集合，重复调用是幂等的。
func (s *PersistenceScheduler) MarkDirty(roomID string) {
	s.mu.Lock()
	s.dirty[roomID] = struct{}{}
	s.mu.Unlock()
}

// takeDirty 原子地取出并清空脏集合。
func (s *PersistenceScheduler) takeDirty() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.dirty))
	for id := range s.dirty {
		ids = append(ids, id)
	}
	s.dirty = make(map[string]struct{})
	return ids
}

// FlushCycle 写入当前所有脏房间。失败的房间保持为脏，下一个周期重试。
func (s *PersistenceScheduler) FlushCycle(ctx context.Context) FlushStats {
	var stats FlushStats
	for _, roomID := range s.takeDirty() {
		stats.Attempted++
		_, written, err := s.flushRoom(ctx, roomID)
		switch {
		case err != nil:
			stats.Failed++
		case written:
			stats.Written++
		}
	}
	s.lastFlush.Store(time.Now().UnixNano())
	if stats.Attempted > 0 {
		logrus.WithFields(logrus.Fields{
			"attempted": stats.Attempted,
			"written":   stats.Written,
			"failed":    stats.Failed,
		}).Debug("Flush cycle completed")
	}
	return stats
}

// FlushNow 立即持久化一个房间，返回已持久化的快照。
// 房间没有未写内容时直接返回当前（即已持久化的）状态。
func (s *PersistenceScheduler) FlushNow(ctx context.Context, roomID string) (*domain.DocumentSnapshot, error) {
	snap, _, err := s.flushRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, ErrUnknownRoom
	}
	return snap, nil
}

// flushRoom 在房间锁内拍快照，在锁外写入，再回到锁内决定是否清除脏标记。
// 写入期间修订号发生变化说明有新修改，房间保持为脏。
func (s *PersistenceScheduler) flushRoom(ctx context.Context, roomID string) (*domain.DocumentSnapshot, bool, error) {
	room := s.registry.lookup(roomID)
	if room == nil {
		return nil, false, nil
	}
	logCtx := logrus.WithField("room_id", roomID)

	room.flushMu.Lock()
	defer room.flushMu.Unlock()

	room.mu.Lock()
	if room.doc == nil || room.evicted {
		room.mu.Unlock()
		return nil, false, nil
	}
	snap := &domain.DocumentSnapshot{
		RoomID:    roomID,
		Content:   room.doc.Content(),
		Revision:  room.doc.Revision(),
		UpdatedAt: time.Now(),
	}
	if !room.dirty {
		room.mu.Unlock()
		return snap, false, nil
	}
	room.pendingFlushes++
	room.mu.Unlock()

	err := s.store.StoreDocument(ctx, snap)

	room.mu.Lock()
	room.pendingFlushes--
	if err == nil && room.doc.Revision() == snap.Revision {
		room.dirty = false
	}
	stillDirty := room.dirty
	room.mu.Unlock()

	if err != nil {
		s.failures.Add(1)
		s.MarkDirty(roomID)
		logCtx.WithError(err).WithField("revision", snap.Revision).Warn("Failed to persist document, will retry")
		return nil, false, fmt.Errorf("%w: room %s: %v", ErrPersistenceWrite, roomID, err)
	}

	s.writes.Add(1)
	logCtx.WithField("revision", snap.Revision).Debug("Document persisted")
	if stillDirty {
		s.MarkDirty(roomID)
	} else {
		s.registry.evictIfIdle(room)
	}
	return snap, true, nil
}

// Start 启动周期刷写循环。
func (s *PersistenceScheduler) Start() {
	s.wg.Add(1)
	go s.run()
	logrus.WithField("interval", s.interval).Info("Persistence scheduler started")
}

// Stop 停止刷写循环并等待其退出。之后应调用 FlushCycle 做最后一次写入。
func (s *PersistenceScheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.wg.Wait()
	logrus.Info("Persistence scheduler stopped")
}

func (s *PersistenceScheduler) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.interval*4)
			s.FlushCycle(ctx)
			cancel()
		}
	}
}

// Stats 返回累计计数。
func (s *PersistenceScheduler) Stats() SchedulerStats {
	s.mu.Lock()
	pending := len(s.dirty)
	s.mu.Unlock()
	stats := SchedulerStats{
		Pending:  pending,
		Writes:   s.writes.Load(),
		Failures: s.failures.Load(),
	}
	if ts := s.lastFlush.Load(); ts > 0 {
		stats.LastFlushAt = time.Unix(0, ts)
	}
	return stats
}
