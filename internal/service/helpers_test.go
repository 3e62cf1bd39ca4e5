package service_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"collaborative-editor/internal/domain"
	"collaborative-editor/internal/repository"
	"collaborative-editor/internal/service"
)

// memStore 是内存中的 DocumentPersistence，可以注入失败和阻塞。
type memStore struct {
	mu      sync.Mutex
	docs    map[string]domain.DocumentSnapshot
	writes  int
	loadErr error
	failN   int           // 接下来 failN 次写入失败
	block   chan struct{} // 非 nil 时写入阻塞直到关闭
	entered chan struct{} // 写入开始时通知
}

func newMemStore() *memStore {
	return &memStore{docs: make(map[string]domain.DocumentSnapshot)}
}

func (m *memStore) LoadDocument(_ context.Context, roomID string) (*domain.DocumentSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	doc, ok := m.docs[roomID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &doc, nil
}

func (m *memStore) StoreDocument(ctx context.Context, snap *domain.DocumentSnapshot) error {
	m.mu.Lock()
	block, entered := m.block, m.entered
	m.mu.Unlock()
	if entered != nil {
		entered <- struct{}{}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failN > 0 {
		m.failN--
		return errors.New("disk full")
	}
	m.writes++
	m.docs[snap.RoomID] = *snap
	return nil
}

func (m *memStore) put(roomID, content string, revision uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[roomID] = domain.DocumentSnapshot{RoomID: roomID, Content: content, Revision: revision}
}

func (m *memStore) get(roomID string) (domain.DocumentSnapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[roomID]
	return doc, ok
}

func (m *memStore) writeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

// recordingSink 记录收到的事件。
type recordingSink struct {
	mu     sync.Mutex
	events []domain.Event
}

func (s *recordingSink) Deliver(event domain.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return true
}

func (s *recordingSink) all() []domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Event(nil), s.events...)
}

func (s *recordingSink) ofType(t domain.EventType) []domain.Event {
	var out []domain.Event
	for _, e := range s.all() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// newTestEngine 用内存存储组装核心组件，周期刷写不启动。
func newTestEngine(store *memStore) (*service.CollaborationService, *service.PersistenceScheduler) {
	return service.NewEngine(store, time.Hour, nil)
}

func insertText(offset int, text string) domain.Operation {
	return domain.Operation{Kind: domain.OpInsertText, Offset: offset, Text: text}
}
