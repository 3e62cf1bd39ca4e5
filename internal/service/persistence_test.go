package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collaborative-editor/internal/service"
)

func TestFlushCycle_WritesOnlyDirtyRooms(t *testing.T) {
	store := newMemStore()
	collab, scheduler := newTestEngine(store)
	ctx := context.Background()

	_, err := collab.Join(ctx, "s1", "a", "", &recordingSink{})
	require.NoError(t, err)
	_, err = collab.Join(ctx, "s2", "b", "", &recordingSink{})
	require.NoError(t, err)
	_, err = collab.Edit("s1", insertText(0, "x"))
	require.NoError(t, err)
	_, err = collab.Edit("s1", insertText(1, "y"))
	require.NoError(t, err)

	assert.Equal(t, 1, scheduler.Stats().Pending, "marking twice keeps one entry")

	stats := scheduler.FlushCycle(ctx)
	assert.Equal(t, service.FlushStats{Attempted: 1, Written: 1}, stats)
	assert.Equal(t, 1, store.writeCount())
	_, ok := store.get("b")
	assert.False(t, ok, "clean room is never written")

	// 没有新修改时不再写入
	stats = scheduler.FlushCycle(ctx)
	assert.Equal(t, 0, stats.Attempted)
	assert.Equal(t, 1, store.writeCount())
}

func TestFlushCycle_FailureKeepsRoomDirty(t *testing.T) {
	store := newMemStore()
	store.failN = 1
	collab, scheduler := newTestEngine(store)
	ctx := context.Background()

	_, err := collab.Join(ctx, "s1", "doc1", "", &recordingSink{})
	require.NoError(t, err)
	_, err = collab.Edit("s1", insertText(0, "keep me"))
	require.NoError(t, err)

	stats := scheduler.FlushCycle(ctx)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, scheduler.Stats().Pending)
	assert.Equal(t, uint64(1), scheduler.Stats().Failures)

	// 失败期间离开也不能丢失内容
	collab.Leave("s1")
	_, ok := collab.LiveDocument("doc1")
	require.True(t, ok)

	stats = scheduler.FlushCycle(ctx)
	assert.Equal(t, 1, stats.Written)
	doc, ok := store.get("doc1")
	require.True(t, ok)
	assert.Equal(t, "keep me", doc.Content)
	_, ok = collab.LiveDocument("doc1")
	assert.False(t, ok)
}

func TestFlushCycle_EditDuringWriteStaysDirty(t *testing.T) {
	store := newMemStore()
	collab, scheduler := newTestEngine(store)
	ctx := context.Background()

	_, err := collab.Join(ctx, "s1", "doc1", "", &recordingSink{})
	require.NoError(t, err)
	_, err = collab.Edit("s1", insertText(0, "a"))
	require.NoError(t, err)

	block, entered := make(chan struct{}), make(chan struct{})
	store.mu.Lock()
	store.block, store.entered = block, entered
	store.mu.Unlock()

	done := make(chan service.FlushStats)
	go func() { done <- scheduler.FlushCycle(ctx) }()

	<-entered
	// 写入进行中，编辑不被阻塞
	res, err := collab.Edit("s1", insertText(1, "b"))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), res.Revision)

	store.mu.Lock()
	store.block, store.entered = nil, nil
	store.mu.Unlock()
	close(block)

	stats := <-done
	assert.Equal(t, 1, stats.Written)
	doc, _ := store.get("doc1")
	assert.Equal(t, uint64(1), doc.Revision)
	assert.Equal(t, 1, scheduler.Stats().Pending, "newer revision still pending")

	scheduler.FlushCycle(ctx)
	doc, _ = store.get("doc1")
	assert.Equal(t, "ab", doc.Content)
	assert.Equal(t, uint64(2), doc.Revision)
}

func TestFlushNow(t *testing.T) {
	store := newMemStore()
	store.put("doc1", "base", 3)
	collab, scheduler := newTestEngine(store)
	ctx := context.Background()

	_, err := scheduler.FlushNow(ctx, "nowhere")
	assert.ErrorIs(t, err, service.ErrUnknownRoom)

	_, err = collab.Join(ctx, "s1", "doc1", "", &recordingSink{})
	require.NoError(t, err)

	// 干净的房间返回已持久化状态，不产生写入
	snap, err := scheduler.FlushNow(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), snap.Revision)
	assert.Equal(t, 0, store.writeCount())

	_, err = collab.Edit("s1", insertText(4, "!"))
	require.NoError(t, err)
	snap, err = scheduler.FlushNow(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, "base!", snap.Content)
	assert.Equal(t, uint64(4), snap.Revision)
	assert.Equal(t, 1, store.writeCount())
}

func TestScheduler_StartStopPersistsEventually(t *testing.T) {
	store := newMemStore()
	collab, scheduler := service.NewEngine(store, 10*time.Millisecond, nil)
	ctx := context.Background()

	scheduler.Start()
	_, err := collab.Join(ctx, "s1", "doc1", "", &recordingSink{})
	require.NoError(t, err)
	_, err = collab.Edit("s1", insertText(0, "auto"))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		doc, ok := store.get("doc1")
		return ok && doc.Content == "auto"
	}, time.Second, 5*time.Millisecond)

	scheduler.Stop()
	scheduler.Stop()
	assert.False(t, scheduler.Stats().LastFlushAt.IsZero())
}
