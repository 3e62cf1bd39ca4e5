package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collaborative-editor/internal/domain"
	"collaborative-editor/internal/service"
)

func TestAssignIdentity(t *testing.T) {
	registry := service.NewRoomRegistry(newMemStore())
	tracker := service.NewPresenceTracker(registry)

	a := tracker.AssignIdentity("3f2a-9c", "")
	assert.Equal(t, "Guest-3f2a", a.Name)
	assert.NotEmpty(t, a.Color)
	assert.Equal(t, a, tracker.AssignIdentity("3f2a-9c", ""), "identity is stable per session")

	named := tracker.AssignIdentity("3f2a-9c", "  Alice ")
	assert.Equal(t, "Alice", named.Name)
	assert.Equal(t, a.Color, named.Color)
}

func TestUpdateCursor_BroadcastsToOthersOnly(t *testing.T) {
	collab, scheduler := newTestEngine(newMemStore())
	ctx := context.Background()
	sink1, sink2 := &recordingSink{}, &recordingSink{}

	_, err := collab.Join(ctx, "s1", "doc1", "", sink1)
	require.NoError(t, err)
	_, err = collab.Join(ctx, "s2", "doc1", "", sink2)
	require.NoError(t, err)

	require.NoError(t, collab.Cursor("s1", domain.Cursor{Line: 2, Column: 7}))

	assert.Empty(t, sink1.ofType(domain.EventPresenceCursor))
	got := sink2.ofType(domain.EventPresenceCursor)
	require.Len(t, got, 1)
	assert.Equal(t, domain.Cursor{Line: 2, Column: 7}, *got[0].Cursor)

	// 光标不影响修订号，也不标记为脏
	live, _ := collab.LiveDocument("doc1")
	assert.Equal(t, uint64(0), live.Revision)
	assert.Equal(t, 0, scheduler.Stats().Pending)

	// 后加入的会话在快照里看到光标
	snap, err := collab.Join(ctx, "s3", "doc1", "", &recordingSink{})
	require.NoError(t, err)
	require.Len(t, snap.Presence, 2)
	assert.Equal(t, "s1", snap.Presence[0].SessionID)
	require.NotNil(t, snap.Presence[0].Cursor)
	assert.Equal(t, 7, snap.Presence[0].Cursor.Column)
	assert.Nil(t, snap.Presence[1].Cursor)
}

func TestUpdateCursor_UnknownSession(t *testing.T) {
	collab, _ := newTestEngine(newMemStore())
	err := collab.Cursor("ghost", domain.Cursor{})
	assert.ErrorIs(t, err, service.ErrUnknownRoom)
}

func TestPresenceSnapshot(t *testing.T) {
	registry := service.NewRoomRegistry(newMemStore())
	tracker := service.NewPresenceTracker(registry)
	ctx := context.Background()

	_, err := tracker.Snapshot("doc1")
	assert.ErrorIs(t, err, service.ErrUnknownRoom)

	for _, id := range []string{"s2", "s1"} {
		_, err := registry.Join(ctx, id, "doc1", tracker.AssignIdentity(id, id), &recordingSink{})
		require.NoError(t, err)
	}
	entries, err := tracker.Snapshot("doc1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "s1", entries[0].SessionID)
	assert.Equal(t, "s2", entries[1].SessionID)

	require.NoError(t, registry.Leave("s1"))
	entries, err = tracker.Snapshot("doc1")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
