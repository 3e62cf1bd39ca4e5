package redisstate_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collaborative-editor/internal/domain"
	redisstate "collaborative-editor/internal/infra/state/redis"
	"collaborative-editor/internal/repository"
)

func newTestRepo(t *testing.T) (*redisstate.RedisStateRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return redisstate.NewRedisStateRepository(client, "test:"), mr
}

func TestDocumentCache_RoundTrip(t *testing.T) {
	repo, mr := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.GetDocumentCache(ctx, "doc1")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	snap := &domain.DocumentSnapshot{RoomID: "doc1", Content: "hello", Revision: 3}
	require.NoError(t, repo.SetDocumentCache(ctx, snap, time.Minute))
	assert.True(t, mr.Exists("test:room:doc1:document"))

	got, err := repo.GetDocumentCache(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Content)
	assert.Equal(t, uint64(3), got.Revision)

	// 过期后视为未命中
	mr.FastForward(2 * time.Minute)
	_, err = repo.GetDocumentCache(ctx, "doc1")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestDocumentCache_Delete(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.SetDocumentCache(ctx, &domain.DocumentSnapshot{RoomID: "doc1"}, 0))
	require.NoError(t, repo.DeleteDocumentCache(ctx, "doc1"))
	require.NoError(t, repo.DeleteDocumentCache(ctx, "doc1"))

	_, err := repo.GetDocumentCache(ctx, "doc1")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestDocumentCache_CorruptPayload(t *testing.T) {
	repo, mr := newTestRepo(t)
	require.NoError(t, mr.Set("test:room:bad:document", "{not json"))

	_, err := repo.GetDocumentCache(context.Background(), "bad")
	require.Error(t, err)
	assert.NotErrorIs(t, err, repository.ErrNotFound)
}

func TestCheckRateLimit(t *testing.T) {
	repo, mr := newTestRepo(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		exceeded, err := repo.CheckRateLimit(ctx, "1.2.3.4", 3, time.Second)
		require.NoError(t, err)
		assert.False(t, exceeded, "request %d should pass", i+1)
	}
	exceeded, err := repo.CheckRateLimit(ctx, "1.2.3.4", 3, time.Second)
	require.NoError(t, err)
	assert.True(t, exceeded)

	// 其他 key 不受影响
	exceeded, err = repo.CheckRateLimit(ctx, "5.6.7.8", 3, time.Second)
	require.NoError(t, err)
	assert.False(t, exceeded)

	// 窗口过后重新计数
	mr.FastForward(2 * time.Second)
	exceeded, err = repo.CheckRateLimit(ctx, "1.2.3.4", 3, time.Second)
	require.NoError(t, err)
	assert.False(t, exceeded)
}
