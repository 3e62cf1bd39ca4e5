package worker_test

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"collaborative-editor/internal/domain"
	"collaborative-editor/internal/repository"
	"collaborative-editor/internal/repository/mocks"
	"collaborative-editor/internal/tasks"
	"collaborative-editor/internal/worker"
)

func versionTask(t *testing.T, content string, revision uint64) *asynq.Task {
	t.Helper()
	task, err := tasks.NewDocumentVersionTask(&domain.DocumentSnapshot{RoomID: "p1", Content: content, Revision: revision}, "s1")
	require.NoError(t, err)
	return task
}

func TestVersionRecordHandler(t *testing.T) {
	ctx := context.Background()

	t.Run("first version is stored", func(t *testing.T) {
		repo := mocks.NewVersionRepository(t)
		repo.On("Latest", ctx, "p1").Return(nil, repository.ErrNotFound).Once()
		repo.On("Create", ctx, mock.MatchedBy(func(v *domain.DocumentVersion) bool {
			return v.ProjectID == "p1" && v.Content == "hello" && v.Revision == 2 &&
				v.CreatedBy == "s1" && v.ContentHash == domain.ContentHash("hello")
		})).Return(nil).Once()

		err := worker.NewVersionRecordHandler(repo).ProcessTask(ctx, versionTask(t, "hello", 2))
		assert.NoError(t, err)
	})

	t.Run("unchanged content is skipped", func(t *testing.T) {
		repo := mocks.NewVersionRepository(t)
		repo.On("Latest", ctx, "p1").Return(&domain.DocumentVersion{ContentHash: domain.ContentHash("same")}, nil).Once()

		err := worker.NewVersionRecordHandler(repo).ProcessTask(ctx, versionTask(t, "same", 5))
		assert.NoError(t, err)
		repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("storage error is retried", func(t *testing.T) {
		repo := mocks.NewVersionRepository(t)
		repo.On("Latest", ctx, "p1").Return(nil, repository.ErrNotFound).Once()
		repo.On("Create", ctx, mock.Anything).Return(errors.New("db down")).Once()

		err := worker.NewVersionRecordHandler(repo).ProcessTask(ctx, versionTask(t, "x", 1))
		require.Error(t, err)
		assert.NotErrorIs(t, err, asynq.SkipRetry)
	})

	t.Run("bad payload skips retry", func(t *testing.T) {
		repo := mocks.NewVersionRepository(t)
		err := worker.NewVersionRecordHandler(repo).ProcessTask(ctx, asynq.NewTask(tasks.TypeDocumentVersion, []byte("{")))
		assert.ErrorIs(t, err, asynq.SkipRetry)
	})
}

func TestVersionPruneHandler(t *testing.T) {
	ctx := context.Background()

	t.Run("prunes every project", func(t *testing.T) {
		repo := mocks.NewVersionRepository(t)
		repo.On("ProjectIDs", ctx).Return([]string{"a", "b"}, nil).Once()
		repo.On("Prune", ctx, "a", 3).Return(int64(2), nil).Once()
		repo.On("Prune", ctx, "b", 3).Return(int64(0), errors.New("locked")).Once()

		task, err := tasks.NewVersionPruneTask(3)
		require.NoError(t, err)
		assert.NoError(t, worker.NewVersionPruneHandler(repo, 10).ProcessTask(ctx, task))
	})

	t.Run("falls back to configured keep", func(t *testing.T) {
		repo := mocks.NewVersionRepository(t)
		repo.On("ProjectIDs", ctx).Return([]string{"a"}, nil).Once()
		repo.On("Prune", ctx, "a", worker.DefaultVersionKeep).Return(int64(0), nil).Once()

		task, err := tasks.NewVersionPruneTask(0)
		require.NoError(t, err)
		assert.NoError(t, worker.NewVersionPruneHandler(repo, 0).ProcessTask(ctx, task))
	})

	t.Run("listing failure is retried", func(t *testing.T) {
		repo := mocks.NewVersionRepository(t)
		repo.On("ProjectIDs", ctx).Return(nil, errors.New("db down")).Once()
		assert.Error(t, worker.NewVersionPruneHandler(repo, 5).ProcessTask(ctx, asynq.NewTask(tasks.TypeVersionPrune, nil)))
	})
}
