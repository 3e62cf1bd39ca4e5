package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"collaborative-editor/internal/domain"
	"collaborative-editor/internal/repository"
	"collaborative-editor/internal/repository/mocks"
	"collaborative-editor/internal/service"
)

type staticLive map[string]domain.DocumentSnapshot

func (l staticLive) LiveDocument(roomID string) (*domain.DocumentSnapshot, bool) {
	doc, ok := l[roomID]
	if !ok {
		return nil, false
	}
	return &doc, true
}

func TestProjectService_CreateProject(t *testing.T) {
	ctx := context.Background()

	t.Run("default title", func(t *testing.T) {
		projectRepo := mocks.NewProjectRepository(t)
		versionRepo := mocks.NewVersionRepository(t)
		projectRepo.On("Create", ctx, mock.MatchedBy(func(p *domain.Project) bool {
			return p.ID != "" && p.OwnerID == "u1" && p.Title == domain.DefaultProjectTitle && p.Collaborators == "[]"
		})).Return(nil).Once()

		svc := service.NewProjectService(projectRepo, versionRepo, nil)
		project, err := svc.CreateProject(ctx, "u1", "   ")
		require.NoError(t, err)
		assert.Len(t, project.ID, 36)
	})

	t.Run("repository failure", func(t *testing.T) {
		projectRepo := mocks.NewProjectRepository(t)
		versionRepo := mocks.NewVersionRepository(t)
		projectRepo.On("Create", ctx, mock.Anything).Return(errors.New("db down")).Once()

		svc := service.NewProjectService(projectRepo, versionRepo, nil)
		_, err := svc.CreateProject(ctx, "u1", "Notes")
		assert.ErrorIs(t, err, service.ErrInternalServer)
	})
}

func TestProjectService_GetProject(t *testing.T) {
	ctx := context.Background()
	stored := func() *domain.Project {
		p := &domain.Project{ID: "p1", Title: "Notes", OwnerID: "owner", Content: "old", Revision: 1}
		_ = p.SetCollaborators([]string{"friend"})
		return p
	}

	t.Run("live content overlays stored", func(t *testing.T) {
		projectRepo := mocks.NewProjectRepository(t)
		projectRepo.On("FindByID", ctx, "p1").Return(stored(), nil).Once()
		live := staticLive{"p1": {RoomID: "p1", Content: "typing", Revision: 9}}

		svc := service.NewProjectService(projectRepo, mocks.NewVersionRepository(t), live)
		project, err := svc.GetProject(ctx, "friend", "p1")
		require.NoError(t, err)
		assert.Equal(t, "typing", project.Content)
		assert.Equal(t, uint64(9), project.Revision)
	})

	t.Run("stranger is forbidden", func(t *testing.T) {
		projectRepo := mocks.NewProjectRepository(t)
		projectRepo.On("FindByID", ctx, "p1").Return(stored(), nil).Once()

		svc := service.NewProjectService(projectRepo, mocks.NewVersionRepository(t), nil)
		_, err := svc.GetProject(ctx, "stranger", "p1")
		assert.ErrorIs(t, err, service.ErrForbidden)
	})

	t.Run("not found", func(t *testing.T) {
		projectRepo := mocks.NewProjectRepository(t)
		projectRepo.On("FindByID", ctx, "missing").Return(nil, repository.ErrNotFound).Once()

		svc := service.NewProjectService(projectRepo, mocks.NewVersionRepository(t), nil)
		_, err := svc.GetProject(ctx, "u1", "missing")
		assert.ErrorIs(t, err, service.ErrProjectNotFound)
	})
}

func TestProjectService_UpdateProject(t *testing.T) {
	ctx := context.Background()
	stored := func() *domain.Project {
		p := &domain.Project{ID: "p1", Title: "Notes", OwnerID: "owner"}
		_ = p.SetCollaborators([]string{"friend"})
		return p
	}

	t.Run("owner updates metadata", func(t *testing.T) {
		projectRepo := mocks.NewProjectRepository(t)
		projectRepo.On("FindByID", ctx, "p1").Return(stored(), nil).Once()
		projectRepo.On("UpdateMeta", ctx, mock.MatchedBy(func(p *domain.Project) bool {
			return p.Title == "Renamed" && p.Collaborators == `["a","b"]`
		})).Return(nil).Once()

		svc := service.NewProjectService(projectRepo, mocks.NewVersionRepository(t), nil)
		project, err := svc.UpdateProject(ctx, "owner", "p1", "Renamed", []string{"a", "b"})
		require.NoError(t, err)
		assert.Equal(t, "Renamed", project.Title)
	})

	t.Run("collaborator cannot update", func(t *testing.T) {
		projectRepo := mocks.NewProjectRepository(t)
		projectRepo.On("FindByID", ctx, "p1").Return(stored(), nil).Once()

		svc := service.NewProjectService(projectRepo, mocks.NewVersionRepository(t), nil)
		_, err := svc.UpdateProject(ctx, "friend", "p1", "Mine now", nil)
		assert.ErrorIs(t, err, service.ErrForbidden)
		projectRepo.AssertNotCalled(t, "UpdateMeta", mock.Anything, mock.Anything)
	})
}

func TestProjectService_ListVersions(t *testing.T) {
	ctx := context.Background()
	projectRepo := mocks.NewProjectRepository(t)
	versionRepo := mocks.NewVersionRepository(t)
	projectRepo.On("FindByID", ctx, "p1").Return(&domain.Project{ID: "p1"}, nil).Once()
	versions := []domain.DocumentVersion{{ID: 2, ProjectID: "p1", Revision: 5}, {ID: 1, ProjectID: "p1", Revision: 3}}
	versionRepo.On("ListByProject", ctx, "p1", 10).Return(versions, nil).Once()

	svc := service.NewProjectService(projectRepo, versionRepo, nil)
	got, err := svc.ListVersions(ctx, "anyone", "p1", 10)
	require.NoError(t, err)
	assert.Equal(t, versions, got)
}

func TestProjectService_AuthorizeRoom(t *testing.T) {
	ctx := context.Background()
	owned := func() *domain.Project {
		p := &domain.Project{ID: "p1", OwnerID: "owner"}
		_ = p.SetCollaborators([]string{"friend"})
		return p
	}

	t.Run("members may join", func(t *testing.T) {
		projectRepo := mocks.NewProjectRepository(t)
		projectRepo.On("FindByID", ctx, "p1").Return(owned(), nil).Twice()

		svc := service.NewProjectService(projectRepo, mocks.NewVersionRepository(t), nil)
		assert.NoError(t, svc.AuthorizeRoom(ctx, "owner", "p1"))
		assert.NoError(t, svc.AuthorizeRoom(ctx, "friend", "p1"))
	})

	t.Run("strangers and anonymous are rejected", func(t *testing.T) {
		projectRepo := mocks.NewProjectRepository(t)
		projectRepo.On("FindByID", ctx, "p1").Return(owned(), nil).Twice()

		svc := service.NewProjectService(projectRepo, mocks.NewVersionRepository(t), nil)
		err := svc.AuthorizeRoom(ctx, "stranger", "p1")
		assert.ErrorIs(t, err, service.ErrForbidden)
		assert.Equal(t, service.KindForbidden, service.ErrorKind(err))
		assert.ErrorIs(t, svc.AuthorizeRoom(ctx, "", "p1"), service.ErrForbidden)
	})

	t.Run("room without project is open", func(t *testing.T) {
		projectRepo := mocks.NewProjectRepository(t)
		projectRepo.On("FindByID", ctx, "scratch").Return(nil, repository.ErrNotFound).Once()

		svc := service.NewProjectService(projectRepo, mocks.NewVersionRepository(t), nil)
		assert.NoError(t, svc.AuthorizeRoom(ctx, "", "scratch"))
	})

	t.Run("repository failure", func(t *testing.T) {
		projectRepo := mocks.NewProjectRepository(t)
		projectRepo.On("FindByID", ctx, "p1").Return(nil, errors.New("db down")).Once()

		svc := service.NewProjectService(projectRepo, mocks.NewVersionRepository(t), nil)
		assert.ErrorIs(t, svc.AuthorizeRoom(ctx, "owner", "p1"), service.ErrInternalServer)
	})
}
