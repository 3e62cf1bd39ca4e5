package gormpersistence_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"

	"collaborative-editor/internal/domain"
	gormpersistence "collaborative-editor/internal/infra/persistence/gorm"
	"collaborative-editor/internal/repository"
)

// newTestDB 打开一个进程内 SQLite 数据库并迁移表结构
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// 内存库每个连接独立，固定为单连接
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&domain.Project{}, &domain.DocumentVersion{}))
	return db
}

func TestProjectRepository_CreateAndFind(t *testing.T) {
	repo := gormpersistence.NewGormProjectRepository(newTestDB(t))
	ctx := context.Background()

	p := &domain.Project{ID: "p1", Title: "Notes", OwnerID: "u1"}
	require.NoError(t, repo.Create(ctx, p))

	got, err := repo.FindByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Notes", got.Title)
	assert.Equal(t, "[]", got.Collaborators)

	_, err = repo.FindByID(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestProjectRepository_ListAndUpdateMeta(t *testing.T) {
	repo := gormpersistence.NewGormProjectRepository(newTestDB(t))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Create(ctx, &domain.Project{ID: fmt.Sprintf("p%d", i), Title: "t", OwnerID: "u1"}))
	}
	require.NoError(t, repo.Create(ctx, &domain.Project{ID: "other", Title: "t", OwnerID: "u2"}))

	list, err := repo.ListByOwner(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, list, 3)

	upd := &domain.Project{ID: "p1", Title: "Renamed"}
	require.NoError(t, upd.SetCollaborators([]string{"u2"}))
	require.NoError(t, repo.UpdateMeta(ctx, upd))

	got, err := repo.FindByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Title)
	assert.True(t, got.CanAccess("u2"))

	err = repo.UpdateMeta(ctx, &domain.Project{ID: "nope", Title: "x"})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestProjectRepository_DocumentRoundTrip(t *testing.T) {
	repo := gormpersistence.NewGormProjectRepository(newTestDB(t))
	ctx := context.Background()

	_, err := repo.LoadDocument(ctx, "doc1")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	// 不存在的房间会以默认标题创建
	require.NoError(t, repo.StoreDocument(ctx, &domain.DocumentSnapshot{RoomID: "doc1", Content: "hello", Revision: 1}))
	snap, err := repo.LoadDocument(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, "hello", snap.Content)
	assert.Equal(t, uint64(1), snap.Revision)

	require.NoError(t, repo.StoreDocument(ctx, &domain.DocumentSnapshot{RoomID: "doc1", Content: "hello world", Revision: 4}))
	snap, err = repo.LoadDocument(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, "hello world", snap.Content)
	assert.Equal(t, uint64(4), snap.Revision)

	p, err := repo.FindByID(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultProjectTitle, p.Title)
}

func TestProjectRepository_StoreKeepsMetadata(t *testing.T) {
	repo := gormpersistence.NewGormProjectRepository(newTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &domain.Project{ID: "p1", Title: "Keep me", OwnerID: "u1"}))
	require.NoError(t, repo.StoreDocument(ctx, &domain.DocumentSnapshot{RoomID: "p1", Content: "body", Revision: 2}))

	p, err := repo.FindByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Keep me", p.Title)
	assert.Equal(t, "u1", p.OwnerID)
	assert.Equal(t, "body", p.Content)
}

func TestVersionRepository_LatestListPrune(t *testing.T) {
	repo := gormpersistence.NewGormVersionRepository(newTestDB(t))
	ctx := context.Background()

	_, err := repo.Latest(ctx, "p1")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	for i := 1; i <= 5; i++ {
		content := fmt.Sprintf("v%d", i)
		require.NoError(t, repo.Create(ctx, &domain.DocumentVersion{
			ProjectID: "p1", Content: content, ContentHash: domain.ContentHash(content), Revision: uint64(i),
		}))
	}
	require.NoError(t, repo.Create(ctx, &domain.DocumentVersion{ProjectID: "p2", Content: "x", Revision: 1}))

	latest, err := repo.Latest(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "v5", latest.Content)

	list, err := repo.ListByProject(ctx, "p1", 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, uint64(5), list[0].Revision)

	ids, err := repo.ProjectIDs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"p1", "p2"}, ids)

	removed, err := repo.Prune(ctx, "p1", 3)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	list, err = repo.ListByProject(ctx, "p1", 0)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "v3", list[2].Content)

	removed, err = repo.Prune(ctx, "p2", 3)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

// 房间 ID 的上限必须放得进项目和版本表的列宽，否则 MySQL 上的写入会一直失败。
func TestSchema_RoomIDColumnsFitMaxLength(t *testing.T) {
	cache := &sync.Map{}
	projectSchema, err := schema.Parse(&domain.Project{}, cache, schema.NamingStrategy{})
	require.NoError(t, err)
	versionSchema, err := schema.Parse(&domain.DocumentVersion{}, cache, schema.NamingStrategy{})
	require.NoError(t, err)

	assert.GreaterOrEqual(t, projectSchema.LookUpField("ID").Size, domain.MaxRoomIDLength)
	assert.GreaterOrEqual(t, versionSchema.LookUpField("ProjectID").Size, domain.MaxRoomIDLength)
}

func TestProjectRepository_StoresLongestRoomID(t *testing.T) {
	repo := gormpersistence.NewGormProjectRepository(newTestDB(t))
	ctx := context.Background()
	id := strings.Repeat("r", domain.MaxRoomIDLength)

	require.NoError(t, repo.StoreDocument(ctx, &domain.DocumentSnapshot{RoomID: id, Content: "x", Revision: 1}))
	got, err := repo.LoadDocument(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, got.RoomID)
}
