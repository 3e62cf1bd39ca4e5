package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"collaborative-editor/internal/domain"
	"collaborative-editor/internal/repository"
)

// DefaultDocumentCacheTTL 文档缓存的默认过期时间
const DefaultDocumentCacheTTL = 10 * time.Minute

// DocumentStore 是核心使用的持久化协作者。
// 读取采用 "缓存优先，数据库备用，回填缓存" 策略；写入先落库再刷新缓存。
type DocumentStore struct {
	docRepo   repository.DocumentRepository // DB 操作
	stateRepo repository.StateRepository    // Redis 缓存，可以为 nil
	cacheTTL  time.Duration
}

// NewDocumentStore 创建 DocumentStore 实例。stateRepo 为 nil 时不使用缓存。
func NewDocumentStore(docRepo repository.DocumentRepository, stateRepo repository.StateRepository, cacheTTL time.Duration) *DocumentStore {
	if docRepo == nil {
		panic("DocumentRepository cannot be nil for DocumentStore")
	}
	if cacheTTL <= 0 {
		cacheTTL = DefaultDocumentCacheTTL
	}
	return &DocumentStore{docRepo: docRepo, stateRepo: stateRepo, cacheTTL: cacheTTL}
}

// LoadDocument 读取文档。不存在时返回 repository.ErrNotFound。
func (s *DocumentStore) LoadDocument(ctx context.Context, roomID string) (*domain.DocumentSnapshot, error) {
	logCtx := logrus.WithFields(logrus.Fields{"room_id": roomID, "operation": "LoadDocument"})

	// 1. 尝试从缓存获取
	if s.stateRepo != nil {
		cached, err := s.stateRepo.GetDocumentCache(ctx, roomID)
		switch {
		case err == nil && cached != nil:
			logCtx.Debug("Document cache hit")
			return cached, nil
		case err != nil && !errors.Is(err, repository.ErrNotFound):
			logCtx.WithError(err).Warn("Failed to get document from cache")
		default:
			logCtx.Debug("Document cache miss")
		}
	}

	// 2. 缓存未命中，读数据库
	snap, err := s.docRepo.LoadDocument(ctx, roomID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, repository.ErrDocumentNotFound
		}
		logCtx.WithError(err).Error("Failed to load document from database")
		return nil, fmt.Errorf("load document %s: %w", roomID, err)
	}

	// 3. 回填缓存，失败只记录
	if s.stateRepo != nil {
		if err := s.stateRepo.SetDocumentCache(ctx, snap, s.cacheTTL); err != nil {
			logCtx.WithError(err).Warn("Failed to backfill document cache")
		}
	}
	return snap, nil
}

// StoreDocument 写入数据库，成功后刷新缓存。
// 缓存刷新失败时删除缓存，避免后续读到旧内容。
func (s *DocumentStore) StoreDocument(ctx context.Context, snapshot *domain.DocumentSnapshot) error {
	if err := s.docRepo.StoreDocument(ctx, snapshot); err != nil {
		return fmt.Errorf("store document %s: %w", snapshot.RoomID, err)
	}
	if s.stateRepo == nil {
		return nil
	}
	if err := s.stateRepo.SetDocumentCache(ctx, snapshot, s.cacheTTL); err != nil {
		logCtx := logrus.WithFields(logrus.Fields{"room_id": snapshot.RoomID, "revision": snapshot.Revision})
		logCtx.WithError(err).Warn("Failed to refresh document cache, invalidating")
		if delErr := s.stateRepo.DeleteDocumentCache(ctx, snapshot.RoomID); delErr != nil {
			logCtx.WithError(delErr).Error("Failed to invalidate stale document cache")
		}
	}
	return nil
}
