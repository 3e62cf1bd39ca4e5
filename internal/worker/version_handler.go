package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"collaborative-editor/internal/domain"
	"collaborative-editor/internal/repository"
	"collaborative-editor/internal/tasks"
)

// VersionRecordHandler 处理版本记录任务
type VersionRecordHandler struct {
	versionRepo repository.VersionRepository
}

// NewVersionRecordHandler 创建 Handler 实例
func NewVersionRecordHandler(versionRepo repository.VersionRepository) *VersionRecordHandler {
	if versionRepo == nil {
		panic("VersionRepository cannot be nil for VersionRecordHandler")
	}
	return &VersionRecordHandler{versionRepo: versionRepo}
}

// taskLogger 带上任务元数据。测试里直接构造的 Task 没有 ResultWriter。
func taskLogger(ctx context.Context, t *asynq.Task) *logrus.Entry {
	taskID := ""
	if rw := t.ResultWriter(); rw != nil {
		taskID = rw.TaskID()
	}
	currentRetry, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	queue, _ := asynq.GetQueueName(ctx)
	return logrus.WithFields(logrus.Fields{
		"task_id":   taskID,
		"task_type": t.Type(),
		"queue":     queue,
		"retry":     currentRetry,
		"max_retry": maxRetry,
	})
}

// ProcessTask 实现 asynq.Handler 接口。
// 内容与最新版本相同时跳过，避免重复保存产生相同的历史记录。
func (h *VersionRecordHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	logCtx := taskLogger(ctx, t)

	var payload tasks.DocumentVersionPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		logCtx.WithError(err).Error("Failed to unmarshal task payload")
		return fmt.Errorf("failed to unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.ProjectID == "" {
		return fmt.Errorf("payload without project id: %w", asynq.SkipRetry)
	}
	logCtx = logCtx.WithFields(logrus.Fields{"project_id": payload.ProjectID, "revision": payload.Revision})

	hash := domain.ContentHash(payload.Content)
	latest, err := h.versionRepo.Latest(ctx, payload.ProjectID)
	switch {
	case err == nil && latest.ContentHash == hash:
		logCtx.Debug("Content unchanged since latest version, skipping")
		return nil
	case err != nil && !errors.Is(err, repository.ErrVersionNotFound):
		logCtx.WithError(err).Error("Failed to read latest version")
		return fmt.Errorf("latest version for %s: %w", payload.ProjectID, err)
	}

	version := &domain.DocumentVersion{
		ProjectID:   payload.ProjectID,
		Content:     payload.Content,
		ContentHash: hash,
		Revision:    payload.Revision,
		CreatedBy:   payload.CreatedBy,
	}
	if err := h.versionRepo.Create(ctx, version); err != nil {
		logCtx.WithError(err).Error("Failed to store document version")
		return fmt.Errorf("store version for %s: %w", payload.ProjectID, err)
	}
	logCtx.WithField("version_id", version.ID).Info("Document version recorded")
	return nil
}
