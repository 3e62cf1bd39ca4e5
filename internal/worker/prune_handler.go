package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"collaborative-editor/internal/repository"
	"collaborative-editor/internal/tasks"
)

// DefaultVersionKeep 每个项目默认保留的版本数
const DefaultVersionKeep = 20

// VersionPruneHandler 处理周期性的版本清理任务
type VersionPruneHandler struct {
	versionRepo repository.VersionRepository
	keep        int
}

// NewVersionPruneHandler 创建 Handler 实例，keep <= 0 时使用 DefaultVersionKeep。
func NewVersionPruneHandler(versionRepo repository.VersionRepository, keep int) *VersionPruneHandler {
	if versionRepo == nil {
		panic("VersionRepository cannot be nil for VersionPruneHandler")
	}
	if keep <= 0 {
		keep = DefaultVersionKeep
	}
	return &VersionPruneHandler{versionRepo: versionRepo, keep: keep}
}

// ProcessTask 实现 asynq.Handler 接口。
// 单个项目清理失败只记录，不让整个周期任务重试。
func (h *VersionPruneHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	logCtx := taskLogger(ctx, t)

	keep := h.keep
	if len(t.Payload()) > 0 {
		var payload tasks.VersionPrunePayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			logCtx.WithError(err).Error("Failed to unmarshal task payload")
			return fmt.Errorf("failed to unmarshal payload: %v: %w", err, asynq.SkipRetry)
		}
		if payload.Keep > 0 {
			keep = payload.Keep
		}
	}

	projectIDs, err := h.versionRepo.ProjectIDs(ctx)
	if err != nil {
		logCtx.WithError(err).Error("Failed to list projects with versions")
		return fmt.Errorf("list versioned projects: %w", err)
	}

	var removed int64
	failed := 0
	for _, projectID := range projectIDs {
		n, err := h.versionRepo.Prune(ctx, projectID, keep)
		if err != nil {
			failed++
			logCtx.WithError(err).WithField("project_id", projectID).Error("Failed to prune versions")
			continue
		}
		removed += n
	}

	entry := logCtx.WithFields(logrus.Fields{"projects": len(projectIDs), "removed": removed, "keep": keep})
	if failed > 0 {
		entry.Warnf("Version prune completed with %d failures", failed)
	} else {
		entry.Info("Version prune completed")
	}
	return nil
}
