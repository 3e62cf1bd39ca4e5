package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"collaborative-editor/internal/domain"
)

// 任务类型常量
const (
	TypeDocumentVersion = "document:version"       // 显式保存后记录历史版本
	TypeVersionPrune    = "document:version_prune" // 周期清理旧版本
)

// DocumentVersionPayload 是版本记录任务的数据
type DocumentVersionPayload struct {
	ProjectID string    `json:"project_id"`
	Content   string    `json:"content"`
	Revision  uint64    `json:"revision"`
	CreatedBy string    `json:"created_by"`
	SavedAt   time.Time `json:"saved_at"`
}

// VersionPrunePayload 是清理任务的数据，Keep <= 0 时使用 worker 的配置
type VersionPrunePayload struct {
	Keep int `json:"keep,omitempty"`
}

// NewDocumentVersionTask 根据已持久化的快照创建版本记录任务。
func NewDocumentVersionTask(snapshot *domain.DocumentSnapshot, createdBy string) (*asynq.Task, error) {
	payload, err := json.Marshal(DocumentVersionPayload{
		ProjectID: snapshot.RoomID,
		Content:   snapshot.Content,
		Revision:  snapshot.Revision,
		CreatedBy: createdBy,
		SavedAt:   snapshot.UpdatedAt,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal document version payload: %w", err)
	}
	return asynq.NewTask(TypeDocumentVersion, payload, asynq.MaxRetry(5), asynq.Timeout(30*time.Second)), nil
}

// NewVersionPruneTask 创建清理任务。
func NewVersionPruneTask(keep int) (*asynq.Task, error) {
	payload, err := json.Marshal(VersionPrunePayload{Keep: keep})
	if err != nil {
		return nil, fmt.Errorf("marshal version prune payload: %w", err)
	}
	return asynq.NewTask(TypeVersionPrune, payload), nil
}

// Enqueuer 是 *asynq.Client 的子集，便于测试。
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// VersionEnqueuer 把版本记录请求投递到任务队列，实现 service.VersionRecorder。
type VersionEnqueuer struct {
	client Enqueuer
	queue  string
}

// NewVersionEnqueuer 创建 VersionEnqueuer 实例，queue 为空时使用 "default"。
func NewVersionEnqueuer(client Enqueuer, queue string) *VersionEnqueuer {
	if client == nil {
		panic("Enqueuer cannot be nil for VersionEnqueuer")
	}
	if queue == "" {
		queue = "default"
	}
	return &VersionEnqueuer{client: client, queue: queue}
}

// RecordVersion 入队一个版本记录任务。
func (e *VersionEnqueuer) RecordVersion(ctx context.Context, snapshot *domain.DocumentSnapshot, createdBy string) error {
	task, err := NewDocumentVersionTask(snapshot, createdBy)
	if err != nil {
		return err
	}
	info, err := e.client.EnqueueContext(ctx, task, asynq.Queue(e.queue))
	if err != nil {
		return fmt.Errorf("enqueue %s for project %s: %w", TypeDocumentVersion, snapshot.RoomID, err)
	}
	logrus.WithFields(logrus.Fields{
		"task_id":    info.ID,
		"project_id": snapshot.RoomID,
		"revision":   snapshot.Revision,
	}).Debug("Document version task enqueued")
	return nil
}
