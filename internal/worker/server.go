package worker

import (
	"context"
	"errors"
	"net/http"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"collaborative-editor/internal/repository"
	"collaborative-editor/internal/tasks"
)

// WorkerServer 封装了 Asynq Worker Server 的启动和关闭逻辑
type WorkerServer struct {
	server      *asynq.Server
	log         *logrus.Entry
	versionRepo repository.VersionRepository
	keep        int
}

// NewWorkerServer 创建一个新的 WorkerServer 实例
func NewWorkerServer(redisOpt asynq.RedisClientOpt, versionRepo repository.VersionRepository, keep int, logger *logrus.Logger) *WorkerServer {
	logEntry := logger.WithField("component", "worker_server")

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				taskLogger(ctx, task).WithError(err).Error("Task failed")
			}),
		},
	)

	return &WorkerServer{
		server:      server,
		log:         logEntry,
		versionRepo: versionRepo,
		keep:        keep,
	}
}

// NewServeMux 注册所有任务处理器。
func NewServeMux(versionRepo repository.VersionRepository, keep int) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(tasks.TypeDocumentVersion, NewVersionRecordHandler(versionRepo))
	mux.Handle(tasks.TypeVersionPrune, NewVersionPruneHandler(versionRepo, keep))
	return mux
}

// Start 运行 Worker Server，应在单独的 goroutine 中调用。
func (ws *WorkerServer) Start() {
	mux := NewServeMux(ws.versionRepo, ws.keep)

	ws.log.Info("Worker server starting...")
	if err := ws.server.Run(mux); err != nil {
		if !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, asynq.ErrServerClosed) {
			ws.log.Errorf("Could not run worker server: %v", err)
		} else {
			ws.log.Info("Worker server stopped.")
		}
	}
}

// Shutdown 优雅地关闭 Worker Server
func (ws *WorkerServer) Shutdown() {
	ws.log.Info("Shutting down worker server...")
	ws.server.Shutdown()
	ws.log.Info("Worker server shut down complete.")
}

// NewPeriodicScheduler 创建周期任务调度器并注册版本清理任务。
func NewPeriodicScheduler(redisOpt asynq.RedisClientOpt, schedule string, keep int, logger *logrus.Logger) (*asynq.Scheduler, error) {
	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{})
	task, err := tasks.NewVersionPruneTask(keep)
	if err != nil {
		return nil, err
	}
	entryID, err := scheduler.Register(schedule, task, asynq.Queue("low"))
	if err != nil {
		return nil, err
	}
	logger.Infof("Periodic version prune task registered with schedule '%s' (EntryID: %s)", schedule, entryID)
	return scheduler, nil
}
