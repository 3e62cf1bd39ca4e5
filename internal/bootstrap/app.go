package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	httpHandler "collaborative-editor/internal/handler/http"
	wsHandler "collaborative-editor/internal/handler/websocket"
	"collaborative-editor/internal/hub"
	gormpersistence "collaborative-editor/internal/infra/persistence/gorm"
	"collaborative-editor/internal/infra/setup"
	redisstate "collaborative-editor/internal/infra/state/redis"
	"collaborative-editor/internal/middleware"
	"collaborative-editor/internal/repository"
	"collaborative-editor/internal/service"
	"collaborative-editor/internal/tasks"
	"collaborative-editor/internal/worker"
)

// App 包含应用的所有组件和配置
type App struct {
	Config         *Config
	Log            *logrus.Logger
	DB             *gorm.DB
	RedisClient    *redis.Client
	AsynqClient    *asynq.Client
	AsynqServer    *worker.WorkerServer
	AsynqScheduler *asynq.Scheduler
	Hub            *hub.Hub
	Collaboration  *service.CollaborationService
	Persistence    *service.PersistenceScheduler
	HttpServer     *http.Server
}

// NewLogger 按环境创建 logger，并设置为全局 logger。
func NewLogger(cfg *Config) *logrus.Logger {
	log := logrus.New()
	if cfg.AppEnv == "production" {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, ForceColors: true})
	}
	logLevel, _ := logrus.ParseLevel(cfg.LogLevel) // 已被 LoadConfig 验证
	log.SetLevel(logLevel)
	log.SetOutput(os.Stdout)

	// 各组件使用包级别的 logrus，与 App logger 保持一致
	logrus.SetFormatter(log.Formatter)
	logrus.SetLevel(logLevel)
	logrus.SetOutput(os.Stdout)
	return log
}

// NewApp 创建并初始化应用的所有组件
func NewApp() (*App, error) {
	// 1. 加载配置
	cfg, err := LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return nil, err
	}

	// 2. 初始化 Logger
	log := NewLogger(cfg)
	log.Infof("Logger initialized (Level: %s, Env: %s)", log.GetLevel().String(), cfg.AppEnv)

	// 3. 初始化基础设施
	log.Info("Initializing infrastructure...")
	db, err := setup.InitDB(cfg.DB)
	if err != nil {
		return nil, fmt.Errorf("failed to init DB: %w", err)
	}
	if err := setup.MigrateDB(db); err != nil {
		return nil, fmt.Errorf("failed to migrate DB: %w", err)
	}
	log.WithField("driver", cfg.DB.Driver).Info("Database initialized and migrated")

	redisClient, err := setup.InitRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("failed to init Redis: %w", err)
	}
	log.Info("Redis client initialized")

	redisClientOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
	asynqClient := asynq.NewClient(redisClientOpt)
	log.Info("Asynq client initialized")

	// 4. 初始化 Repositories
	projectRepo := gormpersistence.NewGormProjectRepository(db)
	versionRepo := gormpersistence.NewGormVersionRepository(db)
	stateRepo := redisstate.NewRedisStateRepository(redisClient, cfg.KeyPrefix)

	// 5. 初始化协作引擎和 Services
	documentStore := service.NewDocumentStore(projectRepo, stateRepo, cfg.DocumentCacheTTL)
	versionRecorder := tasks.NewVersionEnqueuer(asynqClient, "default")
	collab, persistence := service.NewEngine(documentStore, cfg.FlushInterval, versionRecorder)
	projectService := service.NewProjectService(projectRepo, versionRepo, collab)
	log.Info("Services initialized")

	// 6. 初始化 Hub
	hubInstance := hub.NewHub(collab, hub.Options{
		MessagesPerSecond: cfg.WSMessagesPerSecond,
		Burst:             cfg.WSBurst,
		Authorizer:        projectService,
	})

	// 7. 初始化 Worker Server 和周期任务
	workerServer := worker.NewWorkerServer(redisClientOpt, versionRepo, cfg.VersionKeep, log)
	scheduler, err := worker.NewPeriodicScheduler(redisClientOpt, cfg.VersionPruneCron, cfg.VersionKeep, log)
	if err != nil {
		return nil, fmt.Errorf("failed to register periodic tasks: %w", err)
	}

	// 8. 路由
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}
	router := NewRouter(cfg, log, Handlers{
		Projects: httpHandler.NewProjectHandler(projectService),
		Stats: httpHandler.NewStatsHandler(collab, hubInstance, map[string]httpHandler.HealthCheck{
			"database": func(ctx context.Context) error {
				sqlDB, err := db.DB()
				if err != nil {
					return err
				}
				return sqlDB.PingContext(ctx)
			},
			"redis": func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		}),
		WebSocket: wsHandler.NewWebSocketHandler(hubInstance, cfg.CORSAllowedOrigin),
	}, stateRepo)
	log.Info("Router setup complete")

	httpServer := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		Config:         cfg,
		Log:            log,
		DB:             db,
		RedisClient:    redisClient,
		AsynqClient:    asynqClient,
		AsynqServer:    workerServer,
		AsynqScheduler: scheduler,
		Hub:            hubInstance,
		Collaboration:  collab,
		Persistence:    persistence,
		HttpServer:     httpServer,
	}, nil
}

// Handlers 是路由需要的所有处理器
type Handlers struct {
	Projects  *httpHandler.ProjectHandler
	Stats     *httpHandler.StatsHandler
	WebSocket *wsHandler.WebSocketHandler
}

// NewRouter 创建 Gin Engine 并注册所有路由。
func NewRouter(cfg *Config, log *logrus.Logger, h Handlers, stateRepo repository.StateRepository) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(log))
	router.Use(CORSMiddleware(cfg.CORSAllowedOrigin))

	router.GET("/ping", h.Stats.Ping)
	router.GET("/health", h.Stats.Health)

	// WebSocket 连接不计入 HTTP 限流，连接内有单独的令牌桶
	router.GET("/ws", middleware.OptionalAuth(cfg.JWTSecret), h.WebSocket.HandleConnection)

	api := router.Group("/api")
	api.Use(middleware.RateLimit(stateRepo, cfg.RateLimitMax, cfg.RateLimitWindow))
	api.GET("/stats", h.Stats.Stats)

	projects := api.Group("/projects", middleware.Auth(cfg.JWTSecret))
	{
		projects.POST("", h.Projects.CreateProject)
		projects.GET("", h.Projects.ListProjects)
		projects.GET("/:id", h.Projects.GetProject)
		projects.PUT("/:id", h.Projects.UpdateProject)
		projects.GET("/:id/versions", h.Projects.ListVersions)
	}
	return router
}

// Start 启动应用的所有后台 Goroutine 和 HTTP 服务器
func (a *App) Start() {
	a.Log.Info("Starting application background routines...")
	go a.Hub.Run()
	a.Persistence.Start()
	go a.AsynqServer.Start()

	// Scheduler.Run 会自行监听退出信号，这里用 Start，由 Shutdown 统一关闭
	if err := a.AsynqScheduler.Start(); err != nil {
		a.Log.Errorf("Asynq scheduler failed to start: %v", err)
	} else {
		a.Log.Info("Asynq scheduler started")
	}

	go func() {
		a.Log.Infof("HTTP server starting to listen on %s", a.HttpServer.Addr)
		if err := a.HttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Log.Fatalf("Failed to start HTTP server: %v", err)
		}
		a.Log.Info("HTTP server stopped listening.")
	}()
}

// Shutdown 优雅地关闭应用。
// 顺序：停止接收请求，断开连接，停止周期刷写并做最后一次写入，再关闭任务队列和存储连接。
func (a *App) Shutdown() {
	a.Log.Info("Shutting down application...")

	// 1. 停止 HTTP 服务器
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.HttpServer.Shutdown(ctx); err != nil {
		a.Log.Errorf("Error shutting down HTTP server: %v", err)
	} else {
		a.Log.Info("HTTP server shut down gracefully.")
	}

	// 2. 关闭所有 WebSocket 连接，等待正在处理的消息完成
	if !a.Hub.Stop() {
		a.Log.Warn("Some websocket read loops did not exit before the final flush")
	}

	// 3. 停止周期刷写，写入剩余的脏房间
	a.Persistence.Stop()
	flushCtx, flushCancel := context.WithTimeout(context.Background(), a.Config.ShutdownFlushTimeout)
	defer flushCancel()
	stats := a.Persistence.FlushCycle(flushCtx)
	a.Log.WithFields(logrus.Fields{"written": stats.Written, "failed": stats.Failed}).Info("Final flush completed")
	if stats.Failed > 0 {
		a.Log.Error("Some documents could not be persisted before shutdown")
	}

	// 4. 停止 Worker 和周期任务
	a.AsynqScheduler.Shutdown()
	a.AsynqServer.Shutdown()

	// 5. 关闭客户端连接
	if err := a.AsynqClient.Close(); err != nil {
		a.Log.Errorf("Error closing Asynq client: %v", err)
	}
	if err := a.RedisClient.Close(); err != nil {
		a.Log.Errorf("Error closing Redis connection: %v", err)
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			a.Log.Errorf("Error closing database connection: %v", err)
		}
	}

	a.Log.Info("Application shutdown complete.")
}

// CORSMiddleware 设置跨域响应头，OPTIONS 预检直接返回。
func CORSMiddleware(allowedOrigin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// LoggerMiddleware 创建一个 Gin 中间件用于记录请求日志
func LoggerMiddleware(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		c.Next()
		latency := time.Since(startTime)
		statusCode := c.Writer.Status()
		path := c.Request.URL.Path
		if c.Request.URL.RawQuery != "" && path != "/ws" {
			path = path + "?" + c.Request.URL.RawQuery
		}
		errorMessage := c.Errors.ByType(gin.ErrorTypePrivate).String()

		entry := log.WithFields(logrus.Fields{
			"status_code": statusCode,
			"latency_ms":  latency.Milliseconds(),
			"client_ip":   c.ClientIP(),
			"method":      c.Request.Method,
			"path":        path,
		})

		switch {
		case errorMessage != "":
			entry.Error(errorMessage)
		case statusCode >= 500:
			entry.Error("Server error")
		case statusCode >= 400:
			entry.Warn("Client error")
		default:
			entry.Info("Request handled")
		}
	}
}
