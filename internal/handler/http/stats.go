package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"collaborative-editor/internal/service"
)

// StatsSource 提供协作引擎的运行状态。
type StatsSource interface {
	Stats() service.Stats
}

// ConnectionCounter 提供当前 WebSocket 连接数。
type ConnectionCounter interface {
	ClientCount() int
}

// HealthCheck 检查一个依赖是否可用。
type HealthCheck func(ctx context.Context) error

// StatsHandler 提供健康检查和运行统计
type StatsHandler struct {
	stats       StatsSource
	connections ConnectionCounter
	checks      map[string]HealthCheck
}

// NewStatsHandler 创建 StatsHandler 实例。checks 按名称列出需要探测的依赖。
func NewStatsHandler(stats StatsSource, connections ConnectionCounter, checks map[string]HealthCheck) *StatsHandler {
	if stats == nil {
		panic("StatsSource cannot be nil for StatsHandler")
	}
	return &StatsHandler{stats: stats, connections: connections, checks: checks}
}

// Ping 处理 GET /ping
func (h *StatsHandler) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"message": "pong"})
}

// Health 处理 GET /health，任一依赖不可用时返回 503。
func (h *StatsHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	deps := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			logrus.WithError(err).WithField("dependency", name).Warn("Health check failed")
			deps[name] = "down"
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "up"
	}
	state := "ok"
	if status != http.StatusOK {
		state = "degraded"
	}
	c.JSON(status, gin.H{"status": state, "dependencies": deps})
}

// Stats 处理 GET /api/stats
func (h *StatsHandler) Stats(c *gin.Context) {
	stats := h.stats.Stats()
	connections := 0
	if h.connections != nil {
		connections = h.connections.ClientCount()
	}
	c.JSON(http.StatusOK, gin.H{
		"rooms":       stats.Rooms,
		"roomCount":   len(stats.Rooms),
		"sessions":    stats.Sessions,
		"connections": connections,
		"persistence": stats.Scheduler,
	})
}
