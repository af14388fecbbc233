package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"bondrotor/broker"
	"bondrotor/config"
	"bondrotor/database"
	"bondrotor/logger"
	"bondrotor/scheduler"
	"bondrotor/source"
	"bondrotor/storage"
)

// Server 运维 API 服务
// 只读查询 + 手动触发调仓，不承担任何交易决策
type Server struct {
	cfg     *config.Config
	db      database.Database
	gateway broker.Gateway
	src     source.Source
	sched   *scheduler.Scheduler
	storage *storage.StorageService

	server    *http.Server
	startedAt time.Time
}

// NewServer 创建运维 API 服务，Web 未启用时返回 nil
func NewServer(cfg *config.Config, db database.Database, gateway broker.Gateway,
	src source.Source, sched *scheduler.Scheduler, ss *storage.StorageService) *Server {
	if !cfg.Web.Enabled {
		return nil
	}

	if cfg.System.LogLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:       cfg,
		db:        db,
		gateway:   gateway,
		src:       src,
		sched:     sched,
		storage:   ss,
		startedAt: time.Now(),
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(GinLoggerMiddleware(cfg.System.LogLevel == "debug"))
	r.Use(I18nMiddleware())
	s.setupRoutes(r)

	addr := fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// setupRoutes 注册路由
func (s *Server) setupRoutes(r *gin.Engine) {
	// Prometheus 抓取端点，不走 API 认证
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/health", s.getHealth)

	api := r.Group("/api")
	api.Use(apiKeyMiddleware(s.cfg.Web.APIKey))
	{
		api.GET("/status", s.getStatus)

		api.POST("/rebalance/trigger", s.triggerRebalance)
		api.GET("/runs", s.getRuns)
		api.GET("/runs/:run_id", s.getRunByID)

		api.GET("/positions", s.getPositions)
		api.GET("/asset", s.getAsset)
		api.GET("/orders", s.getOrders)
		api.GET("/refills", s.getRefills)

		api.GET("/strategies", s.getStrategies)
		api.GET("/strategies/:id/histories", s.getHistories)

		api.GET("/events", s.getEvents)
		api.GET("/events/stats", s.getEventStats)

		api.GET("/logs", s.getLogs)
		api.GET("/logs/stats", s.getLogStats)
		api.POST("/logs/clean", s.cleanLogs)

		api.GET("/system/metrics", s.getSystemMetrics)
		api.GET("/system/metrics/current", s.getCurrentSystemMetrics)
		api.GET("/system/metrics/daily", s.getDailySystemMetrics)
	}

	// WebSocket 日志推送（API 密钥经 query 参数传入）
	r.GET("/ws", apiKeyMiddleware(s.cfg.Web.APIKey), s.handleWebSocket)
}

// Start 启动服务，context 取消时优雅关闭
func (s *Server) Start(ctx context.Context) {
	if s == nil {
		return
	}
	go func() {
		logger.Info("🌐 运维 API 启动在 http://%s", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("❌ 运维 API 启动失败: %v", err)
		}
	}()
	go func() {
		<-ctx.Done()
		s.Stop()
	}()
}

// Stop 关闭服务
func (s *Server) Stop() {
	if s == nil || s.server == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		logger.Error("❌ 运维 API 关闭失败: %v", err)
	} else {
		logger.Info("✅ 运维 API 已关闭")
	}
}

// getHealth 存活探针，不需要认证
func (s *Server) getHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(s.startedAt).Round(time.Second).String(),
	})
}
