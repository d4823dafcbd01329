package http

import (
	"context"
	"net/http"
	"time"

	"log/slog"

	"github.com/driftwatch/backend/internal/infrastructure/config"
	"github.com/driftwatch/backend/internal/infrastructure/log"
	"github.com/driftwatch/backend/internal/interfaces/http/handler"
	"github.com/driftwatch/backend/internal/interfaces/http/middleware"
	"github.com/driftwatch/backend/internal/interfaces/mcp"
	"github.com/gin-gonic/gin"
)

// HTTPServer HTTP 服务器
type HTTPServer struct {
	router   *gin.Engine
	httpPort string
	server   *http.Server
	logger   *slog.Logger
}

// NewServer 创建 HTTP 服务器
func NewServer(
	serverCfg *config.ServerConfig,
	divergenceHandler *handler.DivergenceHandler,
	batchHandler *handler.BatchHandler,
	progressHandler *handler.ProgressHandler,
	mcpServer *mcp.MCPServer,
) *HTTPServer {
	router := gin.Default()
	router.Use(middleware.EnsureUTF8Body())

	logger := log.NewModuleLogger("http", "server")

	// 注册路由
	api := router.Group("/api/v1")
	{
		// 漂移分析相关路由
		divergence := api.Group("/divergence")
		{
			divergence.POST("/analyze", divergenceHandler.Analyze)
			divergence.GET("/reports/:conversation_id", divergenceHandler.GetReport)
			divergence.GET("/segments/:conversation_id", divergenceHandler.GetSegments)
		}

		// 片段相关路由
		segments := api.Group("/segments")
		{
			segments.GET("/:segment_id/similar", divergenceHandler.FindSimilar)
			segments.POST("/:segment_id/link", divergenceHandler.LinkSegment)
			segments.GET("/:segment_id/links", divergenceHandler.GetLinks)
		}

		// 批处理相关路由
		batch := api.Group("/batch")
		{
			batch.POST("/backfill", batchHandler.Backfill)
			batch.POST("/enqueue", batchHandler.Enqueue)
			batch.GET("/queue/stats", batchHandler.QueueStats)
			batch.POST("/queue/reset-failed", batchHandler.ResetFailed)
		}
	}

	// 进度事件 WebSocket 端点
	router.GET("/ws/progress", progressHandler.Subscribe)

	// MCP SSE 端点（与 HTTP 服务共用端口）
	if mcpServer != nil {
		router.Any("/mcp/sse", gin.WrapH(mcpServer.GetHandler()))
	}

	// 健康检查
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return &HTTPServer{
		router:   router,
		httpPort: serverCfg.HTTPPort,
		logger:   logger,
	}
}

// Start 启动服务器
func (s *HTTPServer) Start() error {
	s.server = &http.Server{
		Addr:    s.httpPort,
		Handler: s.router,
	}

	s.logger.Info("HTTP server starting",
		"port", s.httpPort,
	)

	return s.server.ListenAndServe()
}

// Shutdown 优雅关闭
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// Stop 停止服务器
func (s *HTTPServer) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Shutdown(ctx)
}
