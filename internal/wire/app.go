package wire

import (
	"context"
	"database/sql"
	"time"

	"log/slog"

	appDiv "github.com/driftwatch/backend/internal/application/divergence"
	"github.com/driftwatch/backend/internal/infrastructure/config"
	applog "github.com/driftwatch/backend/internal/infrastructure/log"
	"github.com/driftwatch/backend/internal/infrastructure/watcher"
	"github.com/driftwatch/backend/internal/infrastructure/websocket"
	"github.com/driftwatch/backend/internal/interfaces"
)

// stopTimeout 后台处理器优雅退出等待时间
const stopTimeout = 10 * time.Second

// App 应用主结构，组合所有服务
type App struct {
	HTTPServer *interfaces.HTTPServer
	MCPServer  *interfaces.MCPServer
	wsHub      *websocket.Hub
	processor  *appDiv.BatchProcessor
	dbWatcher  *watcher.DBWatcher
	db         *sql.DB
	logger     *slog.Logger
}

// NewApp 创建应用实例
func NewApp(
	httpServer *interfaces.HTTPServer,
	mcpServer *interfaces.MCPServer,
	wsHub *websocket.Hub,
	processor *appDiv.BatchProcessor,
	sourceCfg *config.SourceConfig,
	db *sql.DB,
) *App {
	logger := applog.NewModuleLogger("app", "main")

	// 初始化会话库文件监听器（可选）
	// 会话库文件有写入时唤醒批处理器做增量扫描
	var dbWatcher *watcher.DBWatcher
	if sourceCfg.WatchEnabled && sourceCfg.ConversationDBPath != "" {
		w, err := watcher.NewDBWatcher(
			sourceCfg.ConversationDBPath,
			watcher.DefaultDebounceDelay,
			processor.TriggerScan,
		)
		if err != nil {
			logger.Error("Failed to create conversation db watcher", "error", err)
		} else {
			dbWatcher = w
		}
	}

	return &App{
		HTTPServer: httpServer,
		MCPServer:  mcpServer,
		wsHub:      wsHub,
		processor:  processor,
		dbWatcher:  dbWatcher,
		db:         db,
		logger:     logger,
	}
}

// Start 启动所有服务
func (a *App) Start() error {
	a.logger.Info("Starting DriftWatch backend application")

	// 启动 WebSocket Hub
	a.wsHub.Start()

	// 启动后台批处理器
	if err := a.processor.StartBackground(context.Background()); err != nil {
		a.logger.Error("Failed to start batch processor",
			"error", err,
		)
	}

	// 启动会话库文件监听
	if a.dbWatcher != nil {
		if err := a.dbWatcher.Start(); err != nil {
			a.logger.Error("Failed to start conversation db watcher",
				"error", err,
			)
		} else {
			a.logger.Info("Conversation db watcher started")
		}
	}

	// 启动 HTTP 服务器（goroutine）
	go func() {
		if err := a.HTTPServer.Start(); err != nil {
			a.logger.Error("Failed to start HTTP server",
				"error", err,
			)
		}
	}()

	// MCP 服务器通过 HTTP Handler 提供服务，不需要单独启动
	// 已在 HTTP 服务器中注册 /mcp/sse 端点
	if err := a.MCPServer.Start(); err != nil {
		a.logger.Error("Failed to start MCP server",
			"error", err,
		)
	}

	a.logger.Info("DriftWatch backend application started successfully")
	return nil
}

// Stop 停止所有服务
func (a *App) Stop() error {
	a.logger.Info("Stopping DriftWatch backend application")

	// 停止文件监听器
	if a.dbWatcher != nil {
		a.dbWatcher.Stop()
		a.logger.Info("Conversation db watcher stopped")
	}

	// 停止后台批处理器（等待当前会话处理完成）
	if err := a.processor.StopBackground(stopTimeout); err != nil {
		a.logger.Error("Failed to stop batch processor",
			"error", err,
		)
	}

	if err := a.HTTPServer.Stop(); err != nil {
		a.logger.Error("Failed to stop HTTP server",
			"error", err,
		)
		return err
	}
	if err := a.MCPServer.Stop(); err != nil {
		a.logger.Error("Failed to stop MCP server",
			"error", err,
		)
		return err
	}

	// 关闭数据库连接
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Error("Failed to close database connection",
				"error", err,
			)
			return err
		}
	}

	a.logger.Info("DriftWatch backend application stopped successfully")
	return nil
}
