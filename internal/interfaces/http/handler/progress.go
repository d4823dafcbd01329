package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/driftwatch/backend/internal/infrastructure/log"
	wshub "github.com/driftwatch/backend/internal/infrastructure/websocket"
)

// writeWait 单条消息的写超时
const writeWait = 10 * time.Second

// ProgressHandler 进度推送处理器
// 将 HTTP 连接升级为 WebSocket 并挂入进度 Hub
type ProgressHandler struct {
	hub      *wshub.Hub
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewProgressHandler 创建进度推送处理器
func NewProgressHandler(hub *wshub.Hub) *ProgressHandler {
	return &ProgressHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // 本机服务允许所有来源
			},
		},
		logger: log.NewModuleLogger("http", "progress"),
	}
}

// Subscribe 订阅进度事件流
func (h *ProgressHandler) Subscribe(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade connection",
			"error", err,
		)
		return
	}

	client := &wshub.Connection{
		Send: make(chan []byte, 64),
	}
	h.hub.Register(client)

	go h.writeLoop(conn, client)
	go h.readLoop(conn, client)
}

// writeLoop 将 Hub 事件写出到连接
func (h *ProgressHandler) writeLoop(conn *websocket.Conn, client *wshub.Connection) {
	defer conn.Close()

	for data := range client.Send {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.hub.Unregister(client)
			return
		}
	}
}

// readLoop 消费客户端消息以感知连接关闭
func (h *ProgressHandler) readLoop(conn *websocket.Conn, client *wshub.Connection) {
	defer conn.Close()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.hub.Unregister(client)
			return
		}
	}
}
