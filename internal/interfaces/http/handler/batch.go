package handler

import (
	"net/http"

	appDiv "github.com/driftwatch/backend/internal/application/divergence"
	domainDiv "github.com/driftwatch/backend/internal/domain/divergence"
	"github.com/driftwatch/backend/internal/interfaces/http/response"
	"github.com/gin-gonic/gin"
)

// BatchHandler 批处理处理器
type BatchHandler struct {
	processor *appDiv.BatchProcessor
	queue     domainDiv.QueueRepository
}

// NewBatchHandler 创建批处理处理器
func NewBatchHandler(processor *appDiv.BatchProcessor, queue domainDiv.QueueRepository) *BatchHandler {
	return &BatchHandler{
		processor: processor,
		queue:     queue,
	}
}

// BackfillRequest 回填请求
type BackfillRequest struct {
	MaxConversations int  `json:"max_conversations"`
	SkipExisting     bool `json:"skip_existing"`
}

// Backfill 对候选会话执行全量回填
// 同步执行，返回 processed/skipped/errors 计数
func (h *BatchHandler) Backfill(c *gin.Context) {
	var req BackfillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		// 空请求体按默认参数处理
		req = BackfillRequest{SkipExisting: true}
	}

	result, err := h.processor.Backfill(c.Request.Context(), appDiv.BackfillOptions{
		MaxConversations: req.MaxConversations,
		SkipExisting:     req.SkipExisting,
	})
	if err != nil {
		response.ErrorWithDetail(c, http.StatusInternalServerError, 800003, "回填失败", err.Error())
		return
	}

	response.Success(c, result)
}

// EnqueueRequest 入队请求
type EnqueueRequest struct {
	ConversationID string `json:"conversation_id" binding:"required"`
	Priority       int    `json:"priority"`
}

// Enqueue 将会话加入分析队列
func (h *BatchHandler) Enqueue(c *gin.Context) {
	var req EnqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, 800001, "conversation_id 不能为空")
		return
	}

	if err := h.processor.Enqueue(req.ConversationID, req.Priority); err != nil {
		response.ErrorWithDetail(c, http.StatusInternalServerError, 800003, "入队失败", err.Error())
		return
	}

	response.Success(c, gin.H{"queued": true})
}

// QueueStats 查询队列统计
func (h *BatchHandler) QueueStats(c *gin.Context) {
	stats, err := h.queue.Stats()
	if err != nil {
		response.ErrorWithDetail(c, http.StatusInternalServerError, 800003, "查询队列统计失败", err.Error())
		return
	}

	response.Success(c, gin.H{
		"stats":          stats,
		"worker_running": h.processor.IsRunning(),
	})
}

// ResetFailed 重置失败的队列条目
func (h *BatchHandler) ResetFailed(c *gin.Context) {
	count, err := h.queue.ResetFailed()
	if err != nil {
		response.ErrorWithDetail(c, http.StatusInternalServerError, 800003, "重置失败条目出错", err.Error())
		return
	}

	response.Success(c, gin.H{"reset": count})
}
