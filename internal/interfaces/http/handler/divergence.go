package handler

import (
	"errors"
	"net/http"
	"strconv"

	appDiv "github.com/driftwatch/backend/internal/application/divergence"
	domainDiv "github.com/driftwatch/backend/internal/domain/divergence"
	"github.com/driftwatch/backend/internal/interfaces/http/response"
	"github.com/gin-gonic/gin"
)

// DivergenceHandler 漂移分析处理器
type DivergenceHandler struct {
	service *appDiv.AnalysisService
	linker  *appDiv.Linker
}

// NewDivergenceHandler 创建漂移分析处理器
func NewDivergenceHandler(service *appDiv.AnalysisService, linker *appDiv.Linker) *DivergenceHandler {
	return &DivergenceHandler{
		service: service,
		linker:  linker,
	}
}

// AnalyzeRequest 分析请求
type AnalyzeRequest struct {
	ConversationID string `json:"conversation_id" binding:"required"`
}

// Analyze 分析单个会话并返回报告与片段
func (h *DivergenceHandler) Analyze(c *gin.Context) {
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, 800001, "conversation_id 不能为空")
		return
	}

	result, err := h.service.AnalyzeConversation(c.Request.Context(), req.ConversationID)
	if err != nil {
		if errors.Is(err, domainDiv.ErrProviderUnavailable) {
			response.ErrorWithDetail(c, http.StatusServiceUnavailable, 800002, "分析服务不可用", err.Error())
			return
		}
		response.ErrorWithDetail(c, http.StatusInternalServerError, 800003, "分析失败", err.Error())
		return
	}
	if result == nil {
		response.Error(c, http.StatusNotFound, 800004, "会话不存在或没有消息")
		return
	}

	response.Success(c, gin.H{
		"report":   result.Report,
		"segments": result.Segments,
	})
}

// GetReport 获取会话漂移报告
func (h *DivergenceHandler) GetReport(c *gin.Context) {
	conversationID := c.Param("conversation_id")

	report, err := h.service.GetReport(conversationID)
	if err != nil {
		response.ErrorWithDetail(c, http.StatusInternalServerError, 800003, "查询报告失败", err.Error())
		return
	}
	if report == nil {
		response.Error(c, http.StatusNotFound, 800004, "该会话尚未分析")
		return
	}

	response.Success(c, report)
}

// GetSegments 获取会话片段列表
func (h *DivergenceHandler) GetSegments(c *gin.Context) {
	conversationID := c.Param("conversation_id")

	segments, err := h.service.GetSegments(conversationID)
	if err != nil {
		response.ErrorWithDetail(c, http.StatusInternalServerError, 800003, "查询片段失败", err.Error())
		return
	}

	response.Success(c, segments)
}

// FindSimilar 检索相似片段
func (h *DivergenceHandler) FindSimilar(c *gin.Context) {
	segmentID := c.Param("segment_id")

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	minSimilarity, _ := strconv.ParseFloat(c.DefaultQuery("min_similarity", "0.3"), 64)
	excludeSame := c.DefaultQuery("exclude_same_conversation", "true") == "true"

	results, err := h.linker.FindSimilar(c.Request.Context(), segmentID, minSimilarity, limit, excludeSame)
	if err != nil {
		if errors.Is(err, domainDiv.ErrSegmentNotFound) {
			response.Error(c, http.StatusNotFound, 800004, "片段不存在")
			return
		}
		response.ErrorWithDetail(c, http.StatusInternalServerError, 800003, "相似度检索失败", err.Error())
		return
	}

	response.Success(c, results)
}

// LinkSegment 为片段推断并保存跨会话链接
func (h *DivergenceHandler) LinkSegment(c *gin.Context) {
	segmentID := c.Param("segment_id")

	link, err := h.linker.LinkSegment(c.Request.Context(), segmentID)
	if err != nil {
		if errors.Is(err, domainDiv.ErrSegmentNotFound) {
			response.Error(c, http.StatusNotFound, 800004, "片段不存在")
			return
		}
		response.ErrorWithDetail(c, http.StatusInternalServerError, 800003, "建立链接失败", err.Error())
		return
	}
	if link == nil {
		response.Success(c, gin.H{"linked": false})
		return
	}

	response.Success(c, gin.H{
		"linked": true,
		"link":   link,
	})
}

// GetLinks 获取片段的出边链接
func (h *DivergenceHandler) GetLinks(c *gin.Context) {
	segmentID := c.Param("segment_id")

	links, err := h.linker.GetLinks(segmentID)
	if err != nil {
		response.ErrorWithDetail(c, http.StatusInternalServerError, 800003, "查询链接失败", err.Error())
		return
	}

	response.Success(c, links)
}
