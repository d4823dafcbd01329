package mcp

import (
	"context"
	"errors"
	"fmt"

	domainDiv "github.com/driftwatch/backend/internal/domain/divergence"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// AnalyzeConversationInput 会话分析工具输入
type AnalyzeConversationInput struct {
	ConversationID string `json:"conversation_id" jsonschema:"会话 ID"`
}

// AnalyzeConversationOutput 会话分析工具输出
type AnalyzeConversationOutput struct {
	Found          bool           `json:"found" jsonschema:"会话是否存在且有消息"`
	OverallScore   float64        `json:"overall_score,omitempty" jsonschema:"综合漂移得分，[0,1]"`
	ShouldSplit    bool           `json:"should_split,omitempty" jsonschema:"是否建议拆分会话"`
	Interpretation string         `json:"interpretation,omitempty" jsonschema:"人类可读的得分解释"`
	NumSegments    int            `json:"num_segments,omitempty" jsonschema:"片段数量"`
	SplitPoints    []int          `json:"split_points,omitempty" jsonschema:"建议拆分位置（消息索引）"`
	Segments       []SegmentBrief `json:"segments,omitempty" jsonschema:"片段列表"`
}

// SegmentBrief 片段摘要信息
type SegmentBrief struct {
	SegmentID       string  `json:"segment_id" jsonschema:"片段 ID"`
	StartIndex      int     `json:"start_index" jsonschema:"起始消息索引（含）"`
	EndIndex        int     `json:"end_index" jsonschema:"结束消息索引（含）"`
	TopicLabel      string  `json:"topic_label,omitempty" jsonschema:"主题标签"`
	Summary         string  `json:"summary,omitempty" jsonschema:"片段摘要"`
	DivergenceScore float64 `json:"divergence_score" jsonschema:"片段内平均漂移"`
	IsRoot          bool    `json:"is_root" jsonschema:"是否为根片段"`
}

// analyzeConversationTool 分析单个会话工具
func (s *MCPServer) analyzeConversationTool(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input AnalyzeConversationInput,
) (*mcp.CallToolResult, AnalyzeConversationOutput, error) {
	if input.ConversationID == "" {
		return nil, AnalyzeConversationOutput{}, fmt.Errorf("conversation_id is required")
	}

	result, err := s.analysisService.AnalyzeConversation(ctx, input.ConversationID)
	if err != nil {
		if errors.Is(err, domainDiv.ErrProviderUnavailable) {
			return nil, AnalyzeConversationOutput{}, fmt.Errorf("analysis providers unavailable: %w", err)
		}
		return nil, AnalyzeConversationOutput{}, fmt.Errorf("analyze conversation: %w", err)
	}
	if result == nil {
		return nil, AnalyzeConversationOutput{Found: false}, nil
	}

	output := AnalyzeConversationOutput{
		Found:          true,
		OverallScore:   result.Report.OverallScore,
		ShouldSplit:    result.Report.ShouldSplit,
		Interpretation: result.Report.Interpretation,
		NumSegments:    result.Report.NumSegments,
		SplitPoints:    result.Report.SuggestedSplitPoints,
		Segments:       toSegmentBriefs(result.Segments),
	}
	return nil, output, nil
}

// GetReportInput 报告查询工具输入
type GetReportInput struct {
	ConversationID string `json:"conversation_id" jsonschema:"会话 ID"`
}

// GetReportOutput 报告查询工具输出
type GetReportOutput struct {
	Found  bool          `json:"found" jsonschema:"是否已有报告"`
	Report *ReportDetail `json:"report,omitempty" jsonschema:"漂移报告"`
}

// ReportDetail 漂移报告详情
type ReportDetail struct {
	ConversationID       string  `json:"conversation_id" jsonschema:"会话 ID"`
	OverallScore         float64 `json:"overall_score" jsonschema:"综合漂移得分"`
	EmbeddingDriftScore  float64 `json:"embedding_drift_score" jsonschema:"向量漂移分量"`
	TopicEntropyScore    float64 `json:"topic_entropy_score" jsonschema:"主题熵分量"`
	TopicTransitionScore float64 `json:"topic_transition_score" jsonschema:"主题切换分量"`
	LLMRelevanceScore    float64 `json:"llm_relevance_score" jsonschema:"LLM 相关性分量，未启用 judge 时为 -1"`
	NumSegments          int     `json:"num_segments" jsonschema:"片段数量"`
	ShouldSplit          bool    `json:"should_split" jsonschema:"是否建议拆分"`
	SplitPoints          []int   `json:"split_points,omitempty" jsonschema:"建议拆分位置"`
	Interpretation       string  `json:"interpretation" jsonschema:"人类可读解释"`
	ComputedAt           string  `json:"computed_at" jsonschema:"计算时间（RFC3339）"`
}

// getDivergenceReportTool 查询已存储的漂移报告工具
func (s *MCPServer) getDivergenceReportTool(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input GetReportInput,
) (*mcp.CallToolResult, GetReportOutput, error) {
	if input.ConversationID == "" {
		return nil, GetReportOutput{}, fmt.Errorf("conversation_id is required")
	}

	report, err := s.analysisService.GetReport(input.ConversationID)
	if err != nil {
		return nil, GetReportOutput{}, fmt.Errorf("get report: %w", err)
	}
	if report == nil {
		return nil, GetReportOutput{Found: false}, nil
	}

	return nil, GetReportOutput{
		Found:  true,
		Report: toReportDetail(report),
	}, nil
}

// GetSegmentsInput 片段列表工具输入
type GetSegmentsInput struct {
	ConversationID string `json:"conversation_id" jsonschema:"会话 ID"`
}

// GetSegmentsOutput 片段列表工具输出
type GetSegmentsOutput struct {
	ConversationID string         `json:"conversation_id" jsonschema:"会话 ID"`
	Segments       []SegmentBrief `json:"segments" jsonschema:"片段列表（按起始索引升序）"`
	TotalCount     int            `json:"total_count" jsonschema:"片段总数"`
}

// getSegmentsTool 获取会话片段列表工具
func (s *MCPServer) getSegmentsTool(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input GetSegmentsInput,
) (*mcp.CallToolResult, GetSegmentsOutput, error) {
	if input.ConversationID == "" {
		return nil, GetSegmentsOutput{}, fmt.Errorf("conversation_id is required")
	}

	segments, err := s.analysisService.GetSegments(input.ConversationID)
	if err != nil {
		return nil, GetSegmentsOutput{}, fmt.Errorf("get segments: %w", err)
	}

	briefs := toSegmentBriefs(segments)
	return nil, GetSegmentsOutput{
		ConversationID: input.ConversationID,
		Segments:       briefs,
		TotalCount:     len(briefs),
	}, nil
}

// FindSimilarInput 相似片段检索工具输入
type FindSimilarInput struct {
	SegmentID               string  `json:"segment_id" jsonschema:"源片段 ID"`
	Limit                   int     `json:"limit,omitempty" jsonschema:"最大返回数量，默认 10"`
	MinSimilarity           float64 `json:"min_similarity,omitempty" jsonschema:"最小余弦相似度，默认 0.3"`
	ExcludeSameConversation *bool   `json:"exclude_same_conversation,omitempty" jsonschema:"是否排除同会话片段，默认 true"`
}

// FindSimilarOutput 相似片段检索工具输出
type FindSimilarOutput struct {
	SegmentID string           `json:"segment_id" jsonschema:"源片段 ID"`
	Results   []SimilarSegment `json:"results" jsonschema:"相似片段列表（按相似度降序）"`
}

// SimilarSegment 相似片段结果
type SimilarSegment struct {
	SegmentBrief
	ConversationID string  `json:"conversation_id" jsonschema:"所属会话 ID"`
	Similarity     float64 `json:"similarity" jsonschema:"与源片段的余弦相似度"`
}

// findSimilarSegmentsTool 跨会话相似片段检索工具
func (s *MCPServer) findSimilarSegmentsTool(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input FindSimilarInput,
) (*mcp.CallToolResult, FindSimilarOutput, error) {
	if input.SegmentID == "" {
		return nil, FindSimilarOutput{}, fmt.Errorf("segment_id is required")
	}

	limit := input.Limit
	if limit <= 0 {
		limit = 10
	}
	minSimilarity := input.MinSimilarity
	if minSimilarity <= 0 {
		minSimilarity = 0.3
	}
	excludeSame := true
	if input.ExcludeSameConversation != nil {
		excludeSame = *input.ExcludeSameConversation
	}

	results, err := s.linker.FindSimilar(ctx, input.SegmentID, minSimilarity, limit, excludeSame)
	if err != nil {
		if errors.Is(err, domainDiv.ErrSegmentNotFound) {
			return nil, FindSimilarOutput{}, fmt.Errorf("segment not found: %s", input.SegmentID)
		}
		return nil, FindSimilarOutput{}, fmt.Errorf("find similar segments: %w", err)
	}

	output := FindSimilarOutput{
		SegmentID: input.SegmentID,
		Results:   make([]SimilarSegment, 0, len(results)),
	}
	for _, r := range results {
		output.Results = append(output.Results, SimilarSegment{
			SegmentBrief:   toSegmentBrief(r.Segment),
			ConversationID: r.Segment.ConversationID,
			Similarity:     r.Similarity,
		})
	}
	return nil, output, nil
}

// EnqueueAnalysisInput 入队分析工具输入
type EnqueueAnalysisInput struct {
	ConversationID string `json:"conversation_id" jsonschema:"会话 ID"`
	Priority       int    `json:"priority,omitempty" jsonschema:"优先级，数值越大越优先，默认 0"`
}

// EnqueueAnalysisOutput 入队分析工具输出
type EnqueueAnalysisOutput struct {
	Success bool   `json:"success" jsonschema:"是否入队成功"`
	Message string `json:"message" jsonschema:"结果消息"`
}

// enqueueAnalysisTool 会话后台分析入队工具
func (s *MCPServer) enqueueAnalysisTool(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input EnqueueAnalysisInput,
) (*mcp.CallToolResult, EnqueueAnalysisOutput, error) {
	if input.ConversationID == "" {
		return nil, EnqueueAnalysisOutput{}, fmt.Errorf("conversation_id is required")
	}

	if err := s.processor.Enqueue(input.ConversationID, input.Priority); err != nil {
		return nil, EnqueueAnalysisOutput{}, fmt.Errorf("enqueue analysis: %w", err)
	}

	return nil, EnqueueAnalysisOutput{
		Success: true,
		Message: fmt.Sprintf("conversation %s queued for analysis", input.ConversationID),
	}, nil
}

// QueueStatsInput 队列统计工具输入（空输入）
type QueueStatsInput struct{}

// QueueStatsOutput 队列统计工具输出
type QueueStatsOutput struct {
	PendingCount    int  `json:"pending_count" jsonschema:"待处理数量"`
	ProcessingCount int  `json:"processing_count" jsonschema:"处理中数量"`
	CompletedCount  int  `json:"completed_count" jsonschema:"已完成数量"`
	FailedCount     int  `json:"failed_count" jsonschema:"失败数量"`
	WorkerRunning   bool `json:"worker_running" jsonschema:"后台处理器是否运行中"`
}

// getQueueStatsTool 分析队列统计工具
func (s *MCPServer) getQueueStatsTool(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input QueueStatsInput,
) (*mcp.CallToolResult, QueueStatsOutput, error) {
	stats, err := s.queueRepo.Stats()
	if err != nil {
		return nil, QueueStatsOutput{}, fmt.Errorf("queue stats: %w", err)
	}

	return nil, QueueStatsOutput{
		PendingCount:    stats.PendingCount,
		ProcessingCount: stats.ProcessingCount,
		CompletedCount:  stats.CompletedCount,
		FailedCount:     stats.FailedCount,
		WorkerRunning:   s.processor.IsRunning(),
	}, nil
}

func toSegmentBrief(seg *domainDiv.Segment) SegmentBrief {
	return SegmentBrief{
		SegmentID:       seg.ID,
		StartIndex:      seg.StartIndex,
		EndIndex:        seg.EndIndex,
		TopicLabel:      seg.TopicLabel,
		Summary:         seg.Summary,
		DivergenceScore: seg.DivergenceScore,
		IsRoot:          seg.IsRoot(),
	}
}

func toSegmentBriefs(segments []*domainDiv.Segment) []SegmentBrief {
	briefs := make([]SegmentBrief, 0, len(segments))
	for _, seg := range segments {
		briefs = append(briefs, toSegmentBrief(seg))
	}
	return briefs
}

func toReportDetail(report *domainDiv.DivergenceReport) *ReportDetail {
	return &ReportDetail{
		ConversationID:       report.ConversationID,
		OverallScore:         report.OverallScore,
		EmbeddingDriftScore:  report.EmbeddingDriftScore,
		TopicEntropyScore:    report.TopicEntropyScore,
		TopicTransitionScore: report.TopicTransitionScore,
		LLMRelevanceScore:    report.LLMRelevanceScore,
		NumSegments:          report.NumSegments,
		ShouldSplit:          report.ShouldSplit,
		SplitPoints:          report.SuggestedSplitPoints,
		Interpretation:       report.Interpretation,
		ComputedAt:           report.ComputedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}
