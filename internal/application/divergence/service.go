package divergence

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/driftwatch/backend/internal/domain/conversation"
	domainDiv "github.com/driftwatch/backend/internal/domain/divergence"
	"github.com/driftwatch/backend/internal/infrastructure/log"
)

// AnalysisService 会话漂移分析服务
// 串联取数、分段、持久化三步：分析结果原子落库后才对读取方可见
type AnalysisService struct {
	source    conversation.Source
	segmenter *EnsembleSegmenter
	segments  domainDiv.SegmentRepository
	reports   domainDiv.ReportRepository
	vector    domainDiv.VectorIndex // 可选，未配置时为 nil
	logger    *slog.Logger
}

// NewAnalysisService 创建分析服务
func NewAnalysisService(
	source conversation.Source,
	segmenter *EnsembleSegmenter,
	segments domainDiv.SegmentRepository,
	reports domainDiv.ReportRepository,
	vector domainDiv.VectorIndex,
) *AnalysisService {
	return &AnalysisService{
		source:    source,
		segmenter: segmenter,
		segments:  segments,
		reports:   reports,
		vector:    vector,
		logger:    log.NewModuleLogger("divergence", "service"),
	}
}

// AnalyzeConversation 分析单个会话并持久化结果
// 会话无消息时返回 (nil, nil)，调用方按跳过处理；
// ErrProviderUnavailable 与持久化失败作为硬错误向上传播
func (s *AnalysisService) AnalyzeConversation(ctx context.Context, conversationID string) (*AnalysisResult, error) {
	messages, err := s.source.GetMessages(conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation %s: %w", conversationID, err)
	}
	if len(messages) == 0 {
		s.logger.Debug("Conversation has no messages, skipping",
			"conversation_id", conversationID,
		)
		return nil, nil
	}

	result, err := s.segmenter.SegmentConversation(conversationID, messages)
	if err != nil {
		return nil, err
	}

	if err := s.segments.ReplaceSegments(conversationID, result.Segments); err != nil {
		return nil, fmt.Errorf("failed to persist segments for %s: %w", conversationID, err)
	}
	if err := s.reports.SaveReport(result.Report); err != nil {
		return nil, fmt.Errorf("failed to persist report for %s: %w", conversationID, err)
	}

	// 向量索引写入失败只记日志，sqlite 全量扫描仍然可用
	if s.vector != nil {
		if err := s.vector.UpsertSegments(ctx, result.Segments); err != nil {
			s.logger.Warn("Failed to upsert segment vectors",
				"conversation_id", conversationID,
				"error", err,
			)
		}
	}

	return result, nil
}

// GetReport 获取会话漂移报告，不存在时返回 nil
func (s *AnalysisService) GetReport(conversationID string) (*domainDiv.DivergenceReport, error) {
	return s.reports.GetReport(conversationID)
}

// GetSegments 获取会话片段（按起始索引升序）
func (s *AnalysisService) GetSegments(conversationID string) ([]*domainDiv.Segment, error) {
	return s.segments.GetSegments(conversationID)
}

// GetSegment 按 ID 获取片段
func (s *AnalysisService) GetSegment(segmentID string) (*domainDiv.Segment, error) {
	return s.segments.GetSegment(segmentID)
}
