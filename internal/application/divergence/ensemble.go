package divergence

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/driftwatch/backend/internal/domain/conversation"
	domainDiv "github.com/driftwatch/backend/internal/domain/divergence"
	"github.com/driftwatch/backend/internal/infrastructure/log"
)

// 集成打分参数
const (
	// confirmVoteWeight 确认边界所需的最小票权
	confirmVoteWeight = 2.0

	// 票权：drift 与 topic 各 1 票，judge 双倍
	driftVoteWeight = 1.0
	topicVoteWeight = 1.0
	judgeVoteWeight = 2.0

	// 综合得分归一化因子
	driftNormalizer   = 0.5
	entropyNormalizer = 3.0 // bit
	transitionScale   = 2.0

	// shouldSplitScore / shouldSplitSegments 拆分建议阈值
	shouldSplitScore    = 0.5
	shouldSplitSegments = 3
)

// EnsembleSegmenter 集成分段器
// 合并漂移、主题、judge 三路候选分段点，经加权投票得到确认边界，
// 并产出片段集合与会话漂移报告
type EnsembleSegmenter struct {
	drift  *DriftAnalyzer
	topic  *TopicAnalyzer
	judge  *JudgeAnalyzer
	config SegmenterConfig
	logger *slog.Logger
}

// SegmenterConfig 分段器参数
type SegmenterConfig struct {
	DriftThreshold    float64
	ReturnThreshold   float64
	MinSegmentLength  int
	GenerateSummaries bool
}

// NewEnsembleSegmenter 创建集成分段器
func NewEnsembleSegmenter(drift *DriftAnalyzer, topic *TopicAnalyzer, judge *JudgeAnalyzer, config SegmenterConfig) *EnsembleSegmenter {
	if config.MinSegmentLength < 1 {
		config.MinSegmentLength = 1
	}

	return &EnsembleSegmenter{
		drift:  drift,
		topic:  topic,
		judge:  judge,
		config: config,
		logger: log.NewModuleLogger("divergence", "ensemble"),
	}
}

// AnalysisResult 单次会话分析的完整产物
type AnalysisResult struct {
	Segments []*domainDiv.Segment
	Report   *domainDiv.DivergenceReport
	Drift    *DriftResult // 向量服务不可用时为 nil
}

// SegmentConversation 分析会话并产出片段与报告
// 向量服务不可用时退化为仅主题信号继续；主题与 judge 信号自身永不失败。
// 没有任何可用信号时返回 ErrProviderUnavailable
func (s *EnsembleSegmenter) SegmentConversation(conversationID string, messages []conversation.Message) (*AnalysisResult, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("conversation %s has no messages", conversationID)
	}

	texts := conversation.Texts(messages)

	driftRes, err := s.drift.ComputeDriftCurve(texts)
	if err != nil {
		if !errors.Is(err, domainDiv.ErrProviderUnavailable) {
			return nil, fmt.Errorf("drift analysis failed: %w", err)
		}
		s.logger.Warn("Embedding provider unavailable, proceeding with topic signal only",
			"conversation_id", conversationID,
		)
		driftRes = nil
	}

	var driftScores []float64
	if driftRes != nil {
		driftScores = driftRes.DriftScores
	}

	topicRes := s.topic.Analyze(texts, driftScores)
	if driftRes == nil && topicRes == nil {
		return nil, fmt.Errorf("no analysis signal available: %w", domainDiv.ErrProviderUnavailable)
	}

	var classifications []domainDiv.Classification
	if s.judge.Enabled() {
		classifications = s.judge.ClassifyConversation(messages)
	}

	// 过短会话：单片段覆盖全部消息，跳过投票
	var boundaries []int
	if len(messages) >= s.config.MinSegmentLength {
		boundaries = s.voteBoundaries(driftRes, topicRes, classifications, len(messages))
	}

	segments := s.buildSegments(conversationID, messages, boundaries, driftRes, topicRes)
	report := s.buildReport(conversationID, driftRes, topicRes, classifications, boundaries, len(segments))

	s.logger.Info("Conversation segmented",
		"conversation_id", conversationID,
		"messages", len(messages),
		"segments", len(segments),
		"overall_score", report.OverallScore,
	)

	return &AnalysisResult{
		Segments: segments,
		Report:   report,
		Drift:    driftRes,
	}, nil
}

// voteBoundaries 加权投票确认分段边界
// 候选按索引升序处理；距上一确认边界不足 minSegmentLength 的候选直接跳过
func (s *EnsembleSegmenter) voteBoundaries(driftRes *DriftResult, topicRes *TopicResult, classifications []domainDiv.Classification, messageCount int) []int {
	driftSet := make(map[int]bool)
	if driftRes != nil {
		for _, i := range s.drift.DetectChangepoints(driftRes.DriftScores, s.config.DriftThreshold, s.config.MinSegmentLength, s.config.ReturnThreshold) {
			driftSet[i] = true
		}
	}

	topicSet := make(map[int]bool)
	if topicRes != nil {
		for _, i := range s.topic.SegmentBoundaries(topicRes.TopicPerMessage) {
			topicSet[i] = true
		}
	}

	judgeSet := make(map[int]bool)
	for i, c := range classifications {
		if c.SuggestedBreak {
			judgeSet[i] = true
		}
	}

	candidates := make([]int, 0, len(driftSet)+len(topicSet)+len(judgeSet))
	seen := make(map[int]bool)
	for _, set := range []map[int]bool{driftSet, topicSet, judgeSet} {
		for i := range set {
			if !seen[i] {
				seen[i] = true
				candidates = append(candidates, i)
			}
		}
	}
	sort.Ints(candidates)

	var confirmed []int
	lastConfirmed := 0
	for _, i := range candidates {
		if i < s.config.MinSegmentLength || i >= messageCount {
			continue
		}
		if len(confirmed) > 0 && i-lastConfirmed < s.config.MinSegmentLength {
			continue
		}

		weight := 0.0
		if driftSet[i] {
			weight += driftVoteWeight
		}
		if topicSet[i] {
			weight += topicVoteWeight
		}
		if judgeSet[i] {
			weight += judgeVoteWeight
		}

		if weight >= confirmVoteWeight {
			confirmed = append(confirmed, i)
			lastConfirmed = i
		}
	}

	return confirmed
}

// buildSegments 按确认边界切分会话
// 首个片段为根，其余片段回指根片段 ID
func (s *EnsembleSegmenter) buildSegments(conversationID string, messages []conversation.Message, boundaries []int, driftRes *DriftResult, topicRes *TopicResult) []*domainDiv.Segment {
	starts := append([]int{0}, boundaries...)

	segments := make([]*domainDiv.Segment, 0, len(starts))
	for idx, start := range starts {
		end := len(messages) - 1
		if idx+1 < len(starts) {
			end = starts[idx+1] - 1
		}

		seg := domainDiv.NewSegment(conversationID, start, end)
		seg.DivergenceScore = segmentMeanDrift(driftRes, start, end)
		seg.AnchorEmbedding = segmentAnchor(driftRes, start, end)
		if topicRes != nil {
			seg.TopicLabel = topicRes.DominantLabel(start, end)
		}

		if idx > 0 {
			seg.ParentSegmentID = segments[0].ID
		}

		if s.config.GenerateSummaries {
			seg.Summary = s.judge.Summarize(messages[start : end+1])
		}

		segments = append(segments, seg)
	}

	return segments
}

// buildReport 汇总三路信号为会话漂移报告
func (s *EnsembleSegmenter) buildReport(conversationID string, driftRes *DriftResult, topicRes *TopicResult, classifications []domainDiv.Classification, boundaries []int, numSegments int) *domainDiv.DivergenceReport {
	metrics := domainDiv.Metrics{}
	if driftRes != nil {
		metrics.MaxDrift = driftRes.MaxDrift
		metrics.MeanDrift = driftRes.MeanDrift
		metrics.DriftVelocity = driftRes.DriftVelocity
		metrics.ReturnCount = driftRes.ReturnCount
		metrics.FinalDrift = driftRes.FinalDrift
	}
	if topicRes != nil {
		metrics.NumTopics = topicRes.NumTopics
		metrics.TopicEntropy = topicRes.Entropy
		metrics.TransitionRate = topicRes.TransitionRate
		metrics.DominantTopicRatio = topicRes.DominantTopicRatio
	}

	hasJudge := len(classifications) > 0
	if hasJudge {
		sum := 0.0
		for _, c := range classifications {
			sum += c.RelevanceScore
			if c.Relation == domainDiv.RelationBranching || c.Relation == domainDiv.RelationTangent {
				metrics.BranchCount++
			}
		}
		metrics.MeanRelevance = sum / float64(len(classifications))
	}

	// 分量归一化：min(1, raw/normalizer)
	driftNorm := clamp01(metrics.MeanDrift / driftNormalizer)
	entropyNorm := clamp01(metrics.TopicEntropy / entropyNormalizer)
	transitionNorm := clamp01(metrics.TransitionRate * transitionScale)

	var overall, judgeNorm float64
	if hasJudge {
		judgeNorm = clamp01(1 - metrics.MeanRelevance/10)
		overall = 0.35*driftNorm + 0.20*entropyNorm + 0.20*transitionNorm + 0.25*judgeNorm
	} else {
		overall = 0.45*driftNorm + 0.30*entropyNorm + 0.25*transitionNorm
	}
	overall = clamp01(overall)

	llmScore := -1.0
	if hasJudge {
		llmScore = judgeNorm
	}

	return &domainDiv.DivergenceReport{
		ConversationID:       conversationID,
		OverallScore:         overall,
		EmbeddingDriftScore:  driftNorm,
		TopicEntropyScore:    entropyNorm,
		TopicTransitionScore: transitionNorm,
		LLMRelevanceScore:    llmScore,
		Metrics:              metrics,
		NumSegments:          numSegments,
		ShouldSplit:          overall > shouldSplitScore || numSegments > shouldSplitSegments,
		SuggestedSplitPoints: boundaries,
		Interpretation:       interpretScore(overall),
		ComputedAt:           time.Now(),
	}
}

// segmentMeanDrift 计算片段内平均漂移
func segmentMeanDrift(driftRes *DriftResult, start, end int) float64 {
	if driftRes == nil || end >= len(driftRes.DriftScores) {
		return 0
	}

	sum := 0.0
	for _, s := range driftRes.DriftScores[start : end+1] {
		sum += s
	}
	return sum / float64(end-start+1)
}

// segmentAnchor 计算片段锚点向量（消息向量均值重归一化）
func segmentAnchor(driftRes *DriftResult, start, end int) []float32 {
	if driftRes == nil || end >= len(driftRes.MessageEmbeddings) {
		return nil
	}
	return normalizeVector(meanVector(driftRes.MessageEmbeddings[start : end+1]))
}

// interpretScore 生成人类可读解释
func interpretScore(score float64) string {
	switch {
	case score < 0.2:
		return "Conversation stays highly focused on the original topic"
	case score < 0.4:
		return "Conversation mostly stays on topic with minor tangents"
	case score < 0.6:
		return "Conversation shows moderate topic divergence"
	case score < 0.8:
		return "Conversation diverges significantly from the original topic"
	default:
		return "Conversation has drifted far from the original topic; consider splitting it"
	}
}
