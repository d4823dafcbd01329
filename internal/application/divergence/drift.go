package divergence

import (
	"fmt"
	"log/slog"
	"math"
	"strings"

	domainDiv "github.com/driftwatch/backend/internal/domain/divergence"
	"github.com/driftwatch/backend/internal/infrastructure/log"
)

// 漂移检测参数
const (
	// jumpThreshold 相邻两步漂移变化超过该值时直接标记候选点
	jumpThreshold = 0.2

	// riseThreshold / fallThreshold 震荡计数的上升与回落阈值
	riseThreshold = 0.05
	fallThreshold = 0.1
)

// DriftAnalyzer 语义漂移分析器
// 以会话锚点为参照，计算逐消息的语义距离曲线并从中提取候选分段点
type DriftAnalyzer struct {
	provider      EmbeddingProvider
	anchorWindow  int
	rollingWindow int
	logger        *slog.Logger
}

// NewDriftAnalyzer 创建漂移分析器
// provider 为 nil 表示向量服务未配置，ComputeDriftCurve 将返回 ErrProviderUnavailable
func NewDriftAnalyzer(provider EmbeddingProvider, anchorWindow, rollingWindow int) *DriftAnalyzer {
	if anchorWindow < 1 {
		anchorWindow = 1
	}
	if rollingWindow < 1 {
		rollingWindow = 1
	}

	return &DriftAnalyzer{
		provider:      provider,
		anchorWindow:  anchorWindow,
		rollingWindow: rollingWindow,
		logger:        log.NewModuleLogger("divergence", "drift"),
	}
}

// DriftResult 漂移分析结果
type DriftResult struct {
	AnchorEmbedding   []float32   // 锚点向量（前 anchorWindow 条非空消息的均值，归一化）
	MessageEmbeddings [][]float32 // 逐消息向量（归一化）
	DriftScores       []float64   // 逐消息漂移，[0,1]

	// 汇总指标
	MaxDrift      float64
	MeanDrift     float64
	FinalDrift    float64
	DriftVelocity float64 // 一阶差分绝对值的均值
	ReturnCount   int     // 震荡计数：先升后降的次数
}

// ComputeDriftCurve 计算会话的语义漂移曲线
// 全空文本的会话返回零向量锚点与全零漂移曲线
func (a *DriftAnalyzer) ComputeDriftCurve(texts []string) (*DriftResult, error) {
	if a.provider == nil {
		return nil, fmt.Errorf("embedding provider not configured: %w", domainDiv.ErrProviderUnavailable)
	}
	if len(texts) == 0 {
		return &DriftResult{}, nil
	}

	embeddings, err := a.provider.EmbedTexts(texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed conversation: %w", domainDiv.ErrProviderUnavailable)
	}
	if len(embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want %d: %w",
			len(embeddings), len(texts), domainDiv.ErrProviderUnavailable)
	}

	// 逐消息归一化
	normalized := make([][]float32, len(embeddings))
	for i, vec := range embeddings {
		normalized[i] = normalizeVector(vec)
	}

	// 锚点 = 前 anchorWindow 条非空消息向量的均值（重归一化）
	anchor := a.computeAnchor(texts, normalized)

	result := &DriftResult{
		AnchorEmbedding:   anchor,
		MessageEmbeddings: normalized,
		DriftScores:       make([]float64, len(texts)),
	}

	// 全空会话：锚点为零向量，漂移曲线保持全零
	if len(anchor) == 0 || isZeroVector(anchor) {
		result.AnchorEmbedding = make([]float32, a.dimension(normalized))
		a.fillSummaryMetrics(result)
		return result, nil
	}

	// drift[i] = 1 - cos(anchor, 滚动窗口均值向量)
	for i := range normalized {
		start := i - a.rollingWindow + 1
		if start < 0 {
			start = 0
		}
		window := normalizeVector(meanVector(normalized[start : i+1]))
		result.DriftScores[i] = clamp01(1 - CosineSimilarity(anchor, window))
	}

	a.fillSummaryMetrics(result)

	a.logger.Debug("Drift curve computed",
		"messages", len(texts),
		"max_drift", result.MaxDrift,
		"mean_drift", result.MeanDrift,
	)

	return result, nil
}

// computeAnchor 计算锚点向量
func (a *DriftAnalyzer) computeAnchor(texts []string, embeddings [][]float32) []float32 {
	var anchorVecs [][]float32
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			continue
		}
		anchorVecs = append(anchorVecs, embeddings[i])
		if len(anchorVecs) >= a.anchorWindow {
			break
		}
	}

	if len(anchorVecs) == 0 {
		return nil
	}
	return normalizeVector(meanVector(anchorVecs))
}

// dimension 返回向量维度
func (a *DriftAnalyzer) dimension(embeddings [][]float32) int {
	for _, vec := range embeddings {
		if len(vec) > 0 {
			return len(vec)
		}
	}
	return 0
}

// fillSummaryMetrics 计算汇总指标
func (a *DriftAnalyzer) fillSummaryMetrics(result *DriftResult) {
	scores := result.DriftScores
	if len(scores) == 0 {
		return
	}

	maxDrift := scores[0]
	sum := 0.0
	for _, s := range scores {
		if s > maxDrift {
			maxDrift = s
		}
		sum += s
	}

	result.MaxDrift = maxDrift
	result.MeanDrift = sum / float64(len(scores))
	result.FinalDrift = scores[len(scores)-1]

	// 漂移速度 = 一阶差分绝对值的均值
	if len(scores) > 1 {
		diffSum := 0.0
		for i := 1; i < len(scores); i++ {
			diffSum += math.Abs(scores[i] - scores[i-1])
		}
		result.DriftVelocity = diffSum / float64(len(scores)-1)
	}

	// 震荡计数：相对前一步上升超过 riseThreshold 且下一步回落超过 fallThreshold
	for i := 1; i < len(scores)-1; i++ {
		if scores[i]-scores[i-1] > riseThreshold && scores[i]-scores[i+1] > fallThreshold {
			result.ReturnCount++
		}
	}
}

// DetectChangepoints 从漂移曲线中提取候选分段点
// 单趟状态机：越过 threshold 且随后 minSegmentLength 个得分均值维持在 0.8×threshold
// 之上时打开"偏离"区间；回落到 returnThreshold 以下且同样持续时关闭；
// 另外任何相邻步长变化超过 jumpThreshold 的位置直接标记。
// 返回的索引两两间距不小于 minSegmentLength；消息数不足 2×minSegmentLength 时返回空
func (a *DriftAnalyzer) DetectChangepoints(scores []float64, threshold float64, minSegmentLength int, returnThreshold float64) []int {
	if minSegmentLength < 1 {
		minSegmentLength = 1
	}
	if len(scores) < 2*minSegmentLength {
		return nil
	}

	var points []int
	add := func(i int) {
		if len(points) > 0 && i-points[len(points)-1] < minSegmentLength {
			return
		}
		points = append(points, i)
	}

	diverged := false
	for i := 1; i < len(scores); i++ {
		if !diverged && scores[i] > threshold && a.sustainedAbove(scores, i, 0.8*threshold, minSegmentLength) {
			diverged = true
			add(i)
		} else if diverged && scores[i] < returnThreshold && a.sustainedBelow(scores, i, returnThreshold, minSegmentLength) {
			diverged = false
			add(i)
		}

		// 突变：单步变化超过阈值
		if math.Abs(scores[i]-scores[i-1]) > jumpThreshold {
			add(i)
		}
	}

	return points
}

// sustainedAbove 从 i 开始的 window 个得分均值是否高于 level（末尾截断）
func (a *DriftAnalyzer) sustainedAbove(scores []float64, i int, level float64, window int) bool {
	end := i + window
	if end > len(scores) {
		end = len(scores)
	}

	sum := 0.0
	for _, s := range scores[i:end] {
		sum += s
	}
	return sum/float64(end-i) > level
}

// sustainedBelow 从 i 开始的 window 个得分均值是否低于 level（末尾截断）
func (a *DriftAnalyzer) sustainedBelow(scores []float64, i int, level float64, window int) bool {
	end := i + window
	if end > len(scores) {
		end = len(scores)
	}

	sum := 0.0
	for _, s := range scores[i:end] {
		sum += s
	}
	return sum/float64(end-i) < level
}
