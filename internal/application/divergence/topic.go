package divergence

import (
	"log/slog"
	"math"
	"strings"

	"github.com/driftwatch/backend/internal/infrastructure/log"
	"github.com/driftwatch/backend/internal/infrastructure/topics"
)

// 主题分析参数
const (
	// minTopicTextLength 参与主题拟合的最小文本长度（rune）
	minTopicTextLength = 10

	// minValidTextsForFit 拟合所需的最小有效文本数，不足时返回单主题平凡结果
	minValidTextsForFit = 5

	// fallbackRiseLevel / fallbackArmLevel 降级伪主题的漂移穿越阈值
	fallbackRiseLevel = 0.3
	fallbackArmLevel  = 0.25
)

// TopicAnalyzer 离散主题分析器
// 为每条消息分配主题 ID 并派生熵/切换率指标与候选分段点。
// 主题后端失败时降级为基于漂移曲线的伪主题，保证永不失败
type TopicAnalyzer struct {
	provider TopicProvider
	logger   *slog.Logger
}

// NewTopicAnalyzer 创建主题分析器
func NewTopicAnalyzer(provider TopicProvider) *TopicAnalyzer {
	return &TopicAnalyzer{
		provider: provider,
		logger:   log.NewModuleLogger("divergence", "topic"),
	}
}

// TopicResult 主题分析结果
type TopicResult struct {
	TopicPerMessage    []int          // 逐消息主题 ID，topics.OutlierTopicID 表示离群
	Labels             map[int]string // 主题 ID 到标签的映射
	NumTopics          int            // 非离群主题数量
	Entropy            float64        // 主题分布的香农熵（bit）
	TransitionRate     float64        // 相邻非离群主题切换率
	DominantTopicRatio float64        // 最大主题占非离群消息的比例
	Fallback           bool           // 是否来自降级路径
}

// Analyze 分析一批消息文本的主题结构
// driftScores 用于主题后端失败时的降级路径，可以为 nil；本方法永不失败
func (a *TopicAnalyzer) Analyze(texts []string, driftScores []float64) *TopicResult {
	if len(texts) == 0 {
		return trivialTopicResult(0)
	}

	// 过滤过短文本
	validIdx := make([]int, 0, len(texts))
	validTexts := make([]string, 0, len(texts))
	for i, text := range texts {
		if len([]rune(strings.TrimSpace(text))) >= minTopicTextLength {
			validIdx = append(validIdx, i)
			validTexts = append(validTexts, text)
		}
	}

	if len(validTexts) < minValidTextsForFit {
		return trivialTopicResult(len(texts))
	}

	if a.provider == nil {
		return a.fallbackFromDrift(len(texts), driftScores)
	}

	assignment, err := a.provider.FitAssign(validTexts)
	if err != nil {
		a.logger.Warn("Topic backend failed, falling back to drift-derived pseudo topics",
			"error", err,
		)
		return a.fallbackFromDrift(len(texts), driftScores)
	}
	if len(assignment.TopicIDs) != len(validTexts) {
		a.logger.Warn("Topic backend returned mismatched assignment, falling back",
			"got", len(assignment.TopicIDs),
			"want", len(validTexts),
		)
		return a.fallbackFromDrift(len(texts), driftScores)
	}

	// 还原到原始消息下标；被过滤的文本标记为离群
	perMessage := make([]int, len(texts))
	for i := range perMessage {
		perMessage[i] = topics.OutlierTopicID
	}
	for j, origIdx := range validIdx {
		perMessage[origIdx] = assignment.TopicIDs[j]
	}

	result := &TopicResult{
		TopicPerMessage: perMessage,
		Labels:          assignment.Labels,
	}
	fillTopicMetrics(result)
	return result
}

// fallbackFromDrift 基于漂移曲线派生伪主题
// 漂移从低位（< fallbackArmLevel）穿越到高位（> fallbackRiseLevel）时开启新伪主题
func (a *TopicAnalyzer) fallbackFromDrift(n int, driftScores []float64) *TopicResult {
	if len(driftScores) != n || n == 0 {
		return trivialTopicResult(n)
	}

	perMessage := make([]int, n)
	topic := 0
	armed := true
	for i, drift := range driftScores {
		if armed && drift > fallbackRiseLevel {
			topic++
			armed = false
		} else if !armed && drift < fallbackArmLevel {
			armed = true
		}
		perMessage[i] = topic
	}

	result := &TopicResult{
		TopicPerMessage: perMessage,
		Labels:          map[int]string{},
		Fallback:        true,
	}
	fillTopicMetrics(result)
	return result
}

// trivialTopicResult 单主题平凡结果
func trivialTopicResult(n int) *TopicResult {
	perMessage := make([]int, n)
	return &TopicResult{
		TopicPerMessage:    perMessage,
		Labels:             map[int]string{},
		NumTopics:          1,
		Entropy:            0,
		TransitionRate:     0,
		DominantTopicRatio: 1,
	}
}

// fillTopicMetrics 计算主题指标
func fillTopicMetrics(result *TopicResult) {
	counts := make(map[int]int)
	total := 0
	for _, id := range result.TopicPerMessage {
		if id == topics.OutlierTopicID {
			continue
		}
		counts[id]++
		total++
	}

	if total == 0 {
		result.NumTopics = 1
		result.DominantTopicRatio = 1
		return
	}

	result.NumTopics = len(counts)
	result.Entropy = ComputeTopicEntropy(result.TopicPerMessage)

	maxCount := 0
	for _, c := range counts {
		if c > maxCount {
			maxCount = c
		}
	}
	result.DominantTopicRatio = float64(maxCount) / float64(total)

	// 切换率 = 相邻非离群主题变化次数 / 非离群消息数
	transitions := 0
	prev := topics.OutlierTopicID
	for _, id := range result.TopicPerMessage {
		if id == topics.OutlierTopicID {
			continue
		}
		if prev != topics.OutlierTopicID && id != prev {
			transitions++
		}
		prev = id
	}
	result.TransitionRate = float64(transitions) / float64(total)
}

// ComputeTopicEntropy 计算非离群主题分布的香农熵（bit）
// 单一主题的熵恰为 0；k 个等频主题的熵为 log2(k)
func ComputeTopicEntropy(topicPerMessage []int) float64 {
	counts := make(map[int]int)
	total := 0
	for _, id := range topicPerMessage {
		if id == topics.OutlierTopicID {
			continue
		}
		counts[id]++
		total++
	}

	if total == 0 {
		return 0
	}

	entropy := 0.0
	for _, c := range counts {
		p := float64(c) / float64(total)
		entropy -= p * math.Log2(p)
	}
	return entropy
}

// SegmentBoundaries 从主题序列提取候选分段点
// 仅统计两侧均非离群的相邻主题变化位置
func (a *TopicAnalyzer) SegmentBoundaries(topicPerMessage []int) []int {
	var boundaries []int
	for i := 1; i < len(topicPerMessage); i++ {
		prev, curr := topicPerMessage[i-1], topicPerMessage[i]
		if prev == topics.OutlierTopicID || curr == topics.OutlierTopicID {
			continue
		}
		if prev != curr {
			boundaries = append(boundaries, i)
		}
	}
	return boundaries
}

// DominantLabel 返回区间内占比最高的非离群主题标签
func (r *TopicResult) DominantLabel(start, end int) string {
	if start < 0 || end >= len(r.TopicPerMessage) || start > end {
		return ""
	}

	counts := make(map[int]int)
	for _, id := range r.TopicPerMessage[start : end+1] {
		if id == topics.OutlierTopicID {
			continue
		}
		counts[id]++
	}

	best, bestCount := topics.OutlierTopicID, 0
	for id, c := range counts {
		if c > bestCount {
			best, bestCount = id, c
		}
	}
	if best == topics.OutlierTopicID {
		return ""
	}
	return r.Labels[best]
}
