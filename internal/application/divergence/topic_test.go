package divergence

import (
	"testing"

	"github.com/driftwatch/backend/internal/infrastructure/topics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeTopicEntropy(t *testing.T) {
	// 单一主题的熵为 0
	assert.Zero(t, ComputeTopicEntropy([]int{0, 0, 0, 0}))

	// 4 个等频主题的熵为 log2(4) = 2 bit
	assert.InDelta(t, 2.0, ComputeTopicEntropy([]int{0, 1, 2, 3}), 1e-9)

	// 离群消息不参与分布
	assert.InDelta(t, 1.0, ComputeTopicEntropy([]int{0, 1, -1, 0, 1, -1}), 1e-9)

	// 全离群返回 0
	assert.Zero(t, ComputeTopicEntropy([]int{-1, -1}))
}

func TestAnalyze_TooFewValidTexts(t *testing.T) {
	analyzer := NewTopicAnalyzer(&fakeTopicProvider{})

	// 有效文本不足 5 条：单主题平凡结果，不触碰后端
	result := analyzer.Analyze([]string{"short", "also short text here", "ok"}, nil)
	require.NotNil(t, result)
	assert.Equal(t, 1, result.NumTopics)
	assert.Zero(t, result.Entropy)
	assert.Equal(t, 1.0, result.DominantTopicRatio)
	assert.Len(t, result.TopicPerMessage, 3)
}

func TestAnalyze_AssignsTopicsAndMetrics(t *testing.T) {
	texts := repeatTexts(6, "kubernetes")
	provider := &fakeTopicProvider{
		assignment: &topics.Assignment{
			TopicIDs: []int{0, 0, 0, 1, 1, 1},
			Labels:   map[int]string{0: "deploy_pods", 1: "billing_invoices"},
		},
	}
	analyzer := NewTopicAnalyzer(provider)

	result := analyzer.Analyze(texts, nil)
	require.NotNil(t, result)
	assert.False(t, result.Fallback)
	assert.Equal(t, 2, result.NumTopics)
	assert.InDelta(t, 1.0, result.Entropy, 1e-9)
	assert.InDelta(t, 0.5, result.DominantTopicRatio, 1e-9)
	// 6 条消息 1 次切换
	assert.InDelta(t, 1.0/6.0, result.TransitionRate, 1e-9)
}

func TestAnalyze_BackendFailureFallsBackToDrift(t *testing.T) {
	analyzer := NewTopicAnalyzer(&fakeTopicProvider{err: assert.AnError})

	// 漂移穿越 0.3 两次（中间回落到 0.25 以下重新武装）
	drift := []float64{0.0, 0.1, 0.4, 0.4, 0.2, 0.1, 0.5, 0.5}
	result := analyzer.Analyze(repeatTexts(8, "database"), drift)

	require.NotNil(t, result)
	assert.True(t, result.Fallback)
	assert.Equal(t, []int{0, 0, 1, 1, 1, 1, 2, 2}, result.TopicPerMessage)
	assert.Equal(t, 3, result.NumTopics)
}

func TestAnalyze_MismatchedAssignmentFallsBack(t *testing.T) {
	provider := &fakeTopicProvider{
		assignment: &topics.Assignment{TopicIDs: []int{0, 1}, Labels: map[int]string{}},
	}
	analyzer := NewTopicAnalyzer(provider)

	result := analyzer.Analyze(repeatTexts(6, "networking"), nil)
	require.NotNil(t, result)
	// 降级路径没有漂移曲线可用时退回单主题
	assert.Equal(t, 1, result.NumTopics)
}

func TestAnalyze_ShortTextsMarkedOutlier(t *testing.T) {
	texts := append(repeatTexts(5, "search"), "ok")
	provider := &fakeTopicProvider{
		assignment: &topics.Assignment{
			TopicIDs: []int{0, 0, 0, 0, 0},
			Labels:   map[int]string{0: "search_ranking"},
		},
	}
	analyzer := NewTopicAnalyzer(provider)

	result := analyzer.Analyze(texts, nil)
	require.Len(t, result.TopicPerMessage, 6)
	assert.Equal(t, topics.OutlierTopicID, result.TopicPerMessage[5])
}

func TestSegmentBoundaries(t *testing.T) {
	analyzer := NewTopicAnalyzer(nil)

	// 离群两侧的变化不算边界
	boundaries := analyzer.SegmentBoundaries([]int{0, 0, -1, 1, 1, 2})
	assert.Equal(t, []int{5}, boundaries)

	boundaries = analyzer.SegmentBoundaries([]int{0, 1, 1, 0})
	assert.Equal(t, []int{1, 3}, boundaries)

	assert.Empty(t, analyzer.SegmentBoundaries([]int{0, 0, 0}))
}

func TestDominantLabel(t *testing.T) {
	result := &TopicResult{
		TopicPerMessage: []int{0, 0, 1, 1, 1, -1},
		Labels:          map[int]string{0: "auth_tokens", 1: "cache_eviction"},
	}

	assert.Equal(t, "cache_eviction", result.DominantLabel(0, 5))
	assert.Equal(t, "auth_tokens", result.DominantLabel(0, 1))
	// 纯离群区间没有标签
	assert.Equal(t, "", result.DominantLabel(5, 5))
	// 越界区间返回空
	assert.Equal(t, "", result.DominantLabel(0, 10))
}
