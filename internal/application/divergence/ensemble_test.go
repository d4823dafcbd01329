package divergence

import (
	"testing"

	"github.com/driftwatch/backend/internal/infrastructure/topics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSegmenterConfig() SegmenterConfig {
	return SegmenterConfig{
		DriftThreshold:   0.35,
		ReturnThreshold:  0.15,
		MinSegmentLength: 3,
	}
}

// splitTopicProvider 前 switchAt 条归主题 0，其余归主题 1
func splitTopicProvider(total, switchAt int) *fakeTopicProvider {
	ids := make([]int, total)
	for i := switchAt; i < total; i++ {
		ids[i] = 1
	}
	return &fakeTopicProvider{
		assignment: &topics.Assignment{
			TopicIDs: ids,
			Labels:   map[int]string{0: "original_topic", 1: "new_topic"},
		},
	}
}

func newTestSegmenter(embedder EmbeddingProvider, topic TopicProvider, judge JudgeProvider, cfg SegmenterConfig) *EnsembleSegmenter {
	return NewEnsembleSegmenter(
		NewDriftAnalyzer(embedder, 3, 1),
		NewTopicAnalyzer(topic),
		NewJudgeAnalyzer(judge, fakeTokenCounter{}, 3, 0),
		cfg,
	)
}

func TestSegmentConversation_EmptyConversation(t *testing.T) {
	segmenter := newTestSegmenter(axisEmbedder(0), nil, nil, testSegmenterConfig())

	_, err := segmenter.SegmentConversation("conv-1", nil)
	assert.Error(t, err)
}

func TestSegmentConversation_ShortConversationSingleSegment(t *testing.T) {
	cfg := testSegmenterConfig()
	cfg.MinSegmentLength = 5
	segmenter := newTestSegmenter(axisEmbedder(1), nil, nil, cfg)

	messages := makeMessages(repeatTexts(3, "redis")...)
	result, err := segmenter.SegmentConversation("conv-short", messages)
	require.NoError(t, err)

	require.Len(t, result.Segments, 1)
	assert.Equal(t, 0, result.Segments[0].StartIndex)
	assert.Equal(t, 2, result.Segments[0].EndIndex)
	assert.True(t, result.Segments[0].IsRoot())
	assert.Empty(t, result.Report.SuggestedSplitPoints)
}

func TestSegmentConversation_AgreeingSignalsConfirmBoundary(t *testing.T) {
	const total, switchAt = 20, 10
	segmenter := newTestSegmenter(
		axisEmbedder(switchAt),
		splitTopicProvider(total, switchAt),
		nil,
		testSegmenterConfig(),
	)

	messages := makeMessages(repeatTexts(total, "migration")...)
	result, err := segmenter.SegmentConversation("conv-split", messages)
	require.NoError(t, err)

	require.Len(t, result.Segments, 2)
	first, second := result.Segments[0], result.Segments[1]

	assert.Equal(t, 0, first.StartIndex)
	assert.Equal(t, switchAt-1, first.EndIndex)
	assert.Equal(t, switchAt, second.StartIndex)
	assert.Equal(t, total-1, second.EndIndex)

	// 首片段为根，其余回指根片段
	assert.True(t, first.IsRoot())
	assert.Equal(t, first.ID, second.ParentSegmentID)

	// 主题标签来自区间内占优主题
	assert.Equal(t, "original_topic", first.TopicLabel)
	assert.Equal(t, "new_topic", second.TopicLabel)

	// 片段锚点为消息向量均值（重归一化）
	require.NotEmpty(t, second.AnchorEmbedding)
	assert.InDelta(t, 1.0, float64(second.AnchorEmbedding[1]), 1e-6)

	assert.Equal(t, []int{switchAt}, result.Report.SuggestedSplitPoints)
	assert.Equal(t, 2, result.Report.NumSegments)
}

func TestSegmentConversation_BoundaryInvariants(t *testing.T) {
	const total = 30
	// 每 5 条换一次方向与主题，制造大量候选点
	embedder := &fakeEmbedder{
		vectorFor: func(index int, _ string) []float32 {
			vec := make([]float32, 4)
			vec[(index/5)%4] = 1
			return vec
		},
	}
	ids := make([]int, total)
	for i := range ids {
		ids[i] = i / 5
	}
	topicProvider := &fakeTopicProvider{
		assignment: &topics.Assignment{TopicIDs: ids, Labels: map[int]string{}},
	}

	cfg := testSegmenterConfig()
	segmenter := newTestSegmenter(embedder, topicProvider, nil, cfg)

	messages := makeMessages(repeatTexts(total, "mixed")...)
	result, err := segmenter.SegmentConversation("conv-many", messages)
	require.NoError(t, err)

	boundaries := result.Report.SuggestedSplitPoints
	require.NotEmpty(t, boundaries)

	prev := 0
	for i, b := range boundaries {
		assert.GreaterOrEqual(t, b, cfg.MinSegmentLength)
		assert.Less(t, b, total)
		if i > 0 {
			assert.GreaterOrEqual(t, b-prev, cfg.MinSegmentLength,
				"boundaries %v violate spacing", boundaries)
			assert.Greater(t, b, prev, "boundaries must be strictly increasing")
		}
		prev = b
	}

	// 片段首尾相接覆盖整个会话
	assert.Equal(t, 0, result.Segments[0].StartIndex)
	assert.Equal(t, total-1, result.Segments[len(result.Segments)-1].EndIndex)
	for i := 1; i < len(result.Segments); i++ {
		assert.Equal(t, result.Segments[i-1].EndIndex+1, result.Segments[i].StartIndex)
	}
}

func TestSegmentConversation_EmbeddingUnavailableProceedsTopicOnly(t *testing.T) {
	const total, switchAt = 20, 10
	segmenter := newTestSegmenter(
		nil, // 向量服务未配置
		splitTopicProvider(total, switchAt),
		nil,
		testSegmenterConfig(),
	)

	messages := makeMessages(repeatTexts(total, "fallback")...)
	result, err := segmenter.SegmentConversation("conv-topic-only", messages)
	require.NoError(t, err)

	assert.Nil(t, result.Drift)
	assert.Zero(t, result.Report.EmbeddingDriftScore)
	// 单一信号不足 2 票，主题切换不能独自确认边界
	assert.Len(t, result.Segments, 1)
	// 片段锚点在无向量时缺省
	assert.Empty(t, result.Segments[0].AnchorEmbedding)
}

func TestSegmentConversation_JudgeVoteConfirmsWithTopic(t *testing.T) {
	const total, switchAt = 20, 10

	// judge 在第 10 条（第二批首条）建议分段
	judge := &fakeJudgeProvider{}
	judge.respond = func(prompt string) (string, error) {
		if judge.calls == 1 {
			return batchResponse(10, "continuing", 9, -1), nil
		}
		return batchResponse(10, "branching", 2, 0), nil
	}

	segmenter := newTestSegmenter(
		nil, // 无向量信号，由 topic + judge 凑满票权
		splitTopicProvider(total, switchAt),
		judge,
		testSegmenterConfig(),
	)

	messages := makeMessages(repeatTexts(total, "pivot")...)
	result, err := segmenter.SegmentConversation("conv-judge", messages)
	require.NoError(t, err)

	require.Len(t, result.Segments, 2)
	assert.Equal(t, switchAt, result.Segments[1].StartIndex)

	// judge 启用时报告携带归一化的相关性分量
	assert.GreaterOrEqual(t, result.Report.LLMRelevanceScore, 0.0)
	assert.True(t, result.Report.HasJudgeSignal())
	assert.Equal(t, 10, result.Report.Metrics.BranchCount)
	assert.InDelta(t, 5.5, result.Report.Metrics.MeanRelevance, 1e-9)
}

func TestSegmentConversation_ScoreBounds(t *testing.T) {
	for name, segmenter := range map[string]*EnsembleSegmenter{
		"focused": newTestSegmenter(axisEmbedder(100), splitTopicProvider(20, 20), nil, testSegmenterConfig()),
		"split":   newTestSegmenter(axisEmbedder(10), splitTopicProvider(20, 10), nil, testSegmenterConfig()),
	} {
		messages := makeMessages(repeatTexts(20, name)...)
		result, err := segmenter.SegmentConversation("conv-"+name, messages)
		require.NoError(t, err, name)

		score := result.Report.OverallScore
		assert.GreaterOrEqual(t, score, 0.0, name)
		assert.LessOrEqual(t, score, 1.0, name)
		assert.NotEmpty(t, result.Report.Interpretation, name)
	}
}

func TestSegmentConversation_FocusedScoresBelowDiverged(t *testing.T) {
	const total = 20

	focused := newTestSegmenter(axisEmbedder(total), splitTopicProvider(total, total), nil, testSegmenterConfig())
	diverged := newTestSegmenter(axisEmbedder(total/2), splitTopicProvider(total, total/2), nil, testSegmenterConfig())

	messages := makeMessages(repeatTexts(total, "compare")...)

	focusedRes, err := focused.SegmentConversation("conv-focused", messages)
	require.NoError(t, err)
	divergedRes, err := diverged.SegmentConversation("conv-diverged", messages)
	require.NoError(t, err)

	assert.Less(t, focusedRes.Report.OverallScore, divergedRes.Report.OverallScore)
	assert.False(t, focusedRes.Report.ShouldSplit)
}

func TestInterpretScore_Buckets(t *testing.T) {
	assert.Contains(t, interpretScore(0.1), "highly focused")
	assert.Contains(t, interpretScore(0.3), "minor tangents")
	assert.Contains(t, interpretScore(0.5), "moderate")
	assert.Contains(t, interpretScore(0.7), "significantly")
	assert.Contains(t, interpretScore(0.9), "consider splitting")
}
