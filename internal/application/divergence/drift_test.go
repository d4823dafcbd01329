package divergence

import (
	"testing"

	domainDiv "github.com/driftwatch/backend/internal/domain/divergence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeDriftCurve_ProviderUnavailable(t *testing.T) {
	analyzer := NewDriftAnalyzer(nil, 3, 3)

	_, err := analyzer.ComputeDriftCurve([]string{"hello"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domainDiv.ErrProviderUnavailable)
}

func TestComputeDriftCurve_ProviderErrorWrapped(t *testing.T) {
	analyzer := NewDriftAnalyzer(&fakeEmbedder{err: assert.AnError}, 3, 3)

	_, err := analyzer.ComputeDriftCurve([]string{"hello"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domainDiv.ErrProviderUnavailable)
}

func TestComputeDriftCurve_SummaryMetrics(t *testing.T) {
	// 前 5 条对齐锚点方向，后 5 条正交，漂移应从 0 上升
	analyzer := NewDriftAnalyzer(axisEmbedder(5), 3, 1)

	result, err := analyzer.ComputeDriftCurve(repeatTexts(10, "golang"))
	require.NoError(t, err)
	require.Len(t, result.DriftScores, 10)

	for i, score := range result.DriftScores {
		assert.GreaterOrEqual(t, score, 0.0, "score %d below range", i)
		assert.LessOrEqual(t, score, 1.0, "score %d above range", i)
	}

	// 汇总指标的顺序关系
	assert.GreaterOrEqual(t, result.MaxDrift, result.MeanDrift)
	assert.GreaterOrEqual(t, result.MaxDrift, result.FinalDrift)

	// 锚点对齐阶段漂移接近 0，正交阶段接近 1
	assert.InDelta(t, 0.0, result.DriftScores[0], 1e-6)
	assert.Greater(t, result.DriftScores[9], 0.9)
}

func TestComputeDriftCurve_AllEmptyTexts(t *testing.T) {
	embedder := &fakeEmbedder{
		vectorFor: func(int, string) []float32 { return []float32{0, 0, 0} },
	}
	analyzer := NewDriftAnalyzer(embedder, 3, 3)

	result, err := analyzer.ComputeDriftCurve([]string{"", "  ", "\t"})
	require.NoError(t, err)

	for _, score := range result.DriftScores {
		assert.Zero(t, score)
	}
	assert.Zero(t, result.MaxDrift)
	assert.Zero(t, result.MeanDrift)
}

func TestComputeDriftCurve_EmptyConversation(t *testing.T) {
	analyzer := NewDriftAnalyzer(axisEmbedder(0), 3, 3)

	result, err := analyzer.ComputeDriftCurve(nil)
	require.NoError(t, err)
	assert.Empty(t, result.DriftScores)
}

func TestDetectChangepoints_TooShort(t *testing.T) {
	analyzer := NewDriftAnalyzer(nil, 3, 3)

	// 消息数不足 2×minSegmentLength 时不产生候选点
	scores := []float64{0, 0.1, 0.9, 0.9, 0.9}
	points := analyzer.DetectChangepoints(scores, 0.35, 3, 0.15)
	assert.Empty(t, points)
}

func TestDetectChangepoints_SustainedRise(t *testing.T) {
	analyzer := NewDriftAnalyzer(nil, 3, 3)

	scores := []float64{0, 0.05, 0.1, 0.5, 0.6, 0.6, 0.55, 0.6, 0.6, 0.6}
	points := analyzer.DetectChangepoints(scores, 0.35, 3, 0.15)

	require.NotEmpty(t, points)
	assert.Equal(t, 3, points[0])
}

func TestDetectChangepoints_SpacingInvariant(t *testing.T) {
	analyzer := NewDriftAnalyzer(nil, 3, 3)

	// 反复大幅跳变会触发大量突变候选，但间距约束必须保持
	scores := make([]float64, 20)
	for i := range scores {
		if i%2 == 0 {
			scores[i] = 0.0
		} else {
			scores[i] = 0.9
		}
	}

	minSegLen := 3
	points := analyzer.DetectChangepoints(scores, 0.35, minSegLen, 0.15)
	for i := 1; i < len(points); i++ {
		assert.GreaterOrEqual(t, points[i]-points[i-1], minSegLen,
			"points %v violate spacing", points)
	}
}

func TestDetectChangepoints_ReturnToBaseline(t *testing.T) {
	analyzer := NewDriftAnalyzer(nil, 3, 3)

	// 偏离后回到基线附近，回归处也应产生候选点
	scores := []float64{0, 0.05, 0.5, 0.55, 0.6, 0.55, 0.1, 0.05, 0.05, 0.05, 0.05, 0.05}
	points := analyzer.DetectChangepoints(scores, 0.35, 3, 0.15)

	require.GreaterOrEqual(t, len(points), 2)
	// 第二个点落在回归基线的区域
	assert.GreaterOrEqual(t, points[1], 5)
	assert.LessOrEqual(t, points[1], 7)
}
