package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainDiv "github.com/driftwatch/backend/internal/domain/divergence"
)

func TestReportRepository_SaveAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewReportRepository(db)

	report := &domainDiv.DivergenceReport{
		ConversationID:       "conv-1",
		OverallScore:         0.63,
		EmbeddingDriftScore:  0.8,
		TopicEntropyScore:    0.5,
		TopicTransitionScore: 0.4,
		LLMRelevanceScore:    -1,
		Metrics: domainDiv.Metrics{
			MaxDrift:     0.55,
			MeanDrift:    0.4,
			NumTopics:    3,
			TopicEntropy: 1.5,
		},
		NumSegments:          4,
		ShouldSplit:          true,
		SuggestedSplitPoints: []int{5, 11, 18},
		Interpretation:       "Conversation diverges significantly from the original topic",
		ComputedAt:           time.Now(),
	}

	require.NoError(t, repo.SaveReport(report))

	got, err := repo.GetReport("conv-1")
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, report.OverallScore, got.OverallScore)
	assert.Equal(t, report.Metrics.NumTopics, got.Metrics.NumTopics)
	assert.Equal(t, []int{5, 11, 18}, got.SuggestedSplitPoints)
	assert.True(t, got.ShouldSplit)
	assert.False(t, got.HasJudgeSignal())
}

func TestReportRepository_UpsertOverwrites(t *testing.T) {
	db := setupTestDB(t)
	repo := NewReportRepository(db)

	first := &domainDiv.DivergenceReport{
		ConversationID:       "conv-1",
		OverallScore:         0.2,
		LLMRelevanceScore:    -1,
		SuggestedSplitPoints: []int{},
		ComputedAt:           time.Now(),
	}
	require.NoError(t, repo.SaveReport(first))

	second := &domainDiv.DivergenceReport{
		ConversationID:       "conv-1",
		OverallScore:         0.7,
		LLMRelevanceScore:    0.4,
		NumSegments:          2,
		SuggestedSplitPoints: []int{6},
		ComputedAt:           time.Now(),
	}
	require.NoError(t, repo.SaveReport(second))

	got, err := repo.GetReport("conv-1")
	require.NoError(t, err)
	assert.Equal(t, 0.7, got.OverallScore)
	assert.True(t, got.HasJudgeSignal())
}

func TestReportRepository_MissingReturnsNil(t *testing.T) {
	db := setupTestDB(t)
	repo := NewReportRepository(db)

	got, err := repo.GetReport("missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestReportRepository_ConversationIDsWithReport(t *testing.T) {
	db := setupTestDB(t)
	repo := NewReportRepository(db)

	for _, id := range []string{"a", "b"} {
		require.NoError(t, repo.SaveReport(&domainDiv.DivergenceReport{
			ConversationID:       id,
			LLMRelevanceScore:    -1,
			SuggestedSplitPoints: []int{},
			ComputedAt:           time.Now(),
		}))
	}

	ids, err := repo.ConversationIDsWithReport()
	require.NoError(t, err)
	assert.True(t, ids["a"])
	assert.True(t, ids["b"])
	assert.False(t, ids["c"])
}
