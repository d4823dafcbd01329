package divergence

import (
	"context"
	"testing"

	domainDiv "github.com/driftwatch/backend/internal/domain/divergence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedSegment 写入一个带锚点向量的片段
func seedSegment(t *testing.T, repo *memSegmentRepo, conversationID string, anchor []float32, divergence float64) *domainDiv.Segment {
	t.Helper()
	seg := domainDiv.NewSegment(conversationID, 0, 4)
	seg.AnchorEmbedding = anchor
	seg.DivergenceScore = divergence
	require.NoError(t, repo.ReplaceSegments(conversationID, append(repo.segments[conversationID], seg)))
	return seg
}

func TestFindSimilar_ScanOrdersBySimilarity(t *testing.T) {
	repo := newMemSegmentRepo()
	source := seedSegment(t, repo, "conv-a", []float32{1, 0, 0}, 0.1)
	near := seedSegment(t, repo, "conv-b", []float32{0.9, 0.1, 0}, 0.1)
	seedSegment(t, repo, "conv-c", []float32{0, 1, 0}, 0.1)

	linker := NewLinker(repo, &memLinkRepo{}, nil)

	results, err := linker.FindSimilar(context.Background(), source.ID, 0.3, 10, true)
	require.NoError(t, err)

	// 正交片段被 minSimilarity 过滤，只剩近邻
	require.Len(t, results, 1)
	assert.Equal(t, near.ID, results[0].Segment.ID)
	assert.Greater(t, results[0].Similarity, 0.9)
}

func TestFindSimilar_ExcludesSameConversation(t *testing.T) {
	repo := newMemSegmentRepo()
	source := seedSegment(t, repo, "conv-a", []float32{1, 0, 0}, 0.1)
	seedSegment(t, repo, "conv-a", []float32{1, 0, 0}, 0.2)
	other := seedSegment(t, repo, "conv-b", []float32{1, 0, 0}, 0.2)

	linker := NewLinker(repo, &memLinkRepo{}, nil)

	results, err := linker.FindSimilar(context.Background(), source.ID, 0.3, 10, true)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, other.ID, results[0].Segment.ID)

	// 不排除同会话时两个候选都返回
	results, err = linker.FindSimilar(context.Background(), source.ID, 0.3, 10, false)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestFindSimilar_UnknownSegment(t *testing.T) {
	linker := NewLinker(newMemSegmentRepo(), &memLinkRepo{}, nil)

	_, err := linker.FindSimilar(context.Background(), "missing", 0.3, 10, true)
	assert.ErrorIs(t, err, domainDiv.ErrSegmentNotFound)
}

func TestBestLinkTarget_Thresholds(t *testing.T) {
	linker := NewLinker(newMemSegmentRepo(), &memLinkRepo{}, nil)

	source := domainDiv.NewSegment("conv-a", 0, 4)
	target := domainDiv.NewSegment("conv-b", 0, 4)

	candidate := func(sim float64) []*domainDiv.SimilarSegment {
		return []*domainDiv.SimilarSegment{{Segment: target, Similarity: sim}}
	}

	// 最高相似度低于 0.3：不建链
	assert.Nil(t, linker.BestLinkTarget(source, candidate(0.2)))

	// 高相似度：continues
	link := linker.BestLinkTarget(source, candidate(0.95))
	require.NotNil(t, link)
	assert.Equal(t, domainDiv.LinkTypeContinues, link.LinkType)

	// 中等相似度 + 高漂移源片段：branches_from
	source.DivergenceScore = 0.7
	link = linker.BestLinkTarget(source, candidate(0.6))
	require.NotNil(t, link)
	assert.Equal(t, domainDiv.LinkTypeBranchesFrom, link.LinkType)

	// 中等相似度 + 低漂移：references
	source.DivergenceScore = 0.1
	link = linker.BestLinkTarget(source, candidate(0.6))
	require.NotNil(t, link)
	assert.Equal(t, domainDiv.LinkTypeReferences, link.LinkType)
}

func TestLinkSegment_SavesInferredLink(t *testing.T) {
	repo := newMemSegmentRepo()
	links := &memLinkRepo{}
	source := seedSegment(t, repo, "conv-a", []float32{1, 0, 0}, 0.1)
	target := seedSegment(t, repo, "conv-b", []float32{0.99, 0.01, 0}, 0.1)

	linker := NewLinker(repo, links, nil)

	link, err := linker.LinkSegment(context.Background(), source.ID)
	require.NoError(t, err)
	require.NotNil(t, link)
	assert.Equal(t, source.ID, link.SourceSegmentID)
	assert.Equal(t, target.ID, link.TargetSegmentID)
	assert.Equal(t, domainDiv.LinkTypeContinues, link.LinkType)

	saved, err := linker.GetLinks(source.ID)
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.Equal(t, link.ID, saved[0].ID)
}

func TestLinkSegment_NoCandidateNoLink(t *testing.T) {
	repo := newMemSegmentRepo()
	links := &memLinkRepo{}
	source := seedSegment(t, repo, "conv-a", []float32{1, 0, 0}, 0.1)
	seedSegment(t, repo, "conv-b", []float32{0, 1, 0}, 0.1)

	linker := NewLinker(repo, links, nil)

	link, err := linker.LinkSegment(context.Background(), source.ID)
	require.NoError(t, err)
	assert.Nil(t, link)
	assert.Empty(t, links.links)
}
