package storage

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainDiv "github.com/driftwatch/backend/internal/domain/divergence"
)

// setupTestDB 创建临时测试数据库
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := OpenDB(dbPath)
	require.NoError(t, err)

	require.NoError(t, InitDatabase(db))

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

func TestSegmentRepository_ReplaceAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSegmentRepository(db)

	seg1 := domainDiv.NewSegment("conv-1", 0, 4)
	seg1.AnchorEmbedding = []float32{0.6, 0.8, 0}
	seg1.DivergenceScore = 0.12
	seg1.TopicLabel = "setup"

	seg2 := domainDiv.NewSegment("conv-1", 5, 9)
	seg2.ParentSegmentID = seg1.ID
	seg2.DivergenceScore = 0.47

	require.NoError(t, repo.ReplaceSegments("conv-1", []*domainDiv.Segment{seg1, seg2}))

	got, err := repo.GetSegments("conv-1")
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, seg1.StartIndex, got[0].StartIndex)
	assert.Equal(t, seg1.EndIndex, got[0].EndIndex)
	assert.Equal(t, seg1.DivergenceScore, got[0].DivergenceScore)
	assert.Equal(t, "setup", got[0].TopicLabel)
	assert.True(t, got[0].IsRoot())

	require.Len(t, got[0].AnchorEmbedding, 3)
	for i, v := range seg1.AnchorEmbedding {
		assert.InDelta(t, v, got[0].AnchorEmbedding[i], 1e-6)
	}

	assert.Equal(t, seg1.ID, got[1].ParentSegmentID)
	assert.Nil(t, got[1].AnchorEmbedding)
}

func TestSegmentRepository_ReplaceIsAtomic(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSegmentRepository(db)

	old := domainDiv.NewSegment("conv-1", 0, 9)
	require.NoError(t, repo.ReplaceSegments("conv-1", []*domainDiv.Segment{old}))

	// 重新分析后旧片段整体被替换
	newSeg1 := domainDiv.NewSegment("conv-1", 0, 4)
	newSeg2 := domainDiv.NewSegment("conv-1", 5, 9)
	require.NoError(t, repo.ReplaceSegments("conv-1", []*domainDiv.Segment{newSeg1, newSeg2}))

	got, err := repo.GetSegments("conv-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.NotEqual(t, old.ID, got[0].ID)
}

func TestSegmentRepository_GetSegmentNotFound(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSegmentRepository(db)

	_, err := repo.GetSegment("missing")
	assert.ErrorIs(t, err, domainDiv.ErrSegmentNotFound)
}

func TestSegmentRepository_AllSegmentsWithEmbedding(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSegmentRepository(db)

	withVec := domainDiv.NewSegment("conv-1", 0, 4)
	withVec.AnchorEmbedding = []float32{1, 0, 0}
	withoutVec := domainDiv.NewSegment("conv-1", 5, 9)

	require.NoError(t, repo.ReplaceSegments("conv-1", []*domainDiv.Segment{withVec, withoutVec}))

	got, err := repo.AllSegmentsWithEmbedding()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, withVec.ID, got[0].ID)
}
