package storage

import (
	"database/sql"
	"encoding/json"
	"time"

	domainDiv "github.com/driftwatch/backend/internal/domain/divergence"
)

// 确保 SegmentRepositoryImpl 实现了 domainDiv.SegmentRepository 接口
var _ domainDiv.SegmentRepository = (*SegmentRepositoryImpl)(nil)

// SegmentRepositoryImpl 片段仓库实现
type SegmentRepositoryImpl struct {
	db *sql.DB
}

// NewSegmentRepository 创建片段仓库实例
func NewSegmentRepository(db *sql.DB) domainDiv.SegmentRepository {
	return &SegmentRepositoryImpl{db: db}
}

// ReplaceSegments 事务性替换会话的全部片段
// 旧片段删除与新片段写入在同一事务内提交，读取方不会看到中间状态
func (r *SegmentRepositoryImpl) ReplaceSegments(conversationID string, segments []*domainDiv.Segment) error {
	tx, err := r.db.Begin()
	if err != nil {
		return &domainDiv.PersistenceError{Op: "replace_segments", Err: err}
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM segments WHERE conversation_id = ?", conversationID); err != nil {
		return &domainDiv.PersistenceError{Op: "replace_segments", Err: err}
	}

	stmt, err := tx.Prepare(`
		INSERT INTO segments (
			id, conversation_id, start_index, end_index, anchor_embedding,
			summary, topic_label, parent_segment_id, divergence_score, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return &domainDiv.PersistenceError{Op: "replace_segments", Err: err}
	}
	defer stmt.Close()

	for _, seg := range segments {
		embedding, err := encodeEmbedding(seg.AnchorEmbedding)
		if err != nil {
			return &domainDiv.PersistenceError{Op: "replace_segments", Err: err}
		}

		_, err = stmt.Exec(
			seg.ID,
			seg.ConversationID,
			seg.StartIndex,
			seg.EndIndex,
			embedding,
			seg.Summary,
			seg.TopicLabel,
			seg.ParentSegmentID,
			seg.DivergenceScore,
			seg.CreatedAt.Unix(),
		)
		if err != nil {
			return &domainDiv.PersistenceError{Op: "replace_segments", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &domainDiv.PersistenceError{Op: "replace_segments", Err: err}
	}
	return nil
}

// GetSegments 获取会话片段（按 StartIndex 升序）
func (r *SegmentRepositoryImpl) GetSegments(conversationID string) ([]*domainDiv.Segment, error) {
	query := `
		SELECT id, conversation_id, start_index, end_index, anchor_embedding,
		       summary, topic_label, parent_segment_id, divergence_score, created_at
		FROM segments
		WHERE conversation_id = ?
		ORDER BY start_index ASC`

	rows, err := r.db.Query(query, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSegments(rows)
}

// GetSegment 按 ID 获取片段
func (r *SegmentRepositoryImpl) GetSegment(segmentID string) (*domainDiv.Segment, error) {
	query := `
		SELECT id, conversation_id, start_index, end_index, anchor_embedding,
		       summary, topic_label, parent_segment_id, divergence_score, created_at
		FROM segments
		WHERE id = ?`

	seg, err := scanSegment(r.db.QueryRow(query, segmentID))
	if err == sql.ErrNoRows {
		return nil, domainDiv.ErrSegmentNotFound
	}
	if err != nil {
		return nil, err
	}
	return seg, nil
}

// AllSegmentsWithEmbedding 返回所有带锚点向量的片段
func (r *SegmentRepositoryImpl) AllSegmentsWithEmbedding() ([]*domainDiv.Segment, error) {
	query := `
		SELECT id, conversation_id, start_index, end_index, anchor_embedding,
		       summary, topic_label, parent_segment_id, divergence_score, created_at
		FROM segments
		WHERE anchor_embedding IS NOT NULL AND anchor_embedding != ''`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSegments(rows)
}

// rowScanner sql.Row 与 sql.Rows 的公共扫描接口
type rowScanner interface {
	Scan(dest ...any) error
}

// scanSegment 扫描单行片段
func scanSegment(row rowScanner) (*domainDiv.Segment, error) {
	var seg domainDiv.Segment
	var embedding sql.NullString
	var summary, topicLabel, parentID sql.NullString
	var createdAt int64

	err := row.Scan(
		&seg.ID,
		&seg.ConversationID,
		&seg.StartIndex,
		&seg.EndIndex,
		&embedding,
		&summary,
		&topicLabel,
		&parentID,
		&seg.DivergenceScore,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	if embedding.Valid && embedding.String != "" {
		vec, err := decodeEmbedding(embedding.String)
		if err != nil {
			return nil, err
		}
		seg.AnchorEmbedding = vec
	}
	seg.Summary = summary.String
	seg.TopicLabel = topicLabel.String
	seg.ParentSegmentID = parentID.String
	seg.CreatedAt = time.Unix(createdAt, 0)

	return &seg, nil
}

// scanSegments 扫描多行片段
func scanSegments(rows *sql.Rows) ([]*domainDiv.Segment, error) {
	var results []*domainDiv.Segment
	for rows.Next() {
		seg, err := scanSegment(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, seg)
	}
	return results, rows.Err()
}

// encodeEmbedding 序列化锚点向量为 JSON
// nil 向量存为空字符串
func encodeEmbedding(vec []float32) (string, error) {
	if len(vec) == 0 {
		return "", nil
	}
	data, err := json.Marshal(vec)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// decodeEmbedding 反序列化锚点向量
func decodeEmbedding(data string) ([]float32, error) {
	var vec []float32
	if err := json.Unmarshal([]byte(data), &vec); err != nil {
		return nil, err
	}
	return vec, nil
}
