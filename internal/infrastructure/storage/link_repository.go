package storage

import (
	"database/sql"
	"time"

	domainDiv "github.com/driftwatch/backend/internal/domain/divergence"
)

// 确保 LinkRepositoryImpl 实现了 domainDiv.LinkRepository 接口
var _ domainDiv.LinkRepository = (*LinkRepositoryImpl)(nil)

// LinkRepositoryImpl 片段链接仓库实现
type LinkRepositoryImpl struct {
	db *sql.DB
}

// NewLinkRepository 创建片段链接仓库实例
func NewLinkRepository(db *sql.DB) domainDiv.LinkRepository {
	return &LinkRepositoryImpl{db: db}
}

// SaveLink 保存链接
func (r *LinkRepositoryImpl) SaveLink(link *domainDiv.SegmentLink) error {
	query := `
		INSERT OR REPLACE INTO segment_links (
			id, source_segment_id, target_segment_id, link_type, similarity_score, created_at
		) VALUES (?, ?, ?, ?, ?, ?)`

	_, err := r.db.Exec(
		query,
		link.ID,
		link.SourceSegmentID,
		link.TargetSegmentID,
		link.LinkType,
		link.SimilarityScore,
		link.CreatedAt.Unix(),
	)
	if err != nil {
		return &domainDiv.PersistenceError{Op: "save_link", Err: err}
	}
	return nil
}

// GetLinksFrom 获取从指定片段出发的链接
func (r *LinkRepositoryImpl) GetLinksFrom(segmentID string) ([]*domainDiv.SegmentLink, error) {
	query := `
		SELECT id, source_segment_id, target_segment_id, link_type, similarity_score, created_at
		FROM segment_links
		WHERE source_segment_id = ?
		ORDER BY similarity_score DESC`

	rows, err := r.db.Query(query, segmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*domainDiv.SegmentLink
	for rows.Next() {
		var link domainDiv.SegmentLink
		var createdAt int64

		err := rows.Scan(
			&link.ID,
			&link.SourceSegmentID,
			&link.TargetSegmentID,
			&link.LinkType,
			&link.SimilarityScore,
			&createdAt,
		)
		if err != nil {
			return nil, err
		}

		link.CreatedAt = time.Unix(createdAt, 0)
		results = append(results, &link)
	}
	return results, rows.Err()
}
