package storage

import (
	"database/sql"
	"encoding/json"
	"time"

	domainDiv "github.com/driftwatch/backend/internal/domain/divergence"
)

// 确保 ReportRepositoryImpl 实现了 domainDiv.ReportRepository 接口
var _ domainDiv.ReportRepository = (*ReportRepositoryImpl)(nil)

// ReportRepositoryImpl 漂移报告仓库实现
type ReportRepositoryImpl struct {
	db *sql.DB
}

// NewReportRepository 创建漂移报告仓库实例
func NewReportRepository(db *sql.DB) domainDiv.ReportRepository {
	return &ReportRepositoryImpl{db: db}
}

// SaveReport 保存报告（每个会话至多一条，upsert）
func (r *ReportRepositoryImpl) SaveReport(report *domainDiv.DivergenceReport) error {
	metrics, err := json.Marshal(report.Metrics)
	if err != nil {
		return &domainDiv.PersistenceError{Op: "save_report", Err: err}
	}

	splitPoints := report.SuggestedSplitPoints
	if splitPoints == nil {
		splitPoints = []int{}
	}
	points, err := json.Marshal(splitPoints)
	if err != nil {
		return &domainDiv.PersistenceError{Op: "save_report", Err: err}
	}

	query := `
		INSERT OR REPLACE INTO divergence_reports (
			conversation_id, overall_score, embedding_drift_score, topic_entropy_score,
			topic_transition_score, llm_relevance_score, metrics, num_segments,
			should_split, suggested_split_points, interpretation, computed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.Exec(
		query,
		report.ConversationID,
		report.OverallScore,
		report.EmbeddingDriftScore,
		report.TopicEntropyScore,
		report.TopicTransitionScore,
		report.LLMRelevanceScore,
		string(metrics),
		report.NumSegments,
		boolToInt(report.ShouldSplit),
		string(points),
		report.Interpretation,
		report.ComputedAt.Unix(),
	)
	if err != nil {
		return &domainDiv.PersistenceError{Op: "save_report", Err: err}
	}
	return nil
}

// GetReport 获取会话报告，不存在时返回 nil
func (r *ReportRepositoryImpl) GetReport(conversationID string) (*domainDiv.DivergenceReport, error) {
	query := `
		SELECT conversation_id, overall_score, embedding_drift_score, topic_entropy_score,
		       topic_transition_score, llm_relevance_score, metrics, num_segments,
		       should_split, suggested_split_points, interpretation, computed_at
		FROM divergence_reports
		WHERE conversation_id = ?`

	var report domainDiv.DivergenceReport
	var metrics, points string
	var shouldSplit int
	var computedAt int64

	err := r.db.QueryRow(query, conversationID).Scan(
		&report.ConversationID,
		&report.OverallScore,
		&report.EmbeddingDriftScore,
		&report.TopicEntropyScore,
		&report.TopicTransitionScore,
		&report.LLMRelevanceScore,
		&metrics,
		&report.NumSegments,
		&shouldSplit,
		&points,
		&report.Interpretation,
		&computedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(metrics), &report.Metrics); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(points), &report.SuggestedSplitPoints); err != nil {
		return nil, err
	}
	report.ShouldSplit = shouldSplit != 0
	report.ComputedAt = time.Unix(computedAt, 0)

	return &report, nil
}

// ConversationIDsWithReport 返回已有报告的会话 ID 集合
func (r *ReportRepositoryImpl) ConversationIDsWithReport() (map[string]bool, error) {
	rows, err := r.db.Query("SELECT conversation_id FROM divergence_reports")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = true
	}
	return ids, rows.Err()
}

// boolToInt sqlite 布尔列编码
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
