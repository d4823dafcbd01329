package storage

import (
	"database/sql"
	"time"

	domainDiv "github.com/driftwatch/backend/internal/domain/divergence"
)

// 确保 QueueRepositoryImpl 实现了 domainDiv.QueueRepository 接口
var _ domainDiv.QueueRepository = (*QueueRepositoryImpl)(nil)

// QueueRepositoryImpl 分析队列仓库实现
type QueueRepositoryImpl struct {
	db *sql.DB
}

// NewQueueRepository 创建分析队列仓库实例
func NewQueueRepository(db *sql.DB) domainDiv.QueueRepository {
	return &QueueRepositoryImpl{db: db}
}

// Enqueue 入队（同会话重复入队覆盖）
func (r *QueueRepositoryImpl) Enqueue(entry *domainDiv.QueueEntry) error {
	query := `
		INSERT OR REPLACE INTO analysis_queue (
			conversation_id, status, priority, queued_at, started_at, completed_at, error
		) VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.Exec(
		query,
		entry.ConversationID,
		entry.Status,
		entry.Priority,
		entry.QueuedAt,
		entry.StartedAt,
		entry.CompletedAt,
		entry.Error,
	)
	if err != nil {
		return &domainDiv.PersistenceError{Op: "enqueue", Err: err}
	}
	return nil
}

// NextPending 原子地认领下一条待处理条目
// 先选出优先级最高的 pending 条目，再以状态守卫的 UPDATE 完成认领；
// 认领竞争失败（RowsAffected 为 0）时重试下一条，保证多 worker 不会重复处理
func (r *QueueRepositoryImpl) NextPending() (*domainDiv.QueueEntry, error) {
	for {
		query := `
			SELECT conversation_id, status, priority, queued_at, started_at, completed_at, error
			FROM analysis_queue
			WHERE status = ?
			ORDER BY priority DESC, queued_at ASC
			LIMIT 1`

		var entry domainDiv.QueueEntry
		err := r.db.QueryRow(query, domainDiv.QueueStatusPending).Scan(
			&entry.ConversationID,
			&entry.Status,
			&entry.Priority,
			&entry.QueuedAt,
			&entry.StartedAt,
			&entry.CompletedAt,
			&entry.Error,
		)
		if err == sql.ErrNoRows {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}

		claim := `
			UPDATE analysis_queue
			SET status = ?, started_at = ?
			WHERE conversation_id = ? AND status = ?`

		result, err := r.db.Exec(
			claim,
			domainDiv.QueueStatusProcessing,
			time.Now().Unix(),
			entry.ConversationID,
			domainDiv.QueueStatusPending,
		)
		if err != nil {
			return nil, &domainDiv.PersistenceError{Op: "next_pending", Err: err}
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return nil, &domainDiv.PersistenceError{Op: "next_pending", Err: err}
		}
		if affected == 0 {
			// 被其他 worker 抢先认领，重试下一条
			continue
		}

		entry.MarkProcessing()
		return &entry, nil
	}
}

// MarkComplete 标记完成；errMsg 非空时记为失败
func (r *QueueRepositoryImpl) MarkComplete(conversationID string, errMsg string) error {
	status := domainDiv.QueueStatusCompleted
	if errMsg != "" {
		status = domainDiv.QueueStatusFailed
	}

	query := `
		UPDATE analysis_queue
		SET status = ?, completed_at = ?, error = ?
		WHERE conversation_id = ?`

	_, err := r.db.Exec(query, status, time.Now().Unix(), errMsg, conversationID)
	if err != nil {
		return &domainDiv.PersistenceError{Op: "mark_complete", Err: err}
	}
	return nil
}

// GetEntry 获取条目，不存在时返回 nil
func (r *QueueRepositoryImpl) GetEntry(conversationID string) (*domainDiv.QueueEntry, error) {
	query := `
		SELECT conversation_id, status, priority, queued_at, started_at, completed_at, error
		FROM analysis_queue
		WHERE conversation_id = ?`

	var entry domainDiv.QueueEntry
	err := r.db.QueryRow(query, conversationID).Scan(
		&entry.ConversationID,
		&entry.Status,
		&entry.Priority,
		&entry.QueuedAt,
		&entry.StartedAt,
		&entry.CompletedAt,
		&entry.Error,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// Stats 队列统计
func (r *QueueRepositoryImpl) Stats() (*domainDiv.QueueStats, error) {
	query := `
		SELECT
			SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END) as pending_count,
			SUM(CASE WHEN status = 'processing' THEN 1 ELSE 0 END) as processing_count,
			SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END) as completed_count,
			SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END) as failed_count
		FROM analysis_queue`

	var stats domainDiv.QueueStats
	var pending, processing, completed, failed sql.NullInt64

	err := r.db.QueryRow(query).Scan(&pending, &processing, &completed, &failed)
	if err != nil {
		return nil, err
	}

	if pending.Valid {
		stats.PendingCount = int(pending.Int64)
	}
	if processing.Valid {
		stats.ProcessingCount = int(processing.Int64)
	}
	if completed.Valid {
		stats.CompletedCount = int(completed.Int64)
	}
	if failed.Valid {
		stats.FailedCount = int(failed.Int64)
	}

	return &stats, nil
}

// ResetFailed 将失败条目重置为待处理，返回重置数量
func (r *QueueRepositoryImpl) ResetFailed() (int, error) {
	query := `
		UPDATE analysis_queue
		SET status = ?, started_at = 0, completed_at = 0, error = ''
		WHERE status = ?`

	result, err := r.db.Exec(query, domainDiv.QueueStatusPending, domainDiv.QueueStatusFailed)
	if err != nil {
		return 0, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

// Clear 清空队列
func (r *QueueRepositoryImpl) Clear() error {
	_, err := r.db.Exec("DELETE FROM analysis_queue")
	return err
}
