package divergence

import "time"

// 队列条目状态常量
const (
	QueueStatusPending    = "pending"
	QueueStatusProcessing = "processing"
	QueueStatusCompleted  = "completed"
	QueueStatusFailed     = "failed"
)

// DefaultQueuePriority 默认队列优先级
const DefaultQueuePriority = 0

// QueueEntry 分析队列条目
// 唯一键为会话 ID，重复入队覆盖旧条目
type QueueEntry struct {
	ConversationID string // 会话 ID（主键）
	Status         string // pending/processing/completed/failed
	Priority       int    // 优先级，数值越大越优先
	QueuedAt       int64  // 入队时间（Unix 秒）
	StartedAt      int64  // 开始处理时间，0 表示未开始
	CompletedAt    int64  // 完成时间，0 表示未完成
	Error          string // 失败原因
}

// NewQueueEntry 创建队列条目
func NewQueueEntry(conversationID string, priority int) *QueueEntry {
	return &QueueEntry{
		ConversationID: conversationID,
		Status:         QueueStatusPending,
		Priority:       priority,
		QueuedAt:       time.Now().Unix(),
	}
}

// MarkProcessing 标记为处理中
func (e *QueueEntry) MarkProcessing() {
	e.Status = QueueStatusProcessing
	e.StartedAt = time.Now().Unix()
}

// MarkCompleted 标记为完成
func (e *QueueEntry) MarkCompleted() {
	e.Status = QueueStatusCompleted
	e.CompletedAt = time.Now().Unix()
	e.Error = ""
}

// MarkFailed 标记为失败
func (e *QueueEntry) MarkFailed(errMsg string) {
	e.Status = QueueStatusFailed
	e.CompletedAt = time.Now().Unix()
	e.Error = errMsg
}

// Reset 重置为待处理（用于手动重试）
func (e *QueueEntry) Reset() {
	e.Status = QueueStatusPending
	e.StartedAt = 0
	e.CompletedAt = 0
	e.Error = ""
}

// QueueStats 队列统计
type QueueStats struct {
	PendingCount    int `json:"pending_count"`
	ProcessingCount int `json:"processing_count"`
	CompletedCount  int `json:"completed_count"`
	FailedCount     int `json:"failed_count"`
}
