package divergence

import "context"

// SegmentRepository 片段仓储
// 持久层独占所有片段状态，分析器与批处理器只持有传递中的值
type SegmentRepository interface {
	// ReplaceSegments 事务性替换会话的全部片段
	// 旧片段整体删除、新片段整体写入，不允许部分覆盖可见
	ReplaceSegments(conversationID string, segments []*Segment) error

	// GetSegments 获取会话片段（按 StartIndex 升序）
	GetSegments(conversationID string) ([]*Segment, error)

	// GetSegment 按 ID 获取片段，不存在时返回 ErrSegmentNotFound
	GetSegment(segmentID string) (*Segment, error)

	// AllSegmentsWithEmbedding 返回所有带锚点向量的片段（用于相似度全量扫描）
	AllSegmentsWithEmbedding() ([]*Segment, error)
}

// ReportRepository 漂移报告仓储
type ReportRepository interface {
	// SaveReport 保存报告（每个会话至多一条，upsert）
	SaveReport(report *DivergenceReport) error

	// GetReport 获取会话报告，不存在时返回 nil
	GetReport(conversationID string) (*DivergenceReport, error)

	// ConversationIDsWithReport 返回已有报告的会话 ID 集合
	ConversationIDsWithReport() (map[string]bool, error)
}

// LinkRepository 片段链接仓储
type LinkRepository interface {
	// SaveLink 保存链接
	SaveLink(link *SegmentLink) error

	// GetLinksFrom 获取从指定片段出发的链接
	GetLinksFrom(segmentID string) ([]*SegmentLink, error)
}

// QueueRepository 分析队列仓储
type QueueRepository interface {
	// Enqueue 入队（同会话重复入队覆盖）
	Enqueue(entry *QueueEntry) error

	// NextPending 原子地认领下一条待处理条目并标记为 processing
	// 队列为空时返回 nil
	NextPending() (*QueueEntry, error)

	// MarkComplete 标记完成；errMsg 非空时记为失败
	MarkComplete(conversationID string, errMsg string) error

	// GetEntry 获取条目，不存在时返回 nil
	GetEntry(conversationID string) (*QueueEntry, error)

	// Stats 队列统计
	Stats() (*QueueStats, error)

	// ResetFailed 将失败条目重置为待处理，返回重置数量
	ResetFailed() (int, error)

	// Clear 清空队列
	Clear() error
}

// VectorIndex 可选的片段锚点向量索引
// 未配置时相似度查询退回 sqlite 全量扫描
type VectorIndex interface {
	// UpsertSegments 写入/更新片段锚点向量
	UpsertSegments(ctx context.Context, segments []*Segment) error

	// SearchSimilar 按余弦相似度检索最相近的片段 ID
	SearchSimilar(ctx context.Context, vector []float32, limit int) ([]ScoredSegmentID, error)
}

// ScoredSegmentID 向量索引检索结果
type ScoredSegmentID struct {
	SegmentID string
	Score     float64
}
