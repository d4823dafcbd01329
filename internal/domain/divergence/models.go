package divergence

import (
	"time"

	"github.com/google/uuid"
)

// Segment 主题片段
// 表示会话中被归为同一主题的最大连续消息区间
type Segment struct {
	ID              string    // UUID，全局唯一
	ConversationID  string    // 所属会话 ID
	StartIndex      int       // 起始消息索引（含）
	EndIndex        int       // 结束消息索引（含）
	AnchorEmbedding []float32 // 片段锚点向量（消息向量均值重归一化），未配置向量服务时为 nil
	Summary         string    // 片段摘要（按需懒生成）
	TopicLabel      string    // 主题标签（可选）
	ParentSegmentID string    // 回指根片段 ID，根片段为空
	DivergenceScore float64   // 片段内平均漂移，[0,1]
	CreatedAt       time.Time // 创建时间（不可变）
}

// NewSegment 创建片段
func NewSegment(conversationID string, startIndex, endIndex int) *Segment {
	return &Segment{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		StartIndex:     startIndex,
		EndIndex:       endIndex,
		CreatedAt:      time.Now(),
	}
}

// IsRoot 是否为根片段
func (s *Segment) IsRoot() bool {
	return s.ParentSegmentID == ""
}

// MessageCount 片段覆盖的消息数量
func (s *Segment) MessageCount() int {
	return s.EndIndex - s.StartIndex + 1
}

// Metrics 分析指标集合
// 每次分析重新计算，不做原地修改
type Metrics struct {
	MaxDrift           float64 `json:"max_drift"`
	MeanDrift          float64 `json:"mean_drift"`
	DriftVelocity      float64 `json:"drift_velocity"`
	ReturnCount        int     `json:"return_count"`
	FinalDrift         float64 `json:"final_drift"`
	NumTopics          int     `json:"num_topics"`
	TopicEntropy       float64 `json:"topic_entropy"`
	TransitionRate     float64 `json:"transition_rate"`
	DominantTopicRatio float64 `json:"dominant_topic_ratio"`
	MeanRelevance      float64 `json:"mean_relevance"`
	BranchCount        int     `json:"branch_count"`
}

// DivergenceReport 会话漂移报告
// 每个会话至多一条有效记录，重新分析时覆盖
type DivergenceReport struct {
	ConversationID       string    // 会话 ID
	OverallScore         float64   // 综合漂移得分，[0,1]
	EmbeddingDriftScore  float64   // 向量漂移分量
	TopicEntropyScore    float64   // 主题熵分量
	TopicTransitionScore float64   // 主题切换分量
	LLMRelevanceScore    float64   // LLM 相关性分量（未启用 judge 时为 -1）
	Metrics              Metrics   // 指标集合
	NumSegments          int       // 片段数量
	ShouldSplit          bool      // 是否建议拆分会话
	SuggestedSplitPoints []int     // 建议拆分位置（消息索引，升序）
	Interpretation       string    // 人类可读解释
	ComputedAt           time.Time // 计算时间
}

// HasJudgeSignal 报告是否包含 LLM judge 信号
func (r *DivergenceReport) HasJudgeSignal() bool {
	return r.LLMRelevanceScore >= 0
}

// 片段链接类型
const (
	LinkTypeContinues    = "continues"
	LinkTypeReferences   = "references"
	LinkTypeBranchesFrom = "branches_from"
	LinkTypeResolves     = "resolves"
)

// SegmentLink 片段间有向链接
// 仅用于跨会话主题关联
type SegmentLink struct {
	ID              string    // UUID
	SourceSegmentID string    // 源片段 ID
	TargetSegmentID string    // 目标片段 ID
	LinkType        string    // continues/references/branches_from/resolves
	SimilarityScore float64   // 余弦相似度，[0,1]
	CreatedAt       time.Time // 创建时间
}

// NewSegmentLink 创建片段链接
func NewSegmentLink(sourceID, targetID, linkType string, similarity float64) *SegmentLink {
	return &SegmentLink{
		ID:              uuid.NewString(),
		SourceSegmentID: sourceID,
		TargetSegmentID: targetID,
		LinkType:        linkType,
		SimilarityScore: similarity,
		CreatedAt:       time.Now(),
	}
}

// 消息与原始主题的关系分类
const (
	RelationContinuing = "continuing"
	RelationClarifying = "clarifying"
	RelationDrilling   = "drilling"
	RelationBranching  = "branching"
	RelationTangent    = "tangent"
	RelationConcluding = "concluding"
	RelationReturning  = "returning"
)

// Classification LLM judge 对单条消息的分类结果
type Classification struct {
	Relation       string  `json:"relation"`        // 与原始主题的关系
	RelevanceScore float64 `json:"relevance_score"` // 相关性打分，[0,10]
	SuggestedBreak bool    `json:"suggested_break"` // 是否建议在此处分段
	Reasoning      string  `json:"reasoning"`       // 判断理由
}

// NeutralClassification 中性默认分类
// judge 调用失败时使用，保证 ensemble 对可选信号的缺失保持韧性
func NeutralClassification() Classification {
	return Classification{
		Relation:       RelationContinuing,
		RelevanceScore: 5,
		SuggestedBreak: false,
	}
}

// SimilarSegment 相似片段查询结果
type SimilarSegment struct {
	Segment    *Segment // 目标片段
	Similarity float64  // 与源片段的余弦相似度
}
