package divergence

import (
	"github.com/driftwatch/backend/internal/infrastructure/topics"
)

// EmbeddingProvider 向量能力接口
// 实现方必须保持返回向量与输入文本一一对应
type EmbeddingProvider interface {
	EmbedTexts(texts []string) ([][]float32, error)
}

// TopicProvider 离散主题分配能力接口
type TopicProvider interface {
	FitAssign(texts []string) (*topics.Assignment, error)
}

// JudgeProvider LLM judge 能力接口
type JudgeProvider interface {
	Complete(prompt string) (string, error)
}

// ProgressNotifier 进度通知接口
// 由 WebSocket hub 实现，向订阅方推送批处理进度
type ProgressNotifier interface {
	Broadcast(eventType string, payload any) error
}
