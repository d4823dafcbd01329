package divergence

import (
	"github.com/driftwatch/backend/internal/domain/conversation"
	domainDiv "github.com/driftwatch/backend/internal/domain/divergence"
	"github.com/driftwatch/backend/internal/infrastructure/config"
	"github.com/driftwatch/backend/internal/infrastructure/embedding"
	"github.com/driftwatch/backend/internal/infrastructure/llm"
	"github.com/driftwatch/backend/internal/infrastructure/log"
	"github.com/driftwatch/backend/internal/infrastructure/topics"
	"github.com/driftwatch/backend/internal/infrastructure/websocket"
)

// ProvideEmbeddingProvider 提供向量能力
// 未配置时返回 nil，DriftAnalyzer 会向调用方返回 ErrProviderUnavailable
func ProvideEmbeddingProvider(cfg *config.EmbeddingConfig) EmbeddingProvider {
	if !cfg.Enabled() {
		return nil
	}
	return embedding.NewClient(cfg.BaseURL, cfg.APIKey, cfg.Model)
}

// ProvideTopicProvider 提供主题分配能力
// 未配置时返回 nil，TopicAnalyzer 走漂移降级路径
func ProvideTopicProvider(cfg *config.TopicsConfig) TopicProvider {
	if !cfg.Enabled() {
		return nil
	}
	return topics.NewClient(cfg.BaseURL)
}

// ProvideJudgeProvider 提供 LLM judge 能力
// 未启用时返回 nil，所有分类退化为中性默认值
func ProvideJudgeProvider(cfg *config.JudgeConfig) JudgeProvider {
	if !cfg.Enabled {
		return nil
	}
	return llm.NewClient(cfg.BaseURL, cfg.APIKey, cfg.Model)
}

// ProvideTokenCounter 提供 token 计数能力
// judge 未启用时不加载词表；词表加载失败时降级为不做预算裁剪
func ProvideTokenCounter(cfg *config.JudgeConfig) TokenCounter {
	if !cfg.Enabled {
		return nil
	}

	estimator, err := llm.NewTokenEstimator()
	if err != nil {
		log.NewModuleLogger("divergence", "provider").Warn(
			"Failed to load token encoding, prompt budget trimming disabled",
			"error", err,
		)
		return nil
	}
	return estimator
}

// ProvideDriftAnalyzer 提供漂移分析器
func ProvideDriftAnalyzer(cfg *config.AnalysisConfig, provider EmbeddingProvider) *DriftAnalyzer {
	return NewDriftAnalyzer(provider, cfg.AnchorWindow, cfg.RollingWindow)
}

// ProvideJudgeAnalyzer 提供 judge 分析器
func ProvideJudgeAnalyzer(cfg *config.JudgeConfig, provider JudgeProvider, tokens TokenCounter) *JudgeAnalyzer {
	return NewJudgeAnalyzer(provider, tokens, cfg.ContextMessages, cfg.PromptTokenBudget)
}

// ProvideSegmenterConfig 提供分段器参数
func ProvideSegmenterConfig(cfg *config.AnalysisConfig) SegmenterConfig {
	return SegmenterConfig{
		DriftThreshold:    cfg.DriftThreshold,
		ReturnThreshold:   cfg.ReturnThreshold,
		MinSegmentLength:  cfg.MinSegmentLength,
		GenerateSummaries: cfg.GenerateSummaries,
	}
}

// ProvideProgressNotifier 提供进度通知能力
// hub 为 nil 时返回 nil 接口，批处理器跳过进度广播
func ProvideProgressNotifier(hub *websocket.Hub) ProgressNotifier {
	if hub == nil {
		return nil
	}
	return hub
}

// ProvideBatchProcessor 提供批处理器
func ProvideBatchProcessor(
	cfg *config.BatchConfig,
	source conversation.Source,
	service *AnalysisService,
	queue domainDiv.QueueRepository,
	reports domainDiv.ReportRepository,
	notifier ProgressNotifier,
) *BatchProcessor {
	return NewBatchProcessor(source, service, queue, reports, notifier, cfg.PollInterval, cfg.BatchSize)
}
