package divergence

import "github.com/google/wire"

// ProviderSet 漂移分析应用层 ProviderSet
var ProviderSet = wire.NewSet(
	ProvideEmbeddingProvider,
	ProvideTopicProvider,
	ProvideJudgeProvider,
	ProvideTokenCounter,
	ProvideDriftAnalyzer,
	NewTopicAnalyzer,
	ProvideJudgeAnalyzer,
	ProvideSegmenterConfig,
	NewEnsembleSegmenter,
	NewAnalysisService,
	NewLinker,
	ProvideProgressNotifier,
	ProvideBatchProcessor,
)
