package convsource

import "github.com/google/wire"

// ProviderSet 会话数据源 ProviderSet
var ProviderSet = wire.NewSet(
	ProvideSource,
)
