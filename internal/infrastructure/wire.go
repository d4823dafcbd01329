package infrastructure

import (
	"github.com/driftwatch/backend/internal/infrastructure/config"
	"github.com/driftwatch/backend/internal/infrastructure/convsource"
	"github.com/driftwatch/backend/internal/infrastructure/storage"
	"github.com/driftwatch/backend/internal/infrastructure/vector"
	"github.com/driftwatch/backend/internal/infrastructure/websocket"
	"github.com/google/wire"
)

// ProviderSet Infrastructure 层总 ProviderSet
var ProviderSet = wire.NewSet(
	config.ProviderSet,
	convsource.ProviderSet,
	storage.ProviderSet,
	websocket.ProviderSet,
	vector.ProvideVectorIndex,
)
