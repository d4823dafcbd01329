package application

import (
	"github.com/driftwatch/backend/internal/application/divergence"
	"github.com/google/wire"
)

// ProviderSet Application 层总 ProviderSet
var ProviderSet = wire.NewSet(
	divergence.ProviderSet,
)
