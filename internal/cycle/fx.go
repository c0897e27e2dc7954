package cycle

import (
	"github.com/smallbiznis/dotation/internal/cycle/service"
	"go.uber.org/fx"
)

var Module = fx.Module("cycle.service",
	fx.Provide(service.NewService),
)
