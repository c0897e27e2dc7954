package kit

import (
	"github.com/smallbiznis/dotation/internal/kit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("kit.service",
	fx.Provide(service.NewService),
)
