package wagethreshold

import (
	"github.com/smallbiznis/dotation/internal/wagethreshold/service"
	"go.uber.org/fx"
)

var Module = fx.Module("wagethreshold.service",
	fx.Provide(service.NewService),
)
