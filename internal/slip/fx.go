package slip

import (
	"github.com/slipvault/slipvault/internal/slip/repository"
	"github.com/slipvault/slipvault/internal/slip/service"
	"go.uber.org/fx"
)

var Module = fx.Module("slip.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
