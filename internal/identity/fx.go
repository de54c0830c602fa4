package identity

import (
	"github.com/slipvault/slipvault/internal/identity/repository"
	"github.com/slipvault/slipvault/internal/identity/service"
	"github.com/slipvault/slipvault/internal/identity/session"
	"go.uber.org/fx"
)

var Module = fx.Module("identity.service",
	fx.Provide(session.NewManager),
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
