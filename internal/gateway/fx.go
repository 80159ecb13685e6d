package gateway

import (
	"github.com/smallbiznis/abonix/internal/config"
	"github.com/smallbiznis/abonix/internal/gateway/nas"
	"github.com/smallbiznis/abonix/internal/gateway/service"
	"go.uber.org/fx"
)

func provideRegistry(cfg config.Config) *nas.Registry {
	return nas.NewRegistry(nas.NewAgentFactory(nas.AgentConfig{
		Timeout:  cfg.GatewayTimeout,
		RetryMax: cfg.GatewayRetryMax,
	}))
}

var Module = fx.Module("gateway.service",
	fx.Provide(provideRegistry),
	fx.Provide(service.NewService),
)
