package dhcp

import (
	"github.com/smallbiznis/abonix/internal/dhcp/service"
	"go.uber.org/fx"
)

var Module = fx.Module("dhcp",
	fx.Provide(
		service.NewService,
	),
)
