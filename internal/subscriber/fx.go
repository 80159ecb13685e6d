package subscriber

import (
	"github.com/smallbiznis/abonix/internal/subscriber/repository"
	"github.com/smallbiznis/abonix/internal/subscriber/service"
	"go.uber.org/fx"
)

var Module = fx.Module("subscriber.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
