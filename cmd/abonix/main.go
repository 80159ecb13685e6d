package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/abonix/internal/clock"
	"github.com/smallbiznis/abonix/internal/config"
	"github.com/smallbiznis/abonix/internal/logger"
	"github.com/smallbiznis/abonix/internal/metrics"
	"github.com/smallbiznis/abonix/internal/migration"
	"github.com/smallbiznis/abonix/internal/scheduler"
	"github.com/smallbiznis/abonix/internal/server"
	"github.com/smallbiznis/abonix/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		metrics.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		server.Module,
		scheduler.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
