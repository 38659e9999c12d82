package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/loopmarket/escrow/internal/audit"
	"github.com/loopmarket/escrow/internal/clock"
	"github.com/loopmarket/escrow/internal/config"
	"github.com/loopmarket/escrow/internal/escrow"
	"github.com/loopmarket/escrow/internal/logger"
	"github.com/loopmarket/escrow/internal/notification"
	obsmetrics "github.com/loopmarket/escrow/internal/observability/metrics"
	"github.com/loopmarket/escrow/internal/order"
	"github.com/loopmarket/escrow/internal/processor"
	"github.com/loopmarket/escrow/internal/providers/email"
	"github.com/loopmarket/escrow/internal/reminder"
	"github.com/loopmarket/escrow/internal/scheduler"
	"github.com/loopmarket/escrow/internal/server"
	"github.com/loopmarket/escrow/internal/shipment"
	"github.com/loopmarket/escrow/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		fx.Provide(obsmetrics.Default),
		db.Module,
		clock.Module,

		// Functional domains
		audit.Module,
		email.Module,
		notification.Module,
		processor.Module,
		order.Module,
		shipment.Module,
		escrow.Module,
		reminder.Module,
		scheduler.Module,

		server.Module,
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
