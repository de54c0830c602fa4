package main

import (
	"os"
	"strconv"

	"github.com/bwmarrin/snowflake"
	"github.com/slipvault/slipvault/internal/clock"
	"github.com/slipvault/slipvault/internal/config"
	"github.com/slipvault/slipvault/internal/logger"
	"github.com/slipvault/slipvault/internal/observability"
	"github.com/slipvault/slipvault/internal/server"
	"github.com/slipvault/slipvault/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,

		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	nodeID := int64(1)
	if raw := os.Getenv("SNOWFLAKE_NODE_ID"); raw != "" {
		if parsed, err := strconv.ParseInt(raw, 10, 64); err == nil {
			nodeID = parsed
		}
	}
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		panic(err)
	}
	return node
}
