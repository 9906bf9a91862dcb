package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/mentora-app/mentora/internal/clock"
	"github.com/mentora-app/mentora/internal/config"
	"github.com/mentora-app/mentora/internal/grading"
	"github.com/mentora-app/mentora/internal/migration"
	"github.com/mentora-app/mentora/internal/observability"
	"github.com/mentora-app/mentora/internal/quota"
	"github.com/mentora-app/mentora/internal/rubric"
	"github.com/mentora-app/mentora/internal/server"
	"github.com/mentora-app/mentora/internal/usagelog"
	"github.com/mentora-app/mentora/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		quota.Module,
		rubric.Module,
		usagelog.Module,
		grading.Module,

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
