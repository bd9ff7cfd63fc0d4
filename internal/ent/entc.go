//go:build ignore

package main

import (
	"context"

	"entgo.io/ent/entc"
	"entgo.io/ent/entc/gen"
	"go.uber.org/zap"

	"octolab/internal/logger"
)

func main() {
	ctx, log := logger.PrepareLogger(context.Background())
	defer func() { _ = logger.Sync(ctx) }()

	if err := entc.Generate("./schema", &gen.Config{}); err != nil {
		log.Fatal("failed generating ent code", zap.Error(err))
	}
}
