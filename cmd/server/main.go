package main

import (
	"context"
	"log"
	"os"

	"github.com/Tyrowin/convohub/internal/app"
	"github.com/Tyrowin/convohub/internal/logging"
	"github.com/Tyrowin/convohub/internal/server"
)

func main() {
	cfg, err := server.LoadConfig(os.Args[1:])
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.NewJSON(logging.ParseLevel(cfg.LogLevel))
	ctx := context.Background()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error(ctx, "startup failed", "error", err)
		os.Exit(1)
	}

	if err := a.Run(ctx); err != nil {
		logger.Error(ctx, "server stopped with error", "error", err)
		os.Exit(1)
	}
}
