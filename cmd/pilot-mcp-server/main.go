package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"

	"gws-pilot/internal/config"
	"gws-pilot/internal/logging"
	"gws-pilot/internal/pilot"
)

func main() {
	envErr := godotenv.Load(".env")

	cfg, err := config.New()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	// stdout carries the protocol; logs go to stderr
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)
	if envErr != nil {
		logger.Debug().Err(envErr).Msg(".env file not loaded")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := pilot.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to start assistant")
	}
	defer app.Close()

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "gws-pilot-mcp",
		Version: "1.0.0",
	}, nil)
	NewPilotTools(app.Sessions).Register(server)

	logger.Info().Msg("mcp server running on stdin/stdout")
	if err := server.Run(ctx, mcp.NewStdioTransport()); err != nil && ctx.Err() == nil {
		logger.Error().Err(err).Msg("mcp server failed")
	}
}
