package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"gws-pilot/internal/auth"
	"gws-pilot/internal/pilot"
	"gws-pilot/internal/scheduler"
	"gws-pilot/internal/server"
	"gws-pilot/internal/telegram"
)

func newServeCmd(cc *cliContext) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the chat widget and API, plus the Telegram bot when configured",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger := cc.cfg, cc.logger
			if addr != "" {
				cfg.HTTPAddr = addr
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := pilot.New(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer app.Close()

			sched := scheduler.New(logger)
			if err := app.Schedule(sched); err != nil {
				return err
			}
			sched.Start()
			defer sched.Stop()

			srv := server.New(server.Options{
				Addr:            cfg.HTTPAddr,
				AllowedOrigins:  cfg.CORSAllowedOrigins,
				RenderMode:      string(cfg.RenderMode),
				SpeechAvailable: app.SpeechAvailable(),
				SessionRate:     cfg.SessionCreateRate,
				SessionBurst:    cfg.SessionCreateBurst,
			}, app.Sessions, app.Renderer, logger)

			var wg sync.WaitGroup
			if cfg.TelegramBotToken != "" {
				allow, err := newAllowlist(cfg.TelegramAllowedUsers, cfg.TelegramAllowlistPath)
				if err != nil {
					return err
				}
				if allow.Open() {
					logger.Warn().Msg("telegram allowlist is empty, every user may chat with the bot")
				}
				bot, err := telegram.New(cfg.TelegramBotToken, app.Sessions, allow, logger)
				if err != nil {
					return err
				}
				wg.Add(1)
				go func() {
					defer wg.Done()
					bot.Start(ctx)
				}()
			}

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			var serveErr error
			select {
			case <-ctx.Done():
				logger.Info().Msg("shutting down")
			case serveErr = <-errCh:
				stop()
			}
			if err := srv.Shutdown(context.Background()); err != nil {
				logger.Error().Err(err).Msg("http shutdown failed")
			}
			wg.Wait()
			return serveErr
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides HTTP_ADDR)")
	return cmd
}

func newAllowlist(ids []int64, path string) (*auth.Allowlist, error) {
	var repo auth.Repository
	if path != "" {
		fr, err := auth.NewFileRepository(path)
		if err != nil {
			return nil, err
		}
		repo = fr
	}
	return auth.New(repo, ids)
}
