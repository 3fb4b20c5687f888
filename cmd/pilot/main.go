package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"gws-pilot/internal/config"
	"gws-pilot/internal/logging"
)

// cliContext carries what the persistent pre-run loads to every subcommand.
type cliContext struct {
	cfg    *config.Config
	logger zerolog.Logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cc := &cliContext{logger: zerolog.Nop()}
	var envFile string

	root := &cobra.Command{
		Use:           "pilot",
		Short:         "GWS Productivity Pilot, a Google Workspace help assistant",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			envErr := godotenv.Load(envFile)
			cfg, err := config.New()
			if err != nil {
				return err
			}
			cc.cfg = cfg
			cc.logger = logging.Setup(cfg.LogLevel, cfg.LogFormat)
			if envErr != nil {
				cc.logger.Debug().Err(envErr).Str("path", envFile).Msg(".env file not loaded")
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")

	root.AddCommand(newServeCmd(cc), newChatCmd(cc), newReportCmd(cc))
	return root
}
