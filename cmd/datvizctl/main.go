package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/datviz/datviz-app/internal/config"
)

var cliConfig config.CLI

var rootCmd = &cobra.Command{
	Use:           "datvizctl",
	Short:         "Command line client for the DatViz web server",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	if err := config.Parse(&cliConfig); err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cliConfig.BaseURL, "url", cliConfig.BaseURL, "DatViz server base URL (env DATVIZ_URL)")
	flags.StringVar(&cliConfig.AuthToken, "token", cliConfig.AuthToken, "API bearer token (env AUTH_TOKEN)")
	flags.DurationVar(&cliConfig.Timeout, "timeout", cliConfig.Timeout, "request timeout")

	rootCmd.AddCommand(newIPCmd(), newCheckCmd(), newRegisterCmd(), newHistoryCmd(), newWatchCmd(), newAuditCmd())
}

func main() {
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("datvizctl")
		os.Exit(1)
	}
}
