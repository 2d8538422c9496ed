package cmd

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github/chapool/safe-refill/cmd/confirm"
	"github/chapool/safe-refill/cmd/env"
	"github/chapool/safe-refill/cmd/keys"
	"github/chapool/safe-refill/cmd/pending"
	"github/chapool/safe-refill/cmd/probe"
	"github/chapool/safe-refill/cmd/propose"
	"github/chapool/safe-refill/cmd/refill"
	"github/chapool/safe-refill/internal/config"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Version: config.GetFormattedBuildArgs(),
	Use:     "safe-refill",
	Short:   config.ModuleName,
	Long: fmt.Sprintf(`%v

A toolkit for operating a Safe with a delegated spending allowance:
propose and confirm multisig transactions, and keep a hot wallet
topped up from the allowance. Requires configuration through ENV.`, config.ModuleName),
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		initLogger(config.DefaultConfigFromEnv().Logger)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	// attach the subcommands
	rootCmd.AddCommand(
		confirm.New(),
		env.New(),
		keys.New(),
		pending.New(),
		probe.New(),
		propose.New(),
		refill.New(),
	)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("Failed to execute root command")
		os.Exit(1)
	}
}

func initLogger(cfg config.Logger) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.PrettyPrintConsole {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}
