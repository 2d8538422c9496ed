package env

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github/chapool/safe-refill/internal/config"
)

func New() *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "Prints the effective configuration",
		Long:  "Prints the configuration as resolved from the environment and .env files. Secrets are redacted.",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg := config.DefaultConfigFromEnv()

			encoded, err := json.MarshalIndent(cfg, "", "  ")
			if err != nil {
				return errors.Wrap(err, "failed to encode configuration")
			}
			fmt.Println(string(encoded))

			return nil
		},
	}
}
