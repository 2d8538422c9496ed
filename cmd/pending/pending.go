package pending

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github/chapool/safe-refill/internal/config"
	"github/chapool/safe-refill/internal/relay"
)

func New() *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "Lists pending Safe transactions awaiting confirmations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.DefaultConfigFromEnv()
			if err := cfg.ValidateRelay(); err != nil {
				return err
			}

			client := relay.NewClient(cfg.RelayBaseURL, common.HexToAddress(cfg.SafeAddress), nil)
			records, err := client.ListPending(cmd.Context())
			if err != nil {
				return err
			}

			if len(records) == 0 {
				cmd.Println("No pending transactions")
				return nil
			}

			for _, record := range records {
				cmd.Printf("%s\n", record.SafeTxHash)
				cmd.Printf("  nonce %d, to %s, value %s\n", record.Nonce, record.To, record.Value)
				cmd.Printf("  confirmations %d of %d\n", len(record.Confirmations), record.ConfirmationsRequired)
			}

			return nil
		},
	}
}
