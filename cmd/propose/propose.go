package propose

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github/chapool/safe-refill/internal/chain"
	"github/chapool/safe-refill/internal/config"
	"github/chapool/safe-refill/internal/keys"
	proposal "github/chapool/safe-refill/internal/propose"
	"github/chapool/safe-refill/internal/relay"
	"github/chapool/safe-refill/internal/safe"
)

const (
	toFlag    = "to"
	valueFlag = "value"
	dataFlag  = "data"
)

func New() *cobra.Command {
	var req proposal.Request

	cmd := &cobra.Command{
		Use:   "propose",
		Short: "Proposes a Safe transaction to the transaction service",
		Long: `Builds a Safe transaction, signs its hash with the configured key and
submits it to the transaction service for the other owners to confirm.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.DefaultConfigFromEnv()
			if err := cfg.ValidateRelay(); err != nil {
				return err
			}

			source, err := keys.NewSource(cfg.KeystoreFile, cfg.KeystorePassphrase, cfg.DelegateKeyHex)
			if err != nil {
				return err
			}
			signerKey, err := source.PrivateKey(cmd.Context())
			if err != nil {
				return err
			}

			client, err := chain.NewRPCClient(cfg.RPCURLs)
			if err != nil {
				return err
			}
			defer client.Close()

			safeAddress := common.HexToAddress(cfg.SafeAddress)
			engine := proposal.NewService(
				safe.NewReader(client, safeAddress),
				relay.NewClient(cfg.RelayBaseURL, safeAddress, nil),
				signerKey,
			)

			result, err := engine.Propose(cmd.Context(), &req)
			if err != nil {
				return err
			}

			cmd.Printf("Proposed Safe transaction %s\n", result.SafeTxHash.Hex())
			cmd.Printf("  nonce     %d\n", result.Nonce)
			cmd.Printf("  sender    %s\n", result.Sender.Hex())
			cmd.Printf("  threshold %d confirmation(s) required\n", result.Threshold)

			return nil
		},
	}

	cmd.Flags().StringVar(&req.To, toFlag, "", "Recipient address (checksummed)")
	cmd.Flags().StringVar(&req.Value, valueFlag, "", "Amount to send in base units")
	cmd.Flags().StringVar(&req.Data, dataFlag, "", "Optional 0x-prefixed calldata")
	_ = cmd.MarkFlagRequired(toFlag)
	_ = cmd.MarkFlagRequired(valueFlag)

	return cmd
}
