package confirm

import (
	"encoding/hex"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github/chapool/safe-refill/internal/config"
	"github/chapool/safe-refill/internal/keys"
	"github/chapool/safe-refill/internal/relay"
	"github/chapool/safe-refill/internal/safe"
)

func New() *cobra.Command {
	return &cobra.Command{
		Use:   "confirm <safe-tx-hash>",
		Short: "Adds this owner's confirmation to a pending Safe transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			safeTxHash := strings.TrimSpace(args[0])
			if !strings.HasPrefix(safeTxHash, "0x") || len(safeTxHash) != 2+2*common.HashLength {
				return errors.Errorf("%q is not a 32-byte 0x-prefixed hash", safeTxHash)
			}
			if _, err := hex.DecodeString(safeTxHash[2:]); err != nil {
				return errors.Errorf("%q is not a 32-byte 0x-prefixed hash", safeTxHash)
			}

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

			signature, err := safe.SignTransactionHash(common.HexToHash(safeTxHash), signerKey)
			if err != nil {
				return err
			}

			client := relay.NewClient(cfg.RelayBaseURL, common.HexToAddress(cfg.SafeAddress), nil)
			if err := client.Confirm(cmd.Context(), safeTxHash, "0x"+hex.EncodeToString(signature)); err != nil {
				return err
			}

			cmd.Printf("Confirmed Safe transaction %s\n", safeTxHash)

			return nil
		},
	}
}
