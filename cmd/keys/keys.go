package keys

import (
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"

	"github/chapool/safe-refill/internal/config"
	keysource "github/chapool/safe-refill/internal/keys"
	"github/chapool/safe-refill/internal/util/command"
)

const keyFlag = "key"

func New() *cobra.Command {
	return command.NewSubcommandGroup("keys",
		newImport(),
		newShowAddress(),
	)
}

func newImport() *cobra.Command {
	var rawKey string

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Encrypts a raw private key into the configured keystore file",
		Long: `Encrypts a raw hex private key into the keystore file named by
SAFE_KEYSTORE_FILE, protected by SAFE_KEYSTORE_PASSPHRASE. An existing
keystore file is never overwritten.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.DefaultConfigFromEnv()

			if err := keysource.ImportKey(cfg.KeystoreFile, rawKey, cfg.KeystorePassphrase); err != nil {
				return err
			}
			cmd.Printf("Keystore written to %s\n", cfg.KeystoreFile)

			return nil
		},
	}

	cmd.Flags().StringVar(&rawKey, keyFlag, "", "Raw hex private key to import")
	_ = cmd.MarkFlagRequired(keyFlag)

	return cmd
}

func newShowAddress() *cobra.Command {
	return &cobra.Command{
		Use:   "show-address",
		Short: "Prints the address of the configured signing key",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.DefaultConfigFromEnv()

			source, err := keysource.NewSource(cfg.KeystoreFile, cfg.KeystorePassphrase, cfg.DelegateKeyHex)
			if err != nil {
				return err
			}
			key, err := source.PrivateKey(cmd.Context())
			if err != nil {
				return err
			}

			cmd.Println(crypto.PubkeyToAddress(key.PublicKey).Hex())

			return nil
		},
	}
}
