package probe

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github/chapool/safe-refill/internal/allowance"
	"github/chapool/safe-refill/internal/chain"
	"github/chapool/safe-refill/internal/config"
	"github/chapool/safe-refill/internal/keys"
	"github/chapool/safe-refill/internal/relay"
	"github/chapool/safe-refill/internal/safe"
	"github/chapool/safe-refill/internal/util/command"
)

const probeTimeout = 15 * time.Second

func New() *cobra.Command {
	return command.NewSubcommandGroup("probe",
		newRPC(),
		newSafe(),
		newRelay(),
		newAllowance(),
	)
}

func newRPC() *cobra.Command {
	return &cobra.Command{
		Use:   "rpc",
		Short: "Checks RPC endpoint connectivity",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.DefaultConfigFromEnv()
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), probeTimeout)
			defer cancel()

			client, err := chain.NewRPCClient(cfg.RPCURLs)
			if err != nil {
				return err
			}
			defer client.Close()

			chainID, err := client.ChainID(ctx)
			if err != nil {
				return errors.Wrap(err, "RPC endpoint not reachable")
			}
			fmt.Printf("RPC OK, chain id %s\n", chainID)

			return nil
		},
	}
}

func newSafe() *cobra.Command {
	return &cobra.Command{
		Use:   "safe",
		Short: "Reads the Safe's owners, threshold and nonce",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.DefaultConfigFromEnv()
			if err := cfg.Validate(); err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), probeTimeout)
			defer cancel()

			client, err := chain.NewRPCClient(cfg.RPCURLs)
			if err != nil {
				return err
			}
			defer client.Close()

			reader := safe.NewReader(client, common.HexToAddress(cfg.SafeAddress))

			owners, err := reader.Owners(ctx)
			if err != nil {
				return err
			}
			threshold, err := reader.Threshold(ctx)
			if err != nil {
				return err
			}
			nonce, err := reader.Nonce(ctx)
			if err != nil {
				return err
			}

			fmt.Printf("Safe %s OK\n", reader.Address().Hex())
			fmt.Printf("  threshold %s of %d owners, nonce %s\n", threshold, len(owners), nonce)
			for _, owner := range owners {
				fmt.Printf("  owner %s\n", owner.Hex())
			}

			return nil
		},
	}
}

func newAllowance() *cobra.Command {
	return &cobra.Command{
		Use:   "allowance",
		Short: "Reads the delegate's current token allowance",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.DefaultConfigFromEnv()
			if err := cfg.Validate(); err != nil {
				return err
			}
			if !common.IsHexAddress(cfg.TokenAddress) {
				return errors.Errorf("REFILL_TOKEN_ADDRESS %q is not a valid address", cfg.TokenAddress)
			}

			source, err := keys.NewSource(cfg.KeystoreFile, cfg.KeystorePassphrase, cfg.DelegateKeyHex)
			if err != nil {
				return err
			}
			delegateKey, err := source.PrivateKey(cmd.Context())
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), probeTimeout)
			defer cancel()

			client, err := chain.NewRPCClient(cfg.RPCURLs)
			if err != nil {
				return err
			}
			defer client.Close()

			service := allowance.NewService(
				client,
				common.HexToAddress(cfg.AllowanceModuleAddress),
				common.HexToAddress(cfg.SafeAddress),
				delegateKey,
			)

			state, err := service.Allowance(ctx, common.HexToAddress(cfg.TokenAddress))
			if err != nil {
				return err
			}

			fmt.Printf("Allowance for delegate %s\n", crypto.PubkeyToAddress(delegateKey.PublicKey).Hex())
			fmt.Printf("  amount    %s\n", state.Amount)
			fmt.Printf("  spent     %s\n", state.Spent)
			fmt.Printf("  remaining %s\n", state.Remaining())
			fmt.Printf("  reset every %s min, last reset at minute %s\n", state.ResetTimeMin, state.LastResetMin)

			return nil
		},
	}
}

func newRelay() *cobra.Command {
	return &cobra.Command{
		Use:   "relay",
		Short: "Checks transaction service connectivity",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.DefaultConfigFromEnv()
			if err := cfg.ValidateRelay(); err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), probeTimeout)
			defer cancel()

			client := relay.NewClient(cfg.RelayBaseURL, common.HexToAddress(cfg.SafeAddress), nil)

			pending, err := client.ListPending(ctx)
			if err != nil {
				return errors.Wrap(err, "transaction service not reachable")
			}
			fmt.Printf("Relay OK, %d pending transaction(s)\n", len(pending))

			return nil
		},
	}
}
