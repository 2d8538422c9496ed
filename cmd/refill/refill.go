package refill

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github/chapool/safe-refill/internal/alert"
	"github/chapool/safe-refill/internal/allowance"
	"github/chapool/safe-refill/internal/chain"
	"github/chapool/safe-refill/internal/config"
	"github/chapool/safe-refill/internal/keys"
	"github/chapool/safe-refill/internal/lockfile"
	refillsvc "github/chapool/safe-refill/internal/refill"
	"github/chapool/safe-refill/internal/util"
)

func New() *cobra.Command {
	return &cobra.Command{
		Use:   "refill",
		Short: "Tops up the hot wallet from the Safe's spending allowance",
		Long: `Runs one refill pass: reads the hot wallet's token and native balances
and pulls the configured top-up amounts through the AllowanceModule
where a balance sits below its threshold. Intended to be invoked
periodically by an external scheduler; overlapping invocations are
serialized through a lock file and exit cleanly.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			lock, err := lockfile.Acquire(config.DefaultConfigFromEnv().LockPath)
			if errors.Is(err, lockfile.ErrAlreadyRunning) {
				// Expected when the scheduler fires before the previous
				// run finished.
				log.Info().Msg("Refill already in progress, nothing to do")
				return nil
			}
			if err != nil {
				return err
			}
			defer lock.Release()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			// One id per run so interleaved scheduler invocations can be
			// told apart in the logs.
			logger := log.With().Str("run_id", uuid.NewString()).Logger()

			return run(util.WithLogger(ctx, logger))
		},
	}
}

func run(ctx context.Context) (err error) {
	cfg := config.DefaultConfigFromEnv()
	if err := cfg.Validate(); err != nil {
		return err
	}

	sink := newSink(cfg)

	defer func() {
		if r := recover(); r != nil {
			sink.Notify(ctx, alert.SeverityCritical, fmt.Sprintf("Refill run panicked: %v", r))
			err = errors.Errorf("refill run panicked: %v", r)
		}
	}()

	token, native, err := refillAssets(cfg)
	if err != nil {
		return err
	}

	source, err := keys.NewSource(cfg.KeystoreFile, cfg.KeystorePassphrase, cfg.DelegateKeyHex)
	if err != nil {
		return err
	}
	delegateKey, err := source.PrivateKey(ctx)
	if err != nil {
		return err
	}
	delegate := crypto.PubkeyToAddress(delegateKey.PublicKey)

	client, err := chain.NewRPCClient(cfg.RPCURLs)
	if err != nil {
		return err
	}
	defer client.Close()

	allowanceService := allowance.NewService(
		client,
		common.HexToAddress(cfg.AllowanceModuleAddress),
		common.HexToAddress(cfg.SafeAddress),
		delegateKey,
	)
	logAllowanceState(ctx, allowanceService, token.Token)

	service := refillsvc.NewService(client, allowanceService, sink, delegate, token, native)

	summary, err := service.Run(ctx)
	if err != nil {
		return errors.Wrap(err, "refill run aborted")
	}

	logger := util.LogFromContext(ctx)
	for _, attempt := range summary.Attempts {
		event := logger.Info()
		if attempt.Err != nil {
			event = logger.Error().Err(attempt.Err)
		}
		event.
			Str("asset", attempt.Asset).
			Str("balance", attempt.Balance.String()).
			Str("outcome", string(attempt.Outcome)).
			Msg("Refill attempt finished")
	}

	if summary.HasErrors() {
		return errors.New("refill run finished (with errors)")
	}

	logger.Info().Msg("Refill run finished")

	return nil
}

//nolint:ireturn // Returning interface is intentional
func newSink(cfg config.Config) alert.Sink {
	if cfg.AlertWebhookURL == "" {
		return alert.NopSink{}
	}

	return alert.NewWebhookSink(cfg.AlertWebhookURL, nil)
}

func refillAssets(cfg config.Config) (token, native refillsvc.Asset, err error) {
	if !common.IsHexAddress(cfg.TokenAddress) {
		return token, native, errors.Errorf("REFILL_TOKEN_ADDRESS %q is not a valid address", cfg.TokenAddress)
	}

	token, err = newAsset("token", common.HexToAddress(cfg.TokenAddress), cfg.Token)
	if err != nil {
		return token, native, err
	}
	native, err = newAsset("native", allowance.NativeToken, cfg.Native)

	return token, native, err
}

func newAsset(name string, address common.Address, policy config.AssetRefill) (refillsvc.Asset, error) {
	threshold, err := config.ParseBaseUnits(policy.LowThreshold)
	if err != nil {
		return refillsvc.Asset{}, errors.Wrapf(err, "invalid low threshold for %s asset", name)
	}
	amount, err := config.ParseBaseUnits(policy.RefillAmount)
	if err != nil {
		return refillsvc.Asset{}, errors.Wrapf(err, "invalid refill amount for %s asset", name)
	}
	if amount.Sign() <= 0 {
		return refillsvc.Asset{}, errors.Errorf("refill amount for %s asset must be positive", name)
	}

	return refillsvc.Asset{
		Name:         name,
		Token:        address,
		LowThreshold: threshold,
		RefillAmount: amount,
	}, nil
}

func logAllowanceState(ctx context.Context, service allowance.Service, token common.Address) {
	state, err := service.Allowance(ctx, token)
	if err != nil {
		util.LogFromContext(ctx).Warn().Err(err).Msg("Failed to read current allowance state")
		return
	}

	util.LogFromContext(ctx).Info().
		Str("amount", state.Amount.String()).
		Str("spent", state.Spent.String()).
		Str("remaining", state.Remaining().String()).
		Msg("Current token allowance")
}
