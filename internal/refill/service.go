package refill

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github/chapool/safe-refill/internal/alert"
)

const (
	balanceReadAttempts  = 3
	retryInitialInterval = time.Second
	retryMultiplier      = 2
)

// BalanceReader reads the hot wallet's balances.
type BalanceReader interface {
	BalanceAt(ctx context.Context, address common.Address) (*big.Int, error)
	TokenBalance(ctx context.Context, tokenAddress, account common.Address) (*big.Int, error)
}

// Allowance executes spending-limit transfers on behalf of the delegate.
type Allowance interface {
	TransferCalldata(token, to common.Address, amount *big.Int) ([]byte, error)
	Simulate(ctx context.Context, calldata []byte) error
	ExecuteTransfer(ctx context.Context, calldata []byte) (*types.Receipt, error)
}

type Service interface {
	// Run performs one refill pass over both tracked assets and returns
	// the per-asset outcomes. A non-nil error means the pass aborted
	// before any refill decision could be made.
	Run(ctx context.Context) (*Summary, error)
}

type service struct {
	reader    BalanceReader
	allowance Allowance
	sink      alert.Sink
	recipient common.Address
	token     Asset
	native    Asset

	// replaced in tests to observe and skip the retry waits
	newBackOff func() backoff.BackOff
}

func NewService(
	reader BalanceReader,
	allowanceService Allowance,
	sink alert.Sink,
	recipient common.Address,
	token Asset,
	native Asset,
) Service { //nolint:ireturn
	return &service{
		reader:     reader,
		allowance:  allowanceService,
		sink:       sink,
		recipient:  recipient,
		token:      token,
		native:     native,
		newBackOff: newReadBackOff,
	}
}

func newReadBackOff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = retryInitialInterval
	bo.RandomizationFactor = 0
	bo.Multiplier = retryMultiplier

	return bo
}

func (s *service) Run(ctx context.Context) (*Summary, error) {
	var tokenBalance, nativeBalance *big.Int

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() (err error) {
		tokenBalance, err = s.readWithRetry(groupCtx, func(ctx context.Context) (*big.Int, error) {
			return s.reader.TokenBalance(ctx, s.token.Token, s.recipient)
		})
		return errors.Wrap(err, "failed to read token balance")
	})
	group.Go(func() (err error) {
		nativeBalance, err = s.readWithRetry(groupCtx, func(ctx context.Context) (*big.Int, error) {
			return s.reader.BalanceAt(ctx, s.recipient)
		})
		return errors.Wrap(err, "failed to read native balance")
	})
	if err := group.Wait(); err != nil {
		return nil, err
	}

	summary := &Summary{}

	tokenAttempt := s.refillAsset(ctx, s.token, tokenBalance)
	summary.Attempts = append(summary.Attempts, tokenAttempt)

	// A broken delegate or module setup fails identically for both
	// assets. One critical alert names the root cause; a second would
	// only bury it.
	if tokenAttempt.Outcome == OutcomeFatalMisconfiguration {
		log.Warn().
			Str("asset", s.native.Name).
			Msg("RefillController: skipping native refill after token misconfiguration")

		return summary, nil
	}

	summary.Attempts = append(summary.Attempts, s.refillAsset(ctx, s.native, nativeBalance))

	return summary, nil
}

// readWithRetry retries transient read failures with exponential
// backoff. Non-transient failures and the exhausted final attempt
// propagate and abort the run.
func (s *service) readWithRetry(ctx context.Context, read func(context.Context) (*big.Int, error)) (*big.Int, error) {
	var balance *big.Int

	operation := func() error {
		b, err := read(ctx)
		if err != nil {
			if classify(err) != classTransient {
				return backoff.Permanent(err)
			}
			log.Warn().Err(err).Msg("RefillController: transient balance read failure, retrying")
			return err
		}
		balance = b
		return nil
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(s.newBackOff(), balanceReadAttempts-1), ctx)
	if err := backoff.Retry(operation, bo); err != nil {
		return nil, err
	}

	return balance, nil
}

func (s *service) refillAsset(ctx context.Context, asset Asset, balance *big.Int) Attempt {
	attempt := Attempt{
		Asset:     asset.Name,
		Balance:   balance,
		Threshold: asset.LowThreshold,
	}

	if balance.Cmp(asset.LowThreshold) >= 0 {
		log.Info().
			Str("asset", asset.Name).
			Str("balance", balance.String()).
			Str("threshold", asset.LowThreshold.String()).
			Msg("RefillController: balance above threshold, nothing to do")
		attempt.Outcome = OutcomeSkipped

		return attempt
	}

	log.Info().
		Str("asset", asset.Name).
		Str("balance", balance.String()).
		Str("threshold", asset.LowThreshold.String()).
		Str("amount", asset.RefillAmount.String()).
		Msg("RefillController: balance below threshold, refilling")

	calldata, err := s.allowance.TransferCalldata(asset.Token, s.recipient, asset.RefillAmount)
	if err != nil {
		return s.failAttempt(ctx, attempt, asset, errors.Wrap(err, "failed to build transfer calldata"))
	}

	// Simulating first bounds the gas wasted on a transfer that was
	// always going to revert.
	if err := s.allowance.Simulate(ctx, calldata); err != nil {
		return s.failAttempt(ctx, attempt, asset, errors.Wrap(err, "transfer simulation failed"))
	}

	receipt, err := s.allowance.ExecuteTransfer(ctx, calldata)
	if err != nil {
		return s.failAttempt(ctx, attempt, asset, errors.Wrap(err, "transfer execution failed"))
	}
	attempt.TxHash = receipt.TxHash

	if receipt.Status != types.ReceiptStatusSuccessful {
		// Gas is already spent, so a revert here is always alerted.
		attempt.Err = errors.Errorf("transfer %s reverted on-chain", receipt.TxHash.Hex())
		attempt.Outcome = OutcomeTransientFailure
		s.sink.Notify(ctx, alert.SeverityWarning,
			fmt.Sprintf("Refill of %s reverted on-chain in transaction %s", asset.Name, receipt.TxHash.Hex()))
		log.Error().
			Str("asset", asset.Name).
			Str("hash", receipt.TxHash.Hex()).
			Msg("RefillController: refill transaction reverted")

		return attempt
	}

	attempt.Outcome = OutcomeOK
	log.Info().
		Str("asset", asset.Name).
		Str("amount", asset.RefillAmount.String()).
		Str("hash", receipt.TxHash.Hex()).
		Msg("RefillController: refill executed")

	return attempt
}

func (s *service) failAttempt(ctx context.Context, attempt Attempt, asset Asset, err error) Attempt {
	attempt.Err = err

	switch classify(err) {
	case classMisconfiguration:
		attempt.Outcome = OutcomeFatalMisconfiguration
		s.sink.Notify(ctx, alert.SeverityCritical,
			fmt.Sprintf("Refill of %s hit a module misconfiguration, manual intervention required: %v", asset.Name, err))
		log.Error().Err(err).
			Str("asset", asset.Name).
			Msg("RefillController: fatal misconfiguration")
	case classExhaustion:
		// Expected steady state near the end of an allowance period.
		// The next reset clears it, so it is logged but not alerted.
		attempt.Outcome = OutcomeTransientFailure
		log.Warn().Err(err).
			Str("asset", asset.Name).
			Msg("RefillController: allowance exhausted, waiting for reset")
	default:
		attempt.Outcome = OutcomeTransientFailure
		s.sink.Notify(ctx, alert.SeverityWarning,
			fmt.Sprintf("Refill of %s failed: %v", asset.Name, err))
		log.Error().Err(err).
			Str("asset", asset.Name).
			Msg("RefillController: refill failed")
	}

	return attempt
}
