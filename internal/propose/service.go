// Package propose builds, signs and submits Safe transaction proposals.
// The flow is linear with no retries: every failure is surfaced
// immediately so the operator can simply rerun the command.
package propose

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github/chapool/safe-refill/internal/relay"
	"github/chapool/safe-refill/internal/safe"
)

// SafeReader reads the Safe's on-chain state.
type SafeReader interface {
	Address() common.Address
	Nonce(ctx context.Context) (*big.Int, error)
	DomainSeparator(ctx context.Context) (common.Hash, error)
	Owners(ctx context.Context) ([]common.Address, error)
	Threshold(ctx context.Context) (*big.Int, error)
}

// Relay submits proposals and lists pending ones.
type Relay interface {
	ProposeTransaction(ctx context.Context, req *relay.ProposeRequest) error
	ListPending(ctx context.Context) ([]relay.ProposalRecord, error)
}

// Service defines the proposal engine contract.
type Service interface {
	Propose(ctx context.Context, req *Request) (*Result, error)
}

type service struct {
	reader    SafeReader
	relay     Relay
	signerKey *ecdsa.PrivateKey
	sender    common.Address
}

// NewService creates a proposal engine signing with the given owner or
// delegate key.
//
//nolint:ireturn // Returning interface aids DI
func NewService(reader SafeReader, relayClient Relay, signerKey *ecdsa.PrivateKey) Service {
	return &service{
		reader:    reader,
		relay:     relayClient,
		signerKey: signerKey,
		sender:    crypto.PubkeyToAddress(signerKey.PublicKey),
	}
}

// Propose validates the request, reads the Safe state, refuses on a
// nonce conflict, then hashes, signs and submits the transaction.
func (s *service) Propose(ctx context.Context, req *Request) (*Result, error) {
	parsed, err := parseRequest(req)
	if err != nil {
		return nil, err
	}

	var (
		nonce           *big.Int
		domainSeparator common.Hash
		pending         []relay.ProposalRecord
		owners          []common.Address
		threshold       *big.Int
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() (err error) {
		nonce, err = s.reader.Nonce(groupCtx)
		return err
	})
	group.Go(func() (err error) {
		domainSeparator, err = s.reader.DomainSeparator(groupCtx)
		return err
	})
	group.Go(func() (err error) {
		pending, err = s.relay.ListPending(groupCtx)
		return err
	})
	group.Go(func() (err error) {
		owners, err = s.reader.Owners(groupCtx)
		return err
	})
	group.Go(func() (err error) {
		threshold, err = s.reader.Threshold(groupCtx)
		return err
	})
	if err := group.Wait(); err != nil {
		return nil, errors.Wrap(err, "failed to read safe state")
	}

	if threshold.Sign() < 1 || threshold.Cmp(big.NewInt(int64(len(owners)))) > 0 {
		return nil, errors.Errorf("safe reports threshold %s outside [1, %d]", threshold, len(owners))
	}

	if err := checkNonceConflict(nonce.Uint64(), pending); err != nil {
		return nil, err
	}

	tx := &safe.Transaction{
		To:        parsed.to,
		Value:     parsed.value,
		Data:      parsed.data,
		Operation: safe.OperationCall,
		Nonce:     nonce,
	}

	safeTxHash := safe.TransactionHash(domainSeparator, tx)

	signature, err := safe.SignTransactionHash(safeTxHash, s.signerKey)
	if err != nil {
		return nil, err
	}

	submission := &relay.ProposeRequest{
		To:                      parsed.to.Hex(),
		Value:                   parsed.value.String(),
		Data:                    hexDataOrNil(parsed.data),
		Operation:               int(safe.OperationCall),
		GasToken:                (common.Address{}).Hex(),
		RefundReceiver:          (common.Address{}).Hex(),
		Nonce:                   nonce.Uint64(),
		ContractTransactionHash: safeTxHash.Hex(),
		Sender:                  s.sender.Hex(),
		Signature:               "0x" + hex.EncodeToString(signature),
	}

	if err := s.relay.ProposeTransaction(ctx, submission); err != nil {
		return nil, err
	}

	log.Info().
		Str("safe", s.reader.Address().Hex()).
		Str("safe_tx_hash", safeTxHash.Hex()).
		Uint64("nonce", nonce.Uint64()).
		Str("sender", s.sender.Hex()).
		Msg("ProposalEngine: proposal submitted")

	return &Result{
		SafeTxHash: safeTxHash,
		Nonce:      nonce.Uint64(),
		Sender:     s.sender,
		Threshold:  int(threshold.Int64()),
	}, nil
}

// checkNonceConflict refuses construction when any pending proposal
// already sits on the Safe's current nonce.
func checkNonceConflict(currentNonce uint64, pending []relay.ProposalRecord) error {
	for _, record := range pending {
		if record.IsExecuted {
			continue
		}
		if record.Nonce == currentNonce {
			return &ConflictError{
				Nonce:      currentNonce,
				SafeTxHash: record.SafeTxHash,
				To:         record.To,
				Value:      record.Value,
			}
		}
	}

	return nil
}

func hexDataOrNil(data []byte) *string {
	if len(data) == 0 {
		return nil
	}
	encoded := "0x" + hex.EncodeToString(data)
	return &encoded
}
