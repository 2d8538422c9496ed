// Package allowance adapts the Safe allowance module: querying the
// delegated spending limit and pulling funds from the Safe through it.
package allowance

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	executeEIPMultiplier int64 = 2
)

// moduleABI is the interface of the deployed AllowanceModule. The
// delegate signature parameter of executeAllowanceTransfer stays empty
// because the transaction sender is itself the registered delegate.
const moduleABI = `[
	{
		"constant": true,
		"inputs": [
			{"name": "safe", "type": "address"},
			{"name": "delegate", "type": "address"},
			{"name": "token", "type": "address"}
		],
		"name": "getTokenAllowance",
		"outputs": [{"name": "", "type": "uint256[5]"}],
		"type": "function"
	},
	{
		"constant": false,
		"inputs": [
			{"name": "safe", "type": "address"},
			{"name": "token", "type": "address"},
			{"name": "to", "type": "address"},
			{"name": "amount", "type": "uint96"},
			{"name": "paymentToken", "type": "address"},
			{"name": "payment", "type": "uint96"},
			{"name": "delegate", "type": "address"},
			{"name": "signature", "type": "bytes"}
		],
		"name": "executeAllowanceTransfer",
		"outputs": [],
		"type": "function"
	}
]`

var parsedModuleABI = mustParseABI(moduleABI)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

// ChainClient is the RPC surface the allowance service needs.
type ChainClient interface {
	ChainID(ctx context.Context) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, address common.Address) (uint64, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, blockNumber *big.Int) (*types.Header, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	WaitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Service defines the allowance-module operations contract.
type Service interface {
	// Allowance reads the delegate's allowance state for a token.
	Allowance(ctx context.Context, token common.Address) (*State, error)

	// TransferCalldata builds the executeAllowanceTransfer calldata
	// moving amount of token from the Safe to the recipient.
	TransferCalldata(token, to common.Address, amount *big.Int) ([]byte, error)

	// Simulate runs the calldata as an eth_call from the delegate
	// without broadcasting. A revert surfaces as an error.
	Simulate(ctx context.Context, calldata []byte) error

	// ExecuteTransfer broadcasts the calldata as a transaction signed by
	// the delegate key and waits for inclusion.
	ExecuteTransfer(ctx context.Context, calldata []byte) (*types.Receipt, error)
}

type service struct {
	client      ChainClient
	module      common.Address
	safe        common.Address
	delegateKey *ecdsa.PrivateKey
	delegate    common.Address
}

// NewService creates an allowance service bound to one Safe and one
// delegate key.
//
//nolint:ireturn // Returning interface aids DI
func NewService(client ChainClient, module, safeAddress common.Address, delegateKey *ecdsa.PrivateKey) Service {
	return &service{
		client:      client,
		module:      module,
		safe:        safeAddress,
		delegateKey: delegateKey,
		delegate:    crypto.PubkeyToAddress(delegateKey.PublicKey),
	}
}

// Allowance reads the delegate's allowance state for a token.
func (s *service) Allowance(ctx context.Context, token common.Address) (*State, error) {
	input, err := parsedModuleABI.Pack("getTokenAllowance", s.safe, s.delegate, token)
	if err != nil {
		return nil, errors.Wrap(err, "failed to pack getTokenAllowance call")
	}

	resp, err := s.client.CallContract(ctx, ethereum.CallMsg{To: &s.module, Data: input}, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to call getTokenAllowance")
	}

	out, err := parsedModuleABI.Unpack("getTokenAllowance", resp)
	if err != nil {
		return nil, errors.Wrap(err, "failed to unpack getTokenAllowance result")
	}
	if len(out) == 0 {
		return nil, errors.New("empty getTokenAllowance result")
	}

	values, ok := out[0].([5]*big.Int)
	if !ok {
		return nil, errors.New("unexpected getTokenAllowance return type")
	}

	return &State{
		Amount:       values[0],
		Spent:        values[1],
		ResetTimeMin: values[2],
		LastResetMin: values[3],
		Nonce:        values[4],
	}, nil
}

// TransferCalldata builds the executeAllowanceTransfer calldata.
func (s *service) TransferCalldata(token, to common.Address, amount *big.Int) ([]byte, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, errors.New("transfer amount must be positive")
	}

	calldata, err := parsedModuleABI.Pack("executeAllowanceTransfer",
		s.safe,
		token,
		to,
		amount,
		common.Address{}, // paymentToken: no fee refund
		new(big.Int),     // payment
		s.delegate,
		[]byte{}, // signature: sender is the delegate itself
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to pack executeAllowanceTransfer call")
	}

	return calldata, nil
}

// Simulate runs the calldata against current chain state without
// broadcasting, bounding wasted fees when the transfer would revert.
func (s *service) Simulate(ctx context.Context, calldata []byte) error {
	msg := ethereum.CallMsg{
		From: s.delegate,
		To:   &s.module,
		Data: calldata,
	}

	if _, err := s.client.CallContract(ctx, msg, nil); err != nil {
		return errors.Wrap(err, "allowance transfer simulation failed")
	}

	return nil
}

// ExecuteTransfer signs and broadcasts the allowance transfer, then
// waits for inclusion.
func (s *service) ExecuteTransfer(ctx context.Context, calldata []byte) (*types.Receipt, error) {
	chainID, err := s.client.ChainID(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get chain ID")
	}

	nonce, err := s.client.PendingNonceAt(ctx, s.delegate)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get delegate nonce")
	}

	msg := ethereum.CallMsg{
		From: s.delegate,
		To:   &s.module,
		Data: calldata,
	}
	gasLimit, err := s.client.EstimateGas(ctx, msg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to estimate gas")
	}

	tipCap, err := s.client.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to suggest gas tip cap")
	}

	header, err := s.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch latest header")
	}

	baseFee := header.BaseFee
	if baseFee == nil {
		baseFee = new(big.Int)
	}

	maxFee := new(big.Int).Add(
		new(big.Int).Mul(baseFee, big.NewInt(executeEIPMultiplier)),
		tipCap,
	)

	module := s.module
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: tipCap,
		GasFeeCap: maxFee,
		Gas:       gasLimit,
		To:        &module,
		Data:      calldata,
	})

	signedTx, err := types.SignTx(tx, types.NewLondonSigner(chainID), s.delegateKey)
	if err != nil {
		return nil, errors.Wrap(err, "failed to sign allowance transfer")
	}

	if err := s.client.SendTransaction(ctx, signedTx); err != nil {
		return nil, errors.Wrap(err, "failed to broadcast allowance transfer")
	}

	log.Info().
		Str("tx_hash", signedTx.Hash().Hex()).
		Str("safe", s.safe.Hex()).
		Str("delegate", s.delegate.Hex()).
		Msg("AllowanceService: allowance transfer broadcasted")

	receipt, err := s.client.WaitForReceipt(ctx, signedTx.Hash())
	if err != nil {
		return nil, errors.Wrap(err, "failed while waiting for allowance transfer receipt")
	}

	return receipt, nil
}
