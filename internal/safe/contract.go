package safe

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
)

// contractABI covers the read surface this toolkit needs from a deployed
// Safe. The on-chain wallet logic itself (ownership, threshold
// enforcement) is trusted as ground truth and never reimplemented.
const contractABI = `[
	{
		"constant": true,
		"inputs": [],
		"name": "nonce",
		"outputs": [{"name": "", "type": "uint256"}],
		"type": "function"
	},
	{
		"constant": true,
		"inputs": [],
		"name": "domainSeparator",
		"outputs": [{"name": "", "type": "bytes32"}],
		"type": "function"
	},
	{
		"constant": true,
		"inputs": [],
		"name": "getOwners",
		"outputs": [{"name": "", "type": "address[]"}],
		"type": "function"
	},
	{
		"constant": true,
		"inputs": [],
		"name": "getThreshold",
		"outputs": [{"name": "", "type": "uint256"}],
		"type": "function"
	}
]`

var safeABI = mustParseABI(contractABI)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

// ContractCaller executes a read-only contract call against the latest
// known chain state.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Reader reads Safe contract state over RPC.
type Reader struct {
	caller  ContractCaller
	address common.Address
}

// NewReader creates a Reader for the Safe deployed at address.
func NewReader(caller ContractCaller, address common.Address) *Reader {
	return &Reader{
		caller:  caller,
		address: address,
	}
}

// Address returns the Safe contract address.
func (r *Reader) Address() common.Address {
	return r.address
}

// Nonce returns the Safe's current transaction nonce. This counter is
// the source of truth for proposal construction.
func (r *Reader) Nonce(ctx context.Context) (*big.Int, error) {
	out, err := r.call(ctx, "nonce")
	if err != nil {
		return nil, err
	}

	nonce, ok := out[0].(*big.Int)
	if !ok {
		return nil, errors.New("unexpected nonce return type")
	}

	return nonce, nil
}

// DomainSeparator returns the Safe's EIP-712 domain separator, derived
// on-chain from the contract address and chain id.
func (r *Reader) DomainSeparator(ctx context.Context) (common.Hash, error) {
	out, err := r.call(ctx, "domainSeparator")
	if err != nil {
		return common.Hash{}, err
	}

	separator, ok := out[0].([32]byte)
	if !ok {
		return common.Hash{}, errors.New("unexpected domainSeparator return type")
	}

	return common.Hash(separator), nil
}

// Owners returns the Safe's current owner set.
func (r *Reader) Owners(ctx context.Context) ([]common.Address, error) {
	out, err := r.call(ctx, "getOwners")
	if err != nil {
		return nil, err
	}

	owners, ok := out[0].([]common.Address)
	if !ok {
		return nil, errors.New("unexpected getOwners return type")
	}

	return owners, nil
}

// Threshold returns the number of owner confirmations the Safe requires.
func (r *Reader) Threshold(ctx context.Context) (*big.Int, error) {
	out, err := r.call(ctx, "getThreshold")
	if err != nil {
		return nil, err
	}

	threshold, ok := out[0].(*big.Int)
	if !ok {
		return nil, errors.New("unexpected getThreshold return type")
	}

	return threshold, nil
}

func (r *Reader) call(ctx context.Context, method string) ([]interface{}, error) {
	input, err := safeABI.Pack(method)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to pack %s call", method)
	}

	msg := ethereum.CallMsg{
		To:   &r.address,
		Data: input,
	}

	resp, err := r.caller.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to call %s on safe", method)
	}

	out, err := safeABI.Unpack(method, resp)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to unpack %s result", method)
	}
	if len(out) == 0 {
		return nil, errors.Errorf("empty %s result", method)
	}

	return out, nil
}
