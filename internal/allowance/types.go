package allowance

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// NativeToken is the token address the allowance module uses for the
// chain's native asset.
var NativeToken = common.Address{}

// State is the module's per (safe, delegate, token) allowance record.
// The module mutates it on-chain; this toolkit only ever reads it and
// triggers executions that cause the module to update it.
type State struct {
	// Amount is the total allowance per reset period, in base units.
	Amount *big.Int
	// Spent is the amount already consumed in the current period.
	Spent *big.Int
	// ResetTimeMin is the reset period in minutes (0 = one-time).
	ResetTimeMin *big.Int
	// LastResetMin is the timestamp of the last reset, in minutes.
	LastResetMin *big.Int
	// Nonce is the module's signature nonce for this tuple.
	Nonce *big.Int
}

// Remaining returns the allowance still spendable in the current period.
func (s *State) Remaining() *big.Int {
	remaining := new(big.Int).Sub(s.Amount, s.Spent)
	if remaining.Sign() < 0 {
		return new(big.Int)
	}
	return remaining
}
