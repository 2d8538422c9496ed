package safe

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Operation is the Safe call type of a transaction.
type Operation uint8

const (
	// OperationCall is a regular CALL. It is the only operation this
	// toolkit ever produces.
	OperationCall Operation = 0

	// OperationDelegateCall is a DELEGATECALL. Recognized when reading
	// pending proposals, never constructed here.
	OperationDelegateCall Operation = 1
)

// Transaction is a Safe multisig transaction. The gas-accounting and
// refund fields of the on-chain SafeTx struct are always zero for
// transactions built by this toolkit, so they are not part of the value.
//
// A Transaction is immutable once hashed: a given (to, value, data,
// operation, nonce) tuple plus a domain separator maps to exactly one
// contract transaction hash.
type Transaction struct {
	To        common.Address
	Value     *big.Int
	Data      []byte
	Operation Operation
	Nonce     *big.Int
}
