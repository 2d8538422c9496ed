package propose

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Request is one proposal as the operator states it on the command line.
type Request struct {
	// To is the recipient address, checksum-verified when mixed-case.
	To string
	// Value is the amount in wei, decimal.
	Value string
	// Data is optional 0x-prefixed call data.
	Data string
}

// Result reports a successfully submitted proposal.
type Result struct {
	SafeTxHash common.Hash
	Nonce      uint64
	Sender     common.Address
	Threshold  int
}

// ValidationError is a malformed operator input. It is reported before
// any network call is made.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ConflictError means a pending proposal already occupies the Safe's
// current nonce. The ledger accepts only one transaction per nonce;
// constructing a second would race the existing one and confuse signers
// about what was actually approved.
type ConflictError struct {
	Nonce      uint64
	SafeTxHash string
	To         string
	Value      string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf(
		"nonce %d is already occupied by pending proposal %s (to %s, value %s): execute or reject that proposal first, or add your confirmation to it with the confirm command",
		e.Nonce, e.SafeTxHash, e.To, e.Value)
}
