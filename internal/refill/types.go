package refill

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Outcome is the terminal state of one asset's refill attempt.
type Outcome string

const (
	// OutcomeOK means the transfer was broadcast and included successfully.
	OutcomeOK Outcome = "ok"
	// OutcomeSkipped means the balance was already above the low threshold.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeTransientFailure covers failures worth retrying on the next
	// scheduled run, including exhausted allowances and on-chain reverts.
	OutcomeTransientFailure Outcome = "transient-failure"
	// OutcomeFatalMisconfiguration means the delegate or module setup is
	// broken and every further attempt would fail the same way.
	OutcomeFatalMisconfiguration Outcome = "fatal-misconfiguration"
)

// Asset is one tracked balance with its refill policy. A zero Token
// address means the chain's native asset.
type Asset struct {
	Name         string
	Token        common.Address
	LowThreshold *big.Int
	RefillAmount *big.Int
}

// Attempt records what happened to one asset during a run. Attempts
// live only for the duration of the run and are never persisted.
type Attempt struct {
	Asset     string
	Balance   *big.Int
	Threshold *big.Int
	Outcome   Outcome
	TxHash    common.Hash
	Err       error
}

// Summary aggregates the attempts of one run.
type Summary struct {
	Attempts []Attempt
}

// HasErrors reports whether any attempt ended in a failure outcome.
func (s *Summary) HasErrors() bool {
	for _, attempt := range s.Attempts {
		if attempt.Outcome == OutcomeTransientFailure || attempt.Outcome == OutcomeFatalMisconfiguration {
			return true
		}
	}

	return false
}
