package relay

import "fmt"

// Confirmation is one signer's approval attached to a pending proposal.
type Confirmation struct {
	Owner     string `json:"owner"`
	Signature string `json:"signature"`
}

// ProposalRecord is a multisig transaction as the transaction service
// reports it. Records are created by proposal submission, mutated by
// confirmations from any signer, and terminal once executed on-chain or
// superseded by a same-nonce transaction.
type ProposalRecord struct {
	SafeTxHash            string         `json:"safeTxHash"`
	To                    string         `json:"to"`
	Value                 string         `json:"value"`
	Data                  *string        `json:"data"`
	Operation             int            `json:"operation"`
	Nonce                 uint64         `json:"nonce"`
	IsExecuted            bool           `json:"isExecuted"`
	Confirmations         []Confirmation `json:"confirmations"`
	ConfirmationsRequired int            `json:"confirmationsRequired"`
}

// ProposeRequest is the submission body for a new multisig transaction.
// The gas-accounting fields are always zero and the refund fields always
// the zero address; they are still part of the wire format because the
// service validates the contract transaction hash against them.
type ProposeRequest struct {
	To                      string  `json:"to"`
	Value                   string  `json:"value"`
	Data                    *string `json:"data"`
	Operation               int     `json:"operation"`
	SafeTxGas               int64   `json:"safeTxGas"`
	BaseGas                 int64   `json:"baseGas"`
	GasPrice                int64   `json:"gasPrice"`
	GasToken                string  `json:"gasToken"`
	RefundReceiver          string  `json:"refundReceiver"`
	Nonce                   uint64  `json:"nonce"`
	ContractTransactionHash string  `json:"contractTransactionHash"`
	Sender                  string  `json:"sender"`
	Signature               string  `json:"signature"`
}

type pendingResponse struct {
	Count   int              `json:"count"`
	Results []ProposalRecord `json:"results"`
}

// StatusError carries a non-2xx relay response verbatim so the operator
// sees exactly what the service rejected.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("relay returned status %d: %s", e.StatusCode, e.Body)
}
