package safe

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	abiWordLength = 32

	// safeTxTypeString is the canonical EIP-712 type of a Safe
	// transaction. The typehash derived from it must match the
	// SAFE_TX_TYPEHASH constant compiled into the Safe contract,
	// otherwise checkSignatures rejects every signature.
	safeTxTypeString = "SafeTx(address to,uint256 value,bytes data,uint8 operation," +
		"uint256 safeTxGas,uint256 baseGas,uint256 gasPrice,address gasToken," +
		"address refundReceiver,uint256 nonce)"
)

// eip712Prefix precedes domainSeparator ++ structHash in the final digest.
var eip712Prefix = []byte{0x19, 0x01}

var safeTxTypehash = crypto.Keccak256Hash([]byte(safeTxTypeString))

// TransactionHash computes the contract transaction hash the Safe itself
// derives for tx under the given domain separator:
//
//	keccak256(0x19 || 0x01 || domainSeparator || keccak256(abi.encode(
//	    SAFE_TX_TYPEHASH, to, value, keccak256(data), operation,
//	    0, 0, 0, address(0), address(0), nonce)))
//
// Every independent signer must converge on this exact hash, so the
// encoding is fixed-width ABI words in the order above with no variation.
func TransactionHash(domainSeparator common.Hash, tx *Transaction) common.Hash {
	dataHash := crypto.Keccak256Hash(tx.Data)

	const encodedWords = 11
	encoded := make([]byte, 0, encodedWords*abiWordLength)
	encoded = append(encoded, safeTxTypehash.Bytes()...)
	encoded = append(encoded, common.LeftPadBytes(tx.To.Bytes(), abiWordLength)...)
	encoded = append(encoded, common.LeftPadBytes(bigOrZero(tx.Value).Bytes(), abiWordLength)...)
	encoded = append(encoded, dataHash.Bytes()...)
	encoded = append(encoded, common.LeftPadBytes([]byte{byte(tx.Operation)}, abiWordLength)...)
	// safeTxGas, baseGas, gasPrice, gasToken, refundReceiver are all zero.
	const zeroedWords = 5
	encoded = append(encoded, make([]byte, zeroedWords*abiWordLength)...)
	encoded = append(encoded, common.LeftPadBytes(bigOrZero(tx.Nonce).Bytes(), abiWordLength)...)

	structHash := crypto.Keccak256(encoded)

	digest := make([]byte, 0, len(eip712Prefix)+2*abiWordLength)
	digest = append(digest, eip712Prefix...)
	digest = append(digest, domainSeparator.Bytes()...)
	digest = append(digest, structHash...)

	return crypto.Keccak256Hash(digest)
}

func bigOrZero(value *big.Int) *big.Int {
	if value == nil {
		return new(big.Int)
	}
	return value
}
