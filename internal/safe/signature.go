package safe

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

const (
	// SignatureLength is r (32) + s (32) + v (1).
	SignatureLength = 65

	// legacyVOffset normalizes a 0/1-style recovery id to 27/28.
	legacyVOffset = 27

	// ethSignVOffset shifts 27/28 to 31/32, which tells the Safe that the
	// signature covers the raw transaction hash rather than an
	// EIP-191-prefixed message.
	ethSignVOffset = 4

	minRawHashV = 31
	maxRawHashV = 32
)

// SignatureIntegrityError reports a recovery byte that did not land on
// 31 or 32 after adjustment. It indicates a signing-library or
// environment defect; a signature carrying it must never be submitted.
type SignatureIntegrityError struct {
	V byte
}

func (e *SignatureIntegrityError) Error() string {
	return fmt.Sprintf("adjusted signature recovery byte is %d, expected 31 or 32", e.V)
}

// EncodeRawHashSignature converts a raw 65-byte ECDSA signature over the
// Safe transaction hash into the Safe's eth_sign-style encoding: a
// recovery byte below 27 is first normalized to 27/28, then shifted by 4.
// The input slice is not modified.
func EncodeRawHashSignature(sig []byte) ([]byte, error) {
	if len(sig) != SignatureLength {
		return nil, errors.Errorf("signature must be %d bytes, got %d", SignatureLength, len(sig))
	}

	out := make([]byte, SignatureLength)
	copy(out, sig)

	v := out[SignatureLength-1]
	if v < legacyVOffset {
		v += legacyVOffset
	}
	v += ethSignVOffset

	if v < minRawHashV || v > maxRawHashV {
		return nil, &SignatureIntegrityError{V: v}
	}

	out[SignatureLength-1] = v
	return out, nil
}

// SignTransactionHash signs the 32-byte Safe transaction hash directly
// (no message prefix) and returns the signature in the raw-hash encoding
// the Safe expects from a delegate or owner key.
func SignTransactionHash(hash common.Hash, key *ecdsa.PrivateKey) ([]byte, error) {
	sig, err := crypto.Sign(hash.Bytes(), key)
	if err != nil {
		return nil, errors.Wrap(err, "failed to sign safe transaction hash")
	}

	encoded, err := EncodeRawHashSignature(sig)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode signature")
	}

	return encoded, nil
}
