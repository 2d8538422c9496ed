package safe_test

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github/chapool/safe-refill/internal/safe"
)

func syntheticSignature(v byte) []byte {
	sig := make([]byte, safe.SignatureLength)
	for i := 0; i < 64; i++ {
		sig[i] = byte(i + 1)
	}
	sig[64] = v
	return sig
}

func TestEncodeRawHashSignatureRecoveryByte(t *testing.T) {
	tests := []struct {
		in   byte
		want byte
	}{
		{in: 0, want: 31},
		{in: 1, want: 32},
		{in: 27, want: 31},
		{in: 28, want: 32},
	}

	for _, tt := range tests {
		out, err := safe.EncodeRawHashSignature(syntheticSignature(tt.in))
		require.NoError(t, err)
		assert.Equal(t, tt.want, out[64], "recovery byte %d", tt.in)
		// r and s pass through untouched
		assert.Equal(t, syntheticSignature(tt.in)[:64], out[:64])
	}
}

func TestEncodeRawHashSignatureRejectsInvalidRecoveryByte(t *testing.T) {
	for _, v := range []byte{2, 3, 26, 29, 30, 31, 32, 255} {
		_, err := safe.EncodeRawHashSignature(syntheticSignature(v))
		require.Error(t, err, "recovery byte %d", v)

		var integrityErr *safe.SignatureIntegrityError
		assert.True(t, errors.As(err, &integrityErr), "recovery byte %d must yield SignatureIntegrityError", v)
	}
}

func TestEncodeRawHashSignatureRejectsBadLength(t *testing.T) {
	_, err := safe.EncodeRawHashSignature(make([]byte, 64))
	assert.Error(t, err)

	_, err = safe.EncodeRawHashSignature(nil)
	assert.Error(t, err)
}

func TestEncodeRawHashSignatureDoesNotMutateInput(t *testing.T) {
	in := syntheticSignature(0)
	_, err := safe.EncodeRawHashSignature(in)
	require.NoError(t, err)
	assert.Equal(t, byte(0), in[64])
}

func TestSignTransactionHashRecoversSigner(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	hash := common.HexToHash("0x42ff000000000000000000000000000000000000000000000000000000000001")

	sig, err := safe.SignTransactionHash(hash, key)
	require.NoError(t, err)
	require.Len(t, sig, safe.SignatureLength)
	assert.Contains(t, []byte{31, 32}, sig[64])

	// Undo the raw-hash shift and recover the public key to prove the
	// signature covers the unprefixed hash.
	recoverable := append([]byte(nil), sig...)
	recoverable[64] -= 31
	pub, err := crypto.SigToPub(hash.Bytes(), recoverable)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), crypto.PubkeyToAddress(*pub))
}
