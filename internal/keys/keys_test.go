package keys_test

import (
	"context"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github/chapool/safe-refill/internal/keys"
)

func TestImportAndUnlockRoundTrip(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	keyHex := hex.EncodeToString(crypto.FromECDSA(key))

	path := filepath.Join(t.TempDir(), "delegate.json")
	require.NoError(t, keys.ImportKey(path, keyHex, "correct horse"))

	source := &keys.FileSource{Path: path, Passphrase: "correct horse"}
	recovered, err := source.PrivateKey(context.Background())
	require.NoError(t, err)

	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), crypto.PubkeyToAddress(recovered.PublicKey))
}

func TestImportNeverOverwrites(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	keyHex := hex.EncodeToString(crypto.FromECDSA(key))

	path := filepath.Join(t.TempDir(), "delegate.json")
	require.NoError(t, keys.ImportKey(path, keyHex, "pw"))

	err = keys.ImportKey(path, keyHex, "pw")
	require.Error(t, err)
	assert.True(t, os.IsExist(errorCause(err)))
}

func TestFileSourceWrongPassphrase(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	keyHex := hex.EncodeToString(crypto.FromECDSA(key))

	path := filepath.Join(t.TempDir(), "delegate.json")
	require.NoError(t, keys.ImportKey(path, keyHex, "right"))

	source := &keys.FileSource{Path: path, Passphrase: "wrong"}
	_, err = source.PrivateKey(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "passphrase")
}

func TestFileSourceMissingFile(t *testing.T) {
	source := &keys.FileSource{Path: filepath.Join(t.TempDir(), "missing.json"), Passphrase: "pw"}
	_, err := source.PrivateKey(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "keys import")
}

func TestEnvSource(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	keyHex := "0x" + hex.EncodeToString(crypto.FromECDSA(key))

	source := &keys.EnvSource{Hex: keyHex}
	recovered, err := source.PrivateKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), crypto.PubkeyToAddress(recovered.PublicKey))

	_, err = (&keys.EnvSource{Hex: "not-hex"}).PrivateKey(context.Background())
	assert.Error(t, err)
}

func TestNewSourcePrecedence(t *testing.T) {
	source, err := keys.NewSource("/tmp/ks.json", "pw", "deadbeef")
	require.NoError(t, err)
	_, isFile := source.(*keys.FileSource)
	assert.True(t, isFile)

	source, err = keys.NewSource("", "", "deadbeef")
	require.NoError(t, err)
	_, isEnv := source.(*keys.EnvSource)
	assert.True(t, isEnv)

	_, err = keys.NewSource("", "", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no signing key configured")
}

func errorCause(err error) error {
	type causer interface {
		Cause() error
	}

	for err != nil {
		cause, ok := err.(causer)
		if !ok {
			break
		}
		err = cause.Cause()
	}
	return err
}
