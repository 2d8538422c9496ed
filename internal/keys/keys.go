// Package keys retrieves the delegate signing key from its configured
// source: an encrypted keystore file unlocked by a passphrase, or a raw
// hex key from the environment for disposable test setups.
package keys

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"golang.org/x/term"
)

// Source yields the delegate's private key. Absence or access failure
// is fatal for the calling command.
type Source interface {
	PrivateKey(ctx context.Context) (*ecdsa.PrivateKey, error)
}

// FileSource reads an encrypted keystore v3 file. When no passphrase is
// supplied it prompts on the terminal; an unattended run without a
// passphrase fails with instructions instead of hanging.
type FileSource struct {
	Path       string
	Passphrase string
}

// PrivateKey decrypts and parses the key from the keystore file.
func (s *FileSource) PrivateKey(_ context.Context) (*ecdsa.PrivateKey, error) {
	raw, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, errors.Wrapf(err,
			"failed to read keystore file %s (create one with the keys import command)", s.Path)
	}

	var keystoreJSON KeystoreJSON
	if err := json.Unmarshal(raw, &keystoreJSON); err != nil {
		return nil, errors.Wrapf(err, "failed to parse keystore file %s", s.Path)
	}

	passphrase := s.Passphrase
	if passphrase == "" {
		passphrase, err = promptPassphrase("Keystore passphrase: ")
		if err != nil {
			return nil, err
		}
	}

	secret, err := decryptSecret(&keystoreJSON, passphrase)
	if err != nil {
		return nil, errors.Wrap(err, "failed to unlock keystore (check the passphrase)")
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(string(secret)), "0x"))
	if err != nil {
		return nil, errors.Wrap(err, "keystore does not contain a valid private key")
	}

	return key, nil
}

// EnvSource holds a raw hex-encoded private key taken from the
// environment.
type EnvSource struct {
	Hex string
}

// PrivateKey parses the raw hex key.
func (s *EnvSource) PrivateKey(_ context.Context) (*ecdsa.PrivateKey, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(s.Hex), "0x"))
	if err != nil {
		return nil, errors.Wrap(err, "invalid private key in environment")
	}

	return key, nil
}

// NewSource picks the key source from configuration: the keystore file
// when set, the raw env key otherwise.
//
//nolint:ireturn // Returning interface aids DI
func NewSource(keystoreFile, passphrase, rawHex string) (Source, error) {
	switch {
	case keystoreFile != "":
		return &FileSource{Path: keystoreFile, Passphrase: passphrase}, nil
	case rawHex != "":
		return &EnvSource{Hex: rawHex}, nil
	default:
		return nil, errors.New(
			"no signing key configured: set SAFE_KEYSTORE_FILE (plus SAFE_KEYSTORE_PASSPHRASE for unattended runs) or SAFE_DELEGATE_KEY")
	}
}

// ImportKey encrypts a raw hex private key into a keystore v3 file at
// path. The file is created exclusively so an existing keystore is
// never overwritten.
func ImportKey(path, rawHex, passphrase string) error {
	keyHex := strings.TrimPrefix(strings.TrimSpace(rawHex), "0x")

	key, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return errors.Wrap(err, "invalid private key")
	}

	keystoreJSON, err := encryptSecret([]byte(keyHex), passphrase)
	if err != nil {
		return errors.Wrap(err, "failed to encrypt private key")
	}
	keystoreJSON.Address = strings.ToLower(crypto.PubkeyToAddress(key.PublicKey).Hex())

	encoded, err := json.MarshalIndent(keystoreJSON, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode keystore")
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return errors.Wrapf(err, "failed to create keystore file %s", path)
	}
	defer file.Close()

	if _, err := file.Write(encoded); err != nil {
		return errors.Wrap(err, "failed to write keystore file")
	}

	return nil
}

func promptPassphrase(prompt string) (string, error) {
	stdin := int(os.Stdin.Fd())
	if !term.IsTerminal(stdin) {
		return "", errors.New(
			"keystore passphrase required: set SAFE_KEYSTORE_PASSPHRASE or run from a terminal")
	}

	fmt.Fprint(os.Stderr, prompt)
	passphrase, err := term.ReadPassword(stdin)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", errors.Wrap(err, "failed to read passphrase")
	}

	return string(passphrase), nil
}
