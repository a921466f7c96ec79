package encryption

import (
	"bytes"
	"fmt"
	"io"

	"vc-go/internal/vc"
)

// sealMark prefixes everything the test encryptor produces. Eight bytes
// keep sealed output from ever hashing like its plaintext.
var sealMark = []byte("VCENC\x00\x00\x00")

// TestEncryptor stands in for the age encryptor where tests need
// sealing without key files or passphrases: Encrypt prepends sealMark,
// Decrypt strips it. Output is deterministic, so digest comparisons
// stay stable across runs.
type TestEncryptor struct {
	setupCalls int
}

var _ vc.Encryptor = (*TestEncryptor)(nil)

func NewTestEncryptor() *TestEncryptor {
	return &TestEncryptor{}
}

// Setup records the call; there are no keys to generate.
func (e *TestEncryptor) Setup(passphrase string) error {
	e.setupCalls++
	return nil
}

func (e *TestEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	if _, err := w.Write(sealMark); err != nil {
		return fmt.Errorf("writing seal mark: %w", err)
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying payload: %w", err)
	}
	return nil
}

// Unlock accepts any passphrase.
func (e *TestEncryptor) Unlock(passphrase string) (vc.DecryptionContext, error) {
	return &TestDecryptionContext{}, nil
}

func (e *TestEncryptor) IsConfigured() bool {
	return true
}

// TestDecryptionContext reverses TestEncryptor: input must start with
// sealMark, the rest passes through unchanged.
type TestDecryptionContext struct{}

var _ vc.DecryptionContext = (*TestDecryptionContext)(nil)

func (c *TestDecryptionContext) Decrypt(r io.Reader, w io.Writer) error {
	mark := make([]byte, len(sealMark))
	if _, err := io.ReadFull(r, mark); err != nil {
		return fmt.Errorf("reading seal mark: %w", err)
	}
	if !bytes.Equal(mark, sealMark) {
		return fmt.Errorf("input was not sealed by the test encryptor")
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying payload: %w", err)
	}
	return nil
}
