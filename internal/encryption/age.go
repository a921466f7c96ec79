// Package encryption seals export bundles. The default implementation
// wraps filippo.io/age with X25519 keys; a deterministic header-based
// one backs tests.
package encryption

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"filippo.io/age"

	"vc-go/internal/config"
	"vc-go/internal/vc"
)

// AgeEncryptor seals export bundles with an age X25519 key pair. The
// public key sits on disk in plaintext so exports need no passphrase;
// the private key is itself age-encrypted under the holder's
// passphrase (scrypt) and only ever decrypted into memory by Unlock.
type AgeEncryptor struct {
	publicKeyPath  string
	privateKeyPath string
}

var _ vc.Encryptor = (*AgeEncryptor)(nil)

// NewAgeEncryptor returns an encryptor reading its key pair from the
// configured paths.
func NewAgeEncryptor(cfg config.EncryptionConfig) *AgeEncryptor {
	return &AgeEncryptor{
		publicKeyPath:  cfg.PublicKeyPath,
		privateKeyPath: cfg.PrivateKeyPath,
	}
}

// Setup generates a fresh X25519 key pair and writes both halves to
// their configured paths: the recipient line in plaintext, the identity
// wrapped with passphrase encryption. Existing key files are replaced.
func (e *AgeEncryptor) Setup(passphrase string) error {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return fmt.Errorf("generating key pair: %w", err)
	}
	if err := e.writeRecipient(identity); err != nil {
		return err
	}
	return e.writeIdentity(identity, passphrase)
}

func (e *AgeEncryptor) writeRecipient(identity *age.X25519Identity) error {
	if err := os.MkdirAll(filepath.Dir(e.publicKeyPath), 0700); err != nil {
		return fmt.Errorf("creating key directory: %w", err)
	}
	line := identity.Recipient().String() + "\n"
	if err := os.WriteFile(e.publicKeyPath, []byte(line), 0644); err != nil {
		return fmt.Errorf("writing public key: %w", err)
	}
	return nil
}

func (e *AgeEncryptor) writeIdentity(identity *age.X25519Identity, passphrase string) error {
	if err := os.MkdirAll(filepath.Dir(e.privateKeyPath), 0700); err != nil {
		return fmt.Errorf("creating key directory: %w", err)
	}
	f, err := os.OpenFile(e.privateKeyPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating private key file: %w", err)
	}
	defer f.Close()

	guard, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return fmt.Errorf("deriving passphrase recipient: %w", err)
	}
	w, err := age.Encrypt(f, guard)
	if err != nil {
		return fmt.Errorf("encrypting private key: %w", err)
	}
	if _, err := io.WriteString(w, identity.String()+"\n"); err != nil {
		return fmt.Errorf("writing private key: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalizing private key: %w", err)
	}
	return nil
}

// Encrypt streams plaintext from r into w as age ciphertext for the
// stored public key.
func (e *AgeEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	recipient, err := e.loadRecipient()
	if err != nil {
		return err
	}

	cw, err := age.Encrypt(w, recipient)
	if err != nil {
		return fmt.Errorf("starting encryption: %w", err)
	}
	if _, err := io.Copy(cw, r); err != nil {
		return fmt.Errorf("encrypting data: %w", err)
	}
	if err := cw.Close(); err != nil {
		return fmt.Errorf("finalizing encryption: %w", err)
	}
	return nil
}

// Unlock decrypts the stored private key with the passphrase and
// returns a context able to open bundles sealed for the matching
// public key. A wrong passphrase surfaces as a decryption error; the
// key files are never altered.
func (e *AgeEncryptor) Unlock(passphrase string) (vc.DecryptionContext, error) {
	sealed, err := os.ReadFile(e.privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("reading private key: %w", err)
	}

	guard, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, fmt.Errorf("deriving passphrase identity: %w", err)
	}
	plain, err := age.Decrypt(bytes.NewReader(sealed), guard)
	if err != nil {
		return nil, fmt.Errorf("decrypting private key: %w", err)
	}
	identities, err := age.ParseIdentities(plain)
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	if len(identities) == 0 {
		return nil, fmt.Errorf("private key file holds no identity")
	}
	return &AgeDecryptionContext{identity: identities[0]}, nil
}

// IsConfigured reports whether both key files exist at their configured
// paths.
func (e *AgeEncryptor) IsConfigured() bool {
	_, pubErr := os.Stat(e.publicKeyPath)
	_, privErr := os.Stat(e.privateKeyPath)
	return pubErr == nil && privErr == nil
}

func (e *AgeEncryptor) loadRecipient() (age.Recipient, error) {
	raw, err := os.ReadFile(e.publicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("reading public key: %w", err)
	}
	recipients, err := age.ParseRecipients(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("parsing public key: %w", err)
	}
	if len(recipients) == 0 {
		return nil, fmt.Errorf("public key file holds no recipient")
	}
	return recipients[0], nil
}

// AgeDecryptionContext carries an unlocked identity for the duration
// of an inspection session.
type AgeDecryptionContext struct {
	identity age.Identity
}

var _ vc.DecryptionContext = (*AgeDecryptionContext)(nil)

// Decrypt streams age ciphertext from r into w as plaintext.
func (c *AgeDecryptionContext) Decrypt(r io.Reader, w io.Writer) error {
	plain, err := age.Decrypt(r, c.identity)
	if err != nil {
		return fmt.Errorf("opening ciphertext: %w", err)
	}
	if _, err := io.Copy(w, plain); err != nil {
		return fmt.Errorf("decrypting data: %w", err)
	}
	return nil
}
