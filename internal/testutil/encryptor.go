package testutil

import (
	"vc-go/internal/encryption"
	"vc-go/internal/vc"
)

// NewTestEncryptor returns the deterministic encryptor so sealed
// exports can be exercised without key files or passphrases.
func NewTestEncryptor() vc.Encryptor {
	return encryption.NewTestEncryptor()
}
