package testutil

import (
	"vc-go/internal/vault"
	"vc-go/internal/vc"
)

// NewTestVault creates a new in-memory vault for testing.
func NewTestVault() vc.Vault {
	return vault.NewMemoryVault("test-vault")
}
