package vc

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashContent returns the SHA-256 hex digest of content. Digests are
// the engine's only change-detection signal: commits, merges and sync
// reconciliation all compare digests, never raw bytes. The digest is
// stable for identical bytes across processes and deployments.
func HashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
