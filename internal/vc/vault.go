package vc

import "io"

// Vault stores export bundles outside the relational store. All
// operations use io.Reader/io.Writer for streaming so large bundles
// never have to fit in memory twice.
type Vault interface {
	// PutObject stores an object under key. Storing the same key again
	// overwrites the previous object.
	// size is the number of bytes that will be read from r.
	PutObject(key string, r io.Reader, size int64) error

	// GetObject retrieves an object by key and writes it to w.
	// Returns ErrObjectNotFound when the key does not exist.
	GetObject(key string, w io.Writer) error

	// DeleteObject removes an object. Deleting a missing key is not an
	// error.
	DeleteObject(key string) error

	// ValidateSetup verifies that the vault is accessible and properly
	// configured.
	ValidateSetup() error
}
