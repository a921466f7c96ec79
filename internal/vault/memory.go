package vault

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"vc-go/internal/vc"
)

// MemoryVault is an in-memory implementation of the Vault interface.
// It keeps all objects in memory, making it useful for testing.
// This implementation is safe for concurrent use.
type MemoryVault struct {
	name    string
	objects map[string][]byte // key -> object bytes
	mu      sync.RWMutex
}

// NewMemoryVault creates a new in-memory vault with the given name.
func NewMemoryVault(name string) *MemoryVault {
	return &MemoryVault{
		name:    name,
		objects: make(map[string][]byte),
	}
}

// PutObject stores an object under key, replacing any previous object.
func (m *MemoryVault) PutObject(key string, r io.Reader, size int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read object: %w", err)
	}

	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.objects[key] = data
	return nil
}

// GetObject retrieves an object by key and writes it to w.
func (m *MemoryVault) GetObject(key string, w io.Writer) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.objects[key]
	if !ok {
		return fmt.Errorf("object %s: %w", key, vc.ErrObjectNotFound)
	}

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write object: %w", err)
	}

	return nil
}

// DeleteObject removes an object. Deleting a missing key is a no-op.
func (m *MemoryVault) DeleteObject(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.objects, key)
	return nil
}

// ValidateSetup always succeeds for in-memory vault.
func (m *MemoryVault) ValidateSetup() error {
	return nil
}

// Compile-time check that MemoryVault implements vc.Vault interface
var _ vc.Vault = (*MemoryVault)(nil)
