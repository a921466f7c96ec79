package vault

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"vc-go/internal/vc"
)

// FileSystemVault is a filesystem-based implementation of the Vault
// interface. Objects are stored as files under the root, mirroring the
// slash-separated key layout:
//
//	<root>/
//	  exports/
//	    <projectID>/
//	      <commitID>.vcb
type FileSystemVault struct {
	name string
	root string
}

// NewFileSystemVault creates a new filesystem vault rooted at the given path.
func NewFileSystemVault(name, root string) (*FileSystemVault, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create vault root: %w", err)
	}

	return &FileSystemVault{
		name: name,
		root: root,
	}, nil
}

// objectPath maps a key to a path under the vault root. Keys must be
// clean slash-separated paths; anything that would resolve outside the
// root is rejected.
func (v *FileSystemVault) objectPath(key string) (string, error) {
	if key == "" || path.Clean("/"+key) != "/"+key {
		return "", fmt.Errorf("invalid object key: %q", key)
	}
	return filepath.Join(v.root, filepath.FromSlash(key)), nil
}

// PutObject stores an object under key, replacing any previous object.
func (v *FileSystemVault) PutObject(key string, r io.Reader, size int64) error {
	destPath, err := v.objectPath(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("failed to create object directory: %w", err)
	}
	return v.writeFile(destPath, r, size)
}

// GetObject retrieves an object by key and writes it to w.
func (v *FileSystemVault) GetObject(key string, w io.Writer) error {
	srcPath, err := v.objectPath(key)
	if err != nil {
		return err
	}

	f, err := os.Open(srcPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("object %s: %w", key, vc.ErrObjectNotFound)
		}
		return fmt.Errorf("failed to open object: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to read object: %w", err)
	}

	return nil
}

// DeleteObject removes an object. Deleting a missing key is a no-op.
func (v *FileSystemVault) DeleteObject(key string) error {
	destPath, err := v.objectPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(destPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// ValidateSetup verifies that the vault root is accessible.
func (v *FileSystemVault) ValidateSetup() error {
	info, err := os.Stat(v.root)
	if err != nil {
		return fmt.Errorf("vault root not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("vault root is not a directory: %s", v.root)
	}
	return nil
}

// writeFile writes data from r to the specified path using atomic write (temp file + rename).
func (v *FileSystemVault) writeFile(destPath string, r io.Reader, expectedSize int64) error {
	// Create temp file in the same directory to ensure atomic rename works
	dir := filepath.Dir(destPath)
	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	// Clean up temp file on failure
	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	// Copy data to temp file
	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	// Verify size
	if written != expectedSize {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", expectedSize, written)
	}

	// Atomic rename
	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}

// Compile-time check that FileSystemVault implements vc.Vault interface
var _ vc.Vault = (*FileSystemVault)(nil)
