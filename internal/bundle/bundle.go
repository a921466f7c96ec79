// Package bundle reads and writes portable commit bundles: a
// zstd-compressed tar stream whose first entry is manifest.json,
// followed by one payload entry per file under files/<file id>.
package bundle

import (
	"archive/tar"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/zstd"

	"vc-go/internal/model"
)

// compressionLevel balances speed against ratio for diagram-sized
// payloads (zstd scale: 1 fastest, 3 best).
const compressionLevel = 2

const manifestName = "manifest.json"

// Manifest identifies the commit a bundle was cut from and indexes its
// payload entries.
type Manifest struct {
	ProjectID    string    `json:"project_id"`
	BranchID     string    `json:"branch_id"`
	CommitID     string    `json:"commit_id"`
	Message      string    `json:"message"`
	AuthorUserID string    `json:"author_user_id"`
	CommittedAt  time.Time `json:"committed_at"`
	Files        []Entry   `json:"files"`
}

// Entry describes one bundled file.
type Entry struct {
	FileID      string `json:"file_id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	ContentHash string `json:"content_hash"`
	Size        int64  `json:"size"`
}

// File is a bundled file with its payload.
type File struct {
	Entry
	Content []byte
}

// Bundle is a fully parsed commit bundle.
type Bundle struct {
	Manifest Manifest
	Files    []File
}

// Write serializes a commit's tree into w. The snapshot order is
// preserved, so identical inputs produce identical bundles.
func Write(w io.Writer, manifest Manifest, snapshots []*model.FileSnapshot) error {
	manifest.Files = make([]Entry, 0, len(snapshots))
	for _, snap := range snapshots {
		manifest.Files = append(manifest.Files, Entry{
			FileID:      snap.FileID,
			Name:        snap.Name,
			Type:        snap.Type,
			ContentHash: snap.ContentHash,
			Size:        int64(len(snap.Content)),
		})
	}

	zw, err := zstd.NewWriter(w,
		zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(compressionLevel)),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		return fmt.Errorf("creating compressor: %w", err)
	}
	tw := tar.NewWriter(zw)

	encoded, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	if err := writeEntry(tw, manifestName, manifest.CommittedAt, encoded); err != nil {
		return err
	}
	for _, snap := range snapshots {
		name := "files/" + snap.FileID
		if err := writeEntry(tw, name, manifest.CommittedAt, snap.Content); err != nil {
			return err
		}
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("finalizing archive: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finalizing compression: %w", err)
	}
	return nil
}

// Read parses a bundle, verifies every payload against its recorded
// digest and checks that payloads and manifest entries correspond one
// to one.
func Read(r io.Reader) (*Bundle, error) {
	zr, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("creating decompressor: %w", err)
	}
	defer zr.Close()
	tr := tar.NewReader(zr)

	hdr, err := tr.Next()
	if err != nil {
		return nil, fmt.Errorf("reading manifest entry: %w", err)
	}
	if hdr.Name != manifestName {
		return nil, fmt.Errorf("malformed bundle: first entry is %q, want %q", hdr.Name, manifestName)
	}
	var manifest Manifest
	if err := json.NewDecoder(tr).Decode(&manifest); err != nil {
		return nil, fmt.Errorf("decoding manifest: %w", err)
	}

	byID := make(map[string]Entry, len(manifest.Files))
	for _, e := range manifest.Files {
		if _, dup := byID[e.FileID]; dup {
			return nil, fmt.Errorf("malformed bundle: manifest lists %q twice", e.FileID)
		}
		byID[e.FileID] = e
	}

	b := &Bundle{Manifest: manifest}
	seen := make(map[string]bool, len(manifest.Files))
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading archive entry: %w", err)
		}
		fileID, ok := payloadID(hdr.Name)
		if !ok {
			return nil, fmt.Errorf("malformed bundle: unexpected entry %q", hdr.Name)
		}
		entry, ok := byID[fileID]
		if !ok {
			return nil, fmt.Errorf("malformed bundle: payload %q missing from manifest", fileID)
		}
		if seen[fileID] {
			return nil, fmt.Errorf("malformed bundle: duplicate payload %q", fileID)
		}
		seen[fileID] = true
		content, err := io.ReadAll(tr)
		if err != nil {
			return nil, fmt.Errorf("reading payload %q: %w", fileID, err)
		}
		sum := sha256.Sum256(content)
		if hex.EncodeToString(sum[:]) != entry.ContentHash {
			return nil, fmt.Errorf("payload %q does not match its recorded digest", fileID)
		}
		b.Files = append(b.Files, File{Entry: entry, Content: content})
	}

	for _, e := range manifest.Files {
		if !seen[e.FileID] {
			return nil, fmt.Errorf("malformed bundle: no payload for manifest entry %q", e.FileID)
		}
	}
	return b, nil
}

func writeEntry(tw *tar.Writer, name string, modTime time.Time, content []byte) error {
	hdr := &tar.Header{
		Name:    name,
		Mode:    0o644,
		Size:    int64(len(content)),
		ModTime: modTime,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("writing header for %q: %w", name, err)
	}
	if _, err := io.Copy(tw, bytes.NewReader(content)); err != nil {
		return fmt.Errorf("writing payload for %q: %w", name, err)
	}
	return nil
}

func payloadID(name string) (string, bool) {
	const prefix = "files/"
	if len(name) <= len(prefix) || name[:len(prefix)] != prefix {
		return "", false
	}
	return name[len(prefix):], true
}
