package bundle

import (
	"archive/tar"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"

	"vc-go/internal/model"
)

func digest(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func testSnapshots() []*model.FileSnapshot {
	return []*model.FileSnapshot{
		{
			ID: "snap-1", CommitID: "c-1", FileID: "file-1",
			Name: "order-flow", Type: "bpmn",
			Content: []byte("<definitions/>"), ContentHash: digest("<definitions/>"),
			ChangeType: model.ChangeAdded,
		},
		{
			ID: "snap-2", CommitID: "c-1", FileID: "file-2",
			Name: "intake", Type: "form",
			Content: []byte("{}"), ContentHash: digest("{}"),
			ChangeType: model.ChangeUnchanged,
		},
	}
}

func testManifest() Manifest {
	return Manifest{
		ProjectID:    "proj-1",
		BranchID:     "branch-1",
		CommitID:     "c-1",
		Message:      "release",
		AuthorUserID: "user-1",
		CommittedAt:  time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestWriteRead_RoundTrip(t *testing.T) {
	manifest := testManifest()
	snapshots := testSnapshots()

	var buf bytes.Buffer
	if err := Write(&buf, manifest, snapshots); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := Read(&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}

	m := got.Manifest
	if m.ProjectID != manifest.ProjectID || m.BranchID != manifest.BranchID || m.CommitID != manifest.CommitID {
		t.Errorf("manifest ids = %s/%s/%s, want the originals", m.ProjectID, m.BranchID, m.CommitID)
	}
	if m.Message != manifest.Message || m.AuthorUserID != manifest.AuthorUserID {
		t.Errorf("manifest attribution = %q by %s, want the originals", m.Message, m.AuthorUserID)
	}
	if !m.CommittedAt.Equal(manifest.CommittedAt) {
		t.Errorf("CommittedAt = %v, want %v", m.CommittedAt, manifest.CommittedAt)
	}

	if len(got.Files) != len(snapshots) {
		t.Fatalf("file count = %d, want %d", len(got.Files), len(snapshots))
	}
	for i, snap := range snapshots {
		f := got.Files[i]
		if f.FileID != snap.FileID || f.Name != snap.Name || f.Type != snap.Type {
			t.Errorf("file[%d] = %s %s %s, want %s %s %s",
				i, f.FileID, f.Name, f.Type, snap.FileID, snap.Name, snap.Type)
		}
		if !bytes.Equal(f.Content, snap.Content) {
			t.Errorf("file[%d] content = %q, want %q", i, f.Content, snap.Content)
		}
		if f.Size != int64(len(snap.Content)) {
			t.Errorf("file[%d] size = %d, want %d", i, f.Size, len(snap.Content))
		}
	}
}

func TestWriteRead_EmptyCommit(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, testManifest(), nil); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := Read(&buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(got.Files) != 0 {
		t.Errorf("file count = %d, want 0", len(got.Files))
	}
	if got.Manifest.CommitID != "c-1" {
		t.Errorf("CommitID = %s, want c-1", got.Manifest.CommitID)
	}
}

func TestWrite_Deterministic(t *testing.T) {
	manifest := testManifest()
	snapshots := testSnapshots()

	var first, second bytes.Buffer
	if err := Write(&first, manifest, snapshots); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := Write(&second, manifest, snapshots); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	if !bytes.Equal(first.Bytes(), second.Bytes()) {
		t.Error("identical inputs produced different bundles")
	}
}

func TestRead_DigestMismatch(t *testing.T) {
	snapshots := testSnapshots()
	// The recorded digest lies about the payload.
	snapshots[0].ContentHash = digest("something else")

	var buf bytes.Buffer
	if err := Write(&buf, testManifest(), snapshots); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	if _, err := Read(&buf); err == nil {
		t.Error("Read() expected a digest mismatch error, got nil")
	}
}

// rawBundle hand-builds a compressed archive so malformed layouts can
// be fed to Read.
func rawBundle(t *testing.T, names []string, contents [][]byte) *bytes.Buffer {
	t.Helper()

	var buf bytes.Buffer
	zw, err := zstd.NewWriter(&buf, zstd.WithEncoderConcurrency(1))
	if err != nil {
		t.Fatalf("creating compressor: %v", err)
	}
	tw := tar.NewWriter(zw)
	for i, name := range names {
		hdr := &tar.Header{Name: name, Mode: 0o644, Size: int64(len(contents[i])), ModTime: time.Unix(0, 0)}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("writing header: %v", err)
		}
		if _, err := tw.Write(contents[i]); err != nil {
			t.Fatalf("writing payload: %v", err)
		}
	}
	tw.Close()
	zw.Close()
	return &buf
}

func TestRead_MalformedBundles(t *testing.T) {
	encodeManifest := func(t *testing.T, m Manifest) []byte {
		t.Helper()
		encoded, err := json.Marshal(m)
		if err != nil {
			t.Fatalf("encoding manifest: %v", err)
		}
		return encoded
	}

	t.Run("first entry is not the manifest", func(t *testing.T) {
		buf := rawBundle(t, []string{"files/file-1"}, [][]byte{[]byte("<x/>")})
		if _, err := Read(buf); err == nil {
			t.Error("Read() expected an error, got nil")
		}
	})

	t.Run("payload missing from the manifest", func(t *testing.T) {
		manifest := encodeManifest(t, testManifest())
		buf := rawBundle(t,
			[]string{"manifest.json", "files/stray"},
			[][]byte{manifest, []byte("<x/>")})
		if _, err := Read(buf); err == nil {
			t.Error("Read() expected an error, got nil")
		}
	})

	t.Run("manifest entry without a payload", func(t *testing.T) {
		m := testManifest()
		m.Files = []Entry{{FileID: "file-1", Name: "order-flow", Type: "bpmn", ContentHash: digest("<x/>"), Size: 4}}
		buf := rawBundle(t, []string{"manifest.json"}, [][]byte{encodeManifest(t, m)})
		if _, err := Read(buf); err == nil {
			t.Error("Read() expected an error, got nil")
		}
	})

	t.Run("duplicate payload masking a missing one", func(t *testing.T) {
		// Two payloads for file-1 and none for file-2: the payload count
		// matches the manifest, so correspondence must be checked per id.
		m := testManifest()
		m.Files = []Entry{
			{FileID: "file-1", Name: "order-flow", Type: "bpmn", ContentHash: digest("<x/>"), Size: 4},
			{FileID: "file-2", Name: "intake", Type: "form", ContentHash: digest("{}"), Size: 2},
		}
		buf := rawBundle(t,
			[]string{"manifest.json", "files/file-1", "files/file-1"},
			[][]byte{encodeManifest(t, m), []byte("<x/>"), []byte("<x/>")})
		if _, err := Read(buf); err == nil {
			t.Error("Read() expected an error, got nil")
		}
	})

	t.Run("manifest lists an id twice", func(t *testing.T) {
		m := testManifest()
		m.Files = []Entry{
			{FileID: "file-1", Name: "order-flow", Type: "bpmn", ContentHash: digest("<x/>"), Size: 4},
			{FileID: "file-1", Name: "order-flow-copy", Type: "bpmn", ContentHash: digest("<x/>"), Size: 4},
		}
		buf := rawBundle(t,
			[]string{"manifest.json", "files/file-1"},
			[][]byte{encodeManifest(t, m), []byte("<x/>")})
		if _, err := Read(buf); err == nil {
			t.Error("Read() expected an error, got nil")
		}
	})

	t.Run("unexpected entry name", func(t *testing.T) {
		manifest := encodeManifest(t, testManifest())
		buf := rawBundle(t,
			[]string{"manifest.json", "extras/readme"},
			[][]byte{manifest, []byte("hello")})
		if _, err := Read(buf); err == nil {
			t.Error("Read() expected an error, got nil")
		}
	})
}
