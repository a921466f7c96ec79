package app

import (
	"os"
	"path/filepath"
	"testing"

	"vc-go/internal/config"
	"vc-go/internal/vc"
)

func writeSourceFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		t.Fatalf("creating dir for %s: %v", rel, err)
	}
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatalf("writing %s: %v", rel, err)
	}
}

func TestDirSource_ListProjectFiles(t *testing.T) {
	root := t.TempDir()
	writeSourceFile(t, root, "invoice.bpmn", "<xml>invoice</xml>")
	writeSourceFile(t, root, "flows/onboarding.bpmn", "<xml>onboarding</xml>")
	writeSourceFile(t, root, "flows/legacy/old.dmn", "<xml>old</xml>")
	writeSourceFile(t, root, ".hidden", "skip me")
	writeSourceFile(t, root, ".git/config", "skip me too")

	src := NewDirSource(root)
	files, err := src.ListProjectFiles("any-project")
	if err != nil {
		t.Fatalf("ListProjectFiles() error = %v", err)
	}

	byID := make(map[string]vc.SourceFile, len(files))
	for _, f := range files {
		byID[f.ID] = f
	}

	if len(files) != 3 {
		t.Fatalf("len(files) = %d, want 3 (have %v)", len(files), idsOf(files))
	}

	top, ok := byID["invoice.bpmn"]
	if !ok {
		t.Fatal("missing top-level file invoice.bpmn")
	}
	if top.FolderPath != "" {
		t.Errorf("FolderPath = %q, want empty for top level", top.FolderPath)
	}
	if top.Name != "invoice" || top.Type != "bpmn" {
		t.Errorf("name/type = %q/%q, want invoice/bpmn", top.Name, top.Type)
	}
	if string(top.Content) != "<xml>invoice</xml>" {
		t.Errorf("content = %q", top.Content)
	}

	nested, ok := byID["flows/legacy/old.dmn"]
	if !ok {
		t.Fatal("missing nested file flows/legacy/old.dmn")
	}
	if nested.FolderPath != "flows/legacy" {
		t.Errorf("FolderPath = %q, want %q", nested.FolderPath, "flows/legacy")
	}
	if nested.Name != "old" || nested.Type != "dmn" {
		t.Errorf("name/type = %q/%q, want old/dmn", nested.Name, nested.Type)
	}
}

func TestDirSource_IDsStableAcrossListings(t *testing.T) {
	root := t.TempDir()
	writeSourceFile(t, root, "flows/onboarding.bpmn", "v1")

	src := NewDirSource(root)
	first, err := src.ListProjectFiles("p")
	if err != nil {
		t.Fatalf("first ListProjectFiles() error = %v", err)
	}

	// Content changes must not change the id.
	writeSourceFile(t, root, "flows/onboarding.bpmn", "v2")
	second, err := src.ListProjectFiles("p")
	if err != nil {
		t.Fatalf("second ListProjectFiles() error = %v", err)
	}

	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("listing sizes = %d, %d, want 1, 1", len(first), len(second))
	}
	if first[0].ID != second[0].ID {
		t.Errorf("id changed across listings: %q != %q", first[0].ID, second[0].ID)
	}
	if string(second[0].Content) != "v2" {
		t.Errorf("content = %q, want v2", second[0].Content)
	}
}

func TestNewFileSourceFromConfig(t *testing.T) {
	t.Run("empty type means no source", func(t *testing.T) {
		src, err := NewFileSourceFromConfig(config.SourceConfig{})
		if err != nil {
			t.Fatalf("NewFileSourceFromConfig() error = %v", err)
		}
		if src != nil {
			t.Errorf("source = %v, want nil", src)
		}
	})

	t.Run("dir source", func(t *testing.T) {
		src, err := NewFileSourceFromConfig(config.SourceConfig{Type: "dir", Root: t.TempDir()})
		if err != nil {
			t.Fatalf("NewFileSourceFromConfig() error = %v", err)
		}
		if src == nil {
			t.Error("source = nil, want DirSource")
		}
	})

	t.Run("dir source without root", func(t *testing.T) {
		if _, err := NewFileSourceFromConfig(config.SourceConfig{Type: "dir"}); err == nil {
			t.Error("expected error for missing root")
		}
	})

	t.Run("unknown source type", func(t *testing.T) {
		if _, err := NewFileSourceFromConfig(config.SourceConfig{Type: "ftp"}); err == nil {
			t.Error("expected error for unknown type")
		}
	})
}

func idsOf(files []vc.SourceFile) []string {
	ids := make([]string, len(files))
	for i, f := range files {
		ids[i] = f.ID
	}
	return ids
}
