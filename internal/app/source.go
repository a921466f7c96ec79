package app

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"vc-go/internal/config"
	"vc-go/internal/vc"
)

// DirSource serves the files under a directory tree as the live file
// listing for any project. File ids are slash-separated paths relative
// to the root, which stay stable across listings as long as files do
// not move. Dotfiles and dot-directories are skipped.
type DirSource struct {
	root string
}

// NewDirSource creates a file source reading from the given directory.
func NewDirSource(root string) *DirSource {
	return &DirSource{root: root}
}

// ListProjectFiles walks the root and returns one entry per regular
// file. The project id is ignored: a directory tree holds exactly one
// project's files.
func (s *DirSource) ListProjectFiles(_ string) ([]vc.SourceFile, error) {
	var files []vc.SourceFile
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != s.root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}

		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		content, err := os.ReadFile(p)
		if err != nil {
			return err
		}

		ext := path.Ext(d.Name())
		folder := path.Dir(rel)
		if folder == "." {
			folder = ""
		}

		files = append(files, vc.SourceFile{
			ID:         rel,
			FolderPath: folder,
			Name:       strings.TrimSuffix(d.Name(), ext),
			Type:       strings.TrimPrefix(ext, "."),
			Content:    content,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing files under %s: %w", s.root, err)
	}
	return files, nil
}

var _ vc.FileSource = (*DirSource)(nil)

// NewFileSourceFromConfig creates a FileSource based on the source config type.
// An empty type means no source is configured and sync pull is unavailable.
func NewFileSourceFromConfig(cfg config.SourceConfig) (vc.FileSource, error) {
	switch cfg.Type {
	case "":
		return nil, nil
	case "dir":
		if cfg.Root == "" {
			return nil, fmt.Errorf("dir source requires root to be set")
		}
		return NewDirSource(cfg.Root), nil
	default:
		return nil, fmt.Errorf("unknown source type: %s", cfg.Type)
	}
}
