package vc

import (
	"fmt"

	"vc-go/internal/model"
)

// SaveFileParams describes one working-tree file write.
type SaveFileParams struct {
	BranchID  string
	ProjectID string

	// FileID, when set, updates that row in place. When empty the file
	// is resolved by natural key (branch, folder, name, type) and
	// created if no live row matches.
	FileID string

	FolderID *string // nil = top level
	Name     string
	Type     string
	Content  []byte
}

// FileQuery filters working-tree reads. The zero value selects the
// whole tree; ScopeToFolder with a nil FolderID selects top-level
// files only.
type FileQuery struct {
	ScopeToFolder bool
	FolderID      *string
}

// SyncReport summarizes one working-tree reconciliation.
type SyncReport struct {
	Created    int
	Updated    int
	Tombstoned int
}

// SaveFile writes a file into a branch's working tree. With an
// explicit FileID the row is updated in place; otherwise the file is
// matched by natural key, updating the most-recently-updated live
// match or inserting a fresh row. Content is digested here so every
// write carries its hash.
func (s *Service) SaveFile(p SaveFileParams) (*model.WorkingFile, error) {
	if p.BranchID == "" || p.ProjectID == "" {
		return nil, fmt.Errorf("branch id and project id are required")
	}
	if p.Name == "" || p.Type == "" {
		return nil, fmt.Errorf("file name and type are required")
	}

	if _, err := s.branchInProject(p.BranchID, p.ProjectID); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	file := &model.WorkingFile{
		ID:          p.FileID,
		BranchID:    p.BranchID,
		ProjectID:   p.ProjectID,
		FolderID:    p.FolderID,
		Name:        p.Name,
		Type:        p.Type,
		Content:     p.Content,
		ContentHash: HashContent(p.Content),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	var (
		saved *model.WorkingFile
		err   error
	)
	if p.FileID != "" {
		saved, err = s.store.UpdateFile(file)
	} else {
		file.ID = s.idgen.New()
		saved, err = s.store.UpsertFileByIdentity(file)
	}
	if err != nil {
		return nil, fmt.Errorf("saving file %q: %w", p.Name, err)
	}

	s.logger.Debug("file saved",
		"project", p.ProjectID, "branch", p.BranchID,
		"file", saved.ID, "name", saved.Name, "hash", saved.ContentHash)
	return saved, nil
}

// File returns a live working-tree file by id.
func (s *Service) File(fileID string) (*model.WorkingFile, error) {
	f, err := s.store.FindFile(fileID)
	if err != nil {
		return nil, fmt.Errorf("finding file: %w", err)
	}
	if f == nil {
		return nil, fmt.Errorf("file %s: %w", fileID, ErrFileNotFound)
	}
	return f, nil
}

// Files lists a branch's live files ordered by name, optionally scoped
// to one folder (or the top level) via q.
func (s *Service) Files(branchID string, q FileQuery) ([]*model.WorkingFile, error) {
	if _, err := s.branch(branchID); err != nil {
		return nil, err
	}
	if q.ScopeToFolder {
		files, err := s.store.ListFilesInFolder(branchID, q.FolderID)
		if err != nil {
			return nil, fmt.Errorf("listing folder files: %w", err)
		}
		return files, nil
	}
	files, err := s.store.ListFiles(branchID)
	if err != nil {
		return nil, fmt.Errorf("listing files: %w", err)
	}
	return files, nil
}

// DeleteFile tombstones a live file. The row stays in the store so
// commit history can record the deletion; it never matches reads or
// natural-key lookups again.
func (s *Service) DeleteFile(fileID string) error {
	if err := s.store.TombstoneFile(fileID, s.clock.Now()); err != nil {
		return fmt.Errorf("deleting file %s: %w", fileID, err)
	}
	s.logger.Debug("file tombstoned", "file", fileID)
	return nil
}

// EnsureFolder returns the live folder with the given parent and name,
// creating it when absent.
func (s *Service) EnsureFolder(branchID, projectID string, parentID *string, name string) (*model.WorkingFolder, error) {
	if name == "" {
		return nil, fmt.Errorf("folder name is required")
	}
	if _, err := s.branchInProject(branchID, projectID); err != nil {
		return nil, err
	}
	if parentID != nil {
		parent, err := s.store.FindFolder(*parentID)
		if err != nil {
			return nil, fmt.Errorf("finding parent folder: %w", err)
		}
		if parent == nil || parent.BranchID != branchID {
			return nil, fmt.Errorf("parent folder %s: %w", *parentID, ErrFolderNotFound)
		}
	}

	now := s.clock.Now()
	folder, err := s.store.EnsureFolder(&model.WorkingFolder{
		ID:        s.idgen.New(),
		BranchID:  branchID,
		ProjectID: projectID,
		ParentID:  parentID,
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return nil, fmt.Errorf("ensuring folder %q: %w", name, err)
	}
	return folder, nil
}

// Folders lists a branch's live folders ordered by name.
func (s *Service) Folders(branchID string) ([]*model.WorkingFolder, error) {
	if _, err := s.branch(branchID); err != nil {
		return nil, err
	}
	folders, err := s.store.ListFolders(branchID)
	if err != nil {
		return nil, fmt.Errorf("listing folders: %w", err)
	}
	return folders, nil
}

// DeleteFolder tombstones a folder, its descendant folders and every
// live file they contain.
func (s *Service) DeleteFolder(folderID string) error {
	if err := s.store.TombstoneFolder(folderID, s.clock.Now()); err != nil {
		return fmt.Errorf("deleting folder %s: %w", folderID, err)
	}
	s.logger.Debug("folder tombstoned", "folder", folderID)
	return nil
}

// SyncFromSource reconciles a branch's working tree against the
// project's current live file listing: drifted files are updated,
// missing ones inserted, files absent from the listing tombstoned.
// The whole reconciliation is one store transaction; a failing
// listing entry aborts all of it.
func (s *Service) SyncFromSource(projectID, userID, branchID string) (*SyncReport, error) {
	if s.source == nil {
		return nil, ErrNoFileSource
	}
	if _, err := s.branchInProject(branchID, projectID); err != nil {
		return nil, err
	}

	listing, err := s.source.ListProjectFiles(projectID)
	if err != nil {
		return nil, fmt.Errorf("listing live files: %w", err)
	}

	report, err := s.store.ReconcileFromSource(branchID, s.clock.Now(), listing)
	if err != nil {
		return nil, fmt.Errorf("reconciling working tree: %w", err)
	}

	s.logger.Info("working tree reconciled",
		"project", projectID, "branch", branchID, "user", userID,
		"created", report.Created, "updated", report.Updated, "tombstoned", report.Tombstoned)
	return report, nil
}

// branch resolves a branch id or reports ErrBranchNotFound.
func (s *Service) branch(branchID string) (*model.Branch, error) {
	b, err := s.store.FindBranch(branchID)
	if err != nil {
		return nil, fmt.Errorf("finding branch: %w", err)
	}
	if b == nil {
		return nil, fmt.Errorf("branch %s: %w", branchID, ErrBranchNotFound)
	}
	return b, nil
}

// branchInProject resolves a branch id and verifies it belongs to the
// project. Branches under other projects are reported as not found.
func (s *Service) branchInProject(branchID, projectID string) (*model.Branch, error) {
	b, err := s.branch(branchID)
	if err != nil {
		return nil, err
	}
	if b.ProjectID != projectID {
		return nil, fmt.Errorf("branch %s in project %s: %w", branchID, projectID, ErrBranchNotFound)
	}
	return b, nil
}
