package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"vc-go/internal/model"
	"vc-go/internal/vc"
)

const branchColumns = "id, project_id, owner_user_id, created_at"

func scanBranch(row rowScanner) (*model.Branch, error) {
	var b model.Branch
	err := row.Scan(&b.ID, &b.ProjectID, &b.OwnerUserID, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, err
	}
	return &b, nil
}

func (s *SQLiteStore) FindBranch(id string) (*model.Branch, error) {
	row := s.db.QueryRow(
		`SELECT `+branchColumns+` FROM branches WHERE id = ?`, id)
	b, err := scanBranch(row)
	if err != nil {
		return nil, fmt.Errorf("finding branch: %w", err)
	}
	return b, nil
}

func (s *SQLiteStore) FindMainBranch(projectID string) (*model.Branch, error) {
	row := s.db.QueryRow(
		`SELECT `+branchColumns+` FROM branches
		 WHERE project_id = ? AND owner_user_id IS NULL`, projectID)
	b, err := scanBranch(row)
	if err != nil {
		return nil, fmt.Errorf("finding main branch: %w", err)
	}
	return b, nil
}

func (s *SQLiteStore) FindDraftBranch(projectID, userID string) (*model.Branch, error) {
	row := s.db.QueryRow(
		`SELECT `+branchColumns+` FROM branches
		 WHERE project_id = ? AND owner_user_id = ?`, projectID, userID)
	b, err := scanBranch(row)
	if err != nil {
		return nil, fmt.Errorf("finding draft branch: %w", err)
	}
	return b, nil
}

// CreateMainBranch inserts the main branch and its empty initial
// commit in one transaction. The partial unique index on
// (project_id) WHERE owner_user_id IS NULL decides creation races.
func (s *SQLiteStore) CreateMainBranch(branch *model.Branch, initial *model.Commit) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO branches (id, project_id, owner_user_id, created_at)
		 VALUES (?, ?, NULL, ?)`,
		branch.ID, branch.ProjectID, branch.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("project %s: %w", branch.ProjectID, vc.ErrMainBranchExists)
		}
		return fmt.Errorf("inserting main branch: %w", err)
	}

	_, err = tx.Exec(
		`INSERT INTO commits (id, branch_id, author_user_id, message, source, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		initial.ID, initial.BranchID, initial.AuthorUserID,
		initial.Message, initial.Source, initial.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting initial commit: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// ForkBranch inserts the draft branch and copies the source branch's
// live folders and files onto it in one transaction. Copies get fresh
// ids; the folder hierarchy is remapped through them. A copied row
// whose parent or folder is tombstoned is promoted to the top level
// rather than left dangling.
func (s *SQLiteStore) ForkBranch(sourceBranchID string, draft *model.Branch) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO branches (id, project_id, owner_user_id, created_at)
		 VALUES (?, ?, ?, ?)`,
		draft.ID, draft.ProjectID, draft.OwnerUserID, draft.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("project %s user %s: %w",
				draft.ProjectID, derefOr(draft.OwnerUserID, ""), vc.ErrDraftBranchExists)
		}
		return fmt.Errorf("inserting draft branch: %w", err)
	}

	folders, err := listFoldersTx(tx, sourceBranchID)
	if err != nil {
		return fmt.Errorf("loading source folders: %w", err)
	}
	folderIDMap := make(map[string]string, len(folders))
	for _, f := range folders {
		folderIDMap[f.ID] = uuid.New().String()
	}
	for _, f := range folders {
		var parentID *string
		if f.ParentID != nil {
			if mapped, ok := folderIDMap[*f.ParentID]; ok {
				parentID = &mapped
			}
		}
		_, err = tx.Exec(
			`INSERT INTO working_folders (id, branch_id, project_id, parent_id, name, is_deleted, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, 0, ?, ?)`,
			folderIDMap[f.ID], draft.ID, draft.ProjectID, parentID, f.Name,
			draft.CreatedAt, draft.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("copying folder %q: %w", f.Name, err)
		}
	}

	files, err := listFilesTx(tx, sourceBranchID)
	if err != nil {
		return fmt.Errorf("loading source files: %w", err)
	}
	for _, f := range files {
		var folderID *string
		if f.FolderID != nil {
			if mapped, ok := folderIDMap[*f.FolderID]; ok {
				folderID = &mapped
			}
		}
		_, err = tx.Exec(
			`INSERT INTO working_files (id, branch_id, project_id, folder_id, name, file_type, content, content_hash, is_deleted, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
			uuid.New().String(), draft.ID, draft.ProjectID, folderID,
			f.Name, f.Type, f.Content, f.ContentHash,
			draft.CreatedAt, draft.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("copying file %q: %w", f.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// DeleteProject removes the project's branches; foreign keys cascade
// the delete through working trees, commits, snapshots, sync state and
// pending markers.
func (s *SQLiteStore) DeleteProject(projectID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`DELETE FROM branches WHERE project_id = ?`, projectID)
	if err != nil {
		return fmt.Errorf("deleting branches: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("project %s: %w", projectID, vc.ErrProjectNotFound)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func derefOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}
