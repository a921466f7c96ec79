package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"vc-go/internal/model"
	"vc-go/internal/vc"
)

const fileColumns = "id, branch_id, project_id, folder_id, name, file_type, content, content_hash, is_deleted, created_at, updated_at"

const folderColumns = "id, branch_id, project_id, parent_id, name, is_deleted, created_at, updated_at"

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	Query(query string, args ...any) (*sql.Rows, error)
}

func scanFile(row rowScanner) (*model.WorkingFile, error) {
	var f model.WorkingFile
	err := row.Scan(&f.ID, &f.BranchID, &f.ProjectID, &f.FolderID,
		&f.Name, &f.Type, &f.Content, &f.ContentHash,
		&f.IsDeleted, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, err
	}
	return &f, nil
}

func scanFolder(row rowScanner) (*model.WorkingFolder, error) {
	var f model.WorkingFolder
	err := row.Scan(&f.ID, &f.BranchID, &f.ProjectID, &f.ParentID,
		&f.Name, &f.IsDeleted, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, err
	}
	return &f, nil
}

func listFilesTx(q queryer, branchID string) ([]*model.WorkingFile, error) {
	rows, err := q.Query(
		`SELECT `+fileColumns+` FROM working_files
		 WHERE branch_id = ? AND is_deleted = 0
		 ORDER BY name, id`, branchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []*model.WorkingFile
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

func listFoldersTx(q queryer, branchID string) ([]*model.WorkingFolder, error) {
	rows, err := q.Query(
		`SELECT `+folderColumns+` FROM working_folders
		 WHERE branch_id = ? AND is_deleted = 0
		 ORDER BY name, id`, branchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var folders []*model.WorkingFolder
	for rows.Next() {
		f, err := scanFolder(rows)
		if err != nil {
			return nil, err
		}
		folders = append(folders, f)
	}
	return folders, rows.Err()
}

func (s *SQLiteStore) FindFile(id string) (*model.WorkingFile, error) {
	row := s.db.QueryRow(
		`SELECT `+fileColumns+` FROM working_files
		 WHERE id = ? AND is_deleted = 0`, id)
	f, err := scanFile(row)
	if err != nil {
		return nil, fmt.Errorf("finding file: %w", err)
	}
	return f, nil
}

func (s *SQLiteStore) ListFiles(branchID string) ([]*model.WorkingFile, error) {
	files, err := listFilesTx(s.db, branchID)
	if err != nil {
		return nil, fmt.Errorf("listing files: %w", err)
	}
	return files, nil
}

func (s *SQLiteStore) ListFilesInFolder(branchID string, folderID *string) ([]*model.WorkingFile, error) {
	query := `SELECT ` + fileColumns + ` FROM working_files
		 WHERE branch_id = ? AND is_deleted = 0 AND `
	args := []any{branchID}
	if folderID == nil {
		query += `folder_id IS NULL`
	} else {
		query += `folder_id = ?`
		args = append(args, *folderID)
	}
	query += ` ORDER BY name, id`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing folder files: %w", err)
	}
	defer rows.Close()

	var files []*model.WorkingFile
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

func (s *SQLiteStore) ListFileDigests(branchID string) ([]vc.FileDigest, error) {
	rows, err := s.db.Query(
		`SELECT id, content_hash FROM working_files
		 WHERE branch_id = ? AND is_deleted = 0
		 ORDER BY id`, branchID)
	if err != nil {
		return nil, fmt.Errorf("listing file digests: %w", err)
	}
	defer rows.Close()

	var digests []vc.FileDigest
	for rows.Next() {
		var d vc.FileDigest
		if err := rows.Scan(&d.FileID, &d.Hash); err != nil {
			return nil, fmt.Errorf("scanning digest: %w", err)
		}
		digests = append(digests, d)
	}
	return digests, rows.Err()
}

// UpdateFile rewrites a live file in place and returns the stored row.
// The row must live on f.BranchID; ids belonging to another branch
// report ErrFileNotFound. A save that changes neither content nor
// identity leaves the row untouched, keeping content_hash and
// updated_at stable. Branch and project are immutable; the unique
// index on the natural key rejects renames that collide with another
// live file.
func (s *SQLiteStore) UpdateFile(f *model.WorkingFile) (*model.WorkingFile, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	existing, err := scanFile(tx.QueryRow(
		`SELECT `+fileColumns+` FROM working_files
		 WHERE id = ? AND branch_id = ? AND is_deleted = 0`, f.ID, f.BranchID))
	if err != nil {
		return nil, fmt.Errorf("finding file: %w", err)
	}
	if existing == nil {
		return nil, fmt.Errorf("file %s: %w", f.ID, vc.ErrFileNotFound)
	}
	if existing.ContentHash == f.ContentHash && existing.Name == f.Name &&
		existing.Type == f.Type && sameFolder(existing.FolderID, f.FolderID) {
		return existing, nil
	}

	_, err = tx.Exec(
		`UPDATE working_files
		 SET folder_id = ?, name = ?, file_type = ?, content = ?, content_hash = ?, updated_at = ?
		 WHERE id = ?`,
		f.FolderID, f.Name, f.Type, f.Content, f.ContentHash, f.UpdatedAt, f.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("file %q: %w", f.Name, vc.ErrFileExists)
		}
		return nil, fmt.Errorf("updating file: %w", err)
	}

	stored, err := scanFile(tx.QueryRow(
		`SELECT `+fileColumns+` FROM working_files WHERE id = ?`, f.ID))
	if err != nil {
		return nil, fmt.Errorf("reading updated file: %w", err)
	}

	if err := markPendingTx(tx, stored.BranchID, model.PendingFile, stored.ID, f.UpdatedAt); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	return stored, nil
}

// UpsertFileByIdentity resolves a live file by natural key and updates
// its content, or inserts f when no live row matches. Saves carrying
// the content already stored are no-ops and leave updated_at alone.
// When legacy duplicates exist the most-recently-updated row wins. A
// lost insert race against the unique index is resolved by one retry.
func (s *SQLiteStore) UpsertFileByIdentity(f *model.WorkingFile) (*model.WorkingFile, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	stored, changed, err := upsertFileTx(tx, f)
	if err != nil {
		return nil, err
	}
	if !changed {
		return stored, nil
	}

	if err := markPendingTx(tx, stored.BranchID, model.PendingFile, stored.ID, f.UpdatedAt); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	return stored, nil
}

func upsertFileTx(tx *sql.Tx, f *model.WorkingFile) (*model.WorkingFile, bool, error) {
	existing, err := resolveFileByKeyTx(tx, f.BranchID, f.FolderID, f.Name, f.Type)
	if err != nil {
		return nil, false, fmt.Errorf("resolving file by identity: %w", err)
	}
	if existing != nil {
		return updateFileContentTx(tx, existing, f)
	}

	_, err = tx.Exec(
		`INSERT INTO working_files (id, branch_id, project_id, folder_id, name, file_type, content, content_hash, is_deleted, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		f.ID, f.BranchID, f.ProjectID, f.FolderID, f.Name, f.Type,
		f.Content, f.ContentHash, f.CreatedAt, f.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			// A concurrent writer inserted the same identity first;
			// fold this write into that row.
			winner, rerr := resolveFileByKeyTx(tx, f.BranchID, f.FolderID, f.Name, f.Type)
			if rerr != nil {
				return nil, false, fmt.Errorf("re-resolving file by identity: %w", rerr)
			}
			if winner == nil {
				return nil, false, fmt.Errorf("inserting file: %w", err)
			}
			return updateFileContentTx(tx, winner, f)
		}
		return nil, false, fmt.Errorf("inserting file: %w", err)
	}

	stored, err := scanFile(tx.QueryRow(
		`SELECT `+fileColumns+` FROM working_files WHERE id = ?`, f.ID))
	if err != nil {
		return nil, false, fmt.Errorf("reading inserted file: %w", err)
	}
	return stored, true, nil
}

// updateFileContentTx folds f's content into the stored row, or returns
// the stored row as-is when the content already matches.
func updateFileContentTx(tx *sql.Tx, stored, f *model.WorkingFile) (*model.WorkingFile, bool, error) {
	if stored.ContentHash == f.ContentHash {
		return stored, false, nil
	}
	_, err := tx.Exec(
		`UPDATE working_files SET content = ?, content_hash = ?, updated_at = ? WHERE id = ?`,
		f.Content, f.ContentHash, f.UpdatedAt, stored.ID,
	)
	if err != nil {
		return nil, false, fmt.Errorf("updating file: %w", err)
	}
	updated, err := scanFile(tx.QueryRow(
		`SELECT `+fileColumns+` FROM working_files WHERE id = ?`, stored.ID))
	if err != nil {
		return nil, false, fmt.Errorf("reading updated file: %w", err)
	}
	return updated, true, nil
}

func resolveFileByKeyTx(tx *sql.Tx, branchID string, folderID *string, name, fileType string) (*model.WorkingFile, error) {
	row := tx.QueryRow(
		`SELECT `+fileColumns+` FROM working_files
		 WHERE branch_id = ? AND COALESCE(folder_id, '') = COALESCE(?, '')
		   AND name = ? AND file_type = ? AND is_deleted = 0
		 ORDER BY updated_at DESC, id DESC
		 LIMIT 1`,
		branchID, folderID, name, fileType)
	return scanFile(row)
}

func (s *SQLiteStore) TombstoneFile(id string, now time.Time) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	var branchID string
	err = tx.QueryRow(
		`SELECT branch_id FROM working_files WHERE id = ? AND is_deleted = 0`, id).Scan(&branchID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("file %s: %w", id, vc.ErrFileNotFound)
		}
		return fmt.Errorf("finding file: %w", err)
	}

	_, err = tx.Exec(
		`UPDATE working_files SET is_deleted = 1, updated_at = ? WHERE id = ?`, now, id)
	if err != nil {
		return fmt.Errorf("tombstoning file: %w", err)
	}

	if err := markPendingTx(tx, branchID, model.PendingFile, id, now); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func (s *SQLiteStore) FindFolder(id string) (*model.WorkingFolder, error) {
	row := s.db.QueryRow(
		`SELECT `+folderColumns+` FROM working_folders
		 WHERE id = ? AND is_deleted = 0`, id)
	f, err := scanFolder(row)
	if err != nil {
		return nil, fmt.Errorf("finding folder: %w", err)
	}
	return f, nil
}

func (s *SQLiteStore) ListFolders(branchID string) ([]*model.WorkingFolder, error) {
	folders, err := listFoldersTx(s.db, branchID)
	if err != nil {
		return nil, fmt.Errorf("listing folders: %w", err)
	}
	return folders, nil
}

// EnsureFolder resolves a live folder by natural key (branch, parent,
// name) or inserts folder when no live row matches.
func (s *SQLiteStore) EnsureFolder(folder *model.WorkingFolder) (*model.WorkingFolder, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	existing, err := resolveFolderByKeyTx(tx, folder.BranchID, folder.ParentID, folder.Name)
	if err != nil {
		return nil, fmt.Errorf("resolving folder by identity: %w", err)
	}
	if existing == nil {
		_, err = tx.Exec(
			`INSERT INTO working_folders (id, branch_id, project_id, parent_id, name, is_deleted, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, 0, ?, ?)`,
			folder.ID, folder.BranchID, folder.ProjectID, folder.ParentID,
			folder.Name, folder.CreatedAt, folder.UpdatedAt,
		)
		switch {
		case err == nil:
			if merr := markPendingTx(tx, folder.BranchID, model.PendingFolder, folder.ID, folder.UpdatedAt); merr != nil {
				return nil, merr
			}
			existing = folder
		case isUniqueViolation(err):
			// Lost the creation race; adopt the winner.
			existing, err = resolveFolderByKeyTx(tx, folder.BranchID, folder.ParentID, folder.Name)
			if err != nil {
				return nil, fmt.Errorf("re-resolving folder by identity: %w", err)
			}
			if existing == nil {
				return nil, fmt.Errorf("inserting folder: %w", err)
			}
		default:
			return nil, fmt.Errorf("inserting folder: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	return existing, nil
}

func resolveFolderByKeyTx(tx *sql.Tx, branchID string, parentID *string, name string) (*model.WorkingFolder, error) {
	row := tx.QueryRow(
		`SELECT `+folderColumns+` FROM working_folders
		 WHERE branch_id = ? AND COALESCE(parent_id, '') = COALESCE(?, '')
		   AND name = ? AND is_deleted = 0
		 LIMIT 1`,
		branchID, parentID, name)
	return scanFolder(row)
}

// TombstoneFolder soft-deletes a folder, its descendant folders and
// every live file they contain, all in one transaction.
func (s *SQLiteStore) TombstoneFolder(id string, now time.Time) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	var branchID string
	err = tx.QueryRow(
		`SELECT branch_id FROM working_folders WHERE id = ? AND is_deleted = 0`, id).Scan(&branchID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("folder %s: %w", id, vc.ErrFolderNotFound)
		}
		return fmt.Errorf("finding folder: %w", err)
	}

	rows, err := tx.Query(
		`WITH RECURSIVE subtree(id) AS (
		   SELECT id FROM working_folders WHERE id = ? AND is_deleted = 0
		   UNION ALL
		   SELECT wf.id FROM working_folders wf
		   JOIN subtree st ON wf.parent_id = st.id
		   WHERE wf.is_deleted = 0
		 )
		 SELECT id FROM subtree`, id)
	if err != nil {
		return fmt.Errorf("collecting folder subtree: %w", err)
	}
	var folderIDs []string
	for rows.Next() {
		var fid string
		if err := rows.Scan(&fid); err != nil {
			rows.Close()
			return fmt.Errorf("scanning folder id: %w", err)
		}
		folderIDs = append(folderIDs, fid)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("collecting folder subtree: %w", err)
	}
	rows.Close()

	marks := placeholders(len(folderIDs))
	args := toAnySlice(folderIDs)

	fileRows, err := tx.Query(
		`SELECT id FROM working_files
		 WHERE folder_id IN (`+marks+`) AND is_deleted = 0`, args...)
	if err != nil {
		return fmt.Errorf("collecting folder files: %w", err)
	}
	var fileIDs []string
	for fileRows.Next() {
		var fid string
		if err := fileRows.Scan(&fid); err != nil {
			fileRows.Close()
			return fmt.Errorf("scanning file id: %w", err)
		}
		fileIDs = append(fileIDs, fid)
	}
	if err := fileRows.Err(); err != nil {
		fileRows.Close()
		return fmt.Errorf("collecting folder files: %w", err)
	}
	fileRows.Close()

	if len(fileIDs) > 0 {
		_, err = tx.Exec(
			`UPDATE working_files SET is_deleted = 1, updated_at = ?
			 WHERE id IN (`+placeholders(len(fileIDs))+`)`,
			append([]any{now}, toAnySlice(fileIDs)...)...)
		if err != nil {
			return fmt.Errorf("tombstoning folder files: %w", err)
		}
	}
	_, err = tx.Exec(
		`UPDATE working_folders SET is_deleted = 1, updated_at = ?
		 WHERE id IN (`+marks+`)`,
		append([]any{now}, args...)...)
	if err != nil {
		return fmt.Errorf("tombstoning folders: %w", err)
	}

	for _, fid := range fileIDs {
		if err := markPendingTx(tx, branchID, model.PendingFile, fid, now); err != nil {
			return err
		}
	}
	for _, fid := range folderIDs {
		if err := markPendingTx(tx, branchID, model.PendingFolder, fid, now); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// ReconcileFromSource makes a branch's working tree match an external
// live file listing in one transaction. Listing entries are resolved to
// working files by identity: an exact (folder, name, type) match first,
// then (name, type) alone so a file moved between folders keeps its
// row. External ids never drive matching; inserts adopt the external id
// when it is free, and an external rename lands as an insert plus a
// tombstone. Working files absent from the listing are tombstoned.
func (s *SQLiteStore) ReconcileFromSource(branchID string, now time.Time, files []vc.SourceFile) (*vc.SyncReport, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	var projectID string
	err = tx.QueryRow(`SELECT project_id FROM branches WHERE id = ?`, branchID).Scan(&projectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("branch %s: %w", branchID, vc.ErrBranchNotFound)
		}
		return nil, fmt.Errorf("finding branch: %w", err)
	}

	folders, err := listFoldersTx(tx, branchID)
	if err != nil {
		return nil, fmt.Errorf("loading folders: %w", err)
	}
	idx := make(map[string]string, len(folders))
	for id, path := range folderPaths(folders) {
		idx[path] = id
	}

	existing, err := listFilesTx(tx, branchID)
	if err != nil {
		return nil, fmt.Errorf("loading files: %w", err)
	}
	byKey := make(map[string]*model.WorkingFile, len(existing))
	byName := make(map[string]*model.WorkingFile, len(existing))
	for _, f := range existing {
		k := fileKey(f.FolderID, f.Name, f.Type)
		if cur, ok := byKey[k]; !ok || newerRow(f, cur) {
			byKey[k] = f
		}
		nk := f.Name + "\x00" + f.Type
		if cur, ok := byName[nk]; !ok || newerRow(f, cur) {
			byName[nk] = f
		}
	}

	report := &vc.SyncReport{}
	consumed := make(map[string]bool, len(files))

	for _, src := range files {
		folderID, err := ensureFolderPathTx(tx, branchID, projectID, src.FolderPath, now, idx)
		if err != nil {
			return nil, err
		}
		hash := vc.HashContent(src.Content)

		if f, ok := byKey[fileKey(folderID, src.Name, src.Type)]; ok && !consumed[f.ID] {
			if f.ContentHash != hash {
				_, err = tx.Exec(
					`UPDATE working_files SET content = ?, content_hash = ?, updated_at = ? WHERE id = ?`,
					src.Content, hash, now, f.ID,
				)
				if err != nil {
					return nil, fmt.Errorf("updating file %q: %w", src.Name, err)
				}
				if err := markPendingTx(tx, branchID, model.PendingFile, f.ID, now); err != nil {
					return nil, err
				}
				report.Updated++
			}
			consumed[f.ID] = true
			continue
		}

		// Same name and type in another folder means the file moved. The
		// exact key missed above, so the target identity is vacant and the
		// row can follow the file without tripping the identity index.
		if f, ok := byName[src.Name+"\x00"+src.Type]; ok && !consumed[f.ID] {
			if f.ContentHash != hash || !sameFolder(f.FolderID, folderID) {
				_, err = tx.Exec(
					`UPDATE working_files SET folder_id = ?, content = ?, content_hash = ?, updated_at = ? WHERE id = ?`,
					folderID, src.Content, hash, now, f.ID,
				)
				if err != nil {
					return nil, fmt.Errorf("updating file %q: %w", src.Name, err)
				}
				if err := markPendingTx(tx, branchID, model.PendingFile, f.ID, now); err != nil {
					return nil, err
				}
				report.Updated++
			}
			consumed[f.ID] = true
			continue
		}

		id := src.ID
		var taken bool
		if id != "" {
			err = tx.QueryRow(
				`SELECT EXISTS(SELECT 1 FROM working_files WHERE id = ?)`, id).Scan(&taken)
			if err != nil {
				return nil, fmt.Errorf("checking file id: %w", err)
			}
		}
		if id == "" || taken {
			id = uuid.New().String()
		}
		_, err = tx.Exec(
			`INSERT INTO working_files (id, branch_id, project_id, folder_id, name, file_type, content, content_hash, is_deleted, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
			id, branchID, projectID, folderID, src.Name, src.Type, src.Content, hash, now, now,
		)
		if err != nil {
			return nil, fmt.Errorf("inserting file %q: %w", src.Name, err)
		}
		if err := markPendingTx(tx, branchID, model.PendingFile, id, now); err != nil {
			return nil, err
		}
		report.Created++
	}

	for _, f := range existing {
		if consumed[f.ID] {
			continue
		}
		_, err = tx.Exec(
			`UPDATE working_files SET is_deleted = 1, updated_at = ? WHERE id = ?`, now, f.ID)
		if err != nil {
			return nil, fmt.Errorf("tombstoning file %q: %w", f.Name, err)
		}
		if err := markPendingTx(tx, branchID, model.PendingFile, f.ID, now); err != nil {
			return nil, err
		}
		report.Tombstoned++
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	return report, nil
}

func fileKey(folderID *string, name, fileType string) string {
	return derefOr(folderID, "") + "\x00" + name + "\x00" + fileType
}

// newerRow reports whether a was updated after b, with the row id as a
// deterministic tiebreak.
func newerRow(a, b *model.WorkingFile) bool {
	if a.UpdatedAt.Equal(b.UpdatedAt) {
		return a.ID > b.ID
	}
	return a.UpdatedAt.After(b.UpdatedAt)
}

func sameFolder(a, b *string) bool {
	switch {
	case a == nil && b == nil:
		return true
	case a == nil || b == nil:
		return false
	default:
		return *a == *b
	}
}
