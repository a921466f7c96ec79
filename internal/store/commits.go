package store

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"vc-go/internal/model"
	"vc-go/internal/vc"
)

const commitColumns = "id, branch_id, author_user_id, message, source, created_at"

const snapshotColumns = "id, commit_id, file_id, name, file_type, content, content_hash, change_type"

func scanCommit(row rowScanner) (*model.Commit, error) {
	var c model.Commit
	err := row.Scan(&c.ID, &c.BranchID, &c.AuthorUserID, &c.Message, &c.Source, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, err
	}
	return &c, nil
}

func scanSnapshot(row rowScanner) (*model.FileSnapshot, error) {
	var s model.FileSnapshot
	err := row.Scan(&s.ID, &s.CommitID, &s.FileID, &s.Name, &s.Type,
		&s.Content, &s.ContentHash, &s.ChangeType)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, err
	}
	return &s, nil
}

// CreateCommit freezes the branch's live tree under commit in one
// transaction: commit row, one snapshot per live file classified
// against the prior commit's digests, one deletion record per file
// that left the tree, and the branch's pending markers cleared. With
// markPushed the branch's push baseline advances to the new commit in
// the same transaction, so a baseline failure leaves no commit behind.
func (s *SQLiteStore) CreateCommit(commit *model.Commit, markPushed bool) ([]*model.FileSnapshot, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	var projectID string
	err = tx.QueryRow(`SELECT project_id FROM branches WHERE id = ?`, commit.BranchID).Scan(&projectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("branch %s: %w", commit.BranchID, vc.ErrBranchNotFound)
		}
		return nil, fmt.Errorf("finding branch: %w", err)
	}

	snapshots, err := createCommitTx(tx, commit)
	if err != nil {
		return nil, err
	}

	if markPushed {
		if err := advanceLastPushedTx(tx, projectID, commit.BranchID, commit.ID, commit.CreatedAt); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	return snapshots, nil
}

// createCommitTx performs the snapshot capture inside an open
// transaction. The prior commit is resolved before the new commit row
// is inserted, so the diff base is always the branch's previous head.
func createCommitTx(tx *sql.Tx, commit *model.Commit) ([]*model.FileSnapshot, error) {
	prior, err := scanCommit(tx.QueryRow(
		`SELECT `+commitColumns+` FROM commits
		 WHERE branch_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT 1`, commit.BranchID))
	if err != nil {
		return nil, fmt.Errorf("finding prior commit: %w", err)
	}

	// The prior live set excludes deletion records, so a file deleted
	// before the prior commit is not recorded as deleted again.
	priorLive := make(map[string]*model.FileSnapshot)
	if prior != nil {
		rows, err := tx.Query(
			`SELECT `+snapshotColumns+` FROM file_snapshots
			 WHERE commit_id = ? AND change_type != ?`,
			prior.ID, model.ChangeDeleted)
		if err != nil {
			return nil, fmt.Errorf("loading prior snapshots: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			snap, err := scanSnapshot(rows)
			if err != nil {
				return nil, fmt.Errorf("scanning prior snapshot: %w", err)
			}
			priorLive[snap.FileID] = snap
		}
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("loading prior snapshots: %w", err)
		}
	}

	_, err = tx.Exec(
		`INSERT INTO commits (id, branch_id, author_user_id, message, source, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		commit.ID, commit.BranchID, commit.AuthorUserID,
		commit.Message, commit.Source, commit.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting commit: %w", err)
	}

	live, err := listFilesTx(tx, commit.BranchID)
	if err != nil {
		return nil, fmt.Errorf("loading live files: %w", err)
	}

	snapshots := make([]*model.FileSnapshot, 0, len(live))
	seen := make(map[string]bool, len(live))
	for _, f := range live {
		seen[f.ID] = true
		changeType := model.ChangeAdded
		if p, ok := priorLive[f.ID]; ok {
			if p.ContentHash == f.ContentHash && p.Name == f.Name && p.Type == f.Type {
				changeType = model.ChangeUnchanged
			} else {
				changeType = model.ChangeModified
			}
		}
		snapshots = append(snapshots, &model.FileSnapshot{
			ID:          uuid.New().String(),
			CommitID:    commit.ID,
			FileID:      f.ID,
			Name:        f.Name,
			Type:        f.Type,
			Content:     f.Content,
			ContentHash: f.ContentHash,
			ChangeType:  changeType,
		})
	}

	// Files live in the prior commit but gone now get one deletion
	// record carrying their last captured content.
	for fileID, p := range priorLive {
		if seen[fileID] {
			continue
		}
		snapshots = append(snapshots, &model.FileSnapshot{
			ID:          uuid.New().String(),
			CommitID:    commit.ID,
			FileID:      p.FileID,
			Name:        p.Name,
			Type:        p.Type,
			Content:     p.Content,
			ContentHash: p.ContentHash,
			ChangeType:  model.ChangeDeleted,
		})
	}

	// Match ListSnapshots ordering so cached and re-read lists agree.
	sort.Slice(snapshots, func(i, j int) bool {
		if snapshots[i].Name != snapshots[j].Name {
			return snapshots[i].Name < snapshots[j].Name
		}
		return snapshots[i].FileID < snapshots[j].FileID
	})

	for _, snap := range snapshots {
		_, err = tx.Exec(
			`INSERT INTO file_snapshots (id, commit_id, file_id, name, file_type, content, content_hash, change_type)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			snap.ID, snap.CommitID, snap.FileID, snap.Name, snap.Type,
			snap.Content, snap.ContentHash, snap.ChangeType,
		)
		if err != nil {
			return nil, fmt.Errorf("inserting snapshot for %q: %w", snap.Name, err)
		}
	}

	_, err = tx.Exec(`DELETE FROM pending_changes WHERE branch_id = ?`, commit.BranchID)
	if err != nil {
		return nil, fmt.Errorf("clearing pending markers: %w", err)
	}

	return snapshots, nil
}

// MergeIntoMain replaces the main branch's live tree with the source
// draft's and freezes the result under merge, all in one transaction.
// Files are matched by natural key with folders matched by path and
// created on main as needed; main-only files are tombstoned. Returns
// the number of files actually changed.
func (s *SQLiteStore) MergeIntoMain(sourceBranchID string, merge *model.Commit) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	source, err := scanBranch(tx.QueryRow(
		`SELECT `+branchColumns+` FROM branches WHERE id = ?`, sourceBranchID))
	if err != nil {
		return 0, fmt.Errorf("finding source branch: %w", err)
	}
	if source == nil {
		return 0, fmt.Errorf("branch %s: %w", sourceBranchID, vc.ErrBranchNotFound)
	}
	main, err := scanBranch(tx.QueryRow(
		`SELECT `+branchColumns+` FROM branches WHERE id = ?`, merge.BranchID))
	if err != nil {
		return 0, fmt.Errorf("finding main branch: %w", err)
	}
	if main == nil {
		return 0, fmt.Errorf("branch %s: %w", merge.BranchID, vc.ErrBranchNotFound)
	}

	now := merge.CreatedAt

	mainFolders, err := listFoldersTx(tx, main.ID)
	if err != nil {
		return 0, fmt.Errorf("loading main folders: %w", err)
	}
	idx := make(map[string]string, len(mainFolders))
	for id, path := range folderPaths(mainFolders) {
		idx[path] = id
	}

	sourceFolders, err := listFoldersTx(tx, source.ID)
	if err != nil {
		return 0, fmt.Errorf("loading source folders: %w", err)
	}
	sourcePath := folderPaths(sourceFolders)

	mainFiles, err := listFilesTx(tx, main.ID)
	if err != nil {
		return 0, fmt.Errorf("loading main files: %w", err)
	}
	byKey := make(map[string]*model.WorkingFile, len(mainFiles))
	for _, f := range mainFiles {
		k := fileKey(f.FolderID, f.Name, f.Type)
		if cur, ok := byKey[k]; !ok || newerRow(f, cur) {
			byKey[k] = f
		}
	}

	sourceFiles, err := listFilesTx(tx, source.ID)
	if err != nil {
		return 0, fmt.Errorf("loading source files: %w", err)
	}

	var filesChanged int
	consumed := make(map[string]bool, len(mainFiles))

	for _, f := range sourceFiles {
		var path string
		if f.FolderID != nil {
			path = sourcePath[*f.FolderID]
		}
		folderID, err := ensureFolderPathTx(tx, main.ID, main.ProjectID, path, now, idx)
		if err != nil {
			return 0, err
		}

		if mf, ok := byKey[fileKey(folderID, f.Name, f.Type)]; ok && !consumed[mf.ID] {
			consumed[mf.ID] = true
			if mf.ContentHash == f.ContentHash {
				continue
			}
			_, err = tx.Exec(
				`UPDATE working_files SET content = ?, content_hash = ?, updated_at = ? WHERE id = ?`,
				f.Content, f.ContentHash, now, mf.ID,
			)
			if err != nil {
				return 0, fmt.Errorf("overwriting file %q: %w", f.Name, err)
			}
			filesChanged++
			continue
		}

		_, err = tx.Exec(
			`INSERT INTO working_files (id, branch_id, project_id, folder_id, name, file_type, content, content_hash, is_deleted, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
			uuid.New().String(), main.ID, main.ProjectID, folderID,
			f.Name, f.Type, f.Content, f.ContentHash, now, now,
		)
		if err != nil {
			return 0, fmt.Errorf("inserting file %q: %w", f.Name, err)
		}
		filesChanged++
	}

	// Last-writer-wins: files present only on main leave the tree.
	for _, mf := range mainFiles {
		if consumed[mf.ID] {
			continue
		}
		_, err = tx.Exec(
			`UPDATE working_files SET is_deleted = 1, updated_at = ? WHERE id = ?`, now, mf.ID)
		if err != nil {
			return 0, fmt.Errorf("tombstoning file %q: %w", mf.Name, err)
		}
		filesChanged++
	}

	if _, err := createCommitTx(tx, merge); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing transaction: %w", err)
	}
	return filesChanged, nil
}

func (s *SQLiteStore) FindCommit(id string) (*model.Commit, error) {
	c, err := scanCommit(s.db.QueryRow(
		`SELECT `+commitColumns+` FROM commits WHERE id = ?`, id))
	if err != nil {
		return nil, fmt.Errorf("finding commit: %w", err)
	}
	return c, nil
}

func (s *SQLiteStore) ListCommits(branchID string, limit int) ([]*model.Commit, error) {
	rows, err := s.db.Query(
		`SELECT `+commitColumns+` FROM commits
		 WHERE branch_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`, branchID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing commits: %w", err)
	}
	defer rows.Close()

	var commits []*model.Commit
	for rows.Next() {
		c, err := scanCommit(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning commit: %w", err)
		}
		commits = append(commits, c)
	}
	return commits, rows.Err()
}

func (s *SQLiteStore) ListSnapshots(commitID string) ([]*model.FileSnapshot, error) {
	rows, err := s.db.Query(
		`SELECT `+snapshotColumns+` FROM file_snapshots
		 WHERE commit_id = ?
		 ORDER BY name, file_id`, commitID)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []*model.FileSnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning snapshot: %w", err)
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots, rows.Err()
}

func (s *SQLiteStore) ListSnapshotDigests(commitID string) ([]vc.SnapshotDigest, error) {
	rows, err := s.db.Query(
		`SELECT file_id, content_hash, change_type FROM file_snapshots
		 WHERE commit_id = ?
		 ORDER BY file_id`, commitID)
	if err != nil {
		return nil, fmt.Errorf("listing snapshot digests: %w", err)
	}
	defer rows.Close()

	var digests []vc.SnapshotDigest
	for rows.Next() {
		var d vc.SnapshotDigest
		if err := rows.Scan(&d.FileID, &d.Hash, &d.ChangeType); err != nil {
			return nil, fmt.Errorf("scanning snapshot digest: %w", err)
		}
		digests = append(digests, d)
	}
	return digests, rows.Err()
}

func (s *SQLiteStore) CommitHasFile(commitID, fileID string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(
		`SELECT EXISTS(SELECT 1 FROM file_snapshots WHERE commit_id = ? AND file_id = ?)`,
		commitID, fileID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking commit for file: %w", err)
	}
	return exists, nil
}

func (s *SQLiteStore) FindLastCommitForFile(projectID, fileID string) (*model.Commit, error) {
	c, err := scanCommit(s.db.QueryRow(
		`SELECT c.id, c.branch_id, c.author_user_id, c.message, c.source, c.created_at
		 FROM commits c
		 JOIN branches b ON b.id = c.branch_id
		 JOIN file_snapshots fs ON fs.commit_id = c.id
		 WHERE b.project_id = ? AND fs.file_id = ?
		 ORDER BY c.created_at DESC, c.id DESC
		 LIMIT 1`, projectID, fileID))
	if err != nil {
		return nil, fmt.Errorf("finding last commit for file: %w", err)
	}
	return c, nil
}
