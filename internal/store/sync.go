package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"vc-go/internal/model"
	"vc-go/internal/vc"
)

const syncColumns = "id, project_id, branch_id, remote_url, remote_branch, last_pushed_commit_id, updated_at"

func scanRemoteSync(row rowScanner) (*model.RemoteSyncState, error) {
	var st model.RemoteSyncState
	err := row.Scan(&st.ID, &st.ProjectID, &st.BranchID, &st.RemoteURL,
		&st.RemoteBranch, &st.LastPushedCommitID, &st.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, err
	}
	return &st, nil
}

// UpsertRemoteSync creates or updates the remote link for the
// (project, branch) pair. The recorded push baseline survives
// reconfiguration: only url, remote branch and updated_at are replaced.
func (s *SQLiteStore) UpsertRemoteSync(state *model.RemoteSyncState) (*model.RemoteSyncState, error) {
	_, err := s.db.Exec(
		`INSERT INTO remote_sync_state (id, project_id, branch_id, remote_url, remote_branch, last_pushed_commit_id, updated_at)
		 VALUES (?, ?, ?, ?, ?, NULL, ?)
		 ON CONFLICT(project_id, branch_id) DO UPDATE SET
		   remote_url = excluded.remote_url,
		   remote_branch = excluded.remote_branch,
		   updated_at = excluded.updated_at`,
		state.ID, state.ProjectID, state.BranchID,
		state.RemoteURL, state.RemoteBranch, state.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("upserting remote sync state: %w", err)
	}

	stored, err := s.FindRemoteSync(state.ProjectID, state.BranchID)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, fmt.Errorf("remote sync state vanished after upsert")
	}
	return stored, nil
}

func (s *SQLiteStore) FindRemoteSync(projectID, branchID string) (*model.RemoteSyncState, error) {
	st, err := scanRemoteSync(s.db.QueryRow(
		`SELECT `+syncColumns+` FROM remote_sync_state
		 WHERE project_id = ? AND branch_id = ?`, projectID, branchID))
	if err != nil {
		return nil, fmt.Errorf("finding remote sync state: %w", err)
	}
	return st, nil
}

// AdvanceLastPushed moves the branch's push baseline to commitID with
// a transactional check-and-set. The commit must exist on the branch;
// moving to a commit older than the recorded baseline (created_at,
// id as tiebreak) returns ErrStaleBaseline so late or replayed push
// callbacks cannot regress the baseline.
func (s *SQLiteStore) AdvanceLastPushed(projectID, branchID, commitID string, now time.Time) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if err := advanceLastPushedTx(tx, projectID, branchID, commitID, now); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// advanceLastPushedTx performs the baseline check-and-set inside an
// open transaction so callers can tie it to other writes.
func advanceLastPushedTx(tx *sql.Tx, projectID, branchID, commitID string, now time.Time) error {
	next, err := scanCommit(tx.QueryRow(
		`SELECT `+commitColumns+` FROM commits WHERE id = ? AND branch_id = ?`,
		commitID, branchID))
	if err != nil {
		return fmt.Errorf("finding commit: %w", err)
	}
	if next == nil {
		return fmt.Errorf("commit %s on branch %s: %w", commitID, branchID, vc.ErrCommitNotFound)
	}

	state, err := scanRemoteSync(tx.QueryRow(
		`SELECT `+syncColumns+` FROM remote_sync_state
		 WHERE project_id = ? AND branch_id = ?`, projectID, branchID))
	if err != nil {
		return fmt.Errorf("finding remote sync state: %w", err)
	}
	if state == nil {
		return fmt.Errorf("project %s branch %s: %w", projectID, branchID, vc.ErrRemoteNotConfigured)
	}

	if state.LastPushedCommitID != nil && *state.LastPushedCommitID != commitID {
		base, err := scanCommit(tx.QueryRow(
			`SELECT `+commitColumns+` FROM commits WHERE id = ?`, *state.LastPushedCommitID))
		if err != nil {
			return fmt.Errorf("finding baseline commit: %w", err)
		}
		if base != nil && olderThan(next, base) {
			return fmt.Errorf("commit %s predates baseline %s: %w",
				commitID, base.ID, vc.ErrStaleBaseline)
		}
	}

	_, err = tx.Exec(
		`UPDATE remote_sync_state SET last_pushed_commit_id = ?, updated_at = ?
		 WHERE project_id = ? AND branch_id = ?`,
		commitID, now, projectID, branchID,
	)
	if err != nil {
		return fmt.Errorf("advancing push baseline: %w", err)
	}
	return nil
}

// olderThan reports whether a was created before b, with the commit id
// as a deterministic tiebreak for equal timestamps.
func olderThan(a, b *model.Commit) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.ID < b.ID
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

func (s *SQLiteStore) HasPendingChanges(branchID string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(
		`SELECT EXISTS(SELECT 1 FROM pending_changes WHERE branch_id = ?)`, branchID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking pending markers: %w", err)
	}
	return exists, nil
}

func (s *SQLiteStore) ListPendingChanges(branchID string) ([]*model.PendingChange, error) {
	rows, err := s.db.Query(
		`SELECT id, branch_id, kind, entity_id, marked_at FROM pending_changes
		 WHERE branch_id = ?
		 ORDER BY marked_at, id`, branchID)
	if err != nil {
		return nil, fmt.Errorf("listing pending markers: %w", err)
	}
	defer rows.Close()

	var changes []*model.PendingChange
	for rows.Next() {
		var c model.PendingChange
		if err := rows.Scan(&c.ID, &c.BranchID, &c.Kind, &c.EntityID, &c.MarkedAt); err != nil {
			return nil, fmt.Errorf("scanning pending marker: %w", err)
		}
		changes = append(changes, &c)
	}
	return changes, rows.Err()
}
