package vc

import (
	"fmt"
	"sort"

	"vc-go/internal/model"
)

// UncommittedQuery tunes baseline comparisons.
type UncommittedQuery struct {
	// BaselineCommitID overrides the recorded push baseline. Must be a
	// commit of the project's main branch.
	BaselineCommitID string

	// TreatNoBaselineAsAll picks the answer when no baseline exists at
	// all: true reports the entire live tree as uncommitted, false
	// reports nothing. There is no fixed default; callers own this
	// policy.
	TreatNoBaselineAsAll bool
}

// SetupRemoteSync links a branch to an external remote, creating or
// updating the (project, branch) sync row. The recorded push baseline
// survives reconfiguration. remoteBranch defaults to "main".
func (s *Service) SetupRemoteSync(projectID, branchID, remoteURL, remoteBranch string) (*model.RemoteSyncState, error) {
	if remoteURL == "" {
		return nil, fmt.Errorf("remote url is required")
	}
	if _, err := s.branchInProject(branchID, projectID); err != nil {
		return nil, err
	}
	if remoteBranch == "" {
		remoteBranch = "main"
	}

	state, err := s.store.UpsertRemoteSync(&model.RemoteSyncState{
		ID:           s.idgen.New(),
		ProjectID:    projectID,
		BranchID:     branchID,
		RemoteURL:    remoteURL,
		RemoteBranch: remoteBranch,
		UpdatedAt:    s.clock.Now(),
	})
	if err != nil {
		return nil, fmt.Errorf("saving remote sync state: %w", err)
	}

	s.logger.Info("remote sync configured",
		"project", projectID, "branch", branchID,
		"remote", remoteURL, "remote_branch", remoteBranch)
	return state, nil
}

// RemoteSyncState returns the remote link for (project, branch), or
// (nil, nil) when none is configured.
func (s *Service) RemoteSyncState(projectID, branchID string) (*model.RemoteSyncState, error) {
	state, err := s.store.FindRemoteSync(projectID, branchID)
	if err != nil {
		return nil, fmt.Errorf("finding remote sync state: %w", err)
	}
	return state, nil
}

// SyncStatus returns the last pushed commit id of the project's main
// branch, or "" when nothing has been pushed or no remote is
// configured.
func (s *Service) SyncStatus(projectID string) (string, error) {
	main, err := s.store.FindMainBranch(projectID)
	if err != nil {
		return "", fmt.Errorf("finding main branch: %w", err)
	}
	if main == nil {
		return "", nil
	}
	state, err := s.store.FindRemoteSync(projectID, main.ID)
	if err != nil {
		return "", fmt.Errorf("finding remote sync state: %w", err)
	}
	if state == nil || state.LastPushedCommitID == nil {
		return "", nil
	}
	return *state.LastPushedCommitID, nil
}

// UpdateLastPushCommit records that commitID has been pushed to the
// remote, advancing the main branch's baseline. Moving the baseline
// backwards returns ErrStaleBaseline so late or replayed push
// callbacks cannot regress it.
func (s *Service) UpdateLastPushCommit(projectID, commitID string) error {
	main, err := s.mainBranch(projectID)
	if err != nil {
		return err
	}
	return s.markPushed(projectID, main.ID, commitID)
}

// HasUncommittedChanges reports whether the main branch's live tree
// differs from the last-pushed baseline. With a current baseline and
// no pending markers the answer is false without a tree scan. Without
// any baseline a non-empty tree counts as uncommitted.
func (s *Service) HasUncommittedChanges(projectID string) (bool, error) {
	main, err := s.mainBranch(projectID)
	if err != nil {
		return false, err
	}

	state, err := s.store.FindRemoteSync(projectID, main.ID)
	if err != nil {
		return false, fmt.Errorf("finding remote sync state: %w", err)
	}
	if state != nil && state.LastPushedCommitID != nil {
		head, err := s.store.ListCommits(main.ID, 1)
		if err != nil {
			return false, fmt.Errorf("finding branch head: %w", err)
		}
		if len(head) > 0 && head[0].ID == *state.LastPushedCommitID {
			pending, err := s.store.HasPendingChanges(main.ID)
			if err != nil {
				return false, fmt.Errorf("checking pending markers: %w", err)
			}
			if !pending {
				return false, nil
			}
		}
	}

	ids, err := s.UncommittedIDs(projectID, UncommittedQuery{TreatNoBaselineAsAll: true})
	if err != nil {
		return false, err
	}
	return len(ids) > 0, nil
}

// UncommittedFileIDs returns the ids of main-branch files not yet
// covered by the push baseline: digest drift, additions and deletions
// since the baseline commit. Without a baseline the whole live tree is
// reported (nothing pushed means everything unpushed).
func (s *Service) UncommittedFileIDs(projectID string) ([]string, error) {
	return s.UncommittedIDs(projectID, UncommittedQuery{TreatNoBaselineAsAll: true})
}

// UncommittedIDs compares the main branch's live tree against a
// baseline commit's snapshot set and returns the differing file ids,
// sorted. The baseline is q.BaselineCommitID when set, otherwise the
// recorded push baseline; with neither, q.TreatNoBaselineAsAll decides
// between the whole tree and nothing. Results are pure functions of
// store state; repeated calls return identical sets.
func (s *Service) UncommittedIDs(projectID string, q UncommittedQuery) ([]string, error) {
	main, err := s.mainBranch(projectID)
	if err != nil {
		return nil, err
	}

	baseline := q.BaselineCommitID
	if baseline != "" {
		commit, err := s.store.FindCommit(baseline)
		if err != nil {
			return nil, fmt.Errorf("finding baseline commit: %w", err)
		}
		if commit == nil || commit.BranchID != main.ID {
			return nil, fmt.Errorf("baseline commit %s: %w", baseline, ErrCommitNotFound)
		}
	} else {
		state, err := s.store.FindRemoteSync(projectID, main.ID)
		if err != nil {
			return nil, fmt.Errorf("finding remote sync state: %w", err)
		}
		if state != nil && state.LastPushedCommitID != nil {
			baseline = *state.LastPushedCommitID
		}
	}

	live, err := s.store.ListFileDigests(main.ID)
	if err != nil {
		return nil, fmt.Errorf("listing file digests: %w", err)
	}

	if baseline == "" {
		if !q.TreatNoBaselineAsAll {
			return nil, nil
		}
		ids := make([]string, 0, len(live))
		for _, d := range live {
			ids = append(ids, d.FileID)
		}
		sort.Strings(ids)
		return ids, nil
	}

	snapshots, err := s.store.ListSnapshotDigests(baseline)
	if err != nil {
		return nil, fmt.Errorf("listing baseline digests: %w", err)
	}
	// The baseline's live set excludes deletion records: a file both
	// deleted before the baseline and absent now is not a change.
	prior := make(map[string]string, len(snapshots))
	for _, d := range snapshots {
		if d.ChangeType != model.ChangeDeleted {
			prior[d.FileID] = d.Hash
		}
	}

	var ids []string
	current := make(map[string]struct{}, len(live))
	for _, d := range live {
		current[d.FileID] = struct{}{}
		if hash, ok := prior[d.FileID]; !ok || hash != d.Hash {
			ids = append(ids, d.FileID)
		}
	}
	for fileID := range prior {
		if _, ok := current[fileID]; !ok {
			ids = append(ids, fileID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// HasPendingChanges reports whether the branch's working tree has been
// touched since its last commit, using markers only, without a tree
// scan. Saves that change nothing leave no marker.
func (s *Service) HasPendingChanges(branchID string) (bool, error) {
	if _, err := s.branch(branchID); err != nil {
		return false, err
	}
	pending, err := s.store.HasPendingChanges(branchID)
	if err != nil {
		return false, fmt.Errorf("checking pending markers: %w", err)
	}
	return pending, nil
}

// markPushed advances the push baseline for a branch.
func (s *Service) markPushed(projectID, branchID, commitID string) error {
	if err := s.store.AdvanceLastPushed(projectID, branchID, commitID, s.clock.Now()); err != nil {
		return fmt.Errorf("advancing push baseline: %w", err)
	}
	s.logger.Info("push baseline advanced",
		"project", projectID, "branch", branchID, "commit", commitID)
	return nil
}

// mainBranch resolves the project's main branch or reports
// ErrBranchNotFound.
func (s *Service) mainBranch(projectID string) (*model.Branch, error) {
	main, err := s.store.FindMainBranch(projectID)
	if err != nil {
		return nil, fmt.Errorf("finding main branch: %w", err)
	}
	if main == nil {
		return nil, fmt.Errorf("project %s has no main branch: %w", projectID, ErrBranchNotFound)
	}
	return main, nil
}
