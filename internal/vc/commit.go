package vc

import (
	"fmt"

	"vc-go/internal/model"
)

// defaultCommitLimit caps history listings when the caller does not
// pick a limit.
const defaultCommitLimit = 50

// CommitOptions tune commit creation.
type CommitOptions struct {
	// Source classifies the commit; empty means manual.
	Source model.CommitSource

	// MarkPushed advances the branch's push baseline to the new commit
	// in the same store transaction. Push flows set this so the commit
	// they are about to mirror remotely is the recorded baseline. When
	// remote sync is not configured the whole commit aborts and nothing
	// is recorded.
	MarkPushed bool
}

// Commit freezes the branch's current live tree as a new commit.
// Change classes are derived per file by comparing digests against the
// branch's previous commit; files that left the tree since then get a
// single deletion record. The capture, including clearing the branch's
// pending markers and any requested baseline advance, is one store
// transaction. Commits with zero net changes are permitted; callers
// short-circuit if they want to.
func (s *Service) Commit(branchID, userID, message string, opts CommitOptions) (*model.Commit, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	branch, err := s.branch(branchID)
	if err != nil {
		return nil, err
	}

	source := opts.Source
	if source == "" {
		source = model.CommitSourceManual
	}

	commit := &model.Commit{
		ID:           s.idgen.New(),
		BranchID:     branchID,
		AuthorUserID: userID,
		Message:      message,
		Source:       source,
		CreatedAt:    s.clock.Now(),
	}

	snapshots, err := s.store.CreateCommit(commit, opts.MarkPushed)
	if err != nil {
		return nil, fmt.Errorf("creating commit: %w", err)
	}
	s.snapshots.Add(commit.ID, snapshots)

	var changed int
	for _, snap := range snapshots {
		if snap.ChangeType != model.ChangeUnchanged {
			changed++
		}
	}
	s.logger.Info("commit created",
		"project", branch.ProjectID, "branch", branchID, "commit", commit.ID,
		"source", string(source), "files", len(snapshots), "changed", changed)
	if opts.MarkPushed {
		s.logger.Info("push baseline advanced",
			"project", branch.ProjectID, "branch", branchID, "commit", commit.ID)
	}
	return commit, nil
}

// CommitCurrentState commits the current state of the project's main
// branch, initializing version control for the project first when
// needed. Used by flows that operate on projects rather than branches,
// e.g. deployments committing before export.
func (s *Service) CommitCurrentState(projectID, userID, message string, source model.CommitSource) (*model.Commit, error) {
	main, err := s.InitProject(projectID, userID)
	if err != nil {
		return nil, err
	}
	return s.Commit(main.ID, userID, message, CommitOptions{Source: source})
}

// Commits returns a branch's history, newest first. limit <= 0 selects
// the default of 50.
func (s *Service) Commits(branchID string, limit int) ([]*model.Commit, error) {
	if _, err := s.branch(branchID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultCommitLimit
	}
	commits, err := s.store.ListCommits(branchID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing commits: %w", err)
	}
	return commits, nil
}

// CommitSnapshots returns a commit's full snapshot set ordered by file
// name. Snapshot sets are immutable, so results are served from a
// bounded cache; callers must treat the returned slice as read-only.
func (s *Service) CommitSnapshots(commitID string) ([]*model.FileSnapshot, error) {
	if cached, ok := s.snapshots.Get(commitID); ok {
		return cached, nil
	}

	commit, err := s.store.FindCommit(commitID)
	if err != nil {
		return nil, fmt.Errorf("finding commit: %w", err)
	}
	if commit == nil {
		return nil, fmt.Errorf("commit %s: %w", commitID, ErrCommitNotFound)
	}

	snapshots, err := s.store.ListSnapshots(commitID)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	s.snapshots.Add(commitID, snapshots)
	return snapshots, nil
}

// CommitHasFile reports whether the commit's snapshot set includes the
// file id.
func (s *Service) CommitHasFile(commitID, fileID string) (bool, error) {
	commit, err := s.store.FindCommit(commitID)
	if err != nil {
		return false, fmt.Errorf("finding commit: %w", err)
	}
	if commit == nil {
		return false, fmt.Errorf("commit %s: %w", commitID, ErrCommitNotFound)
	}
	ok, err := s.store.CommitHasFile(commitID, fileID)
	if err != nil {
		return false, fmt.Errorf("checking commit for file: %w", err)
	}
	return ok, nil
}

// LastCommitForFile returns the newest commit across the project's
// history whose snapshot set includes the file, or (nil, nil) when the
// file was never committed.
func (s *Service) LastCommitForFile(projectID, fileID string) (*model.Commit, error) {
	commit, err := s.store.FindLastCommitForFile(projectID, fileID)
	if err != nil {
		return nil, fmt.Errorf("finding last commit for file: %w", err)
	}
	return commit, nil
}
