package vc

import (
	"errors"
	"fmt"

	"vc-go/internal/model"
)

// MergeResult reports the outcome of merging a draft into main.
type MergeResult struct {
	MergeCommitID string
	FilesChanged  int
}

// InitProject sets up version control for a project: a main branch
// plus an empty initial system commit. Idempotent: when the project
// already has a main branch it is returned as is, including when a
// concurrent initialization wins the creation race.
func (s *Service) InitProject(projectID, userID string) (*model.Branch, error) {
	if projectID == "" || userID == "" {
		return nil, fmt.Errorf("project id and user id are required")
	}

	existing, err := s.store.FindMainBranch(projectID)
	if err != nil {
		return nil, fmt.Errorf("finding main branch: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	now := s.clock.Now()
	branch := &model.Branch{
		ID:        s.idgen.New(),
		ProjectID: projectID,
		CreatedAt: now,
	}
	initial := &model.Commit{
		ID:           s.idgen.New(),
		BranchID:     branch.ID,
		AuthorUserID: userID,
		Message:      "Project initialized",
		Source:       model.CommitSourceSystem,
		CreatedAt:    now,
	}

	if err := s.store.CreateMainBranch(branch, initial); err != nil {
		if errors.Is(err, ErrMainBranchExists) {
			// Lost the race; the winner's branch is the project's main.
			winner, ferr := s.store.FindMainBranch(projectID)
			if ferr != nil {
				return nil, fmt.Errorf("finding main branch after race: %w", ferr)
			}
			if winner != nil {
				return winner, nil
			}
		}
		return nil, fmt.Errorf("creating main branch: %w", err)
	}

	s.logger.Info("project initialized",
		"project", projectID, "branch", branch.ID, "user", userID)
	return branch, nil
}

// MainBranch returns the project's main branch, or (nil, nil) when the
// project has no version control data yet.
func (s *Service) MainBranch(projectID string) (*model.Branch, error) {
	b, err := s.store.FindMainBranch(projectID)
	if err != nil {
		return nil, fmt.Errorf("finding main branch: %w", err)
	}
	return b, nil
}

// UserBranch returns the user's draft branch for a project, forking it
// from main on first use. The fork copies main's live folders and
// files byte for byte under fresh ids; the draft starts with no
// commits of its own.
func (s *Service) UserBranch(projectID, userID string) (*model.Branch, error) {
	if projectID == "" || userID == "" {
		return nil, fmt.Errorf("project id and user id are required")
	}

	existing, err := s.store.FindDraftBranch(projectID, userID)
	if err != nil {
		return nil, fmt.Errorf("finding draft branch: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	main, err := s.store.FindMainBranch(projectID)
	if err != nil {
		return nil, fmt.Errorf("finding main branch: %w", err)
	}
	if main == nil {
		return nil, fmt.Errorf("project %s has no main branch: %w", projectID, ErrBranchNotFound)
	}

	draft := &model.Branch{
		ID:          s.idgen.New(),
		ProjectID:   projectID,
		OwnerUserID: &userID,
		CreatedAt:   s.clock.Now(),
	}
	if err := s.store.ForkBranch(main.ID, draft); err != nil {
		if errors.Is(err, ErrDraftBranchExists) {
			winner, ferr := s.store.FindDraftBranch(projectID, userID)
			if ferr != nil {
				return nil, fmt.Errorf("finding draft branch after race: %w", ferr)
			}
			if winner != nil {
				return winner, nil
			}
		}
		return nil, fmt.Errorf("forking draft branch: %w", err)
	}

	s.logger.Info("draft branch forked",
		"project", projectID, "user", userID, "branch", draft.ID, "from", main.ID)
	return draft, nil
}

// MergeToMain replaces main's working tree with the draft's
// (last-writer-wins, including tombstoning files that exist only on
// main) and freezes the result as a system commit authored by the
// merging user. Zero-diff merges still produce a commit so the merge
// is always visible in history.
func (s *Service) MergeToMain(sourceBranchID, projectID, userID string) (*MergeResult, error) {
	source, err := s.branchInProject(sourceBranchID, projectID)
	if err != nil {
		return nil, err
	}
	if source.IsMain() {
		return nil, fmt.Errorf("branch %s: %w", sourceBranchID, ErrNotDraftBranch)
	}

	main, err := s.store.FindMainBranch(projectID)
	if err != nil {
		return nil, fmt.Errorf("finding main branch: %w", err)
	}
	if main == nil {
		return nil, fmt.Errorf("project %s has no main branch: %w", projectID, ErrBranchNotFound)
	}

	merge := &model.Commit{
		ID:           s.idgen.New(),
		BranchID:     main.ID,
		AuthorUserID: userID,
		Message:      fmt.Sprintf("Merged draft branch %s", sourceBranchID),
		Source:       model.CommitSourceSystem,
		CreatedAt:    s.clock.Now(),
	}

	filesChanged, err := s.store.MergeIntoMain(sourceBranchID, merge)
	if err != nil {
		return nil, fmt.Errorf("merging into main: %w", err)
	}

	s.logger.Info("draft merged into main",
		"project", projectID, "source", sourceBranchID, "user", userID,
		"commit", merge.ID, "files_changed", filesChanged)
	return &MergeResult{MergeCommitID: merge.ID, FilesChanged: filesChanged}, nil
}

// DeleteProject removes every trace of a project's version control
// data: branches, working trees, commits, snapshots, sync state and
// pending markers, in one cascade.
func (s *Service) DeleteProject(projectID string) error {
	if err := s.store.DeleteProject(projectID); err != nil {
		return fmt.Errorf("deleting project %s: %w", projectID, err)
	}
	// Commit ids are gone; drop every cached snapshot list rather than
	// tracking which entries belonged to the project.
	s.snapshots.Purge()

	s.logger.Info("project deleted", "project", projectID)
	return nil
}
