package vc

import "errors"

// Sentinel errors returned by the service and the store. Callers match
// them with errors.Is; layers add context with fmt.Errorf("...: %w").
var (
	// ErrProjectNotFound is returned when a project has no version
	// control data at all.
	ErrProjectNotFound = errors.New("project not found")

	// ErrBranchNotFound is returned when a branch id does not resolve,
	// or a project is missing the branch an operation requires.
	ErrBranchNotFound = errors.New("branch not found")

	// ErrFileNotFound is returned for absent or tombstoned files.
	ErrFileNotFound = errors.New("file not found")

	// ErrFolderNotFound is returned for absent or tombstoned folders.
	ErrFolderNotFound = errors.New("folder not found")

	// ErrCommitNotFound is returned when a commit id does not resolve.
	ErrCommitNotFound = errors.New("commit not found")

	// ErrMainBranchExists signals a lost creation race: the project
	// already has a main branch. Callers re-read and use the winner.
	ErrMainBranchExists = errors.New("main branch already exists")

	// ErrDraftBranchExists signals a lost creation race on a user's
	// draft branch.
	ErrDraftBranchExists = errors.New("draft branch already exists")

	// ErrFileExists is returned when a write would produce two live
	// files with the same folder, name and type on one branch.
	ErrFileExists = errors.New("file already exists")

	// ErrNotDraftBranch is returned when a merge source is not a
	// user's draft branch.
	ErrNotDraftBranch = errors.New("branch is not a draft branch")

	// ErrStaleBaseline rejects moving the last-pushed baseline to a
	// commit older than the currently recorded one.
	ErrStaleBaseline = errors.New("push baseline is older than the recorded one")

	// ErrRemoteNotConfigured is returned by push-flow operations when
	// no remote sync state exists for the branch.
	ErrRemoteNotConfigured = errors.New("remote sync not configured")

	// ErrNoFileSource is returned by SyncFromSource when the service
	// was built without a live file listing source.
	ErrNoFileSource = errors.New("no file source configured")

	// ErrObjectNotFound is returned by vaults for missing object keys.
	ErrObjectNotFound = errors.New("object not found")
)
