package vc

import (
	"time"

	"vc-go/internal/model"
)

// FileDigest pairs a working-file id with its content digest. Digest
// listings keep baseline comparisons cheap: no content bytes cross the
// store boundary.
type FileDigest struct {
	FileID string
	Hash   string
}

// SnapshotDigest pairs a snapshot's file id with its digest and change
// class so baseline live sets can exclude deletion records.
type SnapshotDigest struct {
	FileID     string
	Hash       string
	ChangeType model.ChangeType
}

// Store provides an interface for version-control persistence.
// Find methods return (nil, nil) when the row does not exist; mutating
// methods return the package sentinels for missing or conflicting
// rows. Every multi-step mutation runs inside a single transaction:
// it either fully applies or fully aborts.
type Store interface {
	// Branch operations

	// FindBranch returns a branch by id.
	FindBranch(id string) (*model.Branch, error)

	// FindMainBranch returns the project's main branch.
	FindMainBranch(projectID string) (*model.Branch, error)

	// FindDraftBranch returns the user's draft branch for a project.
	FindDraftBranch(projectID, userID string) (*model.Branch, error)

	// CreateMainBranch inserts a main branch together with its empty
	// initial commit. Returns ErrMainBranchExists when the project
	// already has one.
	CreateMainBranch(branch *model.Branch, initial *model.Commit) error

	// ForkBranch inserts a draft branch and copies the source branch's
	// live folders and files onto it with fresh ids, preserving the
	// folder hierarchy and content bytes. Tombstoned rows are not
	// copied. Returns ErrDraftBranchExists on a lost creation race.
	ForkBranch(sourceBranchID string, draft *model.Branch) error

	// DeleteProject hard-deletes every branch of the project; foreign
	// keys cascade to files, folders, commits, snapshots, sync state
	// and pending markers. Returns ErrProjectNotFound when the project
	// has no branches.
	DeleteProject(projectID string) error

	// Working-tree file operations

	// FindFile returns a live file by id. Tombstoned files are not found.
	FindFile(id string) (*model.WorkingFile, error)

	// ListFiles returns all live files of a branch ordered by name.
	ListFiles(branchID string) ([]*model.WorkingFile, error)

	// ListFilesInFolder returns the live files of one folder, ordered
	// by name. A nil folderID selects top-level files.
	ListFilesInFolder(branchID string, folderID *string) ([]*model.WorkingFile, error)

	// ListFileDigests returns (file id, digest) pairs for a branch's
	// live files.
	ListFileDigests(branchID string) ([]FileDigest, error)

	// UpdateFile rewrites a live file in place (content, digest,
	// folder, name, type, updated-at) and returns the stored row. The
	// row must live on f.BranchID. Returns ErrFileNotFound for missing,
	// tombstoned or other-branch ids and ErrFileExists when the new
	// identity collides with another live file.
	UpdateFile(f *model.WorkingFile) (*model.WorkingFile, error)

	// UpsertFileByIdentity resolves a live file by natural key
	// (branch, folder, name, type) and updates it, or inserts f when
	// no live row matches. When legacy duplicates exist the
	// most-recently-updated row wins. A concurrent duplicate insert is
	// retried against the unique index once. Returns the stored row.
	UpsertFileByIdentity(f *model.WorkingFile) (*model.WorkingFile, error)

	// TombstoneFile soft-deletes a live file. Returns ErrFileNotFound
	// for missing or already tombstoned ids.
	TombstoneFile(id string, now time.Time) error

	// Working-tree folder operations

	// FindFolder returns a live folder by id.
	FindFolder(id string) (*model.WorkingFolder, error)

	// ListFolders returns all live folders of a branch ordered by name.
	ListFolders(branchID string) ([]*model.WorkingFolder, error)

	// EnsureFolder resolves a live folder by natural key (branch,
	// parent, name) or inserts folder. Returns the stored row.
	EnsureFolder(folder *model.WorkingFolder) (*model.WorkingFolder, error)

	// TombstoneFolder soft-deletes a folder, its descendant folders
	// and every live file they contain. Returns ErrFolderNotFound for
	// missing or already tombstoned ids.
	TombstoneFolder(id string, now time.Time) error

	// ReconcileFromSource makes a branch's working tree match an
	// external live file listing: updates drifted files, inserts
	// missing ones, tombstones files absent from the listing, creating
	// folder paths as needed. Entries resolve to working files by
	// (folder, name, type), falling back to (name, type) so moved files
	// keep their rows; external ids are adopted on insert but never
	// drive matching.
	ReconcileFromSource(branchID string, now time.Time, files []SourceFile) (*SyncReport, error)

	// Commit operations

	// CreateCommit freezes the branch's live tree under commit:
	// inserts the commit row, one snapshot per live file with its
	// change class derived from the prior commit's digests, one
	// deletion record per file that left the tree since the prior
	// commit, and clears the branch's pending markers. With markPushed
	// the branch's push baseline advances to the new commit in the
	// same transaction, so a baseline failure leaves no commit behind.
	// Returns the inserted snapshots.
	CreateCommit(commit *model.Commit, markPushed bool) ([]*model.FileSnapshot, error)

	// MergeIntoMain replaces the main branch's live tree with the
	// source draft's (matching folders by path and files by natural
	// key, tombstoning main-only files) and freezes the result under
	// merge, whose BranchID must be the main branch. Returns the
	// number of files the merge actually changed.
	MergeIntoMain(sourceBranchID string, merge *model.Commit) (int, error)

	// FindCommit returns a commit by id.
	FindCommit(id string) (*model.Commit, error)

	// ListCommits returns a branch's commits newest first, at most
	// limit rows.
	ListCommits(branchID string, limit int) ([]*model.Commit, error)

	// ListSnapshots returns a commit's snapshot rows ordered by name.
	ListSnapshots(commitID string) ([]*model.FileSnapshot, error)

	// ListSnapshotDigests returns (file id, digest, change class)
	// tuples for a commit.
	ListSnapshotDigests(commitID string) ([]SnapshotDigest, error)

	// CommitHasFile reports whether a commit's snapshot set includes
	// the file id.
	CommitHasFile(commitID, fileID string) (bool, error)

	// FindLastCommitForFile returns the newest commit across all of a
	// project's branches whose snapshots include the file id.
	FindLastCommitForFile(projectID, fileID string) (*model.Commit, error)

	// Remote sync operations

	// UpsertRemoteSync creates or updates the remote link for
	// (project, branch), preserving the recorded push baseline on
	// update. Returns the stored row.
	UpsertRemoteSync(state *model.RemoteSyncState) (*model.RemoteSyncState, error)

	// FindRemoteSync returns the remote link for (project, branch).
	FindRemoteSync(projectID, branchID string) (*model.RemoteSyncState, error)

	// AdvanceLastPushed moves the branch's push baseline to commitID.
	// The commit must exist on the branch; moving backwards (by
	// created-at, id as tiebreak) returns ErrStaleBaseline. The
	// check-and-set is transactional.
	AdvanceLastPushed(projectID, branchID, commitID string, now time.Time) error

	// HasPendingChanges reports whether any pending markers exist for
	// the branch, without scanning the working tree.
	HasPendingChanges(branchID string) (bool, error)

	// ListPendingChanges returns the branch's pending markers ordered
	// by marking time.
	ListPendingChanges(branchID string) ([]*model.PendingChange, error)

	// CheckMigrations verifies the store schema is up-to-date.
	CheckMigrations() error

	// Close closes the store connection.
	Close() error
}
