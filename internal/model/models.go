package model

import "time"

// CommitSource records what produced a commit.
type CommitSource string

const (
	// CommitSourceManual marks commits created directly by a user.
	CommitSourceManual CommitSource = "manual"
	// CommitSourceSystem marks commits created by the engine itself
	// (merges, project initialization, push flows).
	CommitSourceSystem CommitSource = "system"
)

// ChangeType classifies a file within a commit relative to the
// branch's prior commit.
type ChangeType string

const (
	ChangeAdded     ChangeType = "added"
	ChangeModified  ChangeType = "modified"
	ChangeDeleted   ChangeType = "deleted"
	ChangeUnchanged ChangeType = "unchanged"
)

// PendingKind tells whether a pending-change marker points at a file
// or a folder.
type PendingKind string

const (
	PendingFile   PendingKind = "file"
	PendingFolder PendingKind = "folder"
)

// Branch is a line of development within a project. A project has
// exactly one main branch (OwnerUserID nil) and at most one draft
// branch per user.
type Branch struct {
	ID          string  // UUID
	ProjectID   string  // Opaque id owned by the embedding application
	OwnerUserID *string // nil for the main branch
	CreatedAt   time.Time
}

// IsMain reports whether the branch is its project's main branch.
func (b *Branch) IsMain() bool {
	return b.OwnerUserID == nil
}

// WorkingFile is a mutable file in a branch's working tree. Deleting
// a file tombstones the row; rows are never removed outside a project
// cascade delete.
type WorkingFile struct {
	ID          string  // UUID
	BranchID    string  // Foreign key to Branch
	ProjectID   string
	FolderID    *string // nil = top level
	Name        string
	Type        string // File kind, e.g. "bpmn", "dmn", "form"
	Content     []byte
	ContentHash string // SHA-256 hex of Content
	IsDeleted   bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// WorkingFolder groups working files within a branch. Folders form a
// tree through ParentID and are tombstoned like files.
type WorkingFolder struct {
	ID        string  // UUID
	BranchID  string  // Foreign key to Branch
	ProjectID string
	ParentID  *string // nil = top level
	Name      string
	IsDeleted bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Commit is an immutable point-in-time capture of a branch's live
// working tree. Commits are append-only: nothing updates or deletes
// them except a full project cascade.
type Commit struct {
	ID           string // UUID
	BranchID     string // Foreign key to Branch
	AuthorUserID string
	Message      string
	Source       CommitSource
	CreatedAt    time.Time
}

// FileSnapshot is one file's frozen state within a commit. ContentHash
// is stored so later commits classify changes by digest comparison
// instead of re-diffing bytes.
type FileSnapshot struct {
	ID          string // UUID
	CommitID    string // Foreign key to Commit
	FileID      string // WorkingFile id at capture time
	Name        string
	Type        string
	Content     []byte
	ContentHash string
	ChangeType  ChangeType
}

// RemoteSyncState links a branch to an external remote and records the
// last commit known to have been pushed there.
type RemoteSyncState struct {
	ID                 string // UUID
	ProjectID          string
	BranchID           string // Foreign key to Branch
	RemoteURL          string
	RemoteBranch       string  // Defaults to "main"
	LastPushedCommitID *string // nil until the first push
	UpdatedAt          time.Time
}

// PendingChange marks a file or folder as touched since the branch's
// last commit. Markers are a derived fast path for dirtiness checks;
// exact answers always come from digest diffs against a baseline.
type PendingChange struct {
	ID       int64 // Autoincrement
	BranchID string
	Kind     PendingKind
	EntityID string
	MarkedAt time.Time
}
