package vc

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"vc-go/internal/model"
)

// snapshotCacheSize bounds the in-memory cache of per-commit snapshot
// lists. Snapshots are immutable once written, so cached entries never
// go stale; the cache is purged when a project is deleted.
const snapshotCacheSize = 256

// Service is the orchestration layer that coordinates branch, working
// tree, commit and sync operations for the embedding application and
// the CLI.
type Service struct {
	store     Store
	vault     Vault
	encryptor Encryptor
	source    FileSource
	logger    Logger
	clock     Clock
	idgen     IDGenerator

	snapshots *lru.Cache[string, []*model.FileSnapshot]
}

// NewService creates a new Service with the provided dependencies.
// vault and encryptor are only needed for export operations and may be
// nil otherwise; source may be nil when SyncFromSource is unused.
func NewService(store Store, vault Vault, encryptor Encryptor, source FileSource, logger Logger, clock Clock, idgen IDGenerator) *Service {
	snapshots, _ := lru.New[string, []*model.FileSnapshot](snapshotCacheSize)
	return &Service{
		store:     store,
		vault:     vault,
		encryptor: encryptor,
		source:    source,
		logger:    logger,
		clock:     clock,
		idgen:     idgen,
		snapshots: snapshots,
	}
}
