package vc

import (
	"bytes"
	"fmt"

	"vc-go/internal/bundle"
	"vc-go/internal/model"
)

// ExportOptions tune commit exports.
type ExportOptions struct {
	// Encrypt wraps the bundle in age encryption using the configured
	// public key.
	Encrypt bool
}

// ExportResult describes a stored export bundle.
type ExportResult struct {
	Key       string
	Files     int
	Size      int64
	Encrypted bool
}

// ExportCommit packages a commit's tree (the snapshot set minus
// deletion records) into a compressed bundle and stores it in the
// vault under exports/<project>/<commit>.vcb, with an .age suffix when
// encrypted. Deployment and export jobs hand these bundles to
// downstream systems.
func (s *Service) ExportCommit(commitID string, opts ExportOptions) (*ExportResult, error) {
	if s.vault == nil {
		return nil, fmt.Errorf("no vault configured")
	}

	commit, err := s.store.FindCommit(commitID)
	if err != nil {
		return nil, fmt.Errorf("finding commit: %w", err)
	}
	if commit == nil {
		return nil, fmt.Errorf("commit %s: %w", commitID, ErrCommitNotFound)
	}
	branch, err := s.branch(commit.BranchID)
	if err != nil {
		return nil, err
	}

	snapshots, err := s.CommitSnapshots(commitID)
	if err != nil {
		return nil, err
	}
	tree := make([]*model.FileSnapshot, 0, len(snapshots))
	for _, snap := range snapshots {
		if snap.ChangeType != model.ChangeDeleted {
			tree = append(tree, snap)
		}
	}

	manifest := bundle.Manifest{
		ProjectID:    branch.ProjectID,
		BranchID:     branch.ID,
		CommitID:     commit.ID,
		Message:      commit.Message,
		AuthorUserID: commit.AuthorUserID,
		CommittedAt:  commit.CreatedAt,
	}

	var buf bytes.Buffer
	if err := bundle.Write(&buf, manifest, tree); err != nil {
		return nil, fmt.Errorf("writing bundle: %w", err)
	}

	key := fmt.Sprintf("exports/%s/%s.vcb", branch.ProjectID, commit.ID)
	payload := buf.Bytes()
	encrypted := false
	if opts.Encrypt {
		if s.encryptor == nil || !s.encryptor.IsConfigured() {
			return nil, fmt.Errorf("encryption requested but no encryptor is configured")
		}
		var sealed bytes.Buffer
		if err := s.encryptor.Encrypt(bytes.NewReader(payload), &sealed); err != nil {
			return nil, fmt.Errorf("encrypting bundle: %w", err)
		}
		payload = sealed.Bytes()
		key += ".age"
		encrypted = true
	}

	if err := s.vault.PutObject(key, bytes.NewReader(payload), int64(len(payload))); err != nil {
		return nil, fmt.Errorf("storing bundle: %w", err)
	}

	s.logger.Info("commit exported",
		"project", branch.ProjectID, "commit", commit.ID, "key", key,
		"files", len(tree), "bytes", len(payload), "encrypted", encrypted)
	return &ExportResult{
		Key:       key,
		Files:     len(tree),
		Size:      int64(len(payload)),
		Encrypted: encrypted,
	}, nil
}
