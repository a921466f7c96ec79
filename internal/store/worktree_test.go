package store

import (
	"testing"
	"time"

	"vc-go/internal/model"
	"vc-go/internal/vc"
)

func TestUpsertFileByIdentity_FolderScopesIdentity(t *testing.T) {
	s := newTestStore(t)
	main := seedMainBranch(t, s, "proj-1")

	folder, err := s.EnsureFolder(&model.WorkingFolder{
		ID: "fold-1", BranchID: main.ID, ProjectID: "proj-1",
		Name: "flows", CreatedAt: testStart, UpdatedAt: testStart,
	})
	if err != nil {
		t.Fatalf("EnsureFolder() error = %v", err)
	}

	// The same (name, type) at the top level and inside a folder are
	// distinct identities.
	top, err := s.UpsertFileByIdentity(testWorkingFile(main, "file-top", "order", "bpmn", "<top/>", testStart))
	if err != nil {
		t.Fatalf("UpsertFileByIdentity() error = %v", err)
	}
	nested := testWorkingFile(main, "file-nested", "order", "bpmn", "<nested/>", testStart)
	nested.FolderID = &folder.ID
	if _, err := s.UpsertFileByIdentity(nested); err != nil {
		t.Fatalf("UpsertFileByIdentity() error = %v", err)
	}

	// A top-level save folds into the top-level row only.
	update := testWorkingFile(main, "file-unused", "order", "bpmn", "<top-v2/>", testStart.Add(time.Minute))
	got, err := s.UpsertFileByIdentity(update)
	if err != nil {
		t.Fatalf("UpsertFileByIdentity() error = %v", err)
	}
	if got.ID != top.ID {
		t.Errorf("updated row id = %s, want the top-level row %s", got.ID, top.ID)
	}
	if string(got.Content) != "<top-v2/>" {
		t.Errorf("updated content = %q, want the new version", got.Content)
	}

	kept, err := s.FindFile("file-nested")
	if err != nil {
		t.Fatalf("FindFile() error = %v", err)
	}
	if string(kept.Content) != "<nested/>" {
		t.Errorf("nested content = %q, want it untouched", kept.Content)
	}
}

func TestPendingMarkers(t *testing.T) {
	t.Run("ordered by first mark and idempotent per entity", func(t *testing.T) {
		s := newTestStore(t)
		main := seedMainBranch(t, s, "proj-1")

		first, err := s.UpsertFileByIdentity(testWorkingFile(main, "file-a", "alpha", "bpmn", "<a1/>", testStart))
		if err != nil {
			t.Fatalf("UpsertFileByIdentity() error = %v", err)
		}
		folder, err := s.EnsureFolder(&model.WorkingFolder{
			ID: "fold-1", BranchID: main.ID, ProjectID: "proj-1",
			Name: "flows", CreatedAt: testStart.Add(time.Minute), UpdatedAt: testStart.Add(time.Minute),
		})
		if err != nil {
			t.Fatalf("EnsureFolder() error = %v", err)
		}
		s.UpsertFileByIdentity(testWorkingFile(main, "file-b", "beta", "form", "{}", testStart.Add(2*time.Minute)))

		// Re-saving the first file keeps its original marker.
		s.UpsertFileByIdentity(testWorkingFile(main, "file-x", "alpha", "bpmn", "<a2/>", testStart.Add(3*time.Minute)))

		pending, err := s.ListPendingChanges(main.ID)
		if err != nil {
			t.Fatalf("ListPendingChanges() error = %v", err)
		}
		if len(pending) != 3 {
			t.Fatalf("pending marker count = %d, want 3", len(pending))
		}
		if pending[0].EntityID != first.ID || pending[0].Kind != model.PendingFile {
			t.Errorf("pending[0] = %s %s, want the first file", pending[0].Kind, pending[0].EntityID)
		}
		if !pending[0].MarkedAt.Equal(testStart) {
			t.Errorf("pending[0].MarkedAt = %v, want the first save time %v", pending[0].MarkedAt, testStart)
		}
		if pending[1].EntityID != folder.ID || pending[1].Kind != model.PendingFolder {
			t.Errorf("pending[1] = %s %s, want the folder", pending[1].Kind, pending[1].EntityID)
		}
		if pending[2].EntityID != "file-b" || pending[2].Kind != model.PendingFile {
			t.Errorf("pending[2] = %s %s, want the second file", pending[2].Kind, pending[2].EntityID)
		}
	})

	t.Run("no-op saves leave no marker", func(t *testing.T) {
		s := newTestStore(t)
		main := seedMainBranch(t, s, "proj-1")

		s.UpsertFileByIdentity(testWorkingFile(main, "file-a", "alpha", "bpmn", "<a/>", testStart))
		commit := &model.Commit{
			ID: "c-1", BranchID: main.ID, AuthorUserID: "user-1",
			Message: "checkpoint", Source: model.CommitSourceManual,
			CreatedAt: testStart.Add(time.Minute),
		}
		if _, err := s.CreateCommit(commit, false); err != nil {
			t.Fatalf("CreateCommit() error = %v", err)
		}

		// Identical content resolves to the stored row without writing.
		s.UpsertFileByIdentity(testWorkingFile(main, "file-x", "alpha", "bpmn", "<a/>", testStart.Add(2*time.Minute)))

		pending, err := s.ListPendingChanges(main.ID)
		if err != nil {
			t.Fatalf("ListPendingChanges() error = %v", err)
		}
		if len(pending) != 0 {
			t.Errorf("pending marker count = %d, want 0 after a no-op save", len(pending))
		}
		dirty, err := s.HasPendingChanges(main.ID)
		if err != nil {
			t.Fatalf("HasPendingChanges() error = %v", err)
		}
		if dirty {
			t.Error("HasPendingChanges() = true, want false")
		}
	})
}

func TestTombstoneFolder_MarksWholeSubtree(t *testing.T) {
	s := newTestStore(t)
	main := seedMainBranch(t, s, "proj-1")

	root, err := s.EnsureFolder(&model.WorkingFolder{
		ID: "fold-root", BranchID: main.ID, ProjectID: "proj-1",
		Name: "flows", CreatedAt: testStart, UpdatedAt: testStart,
	})
	if err != nil {
		t.Fatalf("EnsureFolder() error = %v", err)
	}
	child, err := s.EnsureFolder(&model.WorkingFolder{
		ID: "fold-child", BranchID: main.ID, ProjectID: "proj-1",
		ParentID: &root.ID, Name: "payments", CreatedAt: testStart, UpdatedAt: testStart,
	})
	if err != nil {
		t.Fatalf("EnsureFolder() error = %v", err)
	}
	grand, err := s.EnsureFolder(&model.WorkingFolder{
		ID: "fold-grand", BranchID: main.ID, ProjectID: "proj-1",
		ParentID: &child.ID, Name: "cards", CreatedAt: testStart, UpdatedAt: testStart,
	})
	if err != nil {
		t.Fatalf("EnsureFolder() error = %v", err)
	}
	buried := testWorkingFile(main, "file-deep", "charge-flow", "bpmn", "<charge/>", testStart)
	buried.FolderID = &grand.ID
	s.UpsertFileByIdentity(buried)
	s.UpsertFileByIdentity(testWorkingFile(main, "file-top", "keeper", "form", "{}", testStart))

	// Commit to clear the creation markers so only the tombstone marks remain.
	commit := &model.Commit{
		ID: "c-1", BranchID: main.ID, AuthorUserID: "user-1",
		Message: "checkpoint", Source: model.CommitSourceManual,
		CreatedAt: testStart.Add(time.Minute),
	}
	if _, err := s.CreateCommit(commit, false); err != nil {
		t.Fatalf("CreateCommit() error = %v", err)
	}

	tombTime := testStart.Add(2 * time.Minute)
	if err := s.TombstoneFolder(root.ID, tombTime); err != nil {
		t.Fatalf("TombstoneFolder() error = %v", err)
	}

	folders, err := s.ListFolders(main.ID)
	if err != nil {
		t.Fatalf("ListFolders() error = %v", err)
	}
	if len(folders) != 0 {
		t.Errorf("live folder count = %d, want 0", len(folders))
	}
	files, err := s.ListFiles(main.ID)
	if err != nil {
		t.Fatalf("ListFiles() error = %v", err)
	}
	if len(files) != 1 || files[0].Name != "keeper" {
		t.Errorf("live files = %d, want only the top-level file", len(files))
	}

	pending, err := s.ListPendingChanges(main.ID)
	if err != nil {
		t.Fatalf("ListPendingChanges() error = %v", err)
	}
	if len(pending) != 4 {
		t.Fatalf("pending marker count = %d, want 4 (three folders, one file)", len(pending))
	}
	var fileMarks, folderMarks int
	for _, p := range pending {
		if !p.MarkedAt.Equal(tombTime) {
			t.Errorf("marker %s MarkedAt = %v, want the tombstone time", p.EntityID, p.MarkedAt)
		}
		switch p.Kind {
		case model.PendingFile:
			fileMarks++
		case model.PendingFolder:
			folderMarks++
		}
	}
	if fileMarks != 1 || folderMarks != 3 {
		t.Errorf("marker kinds = %d file, %d folder, want 1 and 3", fileMarks, folderMarks)
	}
}

func TestListFilesInFolder_TopLevelIsNull(t *testing.T) {
	s := newTestStore(t)
	main := seedMainBranch(t, s, "proj-1")

	folder, err := s.EnsureFolder(&model.WorkingFolder{
		ID: "fold-1", BranchID: main.ID, ProjectID: "proj-1",
		Name: "flows", CreatedAt: testStart, UpdatedAt: testStart,
	})
	if err != nil {
		t.Fatalf("EnsureFolder() error = %v", err)
	}
	s.UpsertFileByIdentity(testWorkingFile(main, "file-a", "alpha", "bpmn", "<a/>", testStart))
	nested := testWorkingFile(main, "file-b", "beta", "form", "{}", testStart)
	nested.FolderID = &folder.ID
	s.UpsertFileByIdentity(nested)

	top, err := s.ListFilesInFolder(main.ID, nil)
	if err != nil {
		t.Fatalf("ListFilesInFolder(nil) error = %v", err)
	}
	if len(top) != 1 || top[0].ID != "file-a" {
		t.Errorf("top-level files = %d, want only the unfoldered file", len(top))
	}

	in, err := s.ListFilesInFolder(main.ID, &folder.ID)
	if err != nil {
		t.Fatalf("ListFilesInFolder(folder) error = %v", err)
	}
	if len(in) != 1 || in[0].ID != "file-b" {
		t.Errorf("folder files = %d, want only the nested file", len(in))
	}
}

func TestListFileDigests_SkipsTombstones(t *testing.T) {
	s := newTestStore(t)
	main := seedMainBranch(t, s, "proj-1")

	s.UpsertFileByIdentity(testWorkingFile(main, "file-c", "gamma", "dmn", "<g/>", testStart))
	s.UpsertFileByIdentity(testWorkingFile(main, "file-a", "alpha", "bpmn", "<a/>", testStart))
	s.UpsertFileByIdentity(testWorkingFile(main, "file-b", "beta", "form", "{}", testStart))
	if err := s.TombstoneFile("file-c", testStart.Add(time.Minute)); err != nil {
		t.Fatalf("TombstoneFile() error = %v", err)
	}

	digests, err := s.ListFileDigests(main.ID)
	if err != nil {
		t.Fatalf("ListFileDigests() error = %v", err)
	}
	if len(digests) != 2 {
		t.Fatalf("digest count = %d, want 2", len(digests))
	}
	// Ordered by file id.
	if digests[0].FileID != "file-a" || digests[1].FileID != "file-b" {
		t.Errorf("digest order = %s, %s, want file-a, file-b", digests[0].FileID, digests[1].FileID)
	}
	if digests[0].Hash != vc.HashContent([]byte("<a/>")) {
		t.Errorf("digest hash = %s, want the content digest", digests[0].Hash)
	}
}

func TestReconcileFromSource_BuriedExternalID(t *testing.T) {
	s := newTestStore(t)
	main := seedMainBranch(t, s, "proj-1")

	// The external id sits on a tombstoned row: it can no longer be
	// adopted, so the reconciled file gets a fresh id.
	s.UpsertFileByIdentity(testWorkingFile(main, "ext-1", "intake", "form", "{}", testStart))
	if err := s.TombstoneFile("ext-1", testStart.Add(time.Minute)); err != nil {
		t.Fatalf("TombstoneFile() error = %v", err)
	}

	report, err := s.ReconcileFromSource(main.ID, testStart.Add(2*time.Minute), []vc.SourceFile{
		{ID: "ext-1", Name: "intake", Type: "form", Content: []byte("{}")},
	})
	if err != nil {
		t.Fatalf("ReconcileFromSource() error = %v", err)
	}
	if report.Created != 1 || report.Updated != 0 || report.Tombstoned != 0 {
		t.Errorf("report = %+v, want exactly one creation", report)
	}

	files, err := s.ListFiles(main.ID)
	if err != nil {
		t.Fatalf("ListFiles() error = %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("live file count = %d, want 1", len(files))
	}
	if files[0].ID == "ext-1" {
		t.Error("reconcile reused an id held by a tombstoned row")
	}
	if got, err := s.FindFile("ext-1"); err != nil || got != nil {
		t.Errorf("FindFile(ext-1) = %v, %v, want the tombstone to stay hidden", got, err)
	}
}

func TestReconcileFromSource_RenameLandsOnVacatedName(t *testing.T) {
	s := newTestStore(t)
	main := seedMainBranch(t, s, "proj-1")

	// Externally the file named "a" was deleted and "old" renamed onto
	// the vacated name. Resolution goes by identity, so the live row
	// named "a" absorbs the listed content and the row named "old",
	// absent from the listing, is tombstoned. The entry's id points at
	// the other row and must not influence the outcome.
	s.UpsertFileByIdentity(testWorkingFile(main, "ext-old", "old", "bpmn", "<old/>", testStart))
	s.UpsertFileByIdentity(testWorkingFile(main, "ext-a", "a", "bpmn", "<a/>", testStart))

	report, err := s.ReconcileFromSource(main.ID, testStart.Add(time.Minute), []vc.SourceFile{
		{ID: "ext-old", Name: "a", Type: "bpmn", Content: []byte("<old/>")},
	})
	if err != nil {
		t.Fatalf("ReconcileFromSource() error = %v", err)
	}
	if report.Created != 0 || report.Updated != 1 || report.Tombstoned != 1 {
		t.Errorf("report = %+v, want one update and one tombstone", report)
	}

	files, err := s.ListFiles(main.ID)
	if err != nil {
		t.Fatalf("ListFiles() error = %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("live file count = %d, want 1", len(files))
	}
	if files[0].ID != "ext-a" || files[0].Name != "a" {
		t.Errorf("surviving row = %s %q, want ext-a keeping its name", files[0].ID, files[0].Name)
	}
	if string(files[0].Content) != "<old/>" {
		t.Errorf("surviving content = %q, want the listed content", files[0].Content)
	}
}

func TestReconcileFromSource_SwappedNames(t *testing.T) {
	s := newTestStore(t)
	main := seedMainBranch(t, s, "proj-1")

	// Two files swapped names externally, so each listing entry's id
	// points at the opposite row. Matching by identity keeps both rows
	// in place and swaps their contents instead.
	s.UpsertFileByIdentity(testWorkingFile(main, "ext-i", "invoice", "bpmn", "<invoice/>", testStart))
	s.UpsertFileByIdentity(testWorkingFile(main, "ext-r", "refund", "bpmn", "<refund/>", testStart))

	report, err := s.ReconcileFromSource(main.ID, testStart.Add(time.Minute), []vc.SourceFile{
		{ID: "ext-i", Name: "refund", Type: "bpmn", Content: []byte("<invoice/>")},
		{ID: "ext-r", Name: "invoice", Type: "bpmn", Content: []byte("<refund/>")},
	})
	if err != nil {
		t.Fatalf("ReconcileFromSource() error = %v", err)
	}
	if report.Created != 0 || report.Updated != 2 || report.Tombstoned != 0 {
		t.Errorf("report = %+v, want two updates", report)
	}

	files, err := s.ListFiles(main.ID)
	if err != nil {
		t.Fatalf("ListFiles() error = %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("live file count = %d, want 2", len(files))
	}
	if files[0].Name != "invoice" || string(files[0].Content) != "<refund/>" {
		t.Errorf("invoice row content = %q, want the swapped content", files[0].Content)
	}
	if files[1].Name != "refund" || string(files[1].Content) != "<invoice/>" {
		t.Errorf("refund row content = %q, want the swapped content", files[1].Content)
	}
}
