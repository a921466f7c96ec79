package store

import (
	"errors"
	"testing"
	"time"

	"vc-go/internal/model"
	"vc-go/internal/vc"
)

func TestCreateMainBranch_SecondMainConflicts(t *testing.T) {
	s := newTestStore(t)
	seedMainBranch(t, s, "proj-1")

	second := &model.Branch{ID: "other-main", ProjectID: "proj-1", CreatedAt: testStart}
	initial := &model.Commit{
		ID:           "other-c0",
		BranchID:     second.ID,
		AuthorUserID: "system",
		Message:      "Project initialized",
		Source:       model.CommitSourceSystem,
		CreatedAt:    testStart,
	}
	if err := s.CreateMainBranch(second, initial); !errors.Is(err, vc.ErrMainBranchExists) {
		t.Errorf("CreateMainBranch() error = %v, want ErrMainBranchExists", err)
	}

	// The original row wins and the loser's commit is rolled back.
	main, err := s.FindMainBranch("proj-1")
	if err != nil {
		t.Fatalf("FindMainBranch() error = %v", err)
	}
	if main.ID != "proj-1-main" {
		t.Errorf("FindMainBranch().ID = %s, want proj-1-main", main.ID)
	}
	lost, err := s.FindCommit("other-c0")
	if err != nil {
		t.Fatalf("FindCommit() error = %v", err)
	}
	if lost != nil {
		t.Error("initial commit of the losing branch survived the rollback")
	}
}

func TestForkBranch(t *testing.T) {
	t.Run("remaps the folder hierarchy onto fresh ids", func(t *testing.T) {
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
		nested := testWorkingFile(main, "file-1", "order-flow", "bpmn", "<definitions/>", testStart)
		nested.FolderID = &child.ID
		s.UpsertFileByIdentity(nested)

		draft := &model.Branch{
			ID: "draft-1", ProjectID: "proj-1",
			OwnerUserID: strptr("user-1"), CreatedAt: testStart.Add(time.Minute),
		}
		if err := s.ForkBranch(main.ID, draft); err != nil {
			t.Fatalf("ForkBranch() error = %v", err)
		}

		folders, err := s.ListFolders(draft.ID)
		if err != nil {
			t.Fatalf("ListFolders() error = %v", err)
		}
		if len(folders) != 2 {
			t.Fatalf("draft folder count = %d, want 2", len(folders))
		}
		gotRoot, gotChild := folders[0], folders[1]
		if gotRoot.Name != "flows" || gotChild.Name != "payments" {
			t.Fatalf("draft folders = %s, %s, want flows, payments", gotRoot.Name, gotChild.Name)
		}
		if gotRoot.ID == root.ID || gotChild.ID == child.ID {
			t.Error("fork reused source folder ids")
		}
		if gotRoot.ParentID != nil {
			t.Errorf("copied root ParentID = %v, want nil", *gotRoot.ParentID)
		}
		if gotChild.ParentID == nil || *gotChild.ParentID != gotRoot.ID {
			t.Error("copied child does not point at the copied root")
		}

		files, err := s.ListFiles(draft.ID)
		if err != nil {
			t.Fatalf("ListFiles() error = %v", err)
		}
		if len(files) != 1 {
			t.Fatalf("draft file count = %d, want 1", len(files))
		}
		if files[0].ID == "file-1" {
			t.Error("fork reused the source file id")
		}
		if files[0].FolderID == nil || *files[0].FolderID != gotChild.ID {
			t.Error("copied file does not point at the copied folder")
		}
		if !files[0].CreatedAt.Equal(draft.CreatedAt) {
			t.Errorf("copied file CreatedAt = %v, want fork time %v", files[0].CreatedAt, draft.CreatedAt)
		}
	})

	t.Run("skips tombstoned rows", func(t *testing.T) {
		s := newTestStore(t)
		main := seedMainBranch(t, s, "proj-1")
		s.UpsertFileByIdentity(testWorkingFile(main, "file-1", "kept", "bpmn", "<a/>", testStart))
		s.UpsertFileByIdentity(testWorkingFile(main, "file-2", "gone", "bpmn", "<b/>", testStart))
		if err := s.TombstoneFile("file-2", testStart.Add(time.Minute)); err != nil {
			t.Fatalf("TombstoneFile() error = %v", err)
		}

		draft := &model.Branch{
			ID: "draft-1", ProjectID: "proj-1",
			OwnerUserID: strptr("user-1"), CreatedAt: testStart.Add(2 * time.Minute),
		}
		if err := s.ForkBranch(main.ID, draft); err != nil {
			t.Fatalf("ForkBranch() error = %v", err)
		}

		files, err := s.ListFiles(draft.ID)
		if err != nil {
			t.Fatalf("ListFiles() error = %v", err)
		}
		if len(files) != 1 || files[0].Name != "kept" {
			t.Errorf("draft files = %d, want only the live file", len(files))
		}
	})

	t.Run("second draft for the same user conflicts", func(t *testing.T) {
		s := newTestStore(t)
		main := seedMainBranch(t, s, "proj-1")

		first := &model.Branch{
			ID: "draft-1", ProjectID: "proj-1",
			OwnerUserID: strptr("user-1"), CreatedAt: testStart,
		}
		if err := s.ForkBranch(main.ID, first); err != nil {
			t.Fatalf("ForkBranch() error = %v", err)
		}

		second := &model.Branch{
			ID: "draft-2", ProjectID: "proj-1",
			OwnerUserID: strptr("user-1"), CreatedAt: testStart,
		}
		if err := s.ForkBranch(main.ID, second); !errors.Is(err, vc.ErrDraftBranchExists) {
			t.Errorf("ForkBranch() error = %v, want ErrDraftBranchExists", err)
		}
	})
}

func TestDeleteProject_CascadesAllTables(t *testing.T) {
	s := newTestStore(t)
	main := seedMainBranch(t, s, "proj-1")

	folder, err := s.EnsureFolder(&model.WorkingFolder{
		ID: "fold-1", BranchID: main.ID, ProjectID: "proj-1",
		Name: "flows", CreatedAt: testStart, UpdatedAt: testStart,
	})
	if err != nil {
		t.Fatalf("EnsureFolder() error = %v", err)
	}
	f := testWorkingFile(main, "file-1", "order-flow", "bpmn", "<definitions/>", testStart)
	f.FolderID = &folder.ID
	s.UpsertFileByIdentity(f)

	commit := &model.Commit{
		ID: "c-1", BranchID: main.ID, AuthorUserID: "user-1",
		Message: "first", Source: model.CommitSourceManual,
		CreatedAt: testStart.Add(time.Minute),
	}
	if _, err := s.CreateCommit(commit, false); err != nil {
		t.Fatalf("CreateCommit() error = %v", err)
	}
	if _, err := s.UpsertRemoteSync(&model.RemoteSyncState{
		ID: "rs-1", ProjectID: "proj-1", BranchID: main.ID,
		RemoteURL: "https://git.example.com/proj-1.git", RemoteBranch: "main",
		UpdatedAt: testStart,
	}); err != nil {
		t.Fatalf("UpsertRemoteSync() error = %v", err)
	}
	// A save after the commit leaves a pending marker behind.
	s.UpsertFileByIdentity(testWorkingFile(main, "file-2", "late-save", "form", "{}", testStart.Add(2*time.Minute)))

	other := seedMainBranch(t, s, "proj-2")
	s.UpsertFileByIdentity(testWorkingFile(other, "file-3", "keeper", "bpmn", "<k/>", testStart))

	if err := s.DeleteProject("proj-1"); err != nil {
		t.Fatalf("DeleteProject() error = %v", err)
	}

	counts := []struct {
		table string
		query string
		args  []any
	}{
		{"branches", `SELECT COUNT(*) FROM branches WHERE project_id = ?`, []any{"proj-1"}},
		{"working_folders", `SELECT COUNT(*) FROM working_folders WHERE project_id = ?`, []any{"proj-1"}},
		{"working_files", `SELECT COUNT(*) FROM working_files WHERE project_id = ?`, []any{"proj-1"}},
		{"remote_sync_state", `SELECT COUNT(*) FROM remote_sync_state WHERE project_id = ?`, []any{"proj-1"}},
		{"commits", `SELECT COUNT(*) FROM commits WHERE branch_id = ?`, []any{main.ID}},
		{"file_snapshots", `SELECT COUNT(*) FROM file_snapshots WHERE commit_id IN (?, ?)`, []any{"proj-1-c0", "c-1"}},
		{"pending_changes", `SELECT COUNT(*) FROM pending_changes WHERE branch_id = ?`, []any{main.ID}},
	}
	for _, c := range counts {
		var n int
		if err := s.db.QueryRow(c.query, c.args...).Scan(&n); err != nil {
			t.Fatalf("counting %s: %v", c.table, err)
		}
		if n != 0 {
			t.Errorf("%s rows after delete = %d, want 0", c.table, n)
		}
	}

	// The other project is untouched.
	if b, err := s.FindMainBranch("proj-2"); err != nil || b == nil {
		t.Fatalf("FindMainBranch(proj-2) = %v, %v, want the surviving branch", b, err)
	}
	files, err := s.ListFiles(other.ID)
	if err != nil {
		t.Fatalf("ListFiles() error = %v", err)
	}
	if len(files) != 1 {
		t.Errorf("surviving project file count = %d, want 1", len(files))
	}
}

func TestDeleteProject_Unknown(t *testing.T) {
	s := newTestStore(t)
	if err := s.DeleteProject("ghost"); !errors.Is(err, vc.ErrProjectNotFound) {
		t.Errorf("DeleteProject() error = %v, want ErrProjectNotFound", err)
	}
}
