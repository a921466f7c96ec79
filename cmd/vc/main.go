package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"vc-go/internal/app"
	"vc-go/internal/bundle"
	"vc-go/internal/config"
	"vc-go/internal/encryption"
	"vc-go/internal/model"
	"vc-go/internal/store"
	"vc-go/internal/store/migrations"
	"vc-go/internal/vc"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// readConfig loads the config from the default path.
func readConfig() (*config.Config, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	return cfg, nil
}

// newApp reads the config and creates a VCApp. The caller must defer app.Close().
func newApp() (*app.VCApp, error) {
	cfg, err := readConfig()
	if err != nil {
		return nil, err
	}

	a, err := app.NewVCApp(cfg)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

// promptPassphrase reads a passphrase from the terminal without echoing it.
func promptPassphrase(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(b), nil
}

var rootCmd = &cobra.Command{
	Use:   "vc",
	Short: "Project version control for process diagrams",
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration and export keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		// Create config with defaults
		cfg := config.NewConfig(defaults["base_dir"])

		// Initialize config file
		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		// Generate the export key pair unless one already exists.
		enc, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
		if err != nil {
			return fmt.Errorf("failed to create encryptor: %w", err)
		}
		if !enc.IsConfigured() {
			passphrase, err := promptPassphrase("Passphrase for the export key: ")
			if err != nil {
				return err
			}
			confirm, err := promptPassphrase("Confirm passphrase: ")
			if err != nil {
				return err
			}
			if passphrase != confirm {
				return fmt.Errorf("passphrases do not match")
			}
			if err := enc.Setup(passphrase); err != nil {
				return fmt.Errorf("failed to generate export keys: %w", err)
			}
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir:   %s\n", defaults["base_dir"])
		fmt.Printf("Public Key: %s\n", cfg.Encryption.PublicKeyPath)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Base Dir:  %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:   %s\n", cfg.LogDir)
		fmt.Printf("Log Level: %s\n", cfg.LogLevel)
		fmt.Printf("Database:  %s", cfg.Database.Type)
		if cfg.Database.Type == "sqlite" {
			fmt.Printf(" (%s)", store.DBPath(cfg.Database.DataDir))
		}
		fmt.Println()
		fmt.Printf("Vault:     %s (%s)\n", cfg.Vault.Type, cfg.Vault.Name)
		fmt.Printf("Keys:      %s\n", cfg.Encryption.PublicKeyPath)
		if cfg.Source.Type != "" {
			fmt.Printf("Source:    %s (%s)\n", cfg.Source.Type, cfg.Source.Root)
		}
		return nil
	},
}

// db command
var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Manage the store schema",
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}
		if cfg.Database.Type != "sqlite" {
			return fmt.Errorf("db commands need a sqlite store, config has %q", cfg.Database.Type)
		}

		if err := os.MkdirAll(cfg.Database.DataDir, 0755); err != nil {
			return fmt.Errorf("creating data dir: %w", err)
		}
		db, err := store.OpenConnection(store.DBPath(cfg.Database.DataDir))
		if err != nil {
			return fmt.Errorf("opening store: %w", err)
		}
		defer db.Close()

		if err := migrations.MigrateUp(db); err != nil {
			return fmt.Errorf("migrating store: %w", err)
		}

		fmt.Println("Store schema is up to date.")
		return nil
	},
}

var dbStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "View schema status",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}
		if cfg.Database.Type != "sqlite" {
			return fmt.Errorf("db commands need a sqlite store, config has %q", cfg.Database.Type)
		}

		db, err := store.OpenConnection(store.DBPath(cfg.Database.DataDir))
		if err != nil {
			return fmt.Errorf("opening store: %w", err)
		}
		defer db.Close()

		if err := migrations.CheckStoreMigrationStatus(db); err != nil {
			fmt.Printf("Schema: %v\n", err)
			fmt.Println("Run `vc db migrate` to apply pending migrations.")
			return nil
		}

		fmt.Println("Schema is up to date.")
		return nil
	},
}

// project command
var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage project version control",
}

var projectInitCmd = &cobra.Command{
	Use:   "init PROJECT_ID",
	Short: "Initialize version control for a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		branch, err := a.Service().InitProject(args[0], userID)
		if err != nil {
			return fmt.Errorf("initializing project: %w", err)
		}

		fmt.Printf("Project %s initialized\n", args[0])
		fmt.Printf("Main branch: %s\n", branch.ID)
		return nil
	},
}

var projectDeleteCmd = &cobra.Command{
	Use:   "delete PROJECT_ID",
	Short: "Delete all version control data for a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Service().DeleteProject(args[0]); err != nil {
			return fmt.Errorf("deleting project: %w", err)
		}

		fmt.Printf("Deleted version control data for project %s\n", args[0])
		return nil
	},
}

// branch command
var branchCmd = &cobra.Command{
	Use:   "branch",
	Short: "Inspect and fork branches",
}

var branchMainCmd = &cobra.Command{
	Use:   "main PROJECT_ID",
	Short: "Show the project's main branch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		branch, err := a.Service().MainBranch(args[0])
		if err != nil {
			return err
		}
		if branch == nil {
			fmt.Println("Project has no version control data.")
			return nil
		}

		fmt.Printf("%s  created %s\n", branch.ID, branch.CreatedAt.Format("2006-01-02 15:04:05"))
		return nil
	},
}

var branchDraftCmd = &cobra.Command{
	Use:   "draft PROJECT_ID",
	Short: "Show the user's draft branch, forking it from main on first use",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		branch, err := a.Service().UserBranch(args[0], userID)
		if err != nil {
			return fmt.Errorf("resolving draft branch: %w", err)
		}

		fmt.Printf("%s  owner %s  created %s\n",
			branch.ID, userID, branch.CreatedAt.Format("2006-01-02 15:04:05"))
		return nil
	},
}

// file command
var fileCmd = &cobra.Command{
	Use:   "file",
	Short: "Manage working-tree files",
}

var fileSaveCmd = &cobra.Command{
	Use:   "save PATH",
	Short: "Save a file into a branch's working tree",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		projectID, _ := cmd.Flags().GetString("project")
		branchID, _ := cmd.Flags().GetString("branch")
		fileID, _ := cmd.Flags().GetString("id")
		folderID, _ := cmd.Flags().GetString("folder")
		name, _ := cmd.Flags().GetString("name")
		fileType, _ := cmd.Flags().GetString("type")

		content, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading %s: %w", args[0], err)
		}
		base := filepath.Base(args[0])
		if name == "" {
			name = strings.TrimSuffix(base, filepath.Ext(base))
		}
		if fileType == "" {
			fileType = strings.TrimPrefix(filepath.Ext(base), ".")
		}

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		params := vc.SaveFileParams{
			BranchID:  branchID,
			ProjectID: projectID,
			FileID:    fileID,
			Name:      name,
			Type:      fileType,
			Content:   content,
		}
		if folderID != "" {
			params.FolderID = &folderID
		}

		saved, err := a.Service().SaveFile(params)
		if err != nil {
			return fmt.Errorf("saving file: %w", err)
		}

		fmt.Printf("Saved %s.%s\n", saved.Name, saved.Type)
		fmt.Printf("File ID: %s\n", saved.ID)
		fmt.Printf("Digest:  %s\n", saved.ContentHash)
		return nil
	},
}

var fileListCmd = &cobra.Command{
	Use:   "list BRANCH_ID",
	Short: "List a branch's live files",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		folderID, _ := cmd.Flags().GetString("folder")
		topLevel, _ := cmd.Flags().GetBool("top")

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		var q vc.FileQuery
		switch {
		case folderID != "":
			q = vc.FileQuery{ScopeToFolder: true, FolderID: &folderID}
		case topLevel:
			q = vc.FileQuery{ScopeToFolder: true}
		}

		files, err := a.Service().Files(args[0], q)
		if err != nil {
			return err
		}
		if len(files) == 0 {
			fmt.Println("No files found.")
			return nil
		}

		for _, f := range files {
			folder := "-"
			if f.FolderID != nil {
				folder = *f.FolderID
			}
			fmt.Printf("%s  %-30s  %s  %s\n", f.ID, f.Name+"."+f.Type, f.ContentHash[:12], folder)
		}
		return nil
	},
}

var fileDeleteCmd = &cobra.Command{
	Use:   "delete FILE_ID",
	Short: "Delete a file from its working tree",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Service().DeleteFile(args[0]); err != nil {
			return fmt.Errorf("deleting file: %w", err)
		}

		fmt.Printf("Deleted file %s\n", args[0])
		return nil
	},
}

// folder command
var folderCmd = &cobra.Command{
	Use:   "folder",
	Short: "Manage working-tree folders",
}

var folderAddCmd = &cobra.Command{
	Use:   "add NAME",
	Short: "Create a folder in a branch's working tree",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		projectID, _ := cmd.Flags().GetString("project")
		branchID, _ := cmd.Flags().GetString("branch")
		parentID, _ := cmd.Flags().GetString("parent")

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		var parent *string
		if parentID != "" {
			parent = &parentID
		}

		folder, err := a.Service().EnsureFolder(branchID, projectID, parent, args[0])
		if err != nil {
			return fmt.Errorf("creating folder: %w", err)
		}

		fmt.Printf("Folder %s\n", folder.Name)
		fmt.Printf("Folder ID: %s\n", folder.ID)
		return nil
	},
}

var folderListCmd = &cobra.Command{
	Use:   "list BRANCH_ID",
	Short: "List a branch's live folders",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		folders, err := a.Service().Folders(args[0])
		if err != nil {
			return err
		}
		if len(folders) == 0 {
			fmt.Println("No folders found.")
			return nil
		}

		for _, f := range folders {
			parent := "-"
			if f.ParentID != nil {
				parent = *f.ParentID
			}
			fmt.Printf("%s  %-30s  parent: %s\n", f.ID, f.Name, parent)
		}
		return nil
	},
}

// commit command
var commitCmd = &cobra.Command{
	Use:   "commit",
	Short: "Create and inspect commits",
}

var commitCreateCmd = &cobra.Command{
	Use:   "create BRANCH_ID",
	Short: "Freeze the branch's working tree as a new commit",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")
		message, _ := cmd.Flags().GetString("message")
		markPushed, _ := cmd.Flags().GetBool("mark-pushed")

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		commit, err := a.Service().Commit(args[0], userID, message, vc.CommitOptions{MarkPushed: markPushed})
		if err != nil {
			return fmt.Errorf("creating commit: %w", err)
		}

		snapshots, err := a.Service().CommitSnapshots(commit.ID)
		if err != nil {
			return err
		}
		var added, modified, deleted int
		for _, s := range snapshots {
			switch s.ChangeType {
			case model.ChangeAdded:
				added++
			case model.ChangeModified:
				modified++
			case model.ChangeDeleted:
				deleted++
			}
		}

		fmt.Printf("Commit %s\n", commit.ID)
		fmt.Printf("%d file(s): %d added, %d modified, %d deleted\n",
			len(snapshots), added, modified, deleted)
		return nil
	},
}

var commitLogCmd = &cobra.Command{
	Use:   "log BRANCH_ID",
	Short: "View a branch's commit history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		commits, err := a.Service().Commits(args[0], limit)
		if err != nil {
			return err
		}
		if len(commits) == 0 {
			fmt.Println("No commits.")
			return nil
		}

		system := color.New(color.FgCyan).SprintFunc()
		for _, c := range commits {
			// Pad before coloring so escape codes don't skew the column.
			source := fmt.Sprintf("%-6s", string(c.Source))
			if c.Source == model.CommitSourceSystem {
				source = system(source)
			}
			fmt.Printf("%s  %s  %s  %-10s  %s\n",
				c.ID,
				c.CreatedAt.Format("2006-01-02 15:04:05"),
				source,
				c.AuthorUserID,
				c.Message,
			)
		}
		return nil
	},
}

var commitShowCmd = &cobra.Command{
	Use:   "show COMMIT_ID",
	Short: "View a commit's snapshot set",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		snapshots, err := a.Service().CommitSnapshots(args[0])
		if err != nil {
			return err
		}
		if len(snapshots) == 0 {
			fmt.Println("Empty commit.")
			return nil
		}

		green := color.New(color.FgGreen).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()

		for _, s := range snapshots {
			var marker string
			switch s.ChangeType {
			case model.ChangeAdded:
				marker = green("A")
			case model.ChangeModified:
				marker = yellow("M")
			case model.ChangeDeleted:
				marker = red("D")
			default:
				marker = " "
			}
			fmt.Printf("%s  %-30s  %s  %d bytes\n",
				marker, s.Name+"."+s.Type, s.ContentHash[:12], len(s.Content))
		}
		return nil
	},
}

// merge command
var mergeCmd = &cobra.Command{
	Use:   "merge DRAFT_BRANCH_ID",
	Short: "Merge a draft branch into its project's main branch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		projectID, _ := cmd.Flags().GetString("project")
		userID, _ := cmd.Flags().GetString("user")

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := a.Service().MergeToMain(args[0], projectID, userID)
		if err != nil {
			return fmt.Errorf("merging: %w", err)
		}

		fmt.Printf("Merge commit: %s\n", result.MergeCommitID)
		fmt.Printf("%d file(s) changed\n", result.FilesChanged)
		return nil
	},
}

// sync command
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Manage remote sync state",
}

var syncSetupCmd = &cobra.Command{
	Use:   "setup PROJECT_ID",
	Short: "Link a branch to a remote repository",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		remoteURL, _ := cmd.Flags().GetString("remote")
		remoteBranch, _ := cmd.Flags().GetString("remote-branch")
		branchID, _ := cmd.Flags().GetString("branch")

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		svc := a.Service()
		if branchID == "" {
			main, err := svc.MainBranch(args[0])
			if err != nil {
				return err
			}
			if main == nil {
				return fmt.Errorf("project %s has no version control data", args[0])
			}
			branchID = main.ID
		}

		state, err := svc.SetupRemoteSync(args[0], branchID, remoteURL, remoteBranch)
		if err != nil {
			return fmt.Errorf("configuring remote sync: %w", err)
		}

		fmt.Printf("Remote %s (branch %s) linked to branch %s\n",
			state.RemoteURL, state.RemoteBranch, state.BranchID)
		return nil
	},
}

var syncStatusCmd = &cobra.Command{
	Use:   "status PROJECT_ID",
	Short: "View push baseline and uncommitted changes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		svc := a.Service()
		main, err := svc.MainBranch(args[0])
		if err != nil {
			return err
		}
		if main == nil {
			fmt.Println("Project has no version control data.")
			return nil
		}

		state, err := svc.RemoteSyncState(args[0], main.ID)
		if err != nil {
			return err
		}
		if state == nil {
			fmt.Println("No remote configured.")
		} else {
			fmt.Printf("Remote:      %s (branch %s)\n", state.RemoteURL, state.RemoteBranch)
			if state.LastPushedCommitID != nil {
				fmt.Printf("Last pushed: %s\n", *state.LastPushedCommitID)
			} else {
				fmt.Println("Last pushed: (never)")
			}
		}

		ids, err := svc.UncommittedFileIDs(args[0])
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			fmt.Printf("Status:      %s\n", color.New(color.FgGreen).Sprint("clean"))
			return nil
		}

		fmt.Printf("Status:      %s\n",
			color.New(color.FgYellow).Sprintf("%d file(s) not pushed", len(ids)))
		for _, id := range ids {
			fmt.Printf("  %s\n", id)
		}
		return nil
	},
}

var syncMarkPushedCmd = &cobra.Command{
	Use:   "mark-pushed PROJECT_ID COMMIT_ID",
	Short: "Record that a commit has been pushed to the remote",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Service().UpdateLastPushCommit(args[0], args[1]); err != nil {
			return fmt.Errorf("advancing push baseline: %w", err)
		}

		fmt.Printf("Push baseline advanced to %s\n", args[1])
		return nil
	},
}

var syncPullCmd = &cobra.Command{
	Use:   "pull PROJECT_ID",
	Short: "Reconcile a branch's working tree against the live file listing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")
		branchID, _ := cmd.Flags().GetString("branch")
		dir, _ := cmd.Flags().GetString("dir")

		cfg, err := readConfig()
		if err != nil {
			return err
		}
		if dir != "" {
			cfg.Source = config.SourceConfig{Type: "dir", Root: dir}
		}

		a, err := app.NewVCApp(cfg)
		if err != nil {
			return fmt.Errorf("initializing app: %w", err)
		}
		defer a.Close()

		svc := a.Service()
		if branchID == "" {
			main, err := svc.MainBranch(args[0])
			if err != nil {
				return err
			}
			if main == nil {
				return fmt.Errorf("project %s has no version control data", args[0])
			}
			branchID = main.ID
		}

		report, err := svc.SyncFromSource(args[0], userID, branchID)
		if err != nil {
			return fmt.Errorf("reconciling working tree: %w", err)
		}

		fmt.Printf("%d created, %d updated, %d tombstoned\n",
			report.Created, report.Updated, report.Tombstoned)
		return nil
	},
}

// export command
var exportCmd = &cobra.Command{
	Use:   "export COMMIT_ID",
	Short: "Package a commit as a bundle in the vault",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		encrypt, _ := cmd.Flags().GetBool("encrypt")

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := a.Service().ExportCommit(args[0], vc.ExportOptions{Encrypt: encrypt})
		if err != nil {
			return fmt.Errorf("exporting commit: %w", err)
		}

		fmt.Printf("Exported %d file(s) to %s (%d bytes)\n", result.Files, result.Key, result.Size)
		return nil
	},
}

// bundle command
var bundleCmd = &cobra.Command{
	Use:   "bundle",
	Short: "Inspect export bundles",
}

var bundleInfoCmd = &cobra.Command{
	Use:   "info KEY",
	Short: "View a bundle's manifest",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		var raw bytes.Buffer
		if err := a.Vault().GetObject(args[0], &raw); err != nil {
			return fmt.Errorf("fetching bundle: %w", err)
		}

		data := raw.Bytes()
		if strings.HasSuffix(args[0], ".age") {
			passphrase, err := promptPassphrase("Passphrase for the export key: ")
			if err != nil {
				return err
			}
			dctx, err := a.Encryptor().Unlock(passphrase)
			if err != nil {
				return fmt.Errorf("unlocking private key: %w", err)
			}
			var plain bytes.Buffer
			if err := dctx.Decrypt(bytes.NewReader(data), &plain); err != nil {
				return fmt.Errorf("decrypting bundle: %w", err)
			}
			data = plain.Bytes()
		}

		b, err := bundle.Read(bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("reading bundle: %w", err)
		}

		m := b.Manifest
		fmt.Printf("Project:   %s\n", m.ProjectID)
		fmt.Printf("Branch:    %s\n", m.BranchID)
		fmt.Printf("Commit:    %s\n", m.CommitID)
		fmt.Printf("Author:    %s\n", m.AuthorUserID)
		fmt.Printf("Committed: %s\n", m.CommittedAt.Format("2006-01-02 15:04:05"))
		if m.Message != "" {
			fmt.Printf("Message:   %s\n", m.Message)
		}
		fmt.Printf("\n%d file(s):\n", len(b.Files))
		for _, f := range b.Files {
			fmt.Printf("  %-30s  %s  %d bytes\n", f.Name+"."+f.Type, f.ContentHash[:12], f.Size)
		}
		return nil
	},
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)

	// db subcommands
	dbCmd.AddCommand(dbMigrateCmd)
	dbCmd.AddCommand(dbStatusCmd)

	// project subcommands
	projectCmd.AddCommand(projectInitCmd)
	projectInitCmd.Flags().StringP("user", "u", "", "Acting user id")
	projectCmd.AddCommand(projectDeleteCmd)

	// branch subcommands
	branchCmd.AddCommand(branchMainCmd)
	branchCmd.AddCommand(branchDraftCmd)
	branchDraftCmd.Flags().StringP("user", "u", "", "Draft owner user id")

	// file subcommands
	fileCmd.AddCommand(fileSaveCmd)
	fileSaveCmd.Flags().StringP("project", "p", "", "Project id")
	fileSaveCmd.Flags().StringP("branch", "b", "", "Branch id")
	fileSaveCmd.Flags().String("id", "", "Existing file id to update in place")
	fileSaveCmd.Flags().String("folder", "", "Folder id")
	fileSaveCmd.Flags().String("name", "", "File name (defaults to the path's base name)")
	fileSaveCmd.Flags().String("type", "", "File type (defaults to the path's extension)")
	fileCmd.AddCommand(fileListCmd)
	fileListCmd.Flags().String("folder", "", "List only this folder's files")
	fileListCmd.Flags().Bool("top", false, "List only top-level files")
	fileCmd.AddCommand(fileDeleteCmd)

	// folder subcommands
	folderCmd.AddCommand(folderAddCmd)
	folderAddCmd.Flags().StringP("project", "p", "", "Project id")
	folderAddCmd.Flags().StringP("branch", "b", "", "Branch id")
	folderAddCmd.Flags().String("parent", "", "Parent folder id")
	folderCmd.AddCommand(folderListCmd)

	// commit subcommands
	commitCmd.AddCommand(commitCreateCmd)
	commitCreateCmd.Flags().StringP("user", "u", "", "Author user id")
	commitCreateCmd.Flags().StringP("message", "m", "", "Commit message")
	commitCreateCmd.Flags().Bool("mark-pushed", false, "Advance the push baseline to the new commit")
	commitCmd.AddCommand(commitLogCmd)
	commitLogCmd.Flags().IntP("limit", "n", 50, "Maximum number of commits to show")
	commitCmd.AddCommand(commitShowCmd)

	// merge flags
	mergeCmd.Flags().StringP("project", "p", "", "Project id")
	mergeCmd.Flags().StringP("user", "u", "", "Merging user id")

	// sync subcommands
	syncCmd.AddCommand(syncSetupCmd)
	syncSetupCmd.Flags().String("remote", "", "Remote repository URL")
	syncSetupCmd.Flags().String("remote-branch", "", "Remote branch name (defaults to main)")
	syncSetupCmd.Flags().StringP("branch", "b", "", "Branch id (defaults to the project's main branch)")
	syncCmd.AddCommand(syncStatusCmd)
	syncCmd.AddCommand(syncMarkPushedCmd)
	syncCmd.AddCommand(syncPullCmd)
	syncPullCmd.Flags().StringP("user", "u", "", "Acting user id")
	syncPullCmd.Flags().StringP("branch", "b", "", "Branch id (defaults to the project's main branch)")
	syncPullCmd.Flags().String("dir", "", "Read the live file listing from this directory")

	// export flags
	exportCmd.Flags().Bool("encrypt", false, "Encrypt the bundle with the export public key")

	// bundle subcommands
	bundleCmd.AddCommand(bundleInfoCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(dbCmd)
	rootCmd.AddCommand(projectCmd)
	rootCmd.AddCommand(branchCmd)
	rootCmd.AddCommand(fileCmd)
	rootCmd.AddCommand(folderCmd)
	rootCmd.AddCommand(commitCmd)
	rootCmd.AddCommand(mergeCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(bundleCmd)
}
