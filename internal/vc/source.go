package vc

// SourceFile is one entry of the externally-maintained live file
// listing the engine reconciles working trees against. The embedding
// application owns the listing; ids are its canonical file ids.
type SourceFile struct {
	ID         string
	FolderPath string // "/"-separated, "" = top level
	Name       string
	Type       string
	Content    []byte
}

// FileSource supplies the current live file listing for a project.
// Implementations typically read the application's primary database.
type FileSource interface {
	ListProjectFiles(projectID string) ([]SourceFile, error)
}
