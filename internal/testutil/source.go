package testutil

import (
	"sync"

	"vc-go/internal/vc"
)

// StubFileSource serves a fixed live file listing per project.
// Safe for concurrent use.
type StubFileSource struct {
	mu    sync.Mutex
	files map[string][]vc.SourceFile
	err   error
}

// NewStubFileSource creates an empty StubFileSource.
func NewStubFileSource() *StubFileSource {
	return &StubFileSource{files: make(map[string][]vc.SourceFile)}
}

// SetFiles replaces the listing served for a project.
func (s *StubFileSource) SetFiles(projectID string, files []vc.SourceFile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[projectID] = files
}

// SetError makes every subsequent listing call fail with err.
func (s *StubFileSource) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *StubFileSource) ListProjectFiles(projectID string) ([]vc.SourceFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.files[projectID], nil
}

var _ vc.FileSource = (*StubFileSource)(nil)
