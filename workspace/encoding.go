package workspace

import (
	"sync"

	"vidconv/task"
)

// FileError is a file that failed during an encoding run.
type FileError struct {
	Filename string `json:"filename"`
	Error    string `json:"error"`
}

// EncodingSnapshot is a copy of the encoding state.
type EncodingSnapshot struct {
	IsEncoding     bool           `json:"isEncoding"`
	Progress       *task.Progress `json:"progress,omitempty"`
	CompletedFiles []string       `json:"completedFiles"`
	Errors         []FileError    `json:"errors"`
}

// EncodingState tracks the current encoding run.
type EncodingState struct {
	mu        sync.RWMutex
	encoding  bool
	progress  *task.Progress
	completed []string
	errors    []FileError
}

func NewEncodingState() *EncodingState {
	return &EncodingState{}
}

// Start clears results from a previous run and marks encoding as active.
func (s *EncodingState) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.encoding = true
	s.progress = nil
	s.completed = nil
	s.errors = nil
}

func (s *EncodingState) UpdateProgress(p task.Progress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress = &p
}

func (s *EncodingState) FileCompleted(filename string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed = append(s.completed, filename)
}

func (s *EncodingState) FileError(filename, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, FileError{Filename: filename, Error: msg})
}

// Stop marks encoding as finished. The last progress and the results stay
// available for display until the next Start or Reset.
func (s *EncodingState) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.encoding = false
}

// Reset returns to the idle state and drops all results.
func (s *EncodingState) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.encoding = false
	s.progress = nil
	s.completed = nil
	s.errors = nil
}

func (s *EncodingState) IsEncoding() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.encoding
}

func (s *EncodingState) CompletedCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.completed)
}

func (s *EncodingState) ErrorCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.errors)
}

func (s *EncodingState) Snapshot() EncodingSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := EncodingSnapshot{
		IsEncoding:     s.encoding,
		CompletedFiles: append([]string{}, s.completed...),
		Errors:         append([]FileError{}, s.errors...),
	}
	if s.progress != nil {
		p := *s.progress
		snap.Progress = &p
	}
	return snap
}
