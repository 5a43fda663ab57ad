package sandbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"
)

// DatasetName is the name every dataset is uploaded under. Prompts tell the
// model to read this file.
const DatasetName = "data.csv"

var (
	// ErrNoSession is returned when operating on a nil or closed session
	ErrNoSession = errors.New("no sandbox session")

	// ErrEmptyDataset is returned when the dataset file has no content
	ErrEmptyDataset = errors.New("dataset file is empty")
)

// Session owns one executor and remembers the dataset last uploaded to it,
// so that a replacement session can be primed with the same data.
type Session struct {
	exec        Executor
	datasetPath string
	createdAt   time.Time
	closed      bool
}

// NewSession wraps exec.
func NewSession(exec Executor) *Session {
	return &Session{exec: exec, createdAt: time.Now()}
}

// ID returns the sandbox identifier, or "" for a nil session.
func (s *Session) ID() string {
	if s == nil || s.exec == nil {
		return ""
	}
	return s.exec.ID()
}

// CreatedAt returns when the session was opened.
func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

// DatasetPath returns the local path of the last uploaded dataset.
func (s *Session) DatasetPath() string {
	if s == nil {
		return ""
	}
	return s.datasetPath
}

// Run executes code in the sandbox.
func (s *Session) Run(ctx context.Context, code string) (*Execution, error) {
	if s == nil || s.exec == nil || s.closed {
		return nil, ErrNoSession
	}
	return s.exec.Run(ctx, code)
}

// UploadDataset uploads data as DatasetName and records path as its origin.
func (s *Session) UploadDataset(ctx context.Context, path string, data []byte) error {
	if s == nil || s.exec == nil || s.closed {
		return ErrNoSession
	}
	if len(data) == 0 {
		return fmt.Errorf("%s: %w", path, ErrEmptyDataset)
	}
	if err := s.exec.Upload(ctx, DatasetName, data); err != nil {
		return fmt.Errorf("failed to upload dataset %s: %w", path, err)
	}
	s.datasetPath = path
	return nil
}

// LoadDataset reads the file at path and uploads it.
func (s *Session) LoadDataset(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read dataset: %w", err)
	}
	return s.UploadDataset(ctx, path, data)
}

// Reupload uploads the recorded dataset again. It is a no-op when no
// dataset was ever uploaded.
func (s *Session) Reupload(ctx context.Context) error {
	if s.DatasetPath() == "" {
		return nil
	}
	return s.LoadDataset(ctx, s.datasetPath)
}

// Close releases the sandbox. Closing twice is a no-op.
func (s *Session) Close(ctx context.Context) error {
	if s == nil || s.exec == nil || s.closed {
		return nil
	}
	s.closed = true
	return s.exec.Close(ctx)
}
