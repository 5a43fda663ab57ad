package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/steveyegge/analyst/internal/types"
)

// SessionExt is appended to session file names that lack it
const SessionExt = ".json"

// ConversationEntry is one line of user input in an interactive session
type ConversationEntry struct {
	Timestamp time.Time `json:"timestamp"`
	UserInput string    `json:"user_input"`
	Type      string    `json:"type"` // always "user" for now
}

// DatasetInfo describes the dataset a session was working on
type DatasetInfo struct {
	Path          string    `json:"path,omitempty"`
	UploadedAt    time.Time `json:"uploaded_at"`
	AnalysisReady bool      `json:"analysis_ready"`
}

// Session is the on-disk form of an interactive session
type Session struct {
	Timestamp       time.Time               `json:"timestamp"`
	DatasetInfo     *DatasetInfo            `json:"dataset_info,omitempty"`
	AnalysisContext string                  `json:"analysis_context"`
	History         []types.IterationRecord `json:"session_history"`
	ConversationLog []ConversationEntry     `json:"conversation_log"`
}

// SessionFileName normalizes a user-supplied session name. An empty name
// becomes session_<YYYYMMDD_HHMMSS>.json.
func SessionFileName(name string, now time.Time) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "session_" + now.Format("20060102_150405")
	}
	if !strings.HasSuffix(name, SessionExt) {
		name += SessionExt
	}
	return name
}

// SaveSession writes s to path as indented JSON
func SaveSession(path string, s *Session) error {
	if s.Timestamp.IsZero() {
		s.Timestamp = time.Now()
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	return nil
}

// LoadSession reads a session file. A missing file yields ErrNotFound.
func LoadSession(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("session file %s: %w", path, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse session file %s: %w", path, err)
	}
	return &s, nil
}
