// Package storage persists analysis sessions and run history.
package storage

import (
	"context"
	"errors"

	"github.com/steveyegge/analyst/internal/events"
	"github.com/steveyegge/analyst/internal/types"
)

// ErrNotFound is returned when a requested run does not exist
var ErrNotFound = errors.New("not found")

// RunStore records finished analysis runs
type RunStore interface {
	// SaveRun stores a run summary with its executed steps and events.
	// Saving a run ID twice replaces the earlier copy.
	SaveRun(ctx context.Context, summary *types.RunSummary, evts []*events.Event) error

	// GetRun returns the run with its records, or ErrNotFound
	GetRun(ctx context.Context, id string) (*types.RunSummary, error)

	// ListRuns returns up to limit runs, newest first, without records
	ListRuns(ctx context.Context, limit int) ([]*types.RunSummary, error)

	// GetEvents returns a run's events in the order they happened
	GetEvents(ctx context.Context, runID string) ([]*events.Event, error)

	Close() error
}
