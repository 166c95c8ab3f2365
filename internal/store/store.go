// Package store defines storage interfaces for persisting and retrieving
// domain objects: historical bars on disk and completed run records in a
// relational database.
package store

import (
	"context"
	"errors"
	"time"

	"tycho/internal/domain"
)

// ErrRunNotFound is returned by GetRun for an unknown run ID.
var ErrRunNotFound = errors.New("run not found")

// BarStore persists and retrieves daily OHLCV bar data.
type BarStore interface {
	// WriteBars persists a batch of bars under the given market.
	WriteBars(ctx context.Context, bars []domain.Bar, market string) error

	// ReadBars returns bars for the given symbol and market within [start, end].
	ReadBars(ctx context.Context, symbol string, market string, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols available in the given market.
	ListSymbols(ctx context.Context, market string) ([]string, error)
}

// RunRecord is one persisted simulation run. Result holds the full run
// outcome as JSON; the scalar columns exist so listings never have to decode
// it.
type RunRecord struct {
	ID          string    `json:"id"`
	Strategy    string    `json:"strategy"`
	CreatedAt   time.Time `json:"created_at"`
	State       string    `json:"state"`
	FailReason  string    `json:"fail_reason,omitempty"`
	StartDate   string    `json:"start_date,omitempty"`
	EndDate     string    `json:"end_date,omitempty"`
	FinalEquity float64   `json:"final_equity"`
	Result      []byte    `json:"-"`
}

// RunStore persists and retrieves completed simulation runs.
type RunStore interface {
	// SaveRun inserts a run record. Run IDs are unique; saving an existing ID
	// fails.
	SaveRun(ctx context.Context, rec *RunRecord) error

	// GetRun retrieves a single run by ID, including its result payload.
	// Returns ErrRunNotFound for unknown IDs.
	GetRun(ctx context.Context, id string) (*RunRecord, error)

	// ListRuns returns up to limit run records, newest first, without result
	// payloads.
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)

	// DeleteRun removes a run by ID. Deleting an unknown ID returns
	// ErrRunNotFound.
	DeleteRun(ctx context.Context, id string) error
}
