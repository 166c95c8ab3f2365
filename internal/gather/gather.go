// Package gather defines the interface for historical data gathering
// processes that keep the local bar store current.
package gather

import (
	"context"
	"time"
)

// Gatherer is the interface for all data gathering processes.
type Gatherer interface {
	// Name returns the gatherer identifier.
	Name() string
	// Run performs one gathering pass. It returns once the pass completes or
	// ctx is cancelled.
	Run(ctx context.Context) error
}

// DateRange represents a time range for data fetching.
type DateRange struct {
	Start time.Time
	End   time.Time
}
