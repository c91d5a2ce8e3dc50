package validation

import (
	"context"

	"veritax/pkg/domain"
)

// RunStore persists validation run records.
type RunStore interface {
	// Create inserts a new run record.
	Create(ctx context.Context, run Run) error
	// Update replaces the stored record for run.ID.
	Update(ctx context.Context, run Run) error
	// Get returns the run by ID, or CodeNotFound.
	Get(ctx context.Context, id domain.RunID) (Run, error)
}
