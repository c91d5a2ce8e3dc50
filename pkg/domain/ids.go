// Package domain holds typed identifiers shared across modules.
//
// IDs are UUID-backed value types so that a run ID can never be passed where
// another identifier is expected. Keep this package free of service
// dependencies.
package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// RunID identifies one validation run.
type RunID struct {
	uuid.UUID
}

// NewRunID generates a fresh run identifier.
func NewRunID() RunID {
	return RunID{uuid.New()}
}

// ParseRunID parses a run ID from its string form.
func ParseRunID(s string) (RunID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return RunID{}, fmt.Errorf("parse run id: %w", err)
	}
	return RunID{u}, nil
}

// IsNil reports whether the ID is the zero value.
func (id RunID) IsNil() bool {
	return id.UUID == uuid.Nil
}

func (id RunID) String() string {
	return id.UUID.String()
}
