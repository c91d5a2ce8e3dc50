// Package audittest provides an in-memory audit publisher for tests.
package audittest

import (
	"context"
	"sync"

	"veritax/internal/audit"
)

// Recorder collects published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []audit.Event
}

func New() *Recorder { return &Recorder{} }

func (r *Recorder) Publish(_ context.Context, e audit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *Recorder) Close() {}

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []audit.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]audit.Event(nil), r.events...)
}

// Kinds returns the event kinds in publish order.
func (r *Recorder) Kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]string, len(r.events))
	for i, e := range r.events {
		kinds[i] = e.Kind
	}
	return kinds
}
