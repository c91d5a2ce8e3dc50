// Package validation orchestrates offline validation runs: catalog-backed
// resolution, DTS-first preloading, optional schema-reference injection,
// engine load+validate inside an isolated worker, and the final offline
// check.
package validation

import (
	"time"

	"veritax/internal/resolver"
	"veritax/internal/worker"
	"veritax/pkg/domain"
)

// Run stages, in execution order.
const (
	StageReceived         = "received"
	StagePackagesVerified = "packages-verified"
	StageInstanceLoaded   = "instance-loaded"
	StageValidated        = "validated"
	StageOfflineChecked   = "offline-checked"
	StageResultsReturned  = "results-returned"
)

// ValidateRequest is the domain-level input for one run.
type ValidateRequest struct {
	InstancePath         string
	Profile              string
	DTSFirstSchemas      []string
	AllowInstanceRewrite bool
	CacheDir             string
}

// Run is the persisted record of one validation run.
type Run struct {
	ID           domain.RunID   `json:"id"`
	InstancePath string         `json:"instance_path"`
	Profile      string         `json:"profile"`
	Stage        string         `json:"stage"`
	Status       string         `json:"status"`
	Result       *worker.Result `json:"result,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
}

// Completed reports whether the run reached a terminal state.
func (r Run) Completed() bool {
	return r.CompletedAt != nil
}

// ProbeVariant is the diagnostic outcome for one generated URL variant.
type ProbeVariant struct {
	URL       string `json:"url"`
	Matched   bool   `json:"matched"`
	Prefix    string `json:"prefix,omitempty"`
	LocalPath string `json:"local_path,omitempty"`
	Exists    bool   `json:"exists"`
}

// ProbeResult is the full resolution diagnostic for one URL.
type ProbeResult struct {
	URL        string              `json:"url"`
	Variants   []ProbeVariant      `json:"variants"`
	Resolution resolver.Resolution `json:"resolution"`
}
