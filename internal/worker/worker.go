// Package worker isolates engine work from the serving process.
//
// A validation run is expressed as a Task and executed through a Pool.
// LocalPool runs the task in-process; ProcPool spawns a fresh single-use
// child process per task, so an engine crash or leak dies with the child
// instead of the server. Both pools admit one task at a time; raising the
// limit later does not change the request contract.
package worker

import (
	"time"

	"veritax/internal/engine"
	"veritax/internal/inject"
	"veritax/internal/offline"
	"veritax/internal/preload"
)

// Task describes one load+validate run. It is JSON-encoded on the
// subprocess boundary.
type Task struct {
	RunID                string   `json:"run_id"`
	InstancePath         string   `json:"instance_path"`
	Profile              string   `json:"profile"`
	CacheDir             string   `json:"cache_dir,omitempty"`
	DTSFirstSchemas      []string `json:"dts_first_schemas,omitempty"`
	AllowInstanceRewrite bool     `json:"allow_instance_rewrite,omitempty"`
}

// Run statuses.
const (
	StatusValid            = "valid"
	StatusInvalid          = "invalid"
	StatusLoadFailed       = "load-failed"
	StatusOfflineViolation = "offline-violation"
)

// Result is the outcome of one task. Stage names the furthest pipeline
// stage the run reached, so a failed run's record shows where it stopped.
type Result struct {
	Status             string               `json:"status"`
	Stage              string               `json:"stage"`
	Error              string               `json:"error,omitempty"`
	FactCount          int                  `json:"fact_count"`
	UndefinedFactCount int                  `json:"undefined_fact_count"`
	Errors             []engine.Finding     `json:"errors,omitempty"`
	Warnings           []engine.Finding     `json:"warnings,omitempty"`
	Preload            []preload.Provenance `json:"preload,omitempty"`
	Injection          *inject.Record       `json:"injection,omitempty"`
	OfflineAttempts    []offline.Attempt    `json:"offline_attempts,omitempty"`
	Duration           time.Duration        `json:"duration_ns"`
}

// Failed reports whether the run produced no trustworthy result.
func (r *Result) Failed() bool {
	return r.Status == StatusLoadFailed || r.Status == StatusOfflineViolation
}
