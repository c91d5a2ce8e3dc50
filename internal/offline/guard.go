// Package offline enforces the no-network invariant.
//
// The guard wraps the HTTP transport handed to the engine. Every attempted
// HTTP(S) fetch is recorded and failed immediately; there is no degraded
// mode that lets one through. At checkpoints the recorded attempts turn an
// otherwise successful run into a hard failure, because the offline
// guarantee is a precondition for trusting the result, not an advisory.
// Filesystem resolution never goes through the transport and so never
// populates the log.
package offline

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	dErrors "veritax/pkg/domain-errors"
)

// Attempt records one blocked fetch.
type Attempt struct {
	URL       string    `json:"url"`
	Context   string    `json:"context"`
	Timestamp time.Time `json:"timestamp"`
}

// Status is a point-in-time snapshot for audit queries.
type Status struct {
	OfflineMode    bool      `json:"offline_mode"`
	FetchAttempts  []Attempt `json:"http_fetch_attempts"`
	PackagesLoaded int       `json:"packages_loaded"`
}

// Guard records and blocks network fetches for one engine session.
// The attempt log is append-only; Reset starts a new session.
type Guard struct {
	mu             sync.Mutex
	attempts       []Attempt
	packagesLoaded int
	logger         *slog.Logger
}

// NewGuard builds a guard. logger may not be nil.
func NewGuard(logger *slog.Logger) *Guard {
	return &Guard{logger: logger}
}

// RoundTrip implements http.RoundTripper. The request never leaves the
// process: the attempt is logged and the call fails.
func (g *Guard) RoundTrip(req *http.Request) (*http.Response, error) {
	url := req.URL.String()
	g.Record(url, "transport")
	return nil, dErrors.Newf(dErrors.CodeOfflineViolation, "offline mode: network fetch blocked for %s", url)
}

// Record appends a fetch attempt observed outside the transport path.
func (g *Guard) Record(url, context string) {
	g.mu.Lock()
	g.attempts = append(g.attempts, Attempt{URL: url, Context: context, Timestamp: time.Now().UTC()})
	g.mu.Unlock()
	g.logger.Warn("http fetch attempt recorded in offline mode", "url", url, "context", context)
}

// Attempts returns a copy of the recorded attempts.
func (g *Guard) Attempts() []Attempt {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Attempt(nil), g.attempts...)
}

// Checkpoint fails when any fetch attempt has been recorded. The error
// carries every attempted URL and is always fatal for the request; it is
// never downgraded to a warning.
func (g *Guard) Checkpoint(stage string) error {
	attempts := g.Attempts()
	if len(attempts) == 0 {
		return nil
	}
	urls := make([]string, len(attempts))
	for i, a := range attempts {
		urls[i] = a.URL
	}
	g.logger.Error("offline violation detected",
		"stage", stage,
		"attempts", len(urls),
		"urls", urls,
	)
	return dErrors.Newf(dErrors.CodeOfflineViolation,
		"offline violation at %s: %d HTTP fetch attempts (%s); check catalog mappings and package paths",
		stage, len(urls), strings.Join(urls, ", "))
}

// SetPackagesLoaded records how many packages the current index carries,
// for status reporting only.
func (g *Guard) SetPackagesLoaded(n int) {
	g.mu.Lock()
	g.packagesLoaded = n
	g.mu.Unlock()
}

// Status returns the audit snapshot. Offline mode is unconditional in this
// design; the field exists so the snapshot is self-describing.
func (g *Guard) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Status{
		OfflineMode:    true,
		FetchAttempts:  append([]Attempt(nil), g.attempts...),
		PackagesLoaded: g.packagesLoaded,
	}
}

// Reset starts a new engine session with an empty attempt log.
func (g *Guard) Reset() {
	g.mu.Lock()
	g.attempts = nil
	g.mu.Unlock()
}
