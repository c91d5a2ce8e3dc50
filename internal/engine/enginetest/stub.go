// Package enginetest provides an instrumented in-memory engine for tests.
//
// The stub reproduces the contract surface the orchestrator depends on:
// configurable mapped URLs, per-document fact and concept inventories,
// simulated remote fetches through the configured transport (so offline
// guard behavior can be exercised), and re-entrancy instrumentation that
// records any overlapping engine call.
package enginetest

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"veritax/internal/engine"
)

// DocSpec scripts the stub's behavior for one document path.
type DocSpec struct {
	Facts      int
	Undefined  int
	Concepts   []engine.Concept
	RemoteRefs []string // URLs the engine would try to fetch while loading
	FailLoad   bool
	LoadDelay  time.Duration
	Report     engine.Report
}

// Stub is an instrumented engine.Engine implementation.
type Stub struct {
	mu       sync.Mutex
	mapped   map[string]string
	docs     map[string]DocSpec
	fallback *DocSpec

	transport http.RoundTripper

	inFlight   atomic.Int32
	violations []string
	calls      []string
}

func init() {
	// The stub doubles as the development binding so the binaries run
	// without a real engine attached.
	engine.Register("stub", func(cfg engine.Config) (engine.Engine, error) {
		return New(cfg.Transport), nil
	})
}

// New builds a stub using the given transport for simulated fetches.
func New(transport http.RoundTripper) *Stub {
	return &Stub{
		mapped:    make(map[string]string),
		docs:      make(map[string]DocSpec),
		transport: transport,
	}
}

// MapURL scripts the engine's native package mapper.
func (s *Stub) MapURL(url, local string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mapped[url] = local
}

// AddDoc scripts the load behavior for a document path.
func (s *Stub) AddDoc(path string, spec DocSpec) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[path] = spec
}

// Calls returns the recorded engine call sequence.
func (s *Stub) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// Violations returns descriptions of overlapping engine calls. The engine
// under test is not safe for concurrent use; a serialized orchestrator must
// leave this empty.
func (s *Stub) Violations() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.violations...)
}

func (s *Stub) enter(op string) func() {
	if n := s.inFlight.Add(1); n != 1 {
		s.mu.Lock()
		s.violations = append(s.violations, fmt.Sprintf("%s entered with %d calls in flight", op, n))
		s.mu.Unlock()
	}
	s.mu.Lock()
	s.calls = append(s.calls, op)
	s.mu.Unlock()
	return func() { s.inFlight.Add(-1) }
}

// SetFallback scripts the behavior for paths not registered via AddDoc.
// Useful when the code under test loads generated temp copies whose names
// are not known in advance.
func (s *Stub) SetFallback(spec DocSpec) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fallback = &spec
}

// OpenSource implements engine.Engine.
func (s *Stub) OpenSource(path string) (engine.Source, error) {
	s.mu.Lock()
	_, known := s.docs[path]
	hasFallback := s.fallback != nil
	s.mu.Unlock()
	if !known && !hasFallback {
		return nil, fmt.Errorf("enginetest: unknown document %s", path)
	}
	return &stubSource{path: path}, nil
}

// Load implements engine.Engine. Remote references that the native mapper
// does not claim go through the transport, which is how the offline guard
// sees engine-initiated fetches. Fetch failures do not abort the load; the
// engine degrades to partial discovery exactly like the real one.
func (s *Stub) Load(ctx context.Context, src engine.Source, packages []string) (engine.Model, error) {
	defer s.enter("load:" + src.Path())()

	s.mu.Lock()
	spec, known := s.docs[src.Path()]
	if !known && s.fallback != nil {
		spec = *s.fallback
	}
	s.mu.Unlock()

	if spec.LoadDelay > 0 {
		select {
		case <-time.After(spec.LoadDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if spec.FailLoad {
		return nil, fmt.Errorf("enginetest: scripted load failure for %s", src.Path())
	}

	for _, ref := range spec.RemoteRefs {
		if s.IsMappedURL(ref) {
			continue
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
		if err != nil {
			continue
		}
		if resp, err := s.transport.RoundTrip(req); err == nil {
			resp.Body.Close()
		}
	}

	m := &stubModel{
		facts:     spec.Facts,
		undefined: spec.Undefined,
		report:    spec.Report,
		concepts:  make(map[engine.ConceptName]engine.Concept, len(spec.Concepts)),
	}
	for _, c := range spec.Concepts {
		m.order = append(m.order, c.Name)
		m.concepts[c.Name] = c
	}
	return m, nil
}

// Validate implements engine.Engine.
func (s *Stub) Validate(ctx context.Context, m engine.Model, opts engine.ValidateOptions) (*engine.Report, error) {
	defer s.enter("validate")()

	sm, ok := m.(*stubModel)
	if !ok {
		return nil, fmt.Errorf("enginetest: foreign model %T", m)
	}
	if sm.closed {
		return nil, fmt.Errorf("enginetest: validate on released model")
	}
	report := sm.report
	if !opts.Formulas {
		// Formula findings are suppressed when formulas are off.
		report = engine.Report{Errors: report.Errors}
	}
	return &report, nil
}

// IsMappedURL implements engine.Engine.
func (s *Stub) IsMappedURL(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.mapped[url]
	return ok
}

// MappedURL implements engine.Engine.
func (s *Stub) MappedURL(url string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mapped[url]
}

// Close implements engine.Engine.
func (s *Stub) Close() error { return nil }

type stubSource struct {
	path string
}

func (s *stubSource) Path() string { return s.path }
func (s *stubSource) Close() error { return nil }

type stubModel struct {
	facts     int
	undefined int
	order     []engine.ConceptName
	concepts  map[engine.ConceptName]engine.Concept
	report    engine.Report
	closed    bool
}

func (m *stubModel) FactCount() int          { return m.facts }
func (m *stubModel) UndefinedFactCount() int { return m.undefined }

func (m *stubModel) Concepts() []engine.Concept {
	out := make([]engine.Concept, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.concepts[name])
	}
	return out
}

func (m *stubModel) HasConcept(name engine.ConceptName) bool {
	_, ok := m.concepts[name]
	return ok
}

func (m *stubModel) DefineConcept(c engine.Concept) bool {
	if _, exists := m.concepts[c.Name]; exists {
		return false
	}
	m.order = append(m.order, c.Name)
	m.concepts[c.Name] = c
	return true
}

func (m *stubModel) Close() error {
	m.closed = true
	return nil
}
