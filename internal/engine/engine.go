// Package engine defines the narrow interface to the document-processing
// engine. The engine is a fixed black box: it parses schemas and linkbases,
// evaluates formulas and performs dimensional validation. This module never
// reimplements or second-guesses those semantics; it only hands the engine
// the right bytes from the right place.
//
// Concrete engine bindings register themselves by name; the rest of the
// system depends on nothing beyond the interfaces here.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
)

// ConceptName names a reporting concept by namespace and local name.
type ConceptName struct {
	Namespace string `json:"namespace"`
	Local     string `json:"local"`
}

func (n ConceptName) String() string {
	return "{" + n.Namespace + "}" + n.Local
}

// Concept is a declared reporting item from a taxonomy schema.
type Concept struct {
	Name ConceptName `json:"name"`
	Type string      `json:"type"`
}

// Source is an opened document handle.
type Source interface {
	Path() string
	Close() error
}

// ValidateOptions are the pure feature toggles a validation profile maps to.
type ValidateOptions struct {
	Formulas       bool
	CSVConstraints bool
	Trace          bool
}

// Finding is one engine-reported message.
type Finding struct {
	Code     string   `json:"code"`
	Message  string   `json:"message"`
	Severity string   `json:"severity"`
	Refs     []string `json:"refs,omitempty"`
}

// Report aggregates the engine's validation messages.
type Report struct {
	Errors   []Finding `json:"errors"`
	Warnings []Finding `json:"warnings"`
}

// Model is the loaded document tree. It is exclusively owned by the request
// that created it and must be released on every exit path.
type Model interface {
	// FactCount counts all reported facts, including facts nested in tuples.
	FactCount() int
	// UndefinedFactCount counts facts whose concept could not be resolved.
	UndefinedFactCount() int
	// Concepts lists the concept definitions declared by the loaded
	// documents, in a stable order.
	Concepts() []Concept
	// HasConcept reports whether the model already defines the named concept.
	HasConcept(ConceptName) bool
	// DefineConcept adds a concept definition unless the name is already
	// defined, in which case it reports false and keeps the existing one.
	DefineConcept(Concept) bool
	Close() error
}

// Engine is the full engine surface this module consumes.
type Engine interface {
	// OpenSource opens a document path (plain file or archive member).
	OpenSource(path string) (Source, error)
	// Load builds the document model, discovering the DTS with the given
	// taxonomy packages registered.
	Load(ctx context.Context, src Source, packages []string) (Model, error)
	// Validate runs the engine's validation over a loaded model.
	Validate(ctx context.Context, m Model, opts ValidateOptions) (*Report, error)
	// IsMappedURL reports whether the engine's own package mapping claims
	// the URL (including archive-internal targets).
	IsMappedURL(url string) bool
	// MappedURL rewrites a claimed URL to its engine-local form.
	MappedURL(url string) string
	Close() error
}

// Config carries everything a binding needs to construct an engine.
// Transport is the HTTP transport the engine must use for any fetch; the
// offline guard is installed here so no binding can bypass it.
type Config struct {
	CacheDir  string
	Transport http.RoundTripper
	Logger    *slog.Logger
}

// Factory constructs an engine from a config.
type Factory func(Config) (Engine, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes a binding available under name. Bindings register from
// their package init; re-registering a name panics to surface wiring bugs.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[name]; dup {
		panic(fmt.Sprintf("engine binding %q registered twice", name))
	}
	registry[name] = factory
}

// New constructs the engine registered under name.
func New(name string, cfg Config) (Engine, error) {
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("engine binding %q not registered (known: %v)", name, Bindings())
	}
	return factory(cfg)
}

// Bindings lists the registered binding names, sorted.
func Bindings() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
