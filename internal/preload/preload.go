// Package preload implements DTS-first schema loading.
//
// Some instances omit a mandatory dictionary import, so their facts cannot
// be classified from the instance's own discoverable taxonomy set alone.
// The preloader loads the supplied schemas as independent documents before
// the instance is parsed, collects their concept definitions, and later
// merges them into the instance model. Concepts the instance declares
// itself are never overwritten.
package preload

import (
	"context"
	"log/slog"
	"time"

	"veritax/internal/catalog"
	"veritax/internal/engine"
	"veritax/internal/resolver"
)

// Provenance records the outcome of one schema preload attempt.
type Provenance struct {
	SchemaURL      string    `json:"schema_url"`
	LocalPath      string    `json:"local_path,omitempty"`
	ConceptCount   int       `json:"concept_count,omitempty"`
	LoadDurationMS int64     `json:"load_duration_ms,omitempty"`
	Status         string    `json:"status"`
	Error          string    `json:"error,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// Preload attempt statuses.
const (
	StatusSuccess    = "success"
	StatusUnresolved = "unresolved"
	StatusFailed     = "failed"
)

// Result is what a preload run produced. Partial failure is normal: the
// caller gets whatever concepts were obtainable plus the provenance log.
type Result struct {
	SchemasLoaded int              `json:"schemas_loaded"`
	Concepts      []engine.Concept `json:"-"`
	Provenance    []Provenance     `json:"provenance"`
}

// Preloader loads schemas ahead of instance parsing.
type Preloader struct {
	eng    engine.Engine
	res    *resolver.Resolver
	logger *slog.Logger
}

// New builds a preloader around the given engine and resolver.
func New(eng engine.Engine, res *resolver.Resolver, logger *slog.Logger) *Preloader {
	return &Preloader{eng: eng, res: res, logger: logger}
}

// Preload attempts every schema URL in order. A schema that cannot be
// resolved or loaded is recorded in the provenance log and skipped; the
// run never aborts early. When two schemas declare the same concept name
// the later one wins within the collected set.
func (p *Preloader) Preload(ctx context.Context, schemaURLs []string, idx *catalog.Index, packages []string) *Result {
	result := &Result{}
	collected := make(map[engine.ConceptName]int)

	for _, url := range schemaURLs {
		start := time.Now()
		prov := Provenance{SchemaURL: url, Timestamp: start.UTC()}

		res := p.res.Resolve(url, idx)
		if !res.Resolved() {
			p.logger.Warn("schema unresolved for preload", "url", url)
			prov.Status = StatusUnresolved
			prov.Error = "no catalog mapping found"
			result.Provenance = append(result.Provenance, prov)
			continue
		}
		prov.LocalPath = res.LocalPath

		concepts, err := p.loadConcepts(ctx, res.LocalPath, packages)
		prov.LoadDurationMS = time.Since(start).Milliseconds()
		if err != nil {
			p.logger.Warn("schema preload failed", "url", url, "path", res.LocalPath, "error", err)
			prov.Status = StatusFailed
			prov.Error = err.Error()
			result.Provenance = append(result.Provenance, prov)
			continue
		}

		for _, c := range concepts {
			if i, ok := collected[c.Name]; ok {
				result.Concepts[i] = c
				continue
			}
			collected[c.Name] = len(result.Concepts)
			result.Concepts = append(result.Concepts, c)
		}
		result.SchemasLoaded++
		prov.Status = StatusSuccess
		prov.ConceptCount = len(concepts)
		result.Provenance = append(result.Provenance, prov)

		p.logger.Info("schema preloaded",
			"url", url,
			"path", res.LocalPath,
			"concepts", len(concepts),
			"duration_ms", prov.LoadDurationMS,
		)
	}

	p.logger.Info("dts preloading completed",
		"schemas_loaded", result.SchemasLoaded,
		"schemas_requested", len(schemaURLs),
		"concepts", len(result.Concepts),
	)
	return result
}

// loadConcepts loads one schema as an independent document and extracts
// its concept table.
func (p *Preloader) loadConcepts(ctx context.Context, path string, packages []string) ([]engine.Concept, error) {
	src, err := p.eng.OpenSource(path)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	model, err := p.eng.Load(ctx, src, packages)
	if err != nil {
		return nil, err
	}
	defer model.Close()

	return model.Concepts(), nil
}

// Merge adds the collected concepts to the instance model, skipping every
// name the instance already defines. It returns how many were added.
func Merge(m engine.Model, concepts []engine.Concept) int {
	added := 0
	for _, c := range concepts {
		if m.DefineConcept(c) {
			added++
		}
	}
	return added
}
