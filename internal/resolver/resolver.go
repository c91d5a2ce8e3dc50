// Package resolver maps remote reference URLs to local files.
//
// Resolution consults, in order: the engine's own URL mapper, the catalog
// index built from taxonomy packages, and the statically configured offline
// roots. Non-HTTP(S) references are treated as filesystem paths. A miss is
// not an error; callers decide whether an unresolved URL matters.
package resolver

import (
	"log/slog"
	"os"
	"path"
	"strings"

	"veritax/internal/catalog"
	"veritax/internal/platform/config"
	"veritax/internal/urlnorm"
)

// URLMapper is the subset of the engine surface the resolver needs.
type URLMapper interface {
	IsMappedURL(url string) bool
	MappedURL(url string) string
}

// Resolution describes the outcome of resolving one URL.
type Resolution struct {
	// Source names which stage produced the path: "engine", "catalog",
	// "offline-root" or "local". Empty when unresolved.
	Source string `json:"source,omitempty"`
	// Matched is the catalog entry that produced the path, when Source
	// is "catalog".
	Matched *catalog.Entry `json:"matched,omitempty"`
	// LocalPath is the resolved filesystem path. Empty when unresolved.
	LocalPath string `json:"local_path,omitempty"`
	// Exists reports whether LocalPath is an existing regular file.
	Exists bool `json:"exists"`
}

// Resolved reports whether the URL mapped to an existing local file.
func (r Resolution) Resolved() bool {
	return r.LocalPath != "" && r.Exists
}

// Resolver resolves remote URLs against local taxonomy material.
type Resolver struct {
	mapper URLMapper
	roots  []config.OfflineRoot
	logger *slog.Logger
}

// New builds a resolver. mapper may be nil when no engine is attached.
func New(mapper URLMapper, roots []config.OfflineRoot, logger *slog.Logger) *Resolver {
	return &Resolver{mapper: mapper, roots: roots, logger: logger}
}

// Resolve maps url to a local file using the given catalog index.
// The index may be nil when no packages are loaded.
func (r *Resolver) Resolve(url string, idx *catalog.Index) Resolution {
	// Engine-internal mappings win over everything else; the engine
	// already knows where its own cached copy lives.
	if r.mapper != nil && r.mapper.IsMappedURL(url) {
		local := r.mapper.MappedURL(url)
		return Resolution{Source: "engine", LocalPath: local, Exists: isRegularFile(local)}
	}

	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		if isRegularFile(url) {
			return Resolution{Source: "local", LocalPath: url, Exists: true}
		}
		return Resolution{}
	}

	if idx != nil {
		if res, ok := r.resolveCatalog(url, idx); ok {
			return res
		}
	}
	if res, ok := r.resolveRoots(url); ok {
		return res
	}
	return Resolution{}
}

// resolveCatalog tries every variant of the URL against the index and
// returns the first candidate whose target exists on disk. Candidates whose
// target is missing are skipped so a second package declaring the same
// prefix still gets a chance.
func (r *Resolver) resolveCatalog(url string, idx *catalog.Index) (Resolution, bool) {
	for _, variant := range urlnorm.Variants(url, false) {
		for _, c := range idx.MatchAll(variant) {
			if !isRegularFile(c.LocalPath) {
				r.logger.Debug("catalog match target missing on disk",
					"url", url, "prefix", c.Entry.MatchPrefix, "local", c.LocalPath)
				continue
			}
			e := c.Entry
			return Resolution{Source: "catalog", Matched: &e, LocalPath: c.LocalPath, Exists: true}, true
		}
	}
	return Resolution{}, false
}

// resolveRoots applies the configured offline roots with the same variant
// and longest-prefix rules the catalog uses.
func (r *Resolver) resolveRoots(url string) (Resolution, bool) {
	var (
		best    config.OfflineRoot
		bestLen = -1
		bestVar string
	)
	for _, variant := range urlnorm.Variants(url, false) {
		for _, root := range r.roots {
			prefix := urlnorm.Normalize(root.URLPrefix, true)
			if strings.HasPrefix(variant, prefix) && len(prefix) > bestLen {
				best, bestLen, bestVar = root, len(prefix), variant
			}
		}
		if bestLen >= 0 {
			break
		}
	}
	if bestLen < 0 {
		return Resolution{}, false
	}
	rel := strings.TrimPrefix(bestVar, urlnorm.Normalize(best.URLPrefix, true))
	local := path.Join(best.LocalRoot, rel)
	if !isRegularFile(local) {
		r.logger.Debug("offline root target missing on disk", "url", url, "local", local)
		return Resolution{}, false
	}
	return Resolution{Source: "offline-root", LocalPath: local, Exists: true}, true
}

func isRegularFile(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}
