package catalog

import (
	"sort"
	"strings"

	"veritax/internal/urlnorm"
)

// Index is the combined rewrite rule set of all registered packages.
// It is immutable after Build; share freely across goroutines.
type Index struct {
	// prefixes maps every normalized variant of a match prefix to the
	// entries declaring it, in registration order. Several packages may
	// legitimately declare the same prefix.
	prefixes map[string][]Entry
	packages []PackageRecord
}

// Candidate is one possible rewrite of a URL.
type Candidate struct {
	Entry     Entry
	LocalPath string
}

// Match finds the longest registered prefix that u starts with and returns
// the first matched entry plus the rewritten local path. ok is false on a
// miss. u must already be normalized by the caller.
func (idx *Index) Match(u string) (entry Entry, localPath string, ok bool) {
	candidates := idx.MatchAll(u)
	if len(candidates) == 0 {
		return Entry{}, "", false
	}
	return candidates[0].Entry, candidates[0].LocalPath, true
}

// MatchAll returns every candidate rewrite of u, ordered by prefix length
// descending so longer (more specific) matches come first. Entries sharing
// a prefix keep registration order. Callers pick the first candidate whose
// target actually exists.
func (idx *Index) MatchAll(u string) []Candidate {
	var prefixes []string
	for prefix := range idx.prefixes {
		if strings.HasPrefix(u, prefix) {
			prefixes = append(prefixes, prefix)
		}
	}
	sort.Slice(prefixes, func(i, j int) bool {
		if len(prefixes[i]) != len(prefixes[j]) {
			return len(prefixes[i]) > len(prefixes[j])
		}
		return prefixes[i] < prefixes[j]
	})

	var candidates []Candidate
	for _, prefix := range prefixes {
		rel := strings.TrimLeft(u[len(prefix):], "/")
		for _, e := range idx.prefixes[prefix] {
			local := e.LocalPrefix
			if rel != "" {
				local = strings.TrimRight(local, "/") + "/" + rel
			}
			candidates = append(candidates, Candidate{Entry: e, LocalPath: local})
		}
	}
	return candidates
}

// Packages returns the registered package records.
func (idx *Index) Packages() []PackageRecord {
	return idx.packages
}

// PackagePaths returns the paths of all registered packages, in registration
// order. These are handed to the engine on every load.
func (idx *Index) PackagePaths() []string {
	paths := make([]string, 0, len(idx.packages))
	for _, p := range idx.packages {
		paths = append(paths, p.Path)
	}
	return paths
}

// Snapshot returns a read-only introspection view.
func (idx *Index) Snapshot() Snapshot {
	snap := Snapshot{Packages: idx.packages}
	seen := make(map[string]bool)
	for _, p := range idx.packages {
		for _, e := range p.Entries {
			key := string(e.Kind) + "\x00" + e.MatchPrefix
			if seen[key] {
				continue
			}
			seen[key] = true
			switch e.Kind {
			case RewriteURI:
				snap.RewriteURICount++
			case RewriteSystem:
				snap.RewriteSystemCount++
			}
		}
	}
	return snap
}

// register adds an entry under every variant of its match prefix.
func (idx *Index) register(e Entry) {
	for _, variant := range urlnorm.Variants(e.MatchPrefix, true) {
		registered := e
		registered.MatchPrefix = variant
		idx.prefixes[variant] = append(idx.prefixes[variant], registered)
	}
}

func newIndex() *Index {
	return &Index{prefixes: make(map[string][]Entry)}
}
