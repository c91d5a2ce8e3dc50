// Package catalog builds the URL rewrite index from taxonomy packages.
//
// Each taxonomy package (directory or zip archive) bundles an OASIS XML
// catalog descriptor under META-INF/catalog.xml whose rewriteURI and
// rewriteSystem entries map published URL prefixes to package-relative
// paths. The index is immutable once built; reconfiguration builds a new
// index and swaps it atomically, so concurrent lookups need no locking.
package catalog

// EntryKind distinguishes the two catalog rewrite entry flavors.
type EntryKind string

const (
	RewriteURI    EntryKind = "rewriteURI"
	RewriteSystem EntryKind = "rewriteSystem"
)

// Entry is one rewrite rule extracted from a package descriptor. MatchPrefix
// is normalized with a trailing separator; LocalPrefix is absolute (for
// archives it points inside the archive and only the engine mapper can serve
// it). At resolution time the longest matching MatchPrefix wins.
type Entry struct {
	Kind        EntryKind `json:"kind"`
	MatchPrefix string    `json:"match_prefix"`
	LocalPrefix string    `json:"local_prefix"`
	Package     string    `json:"package"`
}

// PackageRecord describes one registered taxonomy package.
type PackageRecord struct {
	Path      string  `json:"path"`
	IsArchive bool    `json:"is_archive"`
	Entries   []Entry `json:"entries"`
}

// Snapshot is a read-only view of the index for introspection endpoints.
type Snapshot struct {
	Packages           []PackageRecord `json:"packages"`
	RewriteURICount    int             `json:"rewrite_uri_count"`
	RewriteSystemCount int             `json:"rewrite_system_count"`
}
