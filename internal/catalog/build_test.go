package catalog

import (
	"archive/zip"
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const catalogXML = `<?xml version="1.0" encoding="UTF-8"?>
<catalog xmlns="urn:oasis:names:tc:entity:xmlns:xml:catalog">
  <rewriteURI uriStartString="http://www.eba.europa.eu/eu/fr/xbrl/crr/" rewritePrefix="../crr/"/>
  <rewriteSystem systemIdStartString="http://www.eba.europa.eu/eu/fr/xbrl/crr/" rewritePrefix="../crr/"/>
</catalog>`

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

// writePackage lays out an unpacked taxonomy package with a catalog
// descriptor and one schema file, returning its root.
func writePackage(t *testing.T, descriptor string) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "META-INF"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "crr", "dict", "met"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "META-INF", "catalog.xml"), []byte(descriptor), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "crr", "dict", "met", "met.xsd"), []byte("<schema/>"), 0o644))
	return root
}

func TestBuildDirectoryPackage(t *testing.T) {
	pkg := writePackage(t, catalogXML)
	idx := Build(testLogger(), []string{pkg})

	require.Len(t, idx.Packages(), 1)
	record := idx.Packages()[0]
	assert.Equal(t, pkg, record.Path)
	assert.False(t, record.IsArchive)
	require.Len(t, record.Entries, 2)
	assert.Equal(t, RewriteURI, record.Entries[0].Kind)
	assert.Equal(t, "http://www.eba.europa.eu/eu/fr/xbrl/crr/", record.Entries[0].MatchPrefix)
	assert.Equal(t, filepath.Join(pkg, "crr"), record.Entries[0].LocalPrefix)

	snap := idx.Snapshot()
	assert.Equal(t, 1, snap.RewriteURICount)
	assert.Equal(t, 1, snap.RewriteSystemCount)
}

func TestMatchResolvesRelativePart(t *testing.T) {
	pkg := writePackage(t, catalogXML)
	idx := Build(testLogger(), []string{pkg})

	entry, local, ok := idx.Match("http://www.eba.europa.eu/eu/fr/xbrl/crr/dict/met/met.xsd")
	require.True(t, ok)
	assert.Equal(t, RewriteURI, entry.Kind)
	assert.Equal(t, filepath.Join(pkg, "crr", "dict", "met", "met.xsd"), local)
}

func TestMatchRegistersLocaleVariants(t *testing.T) {
	pkg := writePackage(t, catalogXML)
	idx := Build(testLogger(), []string{pkg})

	// The descriptor only declares the /eu/fr form; the variant without the
	// locale segment must still match.
	_, local, ok := idx.Match("http://www.eba.europa.eu/xbrl/crr/dict/met/met.xsd")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(pkg, "crr", "dict", "met", "met.xsd"), local)
}

func TestLongestPrefixWins(t *testing.T) {
	short := writePackage(t, `<catalog xmlns="urn:oasis:names:tc:entity:xmlns:xml:catalog">
  <rewriteURI uriStartString="http://x/crr/" rewritePrefix="../short/"/>
</catalog>`)
	long := writePackage(t, `<catalog xmlns="urn:oasis:names:tc:entity:xmlns:xml:catalog">
  <rewriteURI uriStartString="http://x/crr/dict/" rewritePrefix="../long/"/>
</catalog>`)

	idx := Build(testLogger(), []string{short, long})

	entry, local, ok := idx.Match("http://x/crr/dict/met.xsd")
	require.True(t, ok)
	assert.Equal(t, "http://x/crr/dict/", entry.MatchPrefix)
	assert.Equal(t, filepath.Join(long, "long", "met.xsd"), local)
}

func TestMalformedDescriptorSkipsPackageOnly(t *testing.T) {
	bad := writePackage(t, "<catalog><rewriteURI")
	good := writePackage(t, catalogXML)

	idx := Build(testLogger(), []string{bad, good})

	require.Len(t, idx.Packages(), 1)
	assert.Equal(t, good, idx.Packages()[0].Path)
}

func TestMissingPackagePathIsSkipped(t *testing.T) {
	good := writePackage(t, catalogXML)
	idx := Build(testLogger(), []string{filepath.Join(t.TempDir(), "absent"), good})
	assert.Len(t, idx.Packages(), 1)
}

func TestBuildZipPackage(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "taxonomy.zip")

	f, err := os.Create(zipPath)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("pkg/META-INF/catalog.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(catalogXML))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	idx := Build(testLogger(), []string{zipPath})

	require.Len(t, idx.Packages(), 1)
	record := idx.Packages()[0]
	assert.True(t, record.IsArchive)
	require.Len(t, record.Entries, 2)
	// Archive-internal prefix: archive path followed by inner path.
	assert.Equal(t, zipPath+"/pkg/crr", record.Entries[0].LocalPrefix)
}

func TestMatchMiss(t *testing.T) {
	idx := Build(testLogger(), nil)
	_, _, ok := idx.Match("http://unknown/schema.xsd")
	assert.False(t, ok)
}
