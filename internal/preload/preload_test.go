package preload

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veritax/internal/engine"
	"veritax/internal/engine/enginetest"
	"veritax/internal/platform/config"
	"veritax/internal/resolver"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

const metNS = "http://www.eba.europa.eu/xbrl/crr/dict/met"

func concept(local string) engine.Concept {
	return engine.Concept{Name: engine.ConceptName{Namespace: metNS, Local: local}, Type: "monetaryItemType"}
}

// writeSchemas creates local schema files and an offline root mapping the
// dictionary URL prefix onto them.
func writeSchemas(t *testing.T, names ...string) (string, []config.OfflineRoot) {
	t.Helper()
	root := t.TempDir()
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte("<schema/>"), 0o644))
	}
	roots := []config.OfflineRoot{{URLPrefix: "http://www.eba.europa.eu/xbrl/crr/dict/", LocalRoot: root}}
	return root, roots
}

func TestPreload_CollectsConceptsWithProvenance(t *testing.T) {
	root, roots := writeSchemas(t, "met.xsd")
	stub := enginetest.New(nil)
	stub.AddDoc(filepath.Join(root, "met.xsd"), enginetest.DocSpec{
		Concepts: []engine.Concept{concept("mi53"), concept("mi54")},
	})
	p := New(stub, resolver.New(stub, roots, testLogger()), testLogger())

	result := p.Preload(context.Background(), []string{"http://www.eba.europa.eu/xbrl/crr/dict/met.xsd"}, nil, nil)

	assert.Equal(t, 1, result.SchemasLoaded)
	assert.Len(t, result.Concepts, 2)
	require.Len(t, result.Provenance, 1)
	prov := result.Provenance[0]
	assert.Equal(t, StatusSuccess, prov.Status)
	assert.Equal(t, filepath.Join(root, "met.xsd"), prov.LocalPath)
	assert.Equal(t, 2, prov.ConceptCount)
	assert.False(t, prov.Timestamp.IsZero())
}

func TestPreload_PartialFailureContinues(t *testing.T) {
	root, roots := writeSchemas(t, "met.xsd", "typ.xsd")
	stub := enginetest.New(nil)
	stub.AddDoc(filepath.Join(root, "met.xsd"), enginetest.DocSpec{FailLoad: true})
	stub.AddDoc(filepath.Join(root, "typ.xsd"), enginetest.DocSpec{
		Concepts: []engine.Concept{concept("tC")},
	})
	p := New(stub, resolver.New(stub, roots, testLogger()), testLogger())

	result := p.Preload(context.Background(), []string{
		"http://www.eba.europa.eu/xbrl/crr/dict/met.xsd",
		"http://www.eba.europa.eu/xbrl/crr/dict/typ.xsd",
		"http://www.eba.europa.eu/xbrl/crr/dict/missing.xsd",
	}, nil, nil)

	assert.Equal(t, 1, result.SchemasLoaded)
	assert.Len(t, result.Concepts, 1)
	require.Len(t, result.Provenance, 3)
	assert.Equal(t, StatusFailed, result.Provenance[0].Status)
	assert.Equal(t, StatusSuccess, result.Provenance[1].Status)
	assert.Equal(t, StatusUnresolved, result.Provenance[2].Status)
	assert.NotEmpty(t, result.Provenance[2].Error)
}

func TestPreload_LaterSchemaWinsInCollectedSet(t *testing.T) {
	root, roots := writeSchemas(t, "a.xsd", "b.xsd")
	stub := enginetest.New(nil)
	stub.AddDoc(filepath.Join(root, "a.xsd"), enginetest.DocSpec{
		Concepts: []engine.Concept{{Name: engine.ConceptName{Namespace: metNS, Local: "mi53"}, Type: "stringItemType"}},
	})
	stub.AddDoc(filepath.Join(root, "b.xsd"), enginetest.DocSpec{
		Concepts: []engine.Concept{{Name: engine.ConceptName{Namespace: metNS, Local: "mi53"}, Type: "monetaryItemType"}},
	})
	p := New(stub, resolver.New(stub, roots, testLogger()), testLogger())

	result := p.Preload(context.Background(), []string{
		"http://www.eba.europa.eu/xbrl/crr/dict/a.xsd",
		"http://www.eba.europa.eu/xbrl/crr/dict/b.xsd",
	}, nil, nil)

	require.Len(t, result.Concepts, 1)
	assert.Equal(t, "monetaryItemType", result.Concepts[0].Type)
}

func TestMerge_InstanceConceptsWin(t *testing.T) {
	instancePath := filepath.Join(t.TempDir(), "report.xbrl")
	require.NoError(t, os.WriteFile(instancePath, []byte("<xbrl/>"), 0o644))

	stub := enginetest.New(nil)
	stub.AddDoc(instancePath, enginetest.DocSpec{
		Concepts: []engine.Concept{{Name: engine.ConceptName{Namespace: metNS, Local: "mi53"}, Type: "declaredByInstance"}},
	})
	src, err := stub.OpenSource(instancePath)
	require.NoError(t, err)
	model, err := stub.Load(context.Background(), src, nil)
	require.NoError(t, err)
	defer model.Close()

	added := Merge(model, []engine.Concept{
		{Name: engine.ConceptName{Namespace: metNS, Local: "mi53"}, Type: "fromPreload"},
		concept("mi99"),
	})

	assert.Equal(t, 1, added)
	require.True(t, model.HasConcept(engine.ConceptName{Namespace: metNS, Local: "mi99"}))
	for _, c := range model.Concepts() {
		if c.Name.Local == "mi53" {
			assert.Equal(t, "declaredByInstance", c.Type)
		}
	}
}
