package urlnorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	t.Run("lowercases scheme and host", func(t *testing.T) {
		got := Normalize("HTTP://WWW.Example.EU/xbrl/crr/dict/met/met.xsd", false)
		assert.Equal(t, "http://www.example.eu/xbrl/crr/dict/met/met.xsd", got)
	})

	t.Run("collapses repeated separators", func(t *testing.T) {
		got := Normalize("http://x//eu//fr///crr/a.xsd", false)
		assert.Equal(t, "http://x/eu/fr/crr/a.xsd", got)
	})

	t.Run("prefix gains trailing separator", func(t *testing.T) {
		got := Normalize("http://x/eu/fr/crr", true)
		assert.Equal(t, "http://x/eu/fr/crr/", got)
	})

	t.Run("literal trailing separator is kept for non-prefix", func(t *testing.T) {
		got := Normalize("http://x/eu/fr/crr/", false)
		assert.Equal(t, "http://x/eu/fr/crr/", got)
	})

	t.Run("plain path only collapses separators", func(t *testing.T) {
		assert.Equal(t, "/opt/packages/crr/a.xsd", Normalize("/opt//packages///crr/a.xsd", false))
		assert.Equal(t, "/opt/packages/", Normalize("/opt/packages", true))
	})

	t.Run("empty host path defaults to root", func(t *testing.T) {
		assert.Equal(t, "http://x/", Normalize("http://x", true))
	})

	t.Run("idempotent", func(t *testing.T) {
		inputs := []string{
			"HTTP://X//a//b/c.xsd",
			"http://x/eu/fr/crr/",
			"/local//path/file.xsd",
			"http://www.eba.europa.eu/xbrl/crr/dict/met/met.xsd",
			"relative/path.xsd",
		}
		for _, in := range inputs {
			for _, isPrefix := range []bool{false, true} {
				once := Normalize(in, isPrefix)
				assert.Equal(t, once, Normalize(once, isPrefix), "input %q prefix=%v", in, isPrefix)
			}
		}
	})
}

func TestVariants(t *testing.T) {
	t.Run("first element is the normalized input", func(t *testing.T) {
		v := Variants("HTTP://X//crr/a.xsd", false)
		require.NotEmpty(t, v)
		assert.Equal(t, Normalize("HTTP://X//crr/a.xsd", false), v[0])
	})

	t.Run("adds locale variant for bare path", func(t *testing.T) {
		v := Variants("http://x/crr/a.xsd", false)
		assert.Equal(t, []string{
			"http://x/crr/a.xsd",
			"http://x/eu/fr/crr/a.xsd",
		}, v)
	})

	t.Run("adds bare variant for locale path", func(t *testing.T) {
		v := Variants("http://x/eu/fr/crr/a.xsd", false)
		assert.Equal(t, []string{
			"http://x/eu/fr/crr/a.xsd",
			"http://x/crr/a.xsd",
		}, v)
	})

	t.Run("prefix variants keep trailing separator", func(t *testing.T) {
		v := Variants("http://x/eu/fr/crr/", true)
		assert.Equal(t, []string{
			"http://x/eu/fr/crr/",
			"http://x/crr/",
		}, v)
	})

	t.Run("plain path yields only itself", func(t *testing.T) {
		v := Variants("/opt/packages/a.xsd", false)
		assert.Equal(t, []string{"/opt/packages/a.xsd"}, v)
	})

	t.Run("stable under reapplication", func(t *testing.T) {
		v := Variants("http://x/eu/fr/crr/a.xsd", false)
		again := Variants(v[0], false)
		assert.Equal(t, v, again)
	})

	t.Run("locale segment without following path", func(t *testing.T) {
		v := Variants("http://x/eu/fr", false)
		assert.Contains(t, v, "http://x/")
	})
}
