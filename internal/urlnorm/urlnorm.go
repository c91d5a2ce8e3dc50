// Package urlnorm canonicalizes taxonomy URLs for catalog matching.
//
// The regulator publishes the same namespaces under inconsistent path
// conventions (duplicate separators, with and without a locale segment).
// Normalize produces one canonical spelling; Variants enumerates the known
// alternate spellings of the same logical URL so prefix matching can bridge
// the conventions.
package urlnorm

import (
	"net/url"
	"strings"
)

// localeSegment is the fixed path segment the regulator sometimes includes
// and sometimes drops when publishing the same namespace.
const localeSegment = "/eu/fr"

// Normalize canonicalizes a URL or path string for matching. Strings without
// a scheme and host are treated as plain paths and only have repeated
// separators collapsed. For URLs the scheme and host are lower-cased; with
// isPrefix a trailing separator is guaranteed, otherwise a separator that
// only appeared through collapsing is stripped. Normalize is idempotent.
func Normalize(s string, isPrefix bool) string {
	u, err := url.Parse(s)
	if err != nil {
		return normalizePlain(s, isPrefix)
	}
	if u.Scheme == "" || u.Host == "" {
		p := u.Path
		if p == "" {
			p = s
		}
		return normalizePlain(p, isPrefix)
	}

	originalPath := u.Path
	if originalPath == "" {
		originalPath = "/"
	}
	path := collapseSeparators(originalPath)
	if path == "" {
		path = "/"
	}

	if isPrefix {
		if !strings.HasSuffix(path, "/") {
			path += "/"
		}
	} else if !strings.HasSuffix(originalPath, "/") && strings.HasSuffix(path, "/") && path != "/" {
		path = strings.TrimRight(path, "/")
		if path == "" {
			path = "/"
		}
	}

	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host) + path
}

// Variants returns the known alternate spellings of s, de-duplicated, with
// Normalize(s, isPrefix) always first. The result is deterministic: the
// literal form, the form without the locale segment, then the form with it.
func Variants(s string, isPrefix bool) []string {
	normalized := Normalize(s, isPrefix)
	variants := []string{normalized}

	u, err := url.Parse(normalized)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return variants
	}

	path := u.Path
	if path == "" {
		path = "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	without := path
	switch {
	case strings.HasPrefix(path, localeSegment+"/"):
		without = path[len(localeSegment):]
	case path == localeSegment:
		without = "/"
	}

	with := path
	if !strings.HasPrefix(path, localeSegment) {
		with = localeSegment + path
	}

	for _, candidate := range []string{path, without, with} {
		full := Normalize(u.Scheme+"://"+u.Host+candidate, isPrefix)
		if !contains(variants, full) {
			variants = append(variants, full)
		}
	}

	return variants
}

func normalizePlain(p string, isPrefix bool) string {
	normalized := collapseSeparators(p)
	if isPrefix && !strings.HasSuffix(normalized, "/") {
		normalized += "/"
	}
	return normalized
}

// collapseSeparators squeezes runs of '/' into one.
func collapseSeparators(p string) string {
	if !strings.Contains(p, "//") {
		return p
	}
	var b strings.Builder
	b.Grow(len(p))
	prevSlash := false
	for _, r := range p {
		if r == '/' {
			if prevSlash {
				continue
			}
			prevSlash = true
		} else {
			prevSlash = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
