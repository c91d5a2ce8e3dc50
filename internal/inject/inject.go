// Package inject rewrites instance documents that omit a mandatory
// dictionary schema import.
//
// The original file is never touched. When a missing import is detected
// the injector writes a temp copy with new schemaRef elements inserted
// immediately before the first existing one, copying its indentation so
// the rest of the document stays byte-identical. Rewriting input is a
// last resort behind DTS-first preloading and is off by default.
package inject

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"veritax/internal/catalog"
	"veritax/internal/platform/config"
	"veritax/internal/resolver"
)

const schemaRefPrefix = `<link:schemaRef xlink:type="simple" xlink:href="`

// Missing describes one dictionary namespace the instance uses without
// importing its schema.
type Missing struct {
	Prefix        string   `json:"prefix"`
	Namespace     string   `json:"namespace"`
	CandidateURLs []string `json:"candidate_urls"`
}

// Record traces what an injection did, for attachment to the run result.
type Record struct {
	OriginalPath string   `json:"original_path"`
	InjectedURLs []string `json:"injected_urls"`
	UsedTempFile bool     `json:"used_temp_file"`
	TempPath     string   `json:"temp_path,omitempty"`
}

// Injector detects missing dictionary imports and produces rewritten
// temp copies.
type Injector struct {
	mapper  resolver.URLMapper
	res     *resolver.Resolver
	tempDir string
	rules   []config.DictionaryNamespace
	logger  *slog.Logger
}

// New builds an injector. tempDir receives the rewritten copies.
func New(mapper resolver.URLMapper, res *resolver.Resolver, tempDir string, rules []config.DictionaryNamespace, logger *slog.Logger) *Injector {
	return &Injector{mapper: mapper, res: res, tempDir: tempDir, rules: rules, logger: logger}
}

// DetectMissing reads the instance as text and reports every configured
// dictionary namespace that is declared and used but whose schema path
// fragment appears in no existing import.
func (in *Injector) DetectMissing(path string) ([]Missing, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read instance: %w", err)
	}
	content := string(raw)

	var missing []Missing
	for _, rule := range in.rules {
		declared := strings.Contains(content, fmt.Sprintf(`xmlns:%s="%s"`, rule.Prefix, rule.Namespace))
		used := strings.Contains(content, "<"+rule.Prefix+":")
		if !declared || !used {
			continue
		}
		if strings.Contains(content, rule.Fragment) {
			continue
		}
		in.logger.Info("missing dictionary schema detected",
			"prefix", rule.Prefix, "namespace", rule.Namespace)
		missing = append(missing, Missing{
			Prefix:        rule.Prefix,
			Namespace:     rule.Namespace,
			CandidateURLs: rule.SchemaURLs,
		})
	}
	return missing, nil
}

// Inject writes a temp copy of the instance with one schemaRef added per
// missing namespace. Namespaces with no usable href are skipped and
// logged. When nothing was injectable the original path is kept and no
// temp file is written.
func (in *Injector) Inject(path string, missing []Missing, idx *catalog.Index) (*Record, error) {
	record := &Record{OriginalPath: path}
	if len(missing) == 0 {
		return record, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read instance: %w", err)
	}
	content := string(raw)

	anchor := strings.Index(content, schemaRefPrefix)
	if anchor < 0 {
		return nil, fmt.Errorf("no existing schemaRef element to insert before in %s", path)
	}
	indent := lineIndent(content, anchor)

	var inserted strings.Builder
	for _, m := range missing {
		href, url, ok := in.chooseHref(m, idx)
		if !ok {
			in.logger.Warn("no usable href for missing dictionary schema, skipping",
				"prefix", m.Prefix, "candidates", m.CandidateURLs)
			continue
		}
		inserted.WriteString(indent)
		inserted.WriteString(schemaRefPrefix)
		inserted.WriteString(href)
		inserted.WriteString("\"/>\n")
		record.InjectedURLs = append(record.InjectedURLs, url)
		in.logger.Info("injected schemaRef", "url", url, "href", href)
	}
	if len(record.InjectedURLs) == 0 {
		return record, nil
	}

	rewritten := content[:anchor-len(indent)] + inserted.String() + content[anchor-len(indent):]
	tempPath, err := in.writeTemp(path, rewritten)
	if err != nil {
		return nil, err
	}
	record.UsedTempFile = true
	record.TempPath = tempPath
	return record, nil
}

// chooseHref picks the href to inject for one missing namespace. The
// original remote URL is preferred when the engine's own mapper claims
// it, so later resolution keeps flowing through the engine; otherwise a
// file URI from the resolver is used.
func (in *Injector) chooseHref(m Missing, idx *catalog.Index) (href, url string, ok bool) {
	for _, candidate := range m.CandidateURLs {
		if in.mapper != nil && in.mapper.IsMappedURL(candidate) {
			return candidate, candidate, true
		}
	}
	for _, candidate := range m.CandidateURLs {
		res := in.res.Resolve(candidate, idx)
		if !res.Resolved() {
			continue
		}
		abs, err := filepath.Abs(res.LocalPath)
		if err != nil {
			continue
		}
		return "file://" + abs, candidate, true
	}
	return "", "", false
}

// writeTemp writes the rewritten content next to its siblings in the
// temp directory under a unique name.
func (in *Injector) writeTemp(originalPath, content string) (string, error) {
	if err := os.MkdirAll(in.tempDir, 0o755); err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	base := filepath.Base(originalPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	id := uuid.New()
	name := fmt.Sprintf("%s_injected_%x.xbrl", stem, id[:4])
	tempPath := filepath.Join(in.tempDir, name)
	if err := os.WriteFile(tempPath, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write temp instance: %w", err)
	}
	return tempPath, nil
}

// lineIndent returns the leading whitespace of the line containing pos.
// Non-whitespace before pos on the same line yields an empty indent.
func lineIndent(content string, pos int) string {
	lineStart := strings.LastIndexByte(content[:pos], '\n') + 1
	for i := lineStart; i < pos; i++ {
		if content[i] != ' ' && content[i] != '\t' {
			return ""
		}
	}
	return content[lineStart:pos]
}
