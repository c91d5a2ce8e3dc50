package catalog

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"veritax/internal/urlnorm"
)

// descriptorName is where taxonomy packages keep their catalog descriptor.
const descriptorName = "META-INF/catalog.xml"

type xmlCatalog struct {
	XMLName        xml.Name        `xml:"catalog"`
	RewriteURIs    []xmlRewriteURI `xml:"rewriteURI"`
	RewriteSystems []xmlRewriteSys `xml:"rewriteSystem"`
}

type xmlRewriteURI struct {
	URIStartString string `xml:"uriStartString,attr"`
	RewritePrefix  string `xml:"rewritePrefix,attr"`
}

type xmlRewriteSys struct {
	SystemIDStartString string `xml:"systemIdStartString,attr"`
	RewritePrefix       string `xml:"rewritePrefix,attr"`
}

// Build parses the catalog descriptors of all given packages into one Index.
// A package whose descriptor is missing or malformed contributes no rules;
// the failure is logged and the remaining packages still load. Build only
// fails when no package path could be read at all while some were given.
func Build(logger *slog.Logger, packagePaths []string) *Index {
	idx := newIndex()

	for _, pkgPath := range packagePaths {
		info, err := os.Stat(pkgPath)
		if err != nil {
			logger.Warn("package path not accessible", "package", pkgPath, "error", err)
			continue
		}

		var (
			record PackageRecord
			perr   error
		)
		if info.IsDir() {
			record, perr = loadDirPackage(pkgPath)
		} else if strings.EqualFold(filepath.Ext(pkgPath), ".zip") {
			record, perr = loadZipPackage(pkgPath)
		} else {
			logger.Warn("unsupported package path (not a directory or zip)", "package", pkgPath)
			continue
		}
		if perr != nil {
			logger.Warn("catalog descriptor skipped", "package", pkgPath, "error", perr)
			continue
		}

		for _, e := range record.Entries {
			idx.register(e)
		}
		idx.packages = append(idx.packages, record)
		logger.Info("taxonomy package registered",
			"package", pkgPath,
			"archive", record.IsArchive,
			"entries", len(record.Entries),
		)
	}

	return idx
}

func loadDirPackage(pkgPath string) (PackageRecord, error) {
	descriptor := filepath.Join(pkgPath, filepath.FromSlash(descriptorName))
	f, err := os.Open(descriptor)
	if err != nil {
		return PackageRecord{}, fmt.Errorf("open descriptor: %w", err)
	}
	defer f.Close()

	cat, err := parseDescriptor(f)
	if err != nil {
		return PackageRecord{}, err
	}

	metaInf := filepath.Dir(descriptor)
	record := PackageRecord{Path: pkgPath}
	record.Entries = collectEntries(cat, pkgPath, func(rewritePrefix string) string {
		abs, err := filepath.Abs(filepath.Join(metaInf, filepath.FromSlash(rewritePrefix)))
		if err != nil {
			return filepath.Join(metaInf, filepath.FromSlash(rewritePrefix))
		}
		return abs
	})
	return record, nil
}

func loadZipPackage(pkgPath string) (PackageRecord, error) {
	zr, err := zip.OpenReader(pkgPath)
	if err != nil {
		return PackageRecord{}, fmt.Errorf("open archive: %w", err)
	}
	defer zr.Close()

	record := PackageRecord{Path: pkgPath, IsArchive: true}
	found := false
	for _, zf := range zr.File {
		if !strings.HasSuffix(zf.Name, descriptorName) {
			continue
		}
		found = true
		rc, err := zf.Open()
		if err != nil {
			return PackageRecord{}, fmt.Errorf("open %s: %w", zf.Name, err)
		}
		cat, err := parseDescriptor(rc)
		rc.Close()
		if err != nil {
			return PackageRecord{}, fmt.Errorf("descriptor %s: %w", zf.Name, err)
		}

		// Rewrite targets live inside the archive; the resulting prefix is
		// archive-path/inner-path, which only the engine mapper can open.
		base := path.Dir(zf.Name)
		record.Entries = append(record.Entries, collectEntries(cat, pkgPath, func(rewritePrefix string) string {
			return pkgPath + "/" + path.Clean(path.Join(base, rewritePrefix))
		})...)
	}
	if !found {
		return PackageRecord{}, fmt.Errorf("no %s in archive", descriptorName)
	}
	return record, nil
}

func parseDescriptor(r io.Reader) (xmlCatalog, error) {
	var cat xmlCatalog
	dec := xml.NewDecoder(r)
	if err := dec.Decode(&cat); err != nil {
		return xmlCatalog{}, fmt.Errorf("parse descriptor: %w", err)
	}
	return cat, nil
}

// collectEntries converts parsed descriptor entries, resolving each rewrite
// prefix to an absolute local prefix via resolve.
func collectEntries(cat xmlCatalog, pkgPath string, resolve func(string) string) []Entry {
	var entries []Entry
	for _, ru := range cat.RewriteURIs {
		if ru.URIStartString == "" || ru.RewritePrefix == "" {
			continue
		}
		entries = append(entries, Entry{
			Kind:        RewriteURI,
			MatchPrefix: urlnorm.Normalize(ru.URIStartString, true),
			LocalPrefix: resolve(ru.RewritePrefix),
			Package:     pkgPath,
		})
	}
	for _, rs := range cat.RewriteSystems {
		if rs.SystemIDStartString == "" || rs.RewritePrefix == "" {
			continue
		}
		entries = append(entries, Entry{
			Kind:        RewriteSystem,
			MatchPrefix: urlnorm.Normalize(rs.SystemIDStartString, true),
			LocalPrefix: resolve(rs.RewritePrefix),
			Package:     pkgPath,
		})
	}
	return entries
}
