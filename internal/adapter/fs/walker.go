package fs

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// ReportFile is a PDF report found on disk.
type ReportFile struct {
	Path    string
	Name    string
	ModTime int64
	Size    int64
}

// ResolveReports expands paths into existing PDF files. Each path may be a
// file, a directory (searched recursively) or a doublestar glob. Non-PDF and
// missing entries are skipped; duplicates are dropped and the input order
// kept.
func ResolveReports(paths []string) ([]ReportFile, error) {
	var files []ReportFile
	seen := make(map[string]struct{})

	add := func(path string) error {
		abs, err := filepath.Abs(path)
		if err != nil {
			return err
		}
		if _, dup := seen[abs]; dup {
			return nil
		}
		info, err := os.Stat(abs)
		if err != nil || info.IsDir() || !isPDF(abs) {
			return nil
		}
		seen[abs] = struct{}{}
		files = append(files, ReportFile{
			Path:    abs,
			Name:    filepath.Base(abs),
			ModTime: info.ModTime().UnixNano(),
			Size:    info.Size(),
		})
		return nil
	}

	for _, p := range paths {
		if p == "" {
			continue
		}

		if hasMeta(p) {
			matches, err := doublestar.FilepathGlob(p, doublestar.WithFilesOnly())
			if err != nil {
				return nil, fmt.Errorf("invalid pattern %q: %w", p, err)
			}
			sort.Strings(matches)
			for _, m := range matches {
				if err := add(m); err != nil {
					return nil, err
				}
			}
			continue
		}

		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		if !info.IsDir() {
			if err := add(p); err != nil {
				return nil, err
			}
			continue
		}

		matches, err := doublestar.Glob(os.DirFS(p), "**/*.{pdf,PDF}", doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", p, err)
		}
		sort.Strings(matches)
		for _, m := range matches {
			if err := add(filepath.Join(p, filepath.FromSlash(m))); err != nil {
				return nil, err
			}
		}
	}

	return files, nil
}

func isPDF(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}

func hasMeta(p string) bool {
	return strings.ContainsAny(p, "*?[{")
}
