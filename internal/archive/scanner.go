package archive

import (
	"os"
	"sort"
	"strings"
	"time"

	"github.com/jonathan/quick-resume/internal/naming"
)

// Artifact suffixes recognised when scanning the output directory.
const (
	SourceExtension   = ".txt"
	DocumentExtension = ".docx"
)

var knownExtensions = []string{SourceExtension, DocumentExtension}

// Entry is one base name in the output directory with the artifacts present for it.
type Entry struct {
	BaseName string    `json:"base_name"`
	Employer string    `json:"employer"`
	Kinds    []string  `json:"kinds"`
	Size     int64     `json:"size"`
	ModTime  time.Time `json:"mod_time"`
}

// Scanner derives the set of employers already targeted from the files on disk.
// The directory listing is the source of truth; there is no index.
type Scanner struct{}

// NewScanner creates a scanner.
func NewScanner() *Scanner {
	return &Scanner{}
}

// Employers returns the employer tokens of every regular file in dir.
func (s *Scanner) Employers(dir string) (map[string]struct{}, error) {
	entries, err := s.List(dir)
	if err != nil {
		return nil, err
	}

	employers := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		employers[entry.Employer] = struct{}{}
	}
	return employers, nil
}

// Contains reports whether employer matches an employer token in dir exactly.
// The comparison is case-sensitive and the caller must pass the sanitized name.
func (s *Scanner) Contains(dir, employer string) (bool, error) {
	employers, err := s.Employers(dir)
	if err != nil {
		return false, err
	}
	_, ok := employers[employer]
	return ok, nil
}

// List groups the regular files in dir by base name, sorted by base name.
func (s *Scanner) List(dir string) ([]Entry, error) {
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &IOError{Op: "scan", Path: dir, Cause: err}
	}

	byBase := make(map[string]*Entry)
	for _, de := range dirEntries {
		if !de.Type().IsRegular() {
			continue
		}

		base, kind := splitArtifactName(de.Name())
		entry, ok := byBase[base]
		if !ok {
			entry = &Entry{BaseName: base, Employer: naming.EmployerToken(base)}
			byBase[base] = entry
		}
		if kind != "" {
			entry.Kinds = append(entry.Kinds, kind)
		}

		if info, err := de.Info(); err == nil {
			entry.Size += info.Size()
			if info.ModTime().After(entry.ModTime) {
				entry.ModTime = info.ModTime()
			}
		}
	}

	result := make([]Entry, 0, len(byBase))
	for _, entry := range byBase {
		sort.Strings(entry.Kinds)
		result = append(result, *entry)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].BaseName < result[j].BaseName
	})
	return result, nil
}

// splitArtifactName strips a known artifact suffix. Unknown suffixes stay part
// of the base name.
func splitArtifactName(name string) (base, kind string) {
	for _, ext := range knownExtensions {
		if strings.HasSuffix(name, ext) {
			return strings.TrimSuffix(name, ext), ext
		}
	}
	return name, ""
}
