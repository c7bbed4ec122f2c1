// Package index owns the indexing pipeline: walking watched directories,
// extracting and chunking documents, classifying chunks against stored
// fingerprints, and applying the batched dense and sparse index updates.
package index

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	kerrors "github.com/knowtools/know/internal/errors"
)

// Filter narrows which files and chunks a pipeline run or query considers.
// The zero value matches everything.
type Filter struct {
	// Extensions is an allow-list, lowercased with leading dots.
	Extensions []string
	// Globs match against the full path, with ** crossing separators.
	// A file passes when any pattern matches.
	Globs []string
	// Since excludes files modified before it. Zero means no cutoff.
	Since time.Time
}

// MatchFile reports whether a file passes the filter.
func (f Filter) MatchFile(path string, modTime time.Time) bool {
	if len(f.Extensions) > 0 {
		ext := strings.ToLower(filepath.Ext(path))
		found := false
		for _, allowed := range f.Extensions {
			if ext == allowed {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(f.Globs) > 0 {
		matched := false
		for _, g := range f.Globs {
			if matchGlob(g, path) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	if !f.Since.IsZero() && modTime.Before(f.Since) {
		return false
	}
	return true
}

// NormalizeExtensions lowercases extensions and ensures leading dots.
// Comma-separated entries are split.
func NormalizeExtensions(exts []string) []string {
	var out []string
	for _, raw := range exts {
		for _, e := range strings.Split(raw, ",") {
			e = strings.ToLower(strings.TrimSpace(e))
			if e == "" {
				continue
			}
			if !strings.HasPrefix(e, ".") {
				e = "." + e
			}
			out = append(out, e)
		}
	}
	return out
}

// ParseSince parses a modification-time cutoff: a relative duration with an
// m/h/d/w suffix ("30m", "12h", "7d", "2w"), a date ("2026-01-15"), or an
// RFC 3339 timestamp.
func ParseSince(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}

	if n := len(s); n > 1 {
		unit := s[n-1]
		if 'A' <= unit && unit <= 'Z' {
			unit += 'a' - 'A'
		}
		if unit == 'm' || unit == 'h' || unit == 'd' || unit == 'w' {
			if value, err := strconv.Atoi(s[:n-1]); err == nil && value >= 0 {
				var d time.Duration
				switch unit {
				case 'm':
					d = time.Duration(value) * time.Minute
				case 'h':
					d = time.Duration(value) * time.Hour
				case 'd':
					d = time.Duration(value) * 24 * time.Hour
				case 'w':
					d = time.Duration(value) * 7 * 24 * time.Hour
				}
				return now.Add(-d), nil
			}
		}
	}

	if strings.Contains(s, "T") {
		for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05"} {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts, nil
			}
		}
	} else if ts, err := time.Parse("2006-01-02", s); err == nil {
		return ts, nil
	}

	return time.Time{}, kerrors.New(kerrors.ErrCodeInvalidFilter,
		fmt.Sprintf("cannot parse time cutoff %q (want 7d, 12h, 2026-01-15, or RFC 3339)", s), nil)
}

// matchGlob matches path against pattern. A "**" segment matches any number
// of path segments; other segments use filepath.Match rules. A pattern
// without a separator matches against the base name.
func matchGlob(pattern, path string) bool {
	if !strings.ContainsRune(pattern, filepath.Separator) && !strings.Contains(pattern, "/") {
		ok, err := filepath.Match(pattern, filepath.Base(path))
		return err == nil && ok
	}

	patSegs := splitSegments(pattern)
	pathSegs := splitSegments(path)
	return matchSegments(patSegs, pathSegs)
}

func splitSegments(p string) []string {
	p = filepath.ToSlash(p)
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

func matchSegments(pattern, segs []string) bool {
	if len(pattern) == 0 {
		return len(segs) == 0
	}
	if pattern[0] == "**" {
		// ** swallows zero or more leading segments
		for skip := 0; skip <= len(segs); skip++ {
			if matchSegments(pattern[1:], segs[skip:]) {
				return true
			}
		}
		return false
	}
	if len(segs) == 0 {
		return false
	}
	ok, err := filepath.Match(pattern[0], segs[0])
	if err != nil || !ok {
		return false
	}
	return matchSegments(pattern[1:], segs[1:])
}
