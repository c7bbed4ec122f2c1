package index

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kerrors "github.com/knowtools/know/internal/errors"
)

func TestNormalizeExtensions(t *testing.T) {
	got := NormalizeExtensions([]string{"md", ".GO", "py,txt", " ", ""})
	assert.Equal(t, []string{".md", ".go", ".py", ".txt"}, got)
}

func TestParseSince_Relative(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		in   string
		want time.Time
	}{
		{"30m", now.Add(-30 * time.Minute)},
		{"12h", now.Add(-12 * time.Hour)},
		{"7d", now.Add(-7 * 24 * time.Hour)},
		{"2w", now.Add(-14 * 24 * time.Hour)},
		// Unit suffixes are case-insensitive
		{"7D", now.Add(-7 * 24 * time.Hour)},
		{"12H", now.Add(-12 * time.Hour)},
	}
	for _, tt := range tests {
		got, err := ParseSince(tt.in, now)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestParseSince_Absolute(t *testing.T) {
	now := time.Now()

	got, err := ParseSince("2026-01-15", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC), got)

	got, err = ParseSince("2026-01-15T10:30:00Z", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC), got)

	got, err = ParseSince("2026-01-15T10:30:00", now)
	require.NoError(t, err)
	assert.Equal(t, 10, got.Hour())
}

func TestParseSince_Invalid(t *testing.T) {
	for _, in := range []string{"yesterday", "7x", "-5d", "15-01-2026"} {
		_, err := ParseSince(in, time.Now())
		require.Error(t, err, in)
		assert.Equal(t, kerrors.ErrCodeInvalidFilter, kerrors.GetCode(err), in)
	}
}

func TestParseSince_Empty(t *testing.T) {
	got, err := ParseSince("", time.Now())
	require.NoError(t, err)
	assert.True(t, got.IsZero())
}

func TestFilter_Extensions(t *testing.T) {
	f := Filter{Extensions: []string{".md", ".go"}}
	now := time.Now()

	assert.True(t, f.MatchFile("/docs/readme.md", now))
	assert.True(t, f.MatchFile("/src/main.go", now))
	assert.False(t, f.MatchFile("/src/main.py", now))
	assert.False(t, f.MatchFile("/docs/README.MD.bak", now))
}

func TestFilter_Globs_AnyPatternMatches(t *testing.T) {
	f := Filter{Globs: []string{"docs/**/*.md", "*.txt"}}
	now := time.Now()

	assert.True(t, f.MatchFile("docs/guide/intro.md", now))
	assert.True(t, f.MatchFile("notes.txt", now))
	assert.False(t, f.MatchFile("src/main.go", now))
}

func TestFilter_Since(t *testing.T) {
	cutoff := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	f := Filter{Since: cutoff}

	assert.True(t, f.MatchFile("/a.txt", cutoff.Add(time.Hour)))
	assert.False(t, f.MatchFile("/a.txt", cutoff.Add(-time.Hour)))
}

func TestMatchGlob(t *testing.T) {
	tests := []struct {
		pattern string
		path    string
		want    bool
	}{
		{"*.md", "/docs/readme.md", true},
		{"*.md", "/docs/readme.txt", false},
		{"readme.*", "/deep/nested/readme.md", true},
		{"/docs/*.md", "/docs/readme.md", true},
		{"/docs/*.md", "/docs/sub/readme.md", false},
		{"/docs/**/*.md", "/docs/a/b/readme.md", true},
		{"/docs/**/*.md", "/docs/readme.md", true},
		{"/docs/**/*.md", "/other/readme.md", false},
		{"**/test_*.py", "/src/pkg/test_util.py", true},
		{"**/test_*.py", "/src/pkg/util.py", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, matchGlob(tt.pattern, tt.path),
			"pattern %q path %q", tt.pattern, tt.path)
	}
}
