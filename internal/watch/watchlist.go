// Package watch manages the list of directories registered for indexing.
//
// The list lives at ~/.know/dirs, one absolute path per line, in insertion
// order. Add and Remove rewrite the file atomically.
package watch

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	kerrors "github.com/knowtools/know/internal/errors"
)

// List is the set of watched directories. The zero value is not usable;
// construct with NewList.
type List struct {
	path string
}

// NewList returns a list backed by the given file path.
func NewList(path string) *List {
	return &List{path: path}
}

// Dirs returns the watched directories in insertion order.
func (l *List) Dirs() ([]string, error) {
	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, kerrors.StoreUnavailable("cannot read watch list", err)
	}
	defer f.Close()

	var dirs []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			dirs = append(dirs, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, kerrors.StoreUnavailable("cannot read watch list", err)
	}
	return dirs, nil
}

// Add registers a directory. The path is made absolute and must exist and
// be a directory. Re-adding an existing entry is a no-op; added reports
// whether the entry was new.
func (l *List) Add(dir string) (added bool, err error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return false, kerrors.New(kerrors.ErrCodeInvalidConfig,
			fmt.Sprintf("cannot resolve path %q", dir), err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return false, kerrors.New(kerrors.ErrCodeFileNotFound,
			fmt.Sprintf("directory does not exist: %s", abs), err)
	}
	if !info.IsDir() {
		return false, kerrors.InvalidConfig(fmt.Sprintf("not a directory: %s", abs))
	}

	dirs, err := l.Dirs()
	if err != nil {
		return false, err
	}
	for _, d := range dirs {
		if d == abs {
			return false, nil
		}
	}
	return true, l.write(append(dirs, abs))
}

// Remove unregisters a directory. removed reports whether it was present.
func (l *List) Remove(dir string) (removed bool, err error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return false, kerrors.New(kerrors.ErrCodeInvalidConfig,
			fmt.Sprintf("cannot resolve path %q", dir), err)
	}

	dirs, err := l.Dirs()
	if err != nil {
		return false, err
	}
	kept := dirs[:0]
	for _, d := range dirs {
		if d == abs {
			removed = true
			continue
		}
		kept = append(kept, d)
	}
	if !removed {
		return false, nil
	}
	return true, l.write(kept)
}

func (l *List) write(dirs []string) error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return kerrors.StoreUnavailable("cannot create watch list directory", err)
	}
	var sb strings.Builder
	for _, d := range dirs {
		sb.WriteString(d)
		sb.WriteByte('\n')
	}
	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, []byte(sb.String()), 0o644); err != nil {
		return kerrors.StoreUnavailable("cannot write watch list", err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		return kerrors.StoreUnavailable("cannot write watch list", err)
	}
	return nil
}
