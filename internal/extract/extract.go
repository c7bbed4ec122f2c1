// Package extract turns source files into plain text for chunking.
//
// Extraction is a lookup table from file extension to extractor func. Plain
// text and code files are read as-is; HTML is stripped of markup. Anything
// else is unsupported and skipped by the pipeline.
package extract

import (
	"os"
	"regexp"
	"strings"
	"unicode/utf8"

	kerrors "github.com/knowtools/know/internal/errors"
)

// Func extracts plain text from the file at path.
type Func func(path string) (string, error)

// extractors maps lowercased extensions (with leading dot) to extractor
// funcs. Code extensions share the plain-text reader.
var extractors = map[string]Func{
	".txt":  readText,
	".md":   readText,
	".rst":  readText,
	".csv":  readText,
	".json": readText,
	".yaml": readText,
	".yml":  readText,
	".toml": readText,
	".xml":  readText,
	".html": readHTML,
	".htm":  readHTML,

	".go":    readText,
	".py":    readText,
	".js":    readText,
	".ts":    readText,
	".rs":    readText,
	".java":  readText,
	".c":     readText,
	".h":     readText,
	".cpp":   readText,
	".rb":    readText,
	".sh":    readText,
	".sql":   readText,
	".proto": readText,
}

// Supported reports whether files with the given extension can be extracted.
// The extension must be lowercased with a leading dot.
func Supported(ext string) bool {
	_, ok := extractors[ext]
	return ok
}

// SupportedExtensions returns all extractable extensions.
func SupportedExtensions() []string {
	exts := make([]string, 0, len(extractors))
	for ext := range extractors {
		exts = append(exts, ext)
	}
	return exts
}

// Extract reads the file at path and returns its plain text. Unsupported
// extensions and unreadable or binary files yield an extraction error that
// the pipeline records and skips.
func Extract(path, ext string) (string, error) {
	fn, ok := extractors[ext]
	if !ok {
		return "", kerrors.ExtractionError(path, nil).
			WithDetail("reason", "unsupported extension "+ext)
	}
	return fn(path)
}

func readText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", kerrors.ExtractionError(path, err)
	}
	if !utf8.Valid(data) {
		return "", kerrors.ExtractionError(path, nil).
			WithDetail("reason", "not valid UTF-8")
	}
	return string(data), nil
}

var (
	scriptRe = regexp.MustCompile(`(?is)<(script|style)\b.*?</(script|style)>`)
	tagRe    = regexp.MustCompile(`<[^>]*>`)
	entities = strings.NewReplacer(
		"&amp;", "&", "&lt;", "<", "&gt;", ">",
		"&quot;", `"`, "&#39;", "'", "&nbsp;", " ",
	)
)

func readHTML(path string) (string, error) {
	raw, err := readText(path)
	if err != nil {
		return "", err
	}
	text := scriptRe.ReplaceAllString(raw, " ")
	text = tagRe.ReplaceAllString(text, " ")
	text = entities.Replace(text)
	return strings.TrimSpace(text), nil
}
