package extract

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kerrors "github.com/knowtools/know/internal/errors"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestExtract_PlainText(t *testing.T) {
	path := writeTemp(t, "notes.txt", "hello world\nsecond line")
	text, err := Extract(path, ".txt")
	require.NoError(t, err)
	assert.Equal(t, "hello world\nsecond line", text)
}

func TestExtract_Code(t *testing.T) {
	path := writeTemp(t, "main.go", "package main\n\nfunc main() {}\n")
	text, err := Extract(path, ".go")
	require.NoError(t, err)
	assert.Contains(t, text, "func main()")
}

func TestExtract_HTMLStripsMarkup(t *testing.T) {
	html := `<html><head><style>body { color: red }</style></head>` +
		`<body><h1>Title</h1><p>Some &amp; text</p>` +
		`<script>alert("x")</script></body></html>`
	path := writeTemp(t, "page.html", html)

	text, err := Extract(path, ".html")
	require.NoError(t, err)
	assert.Contains(t, text, "Title")
	assert.Contains(t, text, "Some & text")
	assert.NotContains(t, text, "alert")
	assert.NotContains(t, text, "color: red")
	assert.NotContains(t, text, "<p>")
}

func TestExtract_UnsupportedExtension(t *testing.T) {
	path := writeTemp(t, "img.png", "\x89PNG")
	_, err := Extract(path, ".png")
	require.Error(t, err)
	assert.Equal(t, kerrors.ErrCodeExtraction, kerrors.GetCode(err))
}

func TestExtract_MissingFile(t *testing.T) {
	_, err := Extract(filepath.Join(t.TempDir(), "nope.txt"), ".txt")
	require.Error(t, err)
	assert.Equal(t, kerrors.ErrCodeExtraction, kerrors.GetCode(err))
}

func TestExtract_RejectsBinary(t *testing.T) {
	path := writeTemp(t, "data.txt", string([]byte{0xff, 0xfe, 0x00, 0x41}))
	_, err := Extract(path, ".txt")
	require.Error(t, err)
}

func TestSupported(t *testing.T) {
	assert.True(t, Supported(".md"))
	assert.True(t, Supported(".py"))
	assert.False(t, Supported(".pdf"))
	assert.False(t, Supported(""))
}
