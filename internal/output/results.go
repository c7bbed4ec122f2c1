package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/knowtools/know/internal/search"
)

const previewRunes = 200

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("154"))
	pathStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("255")).Bold(true)
	scoreStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("106"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

type styleFunc func(...string) string

var (
	successStyle styleFunc = lipgloss.NewStyle().Foreground(lipgloss.Color("154")).Render
	warningStyle styleFunc = lipgloss.NewStyle().Foreground(lipgloss.Color("220")).Render
	errorStyle   styleFunc = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Render
)

// jsonResult is the wire form of one result for --json output.
type jsonResult struct {
	Rank    int     `json:"rank"`
	Path    string  `json:"path"`
	Start   int     `json:"start"`
	End     int     `json:"end"`
	Score   float64 `json:"score"`
	Preview string  `json:"preview"`
}

// WriteResults renders search results. Styled output requires a terminal
// and plain == false.
func (w *Writer) WriteResults(query string, results []search.Result) {
	if len(results) == 0 {
		w.Printf("no results for %q\n", query)
		return
	}

	if w.styled {
		w.writeStyled(query, results)
		return
	}
	for _, r := range results {
		w.Printf("%d. %s [%d:%d] score=%.4f\n", r.Rank, r.Chunk.Path,
			r.Chunk.Start, r.Chunk.End, r.Score)
		w.Printf("   %s\n", preview(r.Chunk.Text))
	}
}

func (w *Writer) writeStyled(query string, results []search.Result) {
	w.Println(headerStyle.Render(fmt.Sprintf("results for %q", query)))
	for _, r := range results {
		w.Printf("%s %s %s\n",
			dimStyle.Render(fmt.Sprintf("%2d.", r.Rank)),
			pathStyle.Render(shortenPath(r.Chunk.Path)),
			scoreStyle.Render(fmt.Sprintf("%.4f", r.Score)))
		w.Printf("    %s\n", dimStyle.Render(fmt.Sprintf("[%d:%d]", r.Chunk.Start, r.Chunk.End)))
		w.Printf("    %s\n", preview(r.Chunk.Text))
	}
}

// WriteResultsJSON writes results as a JSON array to out.
func WriteResultsJSON(out io.Writer, results []search.Result) error {
	wire := make([]jsonResult, len(results))
	for i, r := range results {
		wire[i] = jsonResult{
			Rank:    r.Rank,
			Path:    r.Chunk.Path,
			Start:   r.Chunk.Start,
			End:     r.Chunk.End,
			Score:   r.Score,
			Preview: preview(r.Chunk.Text),
		}
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(wire)
}

// WriteResultsJSONFile writes JSON results to a file path.
func WriteResultsJSONFile(path string, results []search.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return WriteResultsJSON(f, results)
}

// WriteBenchmark renders the dense and sparse rankings side by side.
func (w *Writer) WriteBenchmark(query string, dense, sparse []search.Result) {
	w.Printf("dense ranking for %q:\n", query)
	w.writeRankedList(dense)
	w.Println()
	w.Printf("sparse ranking for %q:\n", query)
	w.writeRankedList(sparse)
}

func (w *Writer) writeRankedList(results []search.Result) {
	if len(results) == 0 {
		w.Println("  (no results)")
		return
	}
	for _, r := range results {
		w.Printf("  %d. %s score=%.4f\n", r.Rank, shortenPath(r.Chunk.Path), r.Score)
	}
}

// preview collapses whitespace and truncates to a fixed rune budget.
func preview(text string) string {
	collapsed := strings.Join(strings.Fields(text), " ")
	runes := []rune(collapsed)
	if len(runes) <= previewRunes {
		return collapsed
	}
	return string(runes[:previewRunes]) + "…"
}

// shortenPath keeps the last three path segments.
func shortenPath(path string) string {
	segs := strings.Split(filepath.ToSlash(path), "/")
	if len(segs) <= 3 {
		return path
	}
	return "…/" + strings.Join(segs[len(segs)-3:], "/")
}
