package index

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// ReportEntry records one skipped, duplicate, or failed chunk.
type ReportEntry struct {
	Path         string `json:"path"`
	ChunkIndex   int    `json:"chunk_index,omitempty"`
	Reason       string `json:"reason"`
	CollidesWith string `json:"collides_with,omitempty"`
}

// Report summarizes one pipeline run. It is always returned to the caller,
// even when individual documents failed.
type Report struct {
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`

	Files     int `json:"files"`
	Skipped   int `json:"skipped_files"`
	New       int `json:"new"`
	Unchanged int `json:"unchanged"`
	Changed   int `json:"changed"`
	Duplicate int `json:"duplicate"`
	Errors    int `json:"errors"`
	Pruned    int `json:"pruned"`

	DryRun  bool          `json:"dry_run,omitempty"`
	Entries []ReportEntry `json:"entries,omitempty"`
}

// TotalChunks returns how many chunks the run touched in any way.
func (r *Report) TotalChunks() int {
	return r.New + r.Unchanged + r.Changed + r.Duplicate
}

func (r *Report) addEntry(path string, chunkIndex int, reason, collidesWith string) {
	r.Entries = append(r.Entries, ReportEntry{
		Path:         path,
		ChunkIndex:   chunkIndex,
		Reason:       reason,
		CollidesWith: collidesWith,
	})
}

// Write serializes the report as JSON to path.
func (r *Report) Write(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}
