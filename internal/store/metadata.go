package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // pure Go SQLite driver, no CGO

	"github.com/knowtools/know/internal/chunk"
	kerrors "github.com/knowtools/know/internal/errors"
)

// Metadata is the authoritative chunk and fingerprint store, backed by
// SQLite in WAL mode. All other index artifacts are derived from it.
type Metadata struct {
	mu     sync.RWMutex
	db     *sql.DB
	closed bool
}

// OpenMetadata opens (or creates) the metadata database at path.
// An empty path opens an in-memory database for testing.
func OpenMetadata(path string) (*Metadata, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, kerrors.StoreUnavailable("cannot create index directory", err)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, kerrors.StoreUnavailable("cannot open metadata database", err)
	}

	// Single connection keeps SQLite writes serialized.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// modernc.org/sqlite ignores DSN pragma params, so set them explicitly.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, kerrors.StoreUnavailable("cannot configure metadata database", err)
		}
	}

	m := &Metadata{db: db}
	if err := m.initSchema(); err != nil {
		_ = db.Close()
		return nil, kerrors.StoreUnavailable("cannot initialize metadata schema", err)
	}
	return m, nil
}

func (m *Metadata) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS chunks (
		id          TEXT PRIMARY KEY,
		path        TEXT NOT NULL,
		start       INTEGER NOT NULL,
		end         INTEGER NOT NULL,
		text        TEXT NOT NULL,
		fingerprint TEXT NOT NULL,
		mod_time    INTEGER NOT NULL,
		ext         TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_path ON chunks(path);

	-- Fingerprint records drive new/unchanged/changed/duplicate
	-- classification. indexed_at is Unix seconds.
	CREATE TABLE IF NOT EXISTS fingerprints (
		chunk_id    TEXT PRIMARY KEY,
		fingerprint TEXT NOT NULL,
		indexed_at  INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_fingerprints_fp ON fingerprints(fingerprint);

	-- File-level state short-circuits unchanged files before extraction.
	CREATE TABLE IF NOT EXISTS files (
		path     TEXT PRIMARY KEY,
		mod_time INTEGER NOT NULL,
		size     INTEGER NOT NULL
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`
	_, err := m.db.Exec(schema)
	return err
}

// Classify compares a chunk against stored fingerprints. For duplicates,
// existingID is the chunk that already holds the same content.
func (m *Metadata) Classify(ctx context.Context, c chunk.Chunk) (cls Classification, existingID string, err error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return 0, "", errClosed()
	}

	var stored string
	err = m.db.QueryRowContext(ctx,
		`SELECT fingerprint FROM fingerprints WHERE chunk_id = ?`, c.ID).Scan(&stored)
	switch {
	case err == nil:
		if stored == c.Fingerprint {
			return ClassUnchanged, "", nil
		}
		return ClassChanged, "", nil
	case err != sql.ErrNoRows:
		return 0, "", kerrors.StoreUnavailable("fingerprint lookup failed", err)
	}

	// Unknown chunk ID: look for the same content under another ID.
	var dupID string
	err = m.db.QueryRowContext(ctx,
		`SELECT chunk_id FROM fingerprints WHERE fingerprint = ? LIMIT 1`,
		c.Fingerprint).Scan(&dupID)
	switch {
	case err == nil:
		return ClassDuplicate, dupID, nil
	case err == sql.ErrNoRows:
		return ClassNew, "", nil
	default:
		return 0, "", kerrors.StoreUnavailable("duplicate lookup failed", err)
	}
}

// Lookup returns the stored fingerprint for a chunk ID, if any.
func (m *Metadata) Lookup(ctx context.Context, chunkID string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return "", false, errClosed()
	}

	var fp string
	err := m.db.QueryRowContext(ctx,
		`SELECT fingerprint FROM fingerprints WHERE chunk_id = ?`, chunkID).Scan(&fp)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, kerrors.StoreUnavailable("fingerprint lookup failed", err)
	}
	return fp, true, nil
}

// UpsertChunks stores chunks and records their fingerprints in one
// transaction. Each chunk's commit is atomic and idempotent.
func (m *Metadata) UpsertChunks(ctx context.Context, chunks []chunk.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errClosed()
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return kerrors.StoreUnavailable("cannot begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	chunkStmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO chunks (id, path, start, end, text, fingerprint, mod_time, ext)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return kerrors.StoreUnavailable("cannot prepare chunk statement", err)
	}
	defer chunkStmt.Close()

	fpStmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO fingerprints (chunk_id, fingerprint, indexed_at)
		VALUES (?, ?, ?)`)
	if err != nil {
		return kerrors.StoreUnavailable("cannot prepare fingerprint statement", err)
	}
	defer fpStmt.Close()

	now := time.Now().Unix()
	for _, c := range chunks {
		if _, err := chunkStmt.ExecContext(ctx,
			c.ID, c.Path, c.Start, c.End, c.Text, c.Fingerprint, c.ModTime.Unix(), c.Ext); err != nil {
			return kerrors.StoreUnavailable(fmt.Sprintf("cannot store chunk %s", c.ID), err)
		}
		if _, err := fpStmt.ExecContext(ctx, c.ID, c.Fingerprint, now); err != nil {
			return kerrors.StoreUnavailable(fmt.Sprintf("cannot record fingerprint for %s", c.ID), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return kerrors.StoreUnavailable("cannot commit chunks", err)
	}
	return nil
}

// Chunks returns stored chunks by ID, keyed by ID. Missing IDs are absent
// from the result.
func (m *Metadata) Chunks(ctx context.Context, ids []string) (map[string]chunk.Chunk, error) {
	if len(ids) == 0 {
		return map[string]chunk.Chunk{}, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, errClosed()
	}

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	query := fmt.Sprintf(`
		SELECT id, path, start, end, text, fingerprint, mod_time, ext
		FROM chunks WHERE id IN (%s)`, strings.Join(placeholders, ","))

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, kerrors.StoreUnavailable("chunk query failed", err)
	}
	defer rows.Close()

	result := make(map[string]chunk.Chunk, len(ids))
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		result[c.ID] = c
	}
	return result, rows.Err()
}

// AllChunks streams every stored chunk in ID order. Used for full sparse
// index rebuilds.
func (m *Metadata) AllChunks(ctx context.Context) ([]chunk.Chunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, errClosed()
	}

	rows, err := m.db.QueryContext(ctx, `
		SELECT id, path, start, end, text, fingerprint, mod_time, ext
		FROM chunks ORDER BY id`)
	if err != nil {
		return nil, kerrors.StoreUnavailable("chunk scan failed", err)
	}
	defer rows.Close()

	var chunks []chunk.Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// ChunkIDsByPath returns the IDs of all chunks belonging to path.
func (m *Metadata) ChunkIDsByPath(ctx context.Context, path string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, errClosed()
	}

	rows, err := m.db.QueryContext(ctx,
		`SELECT id FROM chunks WHERE path = ? ORDER BY start`, path)
	if err != nil {
		return nil, kerrors.StoreUnavailable("chunk query failed", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, kerrors.StoreUnavailable("chunk scan failed", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteChunks removes chunks and their fingerprint records.
func (m *Metadata) DeleteChunks(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errClosed()
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return kerrors.StoreUnavailable("cannot begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	in := strings.Join(placeholders, ",")

	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM chunks WHERE id IN (%s)`, in), args...); err != nil {
		return kerrors.StoreUnavailable("cannot delete chunks", err)
	}
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM fingerprints WHERE chunk_id IN (%s)`, in), args...); err != nil {
		return kerrors.StoreUnavailable("cannot delete fingerprints", err)
	}

	if err := tx.Commit(); err != nil {
		return kerrors.StoreUnavailable("cannot commit deletion", err)
	}
	return nil
}

// AllPaths returns the distinct document paths currently indexed.
func (m *Metadata) AllPaths(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, errClosed()
	}

	rows, err := m.db.QueryContext(ctx, `SELECT DISTINCT path FROM chunks ORDER BY path`)
	if err != nil {
		return nil, kerrors.StoreUnavailable("path query failed", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, kerrors.StoreUnavailable("path scan failed", err)
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// Stats returns the chunk count and the maximum chunk modification time,
// the validity stamp for the sparse index cache.
func (m *Metadata) Stats(ctx context.Context) (count int, maxModTime int64, err error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return 0, 0, errClosed()
	}

	err = m.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(MAX(mod_time), 0) FROM chunks`).Scan(&count, &maxModTime)
	if err != nil {
		return 0, 0, kerrors.StoreUnavailable("stats query failed", err)
	}
	return count, maxModTime, nil
}

// FileState returns the recorded state for path, if any.
func (m *Metadata) FileState(ctx context.Context, path string) (FileState, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return FileState{}, false, errClosed()
	}

	var fs FileState
	fs.Path = path
	err := m.db.QueryRowContext(ctx,
		`SELECT mod_time, size FROM files WHERE path = ?`, path).Scan(&fs.ModTime, &fs.Size)
	if err == sql.ErrNoRows {
		return FileState{}, false, nil
	}
	if err != nil {
		return FileState{}, false, kerrors.StoreUnavailable("file state lookup failed", err)
	}
	return fs, true, nil
}

// RecordFile upserts a file's indexed state.
func (m *Metadata) RecordFile(ctx context.Context, fs FileState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errClosed()
	}

	_, err := m.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO files (path, mod_time, size) VALUES (?, ?, ?)`,
		fs.Path, fs.ModTime, fs.Size)
	if err != nil {
		return kerrors.StoreUnavailable("cannot record file state", err)
	}
	return nil
}

// DeleteFile removes a file's state record.
func (m *Metadata) DeleteFile(ctx context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errClosed()
	}

	_, err := m.db.ExecContext(ctx, `DELETE FROM files WHERE path = ?`, path)
	if err != nil {
		return kerrors.StoreUnavailable("cannot delete file state", err)
	}
	return nil
}

// Reset clears all chunks, fingerprints, and file state.
func (m *Metadata) Reset(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errClosed()
	}

	for _, stmt := range []string{
		`DELETE FROM chunks`,
		`DELETE FROM fingerprints`,
		`DELETE FROM files`,
	} {
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return kerrors.StoreUnavailable("cannot reset metadata", err)
		}
	}
	return nil
}

// Close closes the database.
func (m *Metadata) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	return m.db.Close()
}

func errClosed() error {
	return kerrors.StoreUnavailable("metadata store is closed", nil)
}

func scanChunk(rows *sql.Rows) (chunk.Chunk, error) {
	var c chunk.Chunk
	var modTime int64
	if err := rows.Scan(&c.ID, &c.Path, &c.Start, &c.End, &c.Text,
		&c.Fingerprint, &modTime, &c.Ext); err != nil {
		return chunk.Chunk{}, kerrors.StoreUnavailable("chunk scan failed", err)
	}
	c.ModTime = time.Unix(modTime, 0)
	return c, nil
}
