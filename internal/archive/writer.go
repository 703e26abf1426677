package archive

import (
	"bytes"
	"compress/gzip"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/MeKo-Tech/proximity/internal/types"

	_ "modernc.org/sqlite" // SQLite driver
)

const (
	// DefaultBatchSize is the number of results to buffer before flushing to the database.
	DefaultBatchSize = 20
)

// Writer appends search results to an archive database. It is safe for
// concurrent use and doubles as an artifact sink.
type Writer struct {
	db        *sql.DB
	path      string
	batch     []row
	batchSize int
	mu        sync.Mutex
}

// New opens or creates the archive at path and initializes the schema.
func New(path string, metadata Metadata) (*Writer, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	if err := insertMetadata(db, metadata); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to insert metadata: %w", err)
	}

	return &Writer{
		db:        db,
		path:      path,
		batch:     make([]row, 0, DefaultBatchSize),
		batchSize: DefaultBatchSize,
	}, nil
}

// SetBatchSize changes how many results are buffered; 1 writes immediately.
func (w *Writer) SetBatchSize(n int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if n < 1 {
		n = 1
	}
	w.batchSize = n
}

func createSchema(db *sql.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS metadata (
			name TEXT NOT NULL PRIMARY KEY,
			value TEXT
		);

		CREATE TABLE IF NOT EXISTS searches (
			id TEXT NOT NULL PRIMARY KEY,
			created_at TEXT NOT NULL,
			display TEXT NOT NULL,
			lat REAL NOT NULL,
			lon REAL NOT NULL,
			radius_m INTEGER NOT NULL,
			permit TEXT NOT NULL DEFAULT '',
			outcome TEXT NOT NULL,
			mode TEXT NOT NULL,
			result BLOB NOT NULL
		);

		CREATE TABLE IF NOT EXISTS details (
			search_id TEXT NOT NULL REFERENCES searches (id) ON DELETE CASCADE,
			rank INTEGER NOT NULL,
			distance_m INTEGER NOT NULL,
			category TEXT NOT NULL,
			name TEXT NOT NULL,
			lat REAL NOT NULL,
			lon REAL NOT NULL,
			address TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (search_id, rank)
		);

		CREATE INDEX IF NOT EXISTS searches_created ON searches (created_at);
		CREATE INDEX IF NOT EXISTS details_category ON details (category);
	`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	return nil
}

func insertMetadata(db *sql.DB, meta Metadata) error {
	stmt, err := db.Prepare("INSERT OR REPLACE INTO metadata (name, value) VALUES (?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare metadata insert: %w", err)
	}
	defer stmt.Close()

	for key, value := range meta.ToMap() {
		if _, err := stmt.Exec(key, value); err != nil {
			return fmt.Errorf("failed to insert metadata %q: %w", key, err)
		}
	}

	return nil
}

// row is a result encoded at write time. The caller may keep mutating the
// result after Write returns; only this snapshot reaches the database.
type row struct {
	id         string
	createdAt  string
	display    string
	lat, lon   float64
	radiusM    int
	permit     string
	outcome    string
	mode       string
	compressed []byte
	details    []types.DetailRow
}

func encodeRow(r *types.SearchResult) (row, error) {
	id := ID(r)
	doc, err := json.Marshal(r)
	if err != nil {
		return row{}, fmt.Errorf("failed to encode result %s: %w", id, err)
	}
	compressed, err := gzipCompress(doc)
	if err != nil {
		return row{}, fmt.Errorf("failed to compress result %s: %w", id, err)
	}
	return row{
		id:         id,
		createdAt:  r.CreatedAt.UTC().Format(time.RFC3339Nano),
		display:    r.Center.Display,
		lat:        r.Center.Lat,
		lon:        r.Center.Lon,
		radiusM:    r.RadiusM,
		permit:     r.Permit,
		outcome:    string(r.Summary.Outcome),
		mode:       string(r.Selection.Mode),
		compressed: compressed,
		details:    append([]types.DetailRow(nil), r.Details...),
	}, nil
}

// Write snapshots a result into the batch. When the batch is full, it is flushed.
func (w *Writer) Write(result *types.SearchResult) error {
	rw, err := encodeRow(result)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.batch = append(w.batch, rw)
	if len(w.batch) >= w.batchSize {
		return w.flushLocked()
	}
	return nil
}

// Name implements search.ArtifactSink.
func (w *Writer) Name() string { return "archive" }

// Publish implements search.ArtifactSink. The result may stay buffered until
// the batch fills or the writer is flushed.
func (w *Writer) Publish(_ context.Context, result *types.SearchResult) (map[string]string, error) {
	if err := w.Write(result); err != nil {
		return nil, err
	}
	return map[string]string{"archive": w.path + "#" + ID(result)}, nil
}

// Flush writes any buffered results to the database.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked()
}

// flushLocked writes buffered results. Must be called with lock held.
func (w *Writer) flushLocked() error {
	if len(w.batch) == 0 {
		return nil
	}

	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // nolint:errcheck

	searchStmt, err := tx.Prepare(`INSERT OR REPLACE INTO searches
		(id, created_at, display, lat, lon, radius_m, permit, outcome, mode, result)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare search insert: %w", err)
	}
	defer searchStmt.Close()

	clearStmt, err := tx.Prepare("DELETE FROM details WHERE search_id = ?")
	if err != nil {
		return fmt.Errorf("failed to prepare details delete: %w", err)
	}
	defer clearStmt.Close()

	detailStmt, err := tx.Prepare(`INSERT INTO details
		(search_id, rank, distance_m, category, name, lat, lon, address)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare detail insert: %w", err)
	}
	defer detailStmt.Close()

	for _, r := range w.batch {
		if _, err := searchStmt.Exec(r.id, r.createdAt, r.display, r.lat, r.lon, r.radiusM,
			r.permit, r.outcome, r.mode, r.compressed); err != nil {
			return fmt.Errorf("failed to insert search %s: %w", r.id, err)
		}
		if _, err := clearStmt.Exec(r.id); err != nil {
			return fmt.Errorf("failed to clear details of %s: %w", r.id, err)
		}
		for rank, d := range r.details {
			if _, err := detailStmt.Exec(r.id, rank, d.DistanceM, d.Category, d.Name, d.Lat, d.Lon, d.Address); err != nil {
				return fmt.Errorf("failed to insert detail %d of %s: %w", rank, r.id, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	w.batch = w.batch[:0]
	return nil
}

// Close flushes any remaining results and closes the database.
func (w *Writer) Close() error {
	if err := w.Flush(); err != nil {
		w.db.Close()
		return err
	}

	if err := w.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	return nil
}

func gzipCompress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)

	if _, err := gw.Write(data); err != nil {
		gw.Close()
		return nil, err
	}

	if err := gw.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
