package archive

import (
	"bytes"
	"compress/gzip"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/MeKo-Tech/proximity/internal/types"
)

// ErrNotFound is returned when an archive has no search with the given ID.
var ErrNotFound = errors.New("search not found")

// Reader reads results from an archive database.
type Reader struct {
	db   *sql.DB
	path string
}

// OpenReader opens an archive for reading.
func OpenReader(path string) (*Reader, error) {
	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	var count int
	err = db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='searches'").Scan(&count)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to verify schema: %w", err)
	}
	if count == 0 {
		db.Close()
		return nil, fmt.Errorf("database does not contain searches table")
	}

	return &Reader{db: db, path: path}, nil
}

// Get returns the stored result with the given ID.
func (r *Reader) Get(id string) (*types.SearchResult, error) {
	var compressed []byte
	err := r.db.QueryRow("SELECT result FROM searches WHERE id = ?", id).Scan(&compressed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query search: %w", err)
	}

	doc, err := gzipDecompress(compressed)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress result: %w", err)
	}

	var result types.SearchResult
	if err := json.Unmarshal(doc, &result); err != nil {
		return nil, fmt.Errorf("failed to decode result: %w", err)
	}
	return &result, nil
}

// List returns the most recent searches first. limit <= 0 returns all.
func (r *Reader) List(limit int) ([]Entry, error) {
	query := `SELECT s.id, s.created_at, s.display, s.lat, s.lon, s.radius_m, s.permit, s.outcome, s.mode,
			(SELECT COUNT(*) FROM details d WHERE d.search_id = s.id)
		FROM searches s ORDER BY s.created_at DESC, s.id`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query searches: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e                      Entry
			created, outcome, mode string
		)
		if err := rows.Scan(&e.ID, &created, &e.Display, &e.Lat, &e.Lon, &e.RadiusM, &e.Permit, &outcome, &mode, &e.Details); err != nil {
			return nil, fmt.Errorf("failed to scan search row: %w", err)
		}
		if e.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("invalid created_at %q: %w", created, err)
		}
		e.Outcome = types.Outcome(outcome)
		e.Mode = types.SelectionMode(mode)
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating searches: %w", err)
	}

	return entries, nil
}

// Metadata reads the metadata table.
func (r *Reader) Metadata() (Metadata, error) {
	rows, err := r.db.Query("SELECT name, value FROM metadata")
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to query metadata: %w", err)
	}
	defer rows.Close()

	var meta Metadata
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return Metadata{}, fmt.Errorf("failed to scan metadata row: %w", err)
		}
		switch name {
		case "name":
			meta.Name = value
		case "description":
			meta.Description = value
		case "version":
			meta.Version = value
		}
	}

	if err := rows.Err(); err != nil {
		return Metadata{}, fmt.Errorf("error iterating metadata: %w", err)
	}

	return meta, nil
}

// Close closes the database connection.
func (r *Reader) Close() error {
	if err := r.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

func gzipDecompress(data []byte) ([]byte, error) {
	gr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer gr.Close()

	return io.ReadAll(gr)
}
