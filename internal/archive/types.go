// Package archive stores finished search results in a SQLite database so
// reports can be re-read without repeating the search.
package archive

import (
	"time"

	"github.com/MeKo-Tech/proximity/internal/types"
)

// SchemaVersion is written to the metadata table.
const SchemaVersion = "1"

// Metadata describes an archive file.
type Metadata struct {
	Name        string // human-readable archive name
	Description string
	Version     string // schema version, defaults to SchemaVersion
}

// ToMap converts Metadata to a map for database insertion.
func (m Metadata) ToMap() map[string]string {
	result := map[string]string{"version": SchemaVersion}
	if m.Version != "" {
		result["version"] = m.Version
	}
	if m.Name != "" {
		result["name"] = m.Name
	}
	if m.Description != "" {
		result["description"] = m.Description
	}
	return result
}

// Entry is one row of the searches table.
type Entry struct {
	ID        string
	CreatedAt time.Time
	Display   string
	Lat       float64
	Lon       float64
	RadiusM   int
	Permit    string
	Outcome   types.Outcome
	Mode      types.SelectionMode
	Details   int
}

// ID returns the archive key of a result. It equals the result's slug, so
// the archive row and the file artifacts of one search share a name.
func ID(r *types.SearchResult) string {
	return r.Slug()
}
