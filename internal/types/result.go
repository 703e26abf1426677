package types

import (
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"github.com/MeKo-Tech/proximity/internal/geo"
)

// Tier labels. The same labels are used for every category; the petrol
// category maps them onto its own thresholds.
const (
	TierNear     = "<10m"
	TierMid      = "10-25m"
	TierFar      = "25-100m"
	TierNotFound = ">100m / not found"
)

// TierLabels lists the tier labels from nearest to farthest.
var TierLabels = []string{TierNear, TierMid, TierFar, TierNotFound}

// Outcome is the overall risk classification of a search.
type Outcome string

const (
	OutcomeLow    Outcome = "LOW"
	OutcomeMedium Outcome = "MEDIUM"
	OutcomeHigh   Outcome = "HIGH"
)

// Bins maps category label -> tier label -> count.
type Bins map[string]map[string]int

// SelectionMode is how the search area was specified.
type SelectionMode string

const (
	ModePoint   SelectionMode = "point"
	ModePolygon SelectionMode = "polygon"
)

// DetailRow is one feature within 100 m of the origin.
type DetailRow struct {
	DistanceM int     `json:"distance_m"`
	Category  string  `json:"category"`
	Name      string  `json:"name"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	Address   string  `json:"address"`
}

// Center is the resolved search origin.
type Center struct {
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Display string  `json:"display"`
}

// CategorySummary is one row of the summary table.
type CategorySummary struct {
	Label    string `json:"label"`
	NotFound int    `json:"no"`
	Lt10     int    `json:"lt10"`
	R10to25  int    `json:"r10_25"`
	R25to100 int    `json:"r25_100"`
}

// Summary is the header block of a report.
type Summary struct {
	Outcome      Outcome           `json:"outcome"`
	Center       string            `json:"center"`
	Radius       int               `json:"radius"`
	Permit       string            `json:"permit"`
	CenterCoords string            `json:"center_coords"`
	Categories   []CategorySummary `json:"categories"`
}

// Selection describes the effective search area.
type Selection struct {
	Mode     SelectionMode `json:"mode"`
	Centroid geo.Point     `json:"centroid"`
	RadiusM  int           `json:"radius_m"`
	Polygon  []geo.Point   `json:"polygon,omitempty"`
}

// SearchResult is the terminal artifact of a search. It is built once by the
// coordinator and not modified afterwards, except for Artifacts and Warnings
// which the artifact sinks fill in.
type SearchResult struct {
	Center      Center             `json:"center"`
	RadiusM     int                `json:"radius_m"`
	Permit      string             `json:"permit"`
	Summary     Summary            `json:"summary"`
	SummaryBins Bins               `json:"summary_bins"`
	Details     []DetailRow        `json:"details_100m"`
	Selection   Selection          `json:"selection"`
	Artifacts   map[string]string  `json:"artifacts"`
	Warnings    []string           `json:"warnings,omitempty"`
	Categories  []Category         `json:"categories"`
	CreatedAt   time.Time          `json:"created_at"`
	Features    []AnnotatedFeature `json:"-"`
}

// Slug is a file-name friendly identifier for the result: creation time,
// the permit label if any, and a short hash of the creation instant and the
// search parameters that separates searches started in the same second.
func (r *SearchResult) Slug() string {
	slug := r.CreatedAt.UTC().Format("20060102T150405Z")
	var b strings.Builder
	for _, c := range strings.ToLower(r.Permit) {
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			b.WriteRune(c)
		case c == '-' || c == '_' || c == ' ' || c == '/':
			b.WriteByte('-')
		}
	}
	if p := strings.Trim(b.String(), "-"); p != "" {
		slug += "-" + p
	}

	h := fnv.New32a()
	fmt.Fprintf(h, "%d|%s|%.7f|%.7f|%d|%s|%s", r.CreatedAt.UnixNano(), r.Center.Display,
		r.Center.Lat, r.Center.Lon, r.RadiusM, r.Selection.Mode, r.Permit)
	return fmt.Sprintf("%s-%08x", slug, h.Sum32())
}
