package overpass

import (
	"errors"
	"fmt"
	"strings"

	"github.com/MeKo-Tech/proximity/internal/geo"
	"github.com/MeKo-Tech/proximity/internal/types"
)

// ErrNoValidCategories is returned when none of the requested categories is known.
var ErrNoValidCategories = errors.New("no valid categories")

// ServerTimeoutSeconds is the execution budget requested from the Overpass server.
// It is deliberately larger than the client's per-request timeout.
const ServerTimeoutSeconds = 180

var elementKinds = []string{"node", "way", "relation"}

// BuildQuery builds an Overpass QL query for every tag filter of the given
// categories within radiusM meters of origin. Categories are emitted in table
// order so the query text is reproducible.
func BuildQuery(origin geo.Point, radiusM int, categories []types.Category) (string, error) {
	tags := make([]string, len(categories))
	for i, c := range categories {
		tags[i] = string(c)
	}
	known, _ := types.ParseCategories(tags)
	if len(known) == 0 {
		return "", ErrNoValidCategories
	}

	area := fmt.Sprintf("(around:%d,%.6f,%.6f)", radiusM, origin.Lat, origin.Lon)

	var b strings.Builder
	fmt.Fprintf(&b, "[out:json][timeout:%d];\n(\n", ServerTimeoutSeconds)
	for _, c := range known {
		spec, _ := types.Lookup(c)
		for _, f := range spec.Filters {
			clause := filterClause(f)
			for _, kind := range elementKinds {
				fmt.Fprintf(&b, "  %s%s%s;\n", kind, clause, area)
			}
		}
	}
	b.WriteString(");\nout body center geom;\n")
	return b.String(), nil
}

// filterClause renders a tag filter; wildcard and bare-key filters test for presence.
func filterClause(f types.TagFilter) string {
	if f.Wildcard || f.Value == "" {
		return fmt.Sprintf("[%q]", f.Key)
	}
	return fmt.Sprintf("[%q=%q]", f.Key, f.Value)
}
