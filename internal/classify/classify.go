// Package classify bins measured features into distance tiers per category
// and derives the overall outcome of a search.
package classify

import (
	"cmp"
	"math"
	"slices"

	"github.com/MeKo-Tech/proximity/internal/types"
)

// DefaultMaxRows is the detail row limit used when none is given.
const DefaultMaxRows = 500

// DetailRadiusM is the distance up to which features are listed as detail rows.
const DetailRadiusM = 100.0

// Summary is the classification of one search.
type Summary struct {
	Bins    types.Bins
	Rows    []types.DetailRow
	Outcome types.Outcome
}

// Tier returns the tier label for distance d under t. Non-finite distances
// are "not found".
func Tier(d float64, t types.Thresholds) string {
	switch {
	case math.IsNaN(d) || math.IsInf(d, 0) || d < 0:
		return types.TierNotFound
	case d < t.Near:
		return types.TierNear
	case d < t.Mid:
		return types.TierMid
	case d <= t.Far:
		return types.TierFar
	default:
		return types.TierNotFound
	}
}

// EmptyBins returns zero counts for every known category.
func EmptyBins() types.Bins {
	bins := make(types.Bins)
	for _, s := range types.Categories() {
		row := make(map[string]int, len(types.TierLabels))
		for _, tier := range types.TierLabels {
			row[tier] = 0
		}
		bins[s.Label] = row
	}
	return bins
}

// Summarize bins features per category, collects the detail rows and derives
// the outcome. maxRows <= 0 means DefaultMaxRows. It has no side effects.
func Summarize(features []types.AnnotatedFeature, maxRows int) Summary {
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}

	bins := EmptyBins()
	var near []candidate

	for _, f := range features {
		label := types.OtherLabel
		if spec, ok := types.Classify(f.Tags); ok {
			label = spec.Label
			bins[label][Tier(f.DistanceM, spec.Thresholds)]++
		}
		if f.Determined() && f.DistanceM <= DetailRadiusM {
			near = append(near, candidate{feature: f, label: label})
		}
	}

	// sort on exact distances; rows only carry the rounded value
	slices.SortStableFunc(near, func(a, b candidate) int {
		return cmp.Or(
			cmp.Compare(a.feature.DistanceM, b.feature.DistanceM),
			cmp.Compare(a.feature.Name, b.feature.Name),
			cmp.Compare(a.feature.Centroid.Lat, b.feature.Centroid.Lat),
			cmp.Compare(a.feature.Centroid.Lon, b.feature.Centroid.Lon),
		)
	})
	if len(near) > maxRows {
		near = near[:maxRows]
	}

	rows := make([]types.DetailRow, len(near))
	for i, c := range near {
		rows[i] = types.DetailRow{
			DistanceM: int(math.Round(c.feature.DistanceM)),
			Category:  c.label,
			Name:      c.feature.Name,
			Lat:       c.feature.Centroid.Lat,
			Lon:       c.feature.Centroid.Lon,
			Address:   c.feature.Address(),
		}
	}

	return Summary{Bins: bins, Rows: rows, Outcome: Outcome(bins)}
}

type candidate struct {
	feature types.AnnotatedFeature
	label   string
}

// Outcome is HIGH if any category has a feature in its nearest tier, MEDIUM
// if any has one in the middle tier, LOW otherwise.
func Outcome(bins types.Bins) types.Outcome {
	medium := false
	for _, row := range bins {
		if row[types.TierNear] > 0 {
			return types.OutcomeHigh
		}
		if row[types.TierMid] > 0 {
			medium = true
		}
	}
	if medium {
		return types.OutcomeMedium
	}
	return types.OutcomeLow
}

// CategorySummaries flattens bins into summary rows in display priority order.
func CategorySummaries(bins types.Bins) []types.CategorySummary {
	out := make([]types.CategorySummary, 0, len(bins))
	for _, s := range types.Categories() {
		row, ok := bins[s.Label]
		if !ok {
			continue
		}
		out = append(out, types.CategorySummary{
			Label:    s.Label,
			NotFound: row[types.TierNotFound],
			Lt10:     row[types.TierNear],
			R10to25:  row[types.TierMid],
			R25to100: row[types.TierFar],
		})
	}
	return out
}
