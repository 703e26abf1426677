package types

// Category is a search category: a fixed group of OSM tag filters that share
// one display label and one set of distance tiers.
type Category string

const (
	CategoryPetrolStations Category = "petrol_stations"
	CategorySubstations    Category = "substations"
	CategoryWastewater     Category = "wastewater"
	CategoryMining         Category = "mining"
	CategoryManufacturing  Category = "manufacturing"
	CategoryLandfill       Category = "landfill"
	CategoryScrapyards     Category = "scrapyards"
	CategoryRecycling      Category = "recycling"
	CategoryGasworks       Category = "gasworks"
)

// OtherLabel is the display category for features matching no category.
const OtherLabel = "Other"

// TagFilter matches one OSM tag. An empty Value or Wildcard matches any value.
type TagFilter struct {
	Key      string
	Value    string
	Wildcard bool
}

// Matches reports whether tags satisfy the filter.
func (f TagFilter) Matches(tags map[string]string) bool {
	v, ok := tags[f.Key]
	if !ok {
		return false
	}
	if f.Wildcard || f.Value == "" {
		return true
	}
	return v == f.Value
}

// Thresholds are the upper bounds in meters of the first three distance tiers.
type Thresholds struct {
	Near float64 // tier 1: d < Near
	Mid  float64 // tier 2: Near <= d < Mid
	Far  float64 // tier 3: Mid <= d <= Far
}

var (
	// DefaultThresholds apply to every category except petrol stations.
	DefaultThresholds = Thresholds{Near: 10, Mid: 25, Far: 100}
	// PetrolThresholds are wider for fuel sites.
	PetrolThresholds = Thresholds{Near: 25, Mid: 50, Far: 100}
)

// CategorySpec describes a category.
type CategorySpec struct {
	Category   Category
	Label      string
	Filters    []TagFilter
	Thresholds Thresholds
}

// Matches reports whether any of the category's filters match tags.
func (s CategorySpec) Matches(tags map[string]string) bool {
	for _, f := range s.Filters {
		if f.Matches(tags) {
			return true
		}
	}
	return false
}

// categoryTable is ordered by display priority: the first matching entry
// determines a feature's display category and the bins it is counted in.
var categoryTable = []CategorySpec{
	{
		Category: CategoryPetrolStations,
		Label:    "Petrol stations / Garages",
		Filters: []TagFilter{
			{Key: "amenity", Value: "fuel"},
			{Key: "shop", Value: "car_repair"},
		},
		Thresholds: PetrolThresholds,
	},
	{
		Category: CategorySubstations,
		Label:    "Electricity substations",
		Filters: []TagFilter{
			{Key: "power", Value: "substation"},
			{Key: "power", Value: "transformer"},
			{Key: "substation"},
		},
		Thresholds: DefaultThresholds,
	},
	{
		Category: CategoryWastewater,
		Label:    "Wastewater treatment",
		Filters: []TagFilter{
			{Key: "man_made", Value: "wastewater_plant"},
			{Key: "water", Value: "wastewater"},
		},
		Thresholds: DefaultThresholds,
	},
	{
		Category: CategoryMining,
		Label:    "Mines / Quarries",
		Filters: []TagFilter{
			{Key: "landuse", Value: "quarry"},
			{Key: "man_made", Value: "mineshaft"},
			{Key: "historic", Value: "mine"},
			{Key: "resource", Wildcard: true},
		},
		Thresholds: DefaultThresholds,
	},
	{
		Category: CategoryManufacturing,
		Label:    "Manufacturing / Industrial",
		Filters: []TagFilter{
			{Key: "landuse", Value: "industrial"},
			{Key: "man_made", Value: "works"},
			{Key: "industrial", Value: "factory"},
			{Key: "building", Value: "industrial"},
		},
		Thresholds: DefaultThresholds,
	},
	{
		Category: CategoryLandfill,
		Label:    "Landfill / Waste disposal",
		Filters: []TagFilter{
			{Key: "landuse", Value: "landfill"},
			{Key: "amenity", Value: "waste_disposal"},
			{Key: "amenity", Value: "waste_transfer_station"},
		},
		Thresholds: DefaultThresholds,
	},
	{
		Category: CategoryScrapyards,
		Label:    "Scrapyards",
		Filters: []TagFilter{
			{Key: "industrial", Value: "scrap_yard"},
			{Key: "shop", Value: "scrap_yard"},
		},
		Thresholds: DefaultThresholds,
	},
	{
		Category: CategoryRecycling,
		Label:    "Recycling centres",
		Filters: []TagFilter{
			{Key: "amenity", Value: "recycling"},
		},
		Thresholds: DefaultThresholds,
	},
	{
		Category: CategoryGasworks,
		Label:    "Gasworks / Gasometers",
		Filters: []TagFilter{
			{Key: "man_made", Value: "gasometer"},
			{Key: "industrial", Value: "gas"},
		},
		Thresholds: DefaultThresholds,
	},
}

// Categories returns every category spec in display priority order.
func Categories() []CategorySpec {
	out := make([]CategorySpec, len(categoryTable))
	copy(out, categoryTable)
	return out
}

// AllCategories returns every known category in display priority order.
func AllCategories() []Category {
	out := make([]Category, len(categoryTable))
	for i, s := range categoryTable {
		out[i] = s.Category
	}
	return out
}

// Lookup returns the spec for c.
func Lookup(c Category) (CategorySpec, bool) {
	for _, s := range categoryTable {
		if s.Category == c {
			return s, true
		}
	}
	return CategorySpec{}, false
}

// ParseCategories keeps the known categories among tags, deduplicated and
// sorted into table order. Unknown tags are returned separately.
func ParseCategories(tags []string) (known []Category, unknown []string) {
	seen := make(map[Category]bool, len(tags))
	for _, t := range tags {
		c := Category(t)
		if _, ok := Lookup(c); !ok {
			unknown = append(unknown, t)
			continue
		}
		seen[c] = true
	}
	for _, s := range categoryTable {
		if seen[s.Category] {
			known = append(known, s.Category)
		}
	}
	return known, unknown
}

// Classify returns the first category whose filters match tags.
func Classify(tags map[string]string) (CategorySpec, bool) {
	for _, s := range categoryTable {
		if s.Matches(tags) {
			return s, true
		}
	}
	return CategorySpec{}, false
}

// DisplayLabel returns the display category label for tags, or OtherLabel.
func DisplayLabel(tags map[string]string) string {
	if s, ok := Classify(tags); ok {
		return s.Label
	}
	return OtherLabel
}
