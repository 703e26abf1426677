package overpass

import (
	"strings"
	"testing"

	"github.com/MeKo-Tech/proximity/internal/geo"
	"github.com/MeKo-Tech/proximity/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var belfast = geo.Point{Lat: 54.5973, Lon: -5.9301}

func TestBuildQuery_Petrol(t *testing.T) {
	q, err := BuildQuery(belfast, 2000, []types.Category{types.CategoryPetrolStations})
	require.NoError(t, err)

	want := `[out:json][timeout:180];
(
  node["amenity"="fuel"](around:2000,54.597300,-5.930100);
  way["amenity"="fuel"](around:2000,54.597300,-5.930100);
  relation["amenity"="fuel"](around:2000,54.597300,-5.930100);
  node["shop"="car_repair"](around:2000,54.597300,-5.930100);
  way["shop"="car_repair"](around:2000,54.597300,-5.930100);
  relation["shop"="car_repair"](around:2000,54.597300,-5.930100);
);
out body center geom;
`
	assert.Equal(t, want, q)
}

func TestBuildQuery_Deterministic(t *testing.T) {
	cats := []types.Category{types.CategoryLandfill, types.CategoryMining, types.CategorySubstations}
	a, err := BuildQuery(belfast, 500, cats)
	require.NoError(t, err)

	reordered := []types.Category{types.CategorySubstations, types.CategoryLandfill, types.CategoryMining}
	b, err := BuildQuery(belfast, 500, reordered)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Less(t, strings.Index(a, `"power"="substation"`), strings.Index(a, `"landuse"="quarry"`))
	assert.Less(t, strings.Index(a, `"landuse"="quarry"`), strings.Index(a, `"landuse"="landfill"`))
}

func TestBuildQuery_WildcardAndBareKey(t *testing.T) {
	q, err := BuildQuery(belfast, 100, []types.Category{types.CategoryMining, types.CategorySubstations})
	require.NoError(t, err)

	assert.Contains(t, q, `way["resource"](around:100,`)
	assert.Contains(t, q, `node["substation"](around:100,`)
	assert.NotContains(t, q, `"resource"=`)
}

func TestBuildQuery_ClauseCount(t *testing.T) {
	all := types.AllCategories()
	q, err := BuildQuery(belfast, 100, all)
	require.NoError(t, err)

	filters := 0
	for _, s := range types.Categories() {
		filters += len(s.Filters)
	}
	assert.Equal(t, filters*3, strings.Count(q, "(around:"))
}

func TestBuildQuery_NoValidCategories(t *testing.T) {
	_, err := BuildQuery(belfast, 100, []types.Category{"unicorns"})
	require.ErrorIs(t, err, ErrNoValidCategories)

	_, err = BuildQuery(belfast, 100, nil)
	require.ErrorIs(t, err, ErrNoValidCategories)
}
