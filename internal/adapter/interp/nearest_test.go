package interp

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNearestIndex(t *testing.T) {
	lons := []float64{-10, 0, 10, 179.5, math.NaN()}
	lats := []float64{50, 50, 50, 0, 0}

	idx, err := NewNearestIndex(lons, lats)
	require.NoError(t, err)

	tests := []struct {
		name     string
		lon, lat float64
		want     int
	}{
		{"exact", 0, 50, 1},
		{"closer west", -6, 51, 0},
		{"closer east", 6, 49, 2},
		{"across dateline", -179.8, 0.2, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, idx.Nearest(tt.lon, tt.lat))
		})
	}

	assert.Equal(t, []int{1, 2}, idx.Lookup([]float64{1, 9}, []float64{50, 50}))
}

func TestNearestIndex_Errors(t *testing.T) {
	_, err := NewNearestIndex([]float64{1}, nil)
	assert.Error(t, err)

	_, err = NewNearestIndex([]float64{math.NaN()}, []float64{0})
	assert.Error(t, err)
}

func TestProfile(t *testing.T) {
	depths := []float64{0, 10, 20, 50}
	values := []float64{20, 18, 16, math.NaN()}

	got := Profile(depths, values, []float64{0, 5, 20, 30, 60, -1})

	assert.InDelta(t, 20, got[0], 1e-9)
	assert.InDelta(t, 19, got[1], 1e-9)
	assert.InDelta(t, 16, got[2], 1e-9)
	assert.True(t, math.IsNaN(got[3]), "bracketed by missing value")
	assert.True(t, math.IsNaN(got[4]), "below deepest level")
	assert.True(t, math.IsNaN(got[5]), "above shallowest level")

	single := Profile([]float64{5}, []float64{3}, []float64{5, 6})
	assert.Equal(t, 3.0, single[0])
	assert.True(t, math.IsNaN(single[1]))
}
