package interp

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// Grid2D is one horizontal slab of a rectilinear field.
// Values[i][j] is the value at (X[j], Y[i]).
type Grid2D struct {
	X      []float64
	Y      []float64
	Values [][]float64
}

// Validate checks the slab shape and that both axes strictly increase.
func (g *Grid2D) Validate() error {
	if len(g.X) < 2 || len(g.Y) < 2 {
		return fmt.Errorf("slab needs at least 2x2 nodes, got %dx%d", len(g.X), len(g.Y))
	}
	if len(g.Values) != len(g.Y) {
		return fmt.Errorf("slab has %d rows for %d latitudes", len(g.Values), len(g.Y))
	}
	for i, row := range g.Values {
		if len(row) != len(g.X) {
			return fmt.Errorf("slab row %d has %d values for %d longitudes", i, len(row), len(g.X))
		}
	}
	if !increasing(g.X) {
		return errors.New("longitude axis must be strictly increasing")
	}
	if !increasing(g.Y) {
		return errors.New("latitude axis must be strictly increasing")
	}
	return nil
}

func increasing(axis []float64) bool {
	for i := 1; i < len(axis); i++ {
		if axis[i] <= axis[i-1] {
			return false
		}
	}
	return true
}

// Sample interpolates bilinearly at (x, y) on a validated slab. It reports
// false outside the slab. Any missing corner makes the sample missing.
func (g *Grid2D) Sample(x, y float64) (float64, bool) {
	i := cellIndex(g.X, x)
	j := cellIndex(g.Y, y)
	if i < 0 || j < 0 {
		return math.NaN(), false
	}

	t := clamp01((x - g.X[i]) / (g.X[i+1] - g.X[i]))
	u := clamp01((y - g.Y[j]) / (g.Y[j+1] - g.Y[j]))
	lower, upper := g.Values[j], g.Values[j+1]
	return (1-t)*(1-u)*lower[i] +
		t*(1-u)*lower[i+1] +
		(1-t)*u*upper[i] +
		t*u*upper[i+1], true
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// cellIndex returns i such that axis[i] <= v <= axis[i+1], or -1.
func cellIndex(axis []float64, v float64) int {
	n := len(axis)
	if n < 2 || math.IsNaN(v) || v < axis[0] || v > axis[n-1] {
		return -1
	}
	i := sort.SearchFloat64s(axis, v)
	if i == 0 {
		return 0
	}
	if i >= n {
		return n - 2
	}
	return i - 1
}

// LonAxisRequiresWrap reports whether a longitude axis runs 0..360.
func LonAxisRequiresWrap(lons []float64) bool {
	if len(lons) == 0 {
		return false
	}
	lo, hi := lons[0], lons[len(lons)-1]
	if lo > hi {
		lo, hi = hi, lo
	}
	return lo >= 0 && hi > 180
}

// NormalizeLon360 maps a longitude into [0, 360).
func NormalizeLon360(lon float64) float64 {
	lon = math.Mod(lon, 360)
	if lon < 0 {
		lon += 360
	}
	return lon
}

// NormalizeLon180 maps a longitude into [-180, 180).
func NormalizeLon180(lon float64) float64 {
	return NormalizeLon360(lon+180) - 180
}

// NormalizeLonForAxis expresses lon in the convention of the axis.
func NormalizeLonForAxis(lons []float64, lon float64) float64 {
	if LonAxisRequiresWrap(lons) {
		return NormalizeLon360(lon)
	}
	return lon
}
