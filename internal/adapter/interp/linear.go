package interp

import (
	"math"

	gointerp "gonum.org/v1/gonum/interp"
)

// Profile interpolates a vertical profile onto target depths. Depths must be
// strictly increasing. Targets outside the profile range, or bracketed by a
// missing value, are NaN.
func Profile(depths, values, targets []float64) []float64 {
	out := make([]float64, len(targets))
	for i := range out {
		out[i] = math.NaN()
	}
	switch len(depths) {
	case 0:
		return out
	case 1:
		for i, z := range targets {
			if z == depths[0] {
				out[i] = values[0]
			}
		}
		return out
	}

	var pl gointerp.PiecewiseLinear
	// Fit never fails for strictly increasing depths of equal length.
	_ = pl.Fit(depths, values)
	last := len(depths) - 1
	for i, z := range targets {
		if math.IsNaN(z) || z < depths[0] || z > depths[last] {
			continue
		}
		if exact := indexOf(depths, z); exact >= 0 {
			out[i] = values[exact]
			continue
		}
		out[i] = pl.Predict(z)
	}
	return out
}

func indexOf(xs []float64, v float64) int {
	for i, x := range xs {
		if x == v {
			return i
		}
	}
	return -1
}
