package grid

import (
	"fmt"
	"math"

	"go.ngs.io/ocean-matchup/internal/adapter/interp"
)

// Top extracts the shallowest level.
func (d *Dataset) Top() *Dataset {
	return d.level(func(column func(z int) float64) float64 { return column(0) })
}

// Bottom extracts the deepest non-missing value of every column.
func (d *Dataset) Bottom() *Dataset {
	nz := d.NZ()
	return d.level(func(column func(z int) float64) float64 {
		for z := nz - 1; z >= 0; z-- {
			if v := column(z); !math.IsNaN(v) {
				return v
			}
		}
		return math.NaN()
	})
}

func (d *Dataset) level(pick func(column func(z int) float64) float64) *Dataset {
	out := d.shell(d.Times, nil)
	np, nt := d.NP(), d.NT()
	for _, v := range d.Vars {
		vals := make([]float64, nt*np)
		for t := 0; t < nt; t++ {
			for p := 0; p < np; p++ {
				vals[t*np+p] = pick(func(z int) float64 { return v.Values[d.index(t, z, p)] })
			}
		}
		nv := *v
		nv.Values = vals
		out.Vars = append(out.Vars, &nv)
	}
	return out
}

// DepthRange returns the shallowest and deepest level.
func (d *Dataset) DepthRange() (float64, float64, error) {
	if len(d.Depths) == 0 {
		return 0, 0, fmt.Errorf("dataset has no vertical axis")
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, z := range d.Depths {
		lo = math.Min(lo, z)
		hi = math.Max(hi, z)
	}
	return lo, hi, nil
}

// VerticalInterp interpolates every column linearly onto levels. Levels
// outside the column's depth range are missing.
func (d *Dataset) VerticalInterp(levels []float64) (*Dataset, error) {
	if len(d.Depths) == 0 {
		return nil, fmt.Errorf("cannot interpolate vertically: dataset has no vertical axis")
	}
	for i := 1; i < len(d.Depths); i++ {
		if d.Depths[i] <= d.Depths[i-1] {
			return nil, fmt.Errorf("cannot interpolate vertically: depths must increase")
		}
	}
	depths := d.Depths
	return d.interpolateColumns(levels, func(int) []float64 { return depths })
}

// VerticalInterpThickness interpolates onto levels using per-point level
// depths derived from a cell-thickness field. The first variable of
// thickness supplies NZ thickness values per point; each level sits at the
// centre of its cell.
func (d *Dataset) VerticalInterpThickness(levels []float64, thickness *Dataset) (*Dataset, error) {
	if len(thickness.Vars) == 0 || thickness.NT() == 0 {
		return nil, fmt.Errorf("%w: thickness field is empty", ErrShapeMismatch)
	}
	if thickness.NP() != d.NP() || thickness.NZ() != d.NZ() {
		return nil, fmt.Errorf("%w: thickness is %dx%d, data is %dx%d",
			ErrShapeMismatch, thickness.NP(), thickness.NZ(), d.NP(), d.NZ())
	}
	th := thickness.Vars[0].Values
	nz, np := d.NZ(), d.NP()
	centres := make([][]float64, np)
	for p := 0; p < np; p++ {
		col := make([]float64, 0, nz)
		var top float64
		for z := 0; z < nz; z++ {
			h := th[z*np+p]
			if math.IsNaN(h) || h <= 0 {
				break
			}
			col = append(col, top+h/2)
			top += h
		}
		centres[p] = col
	}
	return d.interpolateColumns(levels, func(p int) []float64 { return centres[p] })
}

func (d *Dataset) interpolateColumns(levels []float64, depthsAt func(p int) []float64) (*Dataset, error) {
	out := d.shell(d.Times, levels)
	nz, np, nt, nl := d.NZ(), d.NP(), d.NT(), len(levels)
	column := make([]float64, nz)
	for _, v := range d.Vars {
		vals := make([]float64, nt*nl*np)
		for t := 0; t < nt; t++ {
			for p := 0; p < np; p++ {
				depths := depthsAt(p)
				for z := range depths {
					column[z] = v.Values[d.index(t, z, p)]
				}
				interpolated := interp.Profile(depths, column[:len(depths)], levels)
				for l, val := range interpolated {
					vals[(t*nl+l)*np+p] = val
				}
			}
		}
		nv := *v
		nv.Values = vals
		out.Vars = append(out.Vars, &nv)
	}
	return out, nil
}
