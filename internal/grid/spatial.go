package grid

import (
	"fmt"
	"math"
	"sort"

	"go.ngs.io/ocean-matchup/internal/adapter/interp"
)

// Box is a lon/lat bounding box in degrees, longitudes in [-180, 180].
type Box struct {
	LonMin, LonMax float64
	LatMin, LatMax float64
}

// World covers the whole globe.
var World = Box{LonMin: -180, LonMax: 180, LatMin: -90, LatMax: 90}

// Contains reports whether a point lies inside the box, edges included.
func (b Box) Contains(lon, lat float64) bool {
	lon = normalizeLon(lon)
	return lon >= b.LonMin && lon <= b.LonMax && lat >= b.LatMin && lat <= b.LatMax
}

// Intersect returns the overlap of two boxes.
func (b Box) Intersect(o Box) (Box, error) {
	r := Box{
		LonMin: math.Max(b.LonMin, o.LonMin),
		LonMax: math.Min(b.LonMax, o.LonMax),
		LatMin: math.Max(b.LatMin, o.LatMin),
		LatMax: math.Min(b.LatMax, o.LatMax),
	}
	if r.LonMin > r.LonMax || r.LatMin > r.LatMax {
		return Box{}, fmt.Errorf("%w: boxes %v and %v do not overlap", ErrEmptyExtent, b, o)
	}
	return r, nil
}

// Pad widens the box by delta degrees on every side.
func (b Box) Pad(delta float64) Box {
	return Box{b.LonMin - delta, b.LonMax + delta, b.LatMin - delta, b.LatMax + delta}
}

// Clip limits the box to another box.
func (b Box) Clip(limit Box) Box {
	return Box{
		LonMin: math.Max(b.LonMin, limit.LonMin),
		LonMax: math.Min(b.LonMax, limit.LonMax),
		LatMin: math.Max(b.LatMin, limit.LatMin),
		LatMax: math.Min(b.LatMax, limit.LatMax),
	}
}

func (b Box) String() string {
	return fmt.Sprintf("lon[%g, %g] lat[%g, %g]", b.LonMin, b.LonMax, b.LatMin, b.LatMax)
}

func normalizeLon(lon float64) float64 {
	if lon >= -180 && lon <= 180 {
		return lon
	}
	return interp.NormalizeLon180(lon)
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// populated reports for each point whether any variable has a value there.
func (d *Dataset) populated() []bool {
	np := d.NP()
	mask := make([]bool, np)
	for _, v := range d.Vars {
		for i, val := range v.Values {
			if !math.IsNaN(val) {
				mask[i%np] = true
			}
		}
	}
	return mask
}

func extentOf(lons, lats []float64, keep func(p int) bool) (Box, error) {
	b := Box{math.Inf(1), math.Inf(-1), math.Inf(1), math.Inf(-1)}
	found := false
	for p := range lons {
		if !keep(p) || !finite(lons[p]) || !finite(lats[p]) {
			continue
		}
		lon := normalizeLon(lons[p])
		b.LonMin = math.Min(b.LonMin, lon)
		b.LonMax = math.Max(b.LonMax, lon)
		b.LatMin = math.Min(b.LatMin, lats[p])
		b.LatMax = math.Max(b.LatMax, lats[p])
		found = true
	}
	if !found {
		return Box{}, ErrEmptyExtent
	}
	return b, nil
}

// CoordinateExtent returns the box spanned by all grid coordinates.
func (d *Dataset) CoordinateExtent() (Box, error) {
	return extentOf(d.Lon, d.Lat, func(int) bool { return true })
}

// PopulatedExtent returns the box spanned by points holding data.
func (d *Dataset) PopulatedExtent() (Box, error) {
	mask := d.populated()
	return extentOf(d.Lon, d.Lat, func(p int) bool { return mask[p] })
}

// PopulatedPoints returns the coordinates of points holding data.
func (d *Dataset) PopulatedPoints() (lons, lats []float64) {
	mask := d.populated()
	for p, ok := range mask {
		if ok {
			lons = append(lons, normalizeLon(d.Lon[p]))
			lats = append(lats, d.Lat[p])
		}
	}
	return lons, lats
}

// TrimBoundaryArtifact drops the first coordinate of a sorted unique list
// when it is separated from the rest by a gap more than ten times both of
// the following steps. Curvilinear model output often carries a stray
// boundary row or column that would otherwise stretch the extent.
func TrimBoundaryArtifact(unique []float64) ([]float64, error) {
	if len(unique) < 4 {
		return nil, fmt.Errorf("%w: got %d", ErrTooFewCoordinates, len(unique))
	}
	d1 := unique[1] - unique[0]
	d2 := unique[2] - unique[1]
	d3 := unique[3] - unique[2]
	if d1/d2 > 10 && d1/d3 > 10 {
		return unique[1:], nil
	}
	return unique, nil
}

// TrimmedExtent returns the populated extent after dropping a boundary
// artefact on each axis independently.
func TrimmedExtent(lons, lats []float64) (Box, error) {
	normalized := make([]float64, len(lons))
	for i, lon := range lons {
		normalized[i] = normalizeLon(lon)
	}
	ulon, err := TrimBoundaryArtifact(uniqueSorted(normalized))
	if err != nil {
		return Box{}, fmt.Errorf("longitude: %w", err)
	}
	ulat, err := TrimBoundaryArtifact(uniqueSorted(lats))
	if err != nil {
		return Box{}, fmt.Errorf("latitude: %w", err)
	}
	return Box{
		LonMin: ulon[0], LonMax: ulon[len(ulon)-1],
		LatMin: ulat[0], LatMax: ulat[len(ulat)-1],
	}, nil
}

// CanonicalResolution is the finest step used when resampling onto a
// regular lon/lat grid, in degrees.
const CanonicalResolution = 0.5

// MaxResampleCells bounds the horizontal size of a ToLatLon target.
const MaxResampleCells = 4 << 20

// Resolution estimates the horizontal step in degrees as the median
// longitude step between neighbouring points of a row, so curvilinear
// grids are measured along their own index space. Steps finer than
// CanonicalResolution are coarsened to it.
func (d *Dataset) Resolution() (float64, error) {
	var steps []float64
	for y := 0; y < d.NY; y++ {
		for x := 1; x < d.NX; x++ {
			p := y*d.NX + x
			step := math.Abs(normalizeLon(d.Lon[p]) - normalizeLon(d.Lon[p-1]))
			// Zero and wrapped steps say nothing about spacing.
			if finite(step) && step > 0 && step < 180 {
				steps = append(steps, step)
			}
		}
	}
	if len(steps) == 0 {
		// Point lists without a row structure.
		lons := make([]float64, len(d.Lon))
		for i, lon := range d.Lon {
			lons[i] = normalizeLon(lon)
		}
		u := uniqueSorted(lons)
		for i := 1; i < len(u); i++ {
			steps = append(steps, u[i]-u[i-1])
		}
	}
	if len(steps) == 0 {
		return 0, fmt.Errorf("%w: cannot estimate resolution from %d points", ErrTooFewCoordinates, d.NP())
	}
	sort.Float64s(steps)
	return math.Max(CanonicalResolution, steps[len(steps)/2]), nil
}

// ResampledExtent resamples the dataset onto a regular global lon/lat grid
// at Resolution and returns the populated extent padded by one cell and
// clipped to the globe.
func (d *Dataset) ResampledExtent() (Box, error) {
	res, err := d.Resolution()
	if err != nil {
		return Box{}, err
	}
	regular, err := d.ToLatLon(World, res)
	if err != nil {
		return Box{}, err
	}
	ext, err := regular.PopulatedExtent()
	if err != nil {
		return Box{}, err
	}
	return ext.Pad(res).Clip(World), nil
}

// ToLatLon resamples onto a regular grid of cell centres covering box at
// resolution res. Rectilinear sources are interpolated bilinearly;
// curvilinear sources are averaged into the target cells.
func (d *Dataset) ToLatLon(box Box, res float64) (*Dataset, error) {
	if res <= 0 || math.IsNaN(res) {
		return nil, fmt.Errorf("invalid resolution %g", res)
	}
	if cells := math.Ceil((box.LonMax-box.LonMin)/res) * math.Ceil((box.LatMax-box.LatMin)/res); cells > MaxResampleCells {
		return nil, fmt.Errorf("%w: %v at %g degrees needs %.0f cells", ErrGridTooLarge, box, res, cells)
	}
	var lons, lats []float64
	for lon := box.LonMin + res/2; lon < box.LonMax; lon += res {
		lons = append(lons, lon)
	}
	for lat := box.LatMin + res/2; lat < box.LatMax; lat += res {
		lats = append(lats, lat)
	}
	if len(lons) == 0 || len(lats) == 0 {
		return nil, fmt.Errorf("%w: box %v is smaller than one cell", ErrEmptyExtent, box)
	}

	target, err := NewRegular(lons, lats, d.Depths, d.Times)
	if err != nil {
		return nil, err
	}
	for k, v := range d.Attrs {
		target.Attrs[k] = v
	}
	target.Sources = append([]string(nil), d.Sources...)

	if g, ok := d.rectilinearAxes(); ok {
		d.resampleBilinear(target, g)
	} else {
		d.resampleBins(target, box, res)
	}
	return target, nil
}

// rectilinearAxes returns increasing 1-D axes when the grid supports
// bilinear interpolation, with a flag for a reversed latitude axis.
func (d *Dataset) rectilinearAxes() (*interp.Grid2D, bool) {
	if d.NX < 2 || d.NY < 2 || !d.IsRegular() {
		return nil, false
	}
	lons, lats := d.Axes()
	if lats[0] > lats[len(lats)-1] {
		for i, j := 0, len(lats)-1; i < j; i, j = i+1, j-1 {
			lats[i], lats[j] = lats[j], lats[i]
		}
	}
	g := &interp.Grid2D{X: lons, Y: lats, Values: make([][]float64, d.NY)}
	for i := range g.Values {
		g.Values[i] = make([]float64, d.NX)
	}
	if err := g.Validate(); err != nil {
		return nil, false
	}
	return g, true
}

func (d *Dataset) resampleBilinear(target *Dataset, g *interp.Grid2D) {
	reversed := d.NY > 1 && d.Lat[0] > d.Lat[(d.NY-1)*d.NX]
	nt, nz, np, tnp := d.NT(), d.NZ(), d.NP(), target.NP()

	// Precompute target longitudes in the source axis convention.
	tlon := make([]float64, tnp)
	for p := range tlon {
		tlon[p] = interp.NormalizeLonForAxis(g.X, target.Lon[p])
	}

	for _, v := range d.Vars {
		vals := make([]float64, nt*nz*tnp)
		for t := 0; t < nt; t++ {
			for z := 0; z < nz; z++ {
				base := (t*nz + z) * np
				for y := 0; y < d.NY; y++ {
					row := y
					if reversed {
						row = d.NY - 1 - y
					}
					copy(g.Values[row], v.Values[base+y*d.NX:base+(y+1)*d.NX])
				}
				tbase := (t*nz + z) * tnp
				for p := 0; p < tnp; p++ {
					val, ok := g.Sample(tlon[p], target.Lat[p])
					if !ok {
						val = math.NaN()
					}
					vals[tbase+p] = val
				}
			}
		}
		nv := *v
		nv.Values = vals
		target.Vars = append(target.Vars, &nv)
	}
}

func (d *Dataset) resampleBins(target *Dataset, box Box, res float64) {
	nt, nz, np, tnp := d.NT(), d.NZ(), d.NP(), target.NP()
	cell := make([]int, np)
	for p := 0; p < np; p++ {
		cell[p] = -1
		lon, lat := normalizeLon(d.Lon[p]), d.Lat[p]
		if !finite(lon) || !finite(lat) || !box.Contains(lon, lat) {
			continue
		}
		ix := int((lon - box.LonMin) / res)
		iy := int((lat - box.LatMin) / res)
		if ix >= target.NX {
			ix = target.NX - 1
		}
		if iy >= target.NY {
			iy = target.NY - 1
		}
		cell[p] = iy*target.NX + ix
	}

	sum := make([]float64, tnp)
	count := make([]int, tnp)
	for _, v := range d.Vars {
		vals := make([]float64, nt*nz*tnp)
		for t := 0; t < nt; t++ {
			for z := 0; z < nz; z++ {
				for i := range sum {
					sum[i], count[i] = 0, 0
				}
				base := (t*nz + z) * np
				for p := 0; p < np; p++ {
					if c := cell[p]; c >= 0 {
						if val := v.Values[base+p]; !math.IsNaN(val) {
							sum[c] += val
							count[c]++
						}
					}
				}
				tbase := (t*nz + z) * tnp
				for c := 0; c < tnp; c++ {
					if count[c] == 0 {
						vals[tbase+c] = math.NaN()
					} else {
						vals[tbase+c] = sum[c] / float64(count[c])
					}
				}
			}
		}
		nv := *v
		nv.Values = vals
		target.Vars = append(target.Vars, &nv)
	}
}

// Crop restricts the dataset to the index rectangle enclosing the points
// inside box. Points of that rectangle outside the box become missing.
func (d *Dataset) Crop(box Box) (*Dataset, error) {
	x0, x1, y0, y1 := d.NX, -1, d.NY, -1
	inside := make([]bool, d.NP())
	for y := 0; y < d.NY; y++ {
		for x := 0; x < d.NX; x++ {
			p := y*d.NX + x
			if finite(d.Lon[p]) && finite(d.Lat[p]) && box.Contains(d.Lon[p], d.Lat[p]) {
				inside[p] = true
				x0, x1 = min(x0, x), max(x1, x)
				y0, y1 = min(y0, y), max(y1, y)
			}
		}
	}
	if x1 < 0 {
		return nil, fmt.Errorf("%w: no grid points in %v", ErrEmptyExtent, box)
	}

	nx, ny := x1-x0+1, y1-y0+1
	lon := make([]float64, 0, nx*ny)
	lat := make([]float64, 0, nx*ny)
	src := make([]int, 0, nx*ny)
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			p := y*d.NX + x
			lon = append(lon, d.Lon[p])
			lat = append(lat, d.Lat[p])
			src = append(src, p)
		}
	}

	out := d.shell(d.Times, d.Depths)
	out.NX, out.NY, out.Lon, out.Lat = nx, ny, lon, lat
	d.remap(out, src, func(p int) bool { return inside[p] })
	return out, nil
}

// remap fills out's variables by copying source point src[q] to target
// point q. keep, when non-nil, masks source points.
func (d *Dataset) remap(out *Dataset, src []int, keep func(p int) bool) {
	nt, nz, np, tnp := d.NT(), d.NZ(), d.NP(), len(src)
	for _, v := range d.Vars {
		vals := make([]float64, nt*nz*tnp)
		for t := 0; t < nt; t++ {
			for z := 0; z < nz; z++ {
				base := (t*nz + z) * np
				tbase := (t*nz + z) * tnp
				for q, p := range src {
					if keep != nil && !keep(p) {
						vals[tbase+q] = math.NaN()
						continue
					}
					vals[tbase+q] = v.Values[base+p]
				}
			}
		}
		nv := *v
		nv.Values = vals
		out.Vars = append(out.Vars, &nv)
	}
}

// RegridNearest resamples the dataset onto the horizontal grid of target by
// nearest neighbour on the sphere.
func (d *Dataset) RegridNearest(target *Dataset) (*Dataset, error) {
	idx, err := interp.NewNearestIndex(d.Lon, d.Lat)
	if err != nil {
		return nil, fmt.Errorf("failed to index source grid: %w", err)
	}
	src := idx.Lookup(target.Lon, target.Lat)

	out := d.shell(d.Times, d.Depths)
	out.NX, out.NY = target.NX, target.NY
	out.Lon = append([]float64(nil), target.Lon...)
	out.Lat = append([]float64(nil), target.Lat...)
	d.remap(out, src, nil)
	return out, nil
}

// SetGrid replaces the horizontal coordinates with those of ref. Both grids
// must have the same number of points.
func (d *Dataset) SetGrid(ref *Dataset) error {
	if ref.NP() != d.NP() {
		return fmt.Errorf("%w: reference grid has %d points, data has %d", ErrShapeMismatch, ref.NP(), d.NP())
	}
	d.NX, d.NY = ref.NX, ref.NY
	d.Lon = append([]float64(nil), ref.Lon...)
	d.Lat = append([]float64(nil), ref.Lat...)
	return nil
}
