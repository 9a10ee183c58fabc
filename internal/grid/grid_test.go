package grid

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var nan = math.NaN()

func month(year, m int) time.Time {
	return time.Date(year, time.Month(m), 15, 0, 0, 0, 0, time.UTC)
}

// newField builds a single-variable dataset on a regular grid.
func newField(t *testing.T, name string, lons, lats, depths []float64, times []time.Time, values []float64) *Dataset {
	t.Helper()
	ds, err := NewRegular(lons, lats, depths, times)
	require.NoError(t, err)
	_, err = ds.AddVariable(name, "units", values)
	require.NoError(t, err)
	return ds
}

func TestNew_Validation(t *testing.T) {
	_, err := New(2, 2, []float64{0, 1, 0}, []float64{0, 0, 1, 1}, nil, nil)
	assert.ErrorIs(t, err, ErrShapeMismatch)

	ds, err := NewRegular([]float64{0, 1}, []float64{50}, nil, []time.Time{month(2000, 1)})
	require.NoError(t, err)
	_, err = ds.AddVariable("x", "", []float64{1})
	assert.ErrorIs(t, err, ErrShapeMismatch)
	_, err = ds.AddVariable("x", "", []float64{1, 2})
	require.NoError(t, err)
	_, err = ds.AddVariable("x", "", []float64{1, 2})
	assert.Error(t, err)

	_, err = ds.Var("y")
	assert.ErrorIs(t, err, ErrVariableNotFound)
}

func TestDataset_SelectRenameDrop(t *testing.T) {
	ds, err := NewRegular([]float64{0}, []float64{0}, nil, []time.Time{month(2000, 1)})
	require.NoError(t, err)
	_, _ = ds.AddVariable("a", "m", []float64{1})
	_, _ = ds.AddVariable("b", "m", []float64{2})

	sel, err := ds.Select("b")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, sel.VarNames())

	require.NoError(t, ds.Rename("a", "model"))
	assert.Error(t, ds.Rename("b", "model"))
	ds.Drop("b", "missing")
	assert.Equal(t, []string{"model"}, ds.VarNames())
}

func TestTimeMeans(t *testing.T) {
	times := []time.Time{month(2001, 1), month(2000, 1), month(2000, 1).AddDate(0, 0, 5), month(2000, 2)}
	ds := newField(t, "v", []float64{0}, []float64{0}, nil, times, []float64{10, 2, 4, nan})

	assert.Equal(t, []int{2000, 2001}, ds.Years())
	assert.Equal(t, []int{1, 2}, ds.Months())

	ym := ds.YearMonthMean()
	require.Equal(t, 3, ym.NT())
	assert.Equal(t, month(2000, 1), ym.Times[0])
	assert.Equal(t, []float64{3}, ym.Vars[0].Values[:1])
	assert.True(t, math.IsNaN(ym.Vars[0].Values[1]))
	assert.Equal(t, 10.0, ym.Vars[0].Values[2])

	clim := ds.MonthlyMean()
	require.Equal(t, 2, clim.NT())
	assert.InDelta(t, 16.0/3, clim.Vars[0].Values[0], 1e-12)
	assert.Equal(t, 2000, clim.Times[0].Year())

	mean := ds.TimeMean()
	require.Equal(t, 1, mean.NT())
	assert.InDelta(t, 16.0/3, mean.Vars[0].Values[0], 1e-12)
}

func TestMonthlyClimatology(t *testing.T) {
	leap := time.Date(1996, 2, 29, 12, 0, 0, 0, time.UTC)
	times := []time.Time{month(1999, 1), month(2000, 1), leap, month(2001, 3)}
	ds := newField(t, "v", []float64{0}, []float64{0}, nil, times, []float64{1, 3, 5, 7})

	clim := ds.MonthlyClimatology(2001)
	require.Equal(t, 3, clim.NT())
	assert.Equal(t, []int{2001}, clim.Years())
	assert.Equal(t, month(2001, 1), clim.Times[0])
	assert.Equal(t, time.Date(2001, 2, 28, 12, 0, 0, 0, time.UTC), clim.Times[1])
	assert.Equal(t, []float64{2, 5, 7}, clim.Vars[0].Values)
	// The source keeps its own times.
	assert.Equal(t, 1999, ds.Times[0].Year())
}

func TestSubsets(t *testing.T) {
	times := []time.Time{month(2000, 1), month(2000, 2), month(2001, 1)}
	ds := newField(t, "v", []float64{0, 1}, []float64{0}, nil, times, []float64{1, 2, 3, 4, 5, 6})

	y := ds.SubsetYears([]int{2001})
	assert.Equal(t, []float64{5, 6}, y.Vars[0].Values)

	m := ds.SubsetMonth(1)
	assert.Equal(t, []float64{1, 2, 5, 6}, m.Vars[0].Values)

	first, err := ds.First()
	require.NoError(t, err)
	assert.Equal(t, 1, first.NT())

	empty := ds.SubsetYears([]int{1999})
	assert.Equal(t, 0, empty.NT())
	_, err = empty.First()
	assert.ErrorIs(t, err, ErrNoTimeSteps)
}

func TestMergeTimeAndEnsemble(t *testing.T) {
	a := newField(t, "v", []float64{0}, []float64{0}, nil, []time.Time{month(2001, 1)}, []float64{1})
	a.Sources = []string{"a.nc"}
	b := newField(t, "v", []float64{0}, []float64{0}, nil, []time.Time{month(2000, 1)}, []float64{3})
	b.Sources = []string{"b.nc"}

	merged, err := MergeTime(a, b)
	require.NoError(t, err)
	assert.Equal(t, []int{2000, 2001}, merged.Years())
	assert.Equal(t, []float64{3, 1}, merged.Vars[0].Values)
	assert.Equal(t, []string{"a.nc", "b.nc"}, merged.Sources)

	ens, err := EnsembleMean(a, b)
	require.NoError(t, err)
	assert.Equal(t, []float64{2}, ens.Vars[0].Values)
	assert.Equal(t, 2001, ens.Times[0].Year())

	wide := newField(t, "v", []float64{0, 1}, []float64{0}, nil, []time.Time{month(2000, 1)}, []float64{1, 2})
	_, err = MergeTime(a, wide)
	assert.ErrorIs(t, err, ErrShapeMismatch)
	_, err = EnsembleMean(a, wide)
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestTopBottom(t *testing.T) {
	// Two points, three levels; the second point is land below 10 m.
	ds := newField(t, "v", []float64{0, 1}, []float64{0}, []float64{0, 10, 20},
		[]time.Time{month(2000, 1)},
		[]float64{
			1, 2, // z=0
			3, 4, // z=10
			5, nan, // z=20
		})

	top := ds.Top()
	assert.Equal(t, 1, top.NZ())
	assert.Empty(t, top.Depths)
	assert.Equal(t, []float64{1, 2}, top.Vars[0].Values)

	bottom := ds.Bottom()
	assert.Equal(t, []float64{5, 4}, bottom.Vars[0].Values)
}

func TestVerticalInterp(t *testing.T) {
	ds := newField(t, "v", []float64{0}, []float64{0}, []float64{0, 10, 20},
		[]time.Time{month(2000, 1)}, []float64{20, 10, 0})

	out, err := ds.VerticalInterp([]float64{5, 15, 30})
	require.NoError(t, err)
	assert.Equal(t, []float64{5, 15, 30}, out.Depths)
	assert.InDelta(t, 15, out.Vars[0].Values[0], 1e-9)
	assert.InDelta(t, 5, out.Vars[0].Values[1], 1e-9)
	assert.True(t, math.IsNaN(out.Vars[0].Values[2]))

	flat := newField(t, "v", []float64{0}, []float64{0}, nil, []time.Time{month(2000, 1)}, []float64{1})
	_, err = flat.VerticalInterp([]float64{5})
	assert.Error(t, err)
}

func TestVerticalInterpThickness(t *testing.T) {
	ds := newField(t, "v", []float64{0}, []float64{0}, []float64{1, 2, 3},
		[]time.Time{month(2000, 1)}, []float64{30, 20, 10})
	// Thicknesses 10, 10, 20 put cell centres at 5, 15 and 30 m.
	th := newField(t, "e3t", []float64{0}, []float64{0}, []float64{1, 2, 3},
		[]time.Time{{}}, []float64{10, 10, 20})

	out, err := ds.VerticalInterpThickness([]float64{5, 10, 30, 40}, th)
	require.NoError(t, err)
	vals := out.Vars[0].Values
	assert.InDelta(t, 30, vals[0], 1e-9)
	assert.InDelta(t, 25, vals[1], 1e-9)
	assert.InDelta(t, 10, vals[2], 1e-9)
	assert.True(t, math.IsNaN(vals[3]))

	short := newField(t, "e3t", []float64{0}, []float64{0}, []float64{1, 2}, []time.Time{{}}, []float64{10, 10})
	_, err = ds.VerticalInterpThickness([]float64{5}, short)
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestTrimBoundaryArtifact(t *testing.T) {
	tests := []struct {
		name    string
		in      []float64
		want    []float64
		wantErr error
	}{
		{"stray first value", []float64{0, 100, 100.1, 100.2, 100.3}, []float64{100, 100.1, 100.2, 100.3}, nil},
		{"even spacing", []float64{0, 1, 2, 3, 4}, []float64{0, 1, 2, 3, 4}, nil},
		{"only one large ratio", []float64{0, 100, 101, 150}, []float64{0, 100, 101, 150}, nil},
		{"too few", []float64{0, 1, 2}, nil, ErrTooFewCoordinates},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := TrimBoundaryArtifact(tt.in)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTrimmedExtent(t *testing.T) {
	lons := []float64{-40, -10, -9.9, -9.8, -9.7, -9.7}
	lats := []float64{50, 51, 52, 53, 54, 55}
	box, err := TrimmedExtent(lons, lats)
	require.NoError(t, err)
	assert.Equal(t, Box{LonMin: -10, LonMax: -9.7, LatMin: 50, LatMax: 55}, box)

	_, err = TrimmedExtent([]float64{1, 2}, []float64{1, 2})
	assert.ErrorIs(t, err, ErrTooFewCoordinates)
}

func TestBox(t *testing.T) {
	a := Box{-20, 10, 40, 65}
	b := Box{-10, 30, 30, 60}
	got, err := a.Intersect(b)
	require.NoError(t, err)
	assert.Equal(t, Box{-10, 10, 40, 60}, got)

	_, err = a.Intersect(Box{20, 30, 0, 10})
	assert.ErrorIs(t, err, ErrEmptyExtent)

	assert.Equal(t, World, Box{-179, 179, -89, 89}.Pad(2).Clip(World))
	assert.True(t, Box{-10, 10, -10, 10}.Contains(355, 0))
}

func TestCrop(t *testing.T) {
	lons := []float64{-2, -1, 0, 1, 2}
	lats := []float64{49, 50, 51}
	vals := make([]float64, 15)
	for i := range vals {
		vals[i] = float64(i)
	}
	ds := newField(t, "v", lons, lats, nil, []time.Time{month(2000, 1)}, vals)

	out, err := ds.Crop(Box{-1, 1, 50, 51})
	require.NoError(t, err)
	assert.Equal(t, 3, out.NX)
	assert.Equal(t, 2, out.NY)
	assert.Equal(t, []float64{6, 7, 8, 11, 12, 13}, out.Vars[0].Values)

	_, err = ds.Crop(Box{10, 20, 0, 10})
	assert.ErrorIs(t, err, ErrEmptyExtent)
}

func TestCrop_Curvilinear(t *testing.T) {
	// A rotated 2x2 grid: the bounding rectangle keeps the outside point masked.
	ds, err := New(2, 2, []float64{0, 1, 0.5, 5}, []float64{0, 0, 1, 1}, nil, []time.Time{month(2000, 1)})
	require.NoError(t, err)
	_, err = ds.AddVariable("v", "", []float64{1, 2, 3, 4})
	require.NoError(t, err)

	out, err := ds.Crop(Box{-1, 2, -1, 2})
	require.NoError(t, err)
	assert.Equal(t, 4, out.NP())
	assert.Equal(t, []float64{1, 2, 3}, out.Vars[0].Values[:3])
	assert.True(t, math.IsNaN(out.Vars[0].Values[3]))
	assert.False(t, out.IsRegular())
}

func TestExtents(t *testing.T) {
	ds := newField(t, "v", []float64{350, 355, 0, 5}, []float64{10, 20}, nil,
		[]time.Time{month(2000, 1)},
		[]float64{nan, 1, 2, nan, nan, nan, 3, nan})

	all, err := ds.CoordinateExtent()
	require.NoError(t, err)
	assert.Equal(t, Box{-10, 5, 10, 20}, all)

	pop, err := ds.PopulatedExtent()
	require.NoError(t, err)
	assert.Equal(t, Box{-5, 0, 10, 20}, pop)

	lons, lats := ds.PopulatedPoints()
	assert.Equal(t, []float64{-5, 0, 0}, lons)
	assert.Equal(t, []float64{10, 10, 20}, lats)

	res, err := ds.Resolution()
	require.NoError(t, err)
	assert.Equal(t, 5.0, res)

	empty := newField(t, "v", []float64{0}, []float64{0}, nil, []time.Time{month(2000, 1)}, []float64{nan})
	_, err = empty.PopulatedExtent()
	assert.ErrorIs(t, err, ErrEmptyExtent)
}

func TestToLatLon_Regular(t *testing.T) {
	lons := []float64{-2, -1, 0, 1, 2}
	lats := []float64{2, 1, 0, -1, -2}
	vals := make([]float64, 25)
	for y, lat := range lats {
		for x, lon := range lons {
			vals[y*5+x] = lon + 10*lat
		}
	}
	ds := newField(t, "v", lons, lats, nil, []time.Time{month(2000, 1)}, vals)

	out, err := ds.ToLatLon(Box{-2, 2, -2, 2}, 1)
	require.NoError(t, err)
	assert.Equal(t, 4, out.NX)
	assert.Equal(t, 4, out.NY)
	// Centre of the south-west cell is (-1.5, -1.5).
	assert.InDelta(t, -1.5-15, out.Vars[0].Values[0], 1e-9)
}

func TestToLatLon_Curvilinear(t *testing.T) {
	ds, err := New(2, 2, []float64{0.2, 0.8, 1.2, 1.9}, []float64{0.1, 0.2, 0.3, 0.9}, nil, []time.Time{month(2000, 1)})
	require.NoError(t, err)
	_, err = ds.AddVariable("v", "", []float64{1, 3, 10, nan})
	require.NoError(t, err)

	out, err := ds.ToLatLon(Box{0, 2, 0, 1}, 1)
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 10}, out.Vars[0].Values)

	ext, err := ds.ResampledExtent()
	require.NoError(t, err)
	assert.Less(t, ext.LonMin, 0.2)
	assert.Greater(t, ext.LonMax, 1.2)
	assert.LessOrEqual(t, ext.LatMin, 0.1)
	assert.GreaterOrEqual(t, ext.LatMax, 0.3)
}

// skewedGrid is a 10x10 curvilinear grid at 1 degree whose rows drift
// east by 0.001 degrees each.
func skewedGrid(t *testing.T) *Dataset {
	t.Helper()
	lon := make([]float64, 100)
	lat := make([]float64, 100)
	vals := make([]float64, 100)
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			p := y*10 + x
			lon[p] = float64(x) + 0.001*float64(y)
			lat[p] = 40 + float64(y)
			vals[p] = float64(p)
		}
	}
	ds, err := New(10, 10, lon, lat, nil, []time.Time{month(2000, 1)})
	require.NoError(t, err)
	_, err = ds.AddVariable("v", "", vals)
	require.NoError(t, err)
	return ds
}

func TestResolution(t *testing.T) {
	res, err := skewedGrid(t).Resolution()
	require.NoError(t, err)
	assert.Equal(t, 1.0, res)

	axis := make([]float64, 40)
	for i := range axis {
		axis[i] = float64(i) / 10
	}
	fine := newField(t, "v", axis, []float64{50, 50.1}, nil, []time.Time{month(2000, 1)}, make([]float64, 80))
	res, err = fine.Resolution()
	require.NoError(t, err)
	assert.Equal(t, CanonicalResolution, res)

	single := newField(t, "v", []float64{3}, []float64{50}, nil, []time.Time{month(2000, 1)}, []float64{1})
	_, err = single.Resolution()
	assert.ErrorIs(t, err, ErrTooFewCoordinates)
}

func TestResampledExtent_Curvilinear(t *testing.T) {
	ext, err := skewedGrid(t).ResampledExtent()
	require.NoError(t, err)
	assert.InDelta(t, -0.5, ext.LonMin, 1e-9)
	assert.InDelta(t, 10.5, ext.LonMax, 1e-9)
	assert.InDelta(t, 39.5, ext.LatMin, 1e-9)
	assert.InDelta(t, 50.5, ext.LatMax, 1e-9)
}

func TestToLatLon_TooLarge(t *testing.T) {
	_, err := skewedGrid(t).ToLatLon(World, 0.001)
	assert.ErrorIs(t, err, ErrGridTooLarge)
}

func TestRegridNearest(t *testing.T) {
	coarse := newField(t, "v", []float64{0, 10}, []float64{0}, nil, []time.Time{month(2000, 1), month(2000, 2)},
		[]float64{1, 2, 3, 4})
	fine, err := NewRegular([]float64{1, 4, 6, 9}, []float64{0}, nil, nil)
	require.NoError(t, err)

	out, err := coarse.RegridNearest(fine)
	require.NoError(t, err)
	assert.True(t, out.SameGrid(fine))
	assert.Equal(t, 2, out.NT())
	assert.Equal(t, []float64{1, 1, 2, 2, 3, 3, 4, 4}, out.Vars[0].Values)
}

func TestSetGrid(t *testing.T) {
	ds := newField(t, "v", []float64{0, 1}, []float64{0}, nil, []time.Time{month(2000, 1)}, []float64{1, 2})
	ref, err := NewRegular([]float64{5, 6}, []float64{50}, nil, nil)
	require.NoError(t, err)
	require.NoError(t, ds.SetGrid(ref))
	assert.Equal(t, []float64{5, 6}, ds.Lon)

	bad, err := NewRegular([]float64{5}, []float64{50}, nil, nil)
	require.NoError(t, err)
	assert.ErrorIs(t, ds.SetGrid(bad), ErrShapeMismatch)
}

func TestArithmetic(t *testing.T) {
	ds := newField(t, "v", []float64{0, 1, 2}, []float64{0}, nil, []time.Time{month(2000, 1)}, []float64{0, 300, -1e35})

	ds.AsMissing(0)
	ds.AsMissingRange(-1e40, -1e20)
	m, err := ds.Max("v")
	require.NoError(t, err)
	assert.Equal(t, 300.0, m)

	n, err := ds.ValidCount("v")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, ds.AddConst("v", -273.15))
	require.NoError(t, ds.Scale("v", 2))
	assert.InDelta(t, 53.7, ds.Vars[0].Values[1], 1e-9)

	assert.ErrorIs(t, ds.Scale("w", 1), ErrVariableNotFound)

	allMissing := newField(t, "v", []float64{0}, []float64{0}, nil, []time.Time{month(2000, 1)}, []float64{nan})
	m, err = allMissing.Max("v")
	require.NoError(t, err)
	assert.True(t, math.IsNaN(m))
}

func TestAssign(t *testing.T) {
	ds, err := NewRegular([]float64{0, 1, 2}, []float64{0}, nil, []time.Time{month(2000, 1)})
	require.NoError(t, err)
	_, _ = ds.AddVariable("chl_dia", "mg m-3", []float64{1, 2, nan})
	_, _ = ds.AddVariable("chl-nano", "mg m-3", []float64{10, 20, 30})

	require.NoError(t, ds.Assign("chlorophyll", "[chl_dia] + [chl-nano]"))
	v, err := ds.Var("chlorophyll")
	require.NoError(t, err)
	assert.Equal(t, []float64{11, 22}, v.Values[:2])
	assert.True(t, math.IsNaN(v.Values[2]))

	assert.ErrorIs(t, ds.Assign("x", "[chl_dia] + [missing]"), ErrVariableNotFound)
	assert.Error(t, ds.Assign("x", "chl_dia +"))
	assert.Error(t, ds.Assign("x", "1 + 2"))
}

func TestMaskCommon(t *testing.T) {
	ds, err := NewRegular([]float64{0, 1, 2}, []float64{0}, nil, []time.Time{month(2000, 1)})
	require.NoError(t, err)
	_, _ = ds.AddVariable("observation", "", []float64{1, nan, 3})
	_, _ = ds.AddVariable("model", "", []float64{nan, 2, 3})

	ds.MaskCommon()
	for _, v := range ds.Vars {
		assert.True(t, math.IsNaN(v.Values[0]))
		assert.True(t, math.IsNaN(v.Values[1]))
		assert.Equal(t, 3.0, v.Values[2])
	}
}

func TestMergeVariables(t *testing.T) {
	obs := newField(t, "observation", []float64{0}, []float64{0}, nil,
		[]time.Time{month(2000, 1), month(2000, 2), month(2000, 3)}, []float64{1, 2, 3})
	model := newField(t, "model", []float64{0}, []float64{0}, nil,
		[]time.Time{month(2005, 2), month(2005, 3), month(2005, 4)}, []float64{20, 30, 40})

	byMonth, err := MergeVariables(MatchMonth, obs, model)
	require.NoError(t, err)
	assert.Equal(t, []string{"observation", "model"}, byMonth.VarNames())
	assert.Equal(t, 2, byMonth.NT())
	assert.Equal(t, []float64{2, 3}, byMonth.Vars[0].Values)
	assert.Equal(t, []float64{20, 30}, byMonth.Vars[1].Values)

	byYearMonth, err := MergeVariables(MatchYearMonth, obs, model)
	require.NoError(t, err)
	assert.Equal(t, 0, byYearMonth.NT())

	a := newField(t, "observation", []float64{0}, []float64{0}, nil, []time.Time{month(2000, 6)}, []float64{1})
	b := newField(t, "model", []float64{0}, []float64{0}, nil, []time.Time{month(2010, 1)}, []float64{2})
	single, err := MergeVariables(MatchMonth, a, b)
	require.NoError(t, err)
	assert.Equal(t, 1, single.NT())

	_, err = MergeVariables(MatchIndex, a, a)
	assert.Error(t, err)

	wide := newField(t, "model", []float64{0, 1}, []float64{0}, nil, []time.Time{month(2000, 6)}, []float64{1, 2})
	_, err = MergeVariables(MatchIndex, a, wide)
	assert.ErrorIs(t, err, ErrShapeMismatch)
}
