// Package grid holds gridded model and observation fields in memory and
// implements the time, vertical, spatial and arithmetic operations used to
// build matchups.
//
// A Dataset stores every variable as a flat slice indexed by
// (time, level, point), where points enumerate the horizontal grid row by
// row. Missing values are NaN.
package grid

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

var (
	// ErrEmptyExtent is returned when a spatial operation selects no points.
	ErrEmptyExtent = errors.New("grid: extent contains no points")
	// ErrTooFewCoordinates is returned when an extent heuristic has fewer
	// than four unique coordinate values to work with.
	ErrTooFewCoordinates = errors.New("grid: fewer than four unique coordinates")
	// ErrShapeMismatch is returned when datasets cannot be combined.
	ErrShapeMismatch = errors.New("grid: shape mismatch")
	// ErrVariableNotFound is returned when a named variable is absent.
	ErrVariableNotFound = errors.New("grid: variable not found")
	// ErrNoTimeSteps is returned when an operation needs at least one time step.
	ErrNoTimeSteps = errors.New("grid: no time steps")
	// ErrGridTooLarge is returned when a resampling target would exceed
	// MaxResampleCells.
	ErrGridTooLarge = errors.New("grid: resampling target too large")
)

// Variable is one field of a Dataset.
type Variable struct {
	Name     string
	Units    string
	LongName string
	Values   []float64
}

func (v *Variable) clone() *Variable {
	c := *v
	c.Values = append([]float64(nil), v.Values...)
	return &c
}

// Dataset is a set of variables sharing one horizontal grid, one vertical
// axis and one time axis.
type Dataset struct {
	NX, NY int
	// Lon and Lat hold the coordinates of every horizontal point (NX*NY),
	// row-major with x varying fastest.
	Lon, Lat []float64
	// Depths is empty for single-level fields.
	Depths []float64
	Times  []time.Time
	Vars   []*Variable
	Attrs  map[string]string
	// Sources lists the files the dataset was read from.
	Sources []string
}

// New creates an empty dataset on a horizontal grid.
func New(nx, ny int, lon, lat, depths []float64, times []time.Time) (*Dataset, error) {
	if nx <= 0 || ny <= 0 {
		return nil, fmt.Errorf("%w: grid is %dx%d", ErrShapeMismatch, nx, ny)
	}
	if len(lon) != nx*ny || len(lat) != nx*ny {
		return nil, fmt.Errorf("%w: %d lons and %d lats for %dx%d grid", ErrShapeMismatch, len(lon), len(lat), nx, ny)
	}
	return &Dataset{
		NX:     nx,
		NY:     ny,
		Lon:    append([]float64(nil), lon...),
		Lat:    append([]float64(nil), lat...),
		Depths: append([]float64(nil), depths...),
		Times:  append([]time.Time(nil), times...),
		Attrs:  map[string]string{},
	}, nil
}

// NewRegular creates an empty dataset on a rectilinear lon/lat grid.
func NewRegular(lons, lats, depths []float64, times []time.Time) (*Dataset, error) {
	nx, ny := len(lons), len(lats)
	lon := make([]float64, nx*ny)
	lat := make([]float64, nx*ny)
	for y := 0; y < ny; y++ {
		for x := 0; x < nx; x++ {
			lon[y*nx+x] = lons[x]
			lat[y*nx+x] = lats[y]
		}
	}
	return New(nx, ny, lon, lat, depths, times)
}

// NP returns the number of horizontal points.
func (d *Dataset) NP() int { return d.NX * d.NY }

// NZ returns the number of vertical levels.
func (d *Dataset) NZ() int {
	if len(d.Depths) == 0 {
		return 1
	}
	return len(d.Depths)
}

// NT returns the number of time steps.
func (d *Dataset) NT() int { return len(d.Times) }

func (d *Dataset) stepSize() int { return d.NZ() * d.NP() }

func (d *Dataset) index(t, z, p int) int { return (t*d.NZ()+z)*d.NP() + p }

// AddVariable appends a variable. values must hold NT*NZ*NP elements.
func (d *Dataset) AddVariable(name, units string, values []float64) (*Variable, error) {
	if want := d.NT() * d.stepSize(); len(values) != want {
		return nil, fmt.Errorf("%w: variable %s has %d values, want %d", ErrShapeMismatch, name, len(values), want)
	}
	if _, err := d.Var(name); err == nil {
		return nil, fmt.Errorf("variable %s already exists", name)
	}
	v := &Variable{Name: name, Units: units, Values: values}
	d.Vars = append(d.Vars, v)
	return v, nil
}

// Var returns the named variable.
func (d *Dataset) Var(name string) (*Variable, error) {
	for _, v := range d.Vars {
		if v.Name == name {
			return v, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrVariableNotFound, name)
}

// VarNames returns the variable names in dataset order.
func (d *Dataset) VarNames() []string {
	names := make([]string, len(d.Vars))
	for i, v := range d.Vars {
		names[i] = v.Name
	}
	return names
}

// Copy returns a deep copy.
func (d *Dataset) Copy() *Dataset {
	c := d.shell(d.Times, d.Depths)
	for _, v := range d.Vars {
		c.Vars = append(c.Vars, v.clone())
	}
	return c
}

// shell copies the grid, attributes and sources with new time and depth axes
// and no variables.
func (d *Dataset) shell(times []time.Time, depths []float64) *Dataset {
	attrs := make(map[string]string, len(d.Attrs))
	for k, v := range d.Attrs {
		attrs[k] = v
	}
	return &Dataset{
		NX:      d.NX,
		NY:      d.NY,
		Lon:     d.Lon,
		Lat:     d.Lat,
		Depths:  append([]float64(nil), depths...),
		Times:   append([]time.Time(nil), times...),
		Attrs:   attrs,
		Sources: append([]string(nil), d.Sources...),
	}
}

// Select returns a dataset holding only the named variables.
func (d *Dataset) Select(names ...string) (*Dataset, error) {
	c := d.shell(d.Times, d.Depths)
	for _, n := range names {
		v, err := d.Var(n)
		if err != nil {
			return nil, err
		}
		c.Vars = append(c.Vars, v.clone())
	}
	return c, nil
}

// Drop removes the named variables in place. Unknown names are ignored.
func (d *Dataset) Drop(names ...string) {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	kept := d.Vars[:0]
	for _, v := range d.Vars {
		if !drop[v.Name] {
			kept = append(kept, v)
		}
	}
	d.Vars = kept
}

// Rename changes a variable name in place.
func (d *Dataset) Rename(from, to string) error {
	v, err := d.Var(from)
	if err != nil {
		return err
	}
	if from == to {
		return nil
	}
	if _, err := d.Var(to); err == nil {
		return fmt.Errorf("cannot rename %s: variable %s already exists", from, to)
	}
	v.Name = to
	return nil
}

// SetUnits sets the units of a variable.
func (d *Dataset) SetUnits(name, units string) error {
	v, err := d.Var(name)
	if err != nil {
		return err
	}
	v.Units = units
	return nil
}

// SetLongName sets the long name of a variable.
func (d *Dataset) SetLongName(name, longName string) error {
	v, err := d.Var(name)
	if err != nil {
		return err
	}
	v.LongName = longName
	return nil
}

// SetAttr sets a global attribute.
func (d *Dataset) SetAttr(key, value string) {
	if d.Attrs == nil {
		d.Attrs = map[string]string{}
	}
	d.Attrs[key] = value
}

// SameGrid reports whether two datasets share a horizontal grid.
func (d *Dataset) SameGrid(o *Dataset) bool {
	if d.NX != o.NX || d.NY != o.NY {
		return false
	}
	for i := range d.Lon {
		if !sameCoord(d.Lon[i], o.Lon[i]) || !sameCoord(d.Lat[i], o.Lat[i]) {
			return false
		}
	}
	return true
}

func sameCoord(a, b float64) bool {
	return a == b || (math.IsNaN(a) && math.IsNaN(b)) || math.Abs(a-b) < 1e-6
}

// IsRegular reports whether the grid is rectilinear in lon/lat.
func (d *Dataset) IsRegular() bool {
	for y := 0; y < d.NY; y++ {
		for x := 0; x < d.NX; x++ {
			p := y*d.NX + x
			if d.Lon[p] != d.Lon[x] || d.Lat[p] != d.Lat[y*d.NX] {
				return false
			}
		}
	}
	return true
}

// Axes returns the 1-D lon and lat axes of a rectilinear grid.
func (d *Dataset) Axes() (lons, lats []float64) {
	lons = append([]float64(nil), d.Lon[:d.NX]...)
	lats = make([]float64, d.NY)
	for y := range lats {
		lats[y] = d.Lat[y*d.NX]
	}
	return lons, lats
}

// uniqueSorted returns the sorted distinct finite values of xs.
func uniqueSorted(xs []float64) []float64 {
	vals := make([]float64, 0, len(xs))
	for _, x := range xs {
		if !math.IsNaN(x) && !math.IsInf(x, 0) {
			vals = append(vals, x)
		}
	}
	sort.Float64s(vals)
	out := vals[:0]
	for i, v := range vals {
		if i == 0 || v != vals[i-1] {
			out = append(out, v)
		}
	}
	return out
}
