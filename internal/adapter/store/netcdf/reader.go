// Package netcdf reads and writes gridded model and observation files.
package netcdf

import (
	"errors"
	"fmt"
	"math"
	"time"

	cdf "github.com/fhs/go-netcdf/netcdf"
	"github.com/sirupsen/logrus"

	"go.ngs.io/ocean-matchup/internal/grid"
)

// Candidate coordinate variable names, tried in order.
var (
	lonNames   = []string{"lon", "longitude", "nav_lon", "glamt", "LON", "Longitude"}
	latNames   = []string{"lat", "latitude", "nav_lat", "gphit", "LAT", "Latitude"}
	timeNames  = []string{"time", "time_counter", "t", "TIME"}
	depthNames = []string{"depth", "deptht", "depthu", "depthv", "depthw", "lev", "level", "nav_lev", "z", "DEPTH"}
)

// Global attributes carried into the dataset when present.
var globalAttrNames = []string{"start_year", "end_year", "source", "title"}

// Store reads and writes NetCDF files as grid datasets.
type Store struct {
	log logrus.FieldLogger
}

// NewStore creates a NetCDF store.
func NewStore(log logrus.FieldLogger) *Store {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Store{log: log}
}

// layout describes how a file maps onto the grid dataset axes.
type layout struct {
	nx, ny        int
	lon, lat      []float64 // 2-D, row-major.
	xDim, yDim    string
	timeDim       string
	times         []time.Time
	depthDim      string
	depths        []float64
	coordVarNames map[string]bool
}

// Open reads a file into a dataset. When variables are given only those are
// read; otherwise every data variable sharing the axes of the first one is.
func (s *Store) Open(path string, variables ...string) (*grid.Dataset, error) {
	nc, err := cdf.OpenFile(path, cdf.NOWRITE)
	if err != nil {
		return nil, fmt.Errorf("failed to open NetCDF file %s: %w", path, err)
	}
	defer func() { _ = nc.Close() }()

	lay, err := readLayout(nc)
	if err != nil {
		return nil, fmt.Errorf("failed to read axes of %s: %w", path, err)
	}

	vars, err := selectDataVars(nc, lay, variables)
	if err != nil {
		return nil, fmt.Errorf("failed to select variables in %s: %w", path, err)
	}

	// Depth applies only when every selected variable has it.
	useDepth := lay.depthDim != ""
	for _, v := range vars {
		if !hasDim(v, lay.depthDim) {
			useDepth = false
		}
	}
	var depths []float64
	if useDepth {
		depths = lay.depths
	}

	times := lay.times
	if len(times) == 0 {
		// Static fields are read as a single undated step.
		times = []time.Time{{}}
	}

	ds, err := grid.New(lay.nx, lay.ny, lay.lon, lay.lat, depths, times)
	if err != nil {
		return nil, err
	}
	ds.Sources = []string{path}
	for _, name := range globalAttrNames {
		if val, ok := readTextAttr(nc.Attr(name)); ok {
			ds.SetAttr(name, val)
		}
	}

	for _, v := range vars {
		name, _ := v.Name()
		if useDepth != hasDim(v, lay.depthDim) {
			return nil, fmt.Errorf("variable %s in %s does not share the vertical axis of the other variables", name, path)
		}
		values, err := readValues(v, lay)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s from %s: %w", name, path, err)
		}
		units, _ := readTextAttr(v.Attr("units"))
		added, err := ds.AddVariable(name, units, values)
		if err != nil {
			return nil, fmt.Errorf("failed to add %s from %s: %w", name, path, err)
		}
		added.LongName, _ = readTextAttr(v.Attr("long_name"))
	}

	s.log.WithFields(logrus.Fields{
		"path":      path,
		"variables": ds.VarNames(),
		"nt":        ds.NT(),
		"nz":        ds.NZ(),
		"np":        ds.NP(),
	}).Debug("read NetCDF file")

	return ds, nil
}

// Times returns the decoded time axis of a file, or nil if it has none.
func (s *Store) Times(path string) ([]time.Time, error) {
	nc, err := cdf.OpenFile(path, cdf.NOWRITE)
	if err != nil {
		return nil, fmt.Errorf("failed to open NetCDF file %s: %w", path, err)
	}
	defer func() { _ = nc.Close() }()

	tv, _, ok := findVar(nc, timeNames)
	if !ok {
		return nil, nil
	}
	times, err := readTimes(tv)
	if err != nil {
		return nil, fmt.Errorf("failed to read time axis of %s: %w", path, err)
	}
	return times, nil
}

// VariableNames lists the data variables of a file.
func (s *Store) VariableNames(path string) ([]string, error) {
	nc, err := cdf.OpenFile(path, cdf.NOWRITE)
	if err != nil {
		return nil, fmt.Errorf("failed to open NetCDF file %s: %w", path, err)
	}
	defer func() { _ = nc.Close() }()

	lay, err := readLayout(nc)
	if err != nil {
		return nil, fmt.Errorf("failed to read axes of %s: %w", path, err)
	}
	all, err := dataVars(nc, lay)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(all))
	for _, v := range all {
		name, _ := v.Name()
		names = append(names, name)
	}
	return names, nil
}

func findVar(nc cdf.Dataset, names []string) (cdf.Var, string, bool) {
	for _, name := range names {
		if v, err := nc.Var(name); err == nil {
			return v, name, true
		}
	}
	return cdf.Var{}, "", false
}

func dimNames(v cdf.Var) ([]string, []uint64, error) {
	dims, err := v.Dims()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get dimensions: %w", err)
	}
	names := make([]string, len(dims))
	lens := make([]uint64, len(dims))
	for i, d := range dims {
		if names[i], err = d.Name(); err != nil {
			return nil, nil, fmt.Errorf("failed to get dimension name: %w", err)
		}
		if lens[i], err = d.Len(); err != nil {
			return nil, nil, fmt.Errorf("failed to get dimension length: %w", err)
		}
	}
	return names, lens, nil
}

func hasDim(v cdf.Var, name string) bool {
	if name == "" {
		return false
	}
	names, _, err := dimNames(v)
	if err != nil {
		return false
	}
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

func readLayout(nc cdf.Dataset) (*layout, error) {
	lay := &layout{coordVarNames: map[string]bool{}}

	// Read longitude.
	lonVar, lonName, ok := findVar(nc, lonNames)
	if !ok {
		return nil, fmt.Errorf("longitude variable not found (tried: %v)", lonNames)
	}
	// Read latitude.
	latVar, latName, ok := findVar(nc, latNames)
	if !ok {
		return nil, fmt.Errorf("latitude variable not found (tried: %v)", latNames)
	}
	lay.coordVarNames[lonName] = true
	lay.coordVarNames[latName] = true

	lonData, err := readFloat64s(lonVar)
	if err != nil {
		return nil, fmt.Errorf("failed to read longitude: %w", err)
	}
	latData, err := readFloat64s(latVar)
	if err != nil {
		return nil, fmt.Errorf("failed to read latitude: %w", err)
	}
	lonDims, lonLens, err := dimNames(lonVar)
	if err != nil {
		return nil, err
	}
	latDims, _, err := dimNames(latVar)
	if err != nil {
		return nil, err
	}

	switch {
	case len(lonDims) == 1 && len(latDims) == 1:
		lay.nx, lay.ny = len(lonData), len(latData)
		lay.xDim, lay.yDim = lonDims[0], latDims[0]
		lay.lon = make([]float64, lay.nx*lay.ny)
		lay.lat = make([]float64, lay.nx*lay.ny)
		for y := 0; y < lay.ny; y++ {
			for x := 0; x < lay.nx; x++ {
				lay.lon[y*lay.nx+x] = lonData[x]
				lay.lat[y*lay.nx+x] = latData[y]
			}
		}
	case len(lonDims) >= 2 && len(lonDims) == len(latDims):
		// Curvilinear coordinates (y, x); leading axes such as time are dropped.
		n := len(lonDims)
		lay.yDim, lay.xDim = lonDims[n-2], lonDims[n-1]
		lay.ny, lay.nx = int(lonLens[n-2]), int(lonLens[n-1])
		np := lay.nx * lay.ny
		lay.lon = append([]float64(nil), lonData[:np]...)
		lay.lat = append([]float64(nil), latData[:np]...)
	default:
		return nil, fmt.Errorf("unsupported coordinate layout: lon%v lat%v", lonDims, latDims)
	}

	if tv, name, ok := findVar(nc, timeNames); ok {
		names, _, err := dimNames(tv)
		if err == nil && len(names) == 1 {
			lay.timeDim = names[0]
			lay.coordVarNames[name] = true
			if lay.times, err = readTimes(tv); err != nil {
				return nil, fmt.Errorf("failed to read time axis: %w", err)
			}
		}
	}

	if dv, name, ok := findVar(nc, depthNames); ok {
		names, _, err := dimNames(dv)
		if err == nil && len(names) == 1 && names[0] != lay.xDim && names[0] != lay.yDim {
			lay.depthDim = names[0]
			lay.coordVarNames[name] = true
			if lay.depths, err = readFloat64s(dv); err != nil {
				return nil, fmt.Errorf("failed to read depth axis: %w", err)
			}
		}
	}

	return lay, nil
}

// dataVars returns every variable laid out as [time][depth](y, x).
func dataVars(nc cdf.Dataset, lay *layout) ([]cdf.Var, error) {
	n, err := nc.NVars()
	if err != nil {
		return nil, fmt.Errorf("failed to count variables: %w", err)
	}
	var out []cdf.Var
	for i := 0; i < n; i++ {
		v := nc.VarN(i)
		name, err := v.Name()
		if err != nil || lay.coordVarNames[name] {
			continue
		}
		if checkLayout(v, lay) == nil {
			out = append(out, v)
		}
	}
	return out, nil
}

func selectDataVars(nc cdf.Dataset, lay *layout, names []string) ([]cdf.Var, error) {
	if len(names) == 0 {
		all, err := dataVars(nc, lay)
		if err != nil {
			return nil, err
		}
		if len(all) == 0 {
			return nil, fmt.Errorf("%w: no gridded data variables", grid.ErrVariableNotFound)
		}
		// Keep the variables that share the first one's vertical axis.
		first := hasDim(all[0], lay.depthDim)
		kept := all[:0]
		for _, v := range all {
			if hasDim(v, lay.depthDim) == first {
				kept = append(kept, v)
			}
		}
		return kept, nil
	}

	out := make([]cdf.Var, 0, len(names))
	for _, name := range names {
		v, err := nc.Var(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", grid.ErrVariableNotFound, name)
		}
		if err := checkLayout(v, lay); err != nil {
			return nil, fmt.Errorf("variable %s: %w", name, err)
		}
		out = append(out, v)
	}
	return out, nil
}

var errLayout = errors.New("unsupported variable layout")

// checkLayout verifies that v is laid out as [time][depth](y, x) or
// [time][depth](x, y). Other leading axes must have length one.
func checkLayout(v cdf.Var, lay *layout) error {
	names, lens, err := dimNames(v)
	if err != nil {
		return err
	}
	n := len(names)
	if n < 2 {
		return errLayout
	}
	last2 := [2]string{names[n-2], names[n-1]}
	if last2 != [2]string{lay.yDim, lay.xDim} && last2 != [2]string{lay.xDim, lay.yDim} {
		return fmt.Errorf("%w: trailing dimensions %v", errLayout, names[n-2:])
	}

	var lead []string
	for i, name := range names[:n-2] {
		switch {
		case name == lay.timeDim || name == lay.depthDim:
			lead = append(lead, name)
		case lens[i] != 1:
			return fmt.Errorf("%w: unknown axis %s", errLayout, name)
		}
	}
	if len(lead) == 2 && (lead[0] != lay.timeDim || lead[1] != lay.depthDim) {
		return fmt.Errorf("%w: leading dimensions %v", errLayout, lead)
	}
	if lay.timeDim != "" && len(lay.times) > 0 && !contains(lead, lay.timeDim) {
		return fmt.Errorf("%w: no time axis", errLayout)
	}
	return nil
}

func contains(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}

// readValues reads a data variable into dataset order with fill and missing
// values replaced by NaN and packing attributes applied.
func readValues(v cdf.Var, lay *layout) ([]float64, error) {
	names, _, err := dimNames(v)
	if err != nil {
		return nil, err
	}
	data, err := readFloat64s(v)
	if err != nil {
		return nil, err
	}

	for _, fv := range fillValues(v) {
		for i, x := range data {
			if x == fv || (fv != 0 && math.Abs(x-fv) <= math.Abs(fv)*1e-6) {
				data[i] = math.NaN()
			}
		}
	}

	scale, hasScale := readScalarAttr(v.Attr("scale_factor"))
	offset, hasOffset := readScalarAttr(v.Attr("add_offset"))
	if (hasScale && scale != 0 && scale != 1) || (hasOffset && offset != 0) {
		if !hasScale || scale == 0 {
			scale = 1
		}
		for i := range data {
			data[i] = data[i]*scale + offset
		}
	}

	n := len(names)
	if names[n-2] == lay.xDim && names[n-1] == lay.yDim && lay.xDim != lay.yDim {
		data = transposeSlabs(data, lay.nx, lay.ny)
	}
	return data, nil
}

// transposeSlabs converts consecutive (x, y) slabs into (y, x) order.
func transposeSlabs(data []float64, nx, ny int) []float64 {
	np := nx * ny
	out := make([]float64, len(data))
	for base := 0; base+np <= len(data); base += np {
		for x := 0; x < nx; x++ {
			for y := 0; y < ny; y++ {
				out[base+y*nx+x] = data[base+x*ny+y]
			}
		}
	}
	return out
}

func readTimes(tv cdf.Var) ([]time.Time, error) {
	offsets, err := readFloat64s(tv)
	if err != nil {
		return nil, err
	}
	units, ok := readTextAttr(tv.Attr("units"))
	if !ok {
		return nil, fmt.Errorf("time variable has no units")
	}
	calendar, _ := readTextAttr(tv.Attr("calendar"))
	axis, err := parseTimeAxis(units, calendar)
	if err != nil {
		return nil, err
	}
	times := make([]time.Time, len(offsets))
	for i, off := range offsets {
		if times[i], err = axis.decode(off); err != nil {
			return nil, err
		}
	}
	return times, nil
}

// fillValues returns the _FillValue and missing_value attributes if present.
func fillValues(v cdf.Var) []float64 {
	var out []float64
	for _, name := range []string{"_FillValue", "missing_value"} {
		if fv, ok := readScalarAttr(v.Attr(name)); ok {
			out = append(out, fv)
		}
	}
	return out
}

func readScalarAttr(a cdf.Attr) (float64, bool) {
	if a == (cdf.Attr{}) {
		return 0, false
	}
	n, err := a.Len()
	if err != nil || n == 0 {
		return 0, false
	}
	t, err := a.Type()
	if err != nil {
		return 0, false
	}
	switch t {
	case cdf.DOUBLE:
		buf := make([]float64, n)
		if err := a.ReadFloat64s(buf); err == nil {
			return buf[0], true
		}
	case cdf.FLOAT:
		buf := make([]float32, n)
		if err := a.ReadFloat32s(buf); err == nil {
			return float64(buf[0]), true
		}
	case cdf.INT:
		buf := make([]int32, n)
		if err := a.ReadInt32s(buf); err == nil {
			return float64(buf[0]), true
		}
	case cdf.SHORT:
		buf := make([]int16, n)
		if err := a.ReadInt16s(buf); err == nil {
			return float64(buf[0]), true
		}
	}
	return 0, false
}

func readTextAttr(a cdf.Attr) (string, bool) {
	if a == (cdf.Attr{}) {
		return "", false
	}
	n, err := a.Len()
	if err != nil || n == 0 {
		return "", false
	}
	t, err := a.Type()
	if err != nil || t != cdf.CHAR {
		return "", false
	}
	buf := make([]byte, n)
	if err := a.ReadBytes(buf); err != nil {
		return "", false
	}
	// Strip C string terminators.
	for len(buf) > 0 && buf[len(buf)-1] == 0 {
		buf = buf[:len(buf)-1]
	}
	return string(buf), true
}

// readFloat64s reads a whole variable as float64.
func readFloat64s(v cdf.Var) ([]float64, error) {
	length, err := v.Len()
	if err != nil {
		return nil, fmt.Errorf("failed to get variable length: %w", err)
	}
	t, err := v.Type()
	if err != nil {
		return nil, fmt.Errorf("failed to get var type: %w", err)
	}

	switch t {
	case cdf.DOUBLE:
		data := make([]float64, length)
		if err := v.ReadFloat64s(data); err != nil {
			return nil, fmt.Errorf("failed to read float64: %w", err)
		}
		return data, nil
	case cdf.FLOAT:
		tmp := make([]float32, length)
		if err := v.ReadFloat32s(tmp); err != nil {
			return nil, fmt.Errorf("failed to read float32: %w", err)
		}
		out := make([]float64, length)
		for i, val := range tmp {
			out[i] = float64(val)
		}
		return out, nil
	case cdf.INT:
		tmp := make([]int32, length)
		if err := v.ReadInt32s(tmp); err != nil {
			return nil, fmt.Errorf("failed to read int32: %w", err)
		}
		out := make([]float64, length)
		for i, val := range tmp {
			out[i] = float64(val)
		}
		return out, nil
	case cdf.SHORT:
		tmp := make([]int16, length)
		if err := v.ReadInt16s(tmp); err != nil {
			return nil, fmt.Errorf("failed to read int16: %w", err)
		}
		out := make([]float64, length)
		for i, val := range tmp {
			out[i] = float64(val)
		}
		return out, nil
	case cdf.INT64:
		tmp := make([]int64, length)
		if err := v.ReadInt64s(tmp); err != nil {
			return nil, fmt.Errorf("failed to read int64: %w", err)
		}
		out := make([]float64, length)
		for i, val := range tmp {
			out[i] = float64(val)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported var type: %v", t)
	}
}
