package netcdf

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	cdf "github.com/fhs/go-netcdf/netcdf"
	"github.com/sirupsen/logrus"

	"go.ngs.io/ocean-matchup/internal/grid"
)

// DefaultFillValue marks missing values in written files.
const DefaultFillValue = -9999.0

// WriteOptions controls how a dataset is encoded.
type WriteOptions struct {
	// Float32 stores data variables in single precision.
	Float32 bool
	// FillValue replaces missing values. Zero means DefaultFillValue.
	FillValue float64
	// Deflate is the zlib level (1-9) of shuffled data variables. Zero
	// writes them uncompressed.
	Deflate int
}

// Write replaces path with the dataset, creating parent directories.
func (s *Store) Write(path string, ds *grid.Dataset, opts WriteOptions) error {
	if opts.FillValue == 0 {
		opts.FillValue = DefaultFillValue
	}
	if opts.Deflate < 0 || opts.Deflate > 9 {
		return fmt.Errorf("invalid deflate level %d", opts.Deflate)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove existing file %s: %w", path, err)
	}

	if err := writeFile(path, ds, opts); err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	s.log.WithFields(logrus.Fields{
		"path":      path,
		"variables": ds.VarNames(),
		"nt":        ds.NT(),
	}).Info("wrote NetCDF file")
	return nil
}

func writeFile(path string, ds *grid.Dataset, opts WriteOptions) (err error) {
	nc, err := cdf.CreateFile(path, cdf.CLOBBER|cdf.NETCDF4)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	// Close flushes the file.
	defer func() {
		if cerr := nc.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close file: %w", cerr)
		}
	}()

	// Create dimensions.
	timeDim, err := nc.AddDim("time", uint64(ds.NT()))
	if err != nil {
		return err
	}
	var depthDim cdf.Dim
	hasDepth := len(ds.Depths) > 0
	if hasDepth {
		if depthDim, err = nc.AddDim("depth", uint64(len(ds.Depths))); err != nil {
			return err
		}
	}

	regular := ds.IsRegular()
	yName, xName := "y", "x"
	if regular {
		yName, xName = "lat", "lon"
	}
	yDim, err := nc.AddDim(yName, uint64(ds.NY))
	if err != nil {
		return err
	}
	xDim, err := nc.AddDim(xName, uint64(ds.NX))
	if err != nil {
		return err
	}

	// Create coordinate variables.
	timeVar, err := nc.AddVar("time", cdf.DOUBLE, []cdf.Dim{timeDim})
	if err != nil {
		return err
	}
	if err := putText(timeVar.Attr("units"), writeTimeUnits); err != nil {
		return err
	}
	if err := putText(timeVar.Attr("calendar"), writeTimeCalendar); err != nil {
		return err
	}

	var depthVar cdf.Var
	if hasDepth {
		if depthVar, err = nc.AddVar("depth", cdf.DOUBLE, []cdf.Dim{depthDim}); err != nil {
			return err
		}
		if err := putText(depthVar.Attr("units"), "m"); err != nil {
			return err
		}
		if err := putText(depthVar.Attr("positive"), "down"); err != nil {
			return err
		}
	}

	var lonVar, latVar cdf.Var
	if regular {
		if lonVar, err = nc.AddVar("lon", cdf.DOUBLE, []cdf.Dim{xDim}); err != nil {
			return err
		}
		if latVar, err = nc.AddVar("lat", cdf.DOUBLE, []cdf.Dim{yDim}); err != nil {
			return err
		}
	} else {
		if lonVar, err = nc.AddVar("lon", cdf.DOUBLE, []cdf.Dim{yDim, xDim}); err != nil {
			return err
		}
		if latVar, err = nc.AddVar("lat", cdf.DOUBLE, []cdf.Dim{yDim, xDim}); err != nil {
			return err
		}
	}
	if err := putText(lonVar.Attr("units"), "degrees_east"); err != nil {
		return err
	}
	if err := putText(latVar.Attr("units"), "degrees_north"); err != nil {
		return err
	}

	// Create data variables.
	dataDims := []cdf.Dim{timeDim}
	if hasDepth {
		dataDims = append(dataDims, depthDim)
	}
	dataDims = append(dataDims, yDim, xDim)

	varType := cdf.DOUBLE
	if opts.Float32 {
		varType = cdf.FLOAT
	}
	dataVars := make([]cdf.Var, len(ds.Vars))
	for i, v := range ds.Vars {
		dv, err := nc.AddVar(v.Name, varType, dataDims)
		if err != nil {
			return fmt.Errorf("failed to add variable %s: %w", v.Name, err)
		}
		if opts.Deflate > 0 {
			if err := dv.SetCompression(true, true, opts.Deflate); err != nil {
				return fmt.Errorf("failed to compress %s: %w", v.Name, err)
			}
		}
		if opts.Float32 {
			err = dv.Attr("_FillValue").WriteFloat32s([]float32{float32(opts.FillValue)})
		} else {
			err = dv.Attr("_FillValue").WriteFloat64s([]float64{opts.FillValue})
		}
		if err != nil {
			return fmt.Errorf("failed to set fill value of %s: %w", v.Name, err)
		}
		if v.Units != "" {
			if err := putText(dv.Attr("units"), v.Units); err != nil {
				return err
			}
		}
		if v.LongName != "" {
			if err := putText(dv.Attr("long_name"), v.LongName); err != nil {
				return err
			}
		}
		dataVars[i] = dv
	}

	// Global attributes in a stable order.
	keys := make([]string, 0, len(ds.Attrs))
	for k := range ds.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := putText(nc.Attr(k), ds.Attrs[k]); err != nil {
			return err
		}
	}

	if err := nc.EndDef(); err != nil {
		return fmt.Errorf("failed to leave define mode: %w", err)
	}

	// Write coordinates.
	times := make([]float64, ds.NT())
	for i, t := range ds.Times {
		times[i] = encodeTime(t)
	}
	if len(times) > 0 {
		if err := timeVar.WriteFloat64s(times); err != nil {
			return fmt.Errorf("failed to write time: %w", err)
		}
	}
	if hasDepth {
		if err := depthVar.WriteFloat64s(ds.Depths); err != nil {
			return fmt.Errorf("failed to write depth: %w", err)
		}
	}
	if regular {
		lons, lats := ds.Axes()
		if err := lonVar.WriteFloat64s(lons); err != nil {
			return fmt.Errorf("failed to write lon: %w", err)
		}
		if err := latVar.WriteFloat64s(lats); err != nil {
			return fmt.Errorf("failed to write lat: %w", err)
		}
	} else {
		if err := lonVar.WriteFloat64s(ds.Lon); err != nil {
			return fmt.Errorf("failed to write lon: %w", err)
		}
		if err := latVar.WriteFloat64s(ds.Lat); err != nil {
			return fmt.Errorf("failed to write lat: %w", err)
		}
	}

	// Write data.
	if ds.NT() == 0 {
		return nil
	}
	for i, v := range ds.Vars {
		if opts.Float32 {
			buf := make([]float32, len(v.Values))
			for j, x := range v.Values {
				if math.IsNaN(x) {
					x = opts.FillValue
				}
				buf[j] = float32(x)
			}
			err = dataVars[i].WriteFloat32s(buf)
		} else {
			buf := make([]float64, len(v.Values))
			for j, x := range v.Values {
				if math.IsNaN(x) {
					x = opts.FillValue
				}
				buf[j] = x
			}
			err = dataVars[i].WriteFloat64s(buf)
		}
		if err != nil {
			return fmt.Errorf("failed to write %s: %w", v.Name, err)
		}
	}
	return nil
}

func putText(a cdf.Attr, value string) error {
	if err := a.WriteBytes([]byte(value)); err != nil {
		return fmt.Errorf("failed to write attribute: %w", err)
	}
	return nil
}
