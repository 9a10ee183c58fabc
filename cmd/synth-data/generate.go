package main

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"go.ngs.io/ocean-matchup/internal/adapter/store/csv"
	"go.ngs.io/ocean-matchup/internal/adapter/store/netcdf"
	"go.ngs.io/ocean-matchup/internal/domain"
	"go.ngs.io/ocean-matchup/internal/grid"
)

// Region defines the geographic bounds and model resolution.
type Region struct {
	LatMin, LatMax float64
	LonMin, LonMax float64
	Resolution     float64 // degrees
}

// Generator writes the demo tree.
type Generator struct {
	Store     *netcdf.Store
	Region    Region
	FirstYear int
	Years     int
	Log       logrus.FieldLogger
}

// Summary lists what was written.
type Summary struct {
	ModelDir         string
	DataDir          string
	Mapping          string
	ModelFiles       int
	ObservationFiles int
	Grid             string
}

var modelDepths = []float64{1, 10, 25, 50, 100}

var woaDepths = []float64{0, 10, 20, 30, 50, 75, 100, 125}

// field is an analytic tracer distribution.
type field func(lon, lat, depth float64, month int) float64

func seasonal(month int) float64 {
	return math.Cos(2 * math.Pi * float64(month-1) / 12)
}

// Model fields in model units. Temperature is in Kelvin.
var modelFields = []struct {
	name, units string
	f           field
}{
	{"N3_n", "mmol N/m3", func(lon, lat, z float64, m int) float64 {
		return 8 + 4*seasonal(m) + 0.04*z + 0.5*math.Sin(lat*math.Pi/15)
	}},
	{"O2_o", "mmol O2/m3", func(lon, lat, z float64, m int) float64 {
		return 260 + 15*seasonal(m) - 0.3*z + 2*math.Cos(lon*math.Pi/20)
	}},
	{"votemper", "K", func(lon, lat, z float64, m int) float64 {
		return domain.KelvinOffset + 12 - 4*seasonal(m) - 0.03*z + 0.1*math.Cos(lon*math.Pi/20)
	}},
	{"fco2", "mmol C/m2/d", func(lon, lat, z float64, m int) float64 {
		return 1 + 0.5*math.Sin(lat*math.Pi/10) + 0.3*seasonal(m)
	}},
	{"Chl1", "mg Chl/m3", func(lon, lat, z float64, m int) float64 {
		return 0.4 + 0.3*(1-seasonal(m)) + 0.05*math.Sin((lat+lon)*math.Pi/25)
	}},
	{"Chl2", "mg Chl/m3", func(lon, lat, z float64, m int) float64 {
		return 0.2 + 0.1*(1-seasonal(m))
	}},
	{"DOC", "mmol C/m3", func(lon, lat, z float64, m int) float64 {
		return 25 + 5*seasonal(m)
	}},
}

// Generate writes the model tree, the observation products, the mapping
// table and an ecovalrc below root.
func (g *Generator) Generate(root string) (*Summary, error) {
	s := &Summary{
		ModelDir: filepath.Join(root, "model"),
		DataDir:  filepath.Join(root, "data"),
		Mapping:  filepath.Join(root, "mapping.csv"),
	}
	lons, lats := g.axes(g.Region.Resolution)
	s.Grid = fmt.Sprintf("%d x %d", len(lons), len(lats))

	for y := 0; y < g.Years; y++ {
		year := g.FirstYear + y
		for month := 1; month <= 12; month++ {
			ds, err := g.modelFile(lons, lats, year, month)
			if err != nil {
				return nil, err
			}
			name := fmt.Sprintf("demo_1m_%d%02d01_%d%02d28_ptrc_T.nc", year, month, year, month)
			if err := g.Store.Write(filepath.Join(s.ModelDir, fmt.Sprint(year), name), ds, netcdf.WriteOptions{Float32: true}); err != nil {
				return nil, err
			}
			s.ModelFiles++
		}
	}

	n, err := g.observations(s.DataDir)
	if err != nil {
		return nil, err
	}
	s.ObservationFiles = n

	if err := writeMapping(s.Mapping); err != nil {
		return nil, err
	}
	if err := writeRC(filepath.Join(root, "ecovalrc"), s.DataDir); err != nil {
		return nil, err
	}
	return s, nil
}

// axes returns the cell centres of the region at a resolution.
func (g *Generator) axes(res float64) (lons, lats []float64) {
	r := g.Region
	nLon := int((r.LonMax-r.LonMin)/res) + 1
	nLat := int((r.LatMax-r.LatMin)/res) + 1
	lons = make([]float64, nLon)
	for i := range lons {
		lons[i] = r.LonMin + float64(i)*res
	}
	lats = make([]float64, nLat)
	for i := range lats {
		lats[i] = r.LatMin + float64(i)*res
	}
	return lons, lats
}

// land reports whether a point falls in the north-east land corner.
func (g *Generator) land(lon, lat float64) bool {
	r := g.Region
	return lon > r.LonMin+0.75*(r.LonMax-r.LonMin) && lat > r.LatMin+0.7*(r.LatMax-r.LatMin)
}

func (g *Generator) modelFile(lons, lats []float64, year, month int) (*grid.Dataset, error) {
	t := time.Date(year, time.Month(month), 15, 0, 0, 0, 0, time.UTC)
	ds, err := grid.NewRegular(lons, lats, modelDepths, []time.Time{t})
	if err != nil {
		return nil, err
	}
	for _, mf := range modelFields {
		// Land is zero in model output.
		vals := g.sample(ds, func(lon, lat, z float64, t time.Time) float64 {
			if g.land(lon, lat) {
				return 0
			}
			return mf.f(lon, lat, z, int(t.Month()))
		})
		if _, err := ds.AddVariable(mf.name, mf.units, vals); err != nil {
			return nil, err
		}
	}
	ds.SetAttr("title", "synthetic model output")
	return ds, nil
}

// sample evaluates f at every level and point of every time step.
func (g *Generator) sample(ds *grid.Dataset, f func(lon, lat, depth float64, t time.Time) float64) []float64 {
	depths := ds.Depths
	if len(depths) == 0 {
		depths = []float64{0}
	}
	np := ds.NP()
	vals := make([]float64, 0, ds.NT()*len(depths)*np)
	for _, t := range ds.Times {
		for _, z := range depths {
			for p := 0; p < np; p++ {
				vals = append(vals, f(ds.Lon[p], ds.Lat[p], z, t))
			}
		}
	}
	return vals
}

// observation builds one product on a grid twice as fine as the model's.
// Land is missing.
func (g *Generator) observation(name, units string, times []time.Time, depths []float64, f field) (*grid.Dataset, error) {
	lons, lats := g.axes(g.Region.Resolution / 2)
	ds, err := grid.NewRegular(lons, lats, depths, times)
	if err != nil {
		return nil, err
	}
	vals := g.sample(ds, func(lon, lat, z float64, t time.Time) float64 {
		if g.land(lon, lat) {
			return math.NaN()
		}
		return f(lon, lat, z, int(t.Month()))
	})
	if _, err := ds.AddVariable(name, units, vals); err != nil {
		return nil, err
	}
	return ds, nil
}

func (g *Generator) monthlyTimes(year int) []time.Time {
	times := make([]time.Time, 12)
	for m := range times {
		times[m] = time.Date(year, time.Month(m+1), 16, 0, 0, 0, 0, time.UTC)
	}
	return times
}

// shifted rescales and offsets a field so observations differ from the model.
func shifted(f field, scale, offset float64) field {
	return func(lon, lat, z float64, m int) float64 { return scale*f(lon, lat, z, m) + offset }
}

// observations writes one product per demo variable and returns the
// number of files written.
func (g *Generator) observations(dataDir string) (int, error) {
	byName := map[string]field{}
	for _, mf := range modelFields {
		byName[mf.name] = mf.f
	}
	chl := func(lon, lat, z float64, m int) float64 {
		return 1.1 * (byName["Chl1"](lon, lat, z, m) + byName["Chl2"](lon, lat, z, m))
	}

	type product struct {
		domain, variable, source, file string
		build                          func() (*grid.Dataset, error)
	}
	var products []product
	for y := 0; y < g.Years; y++ {
		year := g.FirstYear + y
		times := g.monthlyTimes(year)
		products = append(products,
			product{"nws", "nitrate", "nsbc", fmt.Sprintf("nsbc_nitrate_%d.nc", year), func() (*grid.Dataset, error) {
				return g.observation("no3", "mmol/m3", times, nil, shifted(byName["N3_n"], 1, 0.6))
			}},
			product{"nws", "temperature", "cmems", fmt.Sprintf("cmems_sst_%d.nc", year), func() (*grid.Dataset, error) {
				return g.observation("analysed_sst", "degrees C", times, nil, shifted(byName["votemper"], 1, -domain.KelvinOffset+0.3))
			}},
			product{"nws", "co2flux", "landschutzer", fmt.Sprintf("fgco2_%d.nc", year), func() (*grid.Dataset, error) {
				return g.observation("fgco2", domain.CO2FluxUnits, times, nil, shifted(byName["fco2"], domain.CO2FluxFactor, 0.05))
			}},
			product{"nws", "chlorophyll", "occci", fmt.Sprintf("occci_chl_%d.nc", year), func() (*grid.Dataset, error) {
				ds, err := g.observation("chlor_a", "mg/m3", times, nil, chl)
				if err != nil {
					return nil, err
				}
				// OC-CCI files carry uncertainty fields next to chlor_a.
				_, err = ds.AddVariable("chlor_a_log10_rmsd", "1", make([]float64, ds.NT()*ds.NP()))
				return ds, err
			}},
			product{"nws", "doc", "cmems", fmt.Sprintf("doc_%d.nc", year), func() (*grid.Dataset, error) {
				return g.observation("doc", "mmol/m3", times, nil, shifted(byName["DOC"], 1, 40))
			}},
		)
	}
	climatology := g.monthlyTimes(1955)
	products = append(products,
		product{"global", "oxygen", "woa", "woa_oxygen_monthly.nc", func() (*grid.Dataset, error) {
			return g.observation("o_mn", "mmol/m3", climatology, nil, shifted(byName["O2_o"], 1, 5))
		}},
		product{"global", "oxygen", "woa", "woa_oxygen_annual.nc", func() (*grid.Dataset, error) {
			annual := []time.Time{time.Date(1955, time.July, 1, 0, 0, 0, 0, time.UTC)}
			return g.observation("o_an", "mmol/m3", annual, woaDepths, func(lon, lat, z float64, _ int) float64 {
				return byName["O2_o"](lon, lat, z, 4) + 5
			})
		}},
	)

	written := 0
	for _, p := range products {
		dir := filepath.Join(dataDir, "gridded", p.domain, p.variable)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return written, fmt.Errorf("failed to create %s: %w", dir, err)
		}
		if err := os.WriteFile(filepath.Join(dir, p.source+".txt"), nil, 0o644); err != nil {
			return written, fmt.Errorf("failed to write source marker: %w", err)
		}
		ds, err := p.build()
		if err != nil {
			return written, fmt.Errorf("failed to build %s: %w", p.file, err)
		}
		if err := g.Store.Write(filepath.Join(dir, p.file), ds, netcdf.WriteOptions{Float32: true}); err != nil {
			return written, err
		}
		written++
		g.Log.WithFields(logrus.Fields{"variable": p.variable, "source": p.source}).Debugf("✓ Generated %s", p.file)
	}
	return written, nil
}

func writeMapping(path string) error {
	var buf bytes.Buffer
	err := csv.WriteMapping(&buf, []domain.MappingEntry{
		{Variable: "chlorophyll", ModelVariable: "Chl1+Chl2", Pattern: "*ptrc_T*"},
		{Variable: "co2flux", ModelVariable: "fco2", Pattern: "*ptrc_T*"},
		{Variable: "doc", ModelVariable: "DOC", Pattern: "*ptrc_T*"},
		{Variable: "nitrate", ModelVariable: "N3_n", Pattern: "*ptrc_T*"},
		{Variable: "oxygen", ModelVariable: "O2_o", Pattern: "*ptrc_T*"},
		{Variable: "temperature", ModelVariable: "votemper", Pattern: "*ptrc_T*"},
		{Variable: "ph", ModelVariable: "", Pattern: "*ptrc_T*"},
	})
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write mapping: %w", err)
	}
	return nil
}

// writeRC writes an ecovalrc pointing at the demo data.
func writeRC(path, dataDir string) error {
	abs, err := filepath.Abs(dataDir)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", dataDir, err)
	}
	data, err := yaml.Marshal(map[string]interface{}{
		"data_dir":  abs,
		"levels":    1,
		"overwrite": true,
	})
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
