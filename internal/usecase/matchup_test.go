package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.ngs.io/ocean-matchup/internal/adapter/store/csv"
	"go.ngs.io/ocean-matchup/internal/adapter/store/netcdf"
	"go.ngs.io/ocean-matchup/internal/config"
	"go.ngs.io/ocean-matchup/internal/domain"
	"go.ngs.io/ocean-matchup/internal/grid"
	"go.ngs.io/ocean-matchup/internal/metrics"
)

// memStore keeps datasets in memory. Files are also created empty on disk
// so that globbing finds them.
type memStore struct {
	files  map[string]*grid.Dataset
	writes map[string]*grid.Dataset
	opens  int
}

func newMemStore() *memStore {
	return &memStore{files: map[string]*grid.Dataset{}, writes: map[string]*grid.Dataset{}}
}

func (s *memStore) put(t *testing.T, path string, ds *grid.Dataset) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	s.files[path] = ds
}

func (s *memStore) Open(path string, variables ...string) (*grid.Dataset, error) {
	s.opens++
	ds, ok := s.files[path]
	if !ok {
		return nil, fmt.Errorf("failed to open %s: %w", path, os.ErrNotExist)
	}
	if len(variables) == 0 {
		return ds.Copy(), nil
	}
	return ds.Select(variables...)
}

func (s *memStore) Write(path string, ds *grid.Dataset, _ netcdf.WriteOptions) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		return err
	}
	s.files[path] = ds.Copy()
	s.writes[path] = ds.Copy()
	return nil
}

var (
	modelLons = []float64{-10, -9, -8, -7, -6, -5, -4, -3}
	modelLats = []float64{50, 51, 52, 53, 54, 55}
	obsLons   = axis(-10, -3, 0.5)
	obsLats   = axis(50, 55, 0.5)
)

const (
	// landPoint is zero in every model field.
	landPoint = 0
	// obsGap is missing in every observation field. It sits on model point
	// gapPoint (lon -5, lat 50).
	obsGap   = 10
	gapPoint = 5
)

func axis(from, to, step float64) []float64 {
	var out []float64
	for v := from; v <= to; v += step {
		out = append(out, v)
	}
	return out
}

func monthlyTimes(day int, years ...int) []time.Time {
	var out []time.Time
	for _, y := range years {
		for m := 1; m <= 12; m++ {
			out = append(out, time.Date(y, time.Month(m), day, 0, 0, 0, 0, time.UTC))
		}
	}
	return out
}

// modelStep builds one monthly model file.
func modelStep(t *testing.T, year, month int, depths []float64) *grid.Dataset {
	t.Helper()
	ds, err := grid.NewRegular(modelLons, modelLats, depths, []time.Time{time.Date(year, time.Month(month), 15, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	fillModel(t, ds, month)
	return ds
}

// fillModel adds the model fields. Every field is zero at landPoint.
func fillModel(t *testing.T, ds *grid.Dataset, month int) {
	t.Helper()
	nz, np := ds.NZ(), ds.NP()
	fill := func(name, units string, value func(z int) float64) {
		vals := make([]float64, nz*np)
		for z := 0; z < nz; z++ {
			for p := 0; p < np; p++ {
				if p != landPoint {
					vals[z*np+p] = value(z)
				}
			}
		}
		_, err := ds.AddVariable(name, units, vals)
		require.NoError(t, err)
	}
	fill("N3_n", "mmol/m3", func(z int) float64 {
		if len(ds.Depths) > 0 {
			return ds.Depths[z]
		}
		return float64(month)
	})
	fill("votemper", "K", func(int) float64 { return 285 })
	fill("fco2", "mmol/m2/d", func(int) float64 { return 2 })
	fill("Chl1", "mg/m3", func(int) float64 { return 1 })
	fill("Chl2", "mg/m3", func(int) float64 { return 0.5 })
	fill("DOC", "mmol/m3", func(int) float64 { return 2 })
}

// obsField builds an observation product on the finer observation grid.
func obsField(t *testing.T, name, units string, depths []float64, times []time.Time, value func(tm time.Time, z int) float64) *grid.Dataset {
	t.Helper()
	return obsFieldOn(t, obsLons, obsLats, name, units, depths, times, value)
}

// obsFieldOn builds an observation product on a regular grid. Point obsGap
// is missing.
func obsFieldOn(t *testing.T, lons, lats []float64, name, units string, depths []float64, times []time.Time, value func(tm time.Time, z int) float64) *grid.Dataset {
	t.Helper()
	ds, err := grid.NewRegular(lons, lats, depths, times)
	require.NoError(t, err)
	nz, np := ds.NZ(), ds.NP()
	vals := make([]float64, len(times)*nz*np)
	for ti, tm := range times {
		for z := 0; z < nz; z++ {
			for p := 0; p < np; p++ {
				v := value(tm, z)
				if p == obsGap {
					v = math.NaN()
				}
				vals[(ti*nz+z)*np+p] = v
			}
		}
	}
	_, err = ds.AddVariable(name, units, vals)
	require.NoError(t, err)
	return ds
}

func constant(v float64) func(time.Time, int) float64 {
	return func(time.Time, int) float64 { return v }
}

type fixture struct {
	root      string
	modelRoot string
	cfg       *config.Config
	store     *memStore
	index     domain.TimeIndex
	hook      *test.Hook
}

// modelBuilder returns the model file of one month, or nil to leave the
// month out.
type modelBuilder func(t *testing.T, year, month int) *grid.Dataset

func newFixture(t *testing.T, depths []float64) *fixture {
	t.Helper()
	return newFixtureWith(t, []int{2000, 2001}, func(t *testing.T, year, month int) *grid.Dataset {
		return modelStep(t, year, month, depths)
	})
}

func newFixtureWith(t *testing.T, years []int, build modelBuilder) *fixture {
	t.Helper()
	root := t.TempDir()
	f := &fixture{
		root:      root,
		modelRoot: filepath.Join(root, "model"),
		cfg: &config.Config{
			DataDir:    filepath.Join(root, "data"),
			OutDir:     filepath.Join(root, "matched"),
			ReportPath: filepath.Join(root, "matchup_report.md"),
			Overwrite:  true,
			Levels:     1,
			LogLevel:   "info",
		},
		store: newMemStore(),
		index: domain.TimeIndex{},
	}
	require.NoError(t, os.MkdirAll(f.cfg.DataDir, 0o755))
	for _, year := range years {
		for month := 1; month <= 12; month++ {
			ds := build(t, year, month)
			if ds == nil {
				continue
			}
			name := fmt.Sprintf("amm7_1m_%d%02d01_%d%02d28_ptrc_T.nc", year, month, year, month)
			path := filepath.Join(f.modelRoot, fmt.Sprint(year), name)
			f.store.put(t, path, ds)
			f.index.Add(path, ds.Times)
		}
	}
	return f
}

// addSource lays out an observation directory of the shelf domain. An
// empty source name leaves out the marker file.
func (f *fixture) addSource(t *testing.T, variable, source string, files map[string]*grid.Dataset) {
	t.Helper()
	f.addSourceIn(t, domain.DomainNWS, variable, source, files)
}

func (f *fixture) addSourceIn(t *testing.T, d domain.Domain, variable, source string, files map[string]*grid.Dataset) {
	t.Helper()
	dir := filepath.Join(f.cfg.DataDir, "gridded", string(d), variable)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	if source != "" {
		require.NoError(t, os.WriteFile(filepath.Join(dir, source+".txt"), nil, 0o644))
	}
	for name, ds := range files {
		f.store.put(t, filepath.Join(dir, name), ds)
	}
}

func (f *fixture) useCase() *MatchupUseCase {
	logger, hook := test.NewNullLogger()
	f.hook = hook
	return NewMatchupUseCase(f.cfg, f.store, nil, metrics.NewCollector("test"), logger)
}

func (f *fixture) request(mapping []domain.MappingEntry, variables ...string) MatchupRequest {
	return MatchupRequest{
		Mapping:   mapping,
		Variables: variables,
		ModelRoot: f.modelRoot,
		TimeIndex: f.index,
		Surface:   domain.SurfaceTop,
		Domain:    domain.DomainNWS,
	}
}

func (f *fixture) written(t *testing.T, source, variable, kind string) *grid.Dataset {
	t.Helper()
	return f.writtenIn(t, domain.DomainNWS, source, variable, kind)
}

func (f *fixture) writtenIn(t *testing.T, d domain.Domain, source, variable, kind string) *grid.Dataset {
	t.Helper()
	path := filepath.Join(f.cfg.OutDir, "gridded", string(d), variable, fmt.Sprintf("%s_%s_%s.nc", source, variable, kind))
	ds, ok := f.store.writes[path]
	require.True(t, ok, "no matchup written at %s", path)
	return ds
}

func channels(t *testing.T, ds *grid.Dataset) (obs, model *grid.Variable) {
	t.Helper()
	obs, err := ds.Var("observation")
	require.NoError(t, err)
	model, err = ds.Var("model")
	require.NoError(t, err)
	return obs, model
}

func row(variable, expr string) domain.MappingEntry {
	return domain.MappingEntry{Variable: variable, ModelVariable: expr, Pattern: "*ptrc_T*"}
}

func TestMatchup_SurfaceVariables(t *testing.T) {
	f := newFixture(t, nil)
	years := monthlyTimes(16, 2000, 2001)
	f.addSource(t, "nitrate", "cmems", map[string]*grid.Dataset{
		"nitrate.nc": obsField(t, "no3", "mmol/m3", nil, years, func(tm time.Time, _ int) float64 {
			return float64(tm.Month()) + 0.5
		}),
	})
	f.addSource(t, "temperature", "cmems", map[string]*grid.Dataset{
		"sst.nc": obsField(t, "analysed_sst", "degrees C", nil, years, constant(10)),
	})
	f.addSource(t, "co2flux", "cmems", map[string]*grid.Dataset{
		"flux.nc": obsField(t, "fgco2", "mol/m2/yr", nil, years, constant(-0.5)),
	})
	f.addSource(t, "chlorophyll", "cmems", map[string]*grid.Dataset{
		"chl.nc": obsField(t, "chl", "mg/m3", nil, years, constant(2)),
	})
	f.addSource(t, "doc", "cmems", map[string]*grid.Dataset{
		"doc.nc": obsField(t, "doc", "mmol/m3", nil, years, constant(1)),
	})

	mapping := []domain.MappingEntry{
		row("nitrate", "N3_n"),
		row("temperature", "votemper"),
		row("co2flux", "fco2"),
		row("chlorophyll", "Chl1+Chl2"),
		row("doc", "DOC"),
	}
	summary, err := f.useCase().Run(context.Background(),
		f.request(mapping, "temperature", "nitrate", "co2flux", "chlorophyll", "doc"))
	require.NoError(t, err)

	var order []string
	for _, r := range summary.Written {
		order = append(order, r.Variable)
		assert.Equal(t, "cmems", r.Source)
		assert.Equal(t, 2000, r.StartYear)
		assert.Equal(t, 2001, r.EndYear)
		assert.Empty(t, r.Vertical)
	}
	assert.Equal(t, []string{"chlorophyll", "co2flux", "doc", "nitrate", "temperature"}, order)
	assert.Empty(t, summary.Skipped)

	t.Run("nitrate", func(t *testing.T) {
		ds := f.written(t, "cmems", "nitrate", "surface")
		obs, model := channels(t, ds)
		require.Equal(t, 24, ds.NT())
		require.Equal(t, 48, ds.NP())
		assert.Equal(t, "2000", ds.Attrs["start_year"])
		assert.Equal(t, "2001", ds.Attrs["end_year"])
		assert.Equal(t, 2000, ds.Times[0].Year())
		assert.Equal(t, time.January, ds.Times[0].Month())

		np := ds.NP()
		assert.InDelta(t, 1.5, obs.Values[1], 1e-9)
		assert.InDelta(t, 1.0, model.Values[1], 1e-9)
		assert.InDelta(t, 12.5, obs.Values[23*np+1], 1e-9)
		assert.InDelta(t, 12.0, model.Values[23*np+1], 1e-9)
		for _, p := range []int{landPoint, gapPoint} {
			assert.True(t, math.IsNaN(obs.Values[p]), "observation at %d", p)
			assert.True(t, math.IsNaN(model.Values[p]), "model at %d", p)
		}
	})

	t.Run("temperature in Kelvin is converted", func(t *testing.T) {
		ds := f.written(t, "cmems", "temperature", "surface")
		obs, model := channels(t, ds)
		assert.InDelta(t, 10.0, obs.Values[1], 1e-9)
		assert.InDelta(t, 11.85, model.Values[1], 1e-9)
		assert.Equal(t, domain.CelsiusUnits, obs.Units)
		assert.Equal(t, domain.CelsiusUnits, model.Units)
	})

	t.Run("co2 flux sign and units", func(t *testing.T) {
		ds := f.written(t, "cmems", "co2flux", "surface")
		obs, model := channels(t, ds)
		assert.InDelta(t, -0.5, obs.Values[1], 1e-9)
		assert.InDelta(t, -0.73, model.Values[1], 1e-9)
		assert.Equal(t, "mol/m2/yr", obs.Units)
		assert.Equal(t, "mol/m2/yr", model.Units)
	})

	t.Run("composite chlorophyll", func(t *testing.T) {
		ds := f.written(t, "cmems", "chlorophyll", "surface")
		_, model := channels(t, ds)
		assert.InDelta(t, 1.5, model.Values[1], 1e-9)
		assert.Equal(t, "mg/m3", model.Units)
		assert.Equal(t, "Total chlorophyll concentration", model.LongName)
	})

	t.Run("organic carbon climatology", func(t *testing.T) {
		ds := f.written(t, "cmems", "doc", "surface")
		obs, model := channels(t, ds)
		require.Equal(t, 12, ds.NT())
		assert.InDelta(t, 12.011, obs.Values[1], 1e-9)
		assert.InDelta(t, 2+40*12.011, model.Values[1], 1e-9)
	})

	t.Run("shared grid and footprint", func(t *testing.T) {
		ref := f.written(t, "cmems", "nitrate", "surface")
		for _, v := range []string{"temperature", "co2flux", "chlorophyll", "doc"} {
			ds := f.written(t, "cmems", v, "surface")
			assert.Equal(t, ref.Lon, ds.Lon, v)
			assert.Equal(t, ref.Lat, ds.Lat, v)
			obs, model := channels(t, ds)
			for i := range obs.Values {
				if math.IsNaN(obs.Values[i]) != math.IsNaN(model.Values[i]) {
					t.Fatalf("%s: footprints differ at %d", v, i)
				}
			}
		}
	})

	t.Run("report", func(t *testing.T) {
		data, err := os.ReadFile(f.cfg.ReportPath)
		require.NoError(t, err)
		text := string(data)
		assert.Contains(t, text, "### Matchups for nitrate")
		assert.Contains(t, text, "Number of paths: 24")
		assert.Contains(t, text, "Minimum year: 2000")
		assert.Contains(t, text, "Maximum year: 2001")
		assert.Contains(t, text, "Files used for nitrate:")
	})

	t.Run("grid cache", func(t *testing.T) {
		points, err := csv.ReadGrid(filepath.Join(f.cfg.OutDir, GridCacheFile))
		require.NoError(t, err)
		assert.Len(t, points, 47)
		assert.NoFileExists(t, filepath.Join(f.cfg.OutDir, AMM7MarkerFile))
	})
}

func TestMatchup_Idempotent(t *testing.T) {
	f := newFixture(t, nil)
	f.addSource(t, "nitrate", "cmems", map[string]*grid.Dataset{
		"nitrate.nc": obsField(t, "no3", "mmol/m3", nil, monthlyTimes(16, 2000, 2001), func(tm time.Time, _ int) float64 {
			return float64(tm.Month())
		}),
	})
	mapping := []domain.MappingEntry{row("nitrate", "N3_n")}
	uc := f.useCase()

	_, err := uc.Run(context.Background(), f.request(mapping, "nitrate"))
	require.NoError(t, err)
	first := f.written(t, "cmems", "nitrate", "surface")

	_, err = uc.Run(context.Background(), f.request(mapping, "nitrate"))
	require.NoError(t, err)
	second := f.written(t, "cmems", "nitrate", "surface")
	assert.Equal(t, fmt.Sprint(first.Vars[0].Values), fmt.Sprint(second.Vars[0].Values))
	assert.Equal(t, fmt.Sprint(first.Vars[1].Values), fmt.Sprint(second.Vars[1].Values))
	assert.Equal(t, first.Times, second.Times)

	f.cfg.Overwrite = false
	summary, err := uc.Run(context.Background(), f.request(mapping, "nitrate"))
	require.NoError(t, err)
	assert.Empty(t, summary.Written)
	assert.Equal(t, []string{"nitrate"}, summary.Skipped)
}

func TestMatchup_AmbiguousMappingFailsBeforeIO(t *testing.T) {
	f := newFixture(t, nil)
	mapping := []domain.MappingEntry{
		row("nitrate", "N3_n"),
		{Variable: "chlorophyll", ModelVariable: "Chl1", Pattern: "*ptrc_T*"},
		{Variable: "chlorophyll", ModelVariable: "Chl2", Pattern: "*diag_T*"},
	}
	_, err := f.useCase().Run(context.Background(), f.request(mapping, "nitrate", "chlorophyll"))
	require.Error(t, err)

	var cfgErr *domain.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "chlorophyll", cfgErr.Subject)
	assert.Zero(t, f.store.opens)
	assert.NoFileExists(t, f.cfg.ReportPath)
	assert.Empty(t, f.store.writes)
}

func TestMatchup_VariablesWithoutRowsAreSkipped(t *testing.T) {
	f := newFixture(t, nil)
	f.addSource(t, "nitrate", "cmems", map[string]*grid.Dataset{
		"nitrate.nc": obsField(t, "no3", "mmol/m3", nil, monthlyTimes(16, 2000, 2001), constant(3)),
	})
	mapping := []domain.MappingEntry{
		row("nitrate", "N3_n"),
		row("ph", ""),
	}
	summary, err := f.useCase().Run(context.Background(), f.request(mapping, "nitrate", "ph", "oxygen"))
	require.NoError(t, err)
	require.Len(t, summary.Written, 1)
	assert.Equal(t, "nitrate", summary.Written[0].Variable)
	assert.Len(t, f.store.writes, 1)
}

func TestMatchup_MissingMarker(t *testing.T) {
	f := newFixture(t, nil)
	f.addSource(t, "nitrate", "", map[string]*grid.Dataset{
		"nitrate.nc": obsField(t, "no3", "mmol/m3", nil, monthlyTimes(16, 2000), constant(3)),
	})
	_, err := f.useCase().Run(context.Background(), f.request([]domain.MappingEntry{row("nitrate", "N3_n")}, "nitrate"))
	require.Error(t, err)

	var cfgErr *domain.ConfigError
	assert.True(t, errors.As(err, &cfgErr))
	assert.Empty(t, f.store.writes)
}

func TestMatchup_Cancelled(t *testing.T) {
	f := newFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.useCase().Run(ctx, f.request([]domain.MappingEntry{row("nitrate", "N3_n")}, "nitrate"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMatchup_AnnualVerticalSource(t *testing.T) {
	modelDepths := []float64{0.5, 10, 50}
	obsDepths := []float64{0, 5, 20, 100}
	f := newFixture(t, modelDepths)
	f.addSource(t, "nitrate", "woa", map[string]*grid.Dataset{
		"woa_nitrate_monthly.nc": obsField(t, "n_mn", "umol/kg", nil, monthlyTimes(16, 1955), func(tm time.Time, _ int) float64 {
			return float64(tm.Month()) + 0.5
		}),
		"woa_nitrate_annual.nc": obsField(t, "n_an", "umol/kg", obsDepths,
			[]time.Time{time.Date(1955, time.July, 1, 0, 0, 0, 0, time.UTC)},
			func(_ time.Time, z int) float64 { return 2 * obsDepths[z] }),
	})

	summary, err := f.useCase().Run(context.Background(), f.request([]domain.MappingEntry{row("nitrate", "N3_n")}, "nitrate"))
	require.NoError(t, err)
	require.Len(t, summary.Written, 1)
	res := summary.Written[0]
	assert.Equal(t, "woa", res.Source)
	assert.Equal(t, 2000, res.StartYear)
	assert.Equal(t, 2001, res.EndYear)
	require.NotEmpty(t, res.Vertical)

	surface := f.written(t, "woa", "nitrate", "surface")
	require.Equal(t, 12, surface.NT())
	obs, model := channels(t, surface)
	assert.InDelta(t, 1.5, obs.Values[1], 1e-9)
	assert.InDelta(t, 0.5, model.Values[1], 1e-9)

	vertical := f.written(t, "woa", "nitrate", "vertical")
	assert.Equal(t, []float64{5, 20}, vertical.Depths)
	assert.Equal(t, 1, vertical.NT())
	assert.Equal(t, "2000", vertical.Attrs["start_year"])
	obs, model = channels(t, vertical)
	np := vertical.NP()
	assert.InDelta(t, 10.0, obs.Values[1], 1e-9)
	assert.InDelta(t, 40.0, obs.Values[np+1], 1e-9)
	assert.InDelta(t, 5.0, model.Values[1], 1e-9)
	assert.InDelta(t, 20.0, model.Values[np+1], 1e-9)
	for _, p := range []int{landPoint, gapPoint} {
		assert.True(t, math.IsNaN(obs.Values[p]))
		assert.True(t, math.IsNaN(model.Values[p]))
	}
}

func TestMatchup_AnnualFileWithSeveralVariables(t *testing.T) {
	f := newFixture(t, []float64{0.5, 10, 50})
	annual := obsField(t, "n_an", "umol/kg", []float64{0, 5, 20}, []time.Time{time.Date(1955, time.July, 1, 0, 0, 0, 0, time.UTC)}, constant(1))
	_, err := annual.AddVariable("n_sd", "umol/kg", make([]float64, annual.NZ()*annual.NP()))
	require.NoError(t, err)
	f.addSource(t, "nitrate", "woa", map[string]*grid.Dataset{
		"woa_nitrate_monthly.nc": obsField(t, "n_mn", "umol/kg", nil, monthlyTimes(16, 1955), constant(1)),
		"woa_nitrate_annual.nc":  annual,
	})

	_, err = f.useCase().Run(context.Background(), f.request([]domain.MappingEntry{row("nitrate", "N3_n")}, "nitrate"))
	require.Error(t, err)
	var cfgErr *domain.ConfigError
	require.True(t, errors.As(err, &cfgErr))
	assert.Contains(t, cfgErr.Reason, "exactly one variable")
}

func TestMatchupRequest_Validate(t *testing.T) {
	base := MatchupRequest{ModelRoot: "/model", TimeIndex: domain.TimeIndex{}, Surface: domain.SurfaceTop, Domain: domain.DomainNWS}
	require.NoError(t, base.Validate())

	tests := []struct {
		name   string
		modify func(r *MatchupRequest)
	}{
		{"no model root", func(r *MatchupRequest) { r.ModelRoot = "" }},
		{"bad domain", func(r *MatchupRequest) { r.Domain = "arctic" }},
		{"bad surface", func(r *MatchupRequest) { r.Surface = "middle" }},
		{"inverted window", func(r *MatchupRequest) { r.YearWindow, r.SimStart, r.SimEnd = true, 2005, 2000 }},
		{"no index", func(r *MatchupRequest) { r.TimeIndex = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := base
			tt.modify(&r)
			assert.Error(t, r.Validate())
		})
	}
}
