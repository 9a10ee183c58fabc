package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"go.ngs.io/ocean-matchup/internal/adapter/store/csv"
	"go.ngs.io/ocean-matchup/internal/adapter/store/netcdf"
	"go.ngs.io/ocean-matchup/internal/domain"
	"go.ngs.io/ocean-matchup/internal/grid"
	"go.ngs.io/ocean-matchup/internal/metrics"
	"go.ngs.io/ocean-matchup/internal/report"
	"go.ngs.io/ocean-matchup/internal/usecase"
)

// latestYear stands in for an open-ended simulation.
const latestYear = 9999

var runCmd = &cobra.Command{
	Use:   "run MODEL_DIR",
	Short: "Match up model output with gridded observations",
	Long: `run matches up the requested variables of the model run in MODEL_DIR with
the gridded observation products below data_dir. The mapping table links each
variable to its model field and file pattern:

    variable,model_variable,pattern
    nitrate,N3_n,*ptrc_T*
    chlorophyll,Chl1+Chl2+Chl3+Chl4,*ptrc_T*

Matchups are written to <out_dir>/gridded/<domain>/<variable>/ and each
variable's model files are recorded in the markdown report.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := runRequest(cmd, args[0])
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		store := netcdf.NewStore(log)
		rep := report.NewWriter(cfg.ReportPath, log)
		uc := usecase.NewMatchupUseCase(cfg, store, rep, metrics.NewCollector("ocean_matchup"), log)
		summary, err := uc.Run(ctx, *req)
		if err != nil {
			return err
		}
		for _, res := range summary.Written {
			cmd.Printf("%s: %s\n", res.Variable, res.Surface)
			if res.Vertical != "" {
				cmd.Printf("%s: %s\n", res.Variable, res.Vertical)
			}
		}
		if len(summary.Skipped) > 0 {
			cmd.Printf("skipped (already matched): %s\n", strings.Join(summary.Skipped, ", "))
		}
		return nil
	},
	DisableAutoGenTag: true,
}

func init() {
	flags := runCmd.Flags()
	flags.StringP("mapping", "m", "mapping.csv", "model variable mapping table")
	flags.StringSlice("variables", domain.VariableNames(), "variables to match up")
	flags.StringSlice("exclude", nil, "skip model files whose name contains any of these")
	flags.String("surface", string(domain.SurfaceTop), "surface level: top or bottom")
	flags.String("domain", string(domain.DomainNWS), "domain: nws or global")
	flags.Int("start", 0, "first simulation year; enables year filtering")
	flags.Int("sim-start", 0, "first simulation year (defaults to --start)")
	flags.Int("sim-end", 0, "last simulation year (default: open-ended)")
	flags.Bool("strict", false, "restrict climatologies to the model years")
	flags.Float64Slice("lon-lim", nil, "crop matchups to lon min,max")
	flags.Float64Slice("lat-lim", nil, "crop matchups to lat min,max")
	flags.Float64Slice("model-extent", nil, "trusted model extent lon min,max,lat min,max")
	flags.String("time-index", "", "time index from 'ecoval index' (default: scan MODEL_DIR)")
	flags.String("thickness", "", "NetCDF file with model cell thickness for vertical interpolation")
}

// runRequest builds the matchup request from the command line.
func runRequest(cmd *cobra.Command, modelDir string) (*usecase.MatchupRequest, error) {
	flags := cmd.Flags()
	mappingPath, _ := flags.GetString("mapping")
	mapping, err := csv.LoadMapping(mappingPath)
	if err != nil {
		return nil, err
	}

	req := &usecase.MatchupRequest{Mapping: mapping, ModelRoot: modelDir}
	req.Variables, _ = flags.GetStringSlice("variables")
	req.Exclude, _ = flags.GetStringSlice("exclude")
	req.Strict, _ = flags.GetBool("strict")

	surface, _ := flags.GetString("surface")
	if req.Surface, err = domain.ParseSurface(surface); err != nil {
		return nil, err
	}
	dom, _ := flags.GetString("domain")
	if req.Domain, err = domain.ParseDomain(dom); err != nil {
		return nil, err
	}

	if flags.Changed("start") || flags.Changed("sim-start") {
		req.YearWindow = true
		req.SimStart, _ = flags.GetInt("start")
		if flags.Changed("sim-start") {
			req.SimStart, _ = flags.GetInt("sim-start")
		}
		req.SimEnd = latestYear
		if flags.Changed("sim-end") {
			req.SimEnd, _ = flags.GetInt("sim-end")
		}
	}

	lonLim, _ := flags.GetFloat64Slice("lon-lim")
	latLim, _ := flags.GetFloat64Slice("lat-lim")
	if req.Limits, err = limitsBox(lonLim, latLim); err != nil {
		return nil, err
	}
	if extent, _ := flags.GetFloat64Slice("model-extent"); len(extent) > 0 {
		if len(extent) != 4 {
			return nil, fmt.Errorf("--model-extent needs 4 values, got %d", len(extent))
		}
		req.ModelExtent = &grid.Box{LonMin: extent[0], LonMax: extent[1], LatMin: extent[2], LatMax: extent[3]}
	}

	store := netcdf.NewStore(log)
	if path, _ := flags.GetString("time-index"); path != "" {
		req.TimeIndex, err = readTimeIndex(path)
	} else {
		req.TimeIndex, err = usecase.BuildTimeIndex(store, modelDir, cfg.Levels, log)
	}
	if err != nil {
		return nil, err
	}

	if path, _ := flags.GetString("thickness"); path != "" {
		thickness, err := store.Open(path)
		if err != nil {
			return nil, err
		}
		if req.Thickness, err = thickness.Select(thickness.Vars[0].Name); err != nil {
			return nil, err
		}
	}
	return req, nil
}

// limitsBox builds the crop box of --lon-lim/--lat-lim. An axis left out
// is not limited.
func limitsBox(lon, lat []float64) (*grid.Box, error) {
	if len(lon) == 0 && len(lat) == 0 {
		return nil, nil
	}
	box := grid.World
	if len(lon) > 0 {
		if len(lon) != 2 || lon[0] > lon[1] {
			return nil, fmt.Errorf("--lon-lim needs min,max, got %v", lon)
		}
		box.LonMin, box.LonMax = lon[0], lon[1]
	}
	if len(lat) > 0 {
		if len(lat) != 2 || lat[0] > lat[1] {
			return nil, fmt.Errorf("--lat-lim needs min,max, got %v", lat)
		}
		box.LatMin, box.LatMax = lat[0], lat[1]
	}
	return &box, nil
}
