// Command synth-data writes a small synthetic model run, matching
// observation products and a mapping table for trying out ecoval.
package main

import (
	"flag"
	"os"

	"github.com/sirupsen/logrus"

	"go.ngs.io/ocean-matchup/internal/adapter/store/netcdf"
)

func main() {
	// Command line flags
	outDir := flag.String("out", "./demo", "Output directory")
	region := flag.String("region", "nws", "Region: nws or custom")
	latMin := flag.Float64("lat-min", 45.0, "Minimum latitude (custom region)")
	latMax := flag.Float64("lat-max", 60.0, "Maximum latitude (custom region)")
	lonMin := flag.Float64("lon-min", -15.0, "Minimum longitude (custom region)")
	lonMax := flag.Float64("lon-max", 5.0, "Maximum longitude (custom region)")
	resolution := flag.Float64("resolution", 0.5, "Model grid resolution in degrees")
	firstYear := flag.Int("first-year", 2000, "First model year")
	years := flag.Int("years", 2, "Number of model years")
	verbose := flag.Bool("v", false, "Verbose logging")

	flag.Parse()

	log := logrus.New()
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	} else {
		log.SetLevel(logrus.WarnLevel)
	}

	// Define grid based on region
	var r Region
	switch *region {
	case "nws":
		r = Region{LatMin: 45, LatMax: 60, LonMin: -15, LonMax: 5, Resolution: *resolution}
	case "custom":
		r = Region{LatMin: *latMin, LatMax: *latMax, LonMin: *lonMin, LonMax: *lonMax, Resolution: *resolution}
	default:
		log.Fatalf("Unknown region: %s (use nws or custom)", *region)
	}
	if *years < 1 {
		log.Fatalf("Need at least one model year, got %d", *years)
	}

	g := &Generator{
		Store:     netcdf.NewStore(log),
		Region:    r,
		FirstYear: *firstYear,
		Years:     *years,
		Log:       log,
	}
	summary, err := g.Generate(*outDir)
	if err != nil {
		log.WithError(err).Fatal("Failed to generate demo data")
	}

	out := logrus.New()
	out.SetOutput(os.Stdout)
	out.WithFields(logrus.Fields{
		"model_files":       summary.ModelFiles,
		"observation_files": summary.ObservationFiles,
		"grid":              summary.Grid,
	}).Info("Generation complete")
	out.Infof("Run: ecoval --data-dir %s --levels 1 run -m %s %s", summary.DataDir, summary.Mapping, summary.ModelDir)
}
