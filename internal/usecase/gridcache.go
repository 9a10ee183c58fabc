package usecase

import (
	"fmt"
	"os"
	"path/filepath"

	"go.ngs.io/ocean-matchup/internal/adapter/store/csv"
	"go.ngs.io/ocean-matchup/internal/domain"
)

// Grid cache files below the output directory.
const (
	GridCacheFile  = "model_grid.csv"
	AMM7MarkerFile = "amm7.txt"
)

// ensureGridCache writes the populated model grid points once, from the
// first time step of the first model file.
func (uc *MatchupUseCase) ensureGridCache(path string, surface domain.Surface) error {
	cachePath := filepath.Join(uc.cfg.OutDir, GridCacheFile)
	if fileExists(cachePath) {
		return nil
	}

	ds, err := uc.store.Open(path)
	if err != nil {
		return err
	}
	if ds, err = ds.Select(ds.Vars[0].Name); err != nil {
		return err
	}
	if ds, err = ds.First(); err != nil {
		return fmt.Errorf("failed to read model grid from %s: %w", path, err)
	}
	ds.AsMissing(0)
	ds = surfaceOf(ds, surface)

	if ds.NP() == domain.AMM7Points {
		if err := os.MkdirAll(uc.cfg.OutDir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
		if err := os.WriteFile(filepath.Join(uc.cfg.OutDir, AMM7MarkerFile), nil, 0o644); err != nil {
			return fmt.Errorf("failed to write AMM7 marker: %w", err)
		}
		ref, err := uc.referenceGrid()
		if err != nil {
			return err
		}
		if err := ds.SetGrid(ref); err != nil {
			return fmt.Errorf("failed to repair model grid: %w", err)
		}
	}

	lons, lats := ds.PopulatedPoints()
	points := make([]csv.GridPoint, len(lons))
	for i := range lons {
		points[i] = csv.GridPoint{Lon: lons[i], Lat: lats[i]}
	}
	if err := csv.WriteGrid(cachePath, points); err != nil {
		return err
	}
	uc.log.WithField("points", len(points)).Info("model grid cache written")
	return nil
}
