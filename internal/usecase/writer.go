package usecase

import (
	"fmt"
	"path/filepath"
	"strconv"

	"go.ngs.io/ocean-matchup/internal/adapter/store/netcdf"
	"go.ngs.io/ocean-matchup/internal/grid"
)

var matchupWriteOptions = netcdf.WriteOptions{Float32: true, FillValue: netcdf.DefaultFillValue, Deflate: 4}

// mergeChannels pairs the observation and model series into one dataset.
// Series longer than a year are paired by year and month, shorter ones by
// month.
func mergeChannels(m *matchup) (*grid.Dataset, error) {
	key := grid.MatchMonth
	if m.model.NT() > 12 {
		key = grid.MatchYearMonth
	}
	merged, err := grid.MergeVariables(key, m.obs, m.model)
	if err != nil {
		return nil, fmt.Errorf("failed to merge observation and model: %w", err)
	}
	if merged.NT() == 0 {
		return nil, fmt.Errorf("observation and model share no time steps: %w", grid.ErrNoTimeSteps)
	}
	setYears(merged, m.startYear, m.endYear)
	return merged, nil
}

func setYears(ds *grid.Dataset, start, end int) {
	ds.SetAttr("start_year", strconv.Itoa(start))
	ds.SetAttr("end_year", strconv.Itoa(end))
}

// matchupPath returns the output path of a matchup file.
func (uc *MatchupUseCase) matchupPath(m *matchup, kind string) string {
	name := fmt.Sprintf("%s_%s_%s.nc", m.source.Name, m.spec.Name, kind)
	return filepath.Join(uc.cfg.OutDir, "gridded", string(m.req.Domain), m.spec.Name, name)
}

// writeMatchup writes the surface matchup and, when present, the vertical
// one. Existing files are replaced.
func (uc *MatchupUseCase) writeMatchup(m *matchup, surface, vertical *grid.Dataset) (*MatchupResult, error) {
	res := &MatchupResult{
		Variable:  m.spec.Name,
		Source:    m.source.Name,
		Surface:   uc.matchupPath(m, "surface"),
		StartYear: m.startYear,
		EndYear:   m.endYear,
	}

	out, err := uc.limit(m, surface)
	if err != nil {
		return nil, err
	}
	if err := uc.store.Write(res.Surface, out, matchupWriteOptions); err != nil {
		return nil, err
	}
	uc.metrics.RecordMatchup(string(m.req.Domain), m.spec.Name, "surface")

	if vertical == nil {
		return res, nil
	}
	vertical.MaskCommon()
	setYears(vertical, m.startYear, m.endYear)
	out, err = vertical.Crop(m.box)
	if err != nil {
		return nil, fmt.Errorf("failed to crop vertical matchup: %w", err)
	}
	if out, err = uc.limit(m, out); err != nil {
		return nil, err
	}
	res.Vertical = uc.matchupPath(m, "vertical")
	if err := uc.store.Write(res.Vertical, out, matchupWriteOptions); err != nil {
		return nil, err
	}
	uc.metrics.RecordMatchup(string(m.req.Domain), m.spec.Name, "vertical")
	return res, nil
}

// limit applies the caller's crop box, if any.
func (uc *MatchupUseCase) limit(m *matchup, ds *grid.Dataset) (*grid.Dataset, error) {
	if m.req.Limits == nil {
		return ds, nil
	}
	out, err := ds.Crop(*m.req.Limits)
	if err != nil {
		return nil, fmt.Errorf("failed to crop to %v: %w", *m.req.Limits, err)
	}
	return out, nil
}
