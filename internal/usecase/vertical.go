package usecase

import (
	"fmt"

	"go.ngs.io/ocean-matchup/internal/grid"
)

// reconcileVertical builds the annual 3-D matchup of sources that carry a
// vertical climatology. It returns nil for other sources.
func reconcileVertical(m *matchup) (*grid.Dataset, error) {
	if m.modelVertical == nil || m.obsAnnual == nil {
		return nil, nil
	}

	model := m.modelVertical.TimeMean()
	if err := renameChannel(model, "model"); err != nil {
		return nil, err
	}
	shallowest, deepest, err := model.DepthRange()
	if err != nil {
		return nil, fmt.Errorf("failed to get model depths: %w", err)
	}
	levels := observationLevels(m.obsAnnual.Depths, shallowest, deepest)
	if len(levels) == 0 {
		return nil, fmt.Errorf("no observation levels between %g and %g m", shallowest, deepest)
	}

	// Interpolate on the native grid so a thickness field still lines up.
	if m.req.Thickness != nil {
		model, err = model.VerticalInterpThickness(levels, m.req.Thickness)
	} else {
		model, err = model.VerticalInterp(levels)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to interpolate model levels: %w", err)
	}

	if model, err = model.Crop(m.box); err != nil {
		return nil, fmt.Errorf("failed to crop model: %w", err)
	}
	obs, err := m.obsAnnual.Crop(m.box)
	if err != nil {
		return nil, fmt.Errorf("failed to crop observations: %w", err)
	}
	if m.regridObs {
		obs, err = obs.RegridNearest(model)
	} else {
		model, err = model.RegridNearest(obs)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to regrid: %w", err)
	}
	if obs, err = obs.VerticalInterp(levels); err != nil {
		return nil, fmt.Errorf("failed to interpolate observation levels: %w", err)
	}

	merged, err := grid.MergeVariables(grid.MatchIndex, obs, model)
	if err != nil {
		return nil, fmt.Errorf("failed to merge vertical matchup: %w", err)
	}
	return merged, nil
}

// observationLevels returns the levels within [shallowest, deepest].
func observationLevels(depths []float64, shallowest, deepest float64) []float64 {
	var levels []float64
	for _, z := range depths {
		if z >= shallowest && z <= deepest {
			levels = append(levels, z)
		}
	}
	return levels
}
