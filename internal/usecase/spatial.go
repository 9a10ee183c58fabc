package usecase

import (
	"fmt"
	"path/filepath"

	"go.ngs.io/ocean-matchup/internal/domain"
	"go.ngs.io/ocean-matchup/internal/grid"
)

// ReferenceGridFile holds the corrected AMM7 coordinates below data_dir.
const ReferenceGridFile = "amm7_val_subdomains.nc"

var shelfBox = grid.Box{
	LonMin: domain.ShelfLonMin,
	LonMax: domain.ShelfLonMax,
	LatMin: domain.ShelfLatMin,
	LatMax: domain.ShelfLatMax,
}

// referenceGrid loads the AMM7 reference grid once per use case.
func (uc *MatchupUseCase) referenceGrid() (*grid.Dataset, error) {
	if uc.refGrid != nil {
		return uc.refGrid, nil
	}
	ds, err := uc.store.Open(filepath.Join(uc.cfg.DataDir, ReferenceGridFile))
	if err != nil {
		return nil, fmt.Errorf("failed to load AMM7 reference grid: %w", err)
	}
	uc.refGrid = ds
	return ds, nil
}

// repairGrid replaces the coordinates of AMM7 shelf output with the
// reference grid and crops it to the shelf.
func (uc *MatchupUseCase) repairGrid(m *matchup) error {
	if m.req.Domain != domain.DomainNWS || m.model.NP() != domain.AMM7Points {
		return nil
	}
	ref, err := uc.referenceGrid()
	if err != nil {
		return err
	}
	if err := m.model.SetGrid(ref); err != nil {
		return fmt.Errorf("failed to repair model grid: %w", err)
	}
	if m.modelVertical != nil {
		if err := m.modelVertical.SetGrid(ref); err != nil {
			return fmt.Errorf("failed to repair model grid: %w", err)
		}
	}
	cropped, err := m.model.Crop(shelfBox)
	if err != nil {
		return fmt.Errorf("failed to crop model to the shelf: %w", err)
	}
	m.model = cropped
	m.log.Debug("repaired AMM7 grid")
	return nil
}

// commonExtent returns the box covered by both the model and the
// observations.
func commonExtent(m *matchup) (grid.Box, error) {
	var modelBox grid.Box
	var err error
	switch {
	case m.req.ModelExtent != nil:
		modelBox = *m.req.ModelExtent
	case m.req.Domain == domain.DomainGlobal:
		modelBox, err = m.model.ResampledExtent()
	default:
		modelBox, err = grid.TrimmedExtent(m.model.PopulatedPoints())
	}
	if err != nil {
		return grid.Box{}, fmt.Errorf("failed to get model extent: %w", err)
	}

	var obsBox grid.Box
	if m.req.Domain == domain.DomainGlobal {
		obsBox, err = m.obs.ResampledExtent()
	} else {
		obsBox, err = m.obs.CoordinateExtent()
	}
	if err != nil {
		return grid.Box{}, fmt.Errorf("failed to get observation extent: %w", err)
	}

	box, err := modelBox.Intersect(obsBox)
	if err != nil {
		return grid.Box{}, err
	}
	if m.req.Domain == domain.DomainGlobal {
		box = box.Clip(grid.World)
	}
	return box, nil
}

// reconcileSpace crops both series to their common extent and regrids the
// one with more points onto the other. Equal counts regrid the
// observations.
func reconcileSpace(m *matchup) error {
	box, err := commonExtent(m)
	if err != nil {
		return err
	}
	model, err := m.model.Crop(box)
	if err != nil {
		return fmt.Errorf("failed to crop model: %w", err)
	}
	obs, err := m.obs.Crop(box)
	if err != nil {
		return fmt.Errorf("failed to crop observations: %w", err)
	}

	m.regridObs = obs.NP() >= model.NP()
	if m.regridObs {
		obs, err = obs.RegridNearest(model)
	} else {
		model, err = model.RegridNearest(obs)
	}
	if err != nil {
		return fmt.Errorf("failed to regrid: %w", err)
	}

	if err := renameChannel(obs, "observation"); err != nil {
		return err
	}
	if err := renameChannel(model, "model"); err != nil {
		return err
	}
	m.box, m.model, m.obs = box, model, obs
	m.log.WithField("box", box.String()).Debug("spatial extent reconciled")
	return nil
}

// renameChannel keeps the first variable under the channel name.
func renameChannel(ds *grid.Dataset, name string) error {
	if len(ds.Vars) == 0 {
		return fmt.Errorf("%w: no %s variable", grid.ErrVariableNotFound, name)
	}
	first := ds.Vars[0].Name
	drop := make([]string, 0, len(ds.Vars)-1)
	for _, v := range ds.Vars[1:] {
		drop = append(drop, v.Name)
	}
	ds.Drop(drop...)
	return ds.Rename(first, name)
}
