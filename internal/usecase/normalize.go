package usecase

import (
	"fmt"

	"go.ngs.io/ocean-matchup/internal/domain"
	"go.ngs.io/ocean-matchup/internal/grid"
)

// normalizeUnits converts the observation and model channels to common
// units according to the variable's unit rule.
func normalizeUnits(ds *grid.Dataset, spec domain.VariableSpec) error {
	switch spec.Unit {
	case domain.UnitCO2Flux:
		if err := ds.Scale("model", domain.CO2FluxFactor); err != nil {
			return err
		}
		return setUnits(ds, domain.CO2FluxUnits)

	case domain.UnitOrganicCarbon:
		if err := ds.Scale("observation", domain.CarbonMolarMass); err != nil {
			return err
		}
		return ds.AddConst("model", domain.RefractoryDOC*domain.CarbonMolarMass)

	case domain.UnitKelvin:
		for _, ch := range []string{"observation", "model"} {
			hi, err := ds.Max(ch)
			if err != nil {
				return err
			}
			// NaN compares false, so empty channels are left alone.
			if hi > domain.KelvinThreshold {
				if err := ds.AddConst(ch, -domain.KelvinOffset); err != nil {
					return err
				}
			}
		}
		return setUnits(ds, domain.CelsiusUnits)
	}
	return nil
}

func setUnits(ds *grid.Dataset, units string) error {
	for _, ch := range []string{"observation", "model"} {
		if err := ds.SetUnits(ch, units); err != nil {
			return fmt.Errorf("failed to set units: %w", err)
		}
	}
	return nil
}
