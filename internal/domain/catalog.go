package domain

import (
	"sort"
	"strings"
)

// UnitRule identifies the unit conversion applied to a variable once the
// observation and model channels are aligned.
type UnitRule int

const (
	// UnitAsIs leaves both channels untouched.
	UnitAsIs UnitRule = iota
	// UnitCO2Flux flips the model flux sign and rescales it to mol/m2/yr.
	UnitCO2Flux
	// UnitOrganicCarbon converts observations from mmol to mg and adds the
	// refractory pool to the model.
	UnitOrganicCarbon
	// UnitKelvin converts each channel from Kelvin to Celsius when its maximum
	// exceeds KelvinThreshold.
	UnitKelvin
)

// TemporalRule selects variable-specific temporal handling.
type TemporalRule int

const (
	// TemporalDefault leaves the time basis to the source handling.
	TemporalDefault TemporalRule = iota
	// TemporalMonthlyClimatology reduces both channels to a monthly climatology.
	TemporalMonthlyClimatology
	// TemporalYearMonth keeps the observations as year+month means.
	TemporalYearMonth
	// TemporalCommonYears restricts both channels to their common years outside
	// the shelf domain before taking a monthly climatology.
	TemporalCommonYears
)

const (
	// KelvinThreshold is the channel maximum above which values are treated as Kelvin.
	KelvinThreshold = 100.0
	// KelvinOffset converts Kelvin to Celsius.
	KelvinOffset = 273.15
	// CarbonMolarMass converts mmol C to mg C.
	CarbonMolarMass = 12.011
	// RefractoryDOC is the refractory dissolved organic carbon pool in mmol/m3.
	RefractoryDOC = 40.0
	// CO2FluxFactor converts model flux to observation units and sign.
	CO2FluxFactor = -0.365
	// CO2FluxUnits is the unit string written for converted fluxes.
	CO2FluxUnits = "mol/m2/yr"
	// CelsiusUnits is the unit string written for converted temperatures.
	CelsiusUnits = "degrees C"
)

// VariableSpec is one entry of the variable catalogue.
type VariableSpec struct {
	Name        string
	DisplayName string
	// LongName is set on composite model fields. Empty keeps the constituent's.
	LongName string
	Unit     UnitRule
	Temporal TemporalRule
	// KeepObservationYears exempts the variable from trimming observation
	// series longer than a year to the model years.
	KeepObservationYears bool
}

// Title returns the display name as it appears in headings.
func (v VariableSpec) Title() string {
	switch v.Name {
	case "poc":
		return "POC"
	case "doc":
		return "DOC"
	case "ph":
		return "pH"
	case "co2flux":
		return "Sea-air CO2 flux"
	}
	if v.DisplayName == "" {
		return ""
	}
	return strings.ToUpper(v.DisplayName[:1]) + v.DisplayName[1:]
}

var catalog = map[string]VariableSpec{
	"alkalinity": {Name: "alkalinity", DisplayName: "alkalinity"},
	"ammonium":   {Name: "ammonium", DisplayName: "ammonium"},
	"chlorophyll": {
		Name:        "chlorophyll",
		DisplayName: "chlorophyll",
		LongName:    "Total chlorophyll concentration",
		Temporal:    TemporalCommonYears,
	},
	"co2flux": {Name: "co2flux", DisplayName: "sea-air CO2 flux", Unit: UnitCO2Flux},
	"doc": {
		Name:        "doc",
		DisplayName: "dissolved organic carbon",
		LongName:    "Dissolved organic carbon concentration",
		Unit:        UnitOrganicCarbon,
		Temporal:    TemporalMonthlyClimatology,
	},
	"nitrate":   {Name: "nitrate", DisplayName: "nitrate"},
	"oxygen":    {Name: "oxygen", DisplayName: "oxygen"},
	"pco2":      {Name: "pco2", DisplayName: "pco2"},
	"ph":        {Name: "ph", DisplayName: "pH"},
	"phosphate": {Name: "phosphate", DisplayName: "phosphate"},
	"poc": {
		Name:        "poc",
		DisplayName: "particulate organic carbon",
		LongName:    "Particulate organic carbon concentration",
		Temporal:    TemporalMonthlyClimatology,

		KeepObservationYears: true,
	},
	"salinity": {Name: "salinity", DisplayName: "salinity", Temporal: TemporalCommonYears},
	"silicate": {Name: "silicate", DisplayName: "silicate"},
	"temperature": {
		Name:        "temperature",
		DisplayName: "temperature",
		Unit:        UnitKelvin,
		Temporal:    TemporalYearMonth,

		KeepObservationYears: true,
	},
}

// LookupVariable returns the catalogue entry for a canonical variable name.
func LookupVariable(name string) (VariableSpec, bool) {
	v, ok := catalog[strings.ToLower(strings.TrimSpace(name))]
	return v, ok
}

// VariableNames returns the catalogue in processing order.
func VariableNames() []string {
	names := make([]string, 0, len(catalog))
	for k := range catalog {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
