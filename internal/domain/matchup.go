package domain

import (
	"fmt"
	"strings"
)

// Domain is the geographic scope of a run.
type Domain string

const (
	DomainNWS    Domain = "nws"
	DomainGlobal Domain = "global"
)

// ParseDomain validates a domain name.
func ParseDomain(s string) (Domain, error) {
	switch d := Domain(strings.ToLower(strings.TrimSpace(s))); d {
	case DomainNWS, DomainGlobal:
		return d, nil
	}
	return "", fmt.Errorf("unknown domain %q (want nws or global)", s)
}

// Surface selects which vertical level represents the surface field.
type Surface string

const (
	SurfaceTop    Surface = "top"
	SurfaceBottom Surface = "bottom"
)

// ParseSurface validates a surface name.
func ParseSurface(s string) (Surface, error) {
	switch v := Surface(strings.ToLower(strings.TrimSpace(s))); v {
	case SurfaceTop, SurfaceBottom:
		return v, nil
	}
	return "", fmt.Errorf("unknown surface %q (want top or bottom)", s)
}

// AMM7Points is the horizontal point count that identifies AMM7 output
// whose coordinates need repair.
const AMM7Points = 111375

// Shelf crop applied to repaired AMM7 output.
const (
	ShelfLonMin = -19.0
	ShelfLonMax = 9.0
	ShelfLatMin = 41.0
	ShelfLatMax = 64.3
)

// ObservationSource is a gridded observation product on disk.
type ObservationSource struct {
	Name string
	Dir  string
}

// SourcePolicy captures the product-specific handling of an observation source.
type SourcePolicy struct {
	Name string
	// AnnualVertical sources carry a 3-D annual climatology next to the
	// monthly surface files and produce a vertical matchup.
	AnnualVertical bool
	// Channel, when set, is the native variable read from the product.
	Channel string
	// FirstYear and LastYear bound the model files kept for the source.
	FirstYear, LastYear int
	// TimeMean collapses the model series to a single mean.
	TimeMean bool
	// CommonYears restricts observations to the model year range.
	CommonYears bool
}

// HasYearWindow reports whether model files are filtered by year.
func (p SourcePolicy) HasYearWindow() bool {
	return p.FirstYear != 0 || p.LastYear != 0
}

var sourcePolicies = map[string]SourcePolicy{
	"woa":    {Name: "woa", AnnualVertical: true},
	"occci":  {Name: "occci", Channel: "chlor_a", CommonYears: true},
	"glodap": {Name: "glodap", FirstYear: 1971, LastYear: 2014, TimeMean: true},
}

// PolicyForSource returns the policy for a source name. Unknown sources get
// the default handling.
func PolicyForSource(name string) SourcePolicy {
	key := strings.ToLower(strings.TrimSpace(name))
	if p, ok := sourcePolicies[key]; ok {
		return p
	}
	return SourcePolicy{Name: key}
}
