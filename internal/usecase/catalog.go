package usecase

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.ngs.io/ocean-matchup/internal/adapter/store"
	"go.ngs.io/ocean-matchup/internal/domain"
)

// ErrNotFound is returned when no matchup matches a query.
var ErrNotFound = errors.New("matchup not found")

// Artifact is a matchup file found in the output directory.
type Artifact struct {
	Domain    string `json:"domain"`
	Variable  string `json:"variable"`
	Source    string `json:"source"`
	Kind      string `json:"kind"`
	Path      string `json:"path"`
	StartYear string `json:"start_year,omitempty"`
	EndYear   string `json:"end_year,omitempty"`
}

// ChannelSummary describes one variable of a matchup file.
type ChannelSummary struct {
	Name       string  `json:"name"`
	Units      string  `json:"units,omitempty"`
	LongName   string  `json:"long_name,omitempty"`
	ValidCount int     `json:"valid_count"`
	Max        float64 `json:"max,omitempty"`
}

// ArtifactDetail is an artifact with its dimensions and channels.
type ArtifactDetail struct {
	Artifact
	NX       int              `json:"nx"`
	NY       int              `json:"ny"`
	NZ       int              `json:"nz"`
	NT       int              `json:"nt"`
	Depths   []float64        `json:"depths,omitempty"`
	Channels []ChannelSummary `json:"channels"`
}

// CatalogUseCase lists and inspects written matchups.
type CatalogUseCase struct {
	outDir     string
	reportPath string
	reader     store.DatasetReader
}

// NewCatalogUseCase creates a catalog over an output directory.
func NewCatalogUseCase(outDir, reportPath string, reader store.DatasetReader) *CatalogUseCase {
	return &CatalogUseCase{outDir: outDir, reportPath: reportPath, reader: reader}
}

// List returns every matchup file, sorted by path.
func (c *CatalogUseCase) List() ([]Artifact, error) {
	matches, err := filepath.Glob(filepath.Join(c.outDir, "gridded", "*", "*", "*.nc"))
	if err != nil {
		return nil, fmt.Errorf("failed to list matchups: %w", err)
	}
	sort.Strings(matches)

	artifacts := make([]Artifact, 0, len(matches))
	for _, p := range matches {
		a, ok := parseArtifact(p)
		if !ok {
			continue
		}
		if ds, err := c.reader.Open(p); err == nil {
			a.StartYear = ds.Attrs["start_year"]
			a.EndYear = ds.Attrs["end_year"]
		}
		artifacts = append(artifacts, a)
	}
	return artifacts, nil
}

// Describe returns the matchups of one variable in a domain.
func (c *CatalogUseCase) Describe(d domain.Domain, variable string) ([]ArtifactDetail, error) {
	if _, ok := domain.LookupVariable(variable); !ok {
		return nil, fmt.Errorf("%w: unknown variable %s", ErrNotFound, variable)
	}
	matches, err := filepath.Glob(filepath.Join(c.outDir, "gridded", string(d), variable, "*.nc"))
	if err != nil {
		return nil, fmt.Errorf("failed to list matchups: %w", err)
	}
	sort.Strings(matches)

	var details []ArtifactDetail
	for _, p := range matches {
		a, ok := parseArtifact(p)
		if !ok {
			continue
		}
		ds, err := c.reader.Open(p)
		if err != nil {
			return nil, err
		}
		a.StartYear = ds.Attrs["start_year"]
		a.EndYear = ds.Attrs["end_year"]
		detail := ArtifactDetail{
			Artifact: a,
			NX:       ds.NX,
			NY:       ds.NY,
			NZ:       ds.NZ(),
			NT:       ds.NT(),
			Depths:   ds.Depths,
		}
		for _, v := range ds.Vars {
			n, _ := ds.ValidCount(v.Name)
			summary := ChannelSummary{Name: v.Name, Units: v.Units, LongName: v.LongName, ValidCount: n}
			if n > 0 {
				summary.Max, _ = ds.Max(v.Name)
			}
			detail.Channels = append(detail.Channels, summary)
		}
		details = append(details, detail)
	}
	if len(details) == 0 {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, d, variable)
	}
	return details, nil
}

// Report returns the markdown run report.
func (c *CatalogUseCase) Report() ([]byte, error) {
	data, err := os.ReadFile(c.reportPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: no report at %s", ErrNotFound, c.reportPath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}
	return data, nil
}

// parseArtifact splits <out>/gridded/<domain>/<variable>/<source>_<variable>_<kind>.nc.
func parseArtifact(path string) (Artifact, bool) {
	variable := filepath.Base(filepath.Dir(path))
	dom := filepath.Base(filepath.Dir(filepath.Dir(path)))
	base := strings.TrimSuffix(filepath.Base(path), ".nc")

	for _, kind := range []string{"surface", "vertical"} {
		suffix := "_" + variable + "_" + kind
		if strings.HasSuffix(base, suffix) && len(base) > len(suffix) {
			return Artifact{
				Domain:   dom,
				Variable: variable,
				Source:   strings.TrimSuffix(base, suffix),
				Kind:     kind,
				Path:     path,
			}, true
		}
	}
	return Artifact{}, false
}
