package usecase

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"go.ngs.io/ocean-matchup/internal/adapter/discovery"
	"go.ngs.io/ocean-matchup/internal/adapter/store"
	"go.ngs.io/ocean-matchup/internal/config"
	"go.ngs.io/ocean-matchup/internal/domain"
	"go.ngs.io/ocean-matchup/internal/grid"
	"go.ngs.io/ocean-matchup/internal/metrics"
	"go.ngs.io/ocean-matchup/internal/report"
)

// MatchupRequest describes one gridded matchup run.
type MatchupRequest struct {
	// Mapping is the model variable mapping table.
	Mapping []domain.MappingEntry
	// Variables are the requested catalogue variables.
	Variables []string

	// Model output location.
	ModelRoot string
	Exclude   []string
	TimeIndex domain.TimeIndex

	Surface domain.Surface
	Domain  domain.Domain

	// YearWindow restricts the model years to [SimStart, SimEnd].
	YearWindow       bool
	SimStart, SimEnd int

	// Strict restricts climatology observations to the model years.
	Strict bool

	// Limits optionally crops the written matchups.
	Limits *grid.Box
	// Thickness optionally supplies model cell thickness for vertical
	// interpolation of annual 3-D sources.
	Thickness *grid.Dataset
	// ModelExtent overrides the extent derived from the model coordinates.
	ModelExtent *grid.Box
}

// Validate checks if the request is valid.
func (r *MatchupRequest) Validate() error {
	if r.ModelRoot == "" {
		return fmt.Errorf("model root directory must be provided")
	}
	if _, err := domain.ParseDomain(string(r.Domain)); err != nil {
		return err
	}
	if _, err := domain.ParseSurface(string(r.Surface)); err != nil {
		return err
	}
	if r.YearWindow && r.SimEnd < r.SimStart {
		return fmt.Errorf("simulation end year %d is before start year %d", r.SimEnd, r.SimStart)
	}
	if r.TimeIndex == nil {
		return fmt.Errorf("a model time index must be provided")
	}
	return nil
}

// MatchupResult describes the files written for one variable.
type MatchupResult struct {
	Variable  string `json:"variable"`
	Source    string `json:"source"`
	Surface   string `json:"surface"`
	Vertical  string `json:"vertical,omitempty"`
	StartYear int    `json:"start_year"`
	EndYear   int    `json:"end_year"`
}

// RunSummary is the outcome of a run.
type RunSummary struct {
	RunID   string          `json:"run_id"`
	Written []MatchupResult `json:"written"`
	Skipped []string        `json:"skipped"`
}

// MatchupUseCase orchestrates gridded matchups.
type MatchupUseCase struct {
	cfg     *config.Config
	store   store.DatasetStore
	report  *report.Writer
	metrics *metrics.Collector
	log     logrus.FieldLogger

	refGrid *grid.Dataset
}

// NewMatchupUseCase creates a matchup use case. A nil report writer or
// collector is replaced by a default one.
func NewMatchupUseCase(cfg *config.Config, datasets store.DatasetStore, rep *report.Writer, m *metrics.Collector, log logrus.FieldLogger) *MatchupUseCase {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if rep == nil {
		rep = report.NewWriter(cfg.ReportPath, log)
	}
	if m == nil {
		m = metrics.NewCollector("ocean_matchup")
	}
	return &MatchupUseCase{cfg: cfg, store: datasets, report: rep, metrics: m, log: log}
}

// matchup carries the state of one variable through the pipeline.
type matchup struct {
	req    *MatchupRequest
	spec   domain.VariableSpec
	entry  domain.MappingEntry
	source domain.ObservationSource
	policy domain.SourcePolicy
	log    logrus.FieldLogger

	// years are the model years selected by discovery.
	years              []int
	startYear, endYear int

	model         *grid.Dataset
	modelVertical *grid.Dataset
	obs           *grid.Dataset
	obsAnnual     *grid.Dataset

	box       grid.Box
	regridObs bool
}

// Run produces the matchups of every requested variable in sorted order.
// The mapping table is resolved before any file is touched.
func (uc *MatchupUseCase) Run(ctx context.Context, req MatchupRequest) (*RunSummary, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	resolved, err := domain.ResolveMappings(req.Mapping, req.Variables)
	if err != nil {
		return nil, err
	}

	runID := uc.report.RunHeader(time.Now())
	log := uc.log.WithFields(logrus.Fields{"run_id": runID.String(), "domain": req.Domain})
	summary := &RunSummary{RunID: runID.String(), Written: []MatchupResult{}, Skipped: []string{}}

	for _, rv := range resolved {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		name := rv.Spec.Name
		vlog := log.WithField("variable", name)

		if !uc.cfg.Overwrite && uc.exists(req.Domain, name) {
			vlog.Info("matchup already exists, skipping")
			uc.metrics.RecordSkip(name, "exists")
			summary.Skipped = append(summary.Skipped, name)
			continue
		}

		timer := uc.metrics.NewTimer(name)
		res, err := uc.matchVariable(&req, rv, vlog)
		if err != nil {
			return summary, fmt.Errorf("failed to match up %s: %w", name, err)
		}
		elapsed := timer.ObserveDuration()
		vlog.WithField("elapsed", elapsed.Round(time.Millisecond).String()).Info("matchup written")
		summary.Written = append(summary.Written, *res)
	}
	return summary, nil
}

// exists reports whether a surface matchup was already written.
func (uc *MatchupUseCase) exists(d domain.Domain, variable string) bool {
	pattern := filepath.Join(uc.cfg.OutDir, "gridded", string(d), variable, "*_"+variable+"_surface.nc")
	matches, err := filepath.Glob(pattern)
	return err == nil && len(matches) > 0
}

func (uc *MatchupUseCase) matchVariable(req *MatchupRequest, rv domain.ResolvedVariable, log logrus.FieldLogger) (*MatchupResult, error) {
	src, err := resolveSource(uc.cfg.DataDir, req.Domain, rv.Spec.Name)
	if err != nil {
		return nil, err
	}
	m := &matchup{
		req:    req,
		spec:   rv.Spec,
		entry:  rv.Entry,
		source: src,
		policy: domain.PolicyForSource(src.Name),
		log:    log.WithField("source", src.Name),
	}
	m.log.Infof("Matching up %s %s with %s gridded data", req.Surface, rv.Spec.Title(), strings.ToUpper(src.Name))

	// Find the model files.
	found, err := discovery.Discover(discovery.Request{
		Root:       req.ModelRoot,
		Levels:     uc.cfg.Levels,
		Pattern:    rv.Entry.Pattern,
		Exclude:    req.Exclude,
		YearWindow: req.YearWindow,
		SimStart:   req.SimStart,
		SimEnd:     req.SimEnd,
	}, req.TimeIndex)
	if err != nil {
		return nil, err
	}
	minYear, hasYears := found.MinYear()
	maxYear, _ := found.MaxYear()
	uc.report.Matchup(rv.Spec.Name, found.Paths, minYear, maxYear, hasYears)
	uc.metrics.RecordDiscovery(rv.Spec.Name, len(found.Paths))
	if len(found.Paths) == 0 {
		return nil, fmt.Errorf("no model files match %s: %w", rv.Entry.Pattern, grid.ErrEmptyExtent)
	}
	m.years = found.Years

	if err := uc.ensureGridCache(found.Paths[0], req.Surface); err != nil {
		return nil, err
	}

	paths := found.Paths
	if m.policy.HasYearWindow() {
		kept := paths[:0:0]
		for _, p := range paths {
			if req.TimeIndex.HasYearIn(p, m.policy.FirstYear, m.policy.LastYear) {
				kept = append(kept, p)
			}
		}
		paths = kept
		if len(paths) == 0 {
			return nil, fmt.Errorf("no model files within %d-%d: %w", m.policy.FirstYear, m.policy.LastYear, grid.ErrEmptyExtent)
		}
	}

	// Temporal reconciliation.
	if err := uc.loadModel(m, paths); err != nil {
		return nil, err
	}
	if err := uc.loadObservations(m); err != nil {
		return nil, err
	}
	collapseModel(m)
	if err := uc.repairGrid(m); err != nil {
		return nil, err
	}
	applyTemporalRules(m)

	// Spatial and vertical reconciliation.
	if err := reconcileSpace(m); err != nil {
		return nil, err
	}
	restrictToOverlap(m)
	vertical, err := reconcileVertical(m)
	if err != nil {
		return nil, err
	}
	restrictToCommonYears(m)

	surface, err := mergeChannels(m)
	if err != nil {
		return nil, err
	}
	if err := normalizeUnits(surface, m.spec); err != nil {
		return nil, err
	}
	surface.MaskCommon()
	if m.spec.Name == "salinity" && m.req.Domain != domain.DomainNWS {
		surface = surface.MonthlyClimatology(m.startYear)
	}

	return uc.writeMatchup(m, surface, vertical)
}

// surfaceOf extracts the level representing the surface field.
func surfaceOf(ds *grid.Dataset, s domain.Surface) *grid.Dataset {
	if s == domain.SurfaceBottom {
		return ds.Bottom()
	}
	return ds.Top()
}

// fileExists reports whether path exists.
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
