package usecase

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"go.ngs.io/ocean-matchup/internal/domain"
	"go.ngs.io/ocean-matchup/internal/grid"
)

// loadModel builds the model series from the selected files.
func (uc *MatchupUseCase) loadModel(m *matchup, paths []string) error {
	if m.policy.AnnualVertical {
		return uc.loadModelClimatology(m, paths)
	}

	vars := m.entry.Constituents()
	steps := make([]*grid.Dataset, 0, len(paths))
	for _, p := range paths {
		ds, err := uc.store.Open(p, vars...)
		if err != nil {
			return err
		}
		ds = ds.SubsetYears(m.years)
		if ds.NT() == 0 {
			continue
		}
		ds.AsMissing(0)
		steps = append(steps, surfaceOf(ds, m.req.Surface).YearMonthMean())
	}
	if len(steps) == 0 {
		return fmt.Errorf("no model time steps in years %v: %w", m.years, grid.ErrNoTimeSteps)
	}

	series, err := grid.MergeTime(steps...)
	if err != nil {
		return fmt.Errorf("failed to merge model files: %w", err)
	}
	series = series.YearMonthMean()
	years := series.Years()
	m.startYear, m.endYear = years[0], years[len(years)-1]
	if m.policy.TimeMean {
		series = series.TimeMean()
	}
	if err := applyComposite(series, m.spec, m.entry); err != nil {
		return err
	}
	m.model = series

	m.log.WithFields(logrus.Fields{
		"files": len(paths),
		"steps": series.NT(),
	}).Debug("model series loaded")
	return nil
}

// loadModelClimatology builds a 12-month 3-D climatology: for each month,
// the first step of that month in every file containing it, averaged
// across files.
func (uc *MatchupUseCase) loadModelClimatology(m *matchup, paths []string) error {
	vars := m.entry.Constituents()
	months := make([]*grid.Dataset, 0, 12)
	for month := 1; month <= 12; month++ {
		var members []*grid.Dataset
		for _, p := range paths {
			if !m.req.TimeIndex.HasMonth(p, month) {
				continue
			}
			ds, err := uc.store.Open(p, vars...)
			if err != nil {
				return err
			}
			first, err := ds.SubsetMonth(month).First()
			if err != nil {
				continue
			}
			members = append(members, first)
		}
		if len(members) == 0 {
			continue
		}
		mean, err := grid.EnsembleMean(members...)
		if err != nil {
			return fmt.Errorf("failed to average month %d: %w", month, err)
		}
		mean.AsMissing(0)
		// Months are stamped in a single year so they stay in month order.
		t := mean.Times[0]
		mean.Times[0] = time.Date(m.years[0], time.Month(month), t.Day(), 0, 0, 0, 0, time.UTC)
		months = append(months, mean)
	}
	if len(months) == 0 {
		return fmt.Errorf("no monthly model data: %w", grid.ErrNoTimeSteps)
	}

	series, err := grid.MergeTime(months...)
	if err != nil {
		return fmt.Errorf("failed to merge monthly climatology: %w", err)
	}
	if err := applyComposite(series, m.spec, m.entry); err != nil {
		return err
	}
	m.modelVertical = series
	m.model = surfaceOf(series, m.req.Surface)
	m.startYear, m.endYear = m.years[0], m.years[len(m.years)-1]
	return nil
}

// applyComposite replaces the constituents of a summed model expression
// with one variable named after the catalogue entry. The units of the
// first constituent are kept.
func applyComposite(ds *grid.Dataset, spec domain.VariableSpec, entry domain.MappingEntry) error {
	if !entry.IsComposite() {
		return nil
	}
	parts := entry.Constituents()
	first, err := ds.Var(parts[0])
	if err != nil {
		return fmt.Errorf("failed to build %s: %w", spec.Name, err)
	}
	units := first.Units

	terms := make([]string, len(parts))
	for i, p := range parts {
		terms[i] = "[" + p + "]"
	}
	if err := ds.Assign(spec.Name, strings.Join(terms, " + ")); err != nil {
		return fmt.Errorf("failed to build %s: %w", spec.Name, err)
	}

	drop := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != spec.Name {
			drop = append(drop, p)
		}
	}
	ds.Drop(drop...)
	if err := ds.SetUnits(spec.Name, units); err != nil {
		return err
	}
	if spec.LongName != "" {
		return ds.SetLongName(spec.Name, spec.LongName)
	}
	return nil
}

// loadObservations reads the monthly observation files of the source and,
// for annual 3-D sources, the annual climatology.
func (uc *MatchupUseCase) loadObservations(m *matchup) error {
	monthly, annual, err := observationFiles(m.source.Dir)
	if err != nil {
		return err
	}
	if len(monthly) == 0 {
		return domain.NewConfigError(m.spec.Name, "no observation files in %s", m.source.Dir)
	}

	parts := make([]*grid.Dataset, 0, len(monthly))
	for _, p := range monthly {
		var ds *grid.Dataset
		if m.policy.Channel != "" {
			ds, err = uc.store.Open(p, m.policy.Channel)
		} else {
			ds, err = uc.store.Open(p)
		}
		if err != nil {
			return err
		}
		// The first variable is the observation.
		if ds, err = ds.Select(ds.Vars[0].Name); err != nil {
			return err
		}
		parts = append(parts, ds.Top())
	}
	obs := parts[0]
	if len(parts) > 1 {
		if obs, err = grid.MergeTime(parts...); err != nil {
			return fmt.Errorf("failed to merge observation files: %w", err)
		}
	}
	if m.policy.CommonYears {
		obs = obs.SubsetYears(yearRange(m.startYear, m.endYear))
	}
	m.obs = obs

	if !m.policy.AnnualVertical {
		return nil
	}
	if len(annual) == 0 {
		return domain.NewConfigError(m.spec.Name, "no annual climatology in %s", m.source.Dir)
	}
	annuals := make([]*grid.Dataset, 0, len(annual))
	for _, p := range annual {
		ds, err := uc.store.Open(p)
		if err != nil {
			return err
		}
		if len(ds.Vars) != 1 {
			return domain.NewConfigError(m.spec.Name, "annual file %s must contain exactly one variable, found %d", p, len(ds.Vars))
		}
		if err := ds.Rename(ds.Vars[0].Name, "observation"); err != nil {
			return err
		}
		annuals = append(annuals, ds)
	}
	merged := annuals[0]
	if len(annuals) > 1 {
		if merged, err = grid.MergeTime(annuals...); err != nil {
			return fmt.Errorf("failed to merge annual files: %w", err)
		}
	}
	m.obsAnnual = merged.TimeMean()
	return nil
}

// collapseModel matches the model series to a single-year observation
// product by taking a monthly climatology.
func collapseModel(m *matchup) {
	if m.policy.AnnualVertical {
		return
	}
	if len(m.obs.Years()) == 1 {
		m.model = m.model.MonthlyClimatology(m.startYear)
	}
}

// applyTemporalRules applies the variable-specific temporal handling.
// Climatologies are stamped in the first model year.
func applyTemporalRules(m *matchup) {
	switch m.spec.Temporal {
	case domain.TemporalMonthlyClimatology:
		if m.req.Strict {
			m.obs = m.obs.SubsetYears(m.years)
		}
		m.obs = m.obs.MonthlyClimatology(m.startYear)
		m.model = m.model.MonthlyClimatology(m.startYear)
	case domain.TemporalYearMonth:
		m.obs = m.obs.SubsetYears(m.years).YearMonthMean()
	case domain.TemporalCommonYears:
		if m.req.Domain == domain.DomainNWS {
			break
		}
		if common := intersectYears(m.model.Years(), m.obs.Years()); len(common) > 0 {
			m.obs = m.obs.SubsetYears(common)
			m.model = m.model.SubsetYears(common)
		}
		m.obs = m.obs.MonthlyClimatology(m.startYear)
		m.model = m.model.MonthlyClimatology(m.startYear)
	}

	if !m.spec.KeepObservationYears && m.obs.NT() > 12 {
		m.obs = m.obs.SubsetYears(m.years)
	}
}

// restrictToOverlap keeps only the common years of long series whose year
// sets differ on both sides.
func restrictToOverlap(m *matchup) {
	if m.model.NT() <= 12 {
		return
	}
	modelYears, obsYears := m.model.Years(), m.obs.Years()
	common := intersectYears(modelYears, obsYears)
	if len(common) != len(modelYears) && len(common) != len(obsYears) {
		m.obs = m.obs.SubsetYears(common)
		m.model = m.model.SubsetYears(common)
	}
}

// restrictToCommonYears restricts sources flagged for it to the years both
// series share.
func restrictToCommonYears(m *matchup) {
	if !m.policy.CommonYears {
		return
	}
	common := intersectYears(m.obs.Years(), m.model.Years())
	m.obs = m.obs.SubsetYears(common).YearMonthMean()
	m.model = m.model.SubsetYears(common).YearMonthMean()
}

// intersectYears returns the years of a that are also in b, in a's order.
func intersectYears(a, b []int) []int {
	in := make(map[int]bool, len(b))
	for _, y := range b {
		in[y] = true
	}
	var out []int
	for _, y := range a {
		if in[y] {
			out = append(out, y)
		}
	}
	return out
}

func yearRange(first, last int) []int {
	if last < first {
		return nil
	}
	years := make([]int, 0, last-first+1)
	for y := first; y <= last; y++ {
		years = append(years, y)
	}
	return years
}
