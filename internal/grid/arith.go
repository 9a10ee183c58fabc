package grid

import (
	"fmt"
	"math"
	"time"

	"github.com/Knetic/govaluate"
	"gonum.org/v1/gonum/floats"
)

// AsMissing marks every value equal to v as missing in all variables.
func (d *Dataset) AsMissing(v float64) {
	for _, variable := range d.Vars {
		for i, x := range variable.Values {
			if x == v {
				variable.Values[i] = math.NaN()
			}
		}
	}
}

// AsMissingRange marks every value within [lo, hi] as missing.
func (d *Dataset) AsMissingRange(lo, hi float64) {
	for _, variable := range d.Vars {
		for i, x := range variable.Values {
			if x >= lo && x <= hi {
				variable.Values[i] = math.NaN()
			}
		}
	}
}

// Scale multiplies a variable by f.
func (d *Dataset) Scale(name string, f float64) error {
	v, err := d.Var(name)
	if err != nil {
		return err
	}
	floats.Scale(f, v.Values)
	return nil
}

// AddConst adds c to a variable.
func (d *Dataset) AddConst(name string, c float64) error {
	v, err := d.Var(name)
	if err != nil {
		return err
	}
	floats.AddConst(c, v.Values)
	return nil
}

// Max returns the largest non-missing value of a variable, or NaN when the
// variable holds no data.
func (d *Dataset) Max(name string) (float64, error) {
	v, err := d.Var(name)
	if err != nil {
		return 0, err
	}
	present := make([]float64, 0, len(v.Values))
	for _, x := range v.Values {
		if !math.IsNaN(x) {
			present = append(present, x)
		}
	}
	if len(present) == 0 {
		return math.NaN(), nil
	}
	return floats.Max(present), nil
}

// ValidCount returns the number of non-missing values of a variable.
func (d *Dataset) ValidCount(name string) (int, error) {
	v, err := d.Var(name)
	if err != nil {
		return 0, err
	}
	return floats.Count(func(x float64) bool { return !math.IsNaN(x) }, v.Values), nil
}

// Assign evaluates an arithmetic expression over existing variables element
// by element and stores it as a new variable. Variable names that are not
// plain identifiers must be written in brackets, e.g. "[chl-a] + [chl-b]".
// A missing operand makes the result missing.
func (d *Dataset) Assign(name, expr string) error {
	ev, err := govaluate.NewEvaluableExpression(expr)
	if err != nil {
		return fmt.Errorf("failed to parse expression %q: %w", expr, err)
	}
	names := ev.Vars()
	if len(names) == 0 {
		return fmt.Errorf("expression %q references no variables", expr)
	}
	operands := make([][]float64, len(names))
	for i, n := range names {
		v, err := d.Var(n)
		if err != nil {
			return fmt.Errorf("failed to evaluate %q: %w", expr, err)
		}
		operands[i] = v.Values
	}

	out := make([]float64, d.NT()*d.stepSize())
	params := make(map[string]interface{}, len(names))
	for i := range out {
		missing := false
		for j, n := range names {
			x := operands[j][i]
			if math.IsNaN(x) {
				missing = true
				break
			}
			params[n] = x
		}
		if missing {
			out[i] = math.NaN()
			continue
		}
		r, err := ev.Evaluate(params)
		if err != nil {
			return fmt.Errorf("failed to evaluate %q: %w", expr, err)
		}
		f, ok := r.(float64)
		if !ok {
			return fmt.Errorf("expression %q produced %T, want a number", expr, r)
		}
		out[i] = f
	}

	if existing, err := d.Var(name); err == nil {
		existing.Values = out
		return nil
	}
	_, err = d.AddVariable(name, "", out)
	return err
}

// MaskCommon marks a value missing in every variable wherever any variable
// is missing, so all variables share one missing footprint.
func (d *Dataset) MaskCommon() {
	if len(d.Vars) == 0 {
		return
	}
	n := len(d.Vars[0].Values)
	for i := 0; i < n; i++ {
		gap := false
		for _, v := range d.Vars {
			if math.IsNaN(v.Values[i]) {
				gap = true
				break
			}
		}
		if gap {
			for _, v := range d.Vars {
				v.Values[i] = math.NaN()
			}
		}
	}
}

// MatchKey selects how time steps are paired when merging variables.
type MatchKey int

const (
	// MatchIndex pairs steps by position.
	MatchIndex MatchKey = iota
	// MatchMonth pairs steps by calendar month.
	MatchMonth
	// MatchYearMonth pairs steps by year and month.
	MatchYearMonth
)

// MergeVariables combines the variables of datasets on the same grid and
// vertical axis into one dataset. Time steps are paired by key and only
// keys present in every dataset are kept, in the order of the first.
// Single-step datasets are always paired by position.
func MergeVariables(key MatchKey, datasets ...*Dataset) (*Dataset, error) {
	if len(datasets) == 0 {
		return nil, ErrNoTimeSteps
	}
	base := datasets[0]
	single := true
	for _, ds := range datasets {
		if ds.NX != base.NX || ds.NY != base.NY || ds.NZ() != base.NZ() {
			return nil, fmt.Errorf("%w: cannot merge variables of %dx%dx%d and %dx%dx%d",
				ErrShapeMismatch, ds.NX, ds.NY, ds.NZ(), base.NX, base.NY, base.NZ())
		}
		if ds.NT() != 1 {
			single = false
		}
	}
	if single {
		key = MatchIndex
	}

	keyOf := func(i int, t time.Time) int {
		switch key {
		case MatchMonth:
			return monthKey(t)
		case MatchYearMonth:
			return yearMonthKey(t)
		}
		return i
	}

	// Step index of each key per dataset; the first occurrence wins.
	lookups := make([]map[int]int, len(datasets))
	for i, ds := range datasets {
		lookups[i] = map[int]int{}
		for s, t := range ds.Times {
			k := keyOf(s, t)
			if _, ok := lookups[i][k]; !ok {
				lookups[i][k] = s
			}
		}
	}

	var baseSteps []int
	var times []time.Time
	for s, t := range base.Times {
		k := keyOf(s, t)
		if lookups[0][k] != s {
			continue
		}
		inAll := true
		for _, l := range lookups[1:] {
			if _, ok := l[k]; !ok {
				inAll = false
				break
			}
		}
		if inAll {
			baseSteps = append(baseSteps, s)
			times = append(times, t)
		}
	}

	out := base.shell(times, base.Depths)
	out.Sources = nil
	for i, ds := range datasets {
		steps := make([]int, len(baseSteps))
		for j, s := range baseSteps {
			steps[j] = lookups[i][keyOf(s, base.Times[s])]
		}
		sub := ds.SubsetTimes(steps)
		for _, v := range sub.Vars {
			if _, err := out.Var(v.Name); err == nil {
				return nil, fmt.Errorf("cannot merge variables: %s appears twice", v.Name)
			}
			out.Vars = append(out.Vars, v)
		}
		out.Sources = append(out.Sources, ds.Sources...)
		for k, v := range ds.Attrs {
			if _, ok := out.Attrs[k]; !ok {
				out.Attrs[k] = v
			}
		}
	}
	return out, nil
}
