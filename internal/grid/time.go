package grid

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Years returns the sorted distinct calendar years of the time axis.
func (d *Dataset) Years() []int {
	seen := map[int]bool{}
	var years []int
	for _, t := range d.Times {
		if !seen[t.Year()] {
			seen[t.Year()] = true
			years = append(years, t.Year())
		}
	}
	sort.Ints(years)
	return years
}

// Months returns the sorted distinct months of the time axis.
func (d *Dataset) Months() []int {
	seen := map[int]bool{}
	var months []int
	for _, t := range d.Times {
		m := int(t.Month())
		if !seen[m] {
			seen[m] = true
			months = append(months, m)
		}
	}
	sort.Ints(months)
	return months
}

// SubsetTimes returns the dataset restricted to the given step indices.
func (d *Dataset) SubsetTimes(steps []int) *Dataset {
	times := make([]time.Time, len(steps))
	for i, s := range steps {
		times[i] = d.Times[s]
	}
	out := d.shell(times, d.Depths)
	size := d.stepSize()
	for _, v := range d.Vars {
		vals := make([]float64, 0, len(steps)*size)
		for _, s := range steps {
			vals = append(vals, v.Values[s*size:(s+1)*size]...)
		}
		nv := *v
		nv.Values = vals
		out.Vars = append(out.Vars, &nv)
	}
	return out
}

func (d *Dataset) subsetWhere(keep func(time.Time) bool) *Dataset {
	var steps []int
	for i, t := range d.Times {
		if keep(t) {
			steps = append(steps, i)
		}
	}
	return d.SubsetTimes(steps)
}

// SubsetYears keeps the time steps whose year is listed.
func (d *Dataset) SubsetYears(years []int) *Dataset {
	set := make(map[int]bool, len(years))
	for _, y := range years {
		set[y] = true
	}
	return d.subsetWhere(func(t time.Time) bool { return set[t.Year()] })
}

// SubsetMonth keeps the time steps in the given month.
func (d *Dataset) SubsetMonth(month int) *Dataset {
	return d.subsetWhere(func(t time.Time) bool { return int(t.Month()) == month })
}

// First keeps only the first time step.
func (d *Dataset) First() (*Dataset, error) {
	if d.NT() == 0 {
		return nil, ErrNoTimeSteps
	}
	return d.SubsetTimes([]int{0}), nil
}

func yearMonthKey(t time.Time) int { return t.Year()*100 + int(t.Month()) }
func monthKey(t time.Time) int     { return int(t.Month()) }
func allKey(time.Time) int         { return 0 }

// YearMonthMean averages the steps of each year and month.
func (d *Dataset) YearMonthMean() *Dataset { return d.groupMean(yearMonthKey) }

// MonthlyMean averages each calendar month across years, giving a monthly
// climatology.
func (d *Dataset) MonthlyMean() *Dataset { return d.groupMean(monthKey) }

// MonthlyClimatology is MonthlyMean with every step moved into year, so a
// climatology built from other years stays inside the reported range.
func (d *Dataset) MonthlyClimatology(year int) *Dataset {
	out := d.MonthlyMean()
	for i, t := range out.Times {
		day := t.Day()
		// Day 0 of the next month is the last day of this one.
		if last := time.Date(year, t.Month()+1, 0, 0, 0, 0, 0, t.Location()).Day(); day > last {
			day = last
		}
		out.Times[i] = time.Date(year, t.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	}
	return out
}

// TimeMean collapses the time axis to a single mean.
func (d *Dataset) TimeMean() *Dataset { return d.groupMean(allKey) }

// groupMean averages time steps sharing a key, ignoring missing values. The
// groups are ordered by key and stamped with their earliest time.
func (d *Dataset) groupMean(key func(time.Time) int) *Dataset {
	groups := map[int][]int{}
	var keys []int
	for i, t := range d.Times {
		k := key(t)
		if _, ok := groups[k]; !ok {
			keys = append(keys, k)
		}
		groups[k] = append(groups[k], i)
	}
	sort.Ints(keys)

	times := make([]time.Time, len(keys))
	for i, k := range keys {
		first := d.Times[groups[k][0]]
		for _, s := range groups[k][1:] {
			if d.Times[s].Before(first) {
				first = d.Times[s]
			}
		}
		times[i] = first
	}

	out := d.shell(times, d.Depths)
	size := d.stepSize()
	for _, v := range d.Vars {
		vals := make([]float64, len(keys)*size)
		for g, k := range keys {
			meanSteps(vals[g*size:(g+1)*size], v.Values, groups[k], size)
		}
		nv := *v
		nv.Values = vals
		out.Vars = append(out.Vars, &nv)
	}
	return out
}

// meanSteps writes the missing-aware mean of the listed steps into dst.
func meanSteps(dst, src []float64, steps []int, size int) {
	for i := range dst {
		var sum float64
		var n int
		for _, s := range steps {
			if v := src[s*size+i]; !math.IsNaN(v) {
				sum += v
				n++
			}
		}
		if n == 0 {
			dst[i] = math.NaN()
		} else {
			dst[i] = sum / float64(n)
		}
	}
}

// MergeTime concatenates datasets along time and sorts the result by time.
// All datasets must share the grid, the vertical axis and the variables of
// the first.
func MergeTime(datasets ...*Dataset) (*Dataset, error) {
	if len(datasets) == 0 {
		return nil, ErrNoTimeSteps
	}
	base := datasets[0]
	var times []time.Time
	for _, ds := range datasets {
		if ds.NP() != base.NP() || ds.NZ() != base.NZ() {
			return nil, fmt.Errorf("%w: cannot merge %dx%dx%d with %dx%dx%d along time",
				ErrShapeMismatch, ds.NX, ds.NY, ds.NZ(), base.NX, base.NY, base.NZ())
		}
		times = append(times, ds.Times...)
	}

	order := make([]int, len(times))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return times[order[a]].Before(times[order[b]]) })

	sorted := make([]time.Time, len(times))
	for i, o := range order {
		sorted[i] = times[o]
	}
	out := base.shell(sorted, base.Depths)
	out.Sources = nil
	for _, ds := range datasets {
		out.Sources = append(out.Sources, ds.Sources...)
	}

	size := base.stepSize()
	for _, bv := range base.Vars {
		concat := make([]float64, 0, len(times)*size)
		for _, ds := range datasets {
			v, err := ds.Var(bv.Name)
			if err != nil {
				return nil, fmt.Errorf("failed to merge along time: %w", err)
			}
			concat = append(concat, v.Values...)
		}
		vals := make([]float64, len(times)*size)
		for i, o := range order {
			copy(vals[i*size:(i+1)*size], concat[o*size:(o+1)*size])
		}
		nv := *bv
		nv.Values = vals
		out.Vars = append(out.Vars, &nv)
	}
	return out, nil
}

// EnsembleMean averages datasets of identical shape member by member,
// ignoring missing values. The time axis of the first member is kept.
func EnsembleMean(members ...*Dataset) (*Dataset, error) {
	if len(members) == 0 {
		return nil, ErrNoTimeSteps
	}
	base := members[0]
	for _, m := range members[1:] {
		if m.NP() != base.NP() || m.NZ() != base.NZ() || m.NT() != base.NT() {
			return nil, fmt.Errorf("%w: ensemble members differ in shape", ErrShapeMismatch)
		}
	}

	out := base.shell(base.Times, base.Depths)
	out.Sources = nil
	for _, m := range members {
		out.Sources = append(out.Sources, m.Sources...)
	}
	for _, bv := range base.Vars {
		srcs := make([][]float64, len(members))
		for i, m := range members {
			v, err := m.Var(bv.Name)
			if err != nil {
				return nil, fmt.Errorf("failed to average ensemble: %w", err)
			}
			srcs[i] = v.Values
		}
		vals := make([]float64, len(bv.Values))
		for i := range vals {
			var sum float64
			var n int
			for _, s := range srcs {
				if v := s[i]; !math.IsNaN(v) {
					sum += v
					n++
				}
			}
			if n == 0 {
				vals[i] = math.NaN()
			} else {
				vals[i] = sum / float64(n)
			}
		}
		nv := *bv
		nv.Values = vals
		out.Vars = append(out.Vars, &nv)
	}
	return out, nil
}
