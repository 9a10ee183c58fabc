// Package discovery finds the model output files that feed a matchup.
package discovery

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"go.ngs.io/ocean-matchup/internal/domain"
)

// Request describes where to look for model files.
type Request struct {
	// Root is the model output directory.
	Root string
	// Levels is the number of directory levels between Root and the files.
	Levels int
	// Pattern is the glob matched against file names.
	Pattern string
	// Exclude drops files whose base name contains any of these substrings.
	Exclude []string
	// YearWindow enables filtering to [SimStart, SimEnd].
	YearWindow       bool
	SimStart, SimEnd int
}

// Result is the outcome of a discovery.
type Result struct {
	// Paths are sorted and distinct.
	Paths []string
	// Years are the sorted years the paths were selected for.
	Years []int
}

// MinYear returns the earliest selected year and false if there is none.
func (r Result) MinYear() (int, bool) {
	if len(r.Years) == 0 {
		return 0, false
	}
	return r.Years[0], true
}

// MaxYear returns the latest selected year and false if there is none.
func (r Result) MaxYear() (int, bool) {
	if len(r.Years) == 0 {
		return 0, false
	}
	return r.Years[len(r.Years)-1], true
}

// SearchPattern builds the glob for root, nesting depth and file pattern.
// Each level matches exactly one directory.
func SearchPattern(root string, levels int, pattern string) string {
	var b strings.Builder
	b.WriteString(strings.TrimRight(root, "/"))
	for i := 0; i < levels; i++ {
		b.WriteString("/*")
	}
	b.WriteString("/")
	b.WriteString(pattern)
	return b.String()
}

// Discover globs the model files for req and keeps those with a timestamp
// in the selected years.
func Discover(req Request, index domain.TimeIndex) (Result, error) {
	if req.Pattern == "" {
		return Result{}, fmt.Errorf("empty file pattern")
	}
	if req.Levels < 0 {
		return Result{}, fmt.Errorf("invalid directory depth %d", req.Levels)
	}

	matches, err := filepath.Glob(SearchPattern(req.Root, req.Levels, req.Pattern))
	if err != nil {
		return Result{}, fmt.Errorf("failed to glob %s: %w", req.Pattern, err)
	}

	paths := matches[:0]
	for _, p := range matches {
		if !excluded(filepath.Base(p), req.Exclude) {
			paths = append(paths, p)
		}
	}

	// Union of the years of every candidate file.
	all := make(map[int]bool)
	for _, p := range paths {
		for _, y := range index.Years(p) {
			all[y] = true
		}
	}
	keep := make(map[int]bool, len(all))
	for y := range all {
		if !req.YearWindow || (y >= req.SimStart && y <= req.SimEnd) {
			keep[y] = true
		}
	}

	seen := make(map[string]bool, len(paths))
	var res Result
	for _, p := range paths {
		if seen[p] || !index.HasYear(p, keep) {
			continue
		}
		seen[p] = true
		res.Paths = append(res.Paths, p)
	}
	sort.Strings(res.Paths)

	for y := range keep {
		res.Years = append(res.Years, y)
	}
	sort.Ints(res.Years)
	return res, nil
}

func excluded(base string, exclude []string) bool {
	for _, exc := range exclude {
		if exc != "" && strings.Contains(base, exc) {
			return true
		}
	}
	return false
}
