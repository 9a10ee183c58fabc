package domain

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"
)

// YearMonth is one timestamp of a model file at monthly resolution.
type YearMonth struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

// TimeIndex maps a model file path to its timestamps.
type TimeIndex map[string][]YearMonth

// Add records the timestamps of a file.
func (ti TimeIndex) Add(path string, times []time.Time) {
	stamps := make([]YearMonth, 0, len(times))
	for _, t := range times {
		stamps = append(stamps, YearMonth{Year: t.Year(), Month: int(t.Month())})
	}
	ti[path] = stamps
}

// Years returns the sorted distinct years of a file.
func (ti TimeIndex) Years(path string) []int {
	seen := make(map[int]struct{})
	for _, ym := range ti[path] {
		seen[ym.Year] = struct{}{}
	}
	years := make([]int, 0, len(seen))
	for y := range seen {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}

// HasYear reports whether any timestamp of the file falls in one of years.
func (ti TimeIndex) HasYear(path string, years map[int]bool) bool {
	for _, ym := range ti[path] {
		if years[ym.Year] {
			return true
		}
	}
	return false
}

// HasMonth reports whether the file has a timestamp in the month.
func (ti TimeIndex) HasMonth(path string, month int) bool {
	for _, ym := range ti[path] {
		if ym.Month == month {
			return true
		}
	}
	return false
}

// HasYearIn reports whether the file has a timestamp within [first, last].
func (ti TimeIndex) HasYearIn(path string, first, last int) bool {
	for _, ym := range ti[path] {
		if ym.Year >= first && ym.Year <= last {
			return true
		}
	}
	return false
}

// ReadTimeIndex decodes a JSON time index.
func ReadTimeIndex(r io.Reader) (TimeIndex, error) {
	ti := TimeIndex{}
	if err := json.NewDecoder(r).Decode(&ti); err != nil {
		return nil, fmt.Errorf("failed to decode time index: %w", err)
	}
	return ti, nil
}

// Write encodes the index as indented JSON.
func (ti TimeIndex) Write(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(ti); err != nil {
		return fmt.Errorf("failed to encode time index: %w", err)
	}
	return nil
}
