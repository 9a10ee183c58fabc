package netcdf

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Time encoding used for every file this package writes.
const (
	writeTimeUnits    = "days since 1900-01-01 00:00:00"
	writeTimeCalendar = "standard"
)

var writeEpoch = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)

// timeAxis decodes CF "<unit> since <reference>" offsets.
type timeAxis struct {
	step     float64 // Seconds per unit.
	months   bool    // Offsets count calendar months.
	ref      civil
	calendar string
}

// civil is a calendar date and time of day independent of time.Time, so
// that non-standard calendars can be stepped.
type civil struct {
	year, month, day int
	seconds          float64 // Seconds since midnight.
}

func parseTimeAxis(units, calendar string) (*timeAxis, error) {
	parts := strings.SplitN(strings.TrimSpace(units), " since ", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("unsupported time units %q", units)
	}

	var step float64
	months := false
	switch strings.ToLower(strings.TrimSpace(parts[0])) {
	case "seconds", "second", "secs", "sec", "s":
		step = 1
	case "minutes", "minute", "mins", "min":
		step = 60
	case "hours", "hour", "hrs", "hr", "h":
		step = 3600
	case "days", "day", "d":
		step = 86400
	case "months", "month":
		months = true
	default:
		return nil, fmt.Errorf("unsupported time unit %q", parts[0])
	}

	ref, err := parseCivil(parts[1])
	if err != nil {
		return nil, fmt.Errorf("failed to parse reference time %q: %w", parts[1], err)
	}

	cal := strings.ToLower(strings.TrimSpace(calendar))
	switch cal {
	case "", "standard", "gregorian", "proleptic_gregorian", "julian":
		cal = "standard"
	case "noleap", "365_day":
		cal = "noleap"
	case "all_leap", "366_day":
		cal = "all_leap"
	case "360_day":
	default:
		return nil, fmt.Errorf("unsupported calendar %q", calendar)
	}

	return &timeAxis{step: step, months: months, ref: ref, calendar: cal}, nil
}

// parseCivil parses "Y-M-D[ T]h:m:s[Z| UTC]" with optional zero padding.
func parseCivil(s string) (civil, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "UTC")
	s = strings.TrimSuffix(strings.TrimSpace(s), "Z")
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ' ' || r == 'T' })
	if len(fields) == 0 {
		return civil{}, fmt.Errorf("empty date")
	}

	date := strings.Split(fields[0], "-")
	if len(date) != 3 {
		return civil{}, fmt.Errorf("invalid date %q", fields[0])
	}
	var c civil
	var err error
	if c.year, err = strconv.Atoi(date[0]); err != nil {
		return civil{}, fmt.Errorf("invalid year: %w", err)
	}
	if c.month, err = strconv.Atoi(date[1]); err != nil {
		return civil{}, fmt.Errorf("invalid month: %w", err)
	}
	if c.day, err = strconv.Atoi(date[2]); err != nil {
		return civil{}, fmt.Errorf("invalid day: %w", err)
	}

	if len(fields) > 1 {
		clock := strings.Split(fields[1], ":")
		scale := 3600.0
		for _, part := range clock {
			v, err := strconv.ParseFloat(part, 64)
			if err != nil {
				return civil{}, fmt.Errorf("invalid time of day %q: %w", fields[1], err)
			}
			c.seconds += v * scale
			scale /= 60
		}
	}
	return c, nil
}

var (
	noleapMonths  = [12]int{31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}
	allLeapMonths = [12]int{31, 29, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}
)

// decode converts an offset into a UTC time. Dates of non-standard
// calendars are mapped onto the same year, month and day.
func (a *timeAxis) decode(offset float64) (time.Time, error) {
	if math.IsNaN(offset) || math.IsInf(offset, 0) {
		return time.Time{}, fmt.Errorf("invalid time offset %v", offset)
	}
	if a.months {
		// Month offsets are stepped on the calendar; fractions are 30-day months.
		whole := math.Floor(offset)
		t := time.Date(a.ref.year, time.Month(a.ref.month)+time.Month(whole), a.ref.day, 0, 0, 0, 0, time.UTC)
		return t.Add(time.Duration((a.ref.seconds + (offset-whole)*30*86400) * float64(time.Second))), nil
	}
	secs := offset * a.step

	if a.calendar == "standard" {
		total := (a.ref.seconds + secs) / 86400
		wholeDays := math.Floor(total)
		t := time.Date(a.ref.year, time.Month(a.ref.month), a.ref.day+int(wholeDays), 0, 0, 0, 0, time.UTC)
		return t.Add(time.Duration((total - wholeDays) * 86400 * float64(time.Second))).Round(time.Millisecond), nil
	}

	var months [12]int
	switch a.calendar {
	case "noleap":
		months = noleapMonths
	case "all_leap":
		months = allLeapMonths
	default:
		months = [12]int{30, 30, 30, 30, 30, 30, 30, 30, 30, 30, 30, 30}
	}
	yearDays := 0
	for _, m := range months {
		yearDays += m
	}

	// Day index of the reference within its year.
	refDay := a.ref.day - 1
	for m := 0; m < a.ref.month-1; m++ {
		refDay += months[m]
	}

	total := (a.ref.seconds + secs) / 86400
	wholeDays := math.Floor(total)
	frac := total - wholeDays
	dayIndex := refDay + int(wholeDays)

	year := a.ref.year + floorDiv(dayIndex, yearDays)
	doy := dayIndex - floorDiv(dayIndex, yearDays)*yearDays
	month := 0
	for doy >= months[month] {
		doy -= months[month]
		month++
	}

	// 360-day dates such as 30 February are clamped to the end of the month.
	day := doy + 1
	if last := time.Date(year, time.Month(month+2), 0, 0, 0, 0, 0, time.UTC).Day(); day > last {
		day = last
	}
	t := time.Date(year, time.Month(month+1), day, 0, 0, 0, 0, time.UTC)
	return t.Add(time.Duration(frac * 86400 * float64(time.Second))).Round(time.Second), nil
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// encodeTime converts a time to days since the write epoch.
func encodeTime(t time.Time) float64 {
	secs := t.Unix() - writeEpoch.Unix()
	return (float64(secs) + float64(t.Nanosecond())/1e9) / 86400
}
