package services

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidSchedule = errors.New("invalid schedule")
	ErrNoOccurrence    = errors.New("schedule has no occurrence")
)

// Searching further than this many days means the expression can never match
// (e.g. "0 0 30 2 *"). Eight years covers Feb 29 across a skipped leap year.
const maxSearchDays = 366 * 8

// Schedule is a parsed 5-field cron expression evaluated in a fixed location.
type Schedule struct {
	minute, hour, dom, month, dow uint64
	// domStar/dowStar record whether the day fields were written starting with '*'.
	// When neither is, a day matches if either field matches.
	domStar, dowStar bool
	loc              *time.Location
}

type fieldSpec struct {
	min, max int
	names    map[string]int
}

var (
	minuteField = fieldSpec{min: 0, max: 59}
	hourField   = fieldSpec{min: 0, max: 23}
	domField    = fieldSpec{min: 1, max: 31}
	monthField  = fieldSpec{min: 1, max: 12, names: map[string]int{
		"jan": 1, "feb": 2, "mar": 3, "apr": 4, "may": 5, "jun": 6,
		"jul": 7, "aug": 8, "sep": 9, "oct": 10, "nov": 11, "dec": 12,
	}}
	// 7 is accepted as Sunday and folded onto 0 after parsing.
	dowField = fieldSpec{min: 0, max: 7, names: map[string]int{
		"sun": 0, "mon": 1, "tue": 2, "wed": 3, "thu": 4, "fri": 5, "sat": 6,
	}}
)

var descriptors = map[string]string{
	"@yearly":   "0 0 1 1 *",
	"@annually": "0 0 1 1 *",
	"@monthly":  "0 0 1 * *",
	"@weekly":   "0 0 * * 0",
	"@daily":    "0 0 * * *",
	"@midnight": "0 0 * * *",
	"@hourly":   "0 * * * *",
}

// ParseSchedule parses a standard 5-field cron expression or descriptor.
// A nil location means UTC.
func ParseSchedule(expr string, loc *time.Location) (*Schedule, error) {
	if loc == nil {
		loc = time.UTC
	}
	expr = strings.TrimSpace(expr)
	if d, ok := descriptors[strings.ToLower(expr)]; ok {
		expr = d
	}

	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, fmt.Errorf("%w: expected 5 fields, got %d in %q", ErrInvalidSchedule, len(fields), expr)
	}

	s := &Schedule{loc: loc}
	var err error
	if s.minute, err = parseField(fields[0], minuteField); err != nil {
		return nil, err
	}
	if s.hour, err = parseField(fields[1], hourField); err != nil {
		return nil, err
	}
	if s.dom, err = parseField(fields[2], domField); err != nil {
		return nil, err
	}
	if s.month, err = parseField(fields[3], monthField); err != nil {
		return nil, err
	}
	if s.dow, err = parseField(fields[4], dowField); err != nil {
		return nil, err
	}
	if s.dow&(1<<7) != 0 {
		s.dow = (s.dow &^ (1 << 7)) | 1
	}
	s.domStar = strings.HasPrefix(fields[2], "*")
	s.dowStar = strings.HasPrefix(fields[4], "*")
	return s, nil
}

// ParseScheduleIn parses expr in the named IANA timezone ("" means UTC).
func ParseScheduleIn(expr, timezone string) (*Schedule, error) {
	loc := time.UTC
	if timezone != "" {
		var err error
		loc, err = time.LoadLocation(timezone)
		if err != nil {
			return nil, fmt.Errorf("%w: unknown timezone %q", ErrInvalidSchedule, timezone)
		}
	}
	return ParseSchedule(expr, loc)
}

func parseField(field string, spec fieldSpec) (uint64, error) {
	var bits uint64
	for _, part := range strings.Split(field, ",") {
		b, err := parseRange(part, spec)
		if err != nil {
			return 0, err
		}
		bits |= b
	}
	return bits, nil
}

func parseRange(part string, spec fieldSpec) (uint64, error) {
	if part == "" {
		return 0, fmt.Errorf("%w: empty field element", ErrInvalidSchedule)
	}

	rangePart, stepPart, hasStep := strings.Cut(part, "/")
	step := 1
	if hasStep {
		n, err := strconv.Atoi(stepPart)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("%w: bad step %q", ErrInvalidSchedule, part)
		}
		step = n
	}

	var lo, hi int
	switch {
	case rangePart == "*":
		lo, hi = spec.min, spec.max
		if spec.max == 7 {
			hi = 6
		}
	case strings.Contains(rangePart, "-"):
		a, b, _ := strings.Cut(rangePart, "-")
		var err error
		if lo, err = parseValue(a, spec); err != nil {
			return 0, err
		}
		if hi, err = parseValue(b, spec); err != nil {
			return 0, err
		}
		if lo > hi {
			return 0, fmt.Errorf("%w: range %q is backwards", ErrInvalidSchedule, part)
		}
	default:
		v, err := parseValue(rangePart, spec)
		if err != nil {
			return 0, err
		}
		lo, hi = v, v
		// "a/n" means every n starting at a.
		if hasStep {
			hi = spec.max
			if spec.max == 7 {
				hi = 6
			}
		}
	}

	var bits uint64
	for v := lo; v <= hi; v += step {
		bits |= 1 << uint(v)
	}
	if bits == 0 {
		return 0, fmt.Errorf("%w: %q matches nothing", ErrInvalidSchedule, part)
	}
	return bits, nil
}

func parseValue(s string, spec fieldSpec) (int, error) {
	if v, ok := spec.names[strings.ToLower(s)]; ok {
		return v, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: bad value %q", ErrInvalidSchedule, s)
	}
	if v < spec.min || v > spec.max {
		return 0, fmt.Errorf("%w: value %d out of range [%d-%d]", ErrInvalidSchedule, v, spec.min, spec.max)
	}
	return v, nil
}

func (s *Schedule) Location() *time.Location {
	return s.loc
}

func (s *Schedule) dayMatches(t time.Time) bool {
	if s.month&(1<<uint(t.Month())) == 0 {
		return false
	}
	domMatch := s.dom&(1<<uint(t.Day())) != 0
	dowMatch := s.dow&(1<<uint(t.Weekday())) != 0
	if !s.domStar && !s.dowStar {
		return domMatch || dowMatch
	}
	return domMatch && dowMatch
}

// at builds the wall-clock minute h:m on day d. ok is false when that minute
// does not exist in the location (DST gap).
func (s *Schedule) at(d time.Time, h, m int) (time.Time, bool) {
	t := time.Date(d.Year(), d.Month(), d.Day(), h, m, 0, 0, s.loc)
	return t, t.Hour() == h && t.Minute() == m
}

// Next returns the first matching minute strictly after t.
func (s *Schedule) Next(t time.Time) (time.Time, error) {
	local := t.In(s.loc)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.loc)

	for i := 0; i < maxSearchDays; i++ {
		if s.dayMatches(day) {
			for h := 0; h < 24; h++ {
				if s.hour&(1<<uint(h)) == 0 {
					continue
				}
				for m := 0; m < 60; m++ {
					if s.minute&(1<<uint(m)) == 0 {
						continue
					}
					c, ok := s.at(day, h, m)
					if ok && c.After(t) {
						return c, nil
					}
				}
			}
		}
		day = time.Date(day.Year(), day.Month(), day.Day()+1, 0, 0, 0, 0, s.loc)
	}
	return time.Time{}, ErrNoOccurrence
}

// Prev returns the latest matching minute strictly before t.
func (s *Schedule) Prev(t time.Time) (time.Time, error) {
	local := t.In(s.loc)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.loc)

	for i := 0; i < maxSearchDays; i++ {
		if s.dayMatches(day) {
			for h := 23; h >= 0; h-- {
				if s.hour&(1<<uint(h)) == 0 {
					continue
				}
				for m := 59; m >= 0; m-- {
					if s.minute&(1<<uint(m)) == 0 {
						continue
					}
					c, ok := s.at(day, h, m)
					if ok && c.Before(t) {
						return c, nil
					}
				}
			}
		}
		day = time.Date(day.Year(), day.Month(), day.Day()-1, 0, 0, 0, 0, s.loc)
	}
	return time.Time{}, ErrNoOccurrence
}

// InWindow reports whether an occurrence falls within [t-tolerance, t+tolerance].
func (s *Schedule) InWindow(t time.Time, tolerance time.Duration) (bool, time.Time, error) {
	next, err := s.Next(t.Add(-tolerance).Add(-time.Nanosecond))
	if err != nil {
		return false, time.Time{}, err
	}
	return !next.After(t.Add(tolerance)), next, nil
}

// NextOccurrence parses schedule (UTC) and returns its first occurrence strictly after `after`.
func NextOccurrence(schedule string, after time.Time) (time.Time, error) {
	s, err := ParseSchedule(schedule, time.UTC)
	if err != nil {
		return time.Time{}, err
	}
	return s.Next(after)
}
