// Package timeval parses time values written as strings into milliseconds.
//
// Three forms are accepted:
//
//	"indefinite", "infinity", "∞"   -> +Inf
//	"01:02:03.5", "02:03"           -> clock values ([h:]mm:ss[.fff])
//	"1.5s", "2min 30s", "250ms", "3" -> timecounts (a sequence of number+unit)
//
// Units are weeks (w, wk, week[s]), days (d, day[s]), hours (h, hr, hour[s]),
// minutes (mn, min, minute[s]), seconds (s, second[s]) and milliseconds (ms or
// no unit). Timecounts add up, so "1min 30s" is 90000.
package timeval

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Milliseconds per unit.
const (
	Millisecond = 1.0
	Second      = 1000 * Millisecond
	Minute      = 60 * Second
	Hour        = 60 * Minute
	Day         = 24 * Hour
	Week        = 7 * Day
)

var (
	indefiniteRE = regexp.MustCompile(`(?i)^\s*(infinity|indefinite|∞)\s*$`)
	clockRE      = regexp.MustCompile(`^\s*(?:([0-9]+):)?([0-5][0-9]):([0-5][0-9])(\.[0-9]+)?\s*$`)
)

type unit struct {
	re *regexp.Regexp
	ms float64
}

// Order matters: longer unit names are tried before their prefixes.
var units = []unit{
	{regexp.MustCompile(`(?i)^\s*(\d+(?:\.\d+)?)\s*(?:weeks?|wk|w)\b`), Week},
	{regexp.MustCompile(`(?i)^\s*(\d+(?:\.\d+)?)\s*(?:days?|d)\b`), Day},
	{regexp.MustCompile(`(?i)^\s*(\d+(?:\.\d+)?)\s*(?:hours?|hr|h)\b`), Hour},
	{regexp.MustCompile(`(?i)^\s*(\d+(?:\.\d+)?)\s*(?:minutes?|min|mn)\b`), Minute},
	{regexp.MustCompile(`(?i)^\s*(\d+(?:\.\d+)?)\s*(?:ms)\b`), Millisecond},
	{regexp.MustCompile(`(?i)^\s*(\d+(?:\.\d+)?)\s*(?:seconds?|s)\b`), Second},
	{regexp.MustCompile(`^\s*(\d+(?:\.\d+)?)\s*$`), Millisecond},
}

// ParseError reports a string that is not a valid time value.
type ParseError struct {
	Input string
	Rest  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unable to parse time value %q; went as far as %q", e.Input, e.Rest)
}

// Parse returns the time value of s in milliseconds.
func Parse(s string) (float64, error) {
	if indefiniteRE.MatchString(s) {
		return math.Inf(1), nil
	}

	if m := clockRE.FindStringSubmatch(s); m != nil {
		var h float64
		if m[1] != "" {
			h, _ = strconv.ParseFloat(m[1], 64)
		}
		mm, _ := strconv.ParseFloat(m[2], 64)
		ss, _ := strconv.ParseFloat(m[3], 64)
		var frac float64
		if m[4] != "" {
			frac, _ = strconv.ParseFloat(m[4], 64)
		}
		return h*Hour + mm*Minute + (ss+frac)*Second, nil
	}

	rest := s
	var total float64
	matched := false
	for {
		progress := false
		for _, u := range units {
			m := u.re.FindStringSubmatch(rest)
			if m == nil {
				continue
			}
			v, err := strconv.ParseFloat(m[1], 64)
			if err != nil {
				return 0, &ParseError{Input: s, Rest: rest}
			}
			total += v * u.ms
			rest = rest[len(m[0]):]
			progress = true
			matched = true
			break
		}
		if !progress {
			break
		}
	}
	if !matched || strings.TrimSpace(rest) != "" {
		return 0, &ParseError{Input: s, Rest: rest}
	}
	return total, nil
}

// MustParse is like Parse but panics on error.
// Use only with constant inputs known to be valid.
func MustParse(s string) float64 {
	t, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return t
}

// Format renders a time value in milliseconds, using "indefinite" for +Inf.
func Format(t float64) string {
	if math.IsInf(t, 1) {
		return "indefinite"
	}
	return strconv.FormatFloat(t, 'f', -1, 64) + "ms"
}
