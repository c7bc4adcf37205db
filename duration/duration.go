// Package duration implements the PromQL duration mini-language: a
// non-empty concatenation of <integer><unit> pairs such as "1h30m" or
// "4d1h1s", with units ordered from largest to smallest and each unit
// used at most once.
package duration

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// ErrInvalidDuration is wrapped by every error returned from Parse.
var ErrInvalidDuration = errors.New("invalid duration format")

var durationRE = regexp.MustCompile("^(([0-9]+)y)?(([0-9]+)w)?(([0-9]+)d)?(([0-9]+)h)?(([0-9]+)m)?(([0-9]+)s)?(([0-9]+)ms)?$")

// Parse parses a duration string into a time.Duration with millisecond
// resolution. Units are y, w, d, h, m, s, ms with 1y = 365d, 1w = 7d
// and 1d = 24h. "0" is accepted as a unitless zero.
func Parse(s string) (time.Duration, error) {
	switch s {
	case "0":
		// Allow 0 without a unit.
		return 0, nil
	case "":
		return 0, errors.Wrap(ErrInvalidDuration, "empty duration string")
	}
	matches := durationRE.FindStringSubmatch(s)
	if matches == nil {
		return 0, errors.Wrapf(ErrInvalidDuration, "not a valid duration string: %q", s)
	}
	var dur time.Duration

	// The regex submatch at index pos holds the integer count for one
	// unit; mult converts that count to milliseconds.
	var overflowErr error
	m := func(pos int, mult time.Duration) {
		if matches[pos] == "" {
			return
		}
		n, err := strconv.Atoi(matches[pos])
		if err != nil {
			overflowErr = errors.Wrapf(ErrInvalidDuration, "duration out of range: %q", s)
			return
		}
		if n > int((1<<63-1)/mult/time.Millisecond) {
			overflowErr = errors.Wrapf(ErrInvalidDuration, "duration out of range: %q", s)
			return
		}
		d := time.Duration(n) * time.Millisecond * mult
		dur += d
		if dur < 0 {
			overflowErr = errors.Wrapf(ErrInvalidDuration, "duration out of range: %q", s)
		}
	}

	m(2, 1000*60*60*24*365) // y
	m(4, 1000*60*60*24*7)   // w
	m(6, 1000*60*60*24)     // d
	m(8, 1000*60*60)        // h
	m(10, 1000*60)          // m
	m(12, 1000)             // s
	m(14, 1)                // ms

	if overflowErr != nil {
		return 0, overflowErr
	}
	return dur, nil
}

// Display renders d in the canonical form Parse accepts, largest units
// first with zero components omitted, e.g. 349201000ms -> "4d1h1s".
// Years and weeks are only used when they divide the duration exactly,
// as "90d" reads better than "12w6d". The zero duration renders as "0s".
func Display(d time.Duration) string {
	ms := int64(d / time.Millisecond)
	if ms == 0 {
		return "0s"
	}
	r := ""
	f := func(unit string, mult int64, exact bool) {
		if exact && ms%mult != 0 {
			return
		}
		if v := ms / mult; v > 0 {
			r += fmt.Sprintf("%d%s", v, unit)
			ms -= v * mult
		}
	}

	f("y", 1000*60*60*24*365, true)
	f("w", 1000*60*60*24*7, true)
	f("d", 1000*60*60*24, false)
	f("h", 1000*60*60, false)
	f("m", 1000*60, false)
	f("s", 1000, false)
	f("ms", 1, false)

	return r
}
