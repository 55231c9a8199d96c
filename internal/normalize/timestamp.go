// SPDX-License-Identifier: Apache-2.0

package normalize

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// TimeParser converts a payload value into an instant. It reports false for
// anything it does not recognise; it never substitutes a default.
type TimeParser func(v any) (time.Time, bool)

// takeoutLayout is the textual form used by Takeout activity pages,
// without its trailing zone.
const takeoutLayout = "Jan 2, 2006, 3:04:05 PM"

// zoneOffsets covers the abbreviations Takeout emits. Abbreviations are
// ambiguous in general, so anything outside this table is rejected.
var zoneOffsets = map[string]int{
	"UTC":  0,
	"GMT":  0,
	"Z":    0,
	"BST":  1 * 3600,
	"CET":  1 * 3600,
	"CEST": 2 * 3600,
	"EET":  2 * 3600,
	"EEST": 3 * 3600,
	"IST":  5*3600 + 1800,
	"JST":  9 * 3600,
	"AEST": 10 * 3600,
	"AEDT": 11 * 3600,
	"EST":  -5 * 3600,
	"EDT":  -4 * 3600,
	"CST":  -6 * 3600,
	"CDT":  -5 * 3600,
	"MST":  -7 * 3600,
	"MDT":  -6 * 3600,
	"PST":  -8 * 3600,
	"PDT":  -7 * 3600,
	"AKST": -9 * 3600,
	"AKDT": -8 * 3600,
	"HST":  -10 * 3600,
}

var isoLayouts = []string{time.RFC3339Nano, time.RFC3339}

var genericLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// EpochTime accepts Unix epoch seconds (fractional allowed) or milliseconds,
// as numbers or numeric strings, and falls back to RFC 3339.
func EpochTime(v any) (time.Time, bool) {
	if t, ok := epoch(v); ok {
		return t, true
	}
	return layouts(v, isoLayouts)
}

// TakeoutTime accepts RFC 3339 and the Takeout textual form
// "Jan 2, 2006, 3:04:05 PM PST".
func TakeoutTime(v any) (time.Time, bool) {
	if t, ok := layouts(v, isoLayouts); ok {
		return t, true
	}
	s, ok := v.(string)
	if !ok {
		return time.Time{}, false
	}
	return parseTakeoutText(s)
}

// GenericTime accepts RFC 3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05",
// "2006-01-02" and epoch seconds or milliseconds. Zoneless forms are UTC.
func GenericTime(v any) (time.Time, bool) {
	if t, ok := layouts(v, genericLayouts); ok {
		return t, true
	}
	return epoch(v)
}

func layouts(v any, candidates []string) (time.Time, bool) {
	s, ok := v.(string)
	if !ok {
		return time.Time{}, false
	}
	s = strings.TrimSpace(s)
	for _, layout := range candidates {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func epoch(v any) (time.Time, bool) {
	var f float64
	switch n := v.(type) {
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return time.Time{}, false
		}
		f = parsed
	case float64:
		f = n
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return time.Time{}, false
		}
		f = parsed
	default:
		return time.Time{}, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return time.Time{}, false
	}
	if f >= 1e11 {
		f /= 1000
	}
	if f >= 1e11 {
		return time.Time{}, false
	}
	sec, frac := math.Modf(f)
	nsec := int64(math.Round(frac*1e6)) * 1000
	return time.Unix(int64(sec), nsec).UTC(), true
}

func parseTakeoutText(s string) (time.Time, bool) {
	s = strings.Join(strings.Fields(s), " ")
	i := strings.LastIndexByte(s, ' ')
	if i < 0 {
		return time.Time{}, false
	}
	offset, ok := zoneOffset(s[i+1:])
	if !ok {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(takeoutLayout, s[:i], time.FixedZone("", offset))
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

// zoneOffset resolves a known abbreviation or an explicit "GMT+01:00" style
// offset to seconds east of UTC.
func zoneOffset(zone string) (int, bool) {
	if off, ok := zoneOffsets[zone]; ok {
		return off, true
	}
	for _, prefix := range []string{"GMT", "UTC"} {
		rest, found := strings.CutPrefix(zone, prefix)
		if !found || rest == "" {
			continue
		}
		sign := 1
		switch rest[0] {
		case '+':
		case '-':
			sign = -1
		default:
			return 0, false
		}
		h, m, _ := strings.Cut(rest[1:], ":")
		hours, err := strconv.Atoi(h)
		if err != nil || hours > 14 {
			return 0, false
		}
		mins := 0
		if m != "" {
			if mins, err = strconv.Atoi(m); err != nil || mins >= 60 {
				return 0, false
			}
		}
		return sign * (hours*3600 + mins*60), true
	}
	return 0, false
}
