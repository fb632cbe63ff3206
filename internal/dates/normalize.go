package dates

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Canonical is the storage layout for invoice dates.
const Canonical = "2006-01-02"

// timestampLayouts are tried after the canonical form, most specific first.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// localeLayouts are common ways extraction models render dates. First parse wins.
var localeLayouts = []string{
	"1/2/2006",
	"01/02/2006",
	"01-02-2006",
	"1-2-2006",
	"1/2/06",
	"01/02/06",
	"2006/01/02",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"2 Jan 2006",
	"Jan 2 2006",
}

var ordinalSuffix = regexp.MustCompile(`(?i)(\d{1,2})(st|nd|rd|th)\b`)

// Normalize coerces an arbitrary date string to the canonical YYYY-MM-DD form.
// It never fails; anything unrecognizable becomes the current UTC date.
func Normalize(raw string) string {
	date, _ := normalize(raw)
	return date
}

// NormalizeValue is Normalize for loosely-typed values (strings, JSON
// numbers, nil). The returned bool reports whether the input defeated every
// parse attempt and the current date was substituted.
func NormalizeValue(raw any) (string, bool) {
	switch v := raw.(type) {
	case string:
		return normalize(v)
	case json.Number:
		return normalize(v.String())
	case float64:
		return normalize(strconv.FormatInt(int64(v), 10))
	case int64:
		return normalize(strconv.FormatInt(v, 10))
	case int:
		return normalize(strconv.Itoa(v))
	case time.Time:
		return v.UTC().Format(Canonical), false
	default:
		return today(), true
	}
}

func normalize(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return today(), true
	}

	// already canonical and a real calendar date
	if t, err := time.Parse(Canonical, s); err == nil {
		return t.Format(Canonical), false
	}

	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(Canonical), false
		}
	}

	stripped := ordinalSuffix.ReplaceAllString(s, "$1")
	for _, layout := range localeLayouts {
		if t, err := time.Parse(layout, stripped); err == nil {
			return t.Format(Canonical), false
		}
	}

	// purely numeric values are treated as millisecond epochs when plausible
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil && ms > 0 {
		if t := time.UnixMilli(ms).UTC(); t.Year() > 1900 {
			return t.Format(Canonical), false
		}
	}

	return today(), true
}

func today() string {
	return time.Now().UTC().Format(Canonical)
}

// ParseYMD parses a canonical date string at midnight UTC.
func ParseYMD(s string) (time.Time, error) {
	t, err := time.ParseInLocation(Canonical, s, time.UTC)
	if err != nil {
		return time.Time{}, err
	}
	// strip time to midnight UTC to match DATE semantics
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
}

// MonthBounds returns the inclusive first and last canonical dates of a
// calendar month. Day zero of the following month resolves leap years.
func MonthBounds(year int, month time.Month) (string, string) {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	last := time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC)
	return first.Format(Canonical), last.Format(Canonical)
}
