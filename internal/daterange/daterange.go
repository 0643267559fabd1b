// Package daterange resolves the reporting window from explicit dates or a named preset.
package daterange

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar date format accepted for since and until.
const DateLayout = "2006-01-02"

// Preset names.
const (
	PresetLast7Days  = "last_7_days"
	PresetLast30Days = "last_30_days"
	PresetLast90Days = "last_90_days"
	PresetThisMonth  = "this_month"
	PresetThisYear   = "this_year"
)

// DefaultPreset is used when neither explicit dates nor a preset are given.
const DefaultPreset = PresetLast30Days

// Range is an inclusive UTC time window.
type Range struct {
	Since time.Time
	Until time.Time
}

// Contains reports whether ts falls inside the window, bounds included.
func (r Range) Contains(ts time.Time) bool {
	if ts.IsZero() {
		return false
	}
	return !ts.Before(r.Since) && !ts.After(r.Until)
}

// DateStrings returns since and until as calendar dates.
func (r Range) DateStrings() (string, string) {
	return r.Since.UTC().Format(DateLayout), r.Until.UTC().Format(DateLayout)
}

// Presets lists every supported preset name.
func Presets() []string {
	return []string{PresetLast7Days, PresetLast30Days, PresetLast90Days, PresetThisMonth, PresetThisYear}
}

// FromPreset maps a preset name, matched case-insensitively, to a window ending at now.
func FromPreset(preset string, now time.Time) (Range, error) {
	now = now.UTC()
	switch strings.ToLower(strings.TrimSpace(preset)) {
	case PresetLast7Days:
		return Range{Since: now.AddDate(0, 0, -7), Until: now}, nil
	case PresetLast30Days:
		return Range{Since: now.AddDate(0, 0, -30), Until: now}, nil
	case PresetLast90Days:
		return Range{Since: now.AddDate(0, 0, -90), Until: now}, nil
	case PresetThisMonth:
		return Range{Since: time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC), Until: now}, nil
	case PresetThisYear:
		return Range{Since: time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, time.UTC), Until: now}, nil
	default:
		return Range{}, fmt.Errorf("unsupported date preset %q", preset)
	}
}

// Parse resolves the window. Explicit since and until take precedence over the preset,
// and until covers its whole calendar day. An empty preset falls back to DefaultPreset.
func Parse(preset, since, until string, now time.Time) (Range, error) {
	since = strings.TrimSpace(since)
	until = strings.TrimSpace(until)

	switch {
	case since != "" && until != "":
		start, err := time.ParseInLocation(DateLayout, since, time.UTC)
		if err != nil {
			return Range{}, fmt.Errorf("parse since date: %w", err)
		}
		end, err := time.ParseInLocation(DateLayout, until, time.UTC)
		if err != nil {
			return Range{}, fmt.Errorf("parse until date: %w", err)
		}
		if start.After(end) {
			return Range{}, fmt.Errorf("since date %s must not be after until date %s", since, until)
		}
		return Range{Since: start, Until: end.AddDate(0, 0, 1).Add(-time.Nanosecond)}, nil
	case since != "" || until != "":
		return Range{}, fmt.Errorf("since and until must be provided together")
	}

	if strings.TrimSpace(preset) == "" {
		preset = DefaultPreset
	}
	return FromPreset(preset, now)
}
