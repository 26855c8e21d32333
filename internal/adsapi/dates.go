package adsapi

import (
	"encoding/json"
	"time"

	"github.com/georgeshao/clinic-crm/pkg/types"
)

const (
	RangeToday     = "today"
	RangeYesterday = "yesterday"
	RangeLast7d    = "last_7d"
	RangeLast30d   = "last_30d"
	RangeThisMonth = "this_month"

	dayLayout = "2006-01-02"
)

// Range is a closed span of calendar days. Since starts at 00:00 and Until
// ends at the last nanosecond of its day.
type Range struct {
	Preset string
	Since  time.Time
	Until  time.Time
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func endOfDay(t time.Time) time.Time {
	return startOfDay(t).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

// ResolveRange turns a preset into concrete day bounds relative to now.
// last_7d and last_30d end yesterday, matching how the ads API reports
// those presets. Unknown presets resolve as last_7d.
func ResolveRange(preset string, now time.Time) Range {
	today := startOfDay(now)
	yesterday := today.AddDate(0, 0, -1)

	var since, until time.Time
	switch preset {
	case RangeToday:
		since, until = today, today
	case RangeYesterday:
		since, until = yesterday, yesterday
	case RangeLast30d:
		since, until = yesterday.AddDate(0, 0, -29), yesterday
	case RangeThisMonth:
		since, until = time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, today.Location()), today
	case RangeLast7d:
		since, until = yesterday.AddDate(0, 0, -6), yesterday
	default:
		preset = RangeLast7d
		since, until = yesterday.AddDate(0, 0, -6), yesterday
	}

	return Range{Preset: preset, Since: startOfDay(since), Until: endOfDay(until)}
}

// TimeRangeParam is the value of the ads API time_range query parameter.
func (r Range) TimeRangeParam() string {
	b, _ := json.Marshal(map[string]string{
		"since": r.Since.Format(dayLayout),
		"until": r.Until.Format(dayLayout),
	})
	return string(b)
}

func (r Range) ToType() types.DateRange {
	return types.DateRange{
		Preset: r.Preset,
		Since:  r.Since.Format(dayLayout),
		Until:  r.Until.Format(dayLayout),
	}
}
