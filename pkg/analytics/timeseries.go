package analytics

import (
	"time"
)

// bucketFor maps a record timestamp onto the start of its bucket. All
// bucketing happens in UTC.
func bucketFor(t time.Time, grouping TimeGrouping) time.Time {
	t = t.UTC()
	switch grouping {
	case GroupHourly:
		return t.Truncate(time.Hour)
	case GroupWeekly:
		// Weeks start on Sunday
		day := dateOf(t)
		return day.AddDate(0, 0, -int(day.Weekday()))
	case GroupMonthly:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return dateOf(t)
	}
}

// bucketsFor generates the complete ordered bucket sequence spanning the
// range, so series stay dense even where no records fall. The first bucket
// is aligned to the grouping (Sunday for weekly, day 1 for monthly).
func bucketsFor(r DateRange, grouping TimeGrouping) []time.Time {
	start := bucketFor(dateOf(r.Start), grouping)
	end := dateOf(r.End).AddDate(0, 0, 1).Add(-time.Nanosecond)

	var buckets []time.Time
	for current := start; !current.After(end); {
		buckets = append(buckets, current)
		switch grouping {
		case GroupHourly:
			current = current.Add(time.Hour)
		case GroupWeekly:
			current = current.AddDate(0, 0, 7)
		case GroupMonthly:
			current = current.AddDate(0, 1, 0)
		default:
			current = current.AddDate(0, 0, 1)
		}
	}
	return buckets
}

// denseSeries spreads bucketed counts over the full bucket sequence,
// zero-filling empty buckets
func denseSeries(buckets []time.Time, counts map[time.Time]int) []TimeSeriesPoint {
	series := make([]TimeSeriesPoint, len(buckets))
	for i, bucket := range buckets {
		series[i] = TimeSeriesPoint{Bucket: bucket, Value: counts[bucket]}
	}
	return series
}

// dateOf truncates a timestamp to midnight UTC
func dateOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
