package extractor

import (
	"time"

	"github.com/kurihiro0119/devops-ingest/internal/domain"
)

// Bucket is a half-open time range [From, To).
type Bucket struct {
	From time.Time
	To   time.Time
}

// DailyBuckets splits [from, to) into consecutive one-day buckets. The last
// bucket is clipped to to, so a 2.5 day range gives three buckets.
func DailyBuckets(from, to time.Time) []Bucket {
	if !from.Before(to) {
		return nil
	}
	var buckets []Bucket
	for start := from; start.Before(to); start = start.Add(24 * time.Hour) {
		end := start.Add(24 * time.Hour)
		if end.After(to) {
			end = to
		}
		buckets = append(buckets, Bucket{From: start, To: end})
	}
	return buckets
}

// chunk splits ids into slices of at most size elements.
func chunk(ids []int, size int) [][]int {
	var out [][]int
	for len(ids) > size {
		out = append(out, ids[:size:size])
		ids = ids[size:]
	}
	if len(ids) > 0 {
		out = append(out, ids)
	}
	return out
}

// inRange reports whether the timestamp s parses and falls in [from, to).
// A zero bound is open.
func inRange(s string, from, to time.Time) bool {
	t, ok := domain.ParseTime(s)
	if !ok {
		return false
	}
	if !from.IsZero() && t.Before(from) {
		return false
	}
	return to.IsZero() || t.Before(to)
}
