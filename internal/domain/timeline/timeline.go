package timeline

import "sort"

// DefaultGapThreshold is the maximum separation, in seconds, between two
// ranges that still get merged into one extraction.
const DefaultGapThreshold = 2.0

// Range is a slice of the source timeline in seconds. End must be greater
// than Start; Start must not be negative.
type Range struct {
	Start float64
	End   float64
}

func (r Range) Duration() float64 { return r.End - r.Start }

// Valid reports whether the range denotes a usable, forward-running slice.
func (r Range) Valid() bool { return r.Start >= 0 && r.End > r.Start }

// Merge collapses ranges into the minimal set of non-overlapping ranges
// pairwise separated by more than gapThreshold seconds. The result is sorted
// by start time. Overlapping, nested, and touching ranges always merge;
// ranges closer than the threshold merge too, so short silences between
// selections do not produce separate cuts.
//
// Merge is pure: the input slice is not modified. Callers are expected to
// reject empty input before getting here; an empty slice yields nil.
func Merge(ranges []Range, gapThreshold float64) []Range {
	if len(ranges) == 0 {
		return nil
	}

	sorted := make([]Range, len(ranges))
	copy(sorted, ranges)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	out := make([]Range, 0, len(sorted))
	cur := sorted[0]
	for _, r := range sorted[1:] {
		if r.Start-cur.End <= gapThreshold {
			if r.End > cur.End {
				cur.End = r.End
			}
			continue
		}
		out = append(out, cur)
		cur = r
	}
	return append(out, cur)
}
