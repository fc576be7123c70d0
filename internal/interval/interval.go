package interval

import (
	"sort"
	"time"
)

// Interval is a half-open [Start, End) time range. A merged list is kept
// sorted by start and non-overlapping.
type Interval struct {
	Start time.Time
	End   time.Time
}

// Duration returns the length of the interval.
func (iv Interval) Duration() time.Duration {
	return iv.End.Sub(iv.Start)
}

// Merge sorts intervals by start and coalesces any interval that starts at or
// before the previous interval's end. Merging an already-merged list returns
// an equal list.
func Merge(list []Interval) []Interval {
	if len(list) == 0 {
		return nil
	}

	sorted := make([]Interval, len(list))
	copy(sorted, list)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Start.Equal(sorted[j].Start) {
			return sorted[i].End.Before(sorted[j].End)
		}
		return sorted[i].Start.Before(sorted[j].Start)
	})

	merged := []Interval{sorted[0]}
	for _, iv := range sorted[1:] {
		last := &merged[len(merged)-1]
		if !iv.Start.After(last.End) {
			if iv.End.After(last.End) {
				last.End = iv.End
			}
			continue
		}
		merged = append(merged, iv)
	}
	return merged
}

// Clamp clips the interval to the given window. A result with End before or
// equal to Start means the interval lies outside the window.
func Clamp(iv Interval, winStart, winEnd time.Time) Interval {
	if iv.Start.Before(winStart) {
		iv.Start = winStart
	}
	if iv.End.After(winEnd) {
		iv.End = winEnd
	}
	return iv
}

// Buffered expands an interval by pad on each side, clamped to the window.
func Buffered(iv Interval, pad time.Duration, winStart, winEnd time.Time) Interval {
	iv.Start = iv.Start.Add(-pad)
	iv.End = iv.End.Add(pad)
	return Clamp(iv, winStart, winEnd)
}

// FreeBlocks walks a merged busy list and returns the gaps inside the window.
// Zero-length gaps are dropped.
func FreeBlocks(winStart, winEnd time.Time, busy []Interval) []Interval {
	var blocks []Interval
	cursor := winStart

	for _, iv := range busy {
		clipped := Clamp(iv, winStart, winEnd)
		if !clipped.End.After(clipped.Start) {
			continue
		}
		if clipped.Start.After(cursor) {
			blocks = append(blocks, Interval{Start: cursor, End: clipped.Start})
		}
		if clipped.End.After(cursor) {
			cursor = clipped.End
		}
	}

	if winEnd.After(cursor) {
		blocks = append(blocks, Interval{Start: cursor, End: winEnd})
	}
	return blocks
}

// Largest returns the longest block, breaking ties by earliest start.
// The second return is false when blocks is empty.
func Largest(blocks []Interval) (Interval, bool) {
	if len(blocks) == 0 {
		return Interval{}, false
	}
	best := blocks[0]
	for _, b := range blocks[1:] {
		if b.Duration() > best.Duration() {
			best = b
		}
	}
	return best, true
}
