package bridge

import (
	"strings"

	"chewbridge/internal/engine"
)

// ValidIntervals returns the intervals usable over a buffer of n symbols,
// in order. Any interval that is empty, reaches outside [0, n) or overlaps
// an earlier one is dropped.
func ValidIntervals(n int, intervals []engine.Interval) []engine.Interval {
	var out []engine.Interval
	start := 0
	for _, iv := range intervals {
		if iv.From < start || iv.To > n || iv.From >= iv.To {
			continue
		}
		out = append(out, iv)
		start = iv.To
	}
	return out
}

// SpanRanges partitions a buffer of n symbols into consecutive ranges: each
// fixed interval is one range, and every run of symbols between intervals
// is one range. The ranges cover [0, n) exactly once, in order.
//
// Intervals rejected by ValidIntervals are skipped.
func SpanRanges(n int, intervals []engine.Interval) []engine.Interval {
	var out []engine.Interval
	start := 0
	for _, iv := range ValidIntervals(n, intervals) {
		if iv.From > start {
			out = append(out, engine.Interval{From: start, To: iv.From})
		}
		out = append(out, iv)
		start = iv.To
	}
	if start < n {
		out = append(out, engine.Interval{From: start, To: n})
	}
	return out
}

// MergeIntervals joins symbols into the spans described by SpanRanges.
func MergeIntervals(symbols []string, intervals []engine.Interval) []string {
	ranges := SpanRanges(len(symbols), intervals)
	if len(ranges) == 0 {
		return nil
	}
	spans := make([]string, len(ranges))
	for i, r := range ranges {
		spans[i] = strings.Join(symbols[r.From:r.To], "")
	}
	return spans
}

// collectIntervals drains the engine's interval enumerator.
func collectIntervals(e engine.BufferReader) []engine.Interval {
	var out []engine.Interval
	e.IntervalEnumerate()
	for e.IntervalHasNext() {
		out = append(out, e.IntervalNext())
	}
	return out
}
