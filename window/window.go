// Package window implements the pure time-window assigner policies of
// spec.md §4.7: tumbling, sliding, and instant, each a pure function of a
// timestamp. Ported directly from arroyo-operator/src/operator.rs's
// TumblingWindowAssigner/SlidingWindowAssigner/InstantWindowAssigner.
package window

import "time"

// Window is a half-open event-time interval [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls within [Start, End).
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Assigner maps a timestamp to the set of windows it belongs to, and
// advances a window of its own series to the next one.
type Assigner interface {
	// Windows returns the window(s) containing ts.
	Windows(ts time.Time) []Window
	// Next returns the next window in the same series as w.
	Next(w Window) Window
	// Retention reports how long state for a window must be kept once its
	// end has passed the watermark, and whether retention is bounded at all.
	Retention() (time.Duration, bool)
}

// Tumbling assigns ts to exactly one window of fixed Size, aligned to
// multiples of Size since the epoch.
type Tumbling struct {
	Size time.Duration
}

func (a Tumbling) Windows(ts time.Time) []Window {
	size := a.Size.Nanoseconds()
	key := ts.UnixNano() / size
	start := time.Unix(0, key*size).UTC()
	return []Window{{Start: start, End: start.Add(a.Size)}}
}

func (a Tumbling) Next(w Window) Window {
	return Window{Start: w.End, End: w.End.Add(a.Size)}
}

func (a Tumbling) Retention() (time.Duration, bool) { return a.Size, true }

// Sliding assigns ts to every window [s, s+Size) with s = k*Slide that
// contains ts; it emits ceil(Size/Slide) windows.
type Sliding struct {
	Size  time.Duration
	Slide time.Duration
}

// earliestStart returns the earliest window start that could still contain
// ts, per spec.md §4.7's boundary formula:
//
//	((t − size) − ((t − size) mod slide)) + slide
func (a Sliding) earliestStart(ts time.Time) time.Time {
	slide := a.Slide.Nanoseconds()
	earliest := ts.Add(-a.Size).UnixNano()
	remainder := earliest % slide
	if remainder < 0 {
		remainder += slide
	}
	return time.Unix(0, earliest-remainder+slide).UTC()
}

func (a Sliding) Windows(ts time.Time) []Window {
	var windows []Window
	start := a.earliestStart(ts)
	for !start.After(ts) {
		windows = append(windows, Window{Start: start, End: start.Add(a.Size)})
		start = start.Add(a.Slide)
	}
	return windows
}

func (a Sliding) Next(w Window) Window {
	start := w.Start.Add(a.Slide)
	return Window{Start: start, End: start.Add(a.Size)}
}

func (a Sliding) Retention() (time.Duration, bool) { return a.Size, true }

// Instant assigns ts to a single one-nanosecond window [ts, ts+1ns), used
// by the instant-join operator (spec.md §4.8) where the "window" is really
// just the distinct event-time itself.
type Instant struct{}

func (a Instant) Windows(ts time.Time) []Window {
	return []Window{{Start: ts, End: ts.Add(time.Nanosecond)}}
}

func (a Instant) Next(w Window) Window {
	return Window{Start: w.Start.Add(time.Microsecond), End: w.End.Add(time.Microsecond)}
}

func (a Instant) Retention() (time.Duration, bool) { return 0, true }
