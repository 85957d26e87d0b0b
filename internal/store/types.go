// Package store provides SQLite-based storage for keysense activity spans.
package store

import "time"

// Span is a persisted activity span. Only counts are stored, never keys or
// text.
type Span struct {
	ID          int64
	StartNs     int64
	EndNs       int64
	KeyEvents   uint64
	MouseEvents uint64
	Chars       uint64
}

// Start returns the span start.
func (s Span) Start() time.Time { return time.Unix(0, s.StartNs) }

// End returns the time of the span's last input.
func (s Span) End() time.Time { return time.Unix(0, s.EndNs) }

// Duration returns the active time covered by the span.
func (s Span) Duration() time.Duration { return time.Duration(s.EndNs - s.StartNs) }

// Summary aggregates spans over a period.
type Summary struct {
	Spans       int
	Active      time.Duration
	KeyEvents   uint64
	MouseEvents uint64
	Chars       uint64
	First       *time.Time
	Last        *time.Time
}
