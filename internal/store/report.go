package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// ReportVersion identifies the activity report format. The JSON Schema lives
// in docs/schema/activity-report-v1.schema.json.
const ReportVersion = "keysense.activity-report/v1"

// Report is the exported summary of a period.
type Report struct {
	Version     string       `json:"version"`
	GeneratedAt time.Time    `json:"generated_at"`
	From        time.Time    `json:"from"`
	To          time.Time    `json:"to"`
	Totals      ReportTotals `json:"totals"`
	Days        []ReportDay  `json:"days"`
	Spans       []ReportSpan `json:"spans,omitempty"`
}

// ReportTotals are the counters of a report or day.
type ReportTotals struct {
	Spans         int     `json:"spans"`
	ActiveSeconds float64 `json:"active_seconds"`
	KeyEvents     uint64  `json:"key_events"`
	MouseEvents   uint64  `json:"mouse_events"`
	Chars         uint64  `json:"chars"`
}

// ReportDay aggregates the spans that started on one calendar day.
type ReportDay struct {
	Date string `json:"date"` // YYYY-MM-DD in the report location
	ReportTotals
}

// ReportSpan is one span in a detailed report.
type ReportSpan struct {
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	DurationSeconds float64   `json:"duration_seconds"`
	KeyEvents       uint64    `json:"key_events"`
	MouseEvents     uint64    `json:"mouse_events"`
	Chars           uint64    `json:"chars"`
}

// ReportOptions controls BuildReport.
type ReportOptions struct {
	From     time.Time
	To       time.Time
	Location *time.Location // day boundaries; defaults to time.Local
	Detailed bool           // include every span
	Now      func() time.Time
}

// BuildReport summarizes the spans starting within [opts.From, opts.To).
func (s *Store) BuildReport(ctx context.Context, opts ReportOptions) (*Report, error) {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if !opts.To.After(opts.From) {
		return nil, fmt.Errorf("build report: empty period %s to %s", opts.From, opts.To)
	}

	spans, err := s.GetSpanRange(ctx, opts.From, opts.To)
	if err != nil {
		return nil, fmt.Errorf("build report: %w", err)
	}

	r := &Report{
		Version:     ReportVersion,
		GeneratedAt: opts.Now().UTC(),
		From:        opts.From.UTC(),
		To:          opts.To.UTC(),
		Days:        []ReportDay{},
	}

	dayIndex := make(map[string]int)
	for _, sp := range spans {
		r.Totals.add(sp)

		date := sp.Start().In(opts.Location).Format("2006-01-02")
		i, ok := dayIndex[date]
		if !ok {
			i = len(r.Days)
			dayIndex[date] = i
			r.Days = append(r.Days, ReportDay{Date: date})
		}
		r.Days[i].add(sp)

		if opts.Detailed {
			r.Spans = append(r.Spans, ReportSpan{
				Start:           sp.Start().UTC(),
				End:             sp.End().UTC(),
				DurationSeconds: sp.Duration().Seconds(),
				KeyEvents:       sp.KeyEvents,
				MouseEvents:     sp.MouseEvents,
				Chars:           sp.Chars,
			})
		}
	}

	return r, nil
}

func (t *ReportTotals) add(sp Span) {
	t.Spans++
	t.ActiveSeconds += sp.Duration().Seconds()
	t.KeyEvents += sp.KeyEvents
	t.MouseEvents += sp.MouseEvents
	t.Chars += sp.Chars
}

// WriteJSON writes r as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
