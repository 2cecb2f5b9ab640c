package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"cryptocycles/internal/resolver"
)

// Writer renders mappings and cycle summaries for the operator, either as
// aligned text or as indented JSON.
type Writer struct {
	w    io.Writer
	json bool
}

// NewWriter returns a Writer for format "text" or "json".
func NewWriter(w io.Writer, format string) (*Writer, error) {
	switch strings.ToLower(format) {
	case "", "text":
		return &Writer{w: w}, nil
	case "json":
		return &Writer{w: w, json: true}, nil
	default:
		return nil, fmt.Errorf("unknown output format %q", format)
	}
}

type mappingRow struct {
	Symbol   string `json:"symbol"`
	StreamID string `json:"stream_id"`
	AssetID  string `json:"asset_id"`
	Name     string `json:"name,omitempty"`
}

// Mapping prints every entry of m.
func (rw *Writer) Mapping(m resolver.Mapping) error {
	rows := make([]mappingRow, 0, m.Len())
	for _, e := range m.Entries() {
		rows = append(rows, mappingRow{Symbol: e.Symbol.String(), StreamID: e.StreamID, AssetID: e.AssetID, Name: e.Name})
	}
	if rw.json {
		return rw.encode(struct {
			Streams []mappingRow `json:"streams"`
		}{Streams: rows})
	}

	tw := tabwriter.NewWriter(rw.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SYMBOL\tSTREAM ID\tASSET\tNAME")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Symbol, r.StreamID, r.AssetID, r.Name)
	}
	fmt.Fprintf(tw, "%d streams\n", len(rows))
	return tw.Flush()
}

// Summary prints one cycle.
func (rw *Writer) Summary(s Summary) error {
	if rw.json {
		return rw.encode(struct {
			Cycle     string    `json:"cycle"`
			Mode      string    `json:"mode"`
			StartedAt time.Time `json:"started_at"`
			Duration  string    `json:"duration"`
			Succeeded int       `json:"succeeded"`
			Failed    int       `json:"failed"`
			Rows      []Row     `json:"symbols"`
		}{
			Cycle:     s.ID.String(),
			Mode:      s.Mode,
			StartedAt: s.StartedAt,
			Duration:  s.Duration.Round(time.Millisecond).String(),
			Succeeded: len(s.Succeeded()),
			Failed:    len(s.Failed()),
			Rows:      s.Rows(),
		})
	}

	fmt.Fprintf(rw.w, "cycle %s (%s) at %s: %d delivered, %d failed in %s\n",
		s.ID, s.Mode, s.StartedAt.Format(time.RFC3339),
		len(s.Succeeded()), len(s.Failed()), s.Duration.Round(time.Millisecond))
	tw := tabwriter.NewWriter(rw.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SYMBOL\tSTREAM ID\tPRICE\tOBSERVED\tSTATUS\tDETAIL")
	for _, r := range s.Rows() {
		observed := ""
		if !r.ObservedAt.IsZero() {
			observed = r.ObservedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", r.Symbol, r.StreamID, r.Price, observed, r.Status, r.Error)
	}
	return tw.Flush()
}

func (rw *Writer) encode(v any) error {
	enc := json.NewEncoder(rw.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
