package report

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"cryptocycles/internal/fetcher"
	"cryptocycles/internal/provider"
	"cryptocycles/internal/publisher"
	"cryptocycles/internal/resolver"
)

// Row status values.
const (
	StatusDelivered    = "delivered"
	StatusFetchFailed  = "fetch_failed"
	StatusDeliveryFail = "delivery_failed"
	StatusPending      = "pending"
)

// Summary describes one cycle.
type Summary struct {
	ID            uuid.UUID
	Mode          string
	StartedAt     time.Time
	Duration      time.Duration
	Quotes        map[provider.Symbol]provider.Quote
	Deliveries    []publisher.DeliveryResult
	FetchFailures map[provider.Symbol]error
	// Requests is the number of upstream market-data calls made.
	Requests int
	// entries keeps the stream ids of symbols that never reached delivery.
	entries []resolver.Entry
}

// Row is one symbol of a cycle, the flattened form used for output.
type Row struct {
	Symbol     string    `json:"symbol"`
	StreamID   string    `json:"stream_id"`
	Status     string    `json:"status"`
	Price      string    `json:"price,omitempty"`
	ObservedAt time.Time `json:"observed_at,omitzero"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Attempts   int       `json:"attempts,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// Build assembles the summary of a cycle over m.
func Build(id uuid.UUID, mode string, startedAt time.Time, duration time.Duration, m resolver.Mapping, fetched fetcher.Result, deliveries []publisher.DeliveryResult) Summary {
	return Summary{
		ID:            id,
		Mode:          mode,
		StartedAt:     startedAt.UTC(),
		Duration:      duration,
		Quotes:        fetched.Quotes,
		Deliveries:    deliveries,
		FetchFailures: fetched.Failures,
		Requests:      fetched.Requests,
		entries:       m.Entries(),
	}
}

// Succeeded lists the symbols delivered in this cycle, sorted.
func (s Summary) Succeeded() []provider.Symbol {
	var out []provider.Symbol
	for _, d := range s.Deliveries {
		if d.Success {
			out = append(out, d.Symbol)
		}
	}
	return provider.SortSymbols(out)
}

// Failed lists the symbols that failed to fetch or to deliver, sorted.
func (s Summary) Failed() []provider.Symbol {
	out := make([]provider.Symbol, 0, len(s.FetchFailures))
	for sym := range s.FetchFailures {
		out = append(out, sym)
	}
	for _, d := range s.Deliveries {
		if !d.Success {
			out = append(out, d.Symbol)
		}
	}
	return provider.SortSymbols(out)
}

// Unauthorized reports whether there were deliveries and the ingestion API
// rejected the key for every one of them.
func (s Summary) Unauthorized() bool {
	if len(s.Deliveries) == 0 {
		return false
	}
	for _, d := range s.Deliveries {
		if !d.Unauthorized() {
			return false
		}
	}
	return true
}

// Rows flattens the summary into one row per symbol, sorted by symbol.
func (s Summary) Rows() []Row {
	rows := make(map[provider.Symbol]Row, len(s.entries))
	for _, e := range s.entries {
		rows[e.Symbol] = Row{Symbol: e.Symbol.String(), StreamID: e.StreamID, Status: StatusPending}
	}
	for sym, err := range s.FetchFailures {
		r := rows[sym]
		r.Symbol = sym.String()
		r.Status = StatusFetchFailed
		r.Error = err.Error()
		rows[sym] = r
	}
	for sym, q := range s.Quotes {
		r := rows[sym]
		r.Symbol = sym.String()
		r.Price = q.Price.String()
		r.ObservedAt = q.ObservedAt
		rows[sym] = r
	}
	for _, d := range s.Deliveries {
		r := rows[d.Symbol]
		r.Symbol = d.Symbol.String()
		r.StreamID = d.StreamID
		r.HTTPStatus = d.StatusCode
		r.Attempts = d.Attempts
		if d.Success {
			r.Status = StatusDelivered
		} else {
			r.Status = StatusDeliveryFail
			r.Error = d.Err.Error()
		}
		rows[d.Symbol] = r
	}

	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}
