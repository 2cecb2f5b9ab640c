package resolver

import (
	"fmt"
	"sort"
	"strings"

	"cryptocycles/internal/provider"
)

// Entry binds one symbol to its dashboard stream and upstream asset.
type Entry struct {
	Symbol   provider.Symbol
	StreamID string
	AssetID  string
	Name     string
}

// Mapping is an immutable, symbol-sorted set of entries. Symbols and
// stream ids are both unique.
type Mapping struct {
	entries []Entry
	index   map[provider.Symbol]int
}

// NewMapping validates entries and builds a Mapping.
func NewMapping(entries []Entry) (Mapping, error) {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Symbol < sorted[j].Symbol })

	index := make(map[provider.Symbol]int, len(sorted))
	owners := make(map[string][]provider.Symbol, len(sorted))
	for i, e := range sorted {
		if _, dup := index[e.Symbol]; dup {
			return Mapping{}, fmt.Errorf("symbol %s mapped twice", e.Symbol)
		}
		index[e.Symbol] = i
		owners[e.StreamID] = append(owners[e.StreamID], e.Symbol)
	}
	for id, syms := range owners {
		if len(syms) > 1 {
			return Mapping{}, &DuplicateStreamError{StreamID: id, Symbols: syms}
		}
	}
	return Mapping{entries: sorted, index: index}, nil
}

func (m Mapping) Len() int { return len(m.entries) }

// Entries returns a copy of the entries in symbol order.
func (m Mapping) Entries() []Entry {
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return out
}

func (m Mapping) Lookup(sym provider.Symbol) (Entry, bool) {
	i, ok := m.index[sym]
	if !ok {
		return Entry{}, false
	}
	return m.entries[i], true
}

func (m Mapping) Symbols() []provider.Symbol {
	out := make([]provider.Symbol, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.Symbol
	}
	return out
}

// DuplicateStreamError reports two symbols that would share a stream.
type DuplicateStreamError struct {
	StreamID string
	Symbols  []provider.Symbol
}

func (e *DuplicateStreamError) Error() string {
	names := make([]string, len(e.Symbols))
	for i, s := range e.Symbols {
		names[i] = string(s)
	}
	return fmt.Sprintf("stream id %q assigned to more than one symbol: %s", e.StreamID, strings.Join(names, ", "))
}
