package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// ContentSummary is the derived display record of a document version: a flat
// map of column key to primitive value. A failed derivation keeps the error
// instead of the data so list views can render the failure.
type ContentSummary struct {
	Data  map[string]any `json:"data,omitempty"`
	Error string         `json:"error,omitempty"`
}

// OK reports whether the derivation succeeded.
func (s *ContentSummary) OK() bool { return s != nil && s.Error == "" }

// SortDirection is the default-sort marker of a summary column.
type SortDirection string

const (
	SortNone SortDirection = ""
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// SummaryColumn is the metadata encoded in a summary column key.
// Key format: "<position>|<flags>|<label>" where flags is any combination of
// 's' (sortable), 'a' (default sort ascending), 'd' (default sort
// descending). Example: "0|sd|Title".
type SummaryColumn struct {
	Position    int           `json:"position"`
	Sortable    bool          `json:"sortable"`
	DefaultSort SortDirection `json:"default_sort,omitempty"`
	Label       string        `json:"label"`
}

// ParseSummaryColumnKey decodes a summary column key.
func ParseSummaryColumnKey(key string) (SummaryColumn, error) {
	parts := strings.SplitN(key, "|", 3)
	if len(parts) != 3 {
		return SummaryColumn{}, fmt.Errorf("summary column key %q: want <position>|<flags>|<label>", key)
	}

	pos, err := strconv.Atoi(parts[0])
	if err != nil || pos < 0 {
		return SummaryColumn{}, fmt.Errorf("summary column key %q: bad position %q", key, parts[0])
	}

	col := SummaryColumn{Position: pos, Label: parts[2]}
	if col.Label == "" {
		return SummaryColumn{}, fmt.Errorf("summary column key %q: empty label", key)
	}

	for _, flag := range parts[1] {
		switch flag {
		case 's':
			col.Sortable = true
		case 'a':
			if col.DefaultSort != SortNone {
				return SummaryColumn{}, fmt.Errorf("summary column key %q: conflicting sort flags", key)
			}
			col.DefaultSort = SortAsc
		case 'd':
			if col.DefaultSort != SortNone {
				return SummaryColumn{}, fmt.Errorf("summary column key %q: conflicting sort flags", key)
			}
			col.DefaultSort = SortDesc
		default:
			return SummaryColumn{}, fmt.Errorf("summary column key %q: unknown flag %q", key, string(flag))
		}
	}
	return col, nil
}

// FormatSummaryColumnKey is the inverse of ParseSummaryColumnKey.
func FormatSummaryColumnKey(col SummaryColumn) string {
	flags := ""
	if col.Sortable {
		flags += "s"
	}
	switch col.DefaultSort {
	case SortAsc:
		flags += "a"
	case SortDesc:
		flags += "d"
	}
	return fmt.Sprintf("%d|%s|%s", col.Position, flags, col.Label)
}
