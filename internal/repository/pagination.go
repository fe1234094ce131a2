package repository

import "math"

// Page size bounds. Every query is capped at MaxPageSize rows to protect the
// backing store from unbounded scans, and never asks for fewer than MinPageSize.
const (
	MinPageSize = 10
	MaxPageSize = 2000

	// UnknownTotal tells Paginate/NewEnvelope to fall back to the result size.
	UnknownTotal = -1
)

// PageRequest is a logical, 1-based page request as received from callers.
// Neither field is trusted: both are clamped by the calculator.
type PageRequest struct {
	Index int
	Size  int
}

// Window is the concrete row window a backend query should return.
// FirstRow is a 1-based offset, not an index into a slice.
type Window struct {
	FirstRow int
	MaxRows  int
}

// Offset returns the number of rows to skip (FirstRow-1), the form SQL OFFSET,
// Elasticsearch "from" and Redis ZRANGE start expect.
func (w Window) Offset() int { return w.FirstRow - 1 }

// Window computes the clamped window for the request.
func (r PageRequest) Window() Window {
	maxRows := MaxRows(r.Size)
	return Window{FirstRow: FirstRow(r.Index, maxRows), MaxRows: maxRows}
}

// Envelope is the paginated result returned to callers. Resources is never nil.
type Envelope[T any] struct {
	Total     int `json:"total"`
	Index     int `json:"index"`
	Count     int `json:"count"`
	Resources []T `json:"resources"`
}

// MaxRows clamps a requested page size into [MinPageSize, MaxPageSize].
func MaxRows(size int) int {
	return min(MaxPageSize, max(MinPageSize, size))
}

// FirstRow returns the 1-based first row of page index for pages of maxRows rows.
// Indexes below 1 are treated as 1; the result saturates instead of overflowing.
func FirstRow(index, maxRows int) int {
	if index <= 1 || maxRows <= 0 {
		return 1
	}
	if index-1 > (math.MaxInt-1)/maxRows {
		return math.MaxInt
	}
	return (index-1)*maxRows + 1
}

// PageCount returns how many pages of maxRows hold total rows.
// Integer form of ceil(total/maxRows), so exact multiples do not gain a page.
func PageCount(total, maxRows int) int {
	if total <= 0 {
		return 0
	}
	if maxRows <= 0 {
		maxRows = MaxRows(maxRows)
	}
	return (total-1)/maxRows + 1
}

// NewEnvelope builds an envelope, repairing out-of-range inputs:
// a negative total becomes len(resources), index is at least 1, count at least 0,
// and nil resources become an empty slice.
func NewEnvelope[T any](total, index, count int, resources []T) Envelope[T] {
	if resources == nil {
		resources = []T{}
	}
	if total < 0 {
		total = len(resources)
	}
	return Envelope[T]{
		Total:     total,
		Index:     max(1, index),
		Count:     max(0, count),
		Resources: resources,
	}
}

// EmptyEnvelope is an envelope with no rows for the given page index.
func EmptyEnvelope[T any](index int) Envelope[T] {
	return NewEnvelope[T](0, index, 0, nil)
}

// Paginate turns a bounded query result back into an envelope for req.
// Pass UnknownTotal when the backend cannot report a total.
func Paginate[T any](req PageRequest, total int, resources []T) Envelope[T] {
	if total < 0 {
		total = len(resources)
	}
	w := req.Window()
	return NewEnvelope(total, req.Index, PageCount(total, w.MaxRows), resources)
}
