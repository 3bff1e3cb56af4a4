package listctl

import (
	"net/url"
	"sort"
	"strconv"
)

// Query parameter names sent to the remote collection.
const (
	ParamPage     = "page"
	ParamPageSize = "pageSize"
	ParamSearch   = "search"
)

// Query describes one page of a filterable, searchable collection.
// A Query handed to a Remote is a private copy and is never mutated afterwards.
type Query struct {
	// Page is 1-indexed.
	Page int

	// PageSize is the number of items per page (> 0).
	PageSize int

	// Filters maps filter name to value. A missing key means the filter is unset.
	Filters map[string]string

	// SearchTerm is the free-text search. Empty means no search.
	SearchTerm string
}

// Clone returns a deep copy of q.
func (q Query) Clone() Query {
	out := q
	if q.Filters != nil {
		out.Filters = make(map[string]string, len(q.Filters))
		for k, v := range q.Filters {
			out.Filters[k] = v
		}
	}
	return out
}

// WithPage returns a copy of q pointing at page n.
func (q Query) WithPage(n int) Query {
	out := q.Clone()
	out.Page = n
	return out
}

// HasCriteria reports whether any filter or search term is applied.
func (q Query) HasCriteria() bool {
	if q.SearchTerm != "" {
		return true
	}
	for _, v := range q.Filters {
		if v != "" {
			return true
		}
	}
	return false
}

// Equal reports whether two queries request the same data.
func (q Query) Equal(other Query) bool {
	if q.Page != other.Page || q.PageSize != other.PageSize || q.SearchTerm != other.SearchTerm {
		return false
	}
	return filtersEqual(q.Filters, other.Filters)
}

// Values renders q as URL query parameters. Unset optional fields are omitted.
func (q Query) Values() url.Values {
	v := url.Values{}
	if q.Page > 0 {
		v.Set(ParamPage, strconv.Itoa(q.Page))
	}
	if q.PageSize > 0 {
		v.Set(ParamPageSize, strconv.Itoa(q.PageSize))
	}
	if q.SearchTerm != "" {
		v.Set(ParamSearch, q.SearchTerm)
	}

	names := make([]string, 0, len(q.Filters))
	for name := range q.Filters {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if value := q.Filters[name]; value != "" {
			v.Set(name, value)
		}
	}
	return v
}

func filtersEqual(a, b map[string]string) bool {
	count := func(m map[string]string) int {
		n := 0
		for _, v := range m {
			if v != "" {
				n++
			}
		}
		return n
	}
	if count(a) != count(b) {
		return false
	}
	for k, v := range a {
		if v != "" && b[k] != v {
			return false
		}
	}
	return true
}

// PageResult is one page as returned by the remote collection.
// Page may differ from the requested page when the server clamps it.
type PageResult[T any] struct {
	Items      []T
	TotalCount int
	Page       int
}

// TotalPages returns max(1, ceil(totalCount/pageSize)).
func TotalPages(totalCount, pageSize int) int {
	if pageSize <= 0 || totalCount <= 0 {
		return 1
	}
	return (totalCount + pageSize - 1) / pageSize
}

// ClampPage clamps page into [1, totalPages].
func ClampPage(page, totalPages int) int {
	if totalPages < 1 {
		totalPages = 1
	}
	switch {
	case page < 1:
		return 1
	case page > totalPages:
		return totalPages
	default:
		return page
	}
}

// ShowingRange returns the 1-indexed bounds of the items visible on page,
// e.g. 41..45 for page 3 of 45 items at 20 per page. Both are 0 when nothing is shown.
func ShowingRange(page, pageSize, totalCount int) (from, to int) {
	if totalCount <= 0 || pageSize <= 0 || page < 1 {
		return 0, 0
	}
	from = (page-1)*pageSize + 1
	if from > totalCount {
		return 0, 0
	}
	to = page * pageSize
	if to > totalCount {
		to = totalCount
	}
	return from, to
}
