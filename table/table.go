// Package table is a client-side table model: per-column filters, multi-column sorting and pagination over
// an in-memory record list, rendered into display modes.
package table

import (
	"sort"
	"strings"
)

const DefaultPageSize = 10

// Status is the loading state of the data behind a table.
type Status int

const (
	StatusLoading Status = iota
	StatusLoaded
	StatusFailed
)

// Cell is one rendered value. Href turns the cell into a link.
type Cell struct {
	Text  string `json:"text"`
	Href  string `json:"href,omitempty"`
	Class string `json:"class,omitempty"`
}

// Column describes how a record is shown in one column. Columns without an Accessor are display-only:
// they cannot be sorted or filtered.
type Column[T any] struct {
	ID     string
	Header string
	// value used for sorting and filtering
	Accessor func(T) string
	// rendered cell, the accessor value when nil
	Render           func(T) Cell
	DisableSorting   bool
	DisableFiltering bool
}

func (c Column[T]) Sortable() bool {
	return c.Accessor != nil && !c.DisableSorting
}

func (c Column[T]) Filterable() bool {
	return c.Accessor != nil && !c.DisableFiltering
}

func (c Column[T]) cell(row T) Cell {
	if c.Render != nil {
		return c.Render(row)
	}
	if c.Accessor != nil {
		return Cell{Text: c.Accessor(row)}
	}
	return Cell{}
}

type SortSpec struct {
	ID   string `json:"id"`
	Desc bool   `json:"desc"`
}

// Table holds the data and the view state of one table. It is not safe for concurrent use.
type Table[T any] struct {
	columns []Column[T]
	byID    map[string]int

	records []T
	status  Status
	err     error

	sorting   []SortSpec
	filters   map[string]string
	pageIndex int
	pageSize  int
}

func New[T any](columns []Column[T]) *Table[T] {
	byID := make(map[string]int, len(columns))
	for i, c := range columns {
		byID[c.ID] = i
	}
	return &Table[T]{
		columns:  columns,
		byID:     byID,
		filters:  make(map[string]string),
		pageSize: DefaultPageSize,
	}
}

// SetData replaces the records and their loading status. err is kept for display when status is StatusFailed.
func (t *Table[T]) SetData(records []T, status Status, err error) {
	t.records = records
	t.status = status
	t.err = err
	t.clampPage()
}

// Sorting returns a copy of the active sort specs, first one wins.
func (t *Table[T]) Sorting() []SortSpec {
	return append([]SortSpec(nil), t.sorting...)
}

// SetSorting replaces the sort specs. Unknown, unsortable and repeated columns are dropped.
func (t *Table[T]) SetSorting(specs []SortSpec) {
	seen := make(map[string]bool, len(specs))
	sorting := make([]SortSpec, 0, len(specs))
	for _, s := range specs {
		col, ok := t.column(s.ID)
		if !ok || !col.Sortable() || seen[s.ID] {
			continue
		}
		seen[s.ID] = true
		sorting = append(sorting, s)
	}
	t.sorting = sorting
	t.pageIndex = 0
}

// ToggleSorting cycles a column through ascending, descending and unsorted. Without multi the column
// becomes the only sort key.
func (t *Table[T]) ToggleSorting(id string, multi bool) {
	col, ok := t.column(id)
	if !ok || !col.Sortable() {
		return
	}
	pos := -1
	for i, s := range t.sorting {
		if s.ID == id {
			pos = i
		}
	}

	var next []SortSpec
	if multi {
		next = append(next, t.sorting...)
	}
	switch {
	case pos < 0:
		next = append(next, SortSpec{ID: id})
	case !t.sorting[pos].Desc:
		if multi {
			next[pos].Desc = true
		} else {
			next = []SortSpec{{ID: id, Desc: true}}
		}
	default:
		if multi {
			next = append(next[:pos], next[pos+1:]...)
		}
	}
	t.SetSorting(next)
}

// SortDirection returns "asc", "desc" or "" and the position of the column among the sort keys.
func (t *Table[T]) SortDirection(id string) (string, int) {
	for i, s := range t.sorting {
		if s.ID == id {
			if s.Desc {
				return "desc", i
			}
			return "asc", i
		}
	}
	return "", -1
}

func (t *Table[T]) Filters() map[string]string {
	out := make(map[string]string, len(t.filters))
	for k, v := range t.filters {
		out[k] = v
	}
	return out
}

// SetFilter keeps rows whose column value contains value, ignoring case. An empty value removes the filter.
func (t *Table[T]) SetFilter(id, value string) {
	col, ok := t.column(id)
	if !ok || !col.Filterable() {
		return
	}
	if value == "" {
		delete(t.filters, id)
	} else {
		t.filters[id] = value
	}
	t.pageIndex = 0
}

func (t *Table[T]) ResetFilters() {
	t.filters = make(map[string]string)
	t.pageIndex = 0
}

func (t *Table[T]) PageIndex() int {
	return t.pageIndex
}

func (t *Table[T]) PageSize() int {
	return t.pageSize
}

// SetPageIndex moves to page i, clamped to the existing pages.
func (t *Table[T]) SetPageIndex(i int) {
	t.pageIndex = i
	t.clampPage()
}

// SetPageSize changes the page size and keeps the first visible row on screen.
func (t *Table[T]) SetPageSize(n int) {
	if n <= 0 {
		n = DefaultPageSize
	}
	first := t.pageIndex * t.pageSize
	t.pageSize = n
	t.pageIndex = first / n
	t.clampPage()
}

func (t *Table[T]) PageCount() int {
	n := len(t.Rows())
	if n == 0 {
		return 1
	}
	return (n + t.pageSize - 1) / t.pageSize
}

func (t *Table[T]) CanPreviousPage() bool {
	return t.pageIndex > 0
}

func (t *Table[T]) CanNextPage() bool {
	return t.pageIndex < t.PageCount()-1
}

func (t *Table[T]) NextPage() {
	t.SetPageIndex(t.pageIndex + 1)
}

func (t *Table[T]) PreviousPage() {
	t.SetPageIndex(t.pageIndex - 1)
}

// Rows returns the filtered and sorted records, before pagination.
func (t *Table[T]) Rows() []T {
	rows := make([]T, 0, len(t.records))
	for _, r := range t.records {
		if t.matches(r) {
			rows = append(rows, r)
		}
	}
	if len(t.sorting) == 0 {
		return rows
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return t.less(rows[i], rows[j])
	})
	return rows
}

// PageRows returns the records of the current page.
func (t *Table[T]) PageRows() []T {
	rows := t.Rows()
	start := t.pageIndex * t.pageSize
	if start >= len(rows) {
		return rows[:0]
	}
	end := min(start+t.pageSize, len(rows))
	return rows[start:end]
}

func (t *Table[T]) matches(r T) bool {
	for id, value := range t.filters {
		col, ok := t.column(id)
		if !ok {
			continue
		}
		if !strings.Contains(strings.ToLower(col.Accessor(r)), strings.ToLower(value)) {
			return false
		}
	}
	return true
}

func (t *Table[T]) less(a, b T) bool {
	for _, s := range t.sorting {
		col, _ := t.column(s.ID)
		c := CompareAlphanumeric(col.Accessor(a), col.Accessor(b))
		if c == 0 {
			continue
		}
		if s.Desc {
			return c > 0
		}
		return c < 0
	}
	return false
}

func (t *Table[T]) column(id string) (Column[T], bool) {
	i, ok := t.byID[id]
	if !ok {
		return Column[T]{}, false
	}
	return t.columns[i], true
}

func (t *Table[T]) clampPage() {
	if last := t.PageCount() - 1; t.pageIndex > last {
		t.pageIndex = last
	}
	if t.pageIndex < 0 {
		t.pageIndex = 0
	}
}
