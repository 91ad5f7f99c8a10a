package dashboard

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/google/go-querystring/query"

	"github.com/dungnh3/most-explorer/table"
)

const (
	mintPrefix  = "mint"
	burnPrefix  = "burn"
	maxPageSize = 100
)

// TableState is the view state of one table carried in the query string, e.g.
// mint.sort=date:desc,block_index&mint.page=2&mint.size=25&mint.f.from=0xa
type TableState struct {
	Sorting []table.SortSpec
	Filters map[string]string
	// 1-based, 0 means the first page
	Page int
	Size int
}

// ParseState reads the state of the table named prefix.
func ParseState(q url.Values, prefix string, defaultSize int) TableState {
	st := TableState{Filters: make(map[string]string), Size: defaultSize}
	if raw := q.Get(prefix + ".sort"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			id, dir, _ := strings.Cut(strings.TrimSpace(part), ":")
			if id == "" {
				continue
			}
			st.Sorting = append(st.Sorting, table.SortSpec{ID: id, Desc: strings.EqualFold(dir, "desc")})
		}
	}
	if n, err := strconv.Atoi(q.Get(prefix + ".page")); err == nil && n > 0 {
		st.Page = n
	}
	if n, err := strconv.Atoi(q.Get(prefix + ".size")); err == nil && n > 0 {
		st.Size = min(n, maxPageSize)
	}
	filterPrefix := prefix + ".f."
	for key, values := range q {
		if id, ok := strings.CutPrefix(key, filterPrefix); ok && id != "" && len(values) > 0 && values[0] != "" {
			st.Filters[id] = values[0]
		}
	}
	return st
}

// Apply loads the state into t. Sorting and filters go first because changing them resets the page.
func (st TableState) Apply(t tableState) {
	if st.Size > 0 {
		t.SetPageSize(st.Size)
	}
	t.SetSorting(st.Sorting)
	t.ResetFilters()
	for id, v := range st.Filters {
		t.SetFilter(id, v)
	}
	if st.Page > 0 {
		t.SetPageIndex(st.Page - 1)
	}
}

// tableState is the part of table.Table the query string drives.
type tableState interface {
	SetPageSize(n int)
	SetSorting(specs []table.SortSpec)
	ResetFilters()
	SetFilter(id, value string)
	SetPageIndex(i int)
}

// stateQuery is the query string form of a TableState, under the table prefix.
type stateQuery struct {
	Sort string `url:"sort,omitempty"`
	Page int    `url:"page,omitempty"`
	Size int    `url:"size,omitempty"`
}

// Encode writes the state of the table named prefix into q, replacing what was there.
func (st TableState) Encode(q url.Values, prefix string) {
	for key := range q {
		if strings.HasPrefix(key, prefix+".") {
			q.Del(key)
		}
	}
	sq := stateQuery{Size: max(st.Size, 0)}
	if len(st.Sorting) > 0 {
		parts := make([]string, len(st.Sorting))
		for i, s := range st.Sorting {
			parts[i] = s.ID
			if s.Desc {
				parts[i] += ":desc"
			}
		}
		sq.Sort = strings.Join(parts, ",")
	}
	// the first page is the default and stays out of links
	if st.Page > 1 {
		sq.Page = st.Page
	}
	values, _ := query.Values(sq)
	for key, v := range values {
		q[prefix+"."+key] = v
	}
	for id, v := range st.Filters {
		q.Set(prefix+".f."+id, v)
	}
}

// stateOf reads the effective state back from a table after clamping.
func stateOf[T any](t *table.Table[T]) TableState {
	return TableState{
		Sorting: t.Sorting(),
		Filters: t.Filters(),
		Page:    t.PageIndex() + 1,
		Size:    t.PageSize(),
	}
}
