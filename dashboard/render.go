package dashboard

import (
	"net/url"
	"sort"

	"github.com/dungnh3/most-explorer/controller"
	"github.com/dungnh3/most-explorer/table"
)

const (
	PageTitle  = "Minter explorer"
	MintTitle  = "Minted ckSui tokens"
	BurnTitle  = "Finalized transactions ckSUI -> SUI"
	AppTitle   = "Most Explorer"
	refreshSec = 1
)

type headerData struct {
	table.Header
	// toggles the sorting of this column, empty when not sortable
	SortLink string
}

type tableData struct {
	Prefix  string
	Title   string
	State   string
	View    table.View
	Headers []headerData
	// query parameters the filter form has to carry over
	Hidden   []hiddenField
	PrevLink string
	NextLink string
}

type hiddenField struct {
	Name  string
	Value string
}

type pageData struct {
	AppTitle string
	Title    string
	ViewID   string
	Refresh  int
	Tables   []tableData
}

// tableJSON is the body of the per-table endpoints.
type tableJSON struct {
	Lane  controller.Lane `json:"lane"`
	State string          `json:"state"`
	table.View
}

func renderTable[T any](path string, q url.Values, prefix, title string, columns []table.Column[T],
	lane controller.LaneSnapshot[T], pageSize int) tableData {
	st := ParseState(q, prefix, pageSize)
	t := buildTable(columns, lane, st)
	current := stateOf(t)

	data := tableData{
		Prefix: prefix,
		Title:  title,
		State:  lane.State.String(),
		View:   t.Render(),
	}

	// a scratch table without data computes the next sort order of every header
	for _, h := range data.View.Headers {
		hd := headerData{Header: h}
		if h.Sortable {
			scratch := table.New(columns)
			scratch.SetSorting(current.Sorting)
			scratch.ToggleSorting(h.ID, false)
			next := current
			next.Sorting = scratch.Sorting()
			next.Page = 0
			hd.SortLink = link(path, q, prefix, next)
		}
		data.Headers = append(data.Headers, hd)
	}

	// step the table itself so the links carry its clamped page, then step back
	if data.View.CanPrev {
		t.PreviousPage()
		data.PrevLink = link(path, q, prefix, stateOf(t))
		t.NextPage()
	}
	if data.View.CanNext {
		t.NextPage()
		data.NextLink = link(path, q, prefix, stateOf(t))
		t.PreviousPage()
	}

	// the filter form replaces this table's filters and page, everything else is kept
	keep := TableState{Sorting: current.Sorting, Size: current.Size}
	hidden := cloneValues(q)
	keep.Encode(hidden, prefix)
	for name, values := range hidden {
		for _, v := range values {
			data.Hidden = append(data.Hidden, hiddenField{Name: name, Value: v})
		}
	}
	sortHidden(data.Hidden)
	return data
}

func link(path string, q url.Values, prefix string, st TableState) string {
	next := cloneValues(q)
	st.Encode(next, prefix)
	if len(next) == 0 {
		return path
	}
	return path + "?" + next.Encode()
}

func cloneValues(q url.Values) url.Values {
	out := make(url.Values, len(q))
	for k, v := range q {
		out[k] = append([]string(nil), v...)
	}
	return out
}

func sortHidden(fields []hiddenField) {
	sort.SliceStable(fields, func(i, j int) bool { return fields[i].Name < fields[j].Name })
}
