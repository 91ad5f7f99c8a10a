package table

// Mode is what the body of a rendered table shows.
type Mode string

const (
	ModeBusy   Mode = "busy"
	ModeFailed Mode = "failed"
	ModeEmpty  Mode = "empty"
	ModeRows   Mode = "rows"
)

const NoResults = "No results."

type Header struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	Sortable   bool   `json:"sortable"`
	Filterable bool   `json:"filterable"`
	// "asc", "desc" or empty
	Sort      string `json:"sort,omitempty"`
	SortIndex int    `json:"sort_index"`
	Filter    string `json:"filter,omitempty"`
}

// View is a table rendered for display.
type View struct {
	Mode    Mode     `json:"mode"`
	Headers []Header `json:"headers"`
	Rows    [][]Cell `json:"rows"`
	// status line of the busy, failed and empty modes
	Message string `json:"message,omitempty"`

	PageIndex int  `json:"page_index"`
	PageCount int  `json:"page_count"`
	PageSize  int  `json:"page_size"`
	TotalRows int  `json:"total_rows"`
	CanPrev   bool `json:"can_prev"`
	CanNext   bool `json:"can_next"`
}

func (t *Table[T]) Render() View {
	v := View{
		Headers:   t.headers(),
		Rows:      [][]Cell{},
		PageIndex: t.pageIndex,
		PageSize:  t.pageSize,
	}
	switch t.status {
	case StatusLoading:
		v.Mode = ModeBusy
		v.Message = "Loading..."
		v.PageCount = 1
		return v
	case StatusFailed:
		v.Mode = ModeFailed
		v.Message = "Failed to load."
		if t.err != nil {
			v.Message = "Failed to load: " + t.err.Error()
		}
		v.PageCount = 1
		return v
	}

	rows := t.Rows()
	v.TotalRows = len(rows)
	v.PageCount = t.PageCount()
	v.CanPrev = t.CanPreviousPage()
	v.CanNext = t.CanNextPage()
	if len(rows) == 0 {
		v.Mode = ModeEmpty
		v.Message = NoResults
		return v
	}

	v.Mode = ModeRows
	for _, r := range t.PageRows() {
		cells := make([]Cell, len(t.columns))
		for i, c := range t.columns {
			cells[i] = c.cell(r)
		}
		v.Rows = append(v.Rows, cells)
	}
	return v
}

func (t *Table[T]) headers() []Header {
	headers := make([]Header, len(t.columns))
	for i, c := range t.columns {
		dir, pos := t.SortDirection(c.ID)
		headers[i] = Header{
			ID:         c.ID,
			Text:       c.Header,
			Sortable:   c.Sortable(),
			Filterable: c.Filterable(),
			Sort:       dir,
			SortIndex:  pos,
			Filter:     t.filters[c.ID],
		}
	}
	return headers
}
