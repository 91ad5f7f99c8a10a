package dashboard

import (
	"github.com/dungnh3/most-explorer/controller"
	"github.com/dungnh3/most-explorer/internal/models"
	"github.com/dungnh3/most-explorer/table"
)

const (
	// TokenSymbol is the wrapped token every row is denominated in.
	TokenSymbol = "ckSUI"
	amountUnit  = " MIST"
	lowercase   = "lowercase"
)

func lower(text string) table.Cell {
	return table.Cell{Text: text, Class: lowercase}
}

func symbolColumn[T any]() table.Column[T] {
	return table.Column[T]{
		ID:     "token_symbol",
		Header: "Token symbol",
		Render: func(T) table.Cell { return table.Cell{Text: TokenSymbol} },
	}
}

// MintColumns lays out the minted records table.
func MintColumns() []table.Column[models.MintedRecord] {
	return []table.Column[models.MintedRecord]{
		{
			ID:       "block_index",
			Header:   "Block index",
			Accessor: func(r models.MintedRecord) string { return r.BlockIndex },
			Render:   func(r models.MintedRecord) table.Cell { return lower(r.BlockIndex) },
		},
		{
			ID:       "date",
			Header:   "Date",
			Accessor: func(r models.MintedRecord) string { return r.Date },
			Render:   func(r models.MintedRecord) table.Cell { return lower(r.Date) },
		},
		{
			ID:       "amount",
			Header:   "Amount",
			Accessor: func(r models.MintedRecord) string { return r.Amount },
			Render:   func(r models.MintedRecord) table.Cell { return table.Cell{Text: r.Amount + amountUnit} },
		},
		symbolColumn[models.MintedRecord](),
		{
			ID:       "from",
			Header:   "From",
			Accessor: func(r models.MintedRecord) string { return r.From },
			Render:   func(r models.MintedRecord) table.Cell { return lower(r.From) },
		},
		{
			ID:       "to",
			Header:   "To",
			Accessor: func(r models.MintedRecord) string { return r.To },
			Render:   func(r models.MintedRecord) table.Cell { return lower(r.To) },
		},
	}
}

// BurnColumns lays out the finalized burns table. The tx column links to the release transaction.
func BurnColumns() []table.Column[models.BurnRecord] {
	return []table.Column[models.BurnRecord]{
		{
			ID:       "block_index",
			Header:   "Block index",
			Accessor: func(r models.BurnRecord) string { return r.BlockIndex },
			Render:   func(r models.BurnRecord) table.Cell { return lower(r.BlockIndex) },
		},
		{
			ID:       "date",
			Header:   "Date",
			Accessor: func(r models.BurnRecord) string { return r.Date },
			Render:   func(r models.BurnRecord) table.Cell { return lower(r.Date) },
		},
		{
			ID:       "amount",
			Header:   "Amount",
			Accessor: func(r models.BurnRecord) string { return r.Amount },
			Render:   func(r models.BurnRecord) table.Cell { return table.Cell{Text: r.Amount + amountUnit} },
		},
		symbolColumn[models.BurnRecord](),
		{
			ID:       "from",
			Header:   "From",
			Accessor: func(r models.BurnRecord) string { return r.From },
			Render:   func(r models.BurnRecord) table.Cell { return lower(r.From) },
		},
		{
			ID:       "tx",
			Header:   "Tx on SUI",
			Accessor: func(r models.BurnRecord) string { return r.Tx },
			Render: func(r models.BurnRecord) table.Cell {
				return table.Cell{Text: r.Tx, Href: r.Tx, Class: lowercase}
			},
		},
	}
}

// tableStatus maps a lane state onto the table input. A lane that has not started yet shows as loading.
func tableStatus(s controller.State) table.Status {
	switch s {
	case controller.Loaded:
		return table.StatusLoaded
	case controller.Failed:
		return table.StatusFailed
	}
	return table.StatusLoading
}

func buildTable[T any](columns []table.Column[T], lane controller.LaneSnapshot[T], st TableState) *table.Table[T] {
	t := table.New(columns)
	t.SetData(lane.Records, tableStatus(lane.State), lane.Err)
	st.Apply(t)
	return t
}
