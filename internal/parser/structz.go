package parser

import (
	"bytes"
	"encoding/json"
)

// Opaque is a record field displayed as-is. Strings are taken verbatim; numbers, booleans,
// objects and arrays keep their literal JSON text; null reads as empty.
type Opaque string

func (o *Opaque) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
		*o = ""
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*o = Opaque(s)
	default:
		*o = Opaque(b)
	}
	return nil
}

type RawMint struct {
	BlockIndex Opaque          `json:"block_index"`
	Date       json.RawMessage `json:"date"`
	Amount     Opaque          `json:"amount"`
	From       Opaque          `json:"from"`
	To         Opaque          `json:"to"`
}

type RawBurn struct {
	BlockIndex Opaque          `json:"block_index"`
	Date       json.RawMessage `json:"date"`
	Amount     Opaque          `json:"amount"`
	From       Opaque          `json:"from"`
	Tx         Opaque          `json:"tx"`
}
