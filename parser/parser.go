// Package parser turns the raw JSON strings served by the minter into display records.
package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dungnh3/most-explorer/internal/models"
	structz "github.com/dungnh3/most-explorer/internal/parser"
	"github.com/dungnh3/most-explorer/utils"
)

const (
	// DateLayout renders DD-MM-YYYY hh:mm:ss on a 12-hour clock without meridiem.
	DateLayout  = "02-01-2006 03:04:05"
	InvalidDate = "Invalid date"
)

type Kind string

const (
	KindMint Kind = "mint"
	KindBurn Kind = "burn"
)

var ErrMissingDate = errors.New("date is missing")

// ParseError reports a raw record that could not be normalized.
type ParseError struct {
	Kind Kind
	// position in the batch, -1 for a single record
	Index int
	Raw   string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("parse %s record: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("parse %s record %d: %v", e.Kind, e.Index, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Normalizer formats dates in a fixed location.
type Normalizer struct {
	loc *time.Location
}

// New returns a Normalizer rendering dates in loc, time.Local when nil.
func New(loc *time.Location) *Normalizer {
	if loc == nil {
		loc = time.Local
	}
	return &Normalizer{loc: loc}
}

func (n *Normalizer) NormalizeMint(raw string) (models.MintedRecord, error) {
	var in structz.RawMint
	if err := json.Unmarshal([]byte(raw), &in); err != nil {
		return models.MintedRecord{}, &ParseError{Kind: KindMint, Index: -1, Raw: raw, Err: err}
	}
	date, err := n.FormatDate(in.Date)
	if err != nil {
		return models.MintedRecord{}, &ParseError{Kind: KindMint, Index: -1, Raw: raw, Err: err}
	}
	return models.MintedRecord{
		BlockIndex: string(in.BlockIndex),
		Date:       date,
		Amount:     string(in.Amount),
		From:       string(in.From),
		To:         string(in.To),
	}, nil
}

func (n *Normalizer) NormalizeBurn(raw string) (models.BurnRecord, error) {
	var in structz.RawBurn
	if err := json.Unmarshal([]byte(raw), &in); err != nil {
		return models.BurnRecord{}, &ParseError{Kind: KindBurn, Index: -1, Raw: raw, Err: err}
	}
	date, err := n.FormatDate(in.Date)
	if err != nil {
		return models.BurnRecord{}, &ParseError{Kind: KindBurn, Index: -1, Raw: raw, Err: err}
	}
	return models.BurnRecord{
		BlockIndex: string(in.BlockIndex),
		Date:       date,
		Amount:     string(in.Amount),
		From:       string(in.From),
		Tx:         string(in.Tx),
	}, nil
}

// NormalizeMints fails the whole batch on the first bad record.
func (n *Normalizer) NormalizeMints(raws []string) ([]models.MintedRecord, error) {
	return normalizeAll(raws, n.NormalizeMint)
}

// NormalizeBurns fails the whole batch on the first bad record.
func (n *Normalizer) NormalizeBurns(raws []string) ([]models.BurnRecord, error) {
	return normalizeAll(raws, n.NormalizeBurn)
}

func normalizeAll[T any](raws []string, one func(string) (T, error)) ([]T, error) {
	out := make([]T, 0, len(raws))
	for i, raw := range raws {
		rec, err := one(raw)
		if err != nil {
			var pe *ParseError
			if errors.As(err, &pe) {
				pe.Index = i
			}
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// FormatDate renders a nanosecond timestamp. A timestamp outside the calendar range renders as InvalidDate,
// a missing or non-integer one is an error.
func (n *Normalizer) FormatDate(v json.RawMessage) (string, error) {
	if len(v) == 0 {
		return "", ErrMissingDate
	}
	ns, err := utils.ParseBigInt(v)
	if err != nil {
		return "", fmt.Errorf("date: %w", err)
	}
	ms, ok := utils.NanosToMillis(ns)
	if !ok {
		return InvalidDate, nil
	}
	return time.UnixMilli(ms).In(n.loc).Format(DateLayout), nil
}
