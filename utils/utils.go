package utils

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

var (
	nanosPerMilli = big.NewInt(1_000_000)
	// the widest instant a calendar date can represent, in milliseconds
	maxDateMillis = big.NewInt(8_640_000_000_000_000)
	minDateMillis = new(big.Int).Neg(maxDateMillis)
)

// floatPrec bounds the integers an exponent form can spell, about 300 decimal digits.
const floatPrec = 1024

var ErrNotInteger = errors.New("not an integer")

// ParseBigInt reads a decimal integer given either as a JSON string or a JSON number.
// An exponent form such as 1.7e18 is accepted when its value is integral.
func ParseBigInt(v json.RawMessage) (*big.Int, error) {
	v = bytes.TrimSpace(v)
	if len(v) == 0 || bytes.Equal(v, []byte("null")) {
		return nil, ErrNotInteger
	}
	text := string(v)
	if v[0] == '"' {
		if err := json.Unmarshal(v, &text); err != nil {
			return nil, err
		}
		text = strings.TrimSpace(text)
		// an empty string reads as zero
		if text == "" {
			text = "0"
		}
	}
	if n, ok := new(big.Int).SetString(text, 10); ok {
		return n, nil
	}
	f, _, err := new(big.Float).SetPrec(floatPrec).Parse(text, 10)
	if err != nil || !f.IsInt() || f.MantExp(nil) > floatPrec {
		return nil, fmt.Errorf("%w: %s", ErrNotInteger, v)
	}
	n, _ := f.Int(nil)
	return n, nil
}

// NanosToMillis truncates ns to milliseconds. ok is false when the result is outside
// the representable date range.
func NanosToMillis(ns *big.Int) (ms int64, ok bool) {
	q := new(big.Int).Quo(ns, nanosPerMilli)
	if q.Cmp(maxDateMillis) > 0 || q.Cmp(minDateMillis) < 0 {
		return 0, false
	}
	return q.Int64(), true
}
