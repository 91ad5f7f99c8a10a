package table

import (
	"strings"
)

// CompareAlphanumeric orders a and b case-insensitively, comparing runs of digits by numeric value and
// other runs as text. A text run sorts before a digit run at the same position.
func CompareAlphanumeric(a, b string) int {
	ac := splitRuns(strings.ToLower(a))
	bc := splitRuns(strings.ToLower(b))
	for len(ac) > 0 && len(bc) > 0 {
		x, y := ac[0], bc[0]
		ac, bc = ac[1:], bc[1:]
		xNum, yNum := isDigit(x[0]), isDigit(y[0])
		switch {
		case !xNum && !yNum:
			if c := strings.Compare(x, y); c != 0 {
				return c
			}
		case xNum != yNum:
			if xNum {
				return 1
			}
			return -1
		default:
			if c := compareDigits(x, y); c != 0 {
				return c
			}
		}
	}
	return sign(len(ac) - len(bc))
}

// splitRuns cuts s into alternating non-empty digit and non-digit runs.
func splitRuns(s string) []string {
	var runs []string
	start := 0
	for i := 1; i <= len(s); i++ {
		if i == len(s) || isDigit(s[i]) != isDigit(s[start]) {
			runs = append(runs, s[start:i])
			start = i
		}
	}
	return runs
}

// compareDigits compares two runs of ASCII digits of any length by value.
func compareDigits(x, y string) int {
	x = strings.TrimLeft(x, "0")
	y = strings.TrimLeft(y, "0")
	if len(x) != len(y) {
		return sign(len(x) - len(y))
	}
	return strings.Compare(x, y)
}

func isDigit(b byte) bool {
	return '0' <= b && b <= '9'
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	}
	return 0
}
