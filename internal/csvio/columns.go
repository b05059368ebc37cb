package csvio

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/JonMunkholm/csvsed/internal/sed"
)

// ParseColumns resolves a comma-separated column selection against header.
// Each item is a column name, a 1-based (0-based with zeroBased) index, or
// a range "A-B" / "A:B" whose ends default to the first and last column.
// An empty selection means every column. Names take priority over numbers
// only when the name is not purely digits.
func ParseColumns(selection string, header []string, zeroBased bool) ([]int, error) {
	offset := 1
	if zeroBased {
		offset = 0
	}

	if selection == "" {
		cols := make([]int, len(header))
		for i := range cols {
			cols[i] = i
		}
		return cols, nil
	}

	var cols []int
	for _, item := range strings.Split(selection, ",") {
		i, err := matchColumn(item, header, offset)
		if err == nil {
			cols = append(cols, i)
			continue
		}

		lo, hi, ok := splitRange(item)
		if !ok {
			return nil, err
		}
		first, last := offset, len(header)-1+offset
		if lo != "" {
			if first, err = strconv.Atoi(lo); err != nil {
				return nil, badRange(item)
			}
		}
		if hi != "" {
			if last, err = strconv.Atoi(hi); err != nil {
				return nil, badRange(item)
			}
		}
		for n := first; n <= last; n++ {
			i, err := matchColumn(strconv.Itoa(n), header, offset)
			if err != nil {
				return nil, err
			}
			cols = append(cols, i)
		}
	}
	return cols, nil
}

func matchColumn(item string, header []string, offset int) (int, error) {
	if !isDigits(item) {
		if i := slices.Index(header, item); i >= 0 {
			return i, nil
		}
	}
	n, err := strconv.Atoi(item)
	if err != nil {
		return 0, &sed.ColumnConflictError{
			Column: item,
			Index:  -1,
			Reason: fmt.Sprintf("neither an integer nor a column name; column names are: %s", strings.Join(header, ", ")),
		}
	}
	switch i := n - offset; {
	case i < 0:
		return 0, &sed.ColumnConflictError{Column: item, Index: -1, Reason: fmt.Sprintf("columns are %d-based", offset)}
	case i >= len(header):
		reason := "input has no columns"
		if len(header) > 0 {
			reason = fmt.Sprintf("the last column is %q at index %d", header[len(header)-1], len(header)-1+offset)
		}
		return 0, &sed.ColumnConflictError{Column: item, Index: -1, Reason: reason}
	default:
		return i, nil
	}
}

func splitRange(item string) (string, string, bool) {
	if lo, hi, ok := strings.Cut(item, ":"); ok {
		return lo, hi, true
	}
	return strings.Cut(item, "-")
}

func badRange(item string) error {
	return &sed.ColumnConflictError{
		Column: item,
		Index:  -1,
		Reason: "invalid range; ranges must be two integers separated by a - or : character",
	}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// DefaultHeader generates column names for headerless input:
// a, b, ..., z, aa, bb, ..., zz, aaa, ...
func DefaultHeader(width int) []string {
	names := make([]string, width)
	for i := range names {
		names[i] = strings.Repeat(string(rune('a'+i%26)), i/26+1)
	}
	return names
}
