package sed

import (
	"strings"
	"unicode"
)

// Transliterate maps characters one to one ("y/SRC/DST/FLAGS").
// Characters outside the source set pass through unchanged.
type Transliterate struct {
	table map[rune]rune
}

func (*Transliterate) modifier() {}

func parseTransliterate(spec string) (*Transliterate, error) {
	parts, err := splitSpec(spec, 4, 4)
	if err != nil {
		return nil, err
	}
	src, dst := ExpandRanges(parts[1]), ExpandRanges(parts[2])
	if strings.ContainsRune(strings.ToLower(parts[3]), 'i') {
		src = append(mapRunes(src, unicode.ToLower), mapRunes(src, unicode.ToUpper)...)
		dst = append(append([]rune{}, dst...), dst...)
	}
	if len(src) != len(dst) {
		return nil, invalidSpec(spec, "source and destination differ in length (%d != %d)",
			len(src), len(dst))
	}
	return NewTransliterate(src, dst), nil
}

// NewTransliterate builds a transliteration from already expanded sets of
// equal length. When a source character repeats, its first position wins.
func NewTransliterate(src, dst []rune) *Transliterate {
	table := make(map[rune]rune, len(src))
	for i, r := range src {
		if _, seen := table[r]; !seen {
			table[r] = dst[i]
		}
	}
	return &Transliterate{table: table}
}

// Apply maps every character of value through the table.
func (t *Transliterate) Apply(value string) (string, error) {
	return strings.Map(func(r rune) rune {
		if m, ok := t.table[r]; ok {
			return m
		}
		return r
	}, value), nil
}

// ExpandRanges expands a character set. "a-f" becomes "abcdef"; a dash that
// starts or ends the set is literal, as is any character after a backslash
// ("a\-f" is "a-f", "\\" is a backslash).
func ExpandRanges(set string) []rune {
	in := []rune(set)
	out := make([]rune, 0, len(in))
	for i := 0; i < len(in); i++ {
		c := in[i]
		if c == '-' && len(out) > 0 && i+1 < len(in) {
			i++
			for r := out[len(out)-1] + 1; r <= in[i]; r++ {
				out = append(out, r)
			}
			continue
		}
		if c == '\\' && i+1 < len(in) {
			i++
			c = in[i]
		}
		out = append(out, c)
	}
	return out
}

func mapRunes(rs []rune, f func(rune) rune) []rune {
	out := make([]rune, len(rs))
	for i, r := range rs {
		out[i] = f(r)
	}
	return out
}
