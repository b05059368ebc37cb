package sed

// modifier.go defines the Modifier variants and the parser that turns a
// specification string into one of them.
//
// Supported specifications (the "/" may be any character that does not
// occur elsewhere in the spec, e.g. "s|a|b|" equals "s/a/b/"):
//
//	s/REGEX/REPL/FLAGS   substitute (flags: i g m s x l u)
//	y/SRC/DST/FLAGS      transliterate (flags: i)
//	e/COMMAND/FLAGS      pipe through an external command (flags: c)

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// Modifier transforms a single cell value.
//
// The set of variants is closed: *Substitute, *Transliterate, *External and
// Func. Programmatic modifiers are written as a Func.
type Modifier interface {
	Apply(value string) (string, error)
	modifier()
}

// Func is a caller-supplied modifier.
type Func func(value string) (string, error)

// Apply calls f.
func (f Func) Apply(value string) (string, error) { return f(value) }

func (Func) modifier() {}

// Parse parses a modifier specification. The first character selects the
// kind and the second is the field delimiter for the rest of the spec.
func Parse(spec string) (Modifier, error) {
	kind, _ := utf8.DecodeRuneInString(spec)
	switch kind {
	case 's':
		return parseSubstitute(spec)
	case 'y':
		return parseTransliterate(spec)
	case 'e':
		return parseExternal(spec)
	default:
		return nil, invalidSpec(spec, "unknown modifier kind %q", string(kind))
	}
}

// Build converts v into a Modifier. It accepts a spec string, a Modifier,
// or a plain function. Empty strings and nil yield a nil Modifier, which
// means "leave the column alone".
func Build(v any) (Modifier, error) {
	switch m := v.(type) {
	case nil:
		return nil, nil
	case string:
		if m == "" {
			return nil, nil
		}
		return Parse(m)
	case Modifier:
		return m, nil
	case func(string) (string, error):
		if m == nil {
			return nil, nil
		}
		return Func(m), nil
	case func(string) string:
		if m == nil {
			return nil, nil
		}
		return Func(func(s string) (string, error) { return m(s), nil }), nil
	default:
		return nil, fmt.Errorf("unsupported modifier type %T", v)
	}
}

// Close releases resources held by m, if any.
func Close(m Modifier) error {
	if c, ok := m.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// splitSpec splits spec on its delimiter (the second character) and checks
// the field count. minLen is the shortest spec the kind can accept.
func splitSpec(spec string, fields, minLen int) ([]string, error) {
	if utf8.RuneCountInString(spec) < minLen {
		return nil, invalidSpec(spec, "too short")
	}
	_, size := utf8.DecodeRuneInString(spec)
	delim, _ := utf8.DecodeRuneInString(spec[size:])
	parts := strings.Split(spec, string(delim))
	if len(parts) != fields {
		return nil, invalidSpec(spec, "expected %d fields separated by %q, got %d",
			fields, string(delim), len(parts))
	}
	return parts, nil
}
