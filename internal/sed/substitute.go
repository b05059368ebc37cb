package sed

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Substitute replaces regular expression matches ("s/REGEX/REPL/FLAGS").
type Substitute struct {
	re     *regexp.Regexp
	tmpl   string // replacement in regexp.Expand syntax
	global bool
}

func (*Substitute) modifier() {}

func parseSubstitute(spec string) (*Substitute, error) {
	parts, err := splitSpec(spec, 4, 4)
	if err != nil {
		return nil, err
	}
	pattern, repl, flags := parts[1], parts[2], strings.ToLower(parts[3])

	var inline strings.Builder
	for _, f := range flags {
		switch f {
		case 'i', 'm', 's':
			if !strings.ContainsRune(inline.String(), f) {
				inline.WriteRune(f)
			}
		case 'x':
			pattern = stripVerbose(pattern)
		}
		// 'l' and 'u' are accepted for compatibility; Go regexps are always
		// UTF-8 aware and have no locale mode. Other letters are ignored.
	}
	if inline.Len() > 0 {
		pattern = "(?" + inline.String() + ")" + pattern
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, invalidSpec(spec, "bad regular expression: %v", err)
	}
	tmpl, err := translateReplacement(repl, re)
	if err != nil {
		return nil, invalidSpec(spec, "%v", err)
	}
	return &Substitute{
		re:     re,
		tmpl:   tmpl,
		global: strings.ContainsRune(flags, 'g'),
	}, nil
}

// Apply replaces the first match, or every match with the g flag.
func (s *Substitute) Apply(value string) (string, error) {
	if s.global {
		return s.re.ReplaceAllString(value, s.tmpl), nil
	}
	loc := s.re.FindStringSubmatchIndex(value)
	if loc == nil {
		return value, nil
	}
	var b strings.Builder
	b.Grow(len(value))
	b.WriteString(value[:loc[0]])
	b.Write(s.re.ExpandString(nil, s.tmpl, value, loc))
	b.WriteString(value[loc[1]:])
	return b.String(), nil
}

// translateReplacement rewrites a replacement written with backslash
// references (\1, \g<1>, \g<name>) into regexp.Expand syntax. Literal "$"
// is escaped. References to groups the pattern does not have and unknown
// letter escapes such as \d are errors.
func translateReplacement(repl string, re *regexp.Regexp) (string, error) {
	var b strings.Builder
	ref := func(name string) error {
		if n, err := strconv.Atoi(name); err == nil {
			if n > re.NumSubexp() {
				return &replError{"invalid group reference " + name}
			}
		} else if re.SubexpIndex(name) < 0 {
			return &replError{"unknown group name " + name}
		}
		b.WriteString("${" + name + "}")
		return nil
	}

	for i := 0; i < len(repl); i++ {
		c := repl[i]
		if c == '$' {
			b.WriteString("$$")
			continue
		}
		if c != '\\' || i+1 == len(repl) {
			b.WriteByte(c)
			continue
		}
		i++
		switch n := repl[i]; {
		case n >= '1' && n <= '9':
			j := i + 1
			if j < len(repl) && unicode.IsDigit(rune(repl[j])) {
				j++
			}
			if err := ref(repl[i:j]); err != nil {
				return "", err
			}
			i = j - 1
		case n == '0':
			b.WriteByte(0)
		case n == 'g':
			end := strings.IndexByte(repl[i:], '>')
			if i+1 >= len(repl) || repl[i+1] != '<' || end < 0 {
				return "", &replError{"malformed \\g<...> reference"}
			}
			if err := ref(repl[i+2 : i+end]); err != nil {
				return "", err
			}
			i += end
		case n == 'n':
			b.WriteByte('\n')
		case n == 't':
			b.WriteByte('\t')
		case n == 'r':
			b.WriteByte('\r')
		case n == 'a':
			b.WriteByte('\a')
		case n == 'b':
			b.WriteByte('\b')
		case n == 'f':
			b.WriteByte('\f')
		case n == 'v':
			b.WriteByte('\v')
		case n == '\\':
			b.WriteByte('\\')
		case n < utf8.RuneSelf && unicode.IsLetter(rune(n)):
			return "", &replError{fmt.Sprintf("bad escape \\%c", n)}
		default:
			b.WriteByte('\\')
			b.WriteByte(n)
		}
	}
	return b.String(), nil
}

type replError struct{ msg string }

func (e *replError) Error() string { return "bad replacement: " + e.msg }

// stripVerbose drops unescaped whitespace and #-comments outside character
// classes, giving extended ("x" flag) patterns their plain meaning.
func stripVerbose(pattern string) string {
	var b strings.Builder
	inClass := false
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		switch {
		case c == '\\' && i+1 < len(pattern):
			i++
			if !isSpace(pattern[i]) {
				b.WriteByte(c)
			}
			b.WriteByte(pattern[i])
		case inClass:
			if c == ']' {
				inClass = false
			}
			b.WriteByte(c)
		case c == '[':
			inClass = true
			b.WriteByte(c)
			// a leading ']' (or '^]') is literal inside the class
			if i+1 < len(pattern) && pattern[i+1] == '^' {
				b.WriteByte('^')
				i++
			}
			if i+1 < len(pattern) && pattern[i+1] == ']' {
				b.WriteByte(']')
				i++
			}
		case c == '#':
			for i+1 < len(pattern) && pattern[i+1] != '\n' {
				i++
			}
		case isSpace(c):
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v'
}
