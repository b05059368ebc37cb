// Package csvio frames tabular streams for the sed filter: dialect options,
// input decoding, and csvkit-style column selection.
package csvio

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"unicode/utf8"
)

// Format describes the input dialect.
type Format struct {
	// Delimiter separates fields (default ',')
	Delimiter rune
	// Tabs overrides Delimiter with '\t'
	Tabs bool
	// LazyQuotes tolerates quotes inside unquoted fields
	LazyQuotes bool
	// SkipInitialSpace ignores whitespace right after a delimiter
	SkipInitialSpace bool
	// SkipLines drops this many raw lines before parsing (copyright notices etc.)
	SkipLines int
	// Encoding names the input character set (default utf-8)
	Encoding string
}

// OutputFormat describes the output dialect.
type OutputFormat struct {
	Delimiter rune
	Tabs      bool
	CRLF      bool
}

func (f Format) delimiter() rune {
	if f.Tabs {
		return '\t'
	}
	if f.Delimiter == 0 {
		return ','
	}
	return f.Delimiter
}

func (f OutputFormat) delimiter() rune {
	if f.Tabs {
		return '\t'
	}
	if f.Delimiter == 0 {
		return ','
	}
	return f.Delimiter
}

// Reader reads CSV rows from a decoded, byte-counted input. Rows may have
// differing widths.
type Reader struct {
	*csv.Reader
	counter *CountingReader
}

// NewReader prepares r for row reading according to f.
func NewReader(r io.Reader, f Format) (*Reader, error) {
	if !validDelim(f.delimiter()) {
		return nil, fmt.Errorf("invalid delimiter %q", f.delimiter())
	}
	counter := NewCountingReader(r)
	decoded, err := Decode(counter, f.Encoding)
	if err != nil {
		return nil, err
	}

	br := bufio.NewReader(decoded)
	for i := 0; i < f.SkipLines; i++ {
		if _, err := br.ReadString('\n'); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("skip line %d: %w", i+1, err)
		}
	}

	cr := csv.NewReader(br)
	cr.Comma = f.delimiter()
	cr.LazyQuotes = f.LazyQuotes
	cr.TrimLeadingSpace = f.SkipInitialSpace
	cr.FieldsPerRecord = -1
	return &Reader{Reader: cr, counter: counter}, nil
}

// BytesRead returns the number of raw input bytes consumed so far.
func (r *Reader) BytesRead() int64 { return r.counter.BytesRead() }

// NewWriter returns a CSV writer for w. Callers must Flush it.
func NewWriter(w io.Writer, f OutputFormat) (*csv.Writer, error) {
	if !validDelim(f.delimiter()) {
		return nil, fmt.Errorf("invalid output delimiter %q", f.delimiter())
	}
	cw := csv.NewWriter(w)
	cw.Comma = f.delimiter()
	cw.UseCRLF = f.CRLF
	return cw, nil
}

func validDelim(r rune) bool {
	return r != 0 && r != '"' && r != '\r' && r != '\n' && utf8.ValidRune(r) && r != utf8.RuneError
}
