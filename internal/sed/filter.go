// Package sed applies sed-like modifiers to the columns of a stream of
// tabular rows.
//
// A Filter wraps an upstream RowReader, rewrites the configured cells of
// each row as it is pulled, and hands the row on. Only one row is held at a
// time, so memory use does not depend on input size:
//
//	f, err := sed.NewFilter(csvReader, sed.ByColumn{
//	    sed.ByName("price"): "s/,//g",
//	    sed.ByIndex(0):      "y/a-z/A-Z/",
//	}, true)
//	if err != nil {
//	    return err
//	}
//	defer f.Close()
//	n, err := sed.Copy(ctx, csvWriter, f)
package sed

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// ContextCheckInterval is how often (in rows) Copy checks for cancellation.
var ContextCheckInterval = 100

// RowReader is an upstream row source. Read returns io.EOF once the source
// is exhausted. *csv.Reader satisfies it.
type RowReader interface {
	Read() ([]string, error)
}

// RowWriter is a downstream row sink. *csv.Writer satisfies it.
type RowWriter interface {
	Write(row []string) error
}

type filterState int

const (
	stateHeader    filterState = iota // header read, not yet emitted
	stateStreaming                    // passing rows through
	stateExhausted                    // upstream done or failed
)

// Filter is a forward-only row stream that applies a modifier Table to
// every row it reads. A Filter is not safe for concurrent use.
type Filter struct {
	src    RowReader
	table  *Table
	header []string
	state  filterState
	line   int
	err    error
	closed bool
}

// NewFilter builds a Filter over src. With header set, the first row is
// read immediately, used to resolve column names, and later emitted
// unmodified as the first row. Any modifier resources already acquired are
// released if construction fails.
func NewFilter(src RowReader, mods Modifiers, header bool) (*Filter, error) {
	f := &Filter{src: src, state: stateStreaming}
	if header {
		row, err := src.Read()
		switch {
		case err == nil:
			f.line++
			f.header = row
			f.state = stateHeader
		case errors.Is(err, io.EOF):
			// no header and no rows: name lookups fail below, index
			// modifiers never run
			f.state = stateExhausted
			f.err = io.EOF
		default:
			return nil, fmt.Errorf("read header: %w", err)
		}
	}

	table, err := Resolve(f.header, mods)
	if err != nil {
		return nil, err
	}
	f.table = table
	if f.state == stateExhausted {
		f.release()
	}
	return f, nil
}

// Header returns the header row, or nil when the filter was built without
// one.
func (f *Filter) Header() []string { return f.header }

// Table returns the resolved modifier table.
func (f *Filter) Table() *Table { return f.table }

// Line returns the number of rows consumed from upstream so far.
func (f *Filter) Line() int { return f.line }

// Read returns the next row. The header, if any, comes first and is never
// modified. After the upstream source is exhausted or an error occurs,
// every later call returns the same error (io.EOF at the normal end), and
// modifier resources have been released.
func (f *Filter) Read() ([]string, error) {
	switch f.state {
	case stateExhausted:
		return nil, f.err
	case stateHeader:
		f.state = stateStreaming
		return f.header, nil
	}

	row, err := f.src.Read()
	if err != nil {
		return nil, f.finish(err)
	}
	f.line++
	if err := f.table.Apply(row, f.line); err != nil {
		return nil, f.finish(err)
	}
	return row, nil
}

func (f *Filter) finish(err error) error {
	f.state = stateExhausted
	f.err = err
	if cerr := f.release(); cerr != nil && errors.Is(err, io.EOF) {
		f.err = cerr
	}
	return f.err
}

func (f *Filter) release() error {
	if f.closed {
		return nil
	}
	f.closed = true
	return f.table.Close()
}

// Close releases modifier resources. It is safe to call more than once and
// after the stream has ended.
func (f *Filter) Close() error {
	if f.state != stateExhausted {
		f.state = stateExhausted
		f.err = errors.New("sed: read from closed filter")
	}
	return f.release()
}

// Copy pulls rows from src and writes them to dst until src is exhausted,
// returning the number of rows written.
func Copy(ctx context.Context, dst RowWriter, src RowReader) (int, error) {
	n := 0
	for {
		if ContextCheckInterval > 0 && n%ContextCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return n, fmt.Errorf("cancelled after %d rows: %w", n, err)
			}
		}
		row, err := src.Read()
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		if err := dst.Write(row); err != nil {
			return n, fmt.Errorf("write row %d: %w", n+1, err)
		}
		n++
	}
}
