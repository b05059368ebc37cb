// Package pipeline runs one sed job: it reads the header, resolves the
// selected columns, builds the filter and streams rows to a CSV writer.
// The CLI and the HTTP service share it.
package pipeline

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/JonMunkholm/csvsed/internal/csvio"
	"github.com/JonMunkholm/csvsed/internal/logging"
	"github.com/JonMunkholm/csvsed/internal/sed"
)

// Job describes what to apply and where.
type Job struct {
	// Expr is the modifier spec applied to every selected column.
	Expr string
	// Columns is a csvkit-style selection; empty selects every column.
	Columns string
	// ZeroBased makes numeric column identifiers 0-based.
	ZeroBased bool
	// NoHeader treats the first row as data and generates a, b, c... names.
	NoHeader bool
}

// Prepare reads the header from src and returns a filter ready to stream.
// Errors returned here happen before any output is produced. Empty input
// yields a filter that produces no rows.
func Prepare(ctx context.Context, job Job, src sed.RowReader) (*sed.Filter, error) {
	if job.Expr == "" {
		return nil, &sed.InvalidSpecError{Spec: job.Expr, Reason: "empty expression"}
	}

	first, err := src.Read()
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read header: %w", err)
	}
	empty := errors.Is(err, io.EOF)

	header := first
	var pending [][]string
	if job.NoHeader && !empty {
		header = csvio.DefaultHeader(len(first))
		pending = append(pending, first)
	}

	cols, err := csvio.ParseColumns(job.Columns, header, job.ZeroBased)
	if err != nil {
		return nil, err
	}
	mods := make(sed.ByColumn, len(cols))
	for _, c := range cols {
		mods[sed.ByIndex(c)] = job.Expr
	}

	var replay sed.RowReader = exhausted{}
	if !empty {
		replay = &prepended{rows: append([][]string{header}, pending...), src: src}
	}
	f, err := sed.NewFilter(replay, mods, true)
	if err != nil {
		return nil, err
	}

	logger := logging.WithFields(ctx, "expr", job.Expr)
	table := f.Table()
	logger.Debug("columns resolved",
		"columns", table.Columns(),
		"header_width", len(header),
	)
	for _, c := range table.Columns() {
		if ext, ok := table.Modifier(c).(*sed.External); ok {
			logger.Debug("external modifier ready",
				"column", c,
				"command", ext.Command(),
				"continuous", ext.Continuous(),
			)
		}
	}
	return f, nil
}

// Stream copies f to w, flushing every flushRows rows so consumers see
// output while the job runs. It returns the number of rows written,
// including the header. f is closed on return.
func Stream(ctx context.Context, f *sed.Filter, w *csv.Writer, flushRows int) (int, error) {
	defer f.Close()

	fw := &flushingWriter{w: w, every: flushRows}
	n, err := sed.Copy(ctx, fw, f)
	w.Flush()
	if err != nil {
		return n, err
	}
	if err := w.Error(); err != nil {
		return n, fmt.Errorf("write output: %w", err)
	}
	return n, nil
}

// Run prepares and streams a job in one step.
func Run(ctx context.Context, job Job, src sed.RowReader, w *csv.Writer, flushRows int) (int, error) {
	f, err := Prepare(ctx, job, src)
	if err != nil {
		return 0, err
	}
	return Stream(ctx, f, w, flushRows)
}

// prepended replays rows already pulled from src before continuing with it.
type prepended struct {
	rows [][]string
	src  sed.RowReader
}

func (p *prepended) Read() ([]string, error) {
	if len(p.rows) > 0 {
		row := p.rows[0]
		p.rows = p.rows[1:]
		return row, nil
	}
	return p.src.Read()
}

type exhausted struct{}

func (exhausted) Read() ([]string, error) { return nil, io.EOF }

type flushingWriter struct {
	w     *csv.Writer
	every int
	n     int
}

func (fw *flushingWriter) Write(row []string) error {
	if err := fw.w.Write(row); err != nil {
		return err
	}
	fw.n++
	if fw.every > 0 && fw.n%fw.every == 0 {
		fw.w.Flush()
		return fw.w.Error()
	}
	return nil
}
