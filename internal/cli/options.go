package cli

import (
	"fmt"
	"unicode/utf8"

	"github.com/JonMunkholm/csvsed/internal/csvio"
	"github.com/JonMunkholm/csvsed/internal/pipeline"
)

// Options are the csvsed command line flags.
type Options struct {
	Columns     string `short:"c" long:"columns" value-name:"COLUMNS" description:"Comma-separated column names, 1-based indices or ranges (2-4, 2:4) to modify; default all"`
	Zero        bool   `long:"zero" description:"Treat column indices as 0-based"`
	NoHeaderRow bool   `short:"H" long:"no-header-row" description:"The input has no header row; columns are named a, b, c..."`

	Delimiter        string `short:"d" long:"delimiter" value-name:"CHAR" description:"Input field delimiter"`
	Tabs             bool   `short:"t" long:"tabs" description:"Input is tab-delimited"`
	SkipInitialSpace bool   `short:"S" long:"skipinitialspace" description:"Ignore whitespace immediately following the delimiter"`
	SkipLines        int    `short:"K" long:"skip-lines" value-name:"N" description:"Skip N lines before the header"`
	LazyQuotes       bool   `long:"lazy-quotes" description:"Allow quotes inside unquoted fields"`
	Encoding         string `short:"e" long:"encoding" value-name:"NAME" default:"utf-8" description:"Input encoding (any WHATWG label)"`

	OutDelimiter string `short:"D" long:"out-delimiter" value-name:"CHAR" description:"Output field delimiter"`
	OutTabs      bool   `short:"T" long:"out-tabs" description:"Write tab-delimited output"`
	CRLF         bool   `long:"crlf" description:"End output lines with CRLF"`

	Query string `long:"query" value-name:"SQL" description:"Read rows from a PostgreSQL query instead of FILE"`
	DBURL string `long:"db-url" value-name:"URL" description:"PostgreSQL URL for --query (default DATABASE_URL)"`

	Verbose   bool   `short:"v" long:"verbose" description:"Debug logging on stderr"`
	LogFormat string `long:"log-format" choice:"text" choice:"json" default:"text" description:"Log format"`

	Args struct {
		Expr string `positional-arg-name:"EXPR" description:"s/REGEX/REPL/FLAGS, y/SRC/DST/ or e/COMMAND/[c]"`
		File string `positional-arg-name:"FILE" description:"Input path or URL; - or absent for stdin"`
	} `positional-args:"yes"`
}

// usageError marks invalid invocations (exit status 1).
type usageError struct{ msg string }

func (e *usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return &usageError{fmt.Sprintf(format, args...)}
}

// job converts the options into a pipeline job.
func (o *Options) job() (pipeline.Job, error) {
	if o.Args.Expr == "" {
		return pipeline.Job{}, usagef("missing EXPR argument")
	}
	return pipeline.Job{
		Expr:      o.Args.Expr,
		Columns:   o.Columns,
		ZeroBased: o.Zero,
		NoHeader:  o.NoHeaderRow,
	}, nil
}

func (o *Options) inputFormat() (csvio.Format, error) {
	delim, err := delimiter("--delimiter", o.Delimiter)
	if err != nil {
		return csvio.Format{}, err
	}
	if o.SkipLines < 0 {
		return csvio.Format{}, usagef("--skip-lines must not be negative")
	}
	return csvio.Format{
		Delimiter:        delim,
		Tabs:             o.Tabs,
		LazyQuotes:       o.LazyQuotes,
		SkipInitialSpace: o.SkipInitialSpace,
		SkipLines:        o.SkipLines,
		Encoding:         o.Encoding,
	}, nil
}

func (o *Options) outputFormat() (csvio.OutputFormat, error) {
	delim, err := delimiter("--out-delimiter", o.OutDelimiter)
	if err != nil {
		return csvio.OutputFormat{}, err
	}
	return csvio.OutputFormat{Delimiter: delim, Tabs: o.OutTabs, CRLF: o.CRLF}, nil
}

func delimiter(flag, v string) (rune, error) {
	switch {
	case v == "":
		return 0, nil
	case v == "tab" || v == `\t`:
		return '\t', nil
	case utf8.RuneCountInString(v) != 1:
		return 0, usagef("%s must be a single character, got %q", flag, v)
	}
	r, _ := utf8.DecodeRuneInString(v)
	return r, nil
}
