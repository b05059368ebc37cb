// Package cli implements the csvsed command:
//
//	csvsed [options] EXPR [FILE]
//
// It applies EXPR to the selected columns of a CSV stream and writes the
// result to stdout, header first. Logs go to stderr.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	flags "github.com/jessevdk/go-flags"

	"github.com/JonMunkholm/csvsed/internal/config"
	"github.com/JonMunkholm/csvsed/internal/csvio"
	"github.com/JonMunkholm/csvsed/internal/logging"
	"github.com/JonMunkholm/csvsed/internal/pipeline"
	"github.com/JonMunkholm/csvsed/internal/sed"
	"github.com/JonMunkholm/csvsed/internal/source"
)

// Exit statuses.
const (
	ExitOK      = 0
	ExitUsage   = 1 // bad arguments, expression or column selection
	ExitRuntime = 2 // input, output, subprocess or database failure
)

// Run executes csvsed with args (without the program name) and returns the
// exit status.
func Run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var opts Options
	parser := flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash)
	parser.Name = "csvsed"
	parser.Usage = "[options] EXPR [FILE]"

	if _, err := parser.ParseArgs(args); err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			fmt.Fprintln(stdout, err)
			return ExitOK
		}
		fmt.Fprintf(stderr, "csvsed: %v\n", err)
		return ExitUsage
	}

	cfg, err := config.LoadCLI()
	if err != nil {
		fmt.Fprintf(stderr, "csvsed: %v\n", err)
		return ExitUsage
	}
	level := cfg.Logging.Level
	if opts.Verbose {
		level = "debug"
	}
	logging.Setup(level, opts.LogFormat, stderr)

	sed.Shell = cfg.Sed.Shell
	sed.CloseGrace = cfg.Sed.CloseGrace

	ctx = logging.WithJobID(ctx, uuid.NewString())
	logger := logging.FromContext(ctx)

	rows, err := run(ctx, &opts, cfg, stdin, stdout)
	if err != nil {
		logger.Debug("run failed", "rows", rows, "error", err)
		fmt.Fprintf(stderr, "csvsed: %v\n", err)
		return exitStatus(err)
	}
	logger.Debug("run finished", "rows", rows)
	return ExitOK
}

func run(ctx context.Context, opts *Options, cfg *config.Config, stdin io.Reader, stdout io.Writer) (int, error) {
	job, err := opts.job()
	if err != nil {
		return 0, err
	}
	outFormat, err := opts.outputFormat()
	if err != nil {
		return 0, err
	}
	out, err := csvio.NewWriter(stdout, outFormat)
	if err != nil {
		return 0, usagef("%v", err)
	}

	var src sed.RowReader
	if opts.Query != "" {
		q, closeFn, err := openQuery(ctx, opts, cfg)
		if err != nil {
			return 0, err
		}
		defer closeFn()
		src = q
	} else {
		inFormat, err := opts.inputFormat()
		if err != nil {
			return 0, err
		}
		rc, err := source.Open(ctx, opts.Args.File, stdin)
		if err != nil {
			return 0, err
		}
		defer rc.Close()
		r, err := csvio.NewReader(rc, inFormat)
		if err != nil {
			return 0, usagef("%v", err)
		}
		src = r
	}

	return pipeline.Run(ctx, job, src, out, cfg.Sed.FlushRows)
}

func openQuery(ctx context.Context, opts *Options, cfg *config.Config) (sed.RowReader, func(), error) {
	if opts.Args.File != "" && opts.Args.File != source.Stdin {
		return nil, nil, usagef("--query and FILE are mutually exclusive")
	}
	dbURL := opts.DBURL
	if dbURL == "" {
		dbURL = cfg.Database.URL
	}
	if dbURL == "" {
		return nil, nil, usagef("--query needs --db-url or DATABASE_URL")
	}

	pool, err := source.Connect(ctx, dbURL, source.PoolConfig{
		MaxConns:        cfg.Database.MaxConns,
		MinConns:        cfg.Database.MinConns,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
	})
	if err != nil {
		return nil, nil, err
	}
	logging.FromContext(ctx).Debug("connected to database", "name", source.DatabaseName(dbURL))

	q, err := source.Query(ctx, pool, opts.Query)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	logging.FromContext(ctx).Debug("query started", "columns", q.Header())
	return q, func() {
		q.Close()
		pool.Close()
	}, nil
}

func exitStatus(err error) int {
	var (
		uerr *usageError
		serr *sed.InvalidSpecError
		cerr *sed.ColumnConflictError
	)
	if errors.As(err, &uerr) || errors.As(err, &serr) || errors.As(err, &cerr) {
		return ExitUsage
	}
	return ExitRuntime
}
