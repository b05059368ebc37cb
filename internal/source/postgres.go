package source

import (
	"context"
	"database/sql/driver"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Querier is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type Querier interface {
	Query(context.Context, string, ...any) (pgx.Rows, error)
}

// PoolConfig tunes the connection pool used for query sources.
type PoolConfig struct {
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Connect opens and pings a PostgreSQL pool.
func Connect(ctx context.Context, databaseURL string, cfg PoolConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = int32(cfg.MinConns)
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// DatabaseName extracts the database name from a connection URL for logging.
func DatabaseName(databaseURL string) string {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Path, "/")
}

// QueryReader streams a result set as text rows. The first row is the list
// of result column names.
type QueryReader struct {
	rows       pgx.Rows
	header     []string
	headerSent bool
	done       bool
}

// Query runs sql against db and returns a row reader over its results.
func Query(ctx context.Context, db Querier, sql string, args ...any) (*QueryReader, error) {
	rows, err := db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	fields := rows.FieldDescriptions()
	header := make([]string, len(fields))
	for i, f := range fields {
		header[i] = f.Name
	}
	return &QueryReader{rows: rows, header: header}, nil
}

// Header returns the result column names.
func (q *QueryReader) Header() []string { return q.header }

// Read returns the header, then one formatted row per call, then io.EOF.
func (q *QueryReader) Read() ([]string, error) {
	if !q.headerSent {
		q.headerSent = true
		return append([]string(nil), q.header...), nil
	}
	if q.done {
		return nil, io.EOF
	}
	if !q.rows.Next() {
		q.done = true
		q.rows.Close()
		if err := q.rows.Err(); err != nil {
			return nil, fmt.Errorf("query: %w", err)
		}
		return nil, io.EOF
	}
	values, err := q.rows.Values()
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	record := make([]string, len(values))
	for i, v := range values {
		if record[i], err = formatCell(v); err != nil {
			return nil, fmt.Errorf("query: column %q: %w", q.header[i], err)
		}
	}
	return record, nil
}

// Close releases the result set.
func (q *QueryReader) Close() error {
	q.done = true
	q.rows.Close()
	return nil
}

// formatCell renders a decoded column value as CSV text. NULL is "".
func formatCell(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "", nil
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	case bool:
		return strconv.FormatBool(x), nil
	case time.Time:
		return x.Format(time.RFC3339Nano), nil
	case [16]byte:
		return uuid.UUID(x).String(), nil
	case fmt.Stringer:
		return x.String(), nil
	case driver.Valuer:
		dv, err := x.Value()
		if err != nil {
			return "", err
		}
		return formatCell(dv)
	default:
		return fmt.Sprint(x), nil
	}
}
