package web

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/JonMunkholm/csvsed/internal/csvio"
	"github.com/JonMunkholm/csvsed/internal/logging"
	"github.com/JonMunkholm/csvsed/internal/pipeline"
)

// Trailers reported after a streamed body.
const (
	trailerRows  = "X-Sed-Rows"
	trailerError = "X-Sed-Error"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSONStatus(w, http.StatusOK, map[string]string{"status": "ok"})
}

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	UptimeSeconds int64            `json:"uptime_seconds"`
	Jobs          JobLimiterStatus `json:"jobs"`
	AllowExternal bool             `json:"allow_external"`
	MaxBodySize   int64            `json:"max_body_size"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSONStatus(w, http.StatusOK, StatusResponse{
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		Jobs:          s.jobs.Status(),
		AllowExternal: s.cfg.Sed.AllowExternal,
		MaxBodySize:   s.cfg.Sed.MaxBodySize,
	})
}

// handleSed filters the request body. Errors found before the first row is
// written produce a JSON error; later errors end the stream early and are
// reported in the X-Sed-Error trailer.
func (s *Server) handleSed(w http.ResponseWriter, r *http.Request) {
	req, err := parseSedRequest(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if !s.cfg.Sed.AllowExternal && usesExternal(req.job.Expr) {
		respondError(w, r, ErrExternalDisabled)
		return
	}

	if !s.jobs.TryAcquire() {
		logging.FromContext(r.Context()).Info("waiting for a job slot",
			"active", s.jobs.ActiveCount(),
			"max_concurrent", s.jobs.MaxConcurrent(),
		)
		if err := s.jobs.Acquire(r.Context()); err != nil {
			if errors.Is(err, ErrTooManyJobs) {
				w.Header().Set("Retry-After", "5")
			}
			respondError(w, r, err)
			return
		}
	}
	var jobErr error
	defer func() { s.jobs.Release(jobErr) }()

	jobID := uuid.NewString()
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Sed.JobTimeout)
	defer cancel()
	ctx = logging.WithJobID(ctx, jobID)
	r = r.WithContext(ctx)
	logger := logging.WithFields(ctx, "expr", req.job.Expr, "columns", req.job.Columns)

	body := http.MaxBytesReader(w, r.Body, s.cfg.Sed.MaxBodySize)
	in, err := csvio.NewReader(body, req.in)
	if err != nil {
		jobErr = err
		respondError(w, r, err)
		return
	}
	f, err := pipeline.Prepare(ctx, req.job, in)
	if err != nil {
		jobErr = err
		respondError(w, r, err)
		return
	}

	out, err := csvio.NewWriter(&flushWriter{w: w, rc: http.NewResponseController(w)}, req.out)
	if err != nil {
		f.Close()
		jobErr = err
		respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("X-Job-ID", jobID)
	w.Header().Set("Trailer", trailerRows+", "+trailerError)
	w.WriteHeader(http.StatusOK)

	start := time.Now()
	n, err := pipeline.Stream(ctx, f, out, s.cfg.Sed.FlushRows)
	w.Header().Set(trailerRows, strconv.Itoa(n))
	if err != nil {
		jobErr = err
		msg := MapError(err)
		w.Header().Set(trailerError, msg.Code+": "+headerSafe(err.Error()))
		logger.Error("job failed after streaming began",
			"rows", n,
			"code", msg.Code,
			"error", err,
		)
		return
	}

	logger.Info("job finished",
		"rows", n,
		"bytes_read", in.BytesRead(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

type sedRequest struct {
	job pipeline.Job
	in  csvio.Format
	out csvio.OutputFormat
}

// parseSedRequest reads job parameters from the query string:
//
//	expr (required), columns, zero, no_header,
//	delimiter, tabs, skip_initial_space, skip_lines, lazy_quotes, encoding,
//	out_delimiter, out_tabs, crlf
func parseSedRequest(r *http.Request) (sedRequest, error) {
	q := r.URL.Query()
	var req sedRequest
	var err error

	req.job.Expr = q.Get("expr")
	if req.job.Expr == "" {
		return req, &paramError{"expr", "required"}
	}
	req.job.Columns = q.Get("columns")

	bools := []struct {
		name string
		dst  *bool
	}{
		{"zero", &req.job.ZeroBased},
		{"no_header", &req.job.NoHeader},
		{"tabs", &req.in.Tabs},
		{"skip_initial_space", &req.in.SkipInitialSpace},
		{"lazy_quotes", &req.in.LazyQuotes},
		{"out_tabs", &req.out.Tabs},
		{"crlf", &req.out.CRLF},
	}
	for _, b := range bools {
		if *b.dst, err = boolParam(q.Get(b.name)); err != nil {
			return req, &paramError{b.name, err.Error()}
		}
	}

	if req.in.Delimiter, err = runeParam(q.Get("delimiter")); err != nil {
		return req, &paramError{"delimiter", err.Error()}
	}
	if req.out.Delimiter, err = runeParam(q.Get("out_delimiter")); err != nil {
		return req, &paramError{"out_delimiter", err.Error()}
	}
	if v := q.Get("skip_lines"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return req, &paramError{"skip_lines", "must be a non-negative integer"}
		}
		req.in.SkipLines = n
	}
	req.in.Encoding = q.Get("encoding")
	return req, nil
}

func boolParam(v string) (bool, error) {
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, errBadBool
	}
	return b, nil
}

var (
	errBadBool = errors.New("must be a boolean")
	errBadRune = errors.New("must be a single character")
)

func runeParam(v string) (rune, error) {
	switch {
	case v == "":
		return 0, nil
	case v == "tab" || v == `\t`:
		return '\t', nil
	case utf8.RuneCountInString(v) != 1:
		return 0, errBadRune
	}
	r, _ := utf8.DecodeRuneInString(v)
	return r, nil
}

// usesExternal reports whether expr is an "e" (external command) modifier.
func usesExternal(expr string) bool {
	return strings.HasPrefix(expr, "e")
}

// headerSafe flattens text for use as a header value.
func headerSafe(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r < 0x20 {
			return ' '
		}
		return r
	}, s)
}

// flushWriter pushes every buffered CSV chunk to the client.
type flushWriter struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

func (fw *flushWriter) Write(p []byte) (int, error) {
	n, err := fw.w.Write(p)
	if err != nil {
		return n, err
	}
	// not every ResponseWriter can flush; buffering is still correct
	_ = fw.rc.Flush()
	return n, nil
}
