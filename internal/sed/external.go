package sed

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Shell runs external modifier commands as: Shell -c COMMAND.
var Shell = "/bin/sh"

// CloseGrace is how long a continuous command may take to exit after its
// input is closed before it is killed.
var CloseGrace = 2 * time.Second

// External pipes values through a shell command ("e/COMMAND/FLAGS").
//
// By default every value starts a fresh process (one-shot). With the c flag
// one process serves the whole stream: each value is sent as a single
// quoted CSV record and exactly one response record is read back before the
// next value is sent. Continuous modifiers hold a live process and must be
// closed.
type External struct {
	command    string
	continuous bool

	mu     sync.Mutex // serializes requests
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	out    *bufio.Reader
	stderr *lockedBuffer
	closed atomic.Bool
}

func (*External) modifier() {}

func parseExternal(spec string) (*External, error) {
	parts, err := splitSpec(spec, 3, 3)
	if err != nil {
		return nil, err
	}
	e := &External{
		command:    parts[1],
		continuous: strings.ContainsRune(strings.ToLower(parts[2]), 'c'),
	}
	if e.continuous {
		if err := e.start(); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Command returns the shell command line.
func (e *External) Command() string { return e.command }

// Continuous reports whether e keeps one process for the whole stream.
func (e *External) Continuous() bool { return e.continuous }

func (e *External) start() error {
	cmd := exec.Command(Shell, "-c", e.command)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return &ExternalCommandError{Command: e.command, Err: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &ExternalCommandError{Command: e.command, Err: err}
	}
	e.stderr = &lockedBuffer{}
	cmd.Stderr = e.stderr
	// do not wait on stderr held open by a killed command's children
	cmd.WaitDelay = CloseGrace
	if err := cmd.Start(); err != nil {
		return &ExternalCommandError{Command: e.command, Err: err}
	}

	e.cmd, e.stdin, e.out = cmd, stdin, bufio.NewReader(stdout)
	return nil
}

// Apply runs value through the command.
func (e *External) Apply(value string) (string, error) {
	if !e.continuous {
		return e.execOnce(value)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed.Load() {
		return "", &ExternalCommandError{Command: e.command, Err: errors.New("modifier closed")}
	}
	if _, err := io.WriteString(e.stdin, quoteRecord(value)); err != nil {
		return "", e.failure(err)
	}
	got, err := readResponse(e.out)
	if err != nil {
		return "", e.failure(err)
	}
	return got, nil
}

func (e *External) failure(err error) error {
	return &ExternalCommandError{Command: e.command, Stderr: e.stderr.String(), Err: err}
}

// execOnce feeds value to a new process and returns its output minus one
// trailing newline.
func (e *External) execOnce(value string) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.Command(Shell, "-c", e.command)
	cmd.Stdin = strings.NewReader(value)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		cerr := &ExternalCommandError{Command: e.command, Stderr: stderr.String(), Err: err}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			cerr.ExitCode = exitErr.ExitCode()
		}
		return "", cerr
	}
	return strings.TrimSuffix(stdout.String(), "\n"), nil
}

// Close stops a continuous command: its input is closed, then it gets
// CloseGrace to exit before being killed. Close is idempotent and may run
// while another goroutine is blocked in Apply; that Apply then fails.
func (e *External) Close() error {
	if !e.continuous || !e.closed.CompareAndSwap(false, true) {
		return nil
	}

	closeErr := e.stdin.Close()
	done := make(chan error, 1)
	go func() { done <- e.cmd.Wait() }()

	select {
	case err := <-done:
		// the process saw EOF and exited on its own; a non-zero status here
		// is not an error for values that were already answered
		var exitErr *exec.ExitError
		if err != nil && !errors.As(err, &exitErr) {
			return fmt.Errorf("wait for %q: %w", e.command, err)
		}
	case <-time.After(CloseGrace):
		if err := e.cmd.Process.Kill(); err != nil {
			return fmt.Errorf("kill %q: %w", e.command, err)
		}
		<-done
	}
	if closeErr != nil && !errors.Is(closeErr, io.ErrClosedPipe) {
		return fmt.Errorf("close stdin of %q: %w", e.command, closeErr)
	}
	return nil
}

// quoteRecord frames value as one always-quoted CSV record.
func quoteRecord(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + "\"\n"
}

// readResponse reads exactly one response record and returns its first
// field. A blank line is the empty string. A quoted field may span lines
// and is decoded byte for byte, so "\r\n" inside it survives.
func readResponse(r *bufio.Reader) (string, error) {
	line, err := readLine(r)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(line, `"`) {
		line = trimEOL(line)
		if i := strings.IndexByte(line, ','); i >= 0 {
			line = line[:i]
		}
		return line, nil
	}

	for strings.Count(line, `"`)%2 != 0 {
		more, err := readLine(r)
		if err != nil {
			return "", err
		}
		line += more
	}

	var b strings.Builder
	for i := 1; i < len(line); i++ {
		if line[i] != '"' {
			b.WriteByte(line[i])
			continue
		}
		if i+1 < len(line) && line[i+1] == '"' {
			b.WriteByte('"')
			i++
			continue
		}
		break
	}
	return b.String(), nil
}

// readLine returns the next line including its newline. A final line
// without one is returned as is; no data at all is io.ErrUnexpectedEOF.
func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		if line != "" && errors.Is(err, io.EOF) {
			return line, nil
		}
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return "", err
	}
	return line, nil
}

func trimEOL(s string) string {
	s = strings.TrimSuffix(s, "\n")
	return strings.TrimSuffix(s, "\r")
}

// lockedBuffer collects a continuous command's stderr, which exec copies
// from its own goroutine.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
