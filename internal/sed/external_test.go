package sed

import (
	"bufio"
	"errors"
	"io"
	"os/exec"
	"strings"
	"testing"
	"time"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath(Shell); err != nil {
		t.Skipf("shell %s not available: %v", Shell, err)
	}
}

func TestExternal_OneShot(t *testing.T) {
	requireShell(t)

	tests := []struct {
		spec  string
		input string
		want  string
	}{
		{spec: "e/tr a-z A-Z/", input: "hello", want: "HELLO"},
		{spec: "e/cat/", input: "line\n", want: "line"},
		{spec: "e/printf 'x\\n\\n'/", input: "", want: "x\n"},
		{spec: "e/cat/", input: "a\nb", want: "a\nb"},
		{spec: "e/true/", input: "ignored", want: ""},
		{spec: "e#wc -c | tr -d ' '#", input: "abc", want: "3"},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			m, err := Parse(tt.spec)
			if err != nil {
				t.Fatalf("Parse(%q) error = %v", tt.spec, err)
			}
			got, err := m.Apply(tt.input)
			if err != nil {
				t.Fatalf("Apply() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Apply(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestExternal_OneShotFailure(t *testing.T) {
	requireShell(t)

	m, err := Parse("e/echo oops >&2; exit 3/")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	_, err = m.Apply("value")
	var cmdErr *ExternalCommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("Apply() error = %v, want ExternalCommandError", err)
	}
	if cmdErr.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", cmdErr.ExitCode)
	}
	if !strings.Contains(cmdErr.Stderr, "oops") {
		t.Errorf("Stderr = %q, want it to contain %q", cmdErr.Stderr, "oops")
	}
}

func TestExternal_Continuous(t *testing.T) {
	requireShell(t)

	m, err := Parse("e/cat/c")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	ext := m.(*External)
	if !ext.Continuous() {
		t.Fatal("Continuous() = false, want true")
	}
	defer ext.Close()

	for _, v := range []string{"a", "b,c", `say "hi"`, "", "multi\nline", "last"} {
		got, err := ext.Apply(v)
		if err != nil {
			t.Fatalf("Apply(%q) error = %v", v, err)
		}
		if got != v {
			t.Errorf("Apply(%q) = %q", v, got)
		}
	}

	if err := ext.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := ext.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if _, err := ext.Apply("x"); err == nil {
		t.Error("Apply() after Close() expected error")
	}
}

func TestExternal_ContinuousProcessExits(t *testing.T) {
	requireShell(t)

	m, err := Parse("e/head -n 1/c")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	defer Close(m)

	if got, err := m.Apply("first"); err != nil || got != "first" {
		t.Fatalf("Apply(first) = %q, %v", got, err)
	}
	_, err = m.Apply("second")
	var cmdErr *ExternalCommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("Apply(second) error = %v, want ExternalCommandError", err)
	}
}

func TestExternal_CloseKillsStuckProcess(t *testing.T) {
	requireShell(t)

	saved := CloseGrace
	CloseGrace = 100 * time.Millisecond
	defer func() { CloseGrace = saved }()

	m, err := Parse("e/exec sleep 30/c")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	start := time.Now()
	if err := Close(m); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Close() took %v, want the process killed after the grace period", elapsed)
	}
}

// applyWithin fails the test if Apply does not return within d.
func applyWithin(t *testing.T, m Modifier, value string, d time.Duration) (string, error) {
	t.Helper()
	type result struct {
		got string
		err error
	}
	done := make(chan result, 1)
	go func() {
		got, err := m.Apply(value)
		done <- result{got, err}
	}()
	select {
	case r := <-done:
		return r.got, r.err
	case <-time.After(d):
		t.Fatalf("Apply(%q) did not return within %v", value, d)
		return "", nil
	}
}

func TestExternal_ContinuousBlankResponse(t *testing.T) {
	requireShell(t)

	m, err := Parse("e/while read -r l; do echo; done/c")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	defer Close(m)

	for _, v := range []string{"abc", "", "def"} {
		got, err := applyWithin(t, m, v, 5*time.Second)
		if err != nil {
			t.Fatalf("Apply(%q) error = %v", v, err)
		}
		if got != "" {
			t.Errorf("Apply(%q) = %q, want empty", v, got)
		}
	}
}

func TestExternal_ContinuousKeepsCRLF(t *testing.T) {
	requireShell(t)

	m, err := Parse("e/cat/c")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	defer Close(m)

	for _, v := range []string{"a\r\nb", "trailing\r\n", "\"q\"\r\n\"", "\r"} {
		got, err := applyWithin(t, m, v, 5*time.Second)
		if err != nil {
			t.Fatalf("Apply(%q) error = %v", v, err)
		}
		if got != v {
			t.Errorf("Apply(%q) = %q, want it unchanged", v, got)
		}
	}
}

func TestExternal_CloseWhileApplyBlocked(t *testing.T) {
	requireShell(t)

	saved := CloseGrace
	CloseGrace = 100 * time.Millisecond
	defer func() { CloseGrace = saved }()

	// reads requests but never answers
	m, err := Parse("e|cat >/dev/null|c")
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	applied := make(chan error, 1)
	go func() {
		_, err := m.Apply("stuck")
		applied <- err
	}()
	time.Sleep(100 * time.Millisecond)

	closed := make(chan error, 1)
	go func() { closed <- Close(m) }()
	select {
	case err := <-closed:
		if err != nil {
			t.Errorf("Close() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Close() blocked behind a pending Apply")
	}

	select {
	case err := <-applied:
		var cmdErr *ExternalCommandError
		if !errors.As(err, &cmdErr) {
			t.Errorf("Apply() error = %v, want ExternalCommandError", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Apply() still blocked after Close()")
	}
}

func TestReadResponse(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{name: "blank line", input: "\n", want: ""},
		{name: "blank CRLF line", input: "\r\n", want: ""},
		{name: "unquoted", input: "abc\n", want: "abc"},
		{name: "unquoted CRLF", input: "abc\r\n", want: "abc"},
		{name: "unquoted first field", input: "abc,def\n", want: "abc"},
		{name: "quoted", input: "\"a,b\"\n", want: "a,b"},
		{name: "doubled quote", input: "\"say \"\"hi\"\"\"\n", want: `say "hi"`},
		{name: "quoted empty", input: "\"\"\n", want: ""},
		{name: "quoted multiline", input: "\"multi\nline\"\n", want: "multi\nline"},
		{name: "quoted CRLF kept", input: "\"a\r\nb\"\n", want: "a\r\nb"},
		{name: "quoted then more fields", input: "\"a\",b\n", want: "a"},
		{name: "last line without newline", input: "tail", want: "tail"},
		{name: "no data", input: "", wantErr: io.ErrUnexpectedEOF},
		{name: "unterminated quote", input: "\"open\nstill open\n", wantErr: io.ErrUnexpectedEOF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := bufio.NewReader(strings.NewReader(tt.input))
			got, err := readResponse(r)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("readResponse(%q) error = %v, want %v", tt.input, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("readResponse(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("readResponse(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestReadResponse_OneRecordAtATime(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("\n\"two\nlines\"\nthree\n"))
	for _, want := range []string{"", "two\nlines", "three"} {
		got, err := readResponse(r)
		if err != nil {
			t.Fatalf("readResponse() error = %v", err)
		}
		if got != want {
			t.Errorf("readResponse() = %q, want %q", got, want)
		}
	}
	if _, err := readResponse(r); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("readResponse() at end error = %v, want io.ErrUnexpectedEOF", err)
	}
}

func TestExternal_Invalid(t *testing.T) {
	for _, spec := range []string{"e/", "e/cat", "e/cat/c/x"} {
		_, err := Parse(spec)
		var specErr *InvalidSpecError
		if !errors.As(err, &specErr) {
			t.Errorf("Parse(%q) error = %v, want InvalidSpecError", spec, err)
		}
	}
}
