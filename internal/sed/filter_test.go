package sed

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const baseCSV = `header 1,header 2,header 3,header 4,header 5
field 1.1,field 1.2,field 1.3,field 1.4,field 1.5
field 2.1,field 2.2,field 2.3,field 2.4,field 2.5
field 3.1,field 3.2,field 3.3,field 3.4,field 3.5
`

// run streams source through a filter and returns the written CSV.
func run(t *testing.T, source string, mods Modifiers, header bool) string {
	t.Helper()
	r := csv.NewReader(strings.NewReader(source))
	r.FieldsPerRecord = -1
	f, err := NewFilter(r, mods, header)
	if err != nil {
		t.Fatalf("NewFilter() error = %v", err)
	}
	defer f.Close()

	var out bytes.Buffer
	w := csv.NewWriter(&out)
	if _, err := Copy(context.Background(), w, f); err != nil {
		t.Fatalf("Copy() error = %v", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	return out.String()
}

func TestFilter_Scenarios(t *testing.T) {
	tests := []struct {
		name   string
		source string
		mods   Modifiers
		header bool
		want   string
	}{
		{
			name:   "uppercase one column",
			source: baseCSV,
			mods:   ByColumn{ByIndex(2): "y/a-z/A-Z/"},
			header: true,
			want: `header 1,header 2,header 3,header 4,header 5
field 1.1,field 1.2,FIELD 1.3,field 1.4,field 1.5
field 2.1,field 2.2,FIELD 2.3,field 2.4,field 2.5
field 3.1,field 3.2,FIELD 3.3,field 3.4,field 3.5
`,
		},
		{
			name:   "substitute without flags",
			source: baseCSV,
			mods:   ByColumn{ByIndex(0): "s/./x/"},
			header: true,
			want: `header 1,header 2,header 3,header 4,header 5
xield 1.1,field 1.2,field 1.3,field 1.4,field 1.5
xield 2.1,field 2.2,field 2.3,field 2.4,field 2.5
xield 3.1,field 3.2,field 3.3,field 3.4,field 3.5
`,
		},
		{
			name:   "multiple columns",
			source: baseCSV,
			mods:   ByColumn{ByIndex(0): "s/./x/g", ByIndex(2): "s/./y/g"},
			header: true,
			want: `header 1,header 2,header 3,header 4,header 5
xxxxxxxxx,field 1.2,yyyyyyyyy,field 1.4,field 1.5
xxxxxxxxx,field 2.2,yyyyyyyyy,field 2.4,field 2.5
xxxxxxxxx,field 3.2,yyyyyyyyy,field 3.4,field 3.5
`,
		},
		{
			name:   "columns by name",
			source: baseCSV,
			mods:   ByColumn{ByName("header 1"): "s/./x/g", ByName("header 3"): "s/./y/g"},
			header: true,
			want: `header 1,header 2,header 3,header 4,header 5
xxxxxxxxx,field 1.2,yyyyyyyyy,field 1.4,field 1.5
xxxxxxxxx,field 2.2,yyyyyyyyy,field 2.4,field 2.5
xxxxxxxxx,field 3.2,yyyyyyyyy,field 3.4,field 3.5
`,
		},
		{
			name:   "no match leaves input unchanged",
			source: baseCSV,
			mods:   ByColumn{ByIndex(0): "s/[IE]/../"},
			header: true,
			want:   baseCSV,
		},
		{
			name:   "case insensitive and global",
			source: baseCSV,
			mods:   ByColumn{ByIndex(0): "s/[IE]/../ig"},
			header: true,
			want: `header 1,header 2,header 3,header 4,header 5
f....ld 1.1,field 1.2,field 1.3,field 1.4,field 1.5
f....ld 2.1,field 2.2,field 2.3,field 2.4,field 2.5
f....ld 3.1,field 3.2,field 3.3,field 3.4,field 3.5
`,
		},
		{
			name:   "quoted cell without header",
			source: "cell 1,\"123,456,789.0\"\n",
			mods:   ByColumn{ByIndex(1): "s/,//g"},
			header: false,
			want:   "cell 1,123456789.0\n",
		},
		{
			name:   "positional modifiers",
			source: "field 1.1,field 1.2\n",
			mods:   Positional{"s/./x/g"},
			header: false,
			want:   "xxxxxxxxx,field 1.2\n",
		},
		{
			name:   "empty table round trip",
			source: baseCSV,
			mods:   ByColumn{},
			header: true,
			want:   baseCSV,
		},
		{
			name:   "empty table round trip without header",
			source: baseCSV,
			mods:   nil,
			header: false,
			want:   baseCSV,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := run(t, tt.source, tt.mods, tt.header)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("output mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFilter_NameAndIndexEquivalent(t *testing.T) {
	byIndex := run(t, baseCSV, ByColumn{ByIndex(0): "s/field/F/"}, true)
	byName := run(t, baseCSV, ByColumn{ByName("header 1"): "s/field/F/"}, true)
	if byIndex != byName {
		t.Errorf("by index:\n%s\nby name:\n%s", byIndex, byName)
	}
}

// sliceReader serves rows from memory and counts reads.
type sliceReader struct {
	rows  [][]string
	reads int
}

func (r *sliceReader) Read() ([]string, error) {
	r.reads++
	if len(r.rows) == 0 {
		return nil, io.EOF
	}
	row := r.rows[0]
	r.rows = r.rows[1:]
	return row, nil
}

func TestFilter_HeaderFirstAndUnmodified(t *testing.T) {
	src := &sliceReader{rows: [][]string{{"abc", "abc"}, {"abc", "abc"}}}
	f, err := NewFilter(src, ByColumn{ByIndex(0): "y/abc/xyz/", ByName("abc"): ""}, true)
	if err != nil {
		t.Fatalf("NewFilter() error = %v", err)
	}
	if src.reads != 1 {
		t.Fatalf("NewFilter() consumed %d rows, want 1", src.reads)
	}
	if diff := cmp.Diff([]string{"abc", "abc"}, f.Header()); diff != "" {
		t.Errorf("Header() mismatch (-want +got):\n%s", diff)
	}

	var got [][]string
	for {
		row, err := f.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		got = append(got, row)
	}
	want := [][]string{{"abc", "abc"}, {"xyz", "abc"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}

	// exhausted stays exhausted
	if _, err := f.Read(); !errors.Is(err, io.EOF) {
		t.Errorf("Read() after end error = %v, want io.EOF", err)
	}
	if f.Line() != 2 {
		t.Errorf("Line() = %d, want 2", f.Line())
	}
}

func TestFilter_PullsOneRowAtATime(t *testing.T) {
	src := &sliceReader{rows: [][]string{{"a"}, {"b"}, {"c"}}}
	f, err := NewFilter(src, Positional{"s/./x/"}, false)
	if err != nil {
		t.Fatalf("NewFilter() error = %v", err)
	}
	defer f.Close()
	if src.reads != 0 {
		t.Fatalf("NewFilter() without header consumed %d rows", src.reads)
	}
	for i := 1; i <= 3; i++ {
		if _, err := f.Read(); err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		if src.reads != i {
			t.Errorf("after %d reads upstream saw %d", i, src.reads)
		}
	}
}

func TestFilter_RowWidthError(t *testing.T) {
	src := &sliceReader{rows: [][]string{{"h1", "h2", "h3"}, {"a", "b", "c"}, {"a"}}}
	f, err := NewFilter(src, ByColumn{ByIndex(2): "s/c/C/"}, true)
	if err != nil {
		t.Fatalf("NewFilter() error = %v", err)
	}
	defer f.Close()

	var out [][]string
	_, err = Copy(context.Background(), rowCollector(&out), f)
	var widthErr *RowWidthError
	if !errors.As(err, &widthErr) {
		t.Fatalf("Copy() error = %v, want RowWidthError", err)
	}
	if widthErr.Line != 3 || widthErr.Column != 2 || widthErr.Width != 1 {
		t.Errorf("RowWidthError = %+v", widthErr)
	}
	if len(out) != 2 {
		t.Errorf("wrote %d rows before failing, want 2", len(out))
	}
	if _, again := f.Read(); !errors.As(again, &widthErr) {
		t.Errorf("Read() after failure = %v, want the same error", again)
	}
}

func TestFilter_RaggedRowsOutsideModifiedColumns(t *testing.T) {
	got := run(t, "a,b,c\nd\ne,f\n", ByColumn{ByIndex(0): "y/a-z/A-Z/"}, false)
	if want := "A,b,c\nD\nE,f\n"; got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestFilter_ConstructionErrors(t *testing.T) {
	tests := []struct {
		name   string
		mods   Modifiers
		header bool
		check  func(error) bool
	}{
		{
			name:   "invalid spec",
			mods:   ByColumn{ByIndex(0): "s/a/b"},
			header: true,
			check:  func(err error) bool { var e *InvalidSpecError; return errors.As(err, &e) },
		},
		{
			name:   "name without header",
			mods:   ByColumn{ByName("header 1"): "s/a/b/"},
			header: false,
			check:  func(err error) bool { var e *ColumnConflictError; return errors.As(err, &e) },
		},
		{
			name:   "name conflicts with index",
			mods:   ByColumn{ByName("header 1"): "s/a/b/", ByIndex(0): "s/c/d/"},
			header: true,
			check:  func(err error) bool { var e *ColumnConflictError; return errors.As(err, &e) },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := csv.NewReader(strings.NewReader(baseCSV))
			_, err := NewFilter(src, tt.mods, tt.header)
			if !tt.check(err) {
				t.Errorf("NewFilter() error = %v", err)
			}
		})
	}
}

func TestFilter_EmptyInput(t *testing.T) {
	f, err := NewFilter(&sliceReader{}, ByColumn{ByIndex(0): "s/a/b/"}, true)
	if err != nil {
		t.Fatalf("NewFilter() error = %v", err)
	}
	if f.Header() != nil {
		t.Errorf("Header() = %v, want nil", f.Header())
	}
	if _, err := f.Read(); !errors.Is(err, io.EOF) {
		t.Errorf("Read() error = %v, want io.EOF", err)
	}
}

func TestFilter_ModifierErrorStopsStream(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	mods := Positional{Func(func(s string) (string, error) {
		calls++
		if s == "bad" {
			return "", boom
		}
		return s, nil
	})}
	src := &sliceReader{rows: [][]string{{"ok"}, {"bad"}, {"never"}}}
	f, err := NewFilter(src, mods, false)
	if err != nil {
		t.Fatalf("NewFilter() error = %v", err)
	}
	var out [][]string
	if _, err := Copy(context.Background(), rowCollector(&out), f); !errors.Is(err, boom) {
		t.Fatalf("Copy() error = %v, want %v", err, boom)
	}
	if calls != 2 {
		t.Errorf("modifier called %d times, want 2", calls)
	}
}

func TestFilter_CloseStopsReads(t *testing.T) {
	f, err := NewFilter(&sliceReader{rows: [][]string{{"a"}}}, nil, false)
	if err != nil {
		t.Fatalf("NewFilter() error = %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := f.Read(); err == nil {
		t.Error("Read() after Close() expected error")
	}
	if err := f.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestFilter_ContinuousExternal(t *testing.T) {
	requireShell(t)

	got := run(t, baseCSV, ByColumn{ByName("header 2"): "e/cat/c"}, true)
	if got != baseCSV {
		t.Errorf("output mismatch:\n%s", got)
	}
}

func TestCopy_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var out [][]string
	n, err := Copy(ctx, rowCollector(&out), &sliceReader{rows: [][]string{{"a"}}})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Copy() error = %v, want context.Canceled", err)
	}
	if n != 0 {
		t.Errorf("Copy() = %d rows, want 0", n)
	}
}

type rowCollectorFunc func([]string) error

func (f rowCollectorFunc) Write(row []string) error { return f(row) }

func rowCollector(out *[][]string) RowWriter {
	return rowCollectorFunc(func(row []string) error {
		*out = append(*out, row)
		return nil
	})
}
