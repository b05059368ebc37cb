package sed

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestResolve(t *testing.T) {
	header := []string{"id", "name", "price", "name"}

	tests := []struct {
		name    string
		header  []string
		mods    Modifiers
		want    []int
		wantErr bool
	}{
		{
			name: "positional skips empty entries",
			mods: Positional{"s/a/b/", "", nil, "y/a/b/"},
			want: []int{0, 3},
		},
		{
			name:   "indices pass through",
			header: header,
			mods:   ByColumn{ByIndex(2): "s/,//g", ByIndex(7): "s/a/b/"},
			want:   []int{2, 7},
		},
		{
			name:   "names resolve against header",
			header: header,
			mods:   ByColumn{ByName("price"): "s/,//g", ByIndex(0): "s/a/b/"},
			want:   []int{0, 2},
		},
		{
			name:   "first matching name wins",
			header: header,
			mods:   ByColumn{ByName("name"): "s/a/b/"},
			want:   []int{1},
		},
		{
			name:   "empty values are dropped",
			header: header,
			mods:   ByColumn{ByName("missing"): "", ByIndex(1): nil, ByIndex(0): "s/a/b/"},
			want:   []int{0},
		},
		{
			name:   "empty index entry does not conflict",
			header: header,
			mods:   ByColumn{ByName("id"): "s/a/b/", ByIndex(0): ""},
			want:   []int{0},
		},
		{
			name:    "name and index for the same column conflict",
			header:  header,
			mods:    ByColumn{ByName("price"): "s/a/b/", ByIndex(2): "s/c/d/"},
			wantErr: true,
		},
		{
			name:    "unknown name",
			header:  header,
			mods:    ByColumn{ByName("missing"): "s/a/b/"},
			wantErr: true,
		},
		{
			name:    "name without header",
			mods:    ByColumn{ByName("price"): "s/a/b/"},
			wantErr: true,
		},
		{
			name:    "negative index",
			header:  header,
			mods:    ByColumn{ByIndex(-1): "s/a/b/"},
			wantErr: true,
		},
		{
			name: "nil modifiers",
			mods: nil,
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table, err := Resolve(tt.header, tt.mods)
			if tt.wantErr {
				var conflict *ColumnConflictError
				if !errors.As(err, &conflict) {
					t.Fatalf("Resolve() error = %v, want ColumnConflictError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, table.Columns()); diff != "" {
				t.Errorf("Columns() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestResolve_InvalidSpec(t *testing.T) {
	_, err := Resolve(nil, ByColumn{ByIndex(0): "s/a/b"})
	var specErr *InvalidSpecError
	if !errors.As(err, &specErr) {
		t.Fatalf("Resolve() error = %v, want InvalidSpecError", err)
	}
}

func TestResolve_ReleasesOnFailure(t *testing.T) {
	requireShell(t)

	// the continuous modifier starts before the name fails to resolve
	mods := ByColumn{ByIndex(0): "e/cat/c", ByName("missing"): "s/a/b/"}
	if _, err := Resolve([]string{"a"}, mods); err == nil {
		t.Fatal("Resolve() expected error")
	}
}

func TestTable_ApplyOrder(t *testing.T) {
	var order []int
	record := func(col int) Func {
		return func(s string) (string, error) {
			order = append(order, col)
			return s, nil
		}
	}
	table, err := Resolve(nil, ByColumn{
		ByIndex(3): record(3),
		ByIndex(0): record(0),
		ByIndex(2): record(2),
	})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if err := table.Apply([]string{"a", "b", "c", "d"}, 1); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if diff := cmp.Diff([]int{0, 2, 3}, order); diff != "" {
		t.Errorf("apply order mismatch (-want +got):\n%s", diff)
	}
}

func TestColumnID_String(t *testing.T) {
	if got := ByIndex(3).String(); got != "3" {
		t.Errorf("ByIndex(3).String() = %q", got)
	}
	if got := ByName("a b").String(); got != `"a b"` {
		t.Errorf("ByName().String() = %q", got)
	}
}
