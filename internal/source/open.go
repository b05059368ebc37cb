// Package source opens the inputs a sed run reads from: local files, stdin,
// any URL the afs storage layer understands, or a PostgreSQL query.
package source

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/viant/afs"
)

// Stdin is the location that selects standard input.
const Stdin = "-"

var fs = afs.New()

// Open returns a reader for location. An empty location or "-" reads from
// stdin, which is not closed by the returned ReadCloser. Locations with a
// scheme ("file://", "mem://", "s3://", ...) go through afs; anything else is
// a local path.
func Open(ctx context.Context, location string, stdin io.Reader) (io.ReadCloser, error) {
	if location == "" || location == Stdin {
		return io.NopCloser(stdin), nil
	}
	url, err := normalize(location)
	if err != nil {
		return nil, err
	}
	rc, err := fs.OpenURL(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", location, err)
	}
	return rc, nil
}

func normalize(location string) (string, error) {
	if strings.Contains(location, "://") {
		return location, nil
	}
	abs, err := filepath.Abs(location)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", location, err)
	}
	return "file://" + filepath.ToSlash(abs), nil
}
