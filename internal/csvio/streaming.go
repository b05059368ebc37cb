package csvio

// streaming.go wraps raw input so it can be parsed one row at a time:
//
//   - Decode converts the input character set to UTF-8, drops a leading
//     byte order mark and replaces invalid sequences with U+FFFD
//   - CountingReader tracks raw bytes consumed for progress logging
//
// Both work on the fly with a fixed-size buffer.

import (
	"fmt"
	"io"
	"strings"
	"sync/atomic"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Decode returns a UTF-8 view of r. name is any WHATWG encoding label
// ("utf-8", "latin1", "windows-1252", "utf-16le", ...); empty means utf-8.
// A byte order mark at the start of the input selects the matching UTF
// encoding and is removed.
func Decode(r io.Reader, name string) (io.Reader, error) {
	if strings.TrimSpace(name) == "" {
		name = "utf-8"
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("encoding error: unknown encoding %q", name)
	}
	return transform.NewReader(r, unicode.BOMOverride(enc.NewDecoder())), nil
}

// CountingReader counts the bytes read through it.
type CountingReader struct {
	reader io.Reader
	n      atomic.Int64
}

// NewCountingReader wraps r.
func NewCountingReader(r io.Reader) *CountingReader {
	return &CountingReader{reader: r}
}

// Read implements io.Reader.
func (c *CountingReader) Read(p []byte) (int, error) {
	n, err := c.reader.Read(p)
	c.n.Add(int64(n))
	return n, err
}

// BytesRead returns the byte count so far. It may be called from another
// goroutine.
func (c *CountingReader) BytesRead() int64 { return c.n.Load() }
