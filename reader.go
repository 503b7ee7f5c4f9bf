package shardarc

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// MaxRecordSize is the maximum length of a record, including the
// trailing newline.
const MaxRecordSize = 1 << 20

// Reader iterates over the records of a shard.
type Reader struct {
	s  *bufio.Scanner
	rc io.Closer

	line int
	code string
	url  string
	err  error
}

// NewReader reads uncompressed records from r.
func NewReader(r io.Reader) *Reader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), MaxRecordSize)
	return &Reader{s: s}
}

// OpenReader opens a compressed shard artifact. XZ artifacts are
// decompressed by the xz executable found in PATH.
func OpenReader(path string, c Compression) (*Reader, error) {
	if !c.isValid() {
		return nil, errBadCompression
	}

	rc, err := codec{c: c, xzPath: defaultXZPath}.open(path)
	if err != nil {
		return nil, err
	}

	r := NewReader(rc)
	r.rc = rc
	return r, nil
}

// Next advances to the next record and returns true if successful.
func (r *Reader) Next() bool {
	if r.err != nil || !r.s.Scan() {
		return false
	}
	r.line++

	text := r.s.Text()
	pos := strings.IndexByte(text, '|')
	if pos < 0 {
		r.err = fmt.Errorf("%w on line %d", errBadRecord, r.line)
		return false
	}
	r.code, r.url = text[:pos], text[pos+1:]
	return true
}

// Code returns the code of the current record.
func (r *Reader) Code() string { return r.code }

// URL returns the URL of the current record.
func (r *Reader) URL() string { return r.url }

// Err exposes read errors, if any.
func (r *Reader) Err() error {
	if r.err != nil {
		return r.err
	}
	return r.s.Err()
}

// Close releases the underlying artifact, if any.
func (r *Reader) Close() error {
	if r.rc == nil {
		return nil
	}
	return r.rc.Close()
}
