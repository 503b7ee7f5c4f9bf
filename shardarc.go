package shardarc

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned by lookups when a service, code or file
// has no matching mapping.
var ErrNotFound = errors.New("shardarc: not found")

var (
	errClosed         = errors.New("shardarc: is closed")
	errBadRecord      = errors.New("shardarc: bad record")
	errBadCompression = errors.New("shardarc: bad compression codec")
	errBadDigest      = errors.New("shardarc: bad digest algorithm")
)

// plainSuffix is appended to a shard name to form the uncompressed
// working file.
const plainSuffix = ".txt"

// --------------------------------------------------------------------

// ConfigError is returned when a range table is malformed. It lists
// every problem found, across all services.
type ConfigError struct {
	Problems []string
}

func (e *ConfigError) Error() string {
	return "shardarc: invalid range table: " + strings.Join(e.Problems, "; ")
}

func (e *ConfigError) add(format string, args ...interface{}) {
	e.Problems = append(e.Problems, fmt.Sprintf(format, args...))
}

// StageError is returned by a Writer when a filesystem or external
// process operation fails.
type StageError struct {
	Shard string // shard name
	Stage string // open, write, flush, hash-old, compress or copy
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("shardarc: shard %q: %s: %v", e.Shard, e.Stage, e.Err)
}

// Unwrap returns the underlying error.
func (e *StageError) Unwrap() error { return e.Err }

// --------------------------------------------------------------------

// Compression is the compression codec used for shard artifacts.
type Compression byte

// Supported compression codecs
const (
	XZCompression Compression = iota
	ZstdCompression
	SnappyCompression
	LZ4Compression
	unknownCompression
)

func (c Compression) isValid() bool {
	return c < unknownCompression
}

// Suffix returns the artifact suffix, including the ".txt" part.
func (c Compression) Suffix() string {
	switch c {
	case XZCompression:
		return plainSuffix + ".xz"
	case ZstdCompression:
		return plainSuffix + ".zst"
	case SnappyCompression:
		return plainSuffix + ".sz"
	case LZ4Compression:
		return plainSuffix + ".lz4"
	}
	return ""
}

func (c Compression) String() string {
	switch c {
	case XZCompression:
		return "xz"
	case ZstdCompression:
		return "zstd"
	case SnappyCompression:
		return "snappy"
	case LZ4Compression:
		return "lz4"
	}
	return fmt.Sprintf("unknown(%d)", byte(c))
}

// ParseCompression parses a codec name as returned by String.
func ParseCompression(name string) (Compression, error) {
	for c := XZCompression; c < unknownCompression; c++ {
		if c.String() == name {
			return c, nil
		}
	}
	return 0, fmt.Errorf("%w %q", errBadCompression, name)
}

// Digest is the content hash algorithm used to detect unchanged shards.
// Both sides of a comparison must use the same algorithm.
type Digest byte

// Supported digest algorithms
const (
	MD5Digest Digest = iota
	BLAKE3Digest
	unknownDigest
)

func (d Digest) isValid() bool {
	return d < unknownDigest
}

func (d Digest) String() string {
	switch d {
	case MD5Digest:
		return "md5"
	case BLAKE3Digest:
		return "blake3"
	}
	return fmt.Sprintf("unknown(%d)", byte(d))
}

// ParseDigest parses a digest name as returned by String.
func ParseDigest(name string) (Digest, error) {
	for d := MD5Digest; d < unknownDigest; d++ {
		if d.String() == name {
			return d, nil
		}
	}
	return 0, fmt.Errorf("%w %q", errBadDigest, name)
}
