package shardarc

import (
	"bufio"
	"encoding/hex"
	"hash"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// WriterOptions define writer specific options.
type WriterOptions struct {
	// The compression codec to use for artifacts. The previous
	// release must have been written with the same codec.
	// Default: XZCompression.
	Compression Compression

	// Digest is the algorithm used to compare old and new content.
	// Default: MD5Digest.
	Digest Digest

	// XZPath is the xz executable used by XZCompression.
	// Default: "xz" (looked up in PATH).
	XZPath string

	// Logger receives progress messages.
	// Default: a no-op logger.
	Logger *zap.Logger
}

func (o *WriterOptions) norm() *WriterOptions {
	var oo WriterOptions
	if o != nil {
		oo = *o
	}

	if !oo.Compression.isValid() {
		oo.Compression = XZCompression
	}
	if !oo.Digest.isValid() {
		oo.Digest = MD5Digest
	}
	if oo.XZPath == "" {
		oo.XZPath = defaultXZPath
	}
	if oo.Logger == nil {
		oo.Logger = zap.NewNop()
	}

	return &oo
}

// Writer writes a single shard of a new release. Records are appended
// to an uncompressed working file; on Close the shard is either
// compressed or, if its content did not change since the previous
// release, the previous artifact is copied over unchanged.
//
// A Writer must be used by a single goroutine.
type Writer struct {
	name    string
	oldPath string // previous release, without suffix
	newPath string // new release, without suffix

	o   *WriterOptions
	k   codec
	log *zap.Logger

	file *os.File
	bw   *bufio.Writer
	out  io.Writer // bw, or bw and hash

	hash      hash.Hash       // running digest of written records, nil without previous artifact
	bg        *errgroup.Group // digests the previous artifact
	oldDigest string

	buf    []byte // scratch buffer
	n      int    // records written
	reused bool
	closed bool
}

// Create opens a writer for shard name. The working file is created
// under newDir, parent directories included. If oldDir holds an
// artifact for the same shard, its digest is computed in the
// background while records are written.
func Create(oldDir, newDir, name string, o *WriterOptions) (*Writer, error) {
	o = o.norm()
	w := &Writer{
		name:    name,
		oldPath: filepath.Join(oldDir, name),
		newPath: filepath.Join(newDir, name),
		o:       o,
		k:       codec{c: o.Compression, xzPath: o.XZPath},
		log:     o.Logger.With(zap.String("shard", name)),
	}
	w.log.Info("opening output file")

	if err := os.MkdirAll(filepath.Dir(w.newPath), 0o755); err != nil {
		return nil, w.fail("open", err)
	}

	file, err := os.Create(w.newPath + plainSuffix)
	if err != nil {
		return nil, w.fail("open", err)
	}
	w.file = file
	w.bw = bufio.NewWriter(file)
	w.out = w.bw

	oldArtifact := w.oldPath + o.Compression.Suffix()
	if fi, err := os.Stat(oldArtifact); err == nil && fi.Mode().IsRegular() {
		w.hash = o.Digest.newHash()
		w.out = io.MultiWriter(w.bw, w.hash)
		w.bg = new(errgroup.Group)
		w.bg.Go(func() error {
			digest, err := w.k.digest(oldArtifact, o.Digest)
			w.oldDigest = digest
			return err
		})
		w.log.Debug("hashing previous release", zap.String("path", oldArtifact))
	}

	return w, nil
}

// Name returns the shard name.
func (w *Writer) Name() string { return w.name }

// Path returns the path of the artifact produced by Close.
func (w *Writer) Path() string { return w.newPath + w.o.Compression.Suffix() }

// Len returns the number of records written.
func (w *Writer) Len() int { return w.n }

// Reused reports whether Close copied the previous release's artifact
// instead of compressing.
func (w *Writer) Reused() bool { return w.reused }

// Write appends a "code|url" record. Neither code nor url may contain
// a newline and code may not contain a pipe, records are not escaped.
// Records longer than MaxRecordSize, newline included, are rejected.
func (w *Writer) Write(code, url string) error {
	if w.closed {
		return errClosed
	}
	if strings.ContainsAny(code, "|\n") || strings.ContainsRune(url, '\n') || len(code)+len(url)+2 > MaxRecordSize {
		return errBadRecord
	}

	w.buf = append(w.buf[:0], code...)
	w.buf = append(w.buf, '|')
	w.buf = append(w.buf, url...)
	w.buf = append(w.buf, '\n')
	if _, err := w.out.Write(w.buf); err != nil {
		return w.fail("write", err)
	}

	w.n++
	return nil
}

// Close finalises the shard. It must be called exactly once and blocks
// until the previous release's digest is available.
func (w *Writer) Close() error {
	if w.closed {
		return errClosed
	}
	w.closed = true

	w.log.Debug("closing output file", zap.Int("records", w.n))
	if err := w.bw.Flush(); err != nil {
		_ = w.file.Close()
		w.wait()
		return w.fail("flush", err)
	}
	if err := w.file.Close(); err != nil {
		w.wait()
		return w.fail("flush", err)
	}

	if w.hash != nil {
		newDigest := hex.EncodeToString(w.hash.Sum(nil))
		if err := w.bg.Wait(); err != nil {
			return w.fail("hash-old", err)
		}
		w.log.Debug("compared digests", zap.String("old", w.oldDigest), zap.String("new", newDigest))

		if w.oldDigest == newDigest {
			w.log.Info("file did not change since last release")
			return w.reuse()
		}
	}

	return w.compress()
}

// reuse replaces the working file with a copy of the previous artifact.
func (w *Writer) reuse() error {
	src, err := os.Open(w.oldPath + w.o.Compression.Suffix())
	if err != nil {
		return w.fail("copy", err)
	}
	defer src.Close()

	if err := w.commit(func(dst io.Writer) error {
		_, err := io.Copy(dst, src)
		return err
	}); err != nil {
		return w.fail("copy", err)
	}

	w.reused = true
	return nil
}

// compress replaces the working file with its compressed artifact.
func (w *Writer) compress() error {
	w.log.Info("compressing output file", zap.Stringer("compression", w.o.Compression))

	src, err := os.Open(w.newPath + plainSuffix)
	if err != nil {
		return w.fail("compress", err)
	}
	defer src.Close()

	if err := w.commit(func(dst io.Writer) error {
		return w.k.encode(dst, src)
	}); err != nil {
		return w.fail("compress", err)
	}
	return nil
}

// commit writes the artifact via a temporary file which is only
// renamed into place once fill succeeded. The artifact inherits the
// working file's mode, the working file is removed afterwards.
func (w *Writer) commit(fill func(io.Writer) error) error {
	working := w.newPath + plainSuffix
	fi, err := os.Stat(working)
	if err != nil {
		return err
	}

	target := w.Path()
	tmp, err := os.CreateTemp(filepath.Dir(target), filepath.Base(target)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := fill(tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(fi.Mode().Perm()); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return err
	}

	// the artifact is published, a stale working file is not fatal
	if err := os.Remove(working); err != nil {
		w.log.Warn("failed to remove working file", zap.String("path", working), zap.Error(err))
	}
	return nil
}

// wait discards the background result so no digest process outlives
// a failed Close.
func (w *Writer) wait() {
	if w.bg != nil {
		_ = w.bg.Wait()
	}
}

func (w *Writer) fail(stage string, err error) error {
	w.log.Error("shard failed", zap.String("stage", stage), zap.Error(err))
	return &StageError{Shard: w.name, Stage: stage, Err: err}
}
