package shardarc

import (
	"crypto/md5"
	"encoding/hex"
	"hash"
	"io"
	"os"
	"os/exec"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/zeebo/blake3"
)

const defaultXZPath = "xz"

func (d Digest) newHash() hash.Hash {
	if d == BLAKE3Digest {
		return blake3.New()
	}
	return md5.New()
}

// codec encodes and decodes shard artifacts. XZ is delegated to an
// external xz binary, the other codecs run in-process.
type codec struct {
	c      Compression
	xzPath string
}

// encode compresses src into dst at the codec's best level.
func (k codec) encode(dst io.Writer, src io.Reader) error {
	switch k.c {
	case XZCompression:
		cmd := exec.Command(k.xzPath, "-9", "-c")
		cmd.Stdin = src
		cmd.Stdout = dst
		return cmd.Run()
	case ZstdCompression:
		zw, err := zstd.NewWriter(dst, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
		if err != nil {
			return err
		}
		return copyClose(zw, src)
	case SnappyCompression:
		return copyClose(snappy.NewBufferedWriter(dst), src)
	case LZ4Compression:
		lw := lz4.NewWriter(dst)
		if err := lw.Apply(lz4.CompressionLevelOption(lz4.Level9)); err != nil {
			return err
		}
		return copyClose(lw, src)
	}
	return errBadCompression
}

// open opens a compressed artifact for streaming decompression.
func (k codec) open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	switch k.c {
	case XZCompression:
		cmd := exec.Command(k.xzPath, "-d", "-c")
		cmd.Stdin = f
		out, err := cmd.StdoutPipe()
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		if err := cmd.Start(); err != nil {
			_ = f.Close()
			return nil, err
		}
		return &procReader{ReadCloser: out, cmd: cmd, file: f}, nil
	case ZstdCompression:
		zr, err := zstd.NewReader(f)
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		return &streamReader{Reader: zr, file: f, release: zr.Close}, nil
	case SnappyCompression:
		return &streamReader{Reader: snappy.NewReader(f), file: f}, nil
	case LZ4Compression:
		return &streamReader{Reader: lz4.NewReader(f), file: f}, nil
	}

	_ = f.Close()
	return nil, errBadCompression
}

// digest decompresses the artifact at path and returns the hex digest
// of its content. Nothing is written to disk.
func (k codec) digest(path string, d Digest) (string, error) {
	rc, err := k.open(path)
	if err != nil {
		return "", err
	}

	h := d.newHash()
	if _, err := io.Copy(h, rc); err != nil {
		_ = rc.Close()
		return "", err
	}
	if err := rc.Close(); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func copyClose(w io.WriteCloser, src io.Reader) error {
	if _, err := io.Copy(w, src); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

// --------------------------------------------------------------------

type streamReader struct {
	io.Reader
	file    *os.File
	release func()
}

func (r *streamReader) Close() error {
	if r.release != nil {
		r.release()
	}
	return r.file.Close()
}

// procReader reads the stdout of an external decompressor.
type procReader struct {
	io.ReadCloser
	cmd  *exec.Cmd
	file *os.File
	eof  bool
}

func (r *procReader) Read(p []byte) (int, error) {
	n, err := r.ReadCloser.Read(p)
	if err == io.EOF {
		r.eof = true
	}
	return n, err
}

// Close stops reading and waits for the process to exit. The exit
// status is only reported once all output was consumed; a process
// interrupted by an early close is expected to fail.
func (r *procReader) Close() error {
	_ = r.ReadCloser.Close()
	err := r.cmd.Wait()
	_ = r.file.Close()

	if !r.eof {
		return nil
	}
	return err
}
