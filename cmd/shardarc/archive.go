package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/bsm/shardarc"
)

// archiver drives shard writers for one service: it resolves the shard
// of each input code and keeps the writer open while codes stay within
// the shard's range.
type archiver struct {
	Index   *shardarc.RangeIndex
	Service string
	OldDir  string
	NewDir  string
	Options *shardarc.WriterOptions
}

type archiveStats struct {
	Records int
	Shards  int
	Reused  int
}

// Run reads "code|url" lines from in. Codes must be strictly
// increasing in code order.
func (a *archiver) Run(in io.Reader) (archiveStats, error) {
	var (
		stats archiveStats
		cur   shardarc.Mapping
		w     *shardarc.Writer
		prev  string
		line  int
	)

	closeWriter := func() error {
		if w == nil {
			return nil
		}
		err := w.Close()
		if err == nil {
			stats.Shards++
			if w.Reused() {
				stats.Reused++
			}
		}
		w = nil
		return err
	}

	s := bufio.NewScanner(in)
	s.Buffer(make([]byte, 0, 64*1024), shardarc.MaxRecordSize)
	for s.Scan() {
		line++
		code, url, ok := strings.Cut(s.Text(), "|")
		if !ok {
			_ = closeWriter()
			return stats, fmt.Errorf("line %d: missing separator", line)
		}
		if line > 1 && shardarc.CompareCodes(prev, code) >= 0 {
			_ = closeWriter()
			return stats, fmt.Errorf("line %d: code %q does not follow %q", line, code, prev)
		}
		prev = code

		if w == nil || !a.Index.StillInRange(cur, code) {
			if err := closeWriter(); err != nil {
				return stats, err
			}

			m, err := a.Index.Resolve(a.Service, code)
			if err != nil {
				return stats, fmt.Errorf("line %d: %w", line, err)
			}
			if w, err = shardarc.Create(a.OldDir, a.NewDir, m.File, a.Options); err != nil {
				return stats, err
			}
			cur = m
		}

		if err := w.Write(code, url); err != nil {
			_ = closeWriter()
			return stats, fmt.Errorf("line %d: %w", line, err)
		}
		stats.Records++
	}
	if err := s.Err(); err != nil {
		_ = closeWriter()
		return stats, err
	}
	return stats, closeWriter()
}
