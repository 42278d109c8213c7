// Package store reads and writes the line-delimited JSON artifacts exchanged
// with the crawler and the renderer: one JSON object per line.
package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/arxivdaily/enhancer/internal/paper"
)

// Abstracts can be long; size the scanner buffer well above the default 64K.
const maxLineBytes = 4 << 20

// ReadPapers parses crawler output. Blank lines are skipped; a malformed
// line is an input error and fails the whole read.
func ReadPapers(r io.Reader) ([]paper.Paper, error) {
	var out []paper.Paper
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	line := 0
	for sc.Scan() {
		line++
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}
		var p paper.Paper
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, fmt.Errorf("parse input line %d: %w", line, err)
		}
		if strings.TrimSpace(p.ID) == "" {
			return nil, fmt.Errorf("parse input line %d: missing id", line)
		}
		out = append(out, p)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return out, nil
}

// ReadEnhanced parses a prior run's output for the incremental plan.
func ReadEnhanced(r io.Reader) ([]paper.Enhanced, error) {
	var out []paper.Enhanced
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	line := 0
	for sc.Scan() {
		line++
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}
		var rec paper.Enhanced
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("parse enhanced line %d: %w", line, err)
		}
		out = append(out, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read enhanced: %w", err)
	}
	return out, nil
}

// ReadEnhancedFile is ReadEnhanced over a path. A missing file yields an
// empty set: first runs have no prior output.
func ReadEnhancedFile(path string) ([]paper.Enhanced, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer func() {
		_ = f.Close()
	}()
	return ReadEnhanced(f)
}

// WriteEnhanced serializes records one JSON object per line.
func WriteEnhanced(w io.Writer, recs []paper.Enhanced) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)
	for i, rec := range recs {
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("write record %d (%s): %w", i, rec.ID, err)
		}
	}
	return bw.Flush()
}
