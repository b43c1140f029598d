package chunk

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/Benny93/mindgraph/internal/atomicfile"
)

// MaxLineBytes bounds a single JSONL record.
const MaxLineBytes = 4 << 20

// ErrLineTooLong is wrapped by ValidationError for records over MaxLineBytes.
var ErrLineTooLong = fmt.Errorf("line exceeds %d bytes", MaxLineBytes)

// Report summarizes one pass over a labeled chunk stream.
type Report struct {
	Valid    int
	Skipped  int
	Warnings []error
}

func (r *Report) skip(err error) {
	r.Skipped++
	r.Warnings = append(r.Warnings, err)
}

// Read streams JSONL records from r, calling fn for every valid record in
// arrival order. Invalid or over-long lines are recorded in the report and
// skipped; blank lines are ignored. Only a read error from r or a non-nil
// error from fn aborts the pass.
func Read(r io.Reader, fn func(LabeledChunk) error) (Report, error) {
	var report Report

	br := bufio.NewReaderSize(r, 64*1024)
	lineNo := 0
	for {
		raw, tooLong, rerr := readLine(br)
		if rerr != nil && !errors.Is(rerr, io.EOF) {
			return report, fmt.Errorf("reading line %d: %w", lineNo+1, rerr)
		}

		if len(raw) > 0 || tooLong {
			lineNo++
			if err := report.consume(lineNo, raw, tooLong, fn); err != nil {
				return report, err
			}
		}

		if rerr != nil {
			return report, nil
		}
	}
}

// consume decodes one line and hands a valid record to fn. Only fn's error
// is returned.
func (r *Report) consume(lineNo int, raw []byte, tooLong bool, fn func(LabeledChunk) error) error {
	if tooLong {
		r.skip(&ValidationError{Line: lineNo, Err: ErrLineTooLong})
		return nil
	}
	line := bytes.TrimSpace(raw)
	if len(line) == 0 {
		return nil
	}

	c, err := Decode(line)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			verr.Line = lineNo
		}
		r.skip(err)
		return nil
	}

	r.Valid++
	return fn(c)
}

// readLine returns the next line including its terminator. A line longer
// than MaxLineBytes is drained without being buffered and reported as too
// long.
func readLine(br *bufio.Reader) ([]byte, bool, error) {
	var buf []byte
	tooLong := false
	for {
		frag, err := br.ReadSlice('\n')
		if !tooLong {
			if len(buf)+len(frag) > MaxLineBytes+1 {
				tooLong = true
				buf = nil
			} else {
				buf = append(buf, frag...)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return buf, tooLong, err
	}
}

// ReadFile loads every valid record from a JSONL file. A missing or empty
// file yields no records and no error.
func ReadFile(path string) ([]LabeledChunk, Report, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, Report{}, nil
	}
	if err != nil {
		return nil, Report{}, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	var chunks []LabeledChunk
	report, err := Read(f, func(c LabeledChunk) error {
		chunks = append(chunks, c)
		return nil
	})
	if err != nil {
		return nil, report, fmt.Errorf("reading %s: %w", path, err)
	}
	return chunks, report, nil
}

// Encode renders chunks as JSONL, one object per line.
func Encode(chunks []LabeledChunk) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for _, c := range chunks {
		if err := enc.Encode(c); err != nil {
			return nil, fmt.Errorf("encoding chunk %q: %w", c.Title, err)
		}
	}
	return buf.Bytes(), nil
}

// WriteFile atomically writes chunks as a JSONL file.
func WriteFile(path string, chunks []LabeledChunk) error {
	data, err := Encode(chunks)
	if err != nil {
		return err
	}
	return atomicfile.WriteFile(path, data, 0o644)
}
