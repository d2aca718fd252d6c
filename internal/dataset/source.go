package dataset

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	apperrors "github.com/Adithya-Monish-Kumar-K/hred-dialog-eval/pkg/errors"
)

// ErrEndOfStream is returned by Source.Next once an evaluation pass has no
// more batches. It is the normal termination signal, not a failure.
var ErrEndOfStream = errors.New("end of stream")

// Source yields the decoded batches of one evaluation pass.
type Source interface {
	// Next returns the next batch, ErrEndOfStream when the pass is over, or
	// another error when the source failed.
	Next(ctx context.Context) (*Batch, error)
}

// passState tracks the final-batch marker shared by all sources.
type passState struct {
	done bool
}

// admit applies the final marker: a final batch ends the pass, and is
// returned only if it still carries data.
func (p *passState) admit(b *Batch) (*Batch, error) {
	if b.Final {
		p.done = true
		if b.Empty() {
			return nil, ErrEndOfStream
		}
	}
	return b, nil
}

// SliceSource serves batches from memory.
type SliceSource struct {
	batches []Batch
	pos     int
	pass    passState
}

// NewSliceSource returns a Source over batches.
func NewSliceSource(batches ...Batch) *SliceSource {
	return &SliceSource{batches: batches}
}

func (s *SliceSource) Next(ctx context.Context) (*Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pass.done || s.pos >= len(s.batches) {
		return nil, ErrEndOfStream
	}
	b := s.batches[s.pos]
	s.pos++
	return s.pass.admit(&b)
}

// maxLineBytes bounds a single JSON Lines record.
const maxLineBytes = 64 << 20

// FileSource reads JSON Lines, one Batch per line. Blank lines are skipped
// and end of file ends the pass.
type FileSource struct {
	name    string
	closer  io.Closer
	scanner *bufio.Scanner
	line    int
	pass    passState
}

// OpenFile opens a JSON Lines batch file.
func OpenFile(path string) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening batch file %s: %w", path, err)
	}
	src := NewReaderSource(path, f)
	src.closer = f
	return src, nil
}

// NewReaderSource reads JSON Lines batches from r. name is used in errors.
func NewReaderSource(name string, r io.Reader) *FileSource {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return &FileSource{name: name, scanner: scanner}
}

func (s *FileSource) Next(ctx context.Context) (*Batch, error) {
	if s.pass.done {
		return nil, ErrEndOfStream
	}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return nil, fmt.Errorf("reading %s: %w", s.name, err)
			}
			s.pass.done = true
			return nil, ErrEndOfStream
		}
		s.line++
		raw := bytes.TrimSpace(s.scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var b Batch
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", s.name, s.line,
				apperrors.Invalidf("malformed batch: %v", err))
		}
		return s.pass.admit(&b)
	}
}

// Close releases the underlying file, if any.
func (s *FileSource) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
