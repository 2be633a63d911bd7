// Package sink provides ordered, append-only, concurrency-safe CSV
// record streams. Rows are flushed on every append so an abrupt
// termination never loses acknowledged records.
package sink

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"
)

// Record is one extracted email flattened for the output stream.
// Insertion order is completion order, not submission order.
type Record struct {
	Email    string
	Origin   string
	Sequence int
}

// csvStream is a mutex-guarded CSV file. All typed sinks share it.
type csvStream struct {
	mu sync.Mutex
	f  *os.File
	w  *csv.Writer
}

func newCSVStream(path string, header []string) (*csvStream, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		f.Close()
		return nil, fmt.Errorf("write header: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return nil, fmt.Errorf("flush header: %w", err)
	}

	return &csvStream{f: f, w: w}, nil
}

// append writes one complete row under the lock and flushes it. A row
// is either fully written or not written at all; concurrent writers
// never interleave fields.
func (s *csvStream) append(fields []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.w.Write(fields); err != nil {
		return fmt.Errorf("append row: %w", err)
	}
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return fmt.Errorf("flush row: %w", err)
	}
	return nil
}

func (s *csvStream) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.w.Flush()
	flushErr := s.w.Error()
	closeErr := s.f.Close()
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}

// Records is the append-only stream of extracted emails.
type Records struct {
	stream *csvStream
}

// NewRecords creates the email record stream at path, writing the
// header row immediately.
func NewRecords(path string) (*Records, error) {
	stream, err := newCSVStream(path, []string{"emails", "origin", "ordem doi"})
	if err != nil {
		return nil, err
	}
	return &Records{stream: stream}, nil
}

// Append durably writes one record.
func (r *Records) Append(rec Record) error {
	return r.stream.append([]string{rec.Email, rec.Origin, strconv.Itoa(rec.Sequence)})
}

// Close flushes and closes the underlying file.
func (r *Records) Close() error {
	return r.stream.close()
}

// Restricted is the side-channel stream of candidate URLs skipped by
// the restricted-publisher policy, kept for out-of-band handling.
type Restricted struct {
	stream *csvStream
}

// NewRestricted creates the restricted-URL stream at path.
func NewRestricted(path string) (*Restricted, error) {
	stream, err := newCSVStream(path, []string{"urls elsevier", "doi"})
	if err != nil {
		return nil, err
	}
	return &Restricted{stream: stream}, nil
}

// Append durably writes one skipped candidate URL with its identifier.
func (r *Restricted) Append(url, id string) error {
	return r.stream.append([]string{url, id})
}

// Close flushes and closes the underlying file.
func (r *Restricted) Close() error {
	return r.stream.close()
}
