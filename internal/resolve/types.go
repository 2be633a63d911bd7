// Package resolve implements the per-identifier resolution state
// machine: metadata lookup, publisher branch, document fetch with a
// single trust-escalation retry, decode, scan, record.
package resolve

import (
	"fmt"
	"time"
)

// Status is the terminal classification of one resolution attempt.
type Status string

const (
	StatusResolved         Status = "resolved"
	StatusNotFound         Status = "not_found"
	StatusWrongPublisher   Status = "wrong_publisher"
	StatusNotADocument     Status = "not_a_document"
	StatusFetchFailed      Status = "fetch_failed"
	StatusDecodeFailed     Status = "decode_failed"
	StatusNoLocation       Status = "no_location"
	StatusProcessingFailed Status = "processing_failed"
)

// Item is one unit of work: a persistent identifier and its position
// in the shuffled batch. Immutable once seeded.
type Item struct {
	ID       string
	Sequence int
}

// Outcome is produced exactly once per Item. Failures are outcomes,
// never escaped errors.
type Outcome struct {
	ItemID     string
	Sequence   int
	Status     Status
	Emails     []string
	SourceHost string
	Pages      int
	Timings    Timings
}

// Timings records per-phase durations. Phases not reached stay
// unmarked so failure paths remain distinguishable from fast successes.
type Timings struct {
	Fetch  time.Duration
	Decode time.Duration
	Total  time.Duration

	Fetched bool
	Decoded bool
}

// FetchLabel renders the fetch duration for logs, or "skipped" when
// the document fetch phase was never reached.
func (t Timings) FetchLabel() string {
	if !t.Fetched {
		return "skipped"
	}
	return fmt.Sprintf("%.2fs", t.Fetch.Seconds())
}

// DecodeLabel renders the decode duration for logs, or "skipped" when
// the decode phase was never reached.
func (t Timings) DecodeLabel() string {
	if !t.Decoded {
		return "skipped"
	}
	return fmt.Sprintf("%.2fs", t.Decode.Seconds())
}
