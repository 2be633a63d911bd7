package sink_test

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/cesarachcar/scraper-emails-papers/internal/sink"
)

func readRows(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return rows
}

func TestRecordsHeaderAndAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "emails.csv")

	records, err := sink.NewRecords(path)
	if err != nil {
		t.Fatalf("NewRecords() error = %v", err)
	}

	if err := records.Append(sink.Record{Email: "a@b.co", Origin: "pdf normal", Sequence: 7}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := records.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	rows := readRows(t, path)
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	wantHeader := []string{"emails", "origin", "ordem doi"}
	for i, col := range wantHeader {
		if rows[0][i] != col {
			t.Errorf("header[%d] = %q, want %q", i, rows[0][i], col)
		}
	}
	if rows[1][0] != "a@b.co" || rows[1][1] != "pdf normal" || rows[1][2] != "7" {
		t.Errorf("row = %v", rows[1])
	}
}

func TestRecordsFlushedWithoutClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "emails.csv")

	records, err := sink.NewRecords(path)
	if err != nil {
		t.Fatalf("NewRecords() error = %v", err)
	}
	defer records.Close()

	if err := records.Append(sink.Record{Email: "x@y.com", Origin: "pdf normal", Sequence: 1}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	// The row must already be on disk before Close.
	rows := readRows(t, path)
	if len(rows) != 2 {
		t.Fatalf("got %d rows before Close, want 2", len(rows))
	}
}

func TestRecordsConcurrentAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "emails.csv")

	records, err := sink.NewRecords(path)
	if err != nil {
		t.Fatalf("NewRecords() error = %v", err)
	}

	const writers = 20
	const perWriter = 25

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				rec := sink.Record{
					Email:    fmt.Sprintf("w%d.i%d@example.org", w, i),
					Origin:   "pdf normal",
					Sequence: w*perWriter + i,
				}
				if err := records.Append(rec); err != nil {
					t.Errorf("Append() error = %v", err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	if err := records.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	rows := readRows(t, path)
	if len(rows) != 1+writers*perWriter {
		t.Fatalf("got %d rows, want %d", len(rows), 1+writers*perWriter)
	}
	// Every row past the header must be complete and well-formed.
	for i, row := range rows[1:] {
		if len(row) != 3 {
			t.Fatalf("row %d has %d fields: %v", i, len(row), row)
		}
		if _, err := strconv.Atoi(row[2]); err != nil {
			t.Errorf("row %d sequence %q not an integer", i, row[2])
		}
	}
}

func TestRestricted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "restricted.csv")

	restricted, err := sink.NewRestricted(path)
	if err != nil {
		t.Fatalf("NewRestricted() error = %v", err)
	}
	if err := restricted.Append("https://doi.org/10.1016/x", "10.1016/x"); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := restricted.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	rows := readRows(t, path)
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[0][0] != "urls elsevier" || rows[0][1] != "doi" {
		t.Errorf("header = %v", rows[0])
	}
	if rows[1][0] != "https://doi.org/10.1016/x" || rows[1][1] != "10.1016/x" {
		t.Errorf("row = %v", rows[1])
	}
}

func TestNewRecordsBadPath(t *testing.T) {
	if _, err := sink.NewRecords(filepath.Join(t.TempDir(), "missing", "emails.csv")); err == nil {
		t.Error("NewRecords() with missing directory did not fail")
	}
}
