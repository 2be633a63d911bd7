// Package document turns fetched PDF bytes into page-level text.
package document

import (
	"bytes"
	"fmt"

	ltpdf "github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// Decoder extracts per-page plain text from PDF buffers. It holds no
// state and is safe for concurrent use. Decoding is CPU-bound and
// synchronous; callers run it from their own goroutines.
type Decoder struct{}

// NewDecoder creates a Decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode validates data as a PDF and returns one text string per page.
// A page that yields no extractable text contributes an empty string,
// never a hole. Malformed or truncated buffers fail with ErrDecode.
func (d *Decoder) Decode(data []byte) (pages []string, err error) {
	// The underlying parsers panic on some corrupt inputs; keep that
	// contained behind the ErrDecode contract.
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("%w: parser panic: %v", ErrDecode, r)
		}
	}()

	// Structural validation up front. Rejects truncated and non-PDF
	// buffers before any text extraction work.
	if _, err := api.PageCount(bytes.NewReader(data), nil); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	reader, err := ltpdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	total := reader.NumPage()
	pages = make([]string, 0, total)
	for i := 1; i <= total; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			text = ""
		}
		pages = append(pages, text)
	}

	return pages, nil
}
