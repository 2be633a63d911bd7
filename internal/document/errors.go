package document

import "errors"

// ErrDecode indicates the byte buffer is not a well-formed PDF.
// All decoder failure modes, including parser panics on truncated
// input, normalize to this sentinel.
var ErrDecode = errors.New("malformed pdf document")
