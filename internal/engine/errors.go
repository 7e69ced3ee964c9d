package engine

import "errors"

var (
	// ErrContentExceed reports text that does not fit the fixed key or
	// value width.
	ErrContentExceed = errors.New("content exceeds fixed width")

	// ErrWrongAlignment reports a scanned span whose length is not a
	// multiple of the record size it should contain.
	ErrWrongAlignment = errors.New("span is not record aligned")

	// ErrOutOfIndex reports a read addressing beyond the end of the
	// current write buffer window, or beyond the end of the value file.
	ErrOutOfIndex = errors.New("value entry out of range")

	// ErrInvalidValueSize reports a write whose payload is not exactly
	// ValueSize bytes.
	ErrInvalidValueSize = errors.New("value is not exactly 256 bytes")

	// ErrCacheTooSmall reports a read whose aligned window does not fit
	// the single cache page.
	ErrCacheTooSmall = errors.New("read window exceeds cache page")

	// ErrStoreClosed reports an operation on a closed store handle.
	ErrStoreClosed = errors.New("store is closed")
)
