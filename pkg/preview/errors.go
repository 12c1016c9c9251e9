package preview

import "errors"

var (
	// ErrBadInput is returned for malformed or missing request parameters,
	// oversized inputs, and invalid server paths. Maps to HTTP 400.
	ErrBadInput = errors.New("bad input")

	// ErrInvalidPage is returned when the requested page range lies outside
	// the document. Maps to HTTP 400 and is never masked by an icon.
	ErrInvalidPage = errors.New("invalid page range")

	// ErrUnsupportedType is returned when no backend handles the input
	// extension. Triggers the icon fallback.
	ErrUnsupportedType = errors.New("unsupported file type")

	// ErrInvalidFormat is returned when a backend does not support the
	// requested output format. Maps to HTTP 500.
	ErrInvalidFormat = errors.New("invalid format")

	// ErrTransport is returned when an external converter could not be
	// reached after retries. Triggers the icon fallback.
	ErrTransport = errors.New("converter transport failure")

	// ErrNotFound is returned when the resolved input is not a regular
	// file. Maps to HTTP 404.
	ErrNotFound = errors.New("file not found")

	// ErrInternal covers everything else. Triggers the icon fallback,
	// maps to HTTP 500 when no icon applies.
	ErrInternal = errors.New("internal error")
)
