package feed

import "errors"

// Sentinel errors for feed assembly.
var (
	ErrInvalidLimit  = errors.New("invalid limit")
	ErrInvalidCursor = errors.New("invalid cursor")
)
