package repository

import "errors"

// Sentinel kinds for storage errors.
var (
	ErrNotFound      = errors.New("video not found")
	ErrInvalidLimit  = errors.New("invalid feed limit")
	ErrInvalidCursor = errors.New("invalid feed cursor")
	ErrInvalidVideo  = errors.New("invalid video")
)
