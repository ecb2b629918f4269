package service

import (
	"errors"

	"github.com/okian/feedrank/internal/adapters/repository"
)

// Sentinel kinds for service errors.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrBackpressure = errors.New("backpressure")
	ErrNotStarted   = errors.New("service not started")
	ErrNotFound     = repository.ErrNotFound
)
