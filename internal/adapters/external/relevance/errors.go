package relevance

import "errors"

// Sentinel kinds for relevance client errors.
var (
	ErrDisabled    = errors.New("relevance scorer disabled")
	ErrBreakerOpen = errors.New("relevance circuit breaker open")
	ErrUpstream    = errors.New("relevance upstream error")
	ErrBadResponse = errors.New("relevance response malformed")
)
