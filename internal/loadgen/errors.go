package loadgen

import "errors"

var (
	// ErrUnexpectedStatus indicates the service answered with an unexpected HTTP status.
	ErrUnexpectedStatus = errors.New("unexpected status")
	// ErrNotSettled indicates the event queue did not drain in time.
	ErrNotSettled = errors.New("event queue did not drain")
	// ErrOrderViolation indicates the feed is not in score, recency, id order.
	ErrOrderViolation = errors.New("feed order violation")
	// ErrRankMismatch indicates a rank lookup disagrees with the feed.
	ErrRankMismatch = errors.New("rank mismatch")
	// ErrScoreMismatch indicates a listed score differs from the one expected
	// from the submitted workload.
	ErrScoreMismatch = errors.New("score mismatch")
	// ErrNothingToVerify indicates the feed came back empty.
	ErrNothingToVerify = errors.New("empty feed")
)
