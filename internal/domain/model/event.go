package model

import (
	"fmt"
	"strings"
	"time"
)

// EventKind names an engagement action on a video.
type EventKind string

// Supported engagement kinds. Each maps to a single ±1 counter change.
const (
	KindView      EventKind = "view"
	KindLike      EventKind = "like"
	KindUnlike    EventKind = "unlike"
	KindDislike   EventKind = "dislike"
	KindUndislike EventKind = "undislike"
	KindComment   EventKind = "comment"
	KindUncomment EventKind = "uncomment"
)

var kindDeltas = map[EventKind]Delta{ //nolint:gochecknoglobals // immutable lookup table
	KindView:      {Views: 1},
	KindLike:      {Likes: 1},
	KindUnlike:    {Likes: -1},
	KindDislike:   {Dislikes: 1},
	KindUndislike: {Dislikes: -1},
	KindComment:   {Comments: 1},
	KindUncomment: {Comments: -1},
}

// ParseEventKind validates and normalizes s.
func ParseEventKind(s string) (EventKind, error) {
	k := EventKind(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := kindDeltas[k]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownEventKind, s)
	}
	return k, nil
}

// Delta returns the counter change for the kind. Unknown kinds yield a zero delta.
func (k EventKind) Delta() Delta {
	return kindDeltas[k]
}

// EngagementEvent is an engagement action submitted by clients.
type EngagementEvent struct {
	EventID string // unique id for idempotency
	VideoID string
	Kind    EventKind
	TS      time.Time
}

// WatchRecord is one entry of a user's watch history.
type WatchRecord struct {
	UserID    string
	VideoID   string
	WatchedAt time.Time
}
