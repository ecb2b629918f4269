package model

import "errors"

// ErrUnknownEventKind is returned for engagement kinds outside the supported set.
var ErrUnknownEventKind = errors.New("unknown event kind")
