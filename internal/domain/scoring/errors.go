package scoring

import "errors"

// ErrUnknownMode is returned by ByName for unsupported scorer names.
var ErrUnknownMode = errors.New("unknown scoring mode")
