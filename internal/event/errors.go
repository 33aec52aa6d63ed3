package event

import "errors"

// ErrDecodeMismatch marks raw data that does not fit the ABI or the
// argument schema expected for an event.
var ErrDecodeMismatch = errors.New("decode mismatch")
