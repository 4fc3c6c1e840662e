package storage

import "errors"

// ErrCorruptState is returned when the state file cannot be decoded.
var ErrCorruptState = errors.New("corrupt state file")
