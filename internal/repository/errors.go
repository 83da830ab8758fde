package repository

import "errors"

// ErrCorruptRecord marks a stored value that could not be decoded.
var ErrCorruptRecord = errors.New("corrupt stored record")
