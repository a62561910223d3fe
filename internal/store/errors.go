package store

import "errors"

// ErrDuplicate is returned by inserts that hit a uniqueness constraint the
// caller treats as "already exists".
var ErrDuplicate = errors.New("duplicate entry")
