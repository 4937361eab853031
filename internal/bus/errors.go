package bus

import "errors"

// ErrClosed is returned by Subscribe after Close.
var ErrClosed = errors.New("bus closed")
