package cab

import "errors"

// Configuration and State errors are fatal and returned to the caller of the
// triggering operation; Item errors are recovered locally (the item is
// skipped, a warning is logged) and never reach the caller as a hard
// failure.
var (
	// ErrConfiguration covers a volume limit too small, an out-of-range
	// reserved area, or an unknown/out-of-range compression method.
	ErrConfiguration = errors.New("cab: configuration error")
	// ErrState covers operations attempted out of order: adding a file
	// before a folder exists, a folder before a header exists, or any
	// operation on a closed archive.
	ErrState = errors.New("cab: invalid archive state")
	// ErrItem covers a single skipped item: a name too long to encode, or
	// a source file that could not be opened. A read failure after the
	// source is open is returned as a fatal error instead.
	ErrItem = errors.New("cab: item skipped")
)
