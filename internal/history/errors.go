package history

import "errors"

// ErrInvalidQuery is returned for a malformed date, data type, unit or an
// inverted range.
var ErrInvalidQuery = errors.New("history: invalid query")
