package criteria

import "errors"

var ErrNotFound = errors.New("not found")
