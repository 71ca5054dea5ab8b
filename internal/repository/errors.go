package repository

import "errors"

// ErrNotFound is returned when the requested project, deployment, or log
// record does not exist.
var ErrNotFound = errors.New("repository: not found")
