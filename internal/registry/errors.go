package registry

import "errors"

// ErrAlreadyRunning is returned by Start when a worker handle already
// exists for the given task ID.
var ErrAlreadyRunning = errors.New("registry: task already running")
