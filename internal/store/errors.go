package store

import "errors"

// ErrTaskNotFound is returned by FetchTask (and anything keyed off a task
// ID) when no row exists for that ID.
var ErrTaskNotFound = errors.New("store: task not found")

// ErrTaskAlreadyExists is returned by CreateTask on a duplicate task ID.
var ErrTaskAlreadyExists = errors.New("store: task already exists")

// ErrAgentRunNotFound is returned by FinishAgentRun when runID is unknown.
var ErrAgentRunNotFound = errors.New("store: agent run not found")
