package registry

import "errors"

var (
	ErrNotFound = errors.New("registry: agent not found")
	ErrConflict = errors.New("registry: agent already registered")
)
