package mailbox

import "errors"

var (
	ErrNotFound          = errors.New("mailbox: not found")
	ErrInvalidPath       = errors.New("mailbox: invalid inbox path")
	ErrInvalidTransition = errors.New("mailbox: invalid status transition")
)
