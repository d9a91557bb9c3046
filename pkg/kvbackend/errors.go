package kvbackend

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrUnknownCommand = errors.New("unknown command")
	ErrEmptyKey       = errors.New("empty key")
	ErrClosed         = errors.New("backend closed")
)
