package hook

import "errors"

var (
	ErrHookNotFound      = errors.New("hook not found")
	ErrHookAlreadyExists = errors.New("hook already exists")
	ErrEmptyHookID       = errors.New("hook id cannot be empty")
)
