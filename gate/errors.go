package gate

import "errors"

var (
	ErrAlreadyStarted = errors.New("gate already started")
	ErrClosed         = errors.New("gate is closed")
	ErrNoNavigator    = errors.New("gate requires a navigator")
)
