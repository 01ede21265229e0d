package push

import "errors"

var (
	ErrDisabled   = errors.New("push notifications are disabled")
	ErrNoSessions = errors.New("no active session to register a pusher for")
	ErrMissingKey = errors.New("pushkey is required")
	ErrMissingApp = errors.New("app id is required")
)
