package session

import "errors"

var (
	ErrSessionNotFound    = errors.New("session not found")
	ErrSessionExists      = errors.New("session already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrRegistryClosed     = errors.New("registry is closed")
	ErrNoAccountStore     = errors.New("session has no account store")
)
