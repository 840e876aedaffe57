package domain

import "errors"

var (
	ErrNotFound               = errors.New("not found")
	ErrAlreadyExists          = errors.New("already exists")
	ErrPersistenceUnavailable = errors.New("persistence unavailable")
	ErrWSDisconnect           = errors.New("websocket disconnected")
	ErrAnalystUnavailable     = errors.New("analyst unavailable")
	ErrMalformedResponse      = errors.New("malformed analyst response")
	ErrQueueFull              = errors.New("queue full")
	ErrLockHeld               = errors.New("lock already held")
	ErrUnauthorized           = errors.New("unauthorized")
	ErrContextDone            = errors.New("context cancelled")
)
