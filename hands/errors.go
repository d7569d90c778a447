/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package hands

import "errors"

var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrQueueNotFound     = errors.New("queue not found")
	ErrMalformedIdentity = errors.New("malformed identity")
	ErrNoQueues          = errors.New("at least one queue name is required")
	ErrInvalidName       = errors.New("name must not be blank")
)
