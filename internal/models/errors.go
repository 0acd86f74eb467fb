package models

import "errors"

var (
	// ErrConversationNotFound covers both a missing conversation and a
	// conversation the caller is not a participant of, so existence is
	// never leaked.
	ErrConversationNotFound = errors.New("conversation not found")

	ErrEmptyMessage       = errors.New("message must have either text or media")
	ErrInvalidRecipient   = errors.New("invalid recipient")
	ErrUserExists         = errors.New("username already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
)
