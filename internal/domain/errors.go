package domain

import "errors"

var (
	// ErrInvalidRole signals caller misuse of the message log and is the one
	// error that propagates out of it.
	ErrInvalidRole = errors.New("invalid message role")

	ErrSessionNotFound = errors.New("session not found")
	ErrInsightExists   = errors.New("insight already exists for session")
	ErrInsightNotFound = errors.New("insight not found")
	ErrChatbotNotFound = errors.New("chatbot not found")
)
