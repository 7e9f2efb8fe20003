package conversations

import "errors"

var (
	// ErrConversationNotFound is returned when a conversation id is not registered
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrMissingConversationID is returned when a conversation has no id
	ErrMissingConversationID = errors.New("conversation id is required")

	// ErrInvalidConversation is returned for structurally invalid conversations
	ErrInvalidConversation = errors.New("invalid conversation")

	// ErrInvalidListView is returned for an unknown inbox filter
	ErrInvalidListView = errors.New("invalid list view")
)
