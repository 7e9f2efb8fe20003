package suggestions

import "errors"

var (
	// ErrInvalidSuggestion is returned when a suggestion fails validation
	ErrInvalidSuggestion = errors.New("invalid suggestion")

	// ErrInvalidPriority is returned for an unknown priority name
	ErrInvalidPriority = errors.New("invalid priority")

	// ErrDuplicateSuggestion is returned when an id is already held by any conversation
	ErrDuplicateSuggestion = errors.New("duplicate suggestion id")

	// ErrRetiredSuggestion is returned when a resolved id is seeded again
	ErrRetiredSuggestion = errors.New("suggestion id already resolved")

	// ErrMissingConversationID is returned when a suggestion list has no owner
	ErrMissingConversationID = errors.New("conversation id is required")
)
