package resolution

import "errors"

var (
	// ErrRegistryMiss is returned when a suggestion's conversation is not registered
	ErrRegistryMiss = errors.New("resolution: conversation missing from registry")

	// ErrInvalidPayload is returned when the effective payload lacks a required field
	ErrInvalidPayload = errors.New("resolution: invalid payload")

	// ErrSuggestionNotResolved is returned for feedback on an id that was never resolved
	ErrSuggestionNotResolved = errors.New("resolution: suggestion not resolved")
)
