package feed

import (
	"errors"

	"github.com/wolfman30/agent-console/internal/conversations"
	"github.com/wolfman30/agent-console/internal/suggestions"
)

var (
	// ErrUnknownConversation is returned when suggestions reference an unregistered conversation
	ErrUnknownConversation = errors.New("feed: suggestions reference unknown conversation")

	// ErrUnsupportedFormat is returned for seed files that are neither JSON nor YAML
	ErrUnsupportedFormat = errors.New("feed: unsupported seed format")
)

// IsPermanent reports whether resubmitting the same document cannot succeed.
func IsPermanent(err error) bool {
	for _, target := range []error{
		ErrUnknownConversation,
		suggestions.ErrInvalidSuggestion,
		suggestions.ErrDuplicateSuggestion,
		suggestions.ErrRetiredSuggestion,
		suggestions.ErrMissingConversationID,
		conversations.ErrInvalidConversation,
		conversations.ErrMissingConversationID,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
