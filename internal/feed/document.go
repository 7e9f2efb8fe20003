package feed

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wolfman30/agent-console/internal/conversations"
	"github.com/wolfman30/agent-console/internal/suggestions"
)

// Format of a seed document.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Document is one upstream delivery: conversations to register and the
// suggestion lists to seed for them.
type Document struct {
	Conversations []conversations.Conversation `json:"conversations" yaml:"conversations"`
	Suggestions   suggestions.Snapshot         `json:"suggestions" yaml:"suggestions"`
}

// Empty reports whether the document carries nothing to apply.
func (d Document) Empty() bool {
	return len(d.Conversations) == 0 && len(d.Suggestions) == 0
}

// FormatFor picks a format from a file extension.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
}

// Decode parses data in the given format. Unknown JSON fields are rejected
// so typos in hand-written seed files surface early.
func Decode(data []byte, format Format) (Document, error) {
	var doc Document
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&doc); err != nil {
			return Document{}, fmt.Errorf("feed: decode json: %w", err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return Document{}, fmt.Errorf("feed: decode yaml: %w", err)
		}
	default:
		return Document{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	return doc, nil
}

// LoadFile reads and decodes a JSON or YAML seed file.
func LoadFile(path string) (Document, error) {
	format, err := FormatFor(path)
	if err != nil {
		return Document{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("feed: read %s: %w", path, err)
	}
	return Decode(data, format)
}

// Ledger reports what the suggestion store already holds for an id: the
// conversation it is pending in (empty when not pending) and whether it was
// retired by a resolution.
type Ledger func(suggestionID string) (owner string, retired bool, err error)

// Validate checks the document without touching any store: conversations
// must be valid, suggestions must be valid and unique, and every suggestion
// list must belong to a conversation in the document or in known.
func (d Document) Validate(known func(conversationID string) bool) error {
	return d.ValidateWith(known, nil)
}

// ValidateWith is Validate plus the store rules Put enforces, so a document
// the store would refuse halfway is rejected before the first write. Lists
// are checked in document order: an id pending elsewhere is accepted when an
// earlier entry replaces its owner's list.
func (d Document) ValidateWith(known func(conversationID string) bool, ledger Ledger) error {
	declared := make(map[string]struct{}, len(d.Conversations))
	for _, conv := range d.Conversations {
		if err := conv.Validate(); err != nil {
			return fmt.Errorf("feed: conversation %q: %w", conv.ID, err)
		}
		declared[conv.ID] = struct{}{}
	}

	seen := make(map[string]string)
	replaced := make(map[string]struct{}, len(d.Suggestions))
	for _, entry := range d.Suggestions {
		if _, ok := declared[entry.ConversationID]; !ok && (known == nil || !known(entry.ConversationID)) {
			return fmt.Errorf("%w: %s", ErrUnknownConversation, entry.ConversationID)
		}
		for _, s := range entry.Suggestions {
			if err := s.Validate(); err != nil {
				return fmt.Errorf("feed: conversation %s: %w", entry.ConversationID, err)
			}
			if owner, dup := seen[s.ID]; dup {
				return fmt.Errorf("feed: %w: %s in %s and %s", suggestions.ErrDuplicateSuggestion, s.ID, owner, entry.ConversationID)
			}
			seen[s.ID] = entry.ConversationID
			if ledger == nil {
				continue
			}
			owner, retired, err := ledger(s.ID)
			if err != nil {
				return fmt.Errorf("feed: store lookup %s: %w", s.ID, err)
			}
			if retired {
				return fmt.Errorf("feed: conversation %s: %w: %s", entry.ConversationID, suggestions.ErrRetiredSuggestion, s.ID)
			}
			if _, freed := replaced[owner]; owner != "" && owner != entry.ConversationID && !freed {
				return fmt.Errorf("feed: %w: %s already pending in %s", suggestions.ErrDuplicateSuggestion, s.ID, owner)
			}
		}
		replaced[entry.ConversationID] = struct{}{}
	}
	return nil
}
