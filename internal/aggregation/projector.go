package aggregation

import (
	"context"
	"errors"
	"fmt"

	"github.com/wolfman30/agent-console/internal/conversations"
	"github.com/wolfman30/agent-console/internal/suggestions"
)

var (
	// ErrGroupNotFound is returned when a key no longer names a batch group
	ErrGroupNotFound = errors.New("batch group not found")

	// ErrInvalidGroupKey is returned for a malformed group key
	ErrInvalidGroupKey = errors.New("invalid group key")
)

// ContactLookup supplies display metadata for a conversation.
type ContactLookup interface {
	Contact(ctx context.Context, conversationID string) (conversations.Contact, error)
}

// Projector derives read-only views from a suggestion store snapshot. It
// never mutates the store or the registry.
type Projector struct {
	store    suggestions.Store
	contacts ContactLookup
}

// NewProjector wires a projector.
func NewProjector(store suggestions.Store, contacts ContactLookup) *Projector {
	if store == nil || contacts == nil {
		panic("aggregation: store and contact lookup required")
	}
	return &Projector{store: store, contacts: contacts}
}

func (p *Projector) flatten(ctx context.Context) ([]FlatSuggestion, error) {
	snap, err := p.store.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("aggregation: snapshot: %w", err)
	}
	contacts := make(map[string]conversations.Contact, len(snap))
	for _, entry := range snap {
		contact, err := p.contacts.Contact(ctx, entry.ConversationID)
		if err != nil {
			if errors.Is(err, conversations.ErrConversationNotFound) {
				continue
			}
			return nil, fmt.Errorf("aggregation: contact %s: %w", entry.ConversationID, err)
		}
		contacts[entry.ConversationID] = contact
	}
	return Flatten(snap, contacts), nil
}

// FlattenAll returns every pending suggestion, highest priority first,
// optionally restricted to one priority.
func (p *Projector) FlattenAll(ctx context.Context, priority *suggestions.Priority) ([]FlatSuggestion, error) {
	flat, err := p.flatten(ctx)
	if err != nil {
		return nil, err
	}
	return SortByPriority(FilterByPriority(flat, priority)), nil
}

// GroupBatchable returns the batch groups over all pending suggestions.
func (p *Projector) GroupBatchable(ctx context.Context) ([]BatchGroup, error) {
	flat, err := p.flatten(ctx)
	if err != nil {
		return nil, err
	}
	return Group(flat), nil
}

// Individual returns suggestions outside any batch group, highest priority first.
func (p *Projector) Individual(ctx context.Context, priority *suggestions.Priority) ([]FlatSuggestion, error) {
	flat, err := p.flatten(ctx)
	if err != nil {
		return nil, err
	}
	single := Individual(flat, Group(flat))
	return SortByPriority(FilterByPriority(single, priority)), nil
}

// IndividualFor is Individual restricted to one conversation.
func (p *Projector) IndividualFor(ctx context.Context, conversationID string) ([]suggestions.Suggestion, error) {
	items, err := p.Individual(ctx, nil)
	if err != nil {
		return nil, err
	}
	out := []suggestions.Suggestion{}
	for _, item := range items {
		if item.ConversationID == conversationID {
			out = append(out, item.Suggestion)
		}
	}
	return out, nil
}

// ByConversation buckets the flattened view per conversation.
func (p *Projector) ByConversation(ctx context.Context, priority *suggestions.Priority) ([]ConversationBucket, error) {
	items, err := p.FlattenAll(ctx, priority)
	if err != nil {
		return nil, err
	}
	return ByConversation(items), nil
}

// Batch resolves a key to the group it currently names.
func (p *Projector) Batch(ctx context.Context, key GroupKey) (BatchGroup, error) {
	groups, err := p.GroupBatchable(ctx)
	if err != nil {
		return BatchGroup{}, err
	}
	for _, g := range groups {
		if g.Kind == key.Kind && g.Title == key.Title {
			return g, nil
		}
	}
	return BatchGroup{}, fmt.Errorf("%w: %s", ErrGroupNotFound, key)
}
