package conversations

import (
	"context"
	"sort"
	"sync"
)

// Registry maps conversation ids to contacts and their message timelines.
// It never holds suggestion data.
type Registry interface {
	Get(ctx context.Context, id string) (Conversation, error)
	Contact(ctx context.Context, id string) (Contact, error)
	List(ctx context.Context, filter ListFilter) ([]Conversation, error)
	Messages(ctx context.Context, id string) ([]Message, error)
	AppendMessage(ctx context.Context, id string, msg Message) error
	Upsert(ctx context.Context, conv Conversation) error
	Delete(ctx context.Context, id string) error
}

// SortForInbox orders pinned conversations first, otherwise keeping the input order.
func SortForInbox(convs []Conversation) {
	sort.SliceStable(convs, func(i, j int) bool {
		return convs[i].Pinned && !convs[j].Pinned
	})
}

// InMemoryRegistry is a Registry backed by process memory.
type InMemoryRegistry struct {
	mu    sync.RWMutex
	order []string
	convs map[string]*Conversation
}

// NewInMemoryRegistry creates an empty registry.
func NewInMemoryRegistry() *InMemoryRegistry {
	return &InMemoryRegistry{
		convs: make(map[string]*Conversation),
	}
}

// Get returns a copy of the conversation including its messages.
func (r *InMemoryRegistry) Get(ctx context.Context, id string) (Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conv, ok := r.convs[id]
	if !ok {
		return Conversation{}, ErrConversationNotFound
	}
	return conv.clone(), nil
}

// Contact returns the conversation's contact.
func (r *InMemoryRegistry) Contact(ctx context.Context, id string) (Contact, error) {
	conv, err := r.Get(ctx, id)
	if err != nil {
		return Contact{}, err
	}
	return conv.Contact, nil
}

// List returns matching conversations, pinned first.
func (r *InMemoryRegistry) List(ctx context.Context, filter ListFilter) ([]Conversation, error) {
	r.mu.RLock()
	out := make([]Conversation, 0, len(r.order))
	for _, id := range r.order {
		conv := r.convs[id]
		if filter.Matches(*conv) {
			out = append(out, conv.clone())
		}
	}
	r.mu.RUnlock()

	SortForInbox(out)
	return out, nil
}

// Messages returns the timeline in append order.
func (r *InMemoryRegistry) Messages(ctx context.Context, id string) ([]Message, error) {
	conv, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return conv.Messages, nil
}

// AppendMessage adds msg to the end of the timeline.
func (r *InMemoryRegistry) AppendMessage(ctx context.Context, id string, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	conv, ok := r.convs[id]
	if !ok {
		return ErrConversationNotFound
	}
	conv.Messages = append(conv.Messages, msg.clone())
	return nil
}

// Upsert registers a conversation or refreshes its contact metadata.
// An existing timeline is never rewritten; seed messages with unseen ids are appended.
func (r *InMemoryRegistry) Upsert(ctx context.Context, conv Conversation) error {
	if err := conv.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.convs[conv.ID]
	if !ok {
		stored := conv.clone()
		r.convs[conv.ID] = &stored
		r.order = append(r.order, conv.ID)
		return nil
	}

	fresh := conv.clone()
	existing.Contact = fresh.Contact
	existing.UnreadCount = fresh.UnreadCount
	existing.Pinned = fresh.Pinned

	seen := make(map[string]struct{}, len(existing.Messages))
	for _, m := range existing.Messages {
		seen[m.ID] = struct{}{}
	}
	for _, m := range fresh.Messages {
		if _, dup := seen[m.ID]; !dup {
			existing.Messages = append(existing.Messages, m)
		}
	}
	return nil
}

// Delete removes a conversation and its timeline.
func (r *InMemoryRegistry) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.convs[id]; !ok {
		return ErrConversationNotFound
	}
	delete(r.convs, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}
