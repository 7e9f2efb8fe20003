package suggestions

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Store holds the pending suggestions of every conversation. Suggestions are
// never edited in place: the feed replaces lists and resolution removes items.
type Store interface {
	// Put replaces the suggestion list of a conversation. All-or-nothing.
	Put(ctx context.Context, conversationID string, list []Suggestion) error
	// ListFor returns suggestions in insertion order; empty when none.
	ListFor(ctx context.Context, conversationID string) ([]Suggestion, error)
	// Remove deletes and retires a suggestion. Absent ids are a no-op.
	Remove(ctx context.Context, conversationID, suggestionID string) (bool, error)
	// ListAll returns every non-empty conversation list in seeding order.
	ListAll(ctx context.Context) (Snapshot, error)
	// Get looks a suggestion up by its system-wide id.
	Get(ctx context.Context, suggestionID string) (Suggestion, bool, error)
	// Retired reports whether the id was removed by resolution.
	Retired(ctx context.Context, suggestionID string) (bool, error)
}

// Seed applies Put for every entry of the snapshot, in order.
func Seed(ctx context.Context, store Store, snap Snapshot) error {
	for _, entry := range snap {
		if err := store.Put(ctx, entry.ConversationID, entry.Suggestions); err != nil {
			return err
		}
	}
	return nil
}

// prepareList validates a list destined for conversationID and stamps the owner.
func prepareList(conversationID string, list []Suggestion) ([]Suggestion, error) {
	if strings.TrimSpace(conversationID) == "" {
		return nil, ErrMissingConversationID
	}
	out := make([]Suggestion, 0, len(list))
	seen := make(map[string]struct{}, len(list))
	for _, s := range list {
		if err := s.Validate(); err != nil {
			return nil, err
		}
		if s.ConversationID != "" && s.ConversationID != conversationID {
			return nil, fmt.Errorf("%w: %s belongs to %s, not %s", ErrInvalidSuggestion, s.ID, s.ConversationID, conversationID)
		}
		if _, dup := seen[s.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSuggestion, s.ID)
		}
		seen[s.ID] = struct{}{}

		s = s.clone()
		s.ConversationID = conversationID
		out = append(out, s)
	}
	return out, nil
}

// InMemoryStore is a Store kept in process memory.
type InMemoryStore struct {
	mu      sync.RWMutex
	order   []string
	lists   map[string][]Suggestion
	index   map[string]string
	retired map[string]struct{}
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		lists:   make(map[string][]Suggestion),
		index:   make(map[string]string),
		retired: make(map[string]struct{}),
	}
}

// Put replaces the list for conversationID after checking id invariants.
func (s *InMemoryStore) Put(ctx context.Context, conversationID string, list []Suggestion) error {
	prepared, err := prepareList(conversationID, list)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sugg := range prepared {
		if _, gone := s.retired[sugg.ID]; gone {
			return fmt.Errorf("%w: %s", ErrRetiredSuggestion, sugg.ID)
		}
		if owner, ok := s.index[sugg.ID]; ok && owner != conversationID {
			return fmt.Errorf("%w: %s already pending in %s", ErrDuplicateSuggestion, sugg.ID, owner)
		}
	}

	for _, old := range s.lists[conversationID] {
		delete(s.index, old.ID)
	}
	if len(prepared) == 0 {
		delete(s.lists, conversationID)
		s.dropOrder(conversationID)
		return nil
	}
	if _, known := s.lists[conversationID]; !known {
		s.order = append(s.order, conversationID)
	}
	s.lists[conversationID] = prepared
	for _, sugg := range prepared {
		s.index[sugg.ID] = conversationID
	}
	return nil
}

func (s *InMemoryStore) dropOrder(conversationID string) {
	for i, id := range s.order {
		if id == conversationID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}

// ListFor returns a copy of the conversation's suggestions.
func (s *InMemoryStore) ListFor(ctx context.Context, conversationID string) ([]Suggestion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneList(s.lists[conversationID]), nil
}

// Remove deletes suggestionID from conversationID and retires the id.
func (s *InMemoryStore) Remove(ctx context.Context, conversationID, suggestionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.lists[conversationID]
	for i, sugg := range list {
		if sugg.ID != suggestionID {
			continue
		}
		s.lists[conversationID] = append(list[:i:i], list[i+1:]...)
		delete(s.index, suggestionID)
		s.retired[suggestionID] = struct{}{}
		return true, nil
	}
	return false, nil
}

// ListAll returns the ordered snapshot, skipping conversations with no suggestions.
func (s *InMemoryStore) ListAll(ctx context.Context) (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := make(Snapshot, 0, len(s.order))
	for _, id := range s.order {
		list := s.lists[id]
		if len(list) == 0 {
			continue
		}
		snap = append(snap, Entry{ConversationID: id, Suggestions: cloneList(list)})
	}
	return snap, nil
}

// Get finds a pending suggestion anywhere in the store.
func (s *InMemoryStore) Get(ctx context.Context, suggestionID string) (Suggestion, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	owner, ok := s.index[suggestionID]
	if !ok {
		return Suggestion{}, false, nil
	}
	for _, sugg := range s.lists[owner] {
		if sugg.ID == suggestionID {
			return sugg.clone(), true, nil
		}
	}
	return Suggestion{}, false, nil
}

// Retired reports whether suggestionID was removed.
func (s *InMemoryStore) Retired(ctx context.Context, suggestionID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.retired[suggestionID]
	return ok, nil
}

func cloneList(list []Suggestion) []Suggestion {
	out := make([]Suggestion, len(list))
	for i, s := range list {
		out[i] = s.clone()
	}
	return out
}
