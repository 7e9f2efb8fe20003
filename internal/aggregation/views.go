package aggregation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/wolfman30/agent-console/internal/conversations"
	"github.com/wolfman30/agent-console/internal/suggestions"
)

// FlatSuggestion is one pending suggestion enriched with its contact.
type FlatSuggestion struct {
	ConversationID string                 `json:"conversation_id"`
	ContactName    string                 `json:"contact_name"`
	ContactAvatar  string                 `json:"contact_avatar,omitempty"`
	Suggestion     suggestions.Suggestion `json:"suggestion"`
}

// GroupKey identifies "the same ask" across conversations.
type GroupKey struct {
	Kind  suggestions.ActionKind
	Title string
}

// KeyOf returns the grouping key of a suggestion.
func KeyOf(s suggestions.Suggestion) GroupKey {
	return GroupKey{Kind: s.Kind, Title: s.Title}
}

// String renders the key as KIND/title.
func (k GroupKey) String() string {
	return string(k.Kind) + "/" + k.Title
}

// ParseGroupKey is the inverse of GroupKey.String.
func ParseGroupKey(raw string) (GroupKey, error) {
	kind, title, ok := strings.Cut(raw, "/")
	if !ok || strings.TrimSpace(kind) == "" {
		return GroupKey{}, fmt.Errorf("%w: %q", ErrInvalidGroupKey, raw)
	}
	return GroupKey{Kind: suggestions.ActionKind(kind), Title: title}, nil
}

// BatchMember is one contact's share of a batch group.
type BatchMember struct {
	ConversationID string `json:"conversation_id"`
	ContactName    string `json:"contact_name"`
	ContactAvatar  string `json:"contact_avatar,omitempty"`
	SuggestionID   string `json:"suggestion_id"`
}

// BatchGroup collapses identical suggestions from several contacts into one operation.
type BatchGroup struct {
	Key         string                 `json:"key"`
	Kind        suggestions.ActionKind `json:"action_kind"`
	Title       string                 `json:"title"`
	Description string                 `json:"description"`
	// Payload is the first member's payload and is used for every member.
	Payload suggestions.Payload `json:"payload,omitempty"`
	Members []BatchMember       `json:"members"`
	// DivergentPayload is set when members disagree on the payload.
	DivergentPayload bool `json:"divergent_payload"`
}

// ContactCount returns the number of distinct conversations in the group.
func (g BatchGroup) ContactCount() int {
	seen := make(map[string]struct{}, len(g.Members))
	for _, m := range g.Members {
		seen[m.ConversationID] = struct{}{}
	}
	return len(seen)
}

// ConversationBucket is the flattened view of a single conversation.
type ConversationBucket struct {
	ConversationID string                   `json:"conversation_id"`
	ContactName    string                   `json:"contact_name"`
	ContactAvatar  string                   `json:"contact_avatar,omitempty"`
	Suggestions    []suggestions.Suggestion `json:"suggestions"`
}

// Flatten emits one record per (conversation, suggestion) pair in snapshot
// order. Conversations missing from contacts yield empty contact fields.
func Flatten(snap suggestions.Snapshot, contacts map[string]conversations.Contact) []FlatSuggestion {
	out := make([]FlatSuggestion, 0, snap.Count())
	for _, entry := range snap {
		contact := contacts[entry.ConversationID]
		for _, s := range entry.Suggestions {
			out = append(out, FlatSuggestion{
				ConversationID: entry.ConversationID,
				ContactName:    contact.Name,
				ContactAvatar:  contact.Avatar,
				Suggestion:     s,
			})
		}
	}
	return out
}

// SortByPriority returns a copy ordered HIGH, MEDIUM, LOW. The sort is
// stable: equal priorities keep their input order.
func SortByPriority(items []FlatSuggestion) []FlatSuggestion {
	out := append([]FlatSuggestion(nil), items...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Suggestion.Priority.Rank() > out[j].Suggestion.Priority.Rank()
	})
	return out
}

// FilterByPriority keeps items of exactly the given priority; nil keeps all.
func FilterByPriority(items []FlatSuggestion, priority *suggestions.Priority) []FlatSuggestion {
	if priority == nil {
		return append([]FlatSuggestion(nil), items...)
	}
	out := make([]FlatSuggestion, 0, len(items))
	for _, item := range items {
		if item.Suggestion.Priority == *priority {
			out = append(out, item)
		}
	}
	return out
}

// Group partitions items by (kind, title) and returns the groups spanning
// more than one contact, ordered by their first member's position.
func Group(items []FlatSuggestion) []BatchGroup {
	var order []GroupKey
	buckets := make(map[GroupKey][]FlatSuggestion)
	for _, item := range items {
		key := KeyOf(item.Suggestion)
		if _, ok := buckets[key]; !ok {
			order = append(order, key)
		}
		buckets[key] = append(buckets[key], item)
	}

	var groups []BatchGroup
	for _, key := range order {
		members := buckets[key]
		first := members[0].Suggestion
		group := BatchGroup{
			Key:         key.String(),
			Kind:        key.Kind,
			Title:       key.Title,
			Description: first.Description,
			Payload:     first.Payload.Clone(),
			Members:     make([]BatchMember, 0, len(members)),
		}
		for _, m := range members {
			group.Members = append(group.Members, BatchMember{
				ConversationID: m.ConversationID,
				ContactName:    m.ContactName,
				ContactAvatar:  m.ContactAvatar,
				SuggestionID:   m.Suggestion.ID,
			})
			if !m.Suggestion.Payload.Equal(first.Payload) {
				group.DivergentPayload = true
			}
		}
		if group.ContactCount() > 1 {
			groups = append(groups, group)
		}
	}
	return groups
}

// Individual drops every item that belongs to one of groups.
func Individual(items []FlatSuggestion, groups []BatchGroup) []FlatSuggestion {
	batched := make(map[string]struct{})
	for _, g := range groups {
		for _, m := range g.Members {
			batched[m.SuggestionID] = struct{}{}
		}
	}
	out := make([]FlatSuggestion, 0, len(items))
	for _, item := range items {
		if _, ok := batched[item.Suggestion.ID]; !ok {
			out = append(out, item)
		}
	}
	return out
}

// ByConversation buckets items per conversation in first-appearance order.
func ByConversation(items []FlatSuggestion) []ConversationBucket {
	var out []ConversationBucket
	pos := make(map[string]int)
	for _, item := range items {
		i, ok := pos[item.ConversationID]
		if !ok {
			i = len(out)
			pos[item.ConversationID] = i
			out = append(out, ConversationBucket{
				ConversationID: item.ConversationID,
				ContactName:    item.ContactName,
				ContactAvatar:  item.ContactAvatar,
			})
		}
		out[i].Suggestions = append(out[i].Suggestions, item.Suggestion)
	}
	return out
}
