package suggestions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const defaultRedisPrefix = "console:suggestions:"

// RedisStore keeps suggestions in Redis so several console processes share
// one pending set. Layout under the prefix:
//
//	list:{conversationID}  LIST of JSON suggestions, insertion order
//	index                  HASH suggestion id -> conversation id
//	retired                SET of resolved ids
//	conversations          ZSET conversation id scored by first-seed sequence
//	seq                    counter backing the ZSET scores
type RedisStore struct {
	redis  *redis.Client
	prefix string
	tracer trace.Tracer
}

// NewRedisStore wraps a go-redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	if client == nil {
		panic("suggestions: redis client required")
	}
	return &RedisStore{
		redis:  client,
		prefix: defaultRedisPrefix,
		tracer: otel.Tracer("agentconsole.internal.suggestions.redis"),
	}
}

// WithPrefix namespaces keys, e.g. per tenant or per test.
func (s *RedisStore) WithPrefix(prefix string) *RedisStore {
	if prefix != "" {
		s.prefix = prefix
	}
	return s
}

func (s *RedisStore) listKey(conversationID string) string { return s.prefix + "list:" + conversationID }
func (s *RedisStore) indexKey() string                     { return s.prefix + "index" }
func (s *RedisStore) retiredKey() string                   { return s.prefix + "retired" }
func (s *RedisStore) conversationsKey() string             { return s.prefix + "conversations" }
func (s *RedisStore) seqKey() string                       { return s.prefix + "seq" }

// Put replaces the list for conversationID after checking id invariants.
func (s *RedisStore) Put(ctx context.Context, conversationID string, list []Suggestion) error {
	prepared, err := prepareList(conversationID, list)
	if err != nil {
		return err
	}

	ctx, span := s.tracer.Start(ctx, "suggestions.redis.put",
		trace.WithAttributes(attribute.String("conversation_id", conversationID), attribute.Int("count", len(prepared))))
	defer span.End()

	if err := s.checkIDs(ctx, conversationID, prepared); err != nil {
		span.RecordError(err)
		return err
	}

	previous, err := s.ListFor(ctx, conversationID)
	if err != nil {
		span.RecordError(err)
		return err
	}

	var seq int64
	if len(prepared) > 0 {
		seq, err = s.redis.Incr(ctx, s.seqKey()).Result()
		if err != nil {
			span.RecordError(err)
			return fmt.Errorf("suggestions: next sequence: %w", err)
		}
	}

	encoded := make([]any, 0, len(prepared))
	mapping := make(map[string]any, len(prepared))
	for _, sugg := range prepared {
		data, err := json.Marshal(sugg)
		if err != nil {
			return fmt.Errorf("suggestions: marshal %s: %w", sugg.ID, err)
		}
		encoded = append(encoded, data)
		mapping[sugg.ID] = conversationID
	}

	pipe := s.redis.TxPipeline()
	pipe.Del(ctx, s.listKey(conversationID))
	if len(previous) > 0 {
		oldIDs := make([]string, 0, len(previous))
		for _, old := range previous {
			oldIDs = append(oldIDs, old.ID)
		}
		pipe.HDel(ctx, s.indexKey(), oldIDs...)
	}
	if len(prepared) == 0 {
		pipe.ZRem(ctx, s.conversationsKey(), conversationID)
	} else {
		pipe.RPush(ctx, s.listKey(conversationID), encoded...)
		pipe.HSet(ctx, s.indexKey(), mapping)
		pipe.ZAddNX(ctx, s.conversationsKey(), redis.Z{Score: float64(seq), Member: conversationID})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("suggestions: put %s: %w", conversationID, err)
	}
	return nil
}

func (s *RedisStore) checkIDs(ctx context.Context, conversationID string, list []Suggestion) error {
	if len(list) == 0 {
		return nil
	}
	pipe := s.redis.Pipeline()
	retired := make([]*redis.BoolCmd, len(list))
	owners := make([]*redis.StringCmd, len(list))
	for i, sugg := range list {
		retired[i] = pipe.SIsMember(ctx, s.retiredKey(), sugg.ID)
		owners[i] = pipe.HGet(ctx, s.indexKey(), sugg.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("suggestions: check ids: %w", err)
	}
	for i, sugg := range list {
		if retired[i].Val() {
			return fmt.Errorf("%w: %s", ErrRetiredSuggestion, sugg.ID)
		}
		owner, err := owners[i].Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return fmt.Errorf("suggestions: check owner %s: %w", sugg.ID, err)
		}
		if owner != conversationID {
			return fmt.Errorf("%w: %s already pending in %s", ErrDuplicateSuggestion, sugg.ID, owner)
		}
	}
	return nil
}

// ListFor returns the conversation's suggestions in insertion order.
func (s *RedisStore) ListFor(ctx context.Context, conversationID string) ([]Suggestion, error) {
	raw, err := s.redis.LRange(ctx, s.listKey(conversationID), 0, -1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("suggestions: list %s: %w", conversationID, err)
	}
	return decodeList(raw)
}

func decodeList(raw []string) ([]Suggestion, error) {
	out := make([]Suggestion, 0, len(raw))
	for _, item := range raw {
		var sugg Suggestion
		if err := json.Unmarshal([]byte(item), &sugg); err != nil {
			return nil, fmt.Errorf("suggestions: decode: %w", err)
		}
		out = append(out, sugg)
	}
	return out, nil
}

// removeRetries bounds how often Remove restarts after a concurrent write
// to the watched list.
const removeRetries = 5

// Remove deletes suggestionID from conversationID and retires the id. The
// list is watched so exactly one of several racing removers reports true.
func (s *RedisStore) Remove(ctx context.Context, conversationID, suggestionID string) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "suggestions.redis.remove",
		trace.WithAttributes(attribute.String("conversation_id", conversationID), attribute.String("suggestion_id", suggestionID)))
	defer span.End()

	key := s.listKey(conversationID)
	var removed bool
	txf := func(tx *redis.Tx) error {
		removed = false
		raw, err := tx.LRange(ctx, key, 0, -1).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		item, ok := findEncoded(raw, suggestionID)
		if !ok {
			return nil
		}
		var lrem *redis.IntCmd
		if _, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			lrem = pipe.LRem(ctx, key, 1, item)
			pipe.HDel(ctx, s.indexKey(), suggestionID)
			pipe.SAdd(ctx, s.retiredKey(), suggestionID)
			return nil
		}); err != nil {
			return err
		}
		removed = lrem.Val() > 0
		return nil
	}

	for attempt := 0; attempt < removeRetries; attempt++ {
		err := s.redis.Watch(ctx, txf, key)
		if err == nil {
			return removed, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		span.RecordError(err)
		return false, fmt.Errorf("suggestions: remove %s: %w", suggestionID, err)
	}
	span.RecordError(redis.TxFailedErr)
	return false, fmt.Errorf("suggestions: remove %s: %w", suggestionID, redis.TxFailedErr)
}

// findEncoded returns the raw list element holding suggestionID.
func findEncoded(raw []string, suggestionID string) (string, bool) {
	for _, item := range raw {
		var sugg Suggestion
		if err := json.Unmarshal([]byte(item), &sugg); err != nil {
			continue
		}
		if sugg.ID == suggestionID {
			return item, true
		}
	}
	return "", false
}

// ListAll returns every non-empty conversation list in seeding order.
func (s *RedisStore) ListAll(ctx context.Context) (Snapshot, error) {
	ctx, span := s.tracer.Start(ctx, "suggestions.redis.list_all")
	defer span.End()

	convIDs, err := s.redis.ZRange(ctx, s.conversationsKey(), 0, -1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		span.RecordError(err)
		return nil, fmt.Errorf("suggestions: list conversations: %w", err)
	}
	if len(convIDs) == 0 {
		return Snapshot{}, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.StringSliceCmd, len(convIDs))
	for i, id := range convIDs {
		cmds[i] = pipe.LRange(ctx, s.listKey(id), 0, -1)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		span.RecordError(err)
		return nil, fmt.Errorf("suggestions: list all: %w", err)
	}

	snap := make(Snapshot, 0, len(convIDs))
	for i, id := range convIDs {
		list, err := decodeList(cmds[i].Val())
		if err != nil {
			return nil, err
		}
		if len(list) == 0 {
			continue
		}
		snap = append(snap, Entry{ConversationID: id, Suggestions: list})
	}
	return snap, nil
}

// Get finds a pending suggestion by id through the index hash.
func (s *RedisStore) Get(ctx context.Context, suggestionID string) (Suggestion, bool, error) {
	owner, err := s.redis.HGet(ctx, s.indexKey(), suggestionID).Result()
	if errors.Is(err, redis.Nil) {
		return Suggestion{}, false, nil
	}
	if err != nil {
		return Suggestion{}, false, fmt.Errorf("suggestions: lookup %s: %w", suggestionID, err)
	}
	list, err := s.ListFor(ctx, owner)
	if err != nil {
		return Suggestion{}, false, err
	}
	for _, sugg := range list {
		if sugg.ID == suggestionID {
			return sugg, true, nil
		}
	}
	return Suggestion{}, false, nil
}

// Retired reports whether suggestionID was removed.
func (s *RedisStore) Retired(ctx context.Context, suggestionID string) (bool, error) {
	ok, err := s.redis.SIsMember(ctx, s.retiredKey(), suggestionID).Result()
	if err != nil {
		return false, fmt.Errorf("suggestions: retired %s: %w", suggestionID, err)
	}
	return ok, nil
}
