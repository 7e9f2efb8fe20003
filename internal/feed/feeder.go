package feed

import (
	"context"
	"errors"
	"fmt"

	"github.com/wolfman30/agent-console/internal/conversations"
	"github.com/wolfman30/agent-console/internal/observability/metrics"
	"github.com/wolfman30/agent-console/internal/suggestions"
	"github.com/wolfman30/agent-console/pkg/logging"
)

// Result summarizes an applied document.
type Result struct {
	Conversations int `json:"conversations"`
	Suggestions   int `json:"suggestions"`
}

// Feeder applies upstream documents to the registry and the suggestion store.
type Feeder struct {
	registry conversations.Registry
	store    suggestions.Store
	metrics  *metrics.ConsoleMetrics
	logger   *logging.Logger
}

func NewFeeder(registry conversations.Registry, store suggestions.Store, logger *logging.Logger) *Feeder {
	if registry == nil || store == nil {
		panic("feed: registry and store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Feeder{registry: registry, store: store, logger: logger}
}

func (f *Feeder) WithMetrics(m *metrics.ConsoleMetrics) *Feeder {
	f.metrics = m
	return f
}

// Apply registers the document's conversations, then seeds its suggestion
// lists. A document is rejected before anything is written when it has
// suggestions for conversations that are neither in the document nor in the
// registry, or ids the store would refuse (retired, or pending in a
// conversation the document does not replace first).
func (f *Feeder) Apply(ctx context.Context, doc Document, source string) (Result, error) {
	var lookupErr error
	known := func(id string) bool {
		_, err := f.registry.Get(ctx, id)
		if err != nil && !errors.Is(err, conversations.ErrConversationNotFound) {
			lookupErr = err
		}
		return err == nil
	}
	if err := doc.ValidateWith(known, f.ledger(ctx)); err != nil {
		f.metrics.ObserveSeed(source, "rejected")
		if lookupErr != nil {
			return Result{}, fmt.Errorf("feed: registry lookup: %w", lookupErr)
		}
		return Result{}, err
	}

	var res Result
	for _, conv := range doc.Conversations {
		if err := f.registry.Upsert(ctx, conv); err != nil {
			f.metrics.ObserveSeed(source, "error")
			return res, fmt.Errorf("feed: upsert %s: %w", conv.ID, err)
		}
		res.Conversations++
	}
	for _, entry := range doc.Suggestions {
		if err := f.store.Put(ctx, entry.ConversationID, entry.Suggestions); err != nil {
			f.metrics.ObserveSeed(source, "error")
			return res, fmt.Errorf("feed: seed %s: %w", entry.ConversationID, err)
		}
		res.Suggestions += len(entry.Suggestions)
	}

	f.metrics.ObserveSeed(source, "ok")
	f.logger.Info("feed: document applied", "source", source,
		"conversations", res.Conversations, "suggestions", res.Suggestions)
	return res, nil
}

func (f *Feeder) ledger(ctx context.Context) Ledger {
	return func(id string) (string, bool, error) {
		retired, err := f.store.Retired(ctx, id)
		if err != nil || retired {
			return "", retired, err
		}
		sugg, found, err := f.store.Get(ctx, id)
		if err != nil || !found {
			return "", false, err
		}
		return sugg.ConversationID, false, nil
	}
}

// ApplyFile loads path and applies it.
func (f *Feeder) ApplyFile(ctx context.Context, path string) (Result, error) {
	doc, err := LoadFile(path)
	if err != nil {
		f.metrics.ObserveSeed("file", "rejected")
		return Result{}, err
	}
	return f.Apply(ctx, doc, "file")
}
