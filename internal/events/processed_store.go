package events

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/agent-console/pkg/logging"
)

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ProcessedStore is the feed consumer's dedupe ledger: one row per queue
// message that was applied, keyed by (source, message id).
type ProcessedStore struct {
	db rowQuerier
}

func NewProcessedStore(pool *pgxpool.Pool) *ProcessedStore {
	if pool == nil {
		panic("events: pgx pool required")
	}
	return &ProcessedStore{db: pool}
}

func newProcessedStoreWithExec(exec rowQuerier) *ProcessedStore {
	if exec == nil {
		panic("events: exec required")
	}
	return &ProcessedStore{db: exec}
}

// AlreadyProcessed reports whether messageID from source was applied.
func (s *ProcessedStore) AlreadyProcessed(ctx context.Context, source, messageID string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM processed_feed_messages WHERE source = $1 AND message_id = $2)`
	var seen bool
	if err := s.db.QueryRow(ctx, q, source, messageID).Scan(&seen); err != nil {
		return false, fmt.Errorf("events: lookup %s/%s: %w", source, messageID, err)
	}
	return seen, nil
}

// MarkProcessed records messageID. It reports false when another consumer
// recorded it first.
func (s *ProcessedStore) MarkProcessed(ctx context.Context, source, messageID string) (bool, error) {
	const q = `INSERT INTO processed_feed_messages (source, message_id) VALUES ($1, $2) ON CONFLICT (source, message_id) DO NOTHING`
	tag, err := s.db.Exec(ctx, q, source, messageID)
	if err != nil {
		return false, fmt.Errorf("events: record %s/%s: %w", source, messageID, err)
	}
	return tag.RowsAffected() == 1, nil
}

// Prune forgets messages processed before cutoff. Queue redelivery windows
// are bounded, so old rows only cost space.
func (s *ProcessedStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	const q = `DELETE FROM processed_feed_messages WHERE processed_at < $1`
	tag, err := s.db.Exec(ctx, q, cutoff)
	if err != nil {
		return 0, fmt.Errorf("events: prune processed messages: %w", err)
	}
	return tag.RowsAffected(), nil
}

// PruneEvery runs Prune with a retention window every interval until ctx
// is canceled.
func (s *ProcessedStore) PruneEvery(ctx context.Context, every, retention time.Duration, logger *logging.Logger) {
	if logger == nil {
		logger = logging.Default()
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := s.Prune(ctx, now.Add(-retention))
			if err != nil {
				logger.Warn("processed message prune failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("pruned processed feed messages", "rows", n, "retention", retention.String())
			}
		}
	}
}
