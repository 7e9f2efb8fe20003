package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/agent-console/internal/observability/metrics"
	"github.com/wolfman30/agent-console/pkg/logging"
)

// OutboxEntry is a resolution event waiting to leave the console.
type OutboxEntry struct {
	ID             uuid.UUID
	ConversationID string
	Type           string
	Payload        json.RawMessage
	// Attempts counts claims, including the current one.
	Attempts  int
	CreatedAt time.Time
}

// DeliveryHandler pushes one entry to a downstream transport.
type DeliveryHandler interface {
	Handle(ctx context.Context, entry OutboxEntry) error
}

type outboxExec interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// OutboxStore is the Postgres table resolution events are written to in
// the request path and drained from by the Deliverer. Rows are claimed
// with a lease so several API replicas can drain the same table.
type OutboxStore struct {
	db outboxExec
}

func NewOutboxStore(pool *pgxpool.Pool) *OutboxStore {
	if pool == nil {
		panic("events: pgx pool required")
	}
	return &OutboxStore{db: pool}
}

func newOutboxStoreWithExec(exec outboxExec) *OutboxStore {
	if exec == nil {
		panic("events: exec required")
	}
	return &OutboxStore{db: exec}
}

// Append writes payload as JSON under a fresh id. conversationID may be
// empty for events that are not tied to one conversation (feedback).
func (s *OutboxStore) Append(ctx context.Context, conversationID, eventType string, payload any) (uuid.UUID, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("events: encode %s: %w", eventType, err)
	}
	id := uuid.New()
	const q = `INSERT INTO outbox (id, conversation_id, type, payload) VALUES ($1, $2, $3, $4)`
	if _, err := s.db.Exec(ctx, q, id, conversationID, eventType, body); err != nil {
		return uuid.Nil, fmt.Errorf("events: append %s: %w", eventType, err)
	}
	return id, nil
}

// Claim leases up to limit undelivered rows, oldest first, that are below
// maxAttempts and not leased by another drainer. Each claim counts as an
// attempt.
func (s *OutboxStore) Claim(ctx context.Context, limit, maxAttempts int, lease time.Duration) ([]OutboxEntry, error) {
	const q = `
		UPDATE outbox o
		SET attempts = o.attempts + 1,
		    claimed_until = now() + make_interval(secs => $3)
		WHERE o.id IN (
			SELECT id FROM outbox
			WHERE delivered_at IS NULL
			  AND attempts < $2
			  AND (claimed_until IS NULL OR claimed_until < now())
			ORDER BY created_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING o.id, o.conversation_id, o.type, o.payload, o.attempts, o.created_at
	`
	rows, err := s.db.Query(ctx, q, limit, maxAttempts, lease.Seconds())
	if err != nil {
		return nil, fmt.Errorf("events: claim outbox: %w", err)
	}
	defer rows.Close()

	var claimed []OutboxEntry
	for rows.Next() {
		var (
			e   OutboxEntry
			raw []byte
		)
		if err := rows.Scan(&e.ID, &e.ConversationID, &e.Type, &raw, &e.Attempts, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("events: scan claimed row: %w", err)
		}
		e.Payload = json.RawMessage(append([]byte(nil), raw...))
		claimed = append(claimed, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("events: claim outbox: %w", err)
	}
	// RETURNING order is not guaranteed.
	sort.SliceStable(claimed, func(i, j int) bool {
		return claimed[i].CreatedAt.Before(claimed[j].CreatedAt)
	})
	return claimed, nil
}

// Complete marks a claimed row delivered. It reports false when the row was
// already delivered by someone else.
func (s *OutboxStore) Complete(ctx context.Context, id uuid.UUID) (bool, error) {
	const q = `UPDATE outbox SET delivered_at = now(), claimed_until = NULL, last_error = NULL WHERE id = $1 AND delivered_at IS NULL`
	tag, err := s.db.Exec(ctx, q, id)
	if err != nil {
		return false, fmt.Errorf("events: complete %s: %w", id, err)
	}
	return tag.RowsAffected() == 1, nil
}

// Release drops the lease on a failed row so the next drain retries it,
// keeping reason for operators inspecting parked rows.
func (s *OutboxStore) Release(ctx context.Context, id uuid.UUID, reason string) error {
	const q = `UPDATE outbox SET claimed_until = NULL, last_error = $2 WHERE id = $1 AND delivered_at IS NULL`
	if _, err := s.db.Exec(ctx, q, id, reason); err != nil {
		return fmt.Errorf("events: release %s: %w", id, err)
	}
	return nil
}

// claimStore is the outbox surface the deliverer drains.
type claimStore interface {
	Claim(ctx context.Context, limit, maxAttempts int, lease time.Duration) ([]OutboxEntry, error)
	Complete(ctx context.Context, id uuid.UUID) (bool, error)
	Release(ctx context.Context, id uuid.UUID, reason string) error
}

// Deliverer drains the outbox into a DeliveryHandler on a fixed interval.
// A row that fails maxAttempts times is parked: it stays in the table with
// its last error and is no longer claimed.
type Deliverer struct {
	store       claimStore
	handler     DeliveryHandler
	logger      *logging.Logger
	metrics     *metrics.ConsoleMetrics
	batch       int
	maxAttempts int
	interval    time.Duration
}

// DrainStats summarizes one pass over the outbox.
type DrainStats struct {
	Delivered int
	Failed    int
	Parked    int
}

func NewDeliverer(store *OutboxStore, handler DeliveryHandler, logger *logging.Logger) *Deliverer {
	d := newDeliverer(handler, logger)
	if store != nil {
		d.store = store
	}
	return d
}

func newDeliverer(handler DeliveryHandler, logger *logging.Logger) *Deliverer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Deliverer{
		handler:     handler,
		logger:      logger,
		batch:       25,
		maxAttempts: 10,
		interval:    2 * time.Second,
	}
}

func (d *Deliverer) WithBatchSize(size int) *Deliverer {
	if size > 0 {
		d.batch = size
	}
	return d
}

func (d *Deliverer) WithMaxAttempts(n int) *Deliverer {
	if n > 0 {
		d.maxAttempts = n
	}
	return d
}

func (d *Deliverer) WithInterval(interval time.Duration) *Deliverer {
	if interval > 0 {
		d.interval = interval
	}
	return d
}

func (d *Deliverer) WithMetrics(m *metrics.ConsoleMetrics) *Deliverer {
	d.metrics = m
	return d
}

// lease outlives one drain so a slow handler is not claimed twice.
func (d *Deliverer) lease() time.Duration {
	return 5 * d.interval
}

// Start drains the outbox every interval until ctx is canceled.
func (d *Deliverer) Start(ctx context.Context) {
	if d.store == nil || d.handler == nil {
		return
	}
	d.logger.Info("outbox deliverer started", "interval", d.interval.String(), "max_attempts", d.maxAttempts)
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("outbox deliverer stopped")
			return
		case <-ticker.C:
			d.drain(ctx)
		}
	}
}

func (d *Deliverer) drain(ctx context.Context) DrainStats {
	var stats DrainStats
	entries, err := d.store.Claim(ctx, d.batch, d.maxAttempts, d.lease())
	if err != nil {
		d.logger.Error("outbox claim failed", "error", err)
		return stats
	}

	for _, entry := range entries {
		log := d.logger.With("event_id", entry.ID.String(), "type", entry.Type,
			"conversation_id", entry.ConversationID, "attempt", entry.Attempts)

		if err := d.handler.Handle(ctx, entry); err != nil {
			if relErr := d.store.Release(ctx, entry.ID, err.Error()); relErr != nil {
				log.Error("outbox release failed", "error", relErr)
			}
			if entry.Attempts >= d.maxAttempts {
				stats.Parked++
				d.metrics.ObserveDelivery("parked")
				log.Error("outbox event parked after final attempt", "error", err)
				continue
			}
			stats.Failed++
			d.metrics.ObserveDelivery("failed")
			log.Warn("outbox delivery failed, will retry", "error", err)
			continue
		}

		ok, err := d.store.Complete(ctx, entry.ID)
		if err != nil {
			log.Error("outbox complete failed", "error", err)
			continue
		}
		if ok {
			stats.Delivered++
			d.metrics.ObserveDelivery("delivered")
			log.Debug("outbox event delivered")
		}
	}
	return stats
}
