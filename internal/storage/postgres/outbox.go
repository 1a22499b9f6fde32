package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/odin-pos/internal/events"
)

const (
	lockUnpublishedEventsSQL = `SELECT id, sale_id, event_type, payload, created_at
		FROM sale_events
		WHERE published_at IS NULL
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED`

	markEventsPublishedSQL = `UPDATE sale_events SET published_at = now() WHERE id = ANY($1)`

	countUnpublishedEventsSQL = `SELECT count(*) FROM sale_events WHERE published_at IS NULL`
)

var _ events.Outbox = (*OutboxRepository)(nil)

// OutboxRepository implements events.Outbox over the sale_events table.
// Concurrent relays never receive the same event at the same time.
type OutboxRepository struct {
	pool *pgxpool.Pool
}

// NewOutboxRepository returns an OutboxRepository that uses the given pool.
func NewOutboxRepository(pool *pgxpool.Pool) *OutboxRepository {
	return &OutboxRepository{pool: pool}
}

func (r *OutboxRepository) Dispatch(ctx context.Context, limit int, publish func(context.Context, []events.Event) error) (int, error) {
	var n int
	err := pgx.BeginTxFunc(ctx, r.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, lockUnpublishedEventsSQL, limit)
		if err != nil {
			return fmt.Errorf("locking events: %w", err)
		}
		evs, err := pgx.CollectRows(rows, scanEvent)
		if err != nil {
			return fmt.Errorf("scanning events: %w", err)
		}
		if len(evs) == 0 {
			return nil
		}

		if err := publish(ctx, evs); err != nil {
			return err
		}

		ids := make([]int64, len(evs))
		for i, ev := range evs {
			ids[i] = ev.ID
		}
		if _, err := tx.Exec(ctx, markEventsPublishedSQL, ids); err != nil {
			return fmt.Errorf("marking events published: %w", err)
		}
		n = len(evs)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Pending returns the number of unpublished events.
func (r *OutboxRepository) Pending(ctx context.Context) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, countUnpublishedEventsSQL).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting events: %w", err)
	}
	return n, nil
}

func scanEvent(row pgx.CollectableRow) (events.Event, error) {
	var ev events.Event
	err := row.Scan(&ev.ID, &ev.SaleID, &ev.Type, &ev.Payload, &ev.CreatedAt)
	return ev, err
}
