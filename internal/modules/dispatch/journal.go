// README: Postgres journal: persists agent placements so queues survive a restart.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"stationq/internal/events"
	"stationq/internal/modules/registry"
	"stationq/internal/types"
)

type Journal struct {
	db *pgxpool.Pool
}

func NewJournal(db *pgxpool.Pool) *Journal {
	return &Journal{db: db}
}

func (j *Journal) Name() string { return "postgres-journal" }

// Handle writes the agent row for ev. Rows only move forward in event_seq, so
// a late write never overwrites a newer one.
func (j *Journal) Handle(ctx context.Context, ev events.Event) error {
	switch ev.Type {
	case events.TypePlacementChanged, events.TypeLocationUpdated:
		var stationID *string
		var enqueuedAt *time.Time
		if ev.Current.IsQueued() {
			id := string(ev.Current.StationID)
			at := ev.Current.EnqueuedAt
			stationID, enqueuedAt = &id, &at
		}
		_, err := j.db.Exec(ctx, `
			INSERT INTO agents (id, lat, lng, status, placement, station_id, enqueued_at, seq, event_seq, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (id) DO UPDATE
			SET lat = EXCLUDED.lat,
			    lng = EXCLUDED.lng,
			    status = EXCLUDED.status,
			    placement = EXCLUDED.placement,
			    station_id = EXCLUDED.station_id,
			    enqueued_at = EXCLUDED.enqueued_at,
			    seq = EXCLUDED.seq,
			    event_seq = EXCLUDED.event_seq,
			    updated_at = EXCLUDED.updated_at
			WHERE agents.event_seq < EXCLUDED.event_seq`,
			string(ev.AgentID), ev.Position.Lat, ev.Position.Lng, string(ev.Status),
			string(ev.Current.Kind), stationID, enqueuedAt, int64(ev.Current.Seq), int64(ev.Seq), ev.At,
		)
		if err != nil {
			return fmt.Errorf("journal agent %s: %w", ev.AgentID, err)
		}
	case events.TypeAgentRemoved:
		_, err := j.db.Exec(ctx, `DELETE FROM agents WHERE id = $1 AND event_seq < $2`, string(ev.AgentID), int64(ev.Seq))
		if err != nil {
			return fmt.Errorf("journal remove %s: %w", ev.AgentID, err)
		}
	}
	return nil
}

// LoadState reads every journaled agent, queued agents first in queue order.
func (j *Journal) LoadState(ctx context.Context) (State, error) {
	rows, err := j.db.Query(ctx, `
		SELECT id, lat, lng, status, placement, station_id, enqueued_at, seq, event_seq, updated_at
		FROM agents
		ORDER BY enqueued_at NULLS LAST, seq, id`)
	if err != nil {
		return State{}, err
	}
	defer rows.Close()

	var st State
	for rows.Next() {
		var (
			a          registry.Agent
			id, status string
			kind       string
			stationID  *string
			enqueuedAt *time.Time
			seq        int64
			eventSeq   int64
		)
		if err := rows.Scan(&id, &a.Location.Lat, &a.Location.Lng, &status, &kind, &stationID, &enqueuedAt, &seq, &eventSeq, &a.LastUpdated); err != nil {
			return State{}, err
		}
		a.ID = types.ID(id)
		a.Status = registry.Status(status)
		if _, err := registry.ParseStatus(status); err != nil {
			a.Status = registry.StatusIdle
		}
		a.Placement = registry.Roaming()
		if registry.PlacementKind(kind) == registry.PlacementQueued && stationID != nil && enqueuedAt != nil {
			a.Placement = registry.Queued(types.ID(*stationID), *enqueuedAt, uint64(seq))
		}
		if uint64(eventSeq) > st.LastSeq {
			st.LastSeq = uint64(eventSeq)
		}
		st.Agents = append(st.Agents, a)
	}
	return st, rows.Err()
}
