// README: Redis mirror: per-station ZSET copies of the queues plus a pub/sub event channel.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"stationq/internal/events"
	"stationq/internal/types"
)

const (
	queueKeyPrefix = "stationq:queue:%s"
	EventsChannel  = "stationq:events"
)

// RedisMirror is read-only for other services: the in-memory queues stay
// authoritative.
type RedisMirror struct {
	redis *redis.Client
}

func NewRedisMirror(redis *redis.Client) *RedisMirror {
	return &RedisMirror{redis: redis}
}

func (m *RedisMirror) Name() string { return "redis-mirror" }

func (m *RedisMirror) Handle(ctx context.Context, ev events.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	pipe := m.redis.TxPipeline()
	if ev.Type != events.TypeLocationUpdated {
		if ev.Previous.IsQueued() {
			pipe.ZRem(ctx, QueueKey(ev.Previous.StationID), string(ev.AgentID))
		}
		if ev.Type == events.TypePlacementChanged && ev.Current.IsQueued() {
			pipe.ZAdd(ctx, QueueKey(ev.Current.StationID), redis.Z{
				Score:  float64(ev.Current.EnqueuedAt.UnixNano()),
				Member: string(ev.AgentID),
			})
		}
	}
	pipe.Publish(ctx, EventsChannel, payload)
	_, err = pipe.Exec(ctx)
	return err
}

// Queue reads the mirrored queue of stationID front to back.
func (m *RedisMirror) Queue(ctx context.Context, stationID types.ID) ([]types.ID, error) {
	members, err := m.redis.ZRange(ctx, QueueKey(stationID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]types.ID, len(members))
	for i, v := range members {
		ids[i] = types.ID(v)
	}
	return ids, nil
}

func QueueKey(stationID types.ID) string {
	return fmt.Sprintf(queueKeyPrefix, string(stationID))
}
