// README: Event fan-out: a bounded buffer drained by one goroutine into every sink.
package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"stationq/internal/events"
)

// Fanout implements events.Publisher. Publish never blocks: when the buffer
// is full the event is dropped, logged and counted. Sinks see events in
// publish order, one at a time.
type Fanout struct {
	ch          chan events.Event
	sinks       []events.Sink
	log         zerolog.Logger
	metrics     *Metrics
	sinkTimeout time.Duration

	closeMu sync.RWMutex
	closed  bool
	dropped atomic.Uint64
}

func NewFanout(buffer int, log zerolog.Logger, metrics *Metrics, sinks ...events.Sink) *Fanout {
	if buffer <= 0 {
		buffer = defaultEventBuffer
	}
	return &Fanout{
		ch:          make(chan events.Event, buffer),
		sinks:       sinks,
		log:         log,
		metrics:     metrics,
		sinkTimeout: defaultSinkTimeout,
	}
}

// SetSinkTimeout bounds each sink call. Non-positive values are ignored.
func (f *Fanout) SetSinkTimeout(d time.Duration) {
	if d > 0 {
		f.sinkTimeout = d
	}
}

func (f *Fanout) Publish(ev events.Event) {
	f.closeMu.RLock()
	defer f.closeMu.RUnlock()
	if f.closed {
		f.drop(ev, "closed")
		return
	}
	select {
	case f.ch <- ev:
	default:
		f.drop(ev, "buffer full")
	}
}

func (f *Fanout) drop(ev events.Event, why string) {
	f.dropped.Add(1)
	f.metrics.dropped()
	f.log.Warn().
		Str("type", string(ev.Type)).
		Uint64("seq", ev.Seq).
		Str("agent_id", string(ev.AgentID)).
		Msgf("event dropped: %s", why)
}

// Dropped is the number of events dropped so far.
func (f *Fanout) Dropped() uint64 { return f.dropped.Load() }

// Run delivers events until Close is called and the buffer is drained, or
// until ctx is cancelled.
func (f *Fanout) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-f.ch:
			if !ok {
				return nil
			}
			f.deliver(ctx, ev)
		}
	}
}

func (f *Fanout) deliver(ctx context.Context, ev events.Event) {
	for _, sink := range f.sinks {
		sctx, cancel := context.WithTimeout(ctx, f.sinkTimeout)
		err := sink.Handle(sctx, ev)
		cancel()
		if err != nil {
			f.metrics.sinkFailed(sink.Name())
			f.log.Error().Err(err).
				Str("sink", sink.Name()).
				Str("type", string(ev.Type)).
				Uint64("seq", ev.Seq).
				Msg("event delivery failed")
		}
	}
}

// Close stops accepting events. Run returns once the buffer is drained.
func (f *Fanout) Close() {
	f.closeMu.Lock()
	defer f.closeMu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	close(f.ch)
}
