package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"stationq/internal/events"
)

type memSink struct {
	name string
	fail bool

	mu   sync.Mutex
	seqs []uint64
}

func (s *memSink) Name() string { return s.name }

func (s *memSink) Handle(_ context.Context, ev events.Event) error {
	s.mu.Lock()
	s.seqs = append(s.seqs, ev.Seq)
	s.mu.Unlock()
	if s.fail {
		return errors.New("sink down")
	}
	return nil
}

func (s *memSink) got() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uint64(nil), s.seqs...)
}

func TestFanoutDeliversInOrderToEverySink(t *testing.T) {
	defer goleak.VerifyNone(t)

	broken := &memSink{name: "broken", fail: true}
	ok := &memSink{name: "ok"}
	f := NewFanout(16, zerolog.Nop(), nil, broken, ok)

	done := make(chan error, 1)
	go func() { done <- f.Run(context.Background()) }()

	for i := uint64(1); i <= 10; i++ {
		f.Publish(events.Event{Type: events.TypeLocationUpdated, Seq: i})
	}
	f.Close()
	require.NoError(t, <-done)

	want := []uint64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	assert.Equal(t, want, ok.got())
	assert.Equal(t, want, broken.got())
	assert.Zero(t, f.Dropped())
}

func TestFanoutDropsWhenFull(t *testing.T) {
	defer goleak.VerifyNone(t)

	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	f := NewFanout(2, zerolog.Nop(), m)
	for i := uint64(1); i <= 5; i++ {
		f.Publish(events.Event{Seq: i})
	}
	assert.Equal(t, uint64(3), f.Dropped())
	assert.Equal(t, 3.0, testutil.ToFloat64(m.eventsDropped))

	f.Close()
	f.Publish(events.Event{Seq: 6})
	assert.Equal(t, uint64(4), f.Dropped())
	require.NoError(t, f.Run(context.Background()))
}

func TestFanoutStopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := NewFanout(4, zerolog.Nop(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx) }()
	cancel()
	require.NoError(t, <-done)
}

func TestNewMetricsReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewMetrics(reg)
	require.NoError(t, err)
	second, err := NewMetrics(reg)
	require.NoError(t, err)

	first.pop("Ameerpet", true)
	second.pop("Ameerpet", true)
	assert.Equal(t, 2.0, testutil.ToFloat64(first.pops.WithLabelValues("Ameerpet", "dispatched")))

	var none *Metrics
	none.pop("Ameerpet", false)
}

func TestServiceWithFanoutEndToEnd(t *testing.T) {
	defer goleak.VerifyNone(t)

	sink := &memSink{name: "mem"}
	f := NewFanout(64, zerolog.Nop(), nil, sink)
	done := make(chan error, 1)
	go func() { done <- f.Run(context.Background()) }()

	svc, _ := newTestService(t)
	svc.pub = f
	ctx := context.Background()
	_, err := svc.ReportPosition(ctx, ReportCommand{AgentID: "d1", Position: ameerpet.Location})
	require.NoError(t, err)
	_, _, err = svc.PopNext(ctx, "Ameerpet")
	require.NoError(t, err)
	_, err = svc.RemoveAgent(ctx, "d1")
	require.NoError(t, err)

	f.Close()
	require.NoError(t, <-done)
	assert.Equal(t, []uint64{1, 2, 3}, sink.got())
}
