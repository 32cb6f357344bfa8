package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stationq/internal/config"
	"stationq/internal/events"
	"stationq/internal/modules/dispatch"
	"stationq/internal/types"
)

const catalog = `
stations:
  - id: Ameerpet
    name: Ameerpet
    location: {lat: 17.3005372696588, lng: 78.39926408384103}
    radius_m: 500
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stations.yaml")
	require.NoError(t, os.WriteFile(path, []byte(catalog), 0o600))
	cfg := &config.Config{
		HTTP:     config.HTTPConfig{Addr: "127.0.0.1:0"},
		Stations: config.StationsConfig{Source: "file", CatalogPath: path},
	}
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestNew_InMemory(t *testing.T) {
	a, err := New(context.Background(), testConfig(t))
	require.NoError(t, err)
	defer a.Close()

	require.Len(t, a.Dispatch.Stations(), 1)
	assert.Equal(t, types.ID("Ameerpet"), a.Dispatch.Stations()[0].ID)
}

func TestNew_MissingCatalog(t *testing.T) {
	cfg := testConfig(t)
	cfg.Stations.CatalogPath = filepath.Join(t.TempDir(), "missing.yaml")
	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}

func TestRun_DeliversEventsToStream(t *testing.T) {
	a, err := New(context.Background(), testConfig(t))
	require.NoError(t, err)
	defer a.Close()

	sub := a.Events.Subscribe(8)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	_, err = a.Dispatch.ReportPosition(ctx, dispatch.ReportCommand{
		AgentID:  "d1",
		Position: types.Point{Lat: 17.3005, Lng: 78.3992},
	})
	require.NoError(t, err)

	select {
	case ev := <-sub:
		assert.Equal(t, events.TypePlacementChanged, ev.Type)
		assert.Equal(t, types.ID("Ameerpet"), ev.StationID)
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRefreshStations_EvictsRemovedStation(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	ctx := context.Background()
	_, err = a.Dispatch.ReportPosition(ctx, dispatch.ReportCommand{
		AgentID:  "d1",
		Position: types.Point{Lat: 17.3005, Lng: 78.3992},
	})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(cfg.Stations.CatalogPath, []byte("stations: []\n"), 0o600))
	require.NoError(t, a.RefreshStations(ctx))

	assert.Empty(t, a.Dispatch.Stations())
	p, err := a.Dispatch.PlacementOf("d1")
	require.NoError(t, err)
	assert.False(t, p.IsQueued())
}
