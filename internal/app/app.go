// README: Service wiring: infra clients, dispatch core, event sinks and the HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"stationq/internal/config"
	"stationq/internal/eventbus"
	"stationq/internal/events"
	httptransport "stationq/internal/http"
	"stationq/internal/infra"
	"stationq/internal/modules/dispatch"
	"stationq/internal/modules/location"
	"stationq/internal/modules/notify"
	"stationq/internal/modules/station"
)

// App owns every long-lived component of the service.
type App struct {
	cfg *config.Config
	log zerolog.Logger

	db    *pgxpool.Pool
	redis *redis.Client
	mqtt  mqtt.Client

	Registry *prometheus.Registry
	Dispatch *dispatch.Service
	Location *location.Service
	Events   *eventbus.TypedBus[events.Event]

	fanout   *dispatch.Fanout
	stations func(ctx context.Context) ([]station.Station, error)
	server   *httptransport.Server
}

// New connects the enabled backends and builds the dispatch core. Partially
// opened clients are closed when an error is returned.
func New(ctx context.Context, cfg *config.Config) (a *App, err error) {
	a = &App{
		cfg:      cfg,
		log:      infra.NewLogger("stationq", cfg.Log.Level),
		Registry: prometheus.NewRegistry(),
		Events:   eventbus.NewTyped[events.Event](),
	}
	defer func() {
		if err != nil {
			_ = a.Close()
			a = nil
		}
	}()
	a.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if cfg.DB.Enabled {
		if a.db, err = infra.NewDB(ctx, cfg.DB.DSN); err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
	}
	if cfg.Redis.Enabled {
		if a.redis, err = infra.NewRedis(ctx, cfg.Redis.Addr); err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
	}
	if cfg.MQTT.Enabled {
		if a.mqtt, err = infra.NewMQTTClient(cfg.MQTT); err != nil {
			return nil, fmt.Errorf("mqtt: %w", err)
		}
	}

	var verifier infra.TokenVerifier
	var sinks []events.Sink

	var geo location.GeoStore = location.NewMemoryStore()
	if a.redis != nil {
		geo = location.NewStore(a.redis)
	}
	a.Location = location.NewService(geo, a.log.With().Str("component", "location").Logger())
	sinks = append(sinks, a.Location)

	if cfg.HTTP.AuthEnabled || cfg.Firebase.MirrorEnabled {
		fbApp, err := infra.NewFirebaseApp(ctx, cfg.Firebase)
		if err != nil {
			return nil, err
		}
		if cfg.HTTP.AuthEnabled {
			if verifier, err = infra.NewFirebaseVerifier(ctx, fbApp); err != nil {
				return nil, err
			}
		}
		if cfg.Firebase.MirrorEnabled {
			rtdb, err := infra.NewRTDBClient(ctx, fbApp)
			if err != nil {
				return nil, err
			}
			sinks = append(sinks, location.NewFirebaseMirror(rtdb, cfg.Firebase.Node))
		}
	}
	if a.redis != nil {
		sinks = append(sinks, dispatch.NewRedisMirror(a.redis))
	}
	var journal *dispatch.Journal
	if a.db != nil {
		journal = dispatch.NewJournal(a.db)
		sinks = append(sinks, journal)
	}
	if a.mqtt != nil {
		sinks = append(sinks, notify.NewMQTTPublisher(a.mqtt, cfg.MQTT.TopicPrefix, cfg.MQTT.QoS))
	}
	sinks = append(sinks, eventbus.NewSink("websocket", a.Events))

	metrics, err := dispatch.NewMetrics(a.Registry)
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}
	a.fanout = dispatch.NewFanout(cfg.Dispatch.EventBuffer, a.log.With().Str("component", "fanout").Logger(), metrics, sinks...)
	a.fanout.SetSinkTimeout(time.Duration(cfg.Dispatch.SinkTimeoutSeconds) * time.Second)

	a.stations = stationSource(cfg.Stations, a.db)
	initial, err := a.stations(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading stations: %w", err)
	}
	dir, err := station.NewDirectory(initial)
	if err != nil {
		return nil, err
	}
	a.Dispatch = dispatch.NewService(dir,
		dispatch.WithPublisher(a.fanout),
		dispatch.WithLogger(a.log.With().Str("component", "dispatch").Logger()),
		dispatch.WithMetrics(metrics),
		dispatch.WithIndexThreshold(cfg.Dispatch.IndexThreshold),
	)

	if cfg.Dispatch.Restore && journal != nil {
		state, err := journal.LoadState(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading journal: %w", err)
		}
		if err := a.Dispatch.Restore(ctx, state); err != nil {
			return nil, err
		}
	}

	router := httptransport.NewRouter(httptransport.RouterDeps{
		Dispatch: a.Dispatch,
		Location: a.Location,
		Events:   a.Events,
		Verifier: verifier,
		Gatherer: a.Registry,
		Log:      a.log.With().Str("component", "http").Logger(),

		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	})
	a.server = httptransport.NewServer(cfg.HTTP.Addr, router,
		time.Duration(cfg.HTTP.ShutdownTimeoutSeconds)*time.Second, a.log)

	a.log.Info().
		Int("stations", dir.Len()).
		Int("sinks", len(sinks)).
		Bool("auth", verifier != nil).
		Msg("stationq initialised")
	return a, nil
}

func stationSource(cfg config.StationsConfig, db *pgxpool.Pool) func(context.Context) ([]station.Station, error) {
	if cfg.Source == "db" {
		store := station.NewStore(db)
		return store.List
	}
	path := cfg.CatalogPath
	return func(context.Context) ([]station.Station, error) {
		return station.LoadCatalog(path)
	}
}

// Run serves HTTP and delivers events until ctx is cancelled. Buffered
// events are delivered after the server has stopped.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.fanout.Run(context.WithoutCancel(gctx))
	})
	g.Go(func() error {
		defer a.fanout.Close()
		return a.server.Run(gctx)
	})
	if every := a.cfg.Stations.RefreshSeconds; every > 0 {
		g.Go(func() error {
			a.runRefresh(gctx, time.Duration(every)*time.Second)
			return nil
		})
	}
	return g.Wait()
}

func (a *App) runRefresh(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.RefreshStations(ctx); err != nil {
				a.log.Error().Err(err).Msg("station refresh failed")
			}
		}
	}
}

// RefreshStations reloads the catalog from its source.
func (a *App) RefreshStations(ctx context.Context) error {
	stations, err := a.stations(ctx)
	if err != nil {
		return err
	}
	return a.Dispatch.RefreshStations(ctx, stations)
}

// Close releases the backend clients. It is safe to call on a partially
// built App.
func (a *App) Close() error {
	var errs []error
	if a.fanout != nil {
		a.fanout.Close()
	}
	if a.Events != nil {
		a.Events.Close()
	}
	if a.mqtt != nil {
		a.mqtt.Disconnect(250)
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.db != nil {
		a.db.Close()
	}
	return errors.Join(errs...)
}
