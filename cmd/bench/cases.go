// README: Benchmark test cases: environment, report/queue/pop flow, mirrors, concurrency and random-driver load.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"stationq/internal/modules/dispatch"
	"stationq/internal/types"
	"stationq/migrations"
)

type Runner struct {
	cfg   Config
	httpc *http.Client
	db    *pgxpool.Pool
	redis *redis.Client
}

type Result struct {
	Name    string
	Status  string
	Latency time.Duration
	Note    string
}

type TestCase struct {
	Name  string
	Focus string
	Run   func(ctx context.Context, r *Runner) Result
}

func NewRunner(cfg Config) *Runner {
	return &Runner{
		cfg:   cfg,
		httpc: &http.Client{Timeout: 10 * time.Second},
	}
}

func (r *Runner) RunAll(ctx context.Context) []Result {
	if r.cfg.DSN != "" {
		if db, err := pgxpool.New(ctx, r.cfg.DSN); err == nil {
			r.db = db
		}
	}
	if r.cfg.RedisAddr != "" {
		r.redis = redis.NewClient(&redis.Options{Addr: r.cfg.RedisAddr})
	}

	tests := r.cases()
	results := make([]Result, 0, len(tests))

	for _, tc := range tests {
		res := tc.Run(ctx, r)
		res.Name = tc.Name
		results = append(results, res)
		fmt.Printf("%-7s %s", res.Status, tc.Name)
		if res.Latency > 0 {
			fmt.Printf(" (%s)", res.Latency)
		}
		if res.Note != "" {
			fmt.Printf(" - %s", res.Note)
		}
		fmt.Println()
	}

	if r.db != nil {
		r.db.Close()
	}
	if r.redis != nil {
		_ = r.redis.Close()
	}

	return results
}

// Summary tallies results by status.
type Summary struct {
	Pass, Fail, Pending, Skip int
}

func Summarize(results []Result) Summary {
	var s Summary
	for _, r := range results {
		switch r.Status {
		case "PASS":
			s.Pass++
		case "FAIL":
			s.Fail++
		case "PENDING":
			s.Pending++
		case "SKIP":
			s.Skip++
		}
	}
	return s
}

// Failed reports whether the run should exit non-zero. Strict runs also fail
// on pending cases.
func (s Summary) Failed(strict bool) bool {
	return s.Fail > 0 || (strict && s.Pending > 0)
}

func (s Summary) String() string {
	return fmt.Sprintf("PASS=%d FAIL=%d PENDING=%d SKIP=%d", s.Pass, s.Fail, s.Pending, s.Skip)
}

type placement struct {
	Kind      string `json:"kind"`
	StationID string `json:"station_id"`
}

type reportResult struct {
	Agent struct {
		ID string `json:"id"`
	} `json:"agent"`
	Current       placement `json:"current"`
	QueuePosition int       `json:"queue_position"`
}

func (r *Runner) cases() []TestCase {
	base := r.cfg.BaseURL
	st := r.cfg.StationID
	at := map[string]any{"lat": r.cfg.StationLat, "lng": r.cfg.StationLng}
	report := func(id string) map[string]any {
		return map[string]any{"agent_id": id, "lat": r.cfg.StationLat, "lng": r.cfg.StationLng}
	}

	return []TestCase{
		{
			Name:  "Env: Postgres connect",
			Focus: "journal database reachable",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: "SKIP", Note: "db not configured"}
				}
				ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
				defer cancel()
				if err := r.db.Ping(ctx); err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				return Result{Status: "PASS"}
			},
		},
		{
			Name:  "Env: Redis connect",
			Focus: "mirror Redis reachable",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.redis == nil {
					return Result{Status: "SKIP", Note: "redis not configured"}
				}
				ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
				defer cancel()
				if err := r.redis.Ping(ctx).Err(); err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				return Result{Status: "PASS"}
			},
		},
		{
			Name:  "Migration: apply (optional)",
			Focus: "apply embedded migrations",
			Run: func(ctx context.Context, r *Runner) Result {
				if !r.cfg.ApplyMigration {
					return Result{Status: "SKIP", Note: "apply-migration=false"}
				}
				if r.db == nil {
					return Result{Status: "FAIL", Note: "db not configured"}
				}
				n, err := migrations.Apply(ctx, r.db)
				if err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				return Result{Status: "PASS", Note: fmt.Sprintf("statements=%d", n)}
			},
		},
		{
			Name:  "Migration: tables exist",
			Focus: "tables from the embedded schema exist",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: "SKIP", Note: "db not configured"}
				}
				tables, err := extractTables()
				if err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				for _, t := range tables {
					var exists bool
					err := r.db.QueryRow(ctx,
						"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name=$1)",
						t,
					).Scan(&exists)
					if err != nil {
						return Result{Status: "FAIL", Note: err.Error()}
					}
					if !exists {
						return Result{Status: "FAIL", Note: "missing table: " + t}
					}
				}
				return Result{Status: "PASS"}
			},
		},
		httpCaseMethod("API: health", http.MethodGet, base+"/health", nil, []int{200}, nil),
		{
			Name:  "API: station catalog contains bench station",
			Focus: "GET /api/stations",
			Run: func(ctx context.Context, r *Runner) Result {
				var body struct {
					Stations []struct {
						ID string `json:"id"`
					} `json:"stations"`
				}
				status, latency, err := r.doJSON(ctx, http.MethodGet, base+"/api/stations", nil, &body)
				if err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				if status == 401 {
					return Result{Status: "PENDING", Latency: latency, Note: "auth enabled"}
				}
				for _, s := range body.Stations {
					if s.ID == st {
						return Result{Status: "PASS", Latency: latency, Note: fmt.Sprintf("stations=%d", len(body.Stations))}
					}
				}
				return Result{Status: "FAIL", Latency: latency, Note: "station " + st + " not in catalog"}
			},
		},

		// Report flow
		{
			Name:  "Report: driver inside catchment is queued",
			Focus: "POST /api/agents/location",
			Run: func(ctx context.Context, r *Runner) Result {
				var res reportResult
				status, latency, err := r.doJSON(ctx, http.MethodPost, base+"/api/agents/location", report("bench-a"), &res)
				if err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				if status != 200 {
					return pendingOrFail(status, latency)
				}
				if res.Current.Kind != "queued" || res.Current.StationID != st {
					return Result{Status: "FAIL", Latency: latency, Note: "placement=" + res.Current.Kind}
				}
				return Result{Status: "PASS", Latency: latency, Note: fmt.Sprintf("position=%d", res.QueuePosition)}
			},
		},
		httpCase("Report: invalid coords -> 400", base+"/api/agents/location", map[string]any{
			"agent_id": "bench-x",
			"lat":      123.0,
			"lng":      456.0,
		}, []int{400}, []int{401, 403}),
		httpCase("Report: invalid status -> 400", base+"/api/agents/location", map[string]any{
			"agent_id": "bench-x",
			"lat":      r.cfg.StationLat,
			"lng":      r.cfg.StationLng,
			"status":   "sleeping",
		}, []int{400}, []int{401, 403}),
		{
			Name:  "Report: missing agent_id gets generated id",
			Focus: "driver-<uuid> assignment",
			Run: func(ctx context.Context, r *Runner) Result {
				var res reportResult
				status, latency, err := r.doJSON(ctx, http.MethodPost, base+"/api/agents/location",
					map[string]any{"lat": 0.0, "lng": 0.0}, &res)
				if err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				if status != 200 {
					return pendingOrFail(status, latency)
				}
				if !strings.HasPrefix(res.Agent.ID, "driver-") {
					return Result{Status: "FAIL", Latency: latency, Note: "id=" + res.Agent.ID}
				}
				return Result{Status: "PASS", Latency: latency, Note: "id=" + res.Agent.ID}
			},
		},
		{
			Name:  "Queue: FIFO order",
			Focus: "GET /api/stations/:id/queue",
			Run: func(ctx context.Context, r *Runner) Result {
				if status, latency, err := r.doJSON(ctx, http.MethodPost, base+"/api/agents/location", report("bench-b"), nil); err != nil || status != 200 {
					if err != nil {
						return Result{Status: "FAIL", Note: err.Error()}
					}
					return pendingOrFail(status, latency)
				}
				ids, latency, err := r.queue(ctx, st)
				if err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				a, b := indexOf(ids, "bench-a"), indexOf(ids, "bench-b")
				if a < 0 || b < 0 || a > b {
					return Result{Status: "FAIL", Latency: latency, Note: fmt.Sprintf("queue=%v", ids)}
				}
				return Result{Status: "PASS", Latency: latency, Note: fmt.Sprintf("size=%d", len(ids))}
			},
		},
		{
			Name:  "Mirror: Redis queue ZSET",
			Focus: "stationq:queue:<station> follows the core",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.redis == nil {
					return Result{Status: "SKIP", Note: "redis not configured"}
				}
				ok := eventually(ctx, 2*time.Second, func() bool {
					ids, err := r.redis.ZRange(ctx, dispatch.QueueKey(types.ID(st)), 0, -1).Result()
					return err == nil && indexOf(ids, "bench-a") >= 0 && indexOf(ids, "bench-b") > indexOf(ids, "bench-a")
				})
				if !ok {
					return Result{Status: "FAIL", Note: "mirror did not converge"}
				}
				return Result{Status: "PASS"}
			},
		},
		{
			Name:  "Mirror: Postgres journal",
			Focus: "agents table follows the core",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: "SKIP", Note: "db not configured"}
				}
				ok := eventually(ctx, 2*time.Second, func() bool {
					var kind, station string
					err := r.db.QueryRow(ctx,
						"SELECT placement, COALESCE(station_id, '') FROM agents WHERE id=$1", "bench-a",
					).Scan(&kind, &station)
					return err == nil && kind == "queued" && station == st
				})
				if !ok {
					return Result{Status: "FAIL", Note: "journal did not converge"}
				}
				return Result{Status: "PASS"}
			},
		},
		{
			Name:  "Nearest: station at its own location",
			Focus: "POST /api/stations/nearest",
			Run: func(ctx context.Context, r *Runner) Result {
				var body struct {
					Station *struct {
						ID string `json:"id"`
					} `json:"station"`
					WithinRadius bool `json:"within_radius"`
				}
				status, latency, err := r.doJSON(ctx, http.MethodPost, base+"/api/stations/nearest", at, &body)
				if err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				if status != 200 {
					return pendingOrFail(status, latency)
				}
				if body.Station == nil || body.Station.ID != st || !body.WithinRadius {
					return Result{Status: "FAIL", Latency: latency, Note: "unexpected nearest station"}
				}
				return Result{Status: "PASS", Latency: latency}
			},
		},
		{
			Name:  "Pop: head of queue first",
			Focus: "POST /api/stations/:id/pop",
			Run: func(ctx context.Context, r *Runner) Result {
				var body struct {
					AgentID string `json:"agent_id"`
				}
				status, latency, err := r.doJSON(ctx, http.MethodPost, base+"/api/stations/"+st+"/pop", nil, &body)
				if err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				if status != 200 {
					return pendingOrFail(status, latency)
				}
				if body.AgentID != "bench-a" {
					return Result{Status: "FAIL", Latency: latency, Note: "popped " + body.AgentID}
				}
				return Result{Status: "PASS", Latency: latency}
			},
		},
		httpCaseMethod("Remove: driver leaves", http.MethodDelete, base+"/api/agents/bench-b", nil, []int{200}, []int{401, 403}),
		httpCaseMethod("Pop: unknown station -> 404", http.MethodPost, base+"/api/stations/no-such-station/pop", nil, []int{404}, []int{401, 403}),

		// Concurrency
		{
			Name:  "Concurrency: parallel pops hand out each driver once",
			Focus: "no driver dispatched twice",
			Run: func(ctx context.Context, r *Runner) Result {
				return concurrentPop(ctx, r, base)
			},
		},
		manualCase("Recovery: restart restores queues", "restart with dispatch.restore=true and compare queue snapshots"),
		manualCase("Catalog: refresh evicts removed station", "drop a station from the catalog and wait for stations.refresh_seconds"),

		// Performance
		{
			Name:  "Perf: single driver location updates",
			Focus: "steady reports from one driver",
			Run: func(ctx context.Context, r *Runner) Result {
				return perfLoad(ctx, r, base+"/api/agents/location", func(int) any { return report("bench-perf") })
			},
		},
		{
			Name:  "Perf: random drivers around stations",
			Focus: "many drivers entering and leaving catchments",
			Run: func(ctx context.Context, r *Runner) Result {
				centers := r.stationCenters(ctx)
				var n atomic.Int64
				return perfLoad(ctx, r, base+"/api/agents/location", func(worker int) any {
					return randomDriver(fmt.Sprintf("bench-rnd-%d-%d", worker, n.Add(1)%50), centers, r.cfg.SpreadMeters)
				})
			},
		},
	}
}

func (r *Runner) doJSON(ctx context.Context, method, url string, body, out any) (int, time.Duration, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, 0, err
		}
		reader = strings.NewReader(string(b))
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	start := time.Now()
	resp, err := r.httpc.Do(req)
	if err != nil {
		return 0, 0, err
	}
	defer resp.Body.Close()
	latency := time.Since(start)
	if out != nil && resp.StatusCode >= 200 && resp.StatusCode < 300 && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, latency, err
		}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, latency, nil
}

func (r *Runner) queue(ctx context.Context, stationID string) ([]string, time.Duration, error) {
	var body struct {
		Queue []struct {
			AgentID string `json:"agent_id"`
		} `json:"queue"`
	}
	status, latency, err := r.doJSON(ctx, http.MethodGet, r.cfg.BaseURL+"/api/stations/"+stationID+"/queue", nil, &body)
	if err != nil {
		return nil, latency, err
	}
	if status != 200 {
		return nil, latency, fmt.Errorf("status=%d", status)
	}
	ids := make([]string, len(body.Queue))
	for i, e := range body.Queue {
		ids[i] = e.AgentID
	}
	return ids, latency, nil
}

func (r *Runner) stationCenters(ctx context.Context) []types.Point {
	var body struct {
		Stations []struct {
			Location types.Point `json:"location"`
		} `json:"stations"`
	}
	status, _, err := r.doJSON(ctx, http.MethodGet, r.cfg.BaseURL+"/api/stations", nil, &body)
	if err != nil || status != 200 || len(body.Stations) == 0 {
		return []types.Point{{Lat: r.cfg.StationLat, Lng: r.cfg.StationLng}}
	}
	out := make([]types.Point, len(body.Stations))
	for i, s := range body.Stations {
		out[i] = s.Location
	}
	return out
}

// randomDriver places a driver at a uniform bearing and distance from a
// random station.
func randomDriver(id string, centers []types.Point, spreadMeters float64) map[string]any {
	c := centers[rand.IntN(len(centers))]
	d := rand.Float64() * spreadMeters
	bearing := rand.Float64() * 2 * math.Pi
	const metersPerDegree = 111320.0
	lat := c.Lat + d*math.Cos(bearing)/metersPerDegree
	lng := c.Lng + d*math.Sin(bearing)/(metersPerDegree*math.Cos(c.Lat*math.Pi/180))
	statuses := []string{"idle", "active", "busy"}
	return map[string]any{
		"agent_id": id,
		"lat":      lat,
		"lng":      lng,
		"status":   statuses[rand.IntN(len(statuses))],
	}
}

func httpCase(name, url string, body any, okStatuses, pendingStatuses []int) TestCase {
	return httpCaseMethod(name, http.MethodPost, url, body, okStatuses, pendingStatuses)
}

func httpCaseMethod(name, method, url string, body any, okStatuses, pendingStatuses []int) TestCase {
	return TestCase{
		Name:  name,
		Focus: "HTTP API",
		Run: func(ctx context.Context, r *Runner) Result {
			status, latency, err := r.doJSON(ctx, method, url, body, nil)
			if err != nil {
				return Result{Status: "FAIL", Note: err.Error()}
			}
			note := fmt.Sprintf("status=%d", status)
			if contains(okStatuses, status) {
				return Result{Status: "PASS", Latency: latency, Note: note}
			}
			if contains(pendingStatuses, status) {
				return Result{Status: "PENDING", Latency: latency, Note: note}
			}
			return Result{Status: "FAIL", Latency: latency, Note: note}
		},
	}
}

func manualCase(name, note string) TestCase {
	return TestCase{
		Name:  name,
		Focus: "Manual",
		Run: func(ctx context.Context, r *Runner) Result {
			return Result{Status: "SKIP", Note: note}
		},
	}
}

func pendingOrFail(status int, latency time.Duration) Result {
	note := fmt.Sprintf("status=%d", status)
	if status == 401 || status == 403 {
		return Result{Status: "PENDING", Latency: latency, Note: note + " (auth enabled)"}
	}
	return Result{Status: "FAIL", Latency: latency, Note: note}
}

// concurrentPop queues Concurrency drivers, then pops them from as many
// goroutines and checks nobody is handed out twice.
func concurrentPop(ctx context.Context, r *Runner, base string) Result {
	st := r.cfg.StationID
	for i := 0; i < r.cfg.Concurrency; i++ {
		body := map[string]any{"agent_id": fmt.Sprintf("bench-c-%d", i), "lat": r.cfg.StationLat, "lng": r.cfg.StationLng}
		status, latency, err := r.doJSON(ctx, http.MethodPost, base+"/api/agents/location", body, nil)
		if err != nil {
			return Result{Status: "FAIL", Note: err.Error()}
		}
		if status != 200 {
			return pendingOrFail(status, latency)
		}
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = map[string]int{}
		deny int
	)
	for i := 0; i < r.cfg.Concurrency*2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var body struct {
				AgentID string `json:"agent_id"`
			}
			status, _, err := r.doJSON(ctx, http.MethodPost, base+"/api/stations/"+st+"/pop", nil, &body)
			if err != nil {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			switch status {
			case 200:
				seen[body.AgentID]++
			case 401, 403:
				deny++
			}
		}()
	}
	wg.Wait()

	if deny > 0 {
		return Result{Status: "PENDING", Note: "pop requires dispatcher role"}
	}
	for id, n := range seen {
		if n > 1 {
			return Result{Status: "FAIL", Note: fmt.Sprintf("%s popped %d times", id, n)}
		}
	}
	return Result{Status: "PASS", Note: fmt.Sprintf("popped=%d", len(seen))}
}

func perfLoad(ctx context.Context, r *Runner, url string, payload func(worker int) any) Result {
	end := time.Now().Add(r.cfg.Duration)
	var count, errCount atomic.Int64
	var wg sync.WaitGroup

	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for time.Now().Before(end) && ctx.Err() == nil {
				status, _, err := r.doJSON(ctx, http.MethodPost, url, payload(worker), nil)
				if err != nil || status >= 500 {
					errCount.Add(1)
					continue
				}
				count.Add(1)
			}
		}(i)
	}
	wg.Wait()

	if count.Load() == 0 {
		return Result{Status: "FAIL", Note: "no requests completed"}
	}
	rps := float64(count.Load()) / r.cfg.Duration.Seconds()
	return Result{Status: "PASS", Note: fmt.Sprintf("rps=%.1f errors=%d", rps, errCount.Load())}
}

func eventually(ctx context.Context, within time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(within)
	for time.Now().Before(deadline) && ctx.Err() == nil {
		if cond() {
			return true
		}
		time.Sleep(50 * time.Millisecond)
	}
	return false
}

func contains(list []int, v int) bool {
	for _, i := range list {
		if i == v {
			return true
		}
	}
	return false
}

func indexOf(list []string, v string) int {
	for i, s := range list {
		if s == v {
			return i
		}
	}
	return -1
}

var createTable = regexp.MustCompile(`(?i)create\s+table\s+if\s+not\s+exists\s+([a-zA-Z0-9_]+)`)

func extractTables() ([]string, error) {
	stmts, err := migrations.Statements()
	if err != nil {
		return nil, err
	}
	var tables []string
	for _, s := range stmts {
		if m := createTable.FindStringSubmatch(s); m != nil {
			tables = append(tables, m[1])
		}
	}
	return tables, nil
}
