package main

import (
	"testing"
	"time"

	"stationq/internal/modules/location"
	"stationq/internal/types"
)

func TestRandomDriverStaysWithinSpread(t *testing.T) {
	centers := []types.Point{{Lat: 17.3005372696588, Lng: 78.39926408384103}, {Lat: 17.3784, Lng: 78.4846}}
	for i := 0; i < 500; i++ {
		d := randomDriver("x", centers, 1000)
		p := types.Point{Lat: d["lat"].(float64), Lng: d["lng"].(float64)}
		best := -1.0
		for _, c := range centers {
			dist, err := location.DistanceMeters(p, c)
			if err != nil {
				t.Fatalf("distance: %v", err)
			}
			if best < 0 || dist < best {
				best = dist
			}
		}
		// The flat-earth offset is accurate to well under a percent at this scale.
		if best > 1010 {
			t.Fatalf("driver %v is %.0fm from the nearest station", p, best)
		}
	}
}

func TestExtractTables(t *testing.T) {
	tables, err := extractTables()
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(tables) != 2 || tables[0] != "stations" || tables[1] != "agents" {
		t.Fatalf("unexpected tables: %v", tables)
	}
}

func TestSummarize(t *testing.T) {
	sum := Summarize([]Result{
		{Status: "PASS"}, {Status: "PASS"}, {Status: "PENDING"}, {Status: "SKIP"},
	})
	if sum != (Summary{Pass: 2, Pending: 1, Skip: 1}) {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if sum.Failed(false) {
		t.Errorf("pending alone must not fail a lenient run")
	}
	if !sum.Failed(true) {
		t.Errorf("pending must fail a strict run")
	}
	if got := sum.String(); got != "PASS=2 FAIL=0 PENDING=1 SKIP=1" {
		t.Errorf("String() = %q", got)
	}
	if !Summarize([]Result{{Status: "FAIL"}}).Failed(false) {
		t.Errorf("a failure must fail the run")
	}
}

func TestEnvConfig(t *testing.T) {
	t.Setenv("STATIONQ_BENCH_BASE_URL", "http://bench:9000")
	t.Setenv("STATIONQ_BENCH_CONCURRENCY", "64")
	t.Setenv("STATIONQ_BENCH_DURATION", "3s")
	t.Setenv("STATIONQ_BENCH_STRICT", "true")

	cfg, err := envConfig()
	if err != nil {
		t.Fatalf("envConfig: %v", err)
	}
	if cfg.BaseURL != "http://bench:9000" || cfg.Concurrency != 64 || cfg.Duration != 3*time.Second || !cfg.Strict {
		t.Fatalf("environment not applied: %+v", cfg)
	}
	if cfg.StationID != "Ameerpet" || cfg.Timeout != time.Minute {
		t.Fatalf("defaults lost: %+v", cfg)
	}
}

func TestBenchFlagsOverrideEnvironment(t *testing.T) {
	cfg := defaultConfig()
	cfg.Concurrency = 64
	cmd := newBenchCmd(&cfg)
	if err := cmd.ParseFlags([]string{"--concurrency", "5", "--station", "MGBS"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	if cfg.Concurrency != 5 || cfg.StationID != "MGBS" || cfg.SpreadMeters != 1000 {
		t.Fatalf("unexpected config after flags: %+v", cfg)
	}
}
