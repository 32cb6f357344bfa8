// README: Wait-time statistics over a queue snapshot.
package queue

import (
	"time"

	"gonum.org/v1/gonum/stat"
)

// Stats summarises how long the agents of a queue have been waiting, in
// seconds.
type Stats struct {
	Size          int     `json:"size"`
	OldestWaitSec float64 `json:"oldest_wait_s"`
	MeanWaitSec   float64 `json:"mean_wait_s"`
	P50WaitSec    float64 `json:"p50_wait_s"`
	P90WaitSec    float64 `json:"p90_wait_s"`
}

func (q *Queue) Stats(now time.Time) Stats {
	return computeStats(q.Snapshot(), now)
}

func computeStats(entries []Entry, now time.Time) Stats {
	if len(entries) == 0 {
		return Stats{}
	}
	// Entries run oldest first, so walking backwards yields ascending waits,
	// which stat.Quantile requires.
	waits := make([]float64, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		w := now.Sub(entries[i].EnqueuedAt).Seconds()
		if w < 0 {
			w = 0
		}
		waits = append(waits, w)
	}
	return Stats{
		Size:          len(entries),
		OldestWaitSec: waits[len(waits)-1],
		MeanWaitSec:   stat.Mean(waits, nil),
		P50WaitSec:    stat.Quantile(0.5, stat.Empirical, waits, nil),
		P90WaitSec:    stat.Quantile(0.9, stat.Empirical, waits, nil),
	}
}
