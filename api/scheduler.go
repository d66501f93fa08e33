/*
scheduler.go - Periodic ledger replay

PURPOSE:
  Booking writes and their ledger reconciliation share one transaction, but
  ledger failures during creation are tolerated and older data may predate
  the reconciler. The replay walks every live booking and repairs the live
  ledger slots (base and _debt) so they match the stored payment state.

DESIGN:
  - Runs a background goroutine with a configurable interval
  - Each booking service replays its own bookings under the booking lock
  - One failing booking does not stop the run; errors are logged
  - Rows fixed per booking kind are counted in Prometheus

CONFIGURATION:
  - Interval: How often to replay (default: 10 minutes)
  - Enabled: Whether the scheduler is active (default: true)

USAGE:
  scheduler := NewReplayScheduler(ReplayJobs(ticketSvc, eventSvc), m, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - payment/replay.go: Repair of one payer
  - handlers.go: TriggerReplay endpoint (manual run)
*/
package api

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/warp/travel-ledger/booking/groups"
	"github.com/warp/travel-ledger/booking/tickets"
	"github.com/warp/travel-ledger/metrics"
)

// Replayer repairs the ledger of every live booking it owns and returns the
// number of rows changed.
type Replayer interface {
	Replay(ctx context.Context) (int, error)
}

// ReplayJob is one booking kind to replay.
type ReplayJob struct {
	Kind     string
	Replayer Replayer
}

// ReplayJobs builds one job per booking service.
func ReplayJobs(t *tickets.Service, gs ...*groups.Service) []ReplayJob {
	var jobs []ReplayJob
	if t != nil {
		jobs = append(jobs, ReplayJob{Kind: "ticket", Replayer: t})
	}
	for _, g := range gs {
		jobs = append(jobs, ReplayJob{Kind: string(g.Spec().Kind), Replayer: g})
	}
	return jobs
}

// ReplayResult reports one job of a run.
type ReplayResult struct {
	Kind  string `json:"kind"`
	Fixed int    `json:"fixed"`
	Error string `json:"error,omitempty"`
}

// ReplayScheduler runs the ledger replay periodically.
type ReplayScheduler struct {
	Jobs     []ReplayJob
	Interval time.Duration
	Enabled  bool

	logger  *slog.Logger
	metrics *metrics.Metrics

	ticker *time.Ticker
	stop   chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	run    sync.Mutex
}

func NewReplayScheduler(jobs []ReplayJob, m *metrics.Metrics, logger *slog.Logger) *ReplayScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReplayScheduler{
		Jobs:     jobs,
		Interval: 10 * time.Minute,
		Enabled:  true,
		logger:   logger.With("component", "replay"),
		metrics:  m,
	}
}

// Start begins the scheduler. The first run starts immediately.
func (rs *ReplayScheduler) Start() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if !rs.Enabled {
		rs.logger.Info("replay disabled, not starting")
		return
	}
	if rs.ticker != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	rs.cancel = cancel
	rs.stop = make(chan struct{})
	rs.ticker = time.NewTicker(rs.Interval)
	rs.wg.Add(1)

	go rs.loop(ctx)

	rs.logger.Info("replay started", "interval", rs.Interval.String(), "jobs", len(rs.Jobs))
}

// Stop stops the scheduler and waits for a run in progress to abort.
func (rs *ReplayScheduler) Stop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if rs.ticker == nil {
		return
	}
	rs.ticker.Stop()
	rs.cancel()
	close(rs.stop)
	rs.wg.Wait()
	rs.ticker = nil
	rs.logger.Info("replay stopped")
}

func (rs *ReplayScheduler) loop(ctx context.Context) {
	defer rs.wg.Done()

	rs.RunNow(ctx)

	for {
		select {
		case <-rs.ticker.C:
			rs.RunNow(ctx)
		case <-rs.stop:
			return
		}
	}
}

// RunNow replays every job once. Concurrent calls run one after another.
func (rs *ReplayScheduler) RunNow(ctx context.Context) []ReplayResult {
	rs.run.Lock()
	defer rs.run.Unlock()

	start := time.Now()
	results := make([]ReplayResult, 0, len(rs.Jobs))
	total := 0
	for _, job := range rs.Jobs {
		fixed, err := job.Replayer.Replay(ctx)
		res := ReplayResult{Kind: job.Kind, Fixed: fixed}
		if err != nil {
			res.Error = err.Error()
			rs.logger.Error("replay failed", "kind", job.Kind, "fixed", fixed, "error", err)
		}
		rs.metrics.Repaired(job.Kind, fixed)
		total += fixed
		results = append(results, res)
	}

	if total > 0 {
		rs.logger.Warn("replay repaired ledger drift", "rows", total, "duration_ms", time.Since(start).Milliseconds())
	} else {
		rs.logger.Debug("replay found no drift", "duration_ms", time.Since(start).Milliseconds())
	}
	return results
}
