// Package teardown runs the reaper that reclaims labs sitting in
// ENDING: it destroys their runtime resources, archives evidence, and
// lands the row in a terminal state. Grounded on the control plane's
// own internal/monitor.BotMonitor ticker/stopChan/doneChan shape.
package teardown

import (
	"context"
	"time"

	"go.uber.org/zap"

	"octolab/internal/ent"
	"octolab/internal/evidence"
	"octolab/internal/logger"
)

const (
	// DefaultTickInterval is how often the worker polls for ENDING labs.
	DefaultTickInterval = 5 * time.Second

	// DefaultBatchSize is how many labs are claimed per tick.
	DefaultBatchSize = 3

	// DefaultPerLabTimeout bounds a single DestroyLab call.
	DefaultPerLabTimeout = 600 * time.Second
)

// Config bundles Worker's dependencies.
type Config struct {
	Client        *ent.Client
	RuntimeCfg    map[string]interface{}
	Evidence      *evidence.Finalizer
	Coordinator   *Coordinator // optional, nil disables distributed contention reduction
	TickInterval  time.Duration
	BatchSize     int
	PerLabTimeout time.Duration
}

// Worker is the background ENDING-lab reaper.
type Worker struct {
	client        *ent.Client
	runtimeCfg    map[string]interface{}
	evidence      *evidence.Finalizer
	coordinator   *Coordinator
	tickInterval  time.Duration
	batchSize     int
	perLabTimeout time.Duration

	stopChan chan struct{}
	doneChan chan struct{}
}

// New builds a Worker, filling in defaults for any zero-valued timing fields.
func New(cfg Config) *Worker {
	w := &Worker{
		client:        cfg.Client,
		runtimeCfg:    cfg.RuntimeCfg,
		evidence:      cfg.Evidence,
		coordinator:   cfg.Coordinator,
		tickInterval:  cfg.TickInterval,
		batchSize:     cfg.BatchSize,
		perLabTimeout: cfg.PerLabTimeout,
		stopChan:      make(chan struct{}),
		doneChan:      make(chan struct{}),
	}
	if w.tickInterval <= 0 {
		w.tickInterval = DefaultTickInterval
	}
	if w.batchSize <= 0 {
		w.batchSize = DefaultBatchSize
	}
	if w.perLabTimeout <= 0 {
		w.perLabTimeout = DefaultPerLabTimeout
	}
	return w
}

// Start launches the reaper loop. It runs one immediate "startup tick"
// before entering the interval loop, so ENDING labs with no claim, or
// with a claim older than the per-lab timeout, are picked up without
// waiting a full tick_interval. A lab claimed less than the per-lab
// timeout ago by a process that died mid-teardown is not taken by the
// startup tick; a later tick retries it once that claim has gone stale.
func (w *Worker) Start(ctx context.Context) {
	go w.loop(ctx)
}

// Stop signals the loop to exit and blocks until it has, which includes
// waiting for an in-flight tick to finish; Stop itself does not cancel
// ctx. Once ctx is cancelled a tick starts no further labs, and a lab
// whose teardown was cut short by the cancellation stays in ENDING for
// a later tick to retry once its claim has gone stale.
func (w *Worker) Stop() {
	close(w.stopChan)
	<-w.doneChan
}

func (w *Worker) loop(ctx context.Context) {
	defer close(w.doneChan)

	w.tick(ctx)

	ticker := time.NewTicker(w.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *Worker) tick(ctx context.Context) {
	log := logger.GetLogger(ctx)

	labs, err := claimBatch(ctx, w.client, w.batchSize, w.perLabTimeout)
	if err != nil {
		log.Error("claiming ENDING labs failed", zap.Error(err))
		return
	}
	if len(labs) == 0 {
		return
	}
	log.Info("processing ENDING labs", zap.Int("count", len(labs)))

	for _, lab := range labs {
		if ctx.Err() != nil {
			return
		}
		w.processOne(ctx, lab)
	}
}

// processOne acquires the optional distributed lock for lab before
// tearing it down, to reduce contention between replicas; the
// compare-and-set claim taken in claimBatch/tryClaim is what ensures
// only one worker calls DestroyLab for a lab, even if the lock is
// unavailable or etcd is not configured at all.
func (w *Worker) processOne(ctx context.Context, lab *ent.Lab) {
	if w.coordinator != nil {
		locked, unlock, err := w.coordinator.TryLock(ctx, lab.ID)
		if err != nil {
			logger.GetLogger(ctx).Warn("teardown lock attempt failed, proceeding unlocked",
				zap.String("lab_id", lab.ID.String()), zap.Error(err))
		} else if !locked {
			return
		} else {
			defer unlock()
		}
	}
	w.processLab(ctx, lab)
}
