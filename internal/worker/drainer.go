// Package worker runs the scheduled email-queue drain and reconciliation
// sweep. The drain cadence is a cron expression from configuration, and a
// distributed lock keeps exactly one instance draining at a time.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/innerpath/studio/internal/config"
	"github.com/innerpath/studio/internal/pkg/distlock"
	"github.com/innerpath/studio/internal/pkg/logger"
	"github.com/innerpath/studio/internal/service/drain"
	"github.com/robfig/cron/v3"
)

// Housekeeper is the optional purge hook run after each sweep.
type Housekeeper interface {
	DeleteExpiredAuth(ctx context.Context) error
}

// Drainer schedules drain passes and reconciliation sweeps.
type Drainer struct {
	drain     *drain.Service
	lock      distlock.Lock
	cfg       config.DrainerConfig
	housekeep Housekeeper

	cron    *cron.Cron
	sweepCh chan struct{}
	quit    chan struct{}
	done    chan struct{}
}

// NewDrainer creates the drainer. lock guards drain passes across instances;
// housekeep may be nil.
func NewDrainer(svc *drain.Service, lock distlock.Lock, cfg config.DrainerConfig, housekeep Housekeeper) *Drainer {
	return &Drainer{
		drain:     svc,
		lock:      lock,
		cfg:       cfg,
		housekeep: housekeep,
		cron:      cron.New(),
		sweepCh:   make(chan struct{}),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start registers the cron entry and the sweep ticker and begins scheduling.
func (d *Drainer) Start() error {
	if _, err := d.cron.AddFunc(d.cfg.CronSpec, d.runDrain); err != nil {
		return fmt.Errorf("parse drain cron spec %q: %w", d.cfg.CronSpec, err)
	}
	d.cron.Start()

	go d.sweepLoop()

	logger.Info("drainer started",
		"cron", d.cfg.CronSpec,
		"batch_size", d.cfg.BatchSize,
		"sweep_interval", d.cfg.SweepInterval().String())
	return nil
}

// Stop halts scheduling and waits for a running pass to finish. The sweep
// channel stays open so a late TriggerSweep cannot panic; the quit channel
// is what ends the loop.
func (d *Drainer) Stop() {
	ctx := d.cron.Stop()
	close(d.quit)
	<-d.done
	<-ctx.Done()
	logger.Info("drainer stopped")
}

// runDrain executes one leader-locked drain pass. Losing the lock race is
// normal when several instances run; the loser skips the tick.
func (d *Drainer) runDrain() {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.LockTTL())
	defer cancel()

	acquired, err := d.lock.Acquire(ctx)
	if err != nil {
		logger.Error("drain lock acquire failed", "error", err)
		return
	}
	if !acquired {
		logger.Debug("drain tick skipped, another instance holds the lock")
		return
	}
	defer func() {
		if err := d.lock.Release(context.Background()); err != nil {
			logger.Warn("drain lock release failed", "error", err)
		}
	}()

	stats, err := d.drain.Drain(ctx)
	if err != nil {
		logger.Error("drain pass failed", "error", err)
		return
	}
	// Keep claiming while full batches come back and time remains
	for stats.Claimed == d.cfg.BatchSize && ctx.Err() == nil {
		if extender, ok := d.lock.(interface {
			Extend(ctx context.Context, ttl time.Duration) error
		}); ok {
			if err := extender.Extend(ctx, d.cfg.LockTTL()); err != nil {
				logger.Warn("drain lock extend failed", "error", err)
				return
			}
		}
		stats, err = d.drain.Drain(ctx)
		if err != nil {
			logger.Error("drain pass failed", "error", err)
			return
		}
	}
}

func (d *Drainer) sweepLoop() {
	defer close(d.done)
	ticker := time.NewTicker(d.cfg.SweepInterval())
	defer ticker.Stop()

	for {
		select {
		case <-d.quit:
			return
		case <-ticker.C:
			d.runSweep()
		case <-d.sweepCh:
			d.runSweep()
		}
	}
}

// TriggerSweep runs a sweep outside the ticker. Used by tests and ops
// tooling. Safe to call at any point in the drainer's lifetime; after Stop
// it is a no-op.
func (d *Drainer) TriggerSweep() {
	select {
	case d.sweepCh <- struct{}{}:
	case <-d.quit:
	default:
	}
}

func (d *Drainer) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.LockTTL())
	defer cancel()

	acquired, err := d.lock.Acquire(ctx)
	if err != nil {
		logger.Error("sweep lock acquire failed", "error", err)
		return
	}
	if !acquired {
		return
	}
	defer func() {
		if err := d.lock.Release(context.Background()); err != nil {
			logger.Warn("sweep lock release failed", "error", err)
		}
	}()

	stats, err := d.drain.Sweep(ctx)
	if err != nil {
		logger.Error("sweep failed", "error", err)
		return
	}
	if stats.RequeuedFailed+stats.RequeuedStuck+stats.DeadLettered > 0 {
		logger.Info("sweep complete",
			"requeued_failed", stats.RequeuedFailed,
			"requeued_stuck", stats.RequeuedStuck,
			"dead_lettered", stats.DeadLettered)
	}

	if d.housekeep != nil {
		if err := d.housekeep.DeleteExpiredAuth(ctx); err != nil {
			logger.Warn("auth housekeeping failed", "error", err)
		}
	}
}
