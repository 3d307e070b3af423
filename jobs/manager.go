// Package jobs provides background job processing functionality.
package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"cinefav/logging"
)

// Refresher reloads the favorites snapshot from the durable store.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// JobManager handles background job execution
type JobManager struct {
	refresher Refresher
	interval  time.Duration
	log       zerolog.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	running   bool
	mu        sync.RWMutex
}

// NewJobManager creates a job manager that refreshes favorites every
// interval. A non-positive interval disables the periodic refresh.
func NewJobManager(refresher Refresher, interval time.Duration) *JobManager {
	return &JobManager{
		refresher: refresher,
		interval:  interval,
		log:       logging.Component("jobs"),
	}
}

// Start begins the job manager background processing
func (jm *JobManager) Start() {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	if jm.running {
		jm.log.Info().Msg("Job manager is already running")
		return
	}

	jm.ctx, jm.cancel = context.WithCancel(context.Background())
	jm.running = true
	jm.log.Info().Dur("interval", jm.interval).Msg("Starting job manager")

	jm.wg.Add(1)
	go jm.runPeriodicRefresh(jm.ctx)
}

// Stop stops the job manager and waits for the running jobs to return
func (jm *JobManager) Stop() {
	jm.mu.Lock()
	if !jm.running {
		jm.mu.Unlock()
		return
	}
	jm.log.Info().Msg("Stopping job manager")
	jm.cancel()
	jm.running = false
	jm.mu.Unlock()

	jm.wg.Wait()
	jm.log.Info().Msg("Job manager stopped")
}

// IsRunning returns whether the job manager is currently running
func (jm *JobManager) IsRunning() bool {
	jm.mu.RLock()
	defer jm.mu.RUnlock()
	return jm.running
}

// runPeriodicRefresh republishes the favorites on every tick so writes made
// by another process sharing the store reach subscribers
func (jm *JobManager) runPeriodicRefresh(ctx context.Context) {
	defer jm.wg.Done()

	if jm.refresher == nil || jm.interval <= 0 {
		jm.log.Info().Msg("Periodic favorites refresh disabled")
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(jm.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			jm.log.Debug().Msg("Periodic favorites refresh stopped")
			return
		case <-ticker.C:
			if err := jm.refresher.Refresh(ctx); err != nil {
				jm.log.Warn().Err(err).Msg("Periodic favorites refresh failed")
			}
		}
	}
}
