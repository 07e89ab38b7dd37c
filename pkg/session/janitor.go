package session

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// DefaultSweepInterval is how often the janitor applies eviction when no
// mutating call has done so.
const DefaultSweepInterval = time.Minute

// Janitor periodically sweeps the store so idle sessions expire even when
// no mutating traffic arrives.
type Janitor struct {
	store       *Store
	ttl         time.Duration
	maxSessions int
	interval    time.Duration

	cron    *cron.Cron
	entryID cron.EntryID
	running bool
}

// NewJanitor creates a janitor for the given store and limits.
func NewJanitor(store *Store, ttl time.Duration, maxSessions int, interval time.Duration) *Janitor {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Janitor{
		store:       store,
		ttl:         ttl,
		maxSessions: maxSessions,
		interval:    interval,
		cron:        cron.New(),
	}
}

// Start schedules the sweep. Calling Start twice is an error.
func (j *Janitor) Start() error {
	if j.running {
		return fmt.Errorf("janitor is already running")
	}

	id, err := j.cron.AddFunc(fmt.Sprintf("@every %s", j.interval), j.sweep)
	if err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}
	j.entryID = id
	j.cron.Start()
	j.running = true

	log.Info().
		Dur("interval", j.interval).
		Dur("ttl", j.ttl).
		Int("max_sessions", j.maxSessions).
		Msg("Session janitor started")
	return nil
}

// Stop halts the sweep schedule, waiting for an in-flight sweep to finish.
func (j *Janitor) Stop() error {
	if !j.running {
		return fmt.Errorf("janitor is not running")
	}

	ctx := j.cron.Stop()
	<-ctx.Done()
	j.running = false

	log.Info().Msg("Session janitor stopped")
	return nil
}

func (j *Janitor) sweep() {
	j.store.Sweep(j.ttl, j.maxSessions)
}
