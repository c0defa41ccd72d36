package monitoring

import (
	"context"
	"fmt"
	"time"

	"github.com/isdelr/inkwell-be/internal/database"
	"github.com/isdelr/inkwell-be/internal/media"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// DefaultMinAge protects blobs written by requests whose rows have not
// committed yet.
const DefaultMinAge = time.Hour

// MediaJanitor removes image blobs that no user or post references.
type MediaJanitor struct {
	db       *database.DB
	store    *media.Store
	schedule cron.Schedule
	minAge   time.Duration
	now      func() time.Time
	done     chan struct{}
	stopped  chan struct{}
}

// NewMediaJanitor creates a janitor that sweeps on the given standard cron
// expression.
func NewMediaJanitor(db *database.DB, store *media.Store, expr string) (*MediaJanitor, error) {
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, fmt.Errorf("parse sweep schedule %q: %w", expr, err)
	}
	return &MediaJanitor{
		db:       db,
		store:    store,
		schedule: schedule,
		minAge:   DefaultMinAge,
		now:      time.Now,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}, nil
}

// Run sweeps on schedule until Stop is called.
func (j *MediaJanitor) Run() {
	defer close(j.stopped)
	log.Info().Msg("Starting media janitor...")

	for {
		next := j.schedule.Next(j.now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-j.done:
			timer.Stop()
			log.Info().Msg("Stopping media janitor.")
			return
		case <-timer.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			removed, err := j.Sweep(ctx)
			cancel()
			if err != nil {
				log.Error().Err(err).Msg("Media sweep failed")
				continue
			}
			log.Info().Int("removed", removed).Time("next_run", j.schedule.Next(j.now())).Msg("Media sweep finished")
		}
	}
}

// Stop halts the janitor and waits for a running sweep to finish.
func (j *MediaJanitor) Stop() {
	close(j.done)
	<-j.stopped
}

// Sweep deletes unreferenced blobs older than the minimum age and returns
// how many were removed.
func (j *MediaJanitor) Sweep(ctx context.Context) (int, error) {
	referenced, err := j.referencedBlobs(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := j.now().Add(-j.minAge)
	var orphans []string
	err = j.store.Walk(func(name string, modTime time.Time) error {
		if _, ok := referenced[name]; !ok && modTime.Before(cutoff) {
			orphans = append(orphans, name)
		}
		return ctx.Err()
	})
	if err != nil {
		return 0, fmt.Errorf("walk media root: %w", err)
	}

	removed := 0
	for _, name := range orphans {
		if err := j.store.Remove(name); err != nil {
			log.Warn().Err(err).Str("blob", name).Msg("Failed to remove orphaned blob")
			continue
		}
		log.Debug().Str("blob", name).Msg("Removed orphaned blob")
		removed++
	}
	return removed, nil
}

func (j *MediaJanitor) referencedBlobs(ctx context.Context) (map[string]struct{}, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT profile_picture FROM users WHERE profile_picture IS NOT NULL
		UNION
		SELECT image FROM posts WHERE image IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("load referenced blobs: %w", err)
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out[name] = struct{}{}
	}
	return out, rows.Err()
}
