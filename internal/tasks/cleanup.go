package tasks

import (
	"context"
	"fmt"
	"time"

	"world-chat/internal/repository"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

const (
	DefaultSchedule  = "0 * * * *"
	DefaultRetention = 24 * time.Hour
)

// RetentionCleaner drops messages, and their reactions, once they fall out of
// the retention window.
type RetentionCleaner struct {
	repo      repository.MessageRepo
	retention time.Duration
	schedule  string
	cron      *cron.Cron
	now       func() time.Time
	log       zerolog.Logger
}

func NewRetentionCleaner(repo repository.MessageRepo, retention time.Duration, schedule string, log zerolog.Logger) *RetentionCleaner {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if schedule == "" {
		schedule = DefaultSchedule
	}
	return &RetentionCleaner{
		repo:      repo,
		retention: retention,
		schedule:  schedule,
		cron:      cron.New(),
		now:       func() time.Time { return time.Now().UTC() },
		log:       log.With().Str("component", "retention").Logger(),
	}
}

// RunOnce deletes everything created before now minus the retention window.
func (t *RetentionCleaner) RunOnce(ctx context.Context) (int64, error) {
	cutoff := t.now().Add(-t.retention)
	n, err := t.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	t.log.Info().Int64("deleted", n).Time("cutoff", cutoff).Msg("retention sweep done")
	return n, nil
}

func (t *RetentionCleaner) Start() error {
	_, err := t.cron.AddFunc(t.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
		defer cancel()

		if _, err := t.RunOnce(ctx); err != nil {
			t.log.Error().Err(err).Msg("retention sweep failed")
		}
	})
	if err != nil {
		return fmt.Errorf("schedule %q: %w", t.schedule, err)
	}

	t.cron.Start()
	t.log.Info().Str("schedule", t.schedule).Dur("retention", t.retention).Msg("retention scheduled")
	return nil
}

// Stop halts the schedule and returns a context that is done once a running
// sweep has finished.
func (t *RetentionCleaner) Stop() context.Context {
	return t.cron.Stop()
}
