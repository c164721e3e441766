// Package scheduler runs the nightly mileage log export on a cron schedule and
// expires finished export jobs.
package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/stuartshay/otel-mileage/internal/domain"
	"github.com/stuartshay/otel-mileage/internal/queue"
)

const (
	// Disabled turns the nightly export off when used as the schedule
	Disabled = "off"

	// JobRetention is how long finished export jobs stay queryable
	JobRetention = 24 * time.Hour

	pruneSchedule = "@hourly"
)

// ExportQueue accepts export jobs and forgets old ones
type ExportQueue interface {
	Enqueue(params queue.JobParams) (string, error)
	Prune(cutoff time.Time) int
}

// Scheduler manages scheduled tasks
type Scheduler struct {
	cron     *cron.Cron
	exports  ExportQueue
	schedule string
	format   string
	loc      *time.Location
	now      func() time.Time
}

// NewScheduler creates a scheduler that queues yesterday's log on schedule,
// a standard five-field cron expression evaluated in loc
func NewScheduler(exports ExportQueue, schedule, format string, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		cron:     cron.New(cron.WithLocation(loc)),
		exports:  exports,
		schedule: strings.TrimSpace(schedule),
		format:   format,
		loc:      loc,
		now:      time.Now,
	}
}

// Start registers the jobs and starts the cron runner
func (s *Scheduler) Start() error {
	if s.schedule == "" || strings.EqualFold(s.schedule, Disabled) {
		log.Info().Msg("Nightly export disabled")
	} else if _, err := s.cron.AddFunc(s.schedule, s.exportYesterday); err != nil {
		return fmt.Errorf("failed to schedule nightly export %q: %w", s.schedule, err)
	}

	if _, err := s.cron.AddFunc(pruneSchedule, s.pruneJobs); err != nil {
		return fmt.Errorf("failed to schedule job pruning: %w", err)
	}

	log.Info().
		Str("schedule", s.schedule).
		Str("timezone", s.loc.String()).
		Msg("Starting scheduler")
	s.cron.Start()
	return nil
}

// Stop stops the cron runner and waits for a running export to be queued
func (s *Scheduler) Stop() {
	log.Info().Msg("Stopping scheduler")
	<-s.cron.Stop().Done()
}

func (s *Scheduler) exportYesterday() {
	yesterday := s.now().In(s.loc).AddDate(0, 0, -1).Format(domain.DateLayout)

	jobID, err := s.exports.Enqueue(queue.JobParams{
		StartDate: yesterday,
		EndDate:   yesterday,
		Format:    s.format,
	})
	if err != nil {
		log.Error().Err(err).Str("date", yesterday).Msg("Failed to queue nightly export")
		return
	}

	log.Info().
		Str("job_id", jobID).
		Str("date", yesterday).
		Msg("Nightly export queued")
}

func (s *Scheduler) pruneJobs() {
	if removed := s.exports.Prune(s.now().Add(-JobRetention)); removed > 0 {
		log.Info().Int("removed", removed).Msg("Pruned finished export jobs")
	}
}
