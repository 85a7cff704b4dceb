package CronJobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"Pitstop/Lifecycle"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Publisher receives the rendered digest. Slack boards and mail both qualify.
type Publisher interface {
	Publish(ctx context.Context, text string) error
}

type digestSource interface {
	BuildDigest(ctx context.Context) (*Lifecycle.Digest, error)
}

// DigestScheduler periodically renders the open-work digest and hands it to
// every publisher. It only reads lifecycle state.
type DigestScheduler struct {
	cronScheduler *cron.Cron
	source        digestSource
	venue         string
	publishers    []Publisher
	log           *zap.Logger
	timeout       time.Duration

	mu    sync.Mutex
	jobID cron.EntryID
}

func NewDigestScheduler(source digestSource, venue string, log *zap.Logger, publishers ...Publisher) *DigestScheduler {
	return &DigestScheduler{
		cronScheduler: cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger))),
		source:        source,
		venue:         venue,
		publishers:    publishers,
		log:           log,
		timeout:       2 * time.Minute,
	}
}

// Start schedules the digest. Format: "0 0 8 * * *" = 08:00:00 every day.
func (s *DigestScheduler) Start(schedule string) error {
	if err := s.UpdateSchedule(schedule); err != nil {
		return err
	}
	s.cronScheduler.Start()
	s.log.Info("digest scheduler started", zap.String("schedule", schedule))
	return nil
}

func (s *DigestScheduler) Stop() {
	if s.cronScheduler == nil {
		return
	}
	<-s.cronScheduler.Stop().Done()
	s.log.Info("digest scheduler stopped")
}

// UpdateSchedule replaces the digest job's schedule.
func (s *DigestScheduler) UpdateSchedule(schedule string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.cronScheduler.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if _, err := s.RunNow(ctx); err != nil {
			s.log.Error("scheduled digest failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule digest %q: %w", schedule, err)
	}
	if s.jobID != 0 {
		s.cronScheduler.Remove(s.jobID)
	}
	s.jobID = id
	return nil
}

// RunNow builds and publishes the digest immediately. Publisher failures are
// joined but do not stop the other publishers.
func (s *DigestScheduler) RunNow(ctx context.Context) (*Lifecycle.Digest, error) {
	digest, err := s.source.BuildDigest(ctx)
	if err != nil {
		return nil, fmt.Errorf("build digest: %w", err)
	}
	text := digest.Render(s.venue)

	var errs []error
	for _, p := range s.publishers {
		if err := p.Publish(ctx, text); err != nil {
			errs = append(errs, err)
		}
	}
	s.log.Info("digest published",
		zap.String("date", digest.Date),
		zap.Int("overdue", len(digest.Overdue)),
		zap.Int("awaiting_review", len(digest.AwaitingReview)),
		zap.Int("urgent_issues", len(digest.UrgentIssues)),
		zap.Int("publishers", len(s.publishers)),
		zap.Int("failed", len(errs)))
	return digest, errors.Join(errs...)
}
