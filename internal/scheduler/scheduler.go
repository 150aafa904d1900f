package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/subscriptiond/internal/clock"
	obsmetrics "github.com/smallbiznis/subscriptiond/internal/observability/metrics"
	"github.com/smallbiznis/subscriptiond/internal/ratelimit"
	subscriptiondomain "github.com/smallbiznis/subscriptiond/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const JobExpireLapsed = "expire_lapsed"

var ErrInvalidConfig = errors.New("scheduler_invalid_config")

type Params struct {
	fx.In

	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	SubSvc  subscriptiondomain.Service
	Config  Config                       `optional:"true"`
	Redis   *redis.Client                `optional:"true"`
	Metrics *obsmetrics.SchedulerMetrics `optional:"true"`
}

// Scheduler runs periodic maintenance jobs. With Redis configured each job
// holds a lock so only one replica runs it per tick.
type Scheduler struct {
	log     *zap.Logger
	cfg     Config
	genID   *snowflake.Node
	clock   clock.Clock
	subSvc  subscriptiondomain.Service
	locker  *ratelimit.Locker
	metrics *obsmetrics.SchedulerMetrics
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil || p.SubSvc == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:     p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:     p.Config.withDefaults(),
		genID:   p.GenID,
		clock:   p.Clock,
		subSvc:  p.SubSvc,
		locker:  ratelimit.NewLocker(p.Redis),
		metrics: p.Metrics,
	}, nil
}

func (s *Scheduler) RunOnce(ctx context.Context) error {
	return s.runJob(ctx, JobExpireLapsed, s.ExpireLapsedJob)
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) runJob(parent context.Context, name string, fn func(ctx context.Context, run *jobRun) error) error {
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	release, acquired, err := s.acquire(ctx, name)
	if err != nil {
		s.metrics.IncJobError(name, err)
		return fmt.Errorf("%s: lock: %w", name, err)
	}
	if !acquired {
		s.metrics.IncLockUnavailable(name)
		s.log.Debug("scheduler.job.skipped", zap.String("job", name), zap.String("reason", "locked"))
		return nil
	}
	defer release()

	ctx, run := s.startRun(ctx, name)
	s.metrics.IncJobRun(name)

	err = fn(ctx, run)
	s.metrics.ObserveJobDuration(name, s.clock.Now().Sub(run.startedAt))
	s.metrics.AddProcessed(name, run.processedCount)
	if err != nil {
		run.IncError()
	}
	s.logJobFinish(run)
	if err == nil {
		return nil
	}

	// deadline is a soft timeout; the next tick resumes
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.metrics.IncJobTimeout(name)
		run.log.Warn("scheduler.job.timeout", zap.Duration("timeout", s.cfg.JobTimeout), zap.Error(err))
		return nil
	}
	s.metrics.IncJobError(name, err)
	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) acquire(ctx context.Context, name string) (func(), bool, error) {
	if s.locker == nil {
		return func() {}, true, nil
	}
	lease, err := s.locker.Acquire(ctx, "scheduler:"+name, s.cfg.JobTimeout)
	if errors.Is(err, ratelimit.ErrLockHeld) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return func() {
		if err := lease.Release(context.Background()); err != nil {
			s.log.Warn("scheduler lock release failed", zap.String("job", name), zap.Error(err))
		}
	}, true, nil
}

// ExpireLapsedJob drains lapsed active rows in batches until a short batch.
func (s *Scheduler) ExpireLapsedJob(ctx context.Context, run *jobRun) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := s.subSvc.SweepLapsed(ctx, s.cfg.BatchSize)
		if err != nil {
			return err
		}
		run.AddProcessed(n)
		if n < s.cfg.BatchSize {
			return nil
		}
	}
}
