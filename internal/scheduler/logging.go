package scheduler

import (
	"context"
	"time"

	obscontext "github.com/smallbiznis/subscriptiond/internal/observability/context"
	obslogger "github.com/smallbiznis/subscriptiond/internal/observability/logger"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// jobRun tracks one execution of a job for its closing log line.
type jobRun struct {
	job            string
	startedAt      time.Time
	log            *zap.Logger
	processedCount int
	errorCount     int
}

func (r *jobRun) AddProcessed(n int) {
	if r != nil && n > 0 {
		r.processedCount += n
	}
}

func (r *jobRun) IncError() {
	if r != nil {
		r.errorCount++
	}
}

// startRun tags ctx with the system actor so row-level logs below the
// sweeper attribute their writes to it.
func (s *Scheduler) startRun(ctx context.Context, job string) (context.Context, *jobRun) {
	ctx = obscontext.WithActor(ctx, "system", "scheduler")
	run := &jobRun{
		job:       job,
		startedAt: s.clock.Now(),
		log: s.logger(ctx).With(
			zap.String("job", job),
			zap.String("run_id", s.genID.Generate().String()),
		),
	}
	run.log.Debug("scheduler.job.start", zap.Int("batch_size", s.cfg.BatchSize))
	return ctx, run
}

func (s *Scheduler) logger(ctx context.Context) *zap.Logger {
	return obslogger.WithContext(ctx, s.log)
}

// logJobFinish stays at debug for idle runs so a one-minute ticker does not
// flood the log.
func (s *Scheduler) logJobFinish(run *jobRun) {
	level := zapcore.DebugLevel
	if run.errorCount > 0 {
		level = zapcore.WarnLevel
	} else if run.processedCount > 0 {
		level = zapcore.InfoLevel
	}
	if ce := run.log.Check(level, "scheduler.job.finish"); ce != nil {
		ce.Write(
			zap.Duration("elapsed", s.clock.Now().Sub(run.startedAt)),
			zap.Int("processed", run.processedCount),
			zap.Int("errors", run.errorCount),
		)
	}
}
