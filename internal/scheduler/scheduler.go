package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/smallbiznis/dotation/internal/actorcontext"
	"github.com/smallbiznis/dotation/internal/clock"
	cycledomain "github.com/smallbiznis/dotation/internal/cycle/domain"
	kitdomain "github.com/smallbiznis/dotation/internal/kit/domain"
	obsmetrics "github.com/smallbiznis/dotation/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const schedulerActor = "scheduler"

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	Log      *zap.Logger
	GenID    *snowflake.Node
	CycleSvc cycledomain.Service
	KitSvc   kitdomain.Service
	Clock    clock.Clock   `optional:"true"`
	Config   Config        `optional:"true"`
	Redis    *redis.Client `optional:"true"`
}

type Scheduler struct {
	log      *zap.Logger
	cfg      Config
	genID    *snowflake.Node
	clock    clock.Clock
	cycleSvc cycledomain.Service
	kitSvc   kitdomain.Service
	locker   *Locker
	cron     *cron.Cron
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.CycleSvc == nil || p.KitSvc == nil {
		return nil, ErrInvalidConfig
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.NewSystemClock()
	}
	log := p.Log.Named("scheduler").With(zap.String("component", "scheduler"))
	return &Scheduler{
		log:      log,
		cfg:      p.Config.withDefaults(),
		genID:    p.GenID,
		clock:    clk,
		cycleSvc: p.CycleSvc,
		kitSvc:   p.KitSvc,
		locker:   NewLocker(p.Redis),
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithChain(
				cron.Recover(cronLogger{log: log}),
				cron.SkipIfStillRunning(cronLogger{log: log}),
			),
		),
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx = actorcontext.WithActor(ctx, actorcontext.ActorTypeSystem, schedulerActor)
	ctx, run, owner := s.ensureJobRun(ctx, name)
	if owner {
		s.logJobStart(ctx, run)
	}
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)
	metrics := obsmetrics.Dotation()
	metrics.IncJobRun(name)

	err := fn(ctx)
	metrics.ObserveJobDuration(name, s.clock.Now().Sub(start))
	if owner {
		if err != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	metrics.IncJobError(name, err)
	// deadline is a soft timeout; the next tick retries
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce runs every enabled job immediately.
func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error
	if s.isJobEnabled(JobKitBackfill) {
		err = errors.Join(err, s.runJob(parent, JobKitBackfill, s.cfg.JobTimeout, s.KitBackfillJob))
	}
	return err
}

// Start registers the cron entries and starts the cron loop. It reports
// whether any job was scheduled.
func (s *Scheduler) Start() (bool, error) {
	scheduled := false
	if s.cfg.KitBackfillSpec != "" && s.isJobEnabled(JobKitBackfill) {
		_, err := s.cron.AddFunc(s.cfg.KitBackfillSpec, func() {
			s.tick(JobKitBackfill, s.KitBackfillJob)
		})
		if err != nil {
			return false, fmt.Errorf("schedule %s: %w", JobKitBackfill, err)
		}
		scheduled = true
	}
	if !scheduled {
		return false, nil
	}
	s.cron.Start()
	return true, nil
}

// Stop halts the cron loop and returns a context that is done once running
// jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// tick runs one cron firing. With a locker configured only the replica
// holding the job lock runs it.
func (s *Scheduler) tick(job string, fn func(ctx context.Context) error) {
	ctx := context.Background()
	if s.locker != nil {
		token, ok, err := s.locker.TryLock(ctx, job, s.cfg.JobTimeout)
		if err != nil {
			s.log.Warn("scheduler lock failed", zap.String("job", job), zap.Error(err))
			return
		}
		if !ok {
			s.log.Debug("scheduler job held by another replica", zap.String("job", job))
			return
		}
		defer func() {
			if err := s.locker.Release(ctx, job, token); err != nil {
				s.log.Warn("scheduler lock release failed", zap.String("job", job), zap.Error(err))
			}
		}()
	}

	if err := s.runJob(ctx, job, s.cfg.JobTimeout, fn); err != nil {
		s.log.Warn("scheduler run failed", zap.Error(err))
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// KitBackfillJob assigns area kits to memberships of the active cycle that
// were created before their area had an active kit.
func (s *Scheduler) KitBackfillJob(ctx context.Context) error {
	ctx, run, _ := s.ensureJobRun(ctx, JobKitBackfill)

	active, err := s.cycleSvc.GetActive(ctx)
	if err != nil {
		return err
	}
	if active == nil {
		s.logger(ctx).Debug("no active cycle, nothing to backfill")
		return nil
	}

	updated, err := s.kitSvc.BackfillMissingKits(ctx, active.ID, schedulerActor)
	if err != nil {
		s.logSchedulerError(ctx, run, "kit backfill failed", JobKitBackfill, active.ID, err)
		return err
	}
	run.AddProcessed(int(updated))
	return nil
}

type cronLogger struct {
	log *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
