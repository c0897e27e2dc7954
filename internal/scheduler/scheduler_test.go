package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/smallbiznis/dotation/internal/actorcontext"
	"github.com/smallbiznis/dotation/internal/clock"
	cycledomain "github.com/smallbiznis/dotation/internal/cycle/domain"
	kitdomain "github.com/smallbiznis/dotation/internal/kit/domain"
	obsmetrics "github.com/smallbiznis/dotation/internal/observability/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubCycles struct {
	cycledomain.Service
	active *cycledomain.Cycle
	err    error
}

func (s *stubCycles) GetActive(context.Context) (*cycledomain.Cycle, error) {
	return s.active, s.err
}

type stubKits struct {
	kitdomain.Service
	updated int64
	err     error
	calls   []snowflake.ID
	actors  []string
}

func (s *stubKits) BackfillMissingKits(ctx context.Context, cycleID snowflake.ID, actor string) (int64, error) {
	s.calls = append(s.calls, cycleID)
	s.actors = append(s.actors, actor)
	return s.updated, s.err
}

func newTestScheduler(t *testing.T, cycles *stubCycles, kits *stubKits, cfg Config) *Scheduler {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	s, err := New(Params{
		Log:      zap.NewNop(),
		GenID:    node,
		CycleSvc: cycles,
		KitSvc:   kits,
		Clock:    clock.NewFakeClock(time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)),
		Config:   cfg,
	})
	require.NoError(t, err)
	return s
}

func useTestRegistry(t *testing.T) *prometheus.Registry {
	t.Helper()
	registry := prometheus.NewRegistry()
	restore := swapPrometheusRegistry(registry)
	t.Cleanup(restore)

	obsmetrics.ResetDotationMetricsForTest()
	obsmetrics.DotationWithConfig(obsmetrics.Config{
		ServiceName: "dotation",
		Environment: "test",
	})
	return registry
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Params{Log: zap.NewNop()})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestRunJobTimeoutDoesNotReturnError(t *testing.T) {
	registry := useTestRegistry(t)
	s := newTestScheduler(t, &stubCycles{}, &stubKits{}, Config{})

	err := s.runJob(context.Background(), "timeout_job", 5*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.NoError(t, err)

	jobLabels := map[string]string{
		"service": "dotation",
		"env":     "test",
		"job":     "timeout_job",
	}
	assert.Equal(t, float64(1), getCounterValue(t, registry, "dotation_scheduler_job_runs_total", jobLabels))

	errorLabels := map[string]string{
		"service": "dotation",
		"env":     "test",
		"job":     "timeout_job",
		"reason":  obsmetrics.JobReasonDeadlineExceeded,
	}
	assert.Equal(t, float64(1), getCounterValue(t, registry, "dotation_scheduler_job_errors_total", errorLabels))
}

func TestRunJobWrapsErrorsAndSetsSystemActor(t *testing.T) {
	registry := useTestRegistry(t)
	s := newTestScheduler(t, &stubCycles{}, &stubKits{}, Config{})

	boom := errors.New("boom")
	var actor actorcontext.Actor
	err := s.runJob(context.Background(), "failing_job", time.Second, func(ctx context.Context) error {
		actor, _ = actorcontext.ActorFromContext(ctx)
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "failing_job")
	assert.Equal(t, actorcontext.ActorTypeSystem, actor.Type)
	assert.Equal(t, "scheduler", actor.ID)

	errorLabels := map[string]string{
		"service": "dotation",
		"env":     "test",
		"job":     "failing_job",
		"reason":  obsmetrics.JobReasonUnknown,
	}
	assert.Equal(t, float64(1), getCounterValue(t, registry, "dotation_scheduler_job_errors_total", errorLabels))
}

func TestKitBackfillJob(t *testing.T) {
	t.Run("skips without active cycle", func(t *testing.T) {
		useTestRegistry(t)
		kits := &stubKits{}
		s := newTestScheduler(t, &stubCycles{}, kits, Config{})

		require.NoError(t, s.RunOnce(context.Background()))
		assert.Empty(t, kits.calls)
	})

	t.Run("backfills active cycle", func(t *testing.T) {
		useTestRegistry(t)
		active := &cycledomain.Cycle{ID: snowflake.ID(42)}
		kits := &stubKits{updated: 3}
		s := newTestScheduler(t, &stubCycles{active: active}, kits, Config{})

		ctx, run, _ := s.ensureJobRun(context.Background(), JobKitBackfill)
		require.NoError(t, s.KitBackfillJob(ctx))
		assert.Equal(t, []snowflake.ID{42}, kits.calls)
		assert.Equal(t, []string{"scheduler"}, kits.actors)
		assert.Equal(t, 3, run.processedCount)
		assert.Zero(t, run.errorCount)
	})

	t.Run("propagates backfill failure", func(t *testing.T) {
		useTestRegistry(t)
		boom := errors.New("db down")
		kits := &stubKits{err: boom}
		s := newTestScheduler(t, &stubCycles{active: &cycledomain.Cycle{ID: 7}}, kits, Config{})

		err := s.RunOnce(context.Background())
		require.ErrorIs(t, err, boom)
	})

	t.Run("respects enabled jobs", func(t *testing.T) {
		useTestRegistry(t)
		kits := &stubKits{}
		s := newTestScheduler(t, &stubCycles{active: &cycledomain.Cycle{ID: 7}}, kits, Config{EnabledJobs: []string{"other"}})

		require.NoError(t, s.RunOnce(context.Background()))
		assert.Empty(t, kits.calls)
	})
}

func TestStart(t *testing.T) {
	t.Run("no spec schedules nothing", func(t *testing.T) {
		s := newTestScheduler(t, &stubCycles{}, &stubKits{}, Config{})
		scheduled, err := s.Start()
		require.NoError(t, err)
		assert.False(t, scheduled)
	})

	t.Run("invalid spec", func(t *testing.T) {
		s := newTestScheduler(t, &stubCycles{}, &stubKits{}, Config{KitBackfillSpec: "not a cron"})
		_, err := s.Start()
		assert.Error(t, err)
	})

	t.Run("valid spec", func(t *testing.T) {
		s := newTestScheduler(t, &stubCycles{}, &stubKits{}, Config{KitBackfillSpec: "*/15 * * * *"})
		scheduled, err := s.Start()
		require.NoError(t, err)
		assert.True(t, scheduled)
		<-s.Stop().Done()
	})
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{KitBackfillSpec: "  @hourly "}.withDefaults()
	assert.Equal(t, "@hourly", cfg.KitBackfillSpec)
	assert.Equal(t, 2*time.Minute, cfg.JobTimeout)
}

func swapPrometheusRegistry(registry *prometheus.Registry) func() {
	oldRegisterer := prometheus.DefaultRegisterer
	oldGatherer := prometheus.DefaultGatherer
	prometheus.DefaultRegisterer = registry
	prometheus.DefaultGatherer = registry
	return func() {
		prometheus.DefaultRegisterer = oldRegisterer
		prometheus.DefaultGatherer = oldGatherer
		obsmetrics.ResetDotationMetricsForTest()
	}
}

func getCounterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	metricFamilies, err := registry.Gather()
	require.NoError(t, err)
	for _, mf := range metricFamilies {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.Metric {
			if !labelsMatch(metric, labels) {
				continue
			}
			require.NotNil(t, metric.Counter, "metric %s is not a counter", name)
			return metric.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func labelsMatch(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.Label) != len(labels) {
		return false
	}
	for _, label := range metric.Label {
		if labels[label.GetName()] != label.GetValue() {
			return false
		}
	}
	return true
}

func TestTickWithoutLockerRunsJob(t *testing.T) {
	useTestRegistry(t)
	kits := &stubKits{updated: 1}
	s := newTestScheduler(t, &stubCycles{active: &cycledomain.Cycle{ID: 9}}, kits, Config{})
	require.Nil(t, s.locker)

	s.tick(JobKitBackfill, s.KitBackfillJob)
	assert.Equal(t, []snowflake.ID{9}, kits.calls)
}

func TestNilLocker(t *testing.T) {
	var l *Locker
	assert.Nil(t, NewLocker(nil))
	_, ok, err := l.TryLock(context.Background(), JobKitBackfill, time.Second)
	assert.Error(t, err)
	assert.False(t, ok)
	assert.NoError(t, l.Release(context.Background(), JobKitBackfill, "token"))
}
