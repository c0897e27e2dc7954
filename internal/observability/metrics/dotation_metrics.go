package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/dotation/pkg/db"
	"gorm.io/gorm"
)

const (
	JobReasonDeadlineExceeded     = "deadline_exceeded"
	JobReasonDBLockTimeout        = "db_lock_timeout"
	JobReasonSerializationFailure = "serialization_failure"
	JobReasonUniqueViolation      = "unique_violation"
	JobReasonStorageUnavailable   = "storage_unavailable"
	JobReasonUnknown              = "unknown"
)

const (
	LockResourceCycleByID    = "cycle_by_id"
	LockResourceActiveCycle  = "active_cycle"
	LockResourceMembershipID = "membership_by_id"
)

// DotationMetrics captures the health of cycle, membership and order flows.
type DotationMetrics struct {
	cyclesCreated     prometheus.Counter
	cycleTransitions  *prometheus.CounterVec
	memberTransitions *prometheus.CounterVec
	ordersGenerated   prometheus.Counter
	orderFailures     *prometheus.CounterVec
	orderItems        prometheus.Counter
	orderDuration     prometheus.Observer
	kitsBackfilled    prometheus.Counter
	jobRuns           *prometheus.CounterVec
	jobErrors         *prometheus.CounterVec
	jobDuration       *prometheus.HistogramVec
	dbLockWait        *prometheus.HistogramVec
	dbSlowQueries     *prometheus.CounterVec
}

var (
	dotationMetricsOnce sync.Once
	dotationMetrics     *DotationMetrics
)

// Dotation returns the singleton metrics registry.
func Dotation() *DotationMetrics {
	return DotationWithConfig(Config{})
}

// DotationWithConfig returns the singleton registry using config labels.
func DotationWithConfig(cfg Config) *DotationMetrics {
	dotationMetricsOnce.Do(func() {
		dotationMetrics = newDotationMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return dotationMetrics
}

// ResetDotationMetricsForTest resets the singleton for tests.
func ResetDotationMetricsForTest() {
	dotationMetricsOnce = sync.Once{}
	dotationMetrics = nil
}

func newDotationMetrics(registerer prometheus.Registerer, cfg Config) *DotationMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "dotation"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	cyclesCreated := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "dotation_cycles_created_total",
		Help:        "Dotation cycles created.",
		ConstLabels: constLabels,
	})
	cycleTransitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "dotation_cycle_transitions_total",
		Help:        "Cycle state transitions.",
		ConstLabels: constLabels,
	}, []string{"from", "to"})
	memberTransitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "dotation_membership_transitions_total",
		Help:        "Membership state transitions.",
		ConstLabels: constLabels,
	}, []string{"from", "to"})
	ordersGenerated := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "dotation_orders_generated_total",
		Help:        "Purchase orders generated from cycles.",
		ConstLabels: constLabels,
	})
	orderFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "dotation_order_generation_failures_total",
		Help:        "Order generation rejections by error kind.",
		ConstLabels: constLabels,
	}, []string{"reason"})
	orderItems := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "dotation_order_items_total",
		Help:        "Units requested across generated orders.",
		ConstLabels: constLabels,
	})
	orderDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "dotation_order_generation_duration_seconds",
		Help:        "Latency of the order aggregation transaction.",
		Buckets:     []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		ConstLabels: constLabels,
	})
	kitsBackfilled := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "dotation_kits_backfilled_total",
		Help:        "Memberships that received a kit through backfill.",
		ConstLabels: constLabels,
	})
	jobRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "dotation_scheduler_job_runs_total",
		Help:        "Scheduler job runs by name.",
		ConstLabels: constLabels,
	}, []string{"job"})
	jobErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "dotation_scheduler_job_errors_total",
		Help:        "Scheduler job errors by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"job", "reason"})
	jobDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "dotation_scheduler_job_duration_seconds",
		Help:        "Scheduler job latency.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		ConstLabels: constLabels,
	}, []string{"job"})
	dbLockWait := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "dotation_db_lock_wait_seconds",
		Help:        "Wait time for SELECT FOR UPDATE row locks.",
		Buckets:     []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		ConstLabels: constLabels,
	}, []string{"resource"})

	dbSlowQueries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "dotation_db_slow_queries_total",
		Help:        "Statements that crossed the slow query threshold.",
		ConstLabels: constLabels,
	}, []string{"operation", "table"})

	registerer.MustRegister(
		cyclesCreated,
		cycleTransitions,
		memberTransitions,
		ordersGenerated,
		orderFailures,
		orderItems,
		orderDuration,
		kitsBackfilled,
		jobRuns,
		jobErrors,
		jobDuration,
		dbLockWait,
		dbSlowQueries,
	)

	return &DotationMetrics{
		cyclesCreated:     cyclesCreated,
		cycleTransitions:  cycleTransitions,
		memberTransitions: memberTransitions,
		ordersGenerated:   ordersGenerated,
		orderFailures:     orderFailures,
		orderItems:        orderItems,
		orderDuration:     orderDuration,
		kitsBackfilled:    kitsBackfilled,
		jobRuns:           jobRuns,
		jobErrors:         jobErrors,
		jobDuration:       jobDuration,
		dbLockWait:        dbLockWait,
		dbSlowQueries:     dbSlowQueries,
	}
}

func (m *DotationMetrics) IncCycleCreated() {
	if m == nil {
		return
	}
	m.cyclesCreated.Inc()
}

func (m *DotationMetrics) IncCycleTransition(from, to string) {
	if m == nil {
		return
	}
	m.cycleTransitions.WithLabelValues(from, to).Inc()
}

func (m *DotationMetrics) IncMembershipTransition(from, to string) {
	if m == nil {
		return
	}
	m.memberTransitions.WithLabelValues(from, to).Inc()
}

// RecordOrderGenerated counts a persisted order and its requested units.
func (m *DotationMetrics) RecordOrderGenerated(items int64, duration time.Duration) {
	if m == nil {
		return
	}
	m.ordersGenerated.Inc()
	if items > 0 {
		m.orderItems.Add(float64(items))
	}
	m.orderDuration.Observe(duration.Seconds())
}

// IncOrderFailure counts a rejected generation; reason is the error kind.
func (m *DotationMetrics) IncOrderFailure(reason string) {
	if m == nil {
		return
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = JobReasonUnknown
	}
	m.orderFailures.WithLabelValues(reason).Inc()
}

func (m *DotationMetrics) AddKitsBackfilled(count int64) {
	if m == nil || count <= 0 {
		return
	}
	m.kitsBackfilled.Add(float64(count))
}

func (m *DotationMetrics) IncJobRun(job string) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job).Inc()
}

func (m *DotationMetrics) ObserveJobDuration(job string, duration time.Duration) {
	if m == nil {
		return
	}
	m.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

func (m *DotationMetrics) IncJobError(job string, err error) {
	if m == nil || err == nil {
		return
	}
	m.jobErrors.WithLabelValues(job, ClassifyJobReason(err)).Inc()
}

// ObserveDBLockWait records how long a row lock took to acquire.
func (m *DotationMetrics) ObserveDBLockWait(resource string, duration time.Duration) {
	if m == nil {
		return
	}
	if duration < 0 {
		duration = 0
	}
	m.dbLockWait.WithLabelValues(resource).Observe(duration.Seconds())
}

func (m *DotationMetrics) IncSlowQuery(operation, table string) {
	if m == nil {
		return
	}
	m.dbSlowQueries.WithLabelValues(strings.ToLower(operation), table).Inc()
}

// ClassifyJobReason maps errors to low-cardinality reasons.
func ClassifyJobReason(err error) string {
	if err == nil {
		return JobReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return JobReasonDeadlineExceeded
	}
	if hasPGCode(err, "55P03") {
		return JobReasonDBLockTimeout
	}
	if hasPGCode(err, "40001") {
		return JobReasonSerializationFailure
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || hasPGCode(err, "23505") {
		return JobReasonUniqueViolation
	}
	if errors.Is(err, db.ErrStorageUnavailable) {
		return JobReasonStorageUnavailable
	}
	return JobReasonUnknown
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}
