package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/BaSui01/missionflow/mission"
	"github.com/BaSui01/missionflow/queue"
)

// Collector records engine and worker pool metrics. It implements both
// mission.Metrics and queue.Metrics so one collector can be wired into the
// whole pipeline.
type Collector struct {
	stepsTotal      *prometheus.CounterVec
	stepDuration    *prometheus.HistogramVec
	missionsTotal   *prometheus.CounterVec
	missionDuration *prometheus.HistogramVec

	jobsStarted      *prometheus.CounterVec
	jobDuration      *prometheus.HistogramVec
	jobsRetried      *prometheus.CounterVec
	jobsDeadLettered *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector creates a collector registering its metrics under the
// given namespace. A nil registerer falls back to the default Prometheus
// registerer.
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.stepsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "steps_total",
			Help:      "Total number of executed mission steps",
		},
		[]string{"type", "step", "outcome"},
	)

	c.stepDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Mission step duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"type", "step"},
	)

	c.missionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "missions_total",
			Help:      "Total number of mission execution attempts",
		},
		[]string{"type", "outcome"},
	)

	c.missionDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "mission_duration_seconds",
			Help:      "Finished mission duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		},
		[]string{"type"},
	)

	c.jobsStarted = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_started_total",
			Help:      "Total number of job attempts drawn from the queue",
		},
		[]string{"queue"},
	)

	c.jobDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Job attempt duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		},
		[]string{"queue", "outcome"},
	)

	c.jobsRetried = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_retried_total",
			Help:      "Total number of job attempts re-dispatched for retry",
		},
		[]string{"queue"},
	)

	c.jobsDeadLettered = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_dead_lettered_total",
			Help:      "Total number of jobs that exhausted their retries",
		},
		[]string{"queue"},
	)

	return c
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// StepCompleted implements mission.Metrics.
func (c *Collector) StepCompleted(taskType, step string, d time.Duration, err error) {
	c.stepsTotal.WithLabelValues(taskType, step, outcome(err)).Inc()
	c.stepDuration.WithLabelValues(taskType, step).Observe(d.Seconds())
}

// MissionFinished implements mission.Metrics.
func (c *Collector) MissionFinished(taskType string, d time.Duration) {
	c.missionsTotal.WithLabelValues(taskType, "ok").Inc()
	c.missionDuration.WithLabelValues(taskType).Observe(d.Seconds())
}

// MissionFailed implements mission.Metrics.
func (c *Collector) MissionFailed(taskType string) {
	c.missionsTotal.WithLabelValues(taskType, "error").Inc()
}

// JobStarted implements queue.Metrics.
func (c *Collector) JobStarted(queueName string) {
	c.jobsStarted.WithLabelValues(queueName).Inc()
}

// JobCompleted implements queue.Metrics.
func (c *Collector) JobCompleted(queueName string, d time.Duration, err error) {
	c.jobDuration.WithLabelValues(queueName, outcome(err)).Observe(d.Seconds())
}

// JobRetried implements queue.Metrics.
func (c *Collector) JobRetried(queueName string) {
	c.jobsRetried.WithLabelValues(queueName).Inc()
}

// JobDeadLettered implements queue.Metrics.
func (c *Collector) JobDeadLettered(queueName string) {
	c.jobsDeadLettered.WithLabelValues(queueName).Inc()
}

// Ensure Collector satisfies both metric sinks.
var (
	_ mission.Metrics = (*Collector)(nil)
	_ queue.Metrics   = (*Collector)(nil)
)
