package mission

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// AllDoneLabel is the label reported with the final callback once every
// step has completed.
const AllDoneLabel = "all-done"

// AtFunc observes step boundaries. It is invoked with the zero-based step
// index, the total step count, the step's display label and the current
// Progress: once before each step runs, once more (same index and label)
// when a step fails, and a final time as At(total, total, AllDoneLabel, p)
// after the whole mission finishes.
type AtFunc func(ctx context.Context, index, total int, label string, p *Progress)

// Callbacks bundles the observers wired into one Execute call.
type Callbacks struct {
	// At reports step-level progress. Optional.
	At AtFunc

	// Status is the get/set capability handed to every step handler.
	// Optional; steps receive a no-op capability when absent.
	Status Status
}

func (cb Callbacks) at(ctx context.Context, index, total int, label string, p *Progress) {
	if cb.At != nil {
		cb.At(ctx, index, total, label, p)
	}
}

// noopStatus backs step invocations when the caller supplies no status
// capability.
type noopStatus struct{}

func (noopStatus) Get(ctx context.Context, key string) (any, error) { return nil, nil }

func (noopStatus) Set(ctx context.Context, key string, value any) error { return nil }

// Metrics observes engine execution. The zero implementation is a no-op;
// internal/metrics provides a Prometheus-backed one.
type Metrics interface {
	StepCompleted(taskType, step string, d time.Duration, err error)
	MissionFinished(taskType string, d time.Duration)
	MissionFailed(taskType string)
}

type noopMetrics struct{}

func (noopMetrics) StepCompleted(string, string, time.Duration, error) {}

func (noopMetrics) MissionFinished(string, time.Duration) {}

func (noopMetrics) MissionFailed(string) {}

// Engine executes one task instance's steps in order against a Progress.
// The engine is single-threaded and synchronous within one attempt: steps
// run strictly sequentially and the engine never suspends mid-step. It is
// safe to share one Engine across goroutines as long as no two executions
// hold the same Progress.
type Engine struct {
	logger  *zap.Logger
	metrics Metrics
	tracer  trace.Tracer
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithMetrics installs a metrics sink.
func WithMetrics(m Metrics) EngineOption {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// NewEngine creates a mission engine.
func NewEngine(logger *zap.Logger, opts ...EngineOption) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		logger:  logger.With(zap.String("component", "mission_engine")),
		metrics: noopMetrics{},
		tracer:  otel.Tracer("github.com/BaSui01/missionflow/mission"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs the task's remaining steps in declared order, mutating
// progress in place and returning it. A nil progress starts a fresh
// mission.
//
// Steps already recorded complete are skipped entirely, with no callback and
// no side effect, which is what makes resumption after a crash or retry
// correct. When a step handler fails, the in-flight marker is cleared (so
// the step re-runs in full next attempt), the At callback fires once more
// to report the failure point, and the error is returned wrapped; nothing
// is retried here, retry is the queue's responsibility. Failures
// increments exactly once per Execute call that returns an error,
// regardless of how many steps ran first.
func (e *Engine) Execute(ctx context.Context, task Task, progress *Progress, cb Callbacks) (p *Progress, err error) {
	if task == nil {
		return nil, ErrNilTask
	}
	if progress == nil {
		progress = NewProgress()
	}
	p = progress

	def := task.Definition()
	started := time.Now()
	defer func() {
		if err != nil {
			progress.Failures++
			e.metrics.MissionFailed(def.Name())
		}
	}()

	if cb.Status == nil {
		cb.Status = noopStatus{}
	}

	steps := def.Steps()
	if o, ok := task.(StepOverrider); ok {
		if override := o.OverrideSteps(); len(override) > 0 {
			steps = override
		}
	}
	total := len(steps)

	logger := e.logger.With(zap.String("type", def.Name()))

	for i, step := range steps {
		if progress.IsComplete(step.Name) {
			continue
		}

		progress.Start(step.Name)
		label := step.Label()
		cb.at(ctx, i, total, label, progress)

		handler, ok := def.Handler(step.Name)
		if !ok {
			progress.StopWorking()
			cb.at(ctx, i, total, label, progress)
			return progress, fmt.Errorf("step %q: %w", step.Name, ErrUnknownStep)
		}

		logger.Debug("step starting",
			zap.String("step", step.Name),
			zap.Int("index", i),
			zap.Int("total", total),
		)

		stepStarted := time.Now()
		runErr := e.runStep(ctx, def.Name(), step.Name, handler, task, cb.Status)
		e.metrics.StepCompleted(def.Name(), step.Name, time.Since(stepStarted), runErr)

		if runErr != nil {
			progress.StopWorking()
			cb.at(ctx, i, total, label, progress)
			logger.Error("step failed",
				zap.String("step", step.Name),
				zap.Int("index", i),
				zap.Error(runErr),
			)
			return progress, fmt.Errorf("step %q failed: %w", step.Name, runErr)
		}

		logger.Debug("step finished",
			zap.String("step", step.Name),
			zap.Duration("elapsed", time.Since(stepStarted)),
		)
	}

	progress.Finish()
	cb.at(ctx, total, total, AllDoneLabel, progress)

	e.metrics.MissionFinished(def.Name(), time.Since(started))
	logger.Info("mission finished",
		zap.Int("steps", total),
		zap.Duration("elapsed", time.Since(started)),
	)
	return progress, nil
}

// runStep invokes one handler inside a trace span. The span comes from the
// global tracer provider and is a no-op unless the host application
// installs one.
func (e *Engine) runStep(ctx context.Context, taskType, stepName string, handler HandlerFunc, task Task, status Status) error {
	ctx, span := e.tracer.Start(ctx, "mission.step",
		trace.WithAttributes(
			attribute.String("mission.type", taskType),
			attribute.String("mission.step", stepName),
		),
	)
	defer span.End()

	err := handler(ctx, task, status)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
