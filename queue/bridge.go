package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/missionflow/mission"
)

// Bridge adapts one queue-dispatched execution attempt to the mission
// engine. It owns the Progress for the duration of the attempt and hands
// it to the engine by reference; the queue's status store is the durable
// owner across attempts.
type Bridge struct {
	registry *mission.Registry
	engine   *mission.Engine
	queue    Queue
	reporter Reporter
	logger   *zap.Logger
}

// BridgeOption configures a Bridge.
type BridgeOption func(*Bridge)

// WithReporter overrides the default status-store-backed progress
// reporter.
func WithReporter(r Reporter) BridgeOption {
	return func(b *Bridge) {
		if r != nil {
			b.reporter = r
		}
	}
}

// NewBridge creates a bridge between the given task-type registry, engine
// and queue.
func NewBridge(registry *mission.Registry, engine *mission.Engine, q Queue, logger *zap.Logger, opts ...BridgeOption) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Bridge{
		registry: registry,
		engine:   engine,
		queue:    q,
		reporter: NewStatusReporter(q.Status()),
		logger:   logger.With(zap.String("component", "job_bridge")),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.logger.Info("job bridge ready", zap.Strings("types", registry.Types()))
	return b
}

// Enqueue submits a job carrying args as its sole payload to the task
// type's queue and returns the job ID.
func (b *Bridge) Enqueue(ctx context.Context, typeName string, args map[string]any) (string, error) {
	def, err := b.registry.Lookup(typeName)
	if err != nil {
		return "", err
	}
	return b.enqueue(ctx, def.QueueName(), typeName, args)
}

// EnqueueTo is the scheduler compatibility shim: an alternate entry point
// used when a separate scheduling component re-submits a job with an
// explicit queue name. It forwards to the standard enqueue path without
// modification.
func (b *Bridge) EnqueueTo(ctx context.Context, queueName, typeName string, args map[string]any) (string, error) {
	if _, err := b.registry.Lookup(typeName); err != nil {
		return "", err
	}
	return b.enqueue(ctx, queueName, typeName, args)
}

func (b *Bridge) enqueue(ctx context.Context, queueName, typeName string, args map[string]any) (string, error) {
	jobID, err := b.queue.Enqueue(ctx, &Payload{
		Type:  typeName,
		Queue: queueName,
		Args:  args,
	})
	if err != nil {
		return "", fmt.Errorf("enqueue %q: %w", typeName, err)
	}
	b.logger.Info("job enqueued",
		zap.String("job_id", jobID),
		zap.String("type", typeName),
		zap.String("queue", queueName),
	)
	return jobID, nil
}

// Perform runs one execution attempt of the given job: it loads the last
// checkpointed Progress from the status store, reconstructs the task
// instance from the job's arguments, wires the progress/status callbacks,
// and executes the remaining steps. On success the job is marked
// completed; on error the post-attempt Progress (including the failure
// count) is checkpointed and the error is returned; whether to retry is
// the caller's decision.
func (b *Bridge) Perform(ctx context.Context, job *Job) error {
	logger := b.logger.With(
		zap.String("job_id", job.ID),
		zap.String("type", job.Type),
		zap.Int("attempts", job.Attempts),
	)

	def, err := b.registry.Lookup(job.Type)
	if err != nil {
		return err
	}

	status := b.queue.Status()
	fields, err := status.Read(ctx, job.ID)
	if err != nil {
		logger.Warn("status read failed, starting with fresh progress", zap.Error(err))
		fields = nil
	}
	progress := decodeProgress(fields[StatusKeyProgress])

	task, err := def.NewTask(job.Args)
	if err != nil {
		return err
	}

	cb := mission.Callbacks{
		At: func(ctx context.Context, index, total int, label string, p *mission.Progress) {
			b.checkpoint(ctx, logger, job.ID, p)
			// Reporters may retain the record; hand them a copy so they
			// never alias the engine's live state.
			if rerr := b.reporter.Report(ctx, job.ID, index, total, label, p.Clone()); rerr != nil {
				logger.Warn("progress report failed", zap.Error(rerr))
			}
		},
		Status: &jobStatus{store: status, jobID: job.ID},
	}

	if merr := status.Merge(ctx, job.ID, map[string]any{StatusKeyState: StateWorking}); merr != nil {
		logger.Warn("status merge failed", zap.Error(merr))
	}

	progress, err = b.engine.Execute(ctx, task, progress, cb)
	if err != nil {
		// The failure counter increments on the engine's outward path,
		// after the last At checkpoint fired; persist the final state so
		// the next attempt resumes with the right count.
		b.checkpoint(ctx, logger, job.ID, progress)
		if merr := status.Merge(ctx, job.ID, map[string]any{StatusKeyError: err.Error()}); merr != nil {
			logger.Warn("status merge failed", zap.Error(merr))
		}
		logger.Error("mission attempt failed", zap.Error(err))
		return err
	}

	if merr := status.Merge(ctx, job.ID, map[string]any{StatusKeyState: StateCompleted}); merr != nil {
		logger.Warn("status merge failed", zap.Error(merr))
	}
	logger.Info("job completed")
	return nil
}

// OnFailure is invoked by the queue's failure path with the error of a
// job that exhausted its retries. It is a pass-through today; extension
// point for associating the Progress snapshot with the queue's failure
// record.
func (b *Bridge) OnFailure(ctx context.Context, job *Job, cause error) error {
	return cause
}

// RewriteRetryArgs strips any progress data that may have been injected
// into a job's arguments before the queue recomputes its deduplication
// signature for a retry. Including progress data would change the
// arguments and make the retried job look like a different job; resumption
// therefore rides the status store, never argument replay.
func (b *Bridge) RewriteRetryArgs(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}
	if _, ok := args[StatusKeyProgress]; !ok {
		return args
	}
	out := make(map[string]any, len(args)-1)
	for k, v := range args {
		if k != StatusKeyProgress {
			out[k] = v
		}
	}
	return out
}

// checkpoint persists the Progress into the job's status blob. Checkpoint
// failures are logged, not fatal: the attempt keeps running and a later
// checkpoint supersedes the missed one.
func (b *Bridge) checkpoint(ctx context.Context, logger *zap.Logger, jobID string, p *mission.Progress) {
	if err := b.queue.Status().Merge(ctx, jobID, map[string]any{
		StatusKeyProgress: progressValue(p),
	}); err != nil {
		logger.Warn("progress checkpoint failed", zap.Error(err))
	}
}

// jobStatus is the status capability handed to step handlers: explicit
// get/set over one job's status blob.
type jobStatus struct {
	store StatusStore
	jobID string
}

func (s *jobStatus) Get(ctx context.Context, key string) (any, error) {
	fields, err := s.store.Read(ctx, s.jobID)
	if err != nil {
		return nil, err
	}
	return fields[key], nil
}

func (s *jobStatus) Set(ctx context.Context, key string, value any) error {
	return s.store.Merge(ctx, s.jobID, map[string]any{key: value})
}

var _ mission.Status = (*jobStatus)(nil)

// progressValue serializes a Progress into plain JSON types so every
// status backend stores the same shape.
func progressValue(p *mission.Progress) map[string]any {
	data, err := json.Marshal(p)
	if err != nil {
		return map[string]any{}
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]any{}
	}
	return out
}

// decodeProgress rebuilds a Progress from a status blob value. Absent or
// malformed values yield a fresh Progress: a mission that lost its
// checkpoint starts over rather than failing.
func decodeProgress(v any) *mission.Progress {
	if v == nil {
		return mission.NewProgress()
	}
	data, err := json.Marshal(v)
	if err != nil {
		return mission.NewProgress()
	}
	var p mission.Progress
	if err := json.Unmarshal(data, &p); err != nil {
		return mission.NewProgress()
	}
	if p.Completed == nil {
		p.Completed = []string{}
	}
	return &p
}
