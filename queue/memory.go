package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MemoryQueue is an in-process Queue for development and testing. Jobs and
// status blobs live in memory and are lost on restart.
type MemoryQueue struct {
	mu     sync.Mutex
	queues map[string][]*Job
	notify chan struct{}
	dead   []*Job
	closed bool

	status *memoryStatusStore
	logger *zap.Logger
}

// NewMemoryQueue creates an empty in-process queue.
func NewMemoryQueue(logger *zap.Logger) *MemoryQueue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryQueue{
		queues: make(map[string][]*Job),
		notify: make(chan struct{}),
		status: newMemoryStatusStore(),
		logger: logger.With(zap.String("component", "memory_queue")),
	}
}

// Enqueue assigns a job ID, records the initial status blob and appends
// the job to its queue.
func (q *MemoryQueue) Enqueue(ctx context.Context, p *Payload) (string, error) {
	job := &Job{
		ID:         uuid.New().String(),
		Type:       p.Type,
		Queue:      p.Queue,
		Args:       p.Args,
		EnqueuedAt: time.Now(),
	}
	if err := q.status.Merge(ctx, job.ID, map[string]any{
		StatusKeyState: StateQueued,
		"type":         job.Type,
	}); err != nil {
		return "", err
	}
	if err := q.push(job); err != nil {
		return "", err
	}
	return job.ID, nil
}

// Dequeue blocks until a job is available on one of the named queues or
// ctx is done. An empty queue list consumes from every queue.
func (q *MemoryQueue) Dequeue(ctx context.Context, queues []string) (*Job, error) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return nil, ErrClosed
		}
		if job := q.popLocked(queues); job != nil {
			q.mu.Unlock()
			return job, nil
		}
		ready := q.notify
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ready:
		}
	}
}

// Requeue puts the job back after the given delay.
func (q *MemoryQueue) Requeue(ctx context.Context, job *Job, delay time.Duration) error {
	if delay <= 0 {
		return q.push(job)
	}
	time.AfterFunc(delay, func() {
		if err := q.push(job); err != nil {
			q.logger.Warn("delayed requeue dropped", zap.String("job_id", job.ID), zap.Error(err))
		}
	})
	return nil
}

// DeadLetter retains the job and records the cause in its status blob.
func (q *MemoryQueue) DeadLetter(ctx context.Context, job *Job, cause error) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.dead = append(q.dead, job)
	q.mu.Unlock()

	return q.status.Merge(ctx, job.ID, map[string]any{
		StatusKeyState: StateFailed,
		StatusKeyError: cause.Error(),
	})
}

// DeadLetters returns the retained dead-lettered jobs.
func (q *MemoryQueue) DeadLetters(ctx context.Context) ([]*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*Job, len(q.dead))
	copy(out, q.dead)
	return out, nil
}

// Status returns the in-memory status store.
func (q *MemoryQueue) Status() StatusStore { return q.status }

// Close shuts the queue down; pending Dequeue calls return ErrClosed.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	close(q.notify)
	return nil
}

func (q *MemoryQueue) push(job *Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	q.queues[job.Queue] = append(q.queues[job.Queue], job)
	close(q.notify)
	q.notify = make(chan struct{})
	return nil
}

// popLocked removes and returns the oldest job on the first non-empty
// queue, honoring the caller's queue order. Caller holds q.mu.
func (q *MemoryQueue) popLocked(queues []string) *Job {
	if len(queues) == 0 {
		for name := range q.queues {
			queues = append(queues, name)
		}
	}
	for _, name := range queues {
		list := q.queues[name]
		if len(list) == 0 {
			continue
		}
		job := list[0]
		q.queues[name] = list[1:]
		return job
	}
	return nil
}

var _ Queue = (*MemoryQueue)(nil)

// memoryStatusStore is the in-process StatusStore backing MemoryQueue.
type memoryStatusStore struct {
	mu    sync.RWMutex
	blobs map[string]map[string]any
}

func newMemoryStatusStore() *memoryStatusStore {
	return &memoryStatusStore{blobs: make(map[string]map[string]any)}
}

func (s *memoryStatusStore) Read(ctx context.Context, jobID string) (map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.blobs[jobID]))
	for k, v := range s.blobs[jobID] {
		out[k] = v
	}
	return out, nil
}

func (s *memoryStatusStore) Merge(ctx context.Context, jobID string, fields map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	blob := s.blobs[jobID]
	if blob == nil {
		blob = make(map[string]any, len(fields))
		s.blobs[jobID] = blob
	}
	for k, v := range fields {
		blob[k] = v
	}
	return nil
}

var _ StatusStore = (*memoryStatusStore)(nil)
