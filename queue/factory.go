package queue

import (
	"fmt"

	"go.uber.org/zap"
)

// Backend selects the queue implementation.
type Backend string

const (
	// BackendMemory keeps jobs and status in process memory. For
	// development and testing; everything is lost on restart.
	BackendMemory Backend = "memory"

	// BackendRedis stores jobs and status in Redis. For distributed
	// production deployments.
	BackendRedis Backend = "redis"
)

// Options selects and configures a queue backend.
type Options struct {
	Backend Backend      `yaml:"backend" json:"backend"`
	Redis   RedisOptions `yaml:"redis" json:"redis"`
}

// New creates a Queue for the configured backend.
func New(opts Options, logger *zap.Logger) (Queue, error) {
	switch opts.Backend {
	case BackendMemory, "":
		return NewMemoryQueue(logger), nil
	case BackendRedis:
		return NewRedisQueue(opts.Redis, logger)
	default:
		return nil, fmt.Errorf("unsupported queue backend: %s", opts.Backend)
	}
}
