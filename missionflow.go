// Package missionflow provides a top-level convenience entry point for
// defining and running checkpointed missions with minimal boilerplate.
//
// Usage:
//
//	import "github.com/BaSui01/missionflow"
//
//	def := missionflow.NewDefinition("import_report", newReportTask)
//	def.MustDeclareStep("validate", validate).
//		MustDeclareStep("transform", transform).
//		MustDeclareStep("publish", publish)
//
// This is a thin wrapper over the mission and queue packages; both produce
// identical results. Use this package when you prefer the shorter import
// path.
package missionflow

import (
	"github.com/BaSui01/missionflow/mission"
	"github.com/BaSui01/missionflow/queue"
)

// Core mission types.
type (
	// Step is one named unit of work inside a mission.
	Step = mission.Step

	// Progress is the durable checkpoint of a mission's execution.
	Progress = mission.Progress

	// Task is one runnable instance of a registered mission type.
	Task = mission.Task

	// Status is the per-job key-value capability handed to step handlers.
	Status = mission.Status

	// Definition describes a mission type: its steps and task factory.
	Definition = mission.Definition

	// Registry maps mission type names to their definitions.
	Registry = mission.Registry

	// Engine executes missions step by step against a Progress checkpoint.
	Engine = mission.Engine

	// Callbacks carries the per-run checkpoint and status hooks.
	Callbacks = mission.Callbacks
)

// Queue-side types.
type (
	// Bridge adapts registered missions to the job queue contract.
	Bridge = queue.Bridge

	// Job is one queue-dispatched execution attempt.
	Job = queue.Job

	// Payload is what callers hand to Enqueue.
	Payload = queue.Payload

	// WorkerPool consumes jobs and performs them through the bridge.
	WorkerPool = queue.WorkerPool

	// WorkerPoolConfig configures a WorkerPool.
	WorkerPoolConfig = queue.WorkerPoolConfig

	// RetryConfig governs re-dispatch of failed jobs.
	RetryConfig = queue.RetryConfig
)

// DefaultQueueName is where missions run unless their definition says
// otherwise.
const DefaultQueueName = mission.DefaultQueueName

// Re-export constructors so simple programs never need to import the
// subpackages.

// NewDefinition creates a mission type definition.
var NewDefinition = mission.NewDefinition

// NewRegistry creates an empty mission type registry.
var NewRegistry = mission.NewRegistry

// NewEngine creates a mission engine.
var NewEngine = mission.NewEngine

// NewBridge wires a registry and engine to a job queue.
var NewBridge = queue.NewBridge

// NewWorkerPool creates a worker pool over a queue and handler.
var NewWorkerPool = queue.NewWorkerPool

// NewMemoryQueue creates the in-process queue backend.
var NewMemoryQueue = queue.NewMemoryQueue

// NewRedisQueue creates the Redis queue backend.
var NewRedisQueue = queue.NewRedisQueue
