// Copyright (c) MissionFlow Authors.
// Licensed under the MIT License.

/*
Package queue bridges the mission engine to a generic background job queue.

The queue contract is small: enqueue a payload and get back a job ID, read
and merge a per-job status blob, and report step-level progress. Two
backends implement it, an in-process memory queue for development and
tests and a Redis queue for distributed deployments, selected through a
factory the same way either backend would be configured in production.

The Bridge adapts one queue-dispatched execution attempt to the engine: it
reconstructs the task instance from the job's arguments, loads the last
checkpointed Progress from the status store (falling back to a fresh one
when absent or malformed), wires the progress and status callbacks, and
maps engine success and failure onto the job's persisted status. Step
errors are never swallowed: Perform returns them to the worker, which owns
the retry decision.

Progress travels only through the status store. Before a retry the worker
rewrites the job's arguments through Bridge.RewriteRetryArgs, which strips
any injected progress data so the retried job keeps the same deduplication
identity as the original.
*/
package queue
