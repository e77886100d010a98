// Copyright (c) MissionFlow Authors.
// Licensed under the MIT License.

/*
Package mission implements a resumable, checkpointed step-execution engine
for long-running background tasks.

A mission is a task type composed of an ordered list of named steps. The
engine executes the steps of one task instance strictly in order against a
Progress record, skipping steps that a previous attempt already completed.
Progress is the only state that survives across process boundaries: after a
crash or a queue-level retry, re-running the engine with the last
checkpointed Progress resumes the mission at exactly the step that did not
finish.

# Core types

  - Step: one named unit of work with optional display metadata.
  - Definition: a task type's ordered step declarations, handlers, factory
    and queue name; immutable once registered.
  - Registry: explicit task-type registration and lookup.
  - Progress: the durable checkpoint record (working step, completed
    steps, finished flag, failure counter).
  - Engine: runs remaining steps in order, fires observer callbacks,
    and translates step errors into a stopped-but-resumable state.

Steps never branch and never run in parallel; retry scheduling, delivery
guarantees and durable status storage belong to the surrounding job queue
(see the queue package).
*/
package mission
