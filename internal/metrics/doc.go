// Copyright (c) MissionFlow Authors.
// Licensed under the MIT License.

/*
Package metrics provides internal Prometheus metrics collection for the
mission engine and the queue worker pool.

The Collector implements both mission.Metrics and queue.Metrics so one
instance observes the whole pipeline: step counts and durations by task
type and outcome, mission attempt outcomes, and job attempt, retry and
dead-letter counts by queue.

This package is internal and should not be imported by external projects.
*/
package metrics
