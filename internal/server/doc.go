// Copyright (c) MissionFlow Authors.
// Licensed under the MIT License.

/*
Package server manages the worker's operational HTTP endpoint: Prometheus
metrics and a liveness probe, with non-blocking startup and graceful
shutdown.

The Manager wraps net/http.Server and owns its lifecycle: Start runs the
server in a background goroutine, Shutdown drains in-flight requests
within the configured timeout, and Errors surfaces asynchronous serve
failures to the caller.
*/
package server
