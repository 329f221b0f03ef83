/*
Package observability provides Prometheus instrumentation for the keel controller.

Metrics plug into the controller through domain.LifecycleHooks, so they never affect
control flow. The registry they are registered on can be served by the http module
under /metrics.
*/
package observability
