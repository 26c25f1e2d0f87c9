// Package tracing wraps OpenTelemetry so the kernel can emit spans around
// traps and context switches. Tracing is opt-in; without Init every span is
// a no-op.
package tracing
