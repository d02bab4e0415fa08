// Package klog is the kernel's logging facade. The original kernel prints
// through `info!`/`debug!` macros that gate on a compile-time level and
// write to the UART console; we get the same shape from gVisor's own
// sentry-kernel logger instead of hand-rolling one.
package klog

import (
	"io"

	gvlog "gvisor.dev/gvisor/pkg/log"
)

// Init wires the kernel logger to w (the console device) at the given
// level. Call once during kernel_init, before any other subsystem logs.
func Init(w io.Writer, level gvlog.Level) {
	gvlog.SetTarget(&gvlog.Writer{Next: w})
	gvlog.SetLevel(level)
}

// Debugf logs a message only visible when the kernel was booted with debug
// logging enabled. Used for scheduling decisions, trap dispatch, and other
// high-frequency events.
func Debugf(format string, args ...interface{}) {
	gvlog.Debugf(format, args...)
}

// Infof logs a message always visible on the console, used for boot
// milestones and state transitions worth a human's attention.
func Infof(format string, args ...interface{}) {
	gvlog.Infof(format, args...)
}

// Warningf logs a recoverable but suspicious condition (e.g. a userspace
// fault that was rejected rather than serviced).
func Warningf(format string, args ...interface{}) {
	gvlog.Warningf(format, args...)
}
