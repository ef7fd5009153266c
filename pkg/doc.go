// Package pkg provides shared utilities for the usbhost USB host stack.
//
// This package contains common functionality used by the host core, the
// hardware abstraction layers and the class drivers, including:
//
//   - Structured logging via Go's standard [log/slog] package
//   - Sentinel error values for transfer, pool and configuration failures
//   - Single-byte result codes for compact trace output
//   - Component identifiers for log filtering
//
// # Logging
//
// Trace output is disabled by default (warn level). Raise the level to see
// enumeration and transfer traces:
//
//	pkg.SetLogLevel(slog.LevelDebug)
//	pkg.LogDebug(pkg.ComponentHost, "state", "state", "configuring")
//
// # Errors
//
// Failures are reported as sentinel values, possibly wrapped:
//
//	if errors.Is(err, pkg.ErrDeviceInitIncomplete) {
//	    // retry on the next task tick
//	}
//
// [Code] maps an error to the classic single-byte result code:
//
//	pkg.LogDebug(pkg.ComponentHost, "configure failed", "rcode", pkg.Code(err))
package pkg
