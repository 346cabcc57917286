// Package logging provides a minimal logging interface and adapters for the
// KernelMesh runtime.
//
// The Logger interface defines the standard logging methods (Debug, Info,
// Warn, Error) that the kernel, registry and persistors use. This package
// includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - NoOpLogger for silent operation (testing, minimal setups)
//   - KernelLogger with contextual helpers (component, tenant, session)
//
// Usage:
//
//	logger := logging.NewKernelLogger(logging.LogLevelInfo, "json")
//	k := kernel.New(func(o *kernel.Options) { o.Logger = logger })
//
// The design intentionally keeps the interface minimal so any structured
// logger can be plugged in.
package logging
