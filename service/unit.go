/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package service

// Unit is a component of a long-living process with its own lifecycle
// (an HTTP server, a background sweeper).
type Unit interface {
	// Start runs the unit. It may block for the unit's lifetime or return right after initialization.
	// A failure is reported by sending an error to fatalErr; the channel must not be used after Start returns.
	Start(fatalErr chan<- error)

	// Stop halts the unit. It may be called even if Start failed or was never called.
	Stop(gracefully bool) error
}

// MetricsRegisterer is implemented by units that own Prometheus metrics.
type MetricsRegisterer interface {
	MustRegisterMetrics()
	UnregisterMetrics()
}
