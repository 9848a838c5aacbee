// Package ffwd implements client-side accumulation of application metrics and
// their emission as JSON records over UDP to a local FFWD forwarding daemon.
//
// Metrics are registered on a MetricRelay and mutated freely between flush
// cycles; each flush serializes every registered metric into one datagram.
// The package performs no internal scheduling and never batches or retries:
// every send is a synchronous fire-and-forget write, consistent with UDP's own
// delivery contract, and transport errors propagate to the caller.
package ffwd
