// Package ports negotiates local TCP ports for the stack's services.
//
// A Prober classifies a single host:port pair as Free or Busy by attempting a
// connection: if something accepts, the port is Busy. The Allocator walks the
// services in declaration order, keeps each default port that is Free, and
// otherwise probes a bounded number of ascending candidates, recording a
// RemapRecord for every service it moves. Ports claimed earlier in the same
// run are never offered to a later service.
package ports
