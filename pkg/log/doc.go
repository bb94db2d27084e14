// Package log provides structured logging for clustercore using zerolog.
//
// Init configures the process-wide logger once at startup. WithComponent
// scopes it to one control-plane component (allocator, failover); that
// component holds the returned logger for its whole lifetime instead of
// calling Logger directly. WithProcessorID, WithResourceID, WithHost, and
// WithResource then derive short-lived per-line children from that
// component logger, each carrying a clustertypes identifier rather than a
// bare string, so a resource id can never be logged under the host field
// by mistake.
package log
