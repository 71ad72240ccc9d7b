// Package link runs the per-connection PDLP transaction engine: it
// reassembles inbound segments, dispatches complete messages to the service
// router, and indicates responses one confirmed segment at a time.
//
// An Engine handles exactly one transaction at a time and moves through
// IDLE, WRITING and INDICATING. Every exit path, whether a final delivery
// confirmation, a confirmed NACK, an indication timeout or a disconnect,
// converges on Reset. Engines never block or start goroutines; they react
// to transport events only. Application callbacks run while the engine's
// lock is held, so they must not call back into the same engine
// synchronously.
package link
