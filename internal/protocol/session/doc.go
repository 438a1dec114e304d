// Package session owns single-flight message delivery over a line link.
//
// Ownership boundary:
// - link handle, inbound line buffer and the ack correlator slot
// - short-path vs segmented-path selection
// - stop-and-wait frame loop and session state
//
// A Session is safe for concurrent use, but only one Send may be in flight;
// a second caller gets protocol.ErrSendBusy rather than a queue slot.
package session
