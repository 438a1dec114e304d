// Package link adapts byte links to the line transport session.
//
// A link delivers small atomic writes bounded by a byte budget and reports
// inbound byte chunks and lifecycle events to a Sink. It never retries and
// never establishes connections on behalf of the session.
package link

import "errors"

var (
	ErrWriteTooLarge = errors.New("link: write exceeds budget")
	ErrClosed        = errors.New("link: closed")
)

// Writer is the outbound side of a link. Each Write is one atomic unit.
type Writer interface {
	Write(p []byte) error
}

// Sink receives link lifecycle and inbound data events.
type Sink interface {
	Connected(w Writer)
	OnData(chunk []byte)
	Disconnected()
}
