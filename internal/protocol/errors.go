package protocol

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotConnected   = errors.New("protocol: not connected")
	ErrSendBusy       = errors.New("protocol: send already in flight")
	ErrInvalidMessage = errors.New("protocol: invalid message")
	ErrOversizeFrame  = errors.New("protocol: frame exceeds link budget")
	ErrAckTimeout     = errors.New("protocol: ack timeout")
	ErrAborted        = errors.New("protocol: aborted")
	ErrLinkWrite      = errors.New("protocol: link write failed")
)

// AckTimeoutError reports the payload that was never echoed back.
type AckTimeoutError struct {
	Expected string
	Deadline time.Time
}

func (e *AckTimeoutError) Error() string {
	return fmt.Sprintf("%v: expected=%q deadline=%s", ErrAckTimeout, e.Expected, e.Deadline.Format(time.RFC3339Nano))
}

func (e *AckTimeoutError) Unwrap() error { return ErrAckTimeout }

type AbortedError struct {
	Reason string
}

func (e *AbortedError) Error() string {
	return fmt.Sprintf("%v: %s", ErrAborted, e.Reason)
}

func (e *AbortedError) Unwrap() error { return ErrAborted }

// LinkWriteError wraps the error returned by the underlying link.
type LinkWriteError struct {
	Err error
}

func (e *LinkWriteError) Error() string {
	return fmt.Sprintf("%v: %v", ErrLinkWrite, e.Err)
}

func (e *LinkWriteError) Unwrap() []error { return []error{ErrLinkWrite, e.Err} }

// SendError is the failure of a segmented send. FramesCompleted counts the
// frames acknowledged before the failure.
type SendError struct {
	Err             error
	FramesCompleted int
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send failed after %d frames: %v", e.FramesCompleted, e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }
