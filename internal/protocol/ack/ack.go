// Package ack tracks the single frame awaiting its echoed acknowledgment.
package ack

import (
	"errors"
	"sync"
	"time"

	"github.com/danmuck/edgelink/internal/protocol"
)

var ErrAlreadyArmed = errors.New("ack: correlator already armed")

// PendingAck is the frame currently awaiting acknowledgment.
type PendingAck struct {
	Expected string
	Deadline time.Time
}

type pending struct {
	PendingAck
	timer *time.Timer
	done  chan error
}

// Correlator holds at most one pending ack. Each Arm is resolved exactly
// once: by a matching line, by its timer, or by Abort.
type Correlator struct {
	mu   sync.Mutex
	slot *pending
	now  func() time.Time
}

func NewCorrelator() *Correlator {
	return &Correlator{now: time.Now}
}

// Arm starts waiting for expected. The returned channel receives nil on a
// match, *protocol.AckTimeoutError on expiry, or *protocol.AbortedError.
func (c *Correlator) Arm(expected string, timeout time.Duration) (<-chan error, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.slot != nil {
		return nil, ErrAlreadyArmed
	}
	p := &pending{
		PendingAck: PendingAck{Expected: expected, Deadline: c.now().Add(timeout)},
		done:       make(chan error, 1),
	}
	p.timer = time.AfterFunc(timeout, func() { c.expire(p) })
	c.slot = p
	return p.done, nil
}

// OnLine resolves the pending ack when payload matches. Anything else is
// ignored.
func (c *Correlator) OnLine(payload string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := c.slot
	if p == nil || payload != p.Expected {
		return false
	}
	p.timer.Stop()
	c.slot = nil
	p.done <- nil
	return true
}

// Abort fails the pending ack with reason. No-op when idle.
func (c *Correlator) Abort(reason string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := c.slot
	if p == nil {
		return false
	}
	p.timer.Stop()
	c.slot = nil
	p.done <- &protocol.AbortedError{Reason: reason}
	return true
}

// AbortArm fails the pending ack only if it is still the one that returned
// done. It reports false when that arm was already resolved, in which case
// its outcome is waiting on done.
func (c *Correlator) AbortArm(done <-chan error, reason string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := c.slot
	if p == nil || (<-chan error)(p.done) != done {
		return false
	}
	p.timer.Stop()
	c.slot = nil
	p.done <- &protocol.AbortedError{Reason: reason}
	return true
}

func (c *Correlator) Pending() (PendingAck, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.slot == nil {
		return PendingAck{}, false
	}
	return c.slot.PendingAck, true
}

func (c *Correlator) expire(p *pending) {
	c.mu.Lock()
	defer c.mu.Unlock()
	// a stale timer may fire after the slot was resolved and re-armed
	if c.slot != p {
		return
	}
	c.slot = nil
	p.done <- &protocol.AckTimeoutError{Expected: p.Expected, Deadline: p.Deadline}
}
