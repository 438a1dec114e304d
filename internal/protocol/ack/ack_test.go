package ack

import (
	"errors"
	"testing"
	"time"

	"github.com/danmuck/edgelink/internal/protocol"
	"github.com/danmuck/edgelink/internal/testutil/testlog"
)

func waitResult(t *testing.T, ch <-chan error) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(2 * time.Second):
		t.Fatalf("correlator never signaled")
		return nil
	}
}

func TestCorrelatorResolvesOnMatch(t *testing.T) {
	testlog.Start(t)
	c := NewCorrelator()
	ch, err := c.Arm("0|abc", time.Second)
	if err != nil {
		t.Fatalf("arm: %v", err)
	}
	if p, ok := c.Pending(); !ok || p.Expected != "0|abc" {
		t.Fatalf("unexpected pending: %+v ok=%v", p, ok)
	}
	if c.OnLine("1|abc") {
		t.Fatalf("non-matching line must be ignored")
	}
	if !c.OnLine("0|abc") {
		t.Fatalf("matching line must resolve")
	}
	if err := waitResult(t, ch); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if _, ok := c.Pending(); ok {
		t.Fatalf("correlator should be idle after resolve")
	}
}

func TestCorrelatorTimesOut(t *testing.T) {
	testlog.Start(t)
	c := NewCorrelator()
	ch, err := c.Arm("5|zz", 20*time.Millisecond)
	if err != nil {
		t.Fatalf("arm: %v", err)
	}
	err = waitResult(t, ch)
	if !errors.Is(err, protocol.ErrAckTimeout) {
		t.Fatalf("expected ErrAckTimeout, got %v", err)
	}
	var te *protocol.AckTimeoutError
	if !errors.As(err, &te) || te.Expected != "5|zz" {
		t.Fatalf("timeout error should carry expected payload: %v", err)
	}
	if c.OnLine("5|zz") {
		t.Fatalf("late echo must not resolve anything")
	}
	if _, err := c.Arm("6|zz", time.Second); err != nil {
		t.Fatalf("re-arm after timeout: %v", err)
	}
}

func TestCorrelatorAbort(t *testing.T) {
	testlog.Start(t)
	c := NewCorrelator()
	if c.Abort("idle") {
		t.Fatalf("abort while idle must be a no-op")
	}
	ch, err := c.Arm("1|q", time.Second)
	if err != nil {
		t.Fatalf("arm: %v", err)
	}
	if !c.Abort("disconnected") {
		t.Fatalf("expected abort to signal")
	}
	err = waitResult(t, ch)
	var ae *protocol.AbortedError
	if !errors.As(err, &ae) || ae.Reason != "disconnected" || !errors.Is(err, protocol.ErrAborted) {
		t.Fatalf("expected aborted error, got %v", err)
	}
}

func TestCorrelatorRejectsDoubleArm(t *testing.T) {
	testlog.Start(t)
	c := NewCorrelator()
	if _, err := c.Arm("a", time.Second); err != nil {
		t.Fatalf("arm: %v", err)
	}
	if _, err := c.Arm("b", time.Second); !errors.Is(err, ErrAlreadyArmed) {
		t.Fatalf("expected ErrAlreadyArmed, got %v", err)
	}
	c.Abort("cleanup")
}

func TestCorrelatorStaleTimerDoesNotFireIntoNextArm(t *testing.T) {
	testlog.Start(t)
	c := NewCorrelator()
	first, err := c.Arm("0|a", 15*time.Millisecond)
	if err != nil {
		t.Fatalf("arm: %v", err)
	}
	c.OnLine("0|a")
	if err := waitResult(t, first); err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := c.Arm("1|b", time.Second)
	if err != nil {
		t.Fatalf("arm second: %v", err)
	}
	time.Sleep(40 * time.Millisecond)
	select {
	case err := <-second:
		t.Fatalf("second arm resolved unexpectedly: %v", err)
	default:
	}
	c.OnLine("1|b")
	if err := waitResult(t, second); err != nil {
		t.Fatalf("second: %v", err)
	}
}

func TestCorrelatorAbortArmIgnoresNewerArm(t *testing.T) {
	testlog.Start(t)
	c := NewCorrelator()
	old, err := c.Arm("0|old", time.Second)
	if err != nil {
		t.Fatalf("arm old: %v", err)
	}
	if !c.Abort("disconnected") {
		t.Fatalf("abort should resolve the old arm")
	}
	fresh, err := c.Arm("0|new", time.Second)
	if err != nil {
		t.Fatalf("arm fresh: %v", err)
	}

	if c.AbortArm(old, "link write failed") {
		t.Fatalf("stale arm must not abort the fresh one")
	}
	var aborted *protocol.AbortedError
	if err := waitResult(t, old); !errors.As(err, &aborted) || aborted.Reason != "disconnected" {
		t.Fatalf("old arm should keep its disconnect, got %v", err)
	}
	if p, ok := c.Pending(); !ok || p.Expected != "0|new" {
		t.Fatalf("fresh arm lost: %+v ok=%v", p, ok)
	}

	if !c.AbortArm(fresh, "cancelled") {
		t.Fatalf("owner should abort its own arm")
	}
	if err := waitResult(t, fresh); !errors.Is(err, protocol.ErrAborted) {
		t.Fatalf("expected ErrAborted, got %v", err)
	}
}
