package link

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/danmuck/edgelink/internal/peer"
)

// Loopback is an in-memory link whose far end is an echo peer. Writes may be
// dropped to simulate loss; echoes are delivered in order on a separate
// goroutine.
type Loopback struct {
	echo    peer.Echo
	budget  int
	drop    func(p []byte) bool
	latency time.Duration

	mu      sync.Mutex
	sink    Sink
	inbox   chan []byte
	done    chan struct{}
	peerBuf []byte
	writes  [][]byte
}

type LoopbackOption func(*Loopback)

// WithDrop discards writes for which drop returns true.
func WithDrop(drop func(p []byte) bool) LoopbackOption {
	return func(l *Loopback) { l.drop = drop }
}

func WithLatency(d time.Duration) LoopbackOption {
	return func(l *Loopback) { l.latency = d }
}

func NewLoopback(echo peer.Echo, budget int, opts ...LoopbackOption) *Loopback {
	l := &Loopback{echo: echo, budget: budget}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Attach connects the loopback to sink. A previous attachment is detached.
func (l *Loopback) Attach(sink Sink) {
	l.Detach()
	l.mu.Lock()
	l.sink = sink
	l.inbox = make(chan []byte, 64)
	l.done = make(chan struct{})
	l.peerBuf = nil
	go l.deliver(sink, l.inbox, l.done)
	l.mu.Unlock()
	sink.Connected(l)
}

// Detach drops the link and reports the disconnect to the attached sink.
func (l *Loopback) Detach() {
	l.mu.Lock()
	sink := l.sink
	if sink == nil {
		l.mu.Unlock()
		return
	}
	close(l.inbox)
	done := l.done
	l.sink = nil
	l.inbox = nil
	l.mu.Unlock()
	<-done
	sink.Disconnected()
}

func (l *Loopback) Write(p []byte) error {
	if l.budget > 0 && len(p) > l.budget {
		return fmt.Errorf("%w: len=%d budget=%d", ErrWriteTooLarge, len(p), l.budget)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sink == nil {
		return ErrClosed
	}
	l.writes = append(l.writes, append([]byte(nil), p...))
	if l.drop != nil && l.drop(p) {
		return nil
	}
	l.peerBuf = append(l.peerBuf, p...)
	for {
		idx := bytes.IndexByte(l.peerBuf, '\n')
		if idx < 0 {
			return nil
		}
		line := string(l.peerBuf[:idx])
		l.peerBuf = l.peerBuf[idx+1:]
		if reply, ok := l.echo.Reply(line); ok {
			l.inbox <- []byte(reply + "\n")
		}
	}
}

// Writes returns a copy of every write accepted so far, dropped ones included.
func (l *Loopback) Writes() [][]byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([][]byte, len(l.writes))
	copy(out, l.writes)
	return out
}

func (l *Loopback) deliver(sink Sink, inbox <-chan []byte, done chan<- struct{}) {
	defer close(done)
	for chunk := range inbox {
		if l.latency > 0 {
			time.Sleep(l.latency)
		}
		sink.OnData(chunk)
	}
}
