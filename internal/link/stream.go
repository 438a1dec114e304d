package link

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Stream adapts an io.ReadWriteCloser (TCP conn, serial port) into a
// budget-enforcing Writer and an inbound pump.
type Stream struct {
	name         string
	rwc          io.ReadWriteCloser
	budget       int
	writeTimeout time.Duration

	mu     sync.Mutex
	closed bool
}

type StreamOption func(*Stream)

func WithWriteTimeout(d time.Duration) StreamOption {
	return func(s *Stream) { s.writeTimeout = d }
}

func WithName(name string) StreamOption {
	return func(s *Stream) { s.name = name }
}

func NewStream(rwc io.ReadWriteCloser, budget int, opts ...StreamOption) *Stream {
	s := &Stream{name: "stream", rwc: rwc, budget: budget}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Stream) Write(p []byte) error {
	if s.budget > 0 && len(p) > s.budget {
		return fmt.Errorf("%w: len=%d budget=%d", ErrWriteTooLarge, len(p), s.budget)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if conn, ok := s.rwc.(net.Conn); ok && s.writeTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
		defer conn.SetWriteDeadline(time.Time{})
	}
	n, err := s.rwc.Write(p)
	if err != nil {
		return err
	}
	if n != len(p) {
		return io.ErrShortWrite
	}
	return nil
}

// Run announces the link to sink, pumps inbound chunks until the reader
// fails or ctx ends, then reports the disconnect.
func (s *Stream) Run(ctx context.Context, sink Sink) error {
	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	defer stop()

	sink.Connected(s)
	log.Info().Str("link", s.name).Int("budget", s.budget).Msg("link connected")
	defer func() {
		sink.Disconnected()
		log.Info().Str("link", s.name).Msg("link disconnected")
	}()

	buf := make([]byte, 512)
	for {
		n, err := s.rwc.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			sink.OnData(chunk)
		}
		if err != nil {
			_ = s.Close()
			if ctx.Err() != nil || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("link %s read: %w", s.name, err)
		}
	}
}

func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.rwc.Close()
}
