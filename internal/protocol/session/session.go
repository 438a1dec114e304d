package session

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/danmuck/edgelink/internal/link"
	"github.com/danmuck/edgelink/internal/protocol"
	"github.com/danmuck/edgelink/internal/protocol/ack"
	"github.com/danmuck/edgelink/internal/protocol/frame"
	"github.com/danmuck/edgelink/internal/protocol/segment"
	"github.com/rs/zerolog/log"
)

const reasonDisconnected = "disconnected"

// Session sends messages over one link at a time, stop-and-wait.
type Session struct {
	cfg  Config
	corr *ack.Correlator
	obs  Observer
	now  func() time.Time

	mu      sync.Mutex
	link    link.Writer
	state   State
	epoch   uint64
	lineBuf []byte
}

var _ link.Sink = (*Session)(nil)

type Option func(*Session)

func WithObserver(obs Observer) Option {
	return func(s *Session) {
		if obs != nil {
			s.obs = obs
		}
	}
}

func New(cfg Config, opts ...Option) *Session {
	s := &Session{
		cfg:  cfg.WithDefaults(),
		corr: ack.NewCorrelator(),
		obs:  NopObserver{},
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) Config() Config {
	return s.cfg
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.link != nil
}

// Pending reports the frame currently awaiting its echo, if any.
func (s *Session) Pending() (ack.PendingAck, bool) {
	return s.corr.Pending()
}

// Connected installs w as the active link and resets the session to Idle.
func (s *Session) Connected(w link.Writer) {
	prev := s.reset(w)
	s.corr.Abort("reconnected")
	if prev != Idle {
		s.obs.StateChanged(prev, Idle)
	}
	log.Debug().Msg("session.Connected")
}

// Disconnected aborts any in-flight wait and forces the session to Idle.
func (s *Session) Disconnected() {
	prev := s.reset(nil)
	if s.corr.Abort(reasonDisconnected) {
		log.Warn().Msg("session.Disconnected aborted in-flight frame")
	}
	if prev != Idle {
		s.obs.StateChanged(prev, Idle)
	}
	log.Debug().Msg("session.Disconnected")
}

func (s *Session) reset(w link.Writer) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.state
	s.epoch++
	s.link = w
	s.lineBuf = nil
	s.state = Idle
	return prev
}

// OnData buffers inbound bytes and dispatches every complete line. Partial
// lines are kept for the next chunk.
func (s *Session) OnData(chunk []byte) {
	s.mu.Lock()
	s.lineBuf = append(s.lineBuf, chunk...)
	var lines []string
	for {
		idx := bytes.IndexByte(s.lineBuf, frame.Terminator)
		if idx < 0 {
			break
		}
		lines = append(lines, string(s.lineBuf[:idx]))
		s.lineBuf = s.lineBuf[idx+1:]
	}
	if len(s.lineBuf) > s.cfg.MaxLineBytes {
		log.Warn().Int("bytes", len(s.lineBuf)).Msg("session.OnData dropping unterminated line")
		s.lineBuf = nil
	}
	s.mu.Unlock()

	for _, line := range lines {
		s.obs.LineReceived(line)
		payload, ok := frame.DecodeAck(line, s.cfg.Limits)
		if !ok {
			log.Debug().Str("line", line).Msg("session.OnData non-ack line")
			continue
		}
		if !s.corr.OnLine(payload) {
			log.Debug().Str("payload", payload).Msg("session.OnData unmatched ack")
		}
	}
}

// Send delivers message. Messages shorter than the frame budget go out as one
// raw line with no ack; longer ones are segmented and each frame must be
// echoed back before the next is written. Failures after the send started
// are returned as *protocol.SendError.
func (s *Session) Send(ctx context.Context, message string) (Outcome, error) {
	limits := s.cfg.Limits
	short := len(message) < limits.FrameBudget

	s.mu.Lock()
	if s.link == nil {
		s.mu.Unlock()
		return Outcome{}, protocol.ErrNotConnected
	}
	if s.state != Idle {
		s.mu.Unlock()
		return Outcome{}, protocol.ErrSendBusy
	}
	if !short && strings.IndexFunc(message, unicode.IsSpace) >= 0 {
		s.mu.Unlock()
		return Outcome{}, fmt.Errorf("%w: whitespace in a message that needs segmentation", protocol.ErrInvalidMessage)
	}
	w := s.link
	epoch := s.epoch
	s.state = Sending
	s.mu.Unlock()
	s.obs.StateChanged(Idle, Sending)

	start := s.now()
	var (
		out Outcome
		err error
	)
	if short {
		out, err = s.sendShort(w, message)
	} else {
		out, err = s.sendSegmented(ctx, w, epoch, message)
	}
	out.Bytes = len(message)
	out.Elapsed = s.now().Sub(start)
	s.finish(epoch, out, err)
	return out, err
}

func (s *Session) sendShort(w link.Writer, message string) (Outcome, error) {
	out := Outcome{Path: PathShort}
	wire, err := frame.EncodeLine(message, s.cfg.Limits)
	if err != nil {
		return out, &protocol.SendError{Err: err}
	}
	if err := w.Write(wire); err != nil {
		return out, &protocol.SendError{Err: &protocol.LinkWriteError{Err: err}}
	}
	s.obs.LineSent(message)
	return out, nil
}

func (s *Session) sendSegmented(ctx context.Context, w link.Writer, epoch uint64, message string) (Outcome, error) {
	out := Outcome{Path: PathSegmented}
	seg := segment.New(message, s.cfg.Limits)
	for {
		f, ok := seg.Next()
		if !ok {
			return out, nil
		}
		if err := s.sendFrame(ctx, w, epoch, f); err != nil {
			log.Warn().
				Err(err).
				Int("seq", f.Seq).
				Int("frames_completed", out.Frames).
				Msg("session.Send frame failed")
			return out, &protocol.SendError{Err: err, FramesCompleted: out.Frames}
		}
		out.Frames++
	}
}

// sendFrame arms the correlator, writes one frame and waits for its echo.
// The correlator is armed before the write so an echo can never outrun it.
func (s *Session) sendFrame(ctx context.Context, w link.Writer, epoch uint64, f frame.Frame) error {
	if err := ctx.Err(); err != nil {
		return &protocol.AbortedError{Reason: err.Error()}
	}
	wire, err := frame.Encode(f, s.cfg.Limits)
	if err != nil {
		return err
	}
	line := f.Line()

	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return &protocol.AbortedError{Reason: reasonDisconnected}
	}
	done, err := s.corr.Arm(line, s.cfg.AckTimeout)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	if err := w.Write(wire); err != nil {
		if s.corr.AbortArm(done, "link write failed") {
			<-done
			return &protocol.LinkWriteError{Err: err}
		}
		return <-done
	}
	s.obs.LineSent(line)
	log.Debug().Int("seq", f.Seq).Str("line", line).Msg("session.Send frame written")

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		s.corr.AbortArm(done, ctx.Err().Error())
		return <-done
	}
}

func (s *Session) finish(epoch uint64, out Outcome, err error) {
	defer s.obs.SendFinished(out, err)

	s.mu.Lock()
	if s.epoch != epoch {
		// a disconnect already forced Idle; state may belong to a newer link
		s.mu.Unlock()
		return
	}
	s.state = Idle
	s.mu.Unlock()

	terminal := Completed
	if err != nil {
		terminal = Failed
	}
	s.obs.StateChanged(Sending, terminal)
	s.obs.StateChanged(terminal, Idle)

	if err != nil {
		log.Warn().
			Err(err).
			Str("path", string(out.Path)).
			Int("frames", out.Frames).
			Msg("session.Send failed")
		return
	}
	log.Info().
		Str("path", string(out.Path)).
		Int("bytes", out.Bytes).
		Int("frames", out.Frames).
		Dur("elapsed", out.Elapsed).
		Msg("session.Send completed")
}

// IsRetryable reports whether err leaves the session ready for a fresh send
// of the same message. No send is ever retried automatically.
func IsRetryable(err error) bool {
	return errors.Is(err, protocol.ErrSendBusy) ||
		errors.Is(err, protocol.ErrAckTimeout) ||
		errors.Is(err, protocol.ErrAborted)
}
