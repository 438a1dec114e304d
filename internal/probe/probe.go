// Package probe measures goodput of the line transport with a reproducible
// payload.
package probe

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/danmuck/edgelink/internal/protocol/session"
	"github.com/rs/zerolog/log"
)

// Sender is the slice of session.Session the probe drives.
type Sender interface {
	Send(ctx context.Context, message string) (session.Outcome, error)
}

// Recorder persists finished probe runs.
type Recorder interface {
	Record(ctx context.Context, r Result) error
}

// Result is one probe run. It is not modified after Run returns.
type Result struct {
	StartedAt      time.Time     `json:"started_at"`
	BytesSent      int           `json:"bytes_sent"`
	Elapsed        time.Duration `json:"elapsed_ns"`
	FrameCount     int           `json:"frame_count"`
	Success        bool          `json:"success"`
	BytesPerSecond float64       `json:"bytes_per_second"`
	KiBPerSecond   float64       `json:"kib_per_second"`
	Error          string        `json:"error,omitempty"`
}

func (r Result) ElapsedMillis() float64 {
	return float64(r.Elapsed) / float64(time.Millisecond)
}

// BuildTestPayload concatenates the decimal forms of 0 through maxSeq.
func BuildTestPayload(maxSeq int) string {
	var b strings.Builder
	for i := 0; i <= maxSeq; i++ {
		b.WriteString(strconv.Itoa(i))
	}
	return b.String()
}

type Probe struct {
	sender   Sender
	payload  string
	recorder Recorder
	now      func() time.Time
}

type Option func(*Probe)

func WithRecorder(r Recorder) Option {
	return func(p *Probe) { p.recorder = r }
}

// WithPayload replaces the default payload.
func WithPayload(payload string) Option {
	return func(p *Probe) { p.payload = payload }
}

func New(sender Sender, maxSeq int, opts ...Option) *Probe {
	p := &Probe{
		sender:  sender,
		payload: BuildTestPayload(maxSeq),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Probe) Payload() string {
	return p.payload
}

// Run sends the payload once and derives goodput from the outcome. On
// failure the error is returned unchanged and no rate is computed.
func (p *Probe) Run(ctx context.Context) (Result, error) {
	start := p.now()
	out, err := p.sender.Send(ctx, p.payload)
	res := Result{
		StartedAt:  start,
		BytesSent:  out.Bytes,
		Elapsed:    p.now().Sub(start),
		FrameCount: out.Frames,
		Success:    err == nil,
	}
	if err != nil {
		res.BytesSent = 0
		res.Error = err.Error()
		log.Warn().Err(err).Int("frames", out.Frames).Msg("probe.Run failed")
	} else {
		if secs := res.Elapsed.Seconds(); secs > 0 {
			res.BytesPerSecond = float64(res.BytesSent) / secs
			res.KiBPerSecond = res.BytesPerSecond / 1024
		}
		log.Info().
			Int("bytes", res.BytesSent).
			Int("frames", res.FrameCount).
			Float64("elapsed_ms", res.ElapsedMillis()).
			Float64("kib_per_s", res.KiBPerSecond).
			Msg("probe.Run completed")
	}
	if p.recorder != nil {
		if rerr := p.recorder.Record(ctx, res); rerr != nil {
			log.Warn().Err(rerr).Msg("probe.Run record failed")
		}
	}
	return res, err
}
