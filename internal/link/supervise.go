package link

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/rs/zerolog/log"
)

// Backoff spaces out redial attempts after a link drops or fails to open.
type Backoff struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

func DefaultBackoff() Backoff {
	return Backoff{
		InitialDelay: 250 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
		Jitter:       true,
	}
}

// Delay returns the wait before attempt N (1-based). rng may be nil, which
// pins jitter to its midpoint.
func (b Backoff) Delay(attempt int, rng *rand.Rand) time.Duration {
	if attempt <= 1 || b.InitialDelay <= 0 {
		return max(b.InitialDelay, 0)
	}
	mult := math.Max(b.Multiplier, 1.0)
	delay := float64(b.InitialDelay) * math.Pow(mult, float64(attempt-1))
	if b.MaxDelay > 0 {
		delay = math.Min(delay, float64(b.MaxDelay))
	}
	if b.Jitter {
		f := 0.5
		if rng != nil {
			f += rng.Float64()
		}
		delay *= f
	}
	return time.Duration(delay)
}

// Dialer opens a fresh stream link.
type Dialer func(ctx context.Context) (*Stream, error)

// Supervise keeps a link attached to sink, redialing with backoff whenever it
// drops, until ctx ends or maxAttempts consecutive dials fail (0 = forever).
// Session state is never carried across links; each redial is a fresh
// Connected.
func Supervise(ctx context.Context, dial Dialer, sink Sink, backoff Backoff, maxAttempts int) error {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	attempt := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		attempt++
		stream, err := dial(ctx)
		if err != nil {
			log.Warn().Err(err).Int("attempt", attempt).Msg("link dial failed")
			if maxAttempts > 0 && attempt >= maxAttempts {
				return err
			}
		} else {
			attempt = 0
			if err := stream.Run(ctx, sink); err != nil {
				log.Warn().Err(err).Msg("link dropped")
			}
		}
		if err := sleepCtx(ctx, backoff.Delay(max(attempt, 1), rng)); err != nil {
			return nil
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
