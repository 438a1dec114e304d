package probe

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/edgelink/internal/link"
	"github.com/danmuck/edgelink/internal/peer"
	"github.com/danmuck/edgelink/internal/protocol"
	"github.com/danmuck/edgelink/internal/protocol/frame"
	"github.com/danmuck/edgelink/internal/protocol/segment"
	"github.com/danmuck/edgelink/internal/protocol/session"
	"github.com/danmuck/edgelink/internal/testutil/testlog"
)

type failingSender struct{ err error }

func (f failingSender) Send(context.Context, string) (session.Outcome, error) {
	return session.Outcome{Path: session.PathSegmented, Bytes: 100, Frames: 3}, f.err
}

type memRecorder struct{ results []Result }

func (m *memRecorder) Record(_ context.Context, r Result) error {
	m.results = append(m.results, r)
	return nil
}

func TestBuildTestPayloadIsDeterministic(t *testing.T) {
	testlog.Start(t)
	got := BuildTestPayload(frame.DefaultMaxSeq)
	// 10 one-digit, 90 two-digit, 900 three-digit values and "1000".
	if len(got) != 10+180+2700+4 {
		t.Fatalf("unexpected payload length %d", len(got))
	}
	if !strings.HasPrefix(got, "012345678910111213") || !strings.HasSuffix(got, "9989991000") {
		t.Fatalf("unexpected payload edges: %q...%q", got[:18], got[len(got)-10:])
	}
	if got != BuildTestPayload(frame.DefaultMaxSeq) {
		t.Fatalf("payload must be reproducible")
	}
	if BuildTestPayload(3) != "0123" {
		t.Fatalf("unexpected small payload %q", BuildTestPayload(3))
	}
}

func TestProbeRoundTripOverLoopback(t *testing.T) {
	testlog.Start(t)
	cfg := session.DefaultConfig()
	cfg.AckTimeout = time.Second
	s := session.New(cfg)
	lb := link.NewLoopback(peer.DefaultEcho(), cfg.Limits.FrameBudget)
	lb.Attach(s)
	defer lb.Detach()

	rec := &memRecorder{}
	p := New(s, cfg.Limits.MaxSeq, WithRecorder(rec))
	res, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("probe run: %v", err)
	}
	if !res.Success || res.BytesSent != len(p.Payload()) {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.FrameCount != segment.Count(p.Payload(), cfg.Limits) {
		t.Fatalf("unexpected frame count %d", res.FrameCount)
	}
	if res.Elapsed > 0 && (res.BytesPerSecond <= 0 || res.KiBPerSecond != res.BytesPerSecond/1024) {
		t.Fatalf("unexpected rates: %+v", res)
	}
	if len(rec.results) != 1 || rec.results[0].BytesSent != res.BytesSent {
		t.Fatalf("result not recorded: %+v", rec.results)
	}
}

func TestProbeFailurePropagates(t *testing.T) {
	testlog.Start(t)
	cause := &protocol.SendError{Err: &protocol.AckTimeoutError{Expected: "3|x"}, FramesCompleted: 3}
	p := New(failingSender{err: cause}, 10)
	res, err := p.Run(context.Background())
	if !errors.Is(err, protocol.ErrAckTimeout) {
		t.Fatalf("expected ack timeout, got %v", err)
	}
	if res.Success || res.BytesPerSecond != 0 || res.KiBPerSecond != 0 || res.BytesSent != 0 {
		t.Fatalf("failed probe must not report a rate: %+v", res)
	}
	if res.FrameCount != 3 || res.Error == "" {
		t.Fatalf("failed probe should keep frame count and error: %+v", res)
	}
}
