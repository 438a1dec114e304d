package observability

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/danmuck/edgelink/internal/protocol"
	"github.com/danmuck/edgelink/internal/protocol/session"
	"github.com/danmuck/edgelink/internal/testutil/testlog"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	testlog.Start(t)
	RegisterMetrics()
	RegisterMetrics()

	RecordHTTPRequest("link-a", "GET", "/health", "none", 200, 12*time.Millisecond)
	RecordProbe("link-a", 1834.5)
	if got := testutil.ToFloat64(probeGoodput.WithLabelValues("link-a")); got != 1834.5 {
		t.Fatalf("unexpected goodput gauge: %v", got)
	}
}

func TestTransportObserverCounts(t *testing.T) {
	testlog.Start(t)
	obs := NewTransportObserver("obs-test", zerolog.Nop())

	obs.LineSent("0|HELLO")
	obs.LineSent("1|WORLD")
	obs.LineReceived("Echo: 0|HELLO")
	obs.StateChanged(session.Idle, session.Sending)
	obs.SendFinished(session.Outcome{Path: session.PathSegmented, Frames: 2, Elapsed: 40 * time.Millisecond}, nil)
	obs.SendFinished(session.Outcome{Path: session.PathSegmented}, &protocol.AckTimeoutError{Expected: "2|X"})

	if got := testutil.ToFloat64(linesSent.WithLabelValues("obs-test")); got != 2 {
		t.Fatalf("lines sent = %v", got)
	}
	if got := testutil.ToFloat64(linesReceived.WithLabelValues("obs-test")); got != 1 {
		t.Fatalf("lines received = %v", got)
	}
	if got := testutil.ToFloat64(sessionState.WithLabelValues("obs-test")); got != float64(session.Sending) {
		t.Fatalf("state gauge = %v", got)
	}
	if got := testutil.ToFloat64(sends.WithLabelValues("obs-test", "segmented", "ok")); got != 1 {
		t.Fatalf("ok sends = %v", got)
	}
	if got := testutil.ToFloat64(sends.WithLabelValues("obs-test", "segmented", "ack_timeout")); got != 1 {
		t.Fatalf("timeout sends = %v", got)
	}
}

func TestResultLabel(t *testing.T) {
	testlog.Start(t)
	cases := map[string]error{
		"ok":         nil,
		"aborted":    &protocol.AbortedError{Reason: "disconnected"},
		"link_write": &protocol.LinkWriteError{Err: errors.New("broken pipe")},
		"invalid":    fmt.Errorf("%w: whitespace", protocol.ErrInvalidMessage),
		"error":      errors.New("other"),
	}
	for want, err := range cases {
		if got := ResultLabel(err); got != want {
			t.Fatalf("ResultLabel(%v) = %q want %q", err, got, want)
		}
	}
}
