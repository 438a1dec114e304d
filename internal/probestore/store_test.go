package probestore

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/edgelink/internal/probe"
	"github.com/danmuck/edgelink/internal/testutil/testlog"
)

func TestStoreRecordAndRecent(t *testing.T) {
	testlog.Start(t)
	ctx := context.Background()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "probe.db"), "loopback")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	started := time.Unix(1700000000, 0)
	runs := []probe.Result{
		{StartedAt: started, BytesSent: 2894, Elapsed: 1500 * time.Millisecond, FrameCount: 186, Success: true, BytesPerSecond: 1929.3},
		{StartedAt: started.Add(time.Minute), FrameCount: 12, Error: "protocol: ack timeout"},
		{StartedAt: started.Add(2 * time.Minute), BytesSent: 2894, Elapsed: time.Second, FrameCount: 186, Success: true, BytesPerSecond: 2894},
	}
	for _, r := range runs {
		if err := s.Record(ctx, r); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	got, err := s.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(got))
	}
	if got[0].Result.BytesPerSecond != 2894 || got[0].Label != "loopback" {
		t.Fatalf("unexpected newest run: %+v", got[0])
	}
	if got[1].Result.Success || got[1].Result.Error == "" {
		t.Fatalf("expected failed run second: %+v", got[1])
	}
	if got[0].Result.Elapsed != time.Second || !got[0].Result.StartedAt.Equal(started.Add(2*time.Minute)) {
		t.Fatalf("timing not preserved: %+v", got[0].Result)
	}

	best, ok, err := s.Best(ctx)
	if err != nil || !ok {
		t.Fatalf("best: ok=%v err=%v", ok, err)
	}
	if best.Result.BytesPerSecond != 2894 {
		t.Fatalf("unexpected best: %+v", best)
	}
}

func TestStoreBestEmpty(t *testing.T) {
	testlog.Start(t)
	s, err := Open(filepath.Join(t.TempDir(), "probe.db"), "serial")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	if _, ok, err := s.Best(context.Background()); err != nil || ok {
		t.Fatalf("expected no best run, ok=%v err=%v", ok, err)
	}
}

func TestStoreRecentRejectsCorruptTimestamp(t *testing.T) {
	testlog.Start(t)
	ctx := context.Background()
	s, err := Open(filepath.Join(t.TempDir(), "probe.db"), "loopback")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO probe_runs (label, started_at, bytes_sent, elapsed_ms, frame_count, success)
		VALUES ('loopback', 'not-a-time', 0, 0, 0, 0)`); err != nil {
		t.Fatalf("insert corrupt row: %v", err)
	}
	runs, err := s.Recent(ctx, 5)
	if err == nil {
		t.Fatalf("expected scan error, got runs %+v", runs)
	}
	if !strings.Contains(err.Error(), "not-a-time") {
		t.Fatalf("error should name the bad value: %v", err)
	}
}
