package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/edgelink/internal/config"
	"github.com/danmuck/edgelink/internal/probestore"
	"github.com/danmuck/edgelink/internal/testutil/testlog"
)

func TestResolveConfigFlagsOverrideFile(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(`
link = "tcp"
addr = "10.0.0.2:7070"
ack_timeout = "5s"
`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	opts, rest, err := parseFlags([]string{
		"-config", path, "-link", "serial", "-serial", "/dev/ttyUSB1", "-ack-timeout", "250ms", "-probe-db", "-", "probe",
	}, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	if len(rest) != 1 || rest[0] != "probe" {
		t.Fatalf("unexpected args: %v", rest)
	}
	cfg, err := resolveConfig(opts)
	if err != nil {
		t.Fatalf("resolve config: %v", err)
	}
	if cfg.Link != config.LinkSerial || cfg.Serial.Port != "/dev/ttyUSB1" {
		t.Fatalf("flags did not override link: %+v", cfg)
	}
	if cfg.TCP.Address != "10.0.0.2:7070" {
		t.Fatalf("file value lost: %q", cfg.TCP.Address)
	}
	if cfg.Session.AckTimeout != 250*time.Millisecond {
		t.Fatalf("unexpected ack timeout: %v", cfg.Session.AckTimeout)
	}
	if cfg.ProbeDB != "" {
		t.Fatalf("probe db should be disabled, got %q", cfg.ProbeDB)
	}
}

func TestRunSendOverLoopback(t *testing.T) {
	testlog.Start(t)
	var out bytes.Buffer
	err := run(context.Background(), []string{"-link", "loopback", "-probe-db", "-", "send", "HELLO"}, &out)
	if err != nil {
		t.Fatalf("run send: %v", err)
	}
	if !strings.Contains(out.String(), "sent 5 bytes (short path, 0 acked frames)") {
		t.Fatalf("unexpected output: %q", out.String())
	}
}

func TestRunProbeRecordsHistory(t *testing.T) {
	testlog.Start(t)
	dbPath := filepath.Join(t.TempDir(), "probe.db")
	var out bytes.Buffer
	if err := run(context.Background(), []string{"-link", "loopback", "-probe-db", dbPath, "probe"}, &out); err != nil {
		t.Fatalf("run probe: %v", err)
	}
	if !strings.Contains(out.String(), "probe: 2894 bytes, 186 frames") {
		t.Fatalf("unexpected output: %q", out.String())
	}

	store, err := probestore.Open(dbPath, "loopback")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()
	runs, err := store.Recent(context.Background(), 5)
	if err != nil || len(runs) != 1 || !runs[0].Result.Success {
		t.Fatalf("expected one successful stored run, runs=%+v err=%v", runs, err)
	}
}

func TestRunRejectsBadUsage(t *testing.T) {
	testlog.Start(t)
	var out bytes.Buffer
	if err := run(context.Background(), nil, &out); !errors.Is(err, errUsage) {
		t.Fatalf("expected usage error, got %v", err)
	}
	err := run(context.Background(), []string{"-link", "loopback", "-probe-db", "-", "launch"}, &out)
	if !errors.Is(err, errUsage) {
		t.Fatalf("expected unknown command error, got %v", err)
	}
	err = run(context.Background(), []string{"-link", "loopback", "-probe-db", "-", "send"}, &out)
	if !errors.Is(err, errUsage) {
		t.Fatalf("expected missing message error, got %v", err)
	}
}
