package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/danmuck/edgelink/internal/auth"
	"github.com/danmuck/edgelink/internal/config"
	"github.com/danmuck/edgelink/internal/link"
	"github.com/danmuck/edgelink/internal/observability"
	"github.com/danmuck/edgelink/internal/peer"
	"github.com/danmuck/edgelink/internal/probe"
	"github.com/danmuck/edgelink/internal/probestore"
	"github.com/danmuck/edgelink/internal/protocol/session"
	"github.com/danmuck/edgelink/internal/server"
	"github.com/rs/zerolog/log"
)

const usage = `usage: linkctl [flags] <command> [args]

commands:
  send <message>   send one message and wait for its acknowledgment
  probe            run the throughput probe once
  serve            expose the session over HTTP
  ports            list serial ports
`

var errUsage = errors.New("invalid usage")

type options struct {
	configPath  string
	linkKind    string
	addr        string
	serialPort  string
	baud        int
	ackTimeout  time.Duration
	probeDB     string
	connectWait time.Duration
}

func parseFlags(args []string, out io.Writer) (options, []string, error) {
	var opts options
	fs := flag.NewFlagSet("linkctl", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.Usage = func() {
		fmt.Fprint(out, usage)
		fs.PrintDefaults()
	}
	fs.StringVar(&opts.configPath, "config", "", "path to linkctl config.toml")
	fs.StringVar(&opts.linkKind, "link", "", "link kind: tcp|serial|loopback")
	fs.StringVar(&opts.addr, "addr", "", "tcp peer address")
	fs.StringVar(&opts.serialPort, "serial", "", "serial port device")
	fs.IntVar(&opts.baud, "baud", 0, "serial baud rate")
	fs.DurationVar(&opts.ackTimeout, "ack-timeout", 0, "per-frame ack timeout")
	fs.StringVar(&opts.probeDB, "probe-db", "", "probe history database (\"-\" disables)")
	fs.DurationVar(&opts.connectWait, "connect-wait", 10*time.Second, "how long send/probe wait for the link")
	if err := fs.Parse(args); err != nil {
		return options{}, nil, err
	}
	return opts, fs.Args(), nil
}

// resolveConfig layers flags over the config file over defaults.
func resolveConfig(opts options) (config.HostConfig, error) {
	cfg := config.DefaultHostConfig()
	if opts.configPath != "" {
		loaded, err := config.LoadHostConfig(opts.configPath)
		if err != nil {
			return config.HostConfig{}, err
		}
		cfg = loaded
	}
	if opts.linkKind != "" {
		kind, err := config.ParseLinkKind(opts.linkKind)
		if err != nil {
			return config.HostConfig{}, err
		}
		cfg.Link = kind
	}
	if opts.addr != "" {
		cfg.TCP.Address = opts.addr
	}
	if opts.serialPort != "" {
		cfg.Serial.Port = opts.serialPort
	}
	if opts.baud > 0 {
		cfg.Serial.BaudRate = opts.baud
	}
	if opts.ackTimeout > 0 {
		cfg.Session.AckTimeout = opts.ackTimeout
	}
	switch opts.probeDB {
	case "":
	case "-":
		cfg.ProbeDB = ""
	default:
		cfg.ProbeDB = opts.probeDB
	}
	cfg.Session = cfg.Session.WithDefaults()
	if err := config.ValidateHostConfig(cfg); err != nil {
		return config.HostConfig{}, err
	}
	return cfg, nil
}

func run(ctx context.Context, args []string, out io.Writer) error {
	opts, rest, err := parseFlags(args, out)
	if err != nil {
		return err
	}
	if len(rest) == 0 {
		fmt.Fprint(out, usage)
		return errUsage
	}
	if rest[0] == "ports" {
		ports, err := link.SerialPorts()
		if err != nil {
			return err
		}
		for _, p := range ports {
			fmt.Fprintln(out, p)
		}
		return nil
	}

	cfg, err := resolveConfig(opts)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sess := session.New(cfg.Session, session.WithObserver(observability.NewTransportObserver(cfg.Name, log.Logger)))
	linkDone := attach(ctx, cfg, sess)
	defer func() {
		cancel()
		<-linkDone
	}()

	switch rest[0] {
	case "send":
		if len(rest) < 2 {
			return fmt.Errorf("%w: send requires a message", errUsage)
		}
		if err := waitConnected(ctx, sess, opts.connectWait); err != nil {
			return err
		}
		res, err := sess.Send(ctx, strings.Join(rest[1:], " "))
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "sent %d bytes (%s path, %d acked frames) in %s\n", res.Bytes, res.Path, res.Frames, res.Elapsed)
		return nil

	case "probe":
		var popts []probe.Option
		if cfg.ProbeDB != "" {
			store, err := probestore.Open(cfg.ProbeDB, string(cfg.Link))
			if err != nil {
				return err
			}
			defer store.Close()
			popts = append(popts, probe.WithRecorder(store))
		}
		if err := waitConnected(ctx, sess, opts.connectWait); err != nil {
			return err
		}
		res, err := probe.New(sess, cfg.Session.Limits.MaxSeq, popts...).Run(ctx)
		if err != nil {
			return fmt.Errorf("probe failed after %d frames: %w", res.FrameCount, err)
		}
		observability.RecordProbe(cfg.Name, res.BytesPerSecond)
		fmt.Fprintf(out, "probe: %d bytes, %d frames, %.1f ms, %.2f KiB/s\n",
			res.BytesSent, res.FrameCount, res.ElapsedMillis(), res.KiBPerSecond)
		return nil

	case "serve":
		var sopts []server.Option
		if cfg.ProbeDB != "" {
			store, err := probestore.Open(cfg.ProbeDB, string(cfg.Link))
			if err != nil {
				return err
			}
			defer store.Close()
			sopts = append(sopts, server.WithHistory(store))
		}
		if cfg.HTTPToken != "" {
			sopts = append(sopts, server.WithAuth(auth.StaticToken{Token: cfg.HTTPToken}))
		}
		return server.New(cfg.Name, cfg.HTTPAddr, sess, cfg.CorsOrigins, sopts...).Serve(ctx)

	default:
		fmt.Fprint(out, usage)
		return fmt.Errorf("%w: unknown command %q", errUsage, rest[0])
	}
}

// attach connects sess to the configured link. The returned channel closes
// once the link has been torn down after ctx ends.
func attach(ctx context.Context, cfg config.HostConfig, sess *session.Session) <-chan struct{} {
	done := make(chan struct{})
	budget := cfg.Session.Limits.FrameBudget

	if cfg.Link == config.LinkLoopback {
		lb := link.NewLoopback(peer.Echo{Prefix: cfg.Session.Limits.AckPrefix}, budget)
		lb.Attach(sess)
		go func() {
			defer close(done)
			<-ctx.Done()
			lb.Detach()
		}()
		return done
	}

	var dial link.Dialer
	switch cfg.Link {
	case config.LinkSerial:
		dial = func(context.Context) (*link.Stream, error) {
			return link.OpenSerial(cfg.Serial, budget)
		}
	default:
		dial = func(ctx context.Context) (*link.Stream, error) {
			return link.DialTCP(ctx, cfg.TCP, budget)
		}
	}
	go func() {
		defer close(done)
		if err := link.Supervise(ctx, dial, sess, cfg.Backoff, cfg.MaxDialAttempts); err != nil {
			log.Error().Err(err).Str("link", string(cfg.Link)).Msg("link supervisor gave up")
		}
	}()
	return done
}

func waitConnected(ctx context.Context, sess *session.Session, wait time.Duration) error {
	deadline := time.NewTimer(wait)
	defer deadline.Stop()
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
	for !sess.IsConnected() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("link not connected after %s", wait)
		case <-tick.C:
		}
	}
	return nil
}
