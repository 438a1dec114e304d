// Package peer implements the line echo service the transport talks to.
// The host side never depends on it; it exists for development links and
// tests.
package peer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"

	"github.com/danmuck/edgelink/internal/protocol/frame"
	"github.com/rs/zerolog/log"
)

// Echo trims each received line and answers with Prefix + line.
type Echo struct {
	Prefix  string
	NoSpace bool
}

func DefaultEcho() Echo {
	return Echo{Prefix: frame.DefaultAckPrefix}
}

// Reply returns the echo for one inbound line. Blank lines get no reply.
func (e Echo) Reply(line string) (string, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", false
	}
	prefix := e.Prefix
	if prefix == "" {
		prefix = frame.DefaultAckPrefix
	}
	if e.NoSpace {
		return prefix + line, true
	}
	return prefix + " " + line, true
}

// Serve echoes lines read from rw until EOF or ctx ends.
func (e Echo) Serve(ctx context.Context, rw io.ReadWriter) error {
	scanner := bufio.NewScanner(rw)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		reply, ok := e.Reply(scanner.Text())
		if !ok {
			continue
		}
		if _, err := io.WriteString(rw, reply+"\n"); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// ListenAndServe accepts TCP connections on ln and echoes each one until ctx
// ends.
func (e Echo) ListenAndServe(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("peer accept: %w", err)
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer conn.Close()
			connStop := context.AfterFunc(ctx, func() { _ = conn.Close() })
			defer connStop()
			log.Info().Str("remote", conn.RemoteAddr().String()).Msg("peer connection opened")
			if err := e.Serve(ctx, conn); err != nil && ctx.Err() == nil && !errors.Is(err, net.ErrClosed) {
				log.Warn().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("peer connection failed")
			}
			log.Info().Str("remote", conn.RemoteAddr().String()).Msg("peer connection closed")
		}()
	}
}
