package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/edgelink/internal/config"
	"github.com/danmuck/edgelink/internal/observability"
	"github.com/danmuck/edgelink/internal/peer"
	"github.com/rs/zerolog/log"
)

func main() {
	configPath := flag.String("config", "", "path to echopeer config.toml")
	addr := flag.String("addr", "", "listen address")
	prefix := flag.String("prefix", "", "acknowledgment prefix")
	noSpace := flag.Bool("nospace", false, "omit the space after the prefix")
	flag.Parse()

	observability.InitLogger("echopeer")

	cfg := config.DefaultPeerConfig()
	if *configPath != "" {
		loaded, err := config.LoadPeerConfig(*configPath)
		if err != nil {
			fatalf("%v", err)
		}
		cfg = loaded
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *prefix != "" {
		cfg.Prefix = *prefix
	}
	if *noSpace {
		cfg.NoSpace = true
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		fatalf("listen %s: %v", cfg.Addr, err)
	}
	log.Info().Str("addr", ln.Addr().String()).Str("prefix", cfg.Prefix).Bool("nospace", cfg.NoSpace).Msg("echopeer listening")

	echo := peer.Echo{Prefix: cfg.Prefix, NoSpace: cfg.NoSpace}
	if err := echo.ListenAndServe(ctx, ln); err != nil {
		fatalf("%v", err)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "echopeer: "+format+"\n", args...)
	os.Exit(1)
}
