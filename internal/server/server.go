// Package server exposes a transport session over HTTP for dashboards and
// scripted runs.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danmuck/edgelink/internal/auth"
	"github.com/danmuck/edgelink/internal/observability"
	"github.com/danmuck/edgelink/internal/probe"
	"github.com/danmuck/edgelink/internal/probestore"
	"github.com/danmuck/edgelink/internal/protocol"
	"github.com/danmuck/edgelink/internal/protocol/ack"
	"github.com/danmuck/edgelink/internal/protocol/session"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Transport is the slice of session.Session served over HTTP.
type Transport interface {
	Send(ctx context.Context, message string) (session.Outcome, error)
	State() session.State
	Pending() (ack.PendingAck, bool)
	IsConnected() bool
	Config() session.Config
}

// History lists stored probe runs.
type History interface {
	probe.Recorder
	Recent(ctx context.Context, limit int) ([]probestore.Run, error)
}

type Server struct {
	Name     string
	Addr     string
	Appeared time.Time

	transport Transport
	history   History
	validator auth.Validator
	router    *gin.Engine
}

type Option func(*Server)

// WithAuth requires a bearer token on POST routes.
func WithAuth(v auth.Validator) Option {
	return func(s *Server) { s.validator = v }
}

// WithHistory records probe runs and enables GET /probe/history.
func WithHistory(h History) Option {
	return func(s *Server) { s.history = h }
}

func New(name, addr string, transport Transport, corsOrigins []string, opts ...Option) *Server {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.HTTPRequests(name, log.Logger))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(corsOrigins),
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		Name:      name,
		Addr:      addr,
		Appeared:  time.Now(),
		transport: transport,
		router:    r,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerRoutes()
	return s
}

func (s *Server) HTTPRouter() *gin.Engine {
	return s.router
}

// Serve listens on Addr until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	})
	defer stop()

	log.Info().Str("server", s.Name).Str("addr", s.Addr).Msg("http listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type sendRequest struct {
	Message string `json:"message"`
}

type pendingView struct {
	Expected string    `json:"expected"`
	Deadline time.Time `json:"deadline"`
}

func (s *Server) registerRoutes() {
	mutating := s.router.Group("/")
	if s.validator != nil {
		mutating.Use(auth.Require(s.validator))
	}

	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.Appeared).String(),
			"service": s.Name,
			"version": "0.0.1",
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/status", func(c *gin.Context) {
		limits := s.transport.Config().Limits
		body := gin.H{
			"connected": s.transport.IsConnected(),
			"state":     s.transport.State().String(),
			"limits": gin.H{
				"frame_budget":     limits.FrameBudget,
				"terminator_bytes": limits.TerminatorBytes,
				"max_seq":          limits.MaxSeq,
				"ack_prefix":       limits.AckPrefix,
			},
			"ack_timeout": s.transport.Config().AckTimeout.String(),
		}
		if p, ok := s.transport.Pending(); ok {
			body["pending"] = pendingView{Expected: p.Expected, Deadline: p.Deadline}
		}
		c.JSON(http.StatusOK, body)
	})

	mutating.POST("/send", func(c *gin.Context) {
		var req sendRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		out, err := s.transport.Send(c.Request.Context(), req.Message)
		if err != nil {
			frames := out.Frames
			var sendErr *protocol.SendError
			if errors.As(err, &sendErr) {
				frames = sendErr.FramesCompleted
			}
			observability.TagTransport(c, string(out.Path), frames, err)
			c.JSON(StatusFor(err), gin.H{"error": err.Error(), "frames": frames})
			return
		}
		observability.TagTransport(c, string(out.Path), out.Frames, nil)
		c.JSON(http.StatusOK, gin.H{
			"status":     "ok",
			"path":       out.Path,
			"bytes":      out.Bytes,
			"frames":     out.Frames,
			"elapsed_ms": float64(out.Elapsed) / float64(time.Millisecond),
		})
	})

	mutating.POST("/probe", func(c *gin.Context) {
		var opts []probe.Option
		if s.history != nil {
			opts = append(opts, probe.WithRecorder(s.history))
		}
		p := probe.New(s.transport, s.transport.Config().Limits.MaxSeq, opts...)
		res, err := p.Run(c.Request.Context())
		observability.TagTransport(c, string(session.PathSegmented), res.FrameCount, err)
		if err != nil {
			c.JSON(StatusFor(err), gin.H{"error": err.Error(), "result": res})
			return
		}
		observability.RecordProbe(s.Name, res.BytesPerSecond)
		c.JSON(http.StatusOK, gin.H{"status": "ok", "result": res})
	})

	s.router.GET("/probe/history", func(c *gin.Context) {
		if s.history == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "probe history disabled"})
			return
		}
		runs, err := s.history.Recent(c.Request.Context(), 20)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"runs": runs})
	})
}

// StatusFor maps transport errors to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, protocol.ErrNotConnected):
		return http.StatusServiceUnavailable
	case errors.Is(err, protocol.ErrSendBusy):
		return http.StatusConflict
	case errors.Is(err, protocol.ErrInvalidMessage):
		return http.StatusBadRequest
	case errors.Is(err, protocol.ErrAckTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, protocol.ErrAborted):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
