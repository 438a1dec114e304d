package observability

import (
	"errors"

	"github.com/danmuck/edgelink/internal/protocol"
	"github.com/danmuck/edgelink/internal/protocol/session"
	"github.com/rs/zerolog"
)

// TransportObserver feeds session events into metrics and debug logs.
type TransportObserver struct {
	node   string
	logger zerolog.Logger
}

var _ session.Observer = (*TransportObserver)(nil)

func NewTransportObserver(node string, logger zerolog.Logger) *TransportObserver {
	RegisterMetrics()
	return &TransportObserver{
		node:   node,
		logger: logger.With().Str("node", node).Logger(),
	}
}

func (o *TransportObserver) LineSent(line string) {
	linesSent.WithLabelValues(o.node).Inc()
	o.logger.Debug().Str("line", line).Msg("tx")
}

func (o *TransportObserver) LineReceived(line string) {
	linesReceived.WithLabelValues(o.node).Inc()
	o.logger.Debug().Str("line", line).Msg("rx")
}

func (o *TransportObserver) StateChanged(from, to session.State) {
	sessionState.WithLabelValues(o.node).Set(float64(to))
	o.logger.Trace().Stringer("from", from).Stringer("to", to).Msg("state")
}

func (o *TransportObserver) SendFinished(out session.Outcome, err error) {
	path := string(out.Path)
	sends.WithLabelValues(o.node, path, ResultLabel(err)).Inc()
	if err == nil {
		sendDuration.WithLabelValues(o.node, path).Observe(out.Elapsed.Seconds())
	}
}

// ResultLabel maps a send error to a low-cardinality metric label.
func ResultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, protocol.ErrAckTimeout):
		return "ack_timeout"
	case errors.Is(err, protocol.ErrAborted):
		return "aborted"
	case errors.Is(err, protocol.ErrLinkWrite):
		return "link_write"
	case errors.Is(err, protocol.ErrInvalidMessage):
		return "invalid"
	default:
		return "error"
	}
}
