package frame

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/danmuck/edgelink/internal/protocol"
)

const (
	DefaultFrameBudget     = 20
	DefaultTerminatorBytes = 1
	DefaultMaxSeq          = 1000
	DefaultAckPrefix       = "Echo:"

	Separator  = '|'
	Terminator = '\n'
)

// Limits are properties of the underlying link, not of the protocol.
type Limits struct {
	FrameBudget     int
	TerminatorBytes int
	MaxSeq          int
	AckPrefix       string
}

func DefaultLimits() Limits {
	return Limits{
		FrameBudget:     DefaultFrameBudget,
		TerminatorBytes: DefaultTerminatorBytes,
		MaxSeq:          DefaultMaxSeq,
		AckPrefix:       DefaultAckPrefix,
	}
}

// WithDefaults fills zero-valued fields from DefaultLimits.
func (l Limits) WithDefaults() Limits {
	def := DefaultLimits()
	if l.FrameBudget <= 0 {
		l.FrameBudget = def.FrameBudget
	}
	if l.TerminatorBytes <= 0 {
		l.TerminatorBytes = def.TerminatorBytes
	}
	if l.MaxSeq <= 0 {
		l.MaxSeq = def.MaxSeq
	}
	if l.AckPrefix == "" {
		l.AckPrefix = def.AckPrefix
	}
	return l
}

// Frame is one budget-sized unit of a segmented message.
type Frame struct {
	Seq     int
	Payload string
}

// Line is the frame's wire text without the terminator.
func (f Frame) Line() string {
	return strconv.Itoa(f.Seq) + string(Separator) + f.Payload
}

// MaxPayloadLen returns how many payload bytes fit in a frame carrying seq.
func MaxPayloadLen(seq int, limits Limits) int {
	n := limits.FrameBudget - limits.TerminatorBytes - (Digits(seq) + 1)
	if n < 1 {
		return 1
	}
	return n
}

// Digits returns the decimal digit count of a non-negative integer.
func Digits(n int) int {
	d := 1
	for n >= 10 {
		n /= 10
		d++
	}
	return d
}

// NextSeq advances seq, wrapping after limits.MaxSeq.
func NextSeq(seq int, limits Limits) int {
	return (seq + 1) % (limits.MaxSeq + 1)
}

func Encode(f Frame, limits Limits) ([]byte, error) {
	return encodeLine(f.Line(), limits)
}

// EncodeLine encodes a raw short-path message: no sequence framing.
func EncodeLine(msg string, limits Limits) ([]byte, error) {
	return encodeLine(msg, limits)
}

func encodeLine(line string, limits Limits) ([]byte, error) {
	out := make([]byte, 0, len(line)+1)
	out = append(out, line...)
	out = append(out, Terminator)
	if len(out) > limits.FrameBudget {
		return nil, fmt.Errorf("%w: len=%d budget=%d", protocol.ErrOversizeFrame, len(out), limits.FrameBudget)
	}
	return out, nil
}

// DecodeAck recognizes an echoed acknowledgment line. Both "<prefix> <payload>"
// and "<prefix><payload>" are accepted.
func DecodeAck(line string, limits Limits) (string, bool) {
	line = strings.TrimSuffix(line, "\r")
	prefix := limits.AckPrefix
	if prefix == "" {
		prefix = DefaultAckPrefix
	}
	if rest, ok := strings.CutPrefix(line, prefix+" "); ok {
		return rest, true
	}
	if rest, ok := strings.CutPrefix(line, prefix); ok {
		return rest, true
	}
	return "", false
}
