// Package segment splits a message into budget-sized frames.
package segment

import (
	"unicode/utf8"

	"github.com/danmuck/edgelink/internal/protocol/frame"
)

// Segmenter yields frames greedily from left to right. It is single-use:
// once exhausted it keeps returning false.
type Segmenter struct {
	msg    string
	limits frame.Limits
	offset int
	seq    int
}

func New(message string, limits frame.Limits) *Segmenter {
	return &Segmenter{msg: message, limits: limits}
}

func (s *Segmenter) Next() (frame.Frame, bool) {
	if s.offset >= len(s.msg) {
		return frame.Frame{}, false
	}
	end := s.offset + frame.MaxPayloadLen(s.seq, s.limits)
	if end >= len(s.msg) {
		end = len(s.msg)
	} else {
		end = runeCut(s.msg, s.offset, end)
	}
	f := frame.Frame{Seq: s.seq, Payload: s.msg[s.offset:end]}
	s.offset = end
	s.seq = frame.NextSeq(s.seq, s.limits)
	return f, true
}

// Remaining reports unsent message bytes.
func (s *Segmenter) Remaining() int {
	return len(s.msg) - s.offset
}

// runeCut moves end back to a rune boundary, keeping at least one rune.
func runeCut(msg string, start, end int) int {
	cut := end
	for cut > start && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	if cut > start {
		return cut
	}
	_, size := utf8.DecodeRuneInString(msg[start:])
	return start + size
}

func All(message string, limits frame.Limits) []frame.Frame {
	s := New(message, limits)
	var out []frame.Frame
	for {
		f, ok := s.Next()
		if !ok {
			return out
		}
		out = append(out, f)
	}
}

func Count(message string, limits frame.Limits) int {
	s := New(message, limits)
	n := 0
	for {
		if _, ok := s.Next(); !ok {
			return n
		}
		n++
	}
}
